// Package audit renders login logs into a password-protected PDF report.
package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/models"
)

// ObjectKey is where a report generated at t is stored.
func ObjectKey(id uuid.UUID, t time.Time) string {
	return fmt.Sprintf("exports/login-logs-%s-%s.pdf", t.UTC().Format("20060102-150405"), id.String()[:8])
}

// NewJob fixes the destination of a report before it is rendered so the
// document can link to itself.
func NewJob(userID *uuid.UUID, from, to *time.Time, publicURL func(key string) string) models.ExportJob {
	now := time.Now().UTC()
	id := uuid.New()
	key := ObjectKey(id, now)
	return models.ExportJob{
		ID:          id,
		ObjectKey:   key,
		PublicURL:   publicURL(key),
		UserID:      userID,
		From:        from,
		To:          to,
		RequestedAt: now,
	}
}
