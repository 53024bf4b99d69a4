// Package evidence stores the still captured at each login attempt and
// writes the audit row that references it.
package evidence

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/apperr"
	"github.com/your-org/facegate/internal/fetch"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
)

const jpegQuality = 85

type Uploader interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type LogWriter interface {
	InsertLoginLog(ctx context.Context, e *models.LoginLogEntry) error
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, evt models.Event) error
}

type Recorder struct {
	uploader Uploader
	logs     LogWriter
	events   EventPublisher
	now      func() time.Time
}

func NewRecorder(uploader Uploader, logs LogWriter, events EventPublisher) *Recorder {
	return &Recorder{uploader: uploader, logs: logs, events: events, now: time.Now}
}

// ObjectKey is where the still for an attempt at t is uploaded.
func ObjectKey(userID uuid.UUID, t time.Time) string {
	return fmt.Sprintf("login-evidence/%s/%d.jpg", userID, t.UnixMilli())
}

// Record uploads the still and inserts exactly one log row. If the upload
// fails the still is embedded in the row as a data URL instead. Only a
// failed insert is an error.
func (r *Recorder) Record(ctx context.Context, userID uuid.UUID, status models.LoginStatus, still image.Image) (*models.LoginLogEntry, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, still, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode evidence: %w", err)
	}
	return r.RecordJPEG(ctx, userID, status, buf.Bytes())
}

// RecordJPEG is Record for an already encoded still.
func (r *Recorder) RecordJPEG(ctx context.Context, userID uuid.UUID, status models.LoginStatus, data []byte) (*models.LoginLogEntry, error) {
	now := r.now().UTC()

	imageURL, err := r.uploader.PutObject(ctx, ObjectKey(userID, now), data, "image/jpeg")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("evidence upload failed, storing inline", "user_id", userID, "error", apperr.Wrap(apperr.KindUploadFailure, err))
		observability.EvidenceInlineFallback.Inc()
		imageURL = fetch.EncodeDataURL("image/jpeg", data)
	}

	entry := &models.LoginLogEntry{
		ID:               uuid.New(),
		UserID:           userID,
		Status:           status,
		CapturedImageURL: &imageURL,
		LoginTime:        now,
	}
	if err := r.logs.InsertLoginLog(ctx, entry); err != nil {
		return nil, apperr.New(apperr.KindNetworkFailure, "", fmt.Errorf("record login attempt: %w", err))
	}

	evt := models.Event{
		Type:      models.EventLoginAttempt,
		UserID:    &entry.UserID,
		Login:     entry,
		Timestamp: now,
	}
	if err := r.events.PublishEvent(ctx, evt); err != nil {
		slog.Warn("publish login attempt", "log_id", entry.ID, "error", err)
	}
	return entry, nil
}
