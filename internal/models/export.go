package models

import (
	"time"

	"github.com/google/uuid"
)

// ExportJob asks the worker to render login logs into an encrypted PDF.
// ObjectKey and PublicURL are fixed before rendering so the document can
// carry a QR code of its own location.
type ExportJob struct {
	ID          uuid.UUID  `json:"id"`
	ObjectKey   string     `json:"object_key"`
	PublicURL   string     `json:"public_url"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
	From        *time.Time `json:"from,omitempty"`
	To          *time.Time `json:"to,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
}

// Filter converts the job selection into a log filter without paging.
func (j ExportJob) Filter() LoginLogFilter {
	return LoginLogFilter{UserID: j.UserID, From: j.From, To: j.To}
}
