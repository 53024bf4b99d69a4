package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateExportRequest struct {
	UserID *uuid.UUID `json:"user_id,omitempty"`
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
}

type ExportAcceptedResponse struct {
	JobID     uuid.UUID `json:"job_id"`
	ObjectKey string    `json:"object_key"`
	URL       string    `json:"url"`
}
