package dto

import (
	"time"

	"github.com/google/uuid"
)

// Camera sources a session can be opened with.
const (
	SourceDevice = "device"
	SourcePush   = "push"
)

type CreateSessionRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
	Source string    `json:"source" binding:"omitempty,oneof=device push"`
}

type SessionResponse struct {
	ID              uuid.UUID `json:"id"`
	Kind            string    `json:"kind"`
	UserID          uuid.UUID `json:"user_id,omitempty"`
	Status          string    `json:"status"`
	StatusMessage   string    `json:"status_message"`
	VideoReady      bool      `json:"video_ready"`
	Facing          string    `json:"facing"`
	FallbackOffered bool      `json:"fallback_offered"`
	MatchScore      *int      `json:"match_score,omitempty"`
	CreatedAt       string    `json:"created_at"`
}

type VerifyResponse struct {
	Matched     bool       `json:"matched"`
	Distance    float64    `json:"distance"`
	Score       int        `json:"score"`
	Status      string     `json:"status"`
	Message     string     `json:"message"`
	LogID       uuid.UUID  `json:"log_id"`
	EvidenceURL string     `json:"evidence_url"`
	AccessToken string     `json:"access_token,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type CreateScanRequest struct {
	Source string `json:"source" binding:"omitempty,oneof=device push"`
}

// TriggerScanRequest carries the ID read from the card. It is validated by
// the scanner so that an empty or malformed ID yields its own message.
type TriggerScanRequest struct {
	UserID string `json:"user_id"`
}

type ScanResultResponse struct {
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	UserID      uuid.UUID `json:"user_id"`
	FullName    string    `json:"full_name"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
