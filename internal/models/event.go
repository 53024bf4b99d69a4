package models

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventSessionStatus   EventType = "session_status"
	EventFallbackOffered EventType = "fallback_offered"
	EventLoginAttempt    EventType = "login_attempt"
	EventExportReady     EventType = "export_ready"
	EventExportFailed    EventType = "export_failed"
)

// Event is published to NATS and fanned out to dashboard WebSockets.
type Event struct {
	Type      EventType         `json:"type"`
	SessionID *uuid.UUID        `json:"session_id,omitempty"`
	UserID    *uuid.UUID        `json:"user_id,omitempty"`
	Session   *BiometricSession `json:"session,omitempty"`
	Login     *LoginLogEntry    `json:"login,omitempty"`
	Export    *ExportJob        `json:"export,omitempty"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
