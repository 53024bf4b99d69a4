package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionStatusLoading  SessionStatus = "loading"
	SessionStatusReady    SessionStatus = "ready"
	SessionStatusScanning SessionStatus = "scanning"
	SessionStatusSuccess  SessionStatus = "success"
	SessionStatusError    SessionStatus = "error"
)

func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusLoading, SessionStatusReady, SessionStatusScanning, SessionStatusSuccess, SessionStatusError:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are expected.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusSuccess
}

type SessionKind string

const (
	SessionKindFace SessionKind = "face"
	SessionKindScan SessionKind = "scan"
)

// BiometricSession is the in-memory state of one open verification UI.
type BiometricSession struct {
	ID              uuid.UUID     `json:"id"`
	Kind            SessionKind   `json:"kind"`
	UserID          uuid.UUID     `json:"user_id"`
	Status          SessionStatus `json:"status"`
	StatusMessage   string        `json:"status_message"`
	VideoReady      bool          `json:"video_ready"`
	Facing          string        `json:"facing"`
	FallbackOffered bool          `json:"fallback_offered"`
	MatchScore      *int          `json:"match_score,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}
