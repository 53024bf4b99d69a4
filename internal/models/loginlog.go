package models

import (
	"time"

	"github.com/google/uuid"
)

type LoginStatus string

const (
	LoginStatusSuccess LoginStatus = "success"
	LoginStatusFailed  LoginStatus = "failed"
)

func (s LoginStatus) Valid() bool {
	switch s {
	case LoginStatusSuccess, LoginStatusFailed:
		return true
	}
	return false
}

// LoginLogEntry is one row of the admin_login_logs audit table. Rows are
// insert-only apart from LogoutTime, which is set once.
type LoginLogEntry struct {
	ID               uuid.UUID   `json:"id" db:"id"`
	UserID           uuid.UUID   `json:"user_id" db:"user_id"`
	Status           LoginStatus `json:"status" db:"status"`
	CapturedImageURL *string     `json:"captured_image_url" db:"captured_image_url"`
	LoginTime        time.Time   `json:"login_time" db:"login_time"`
	LogoutTime       *time.Time  `json:"logout_time,omitempty" db:"logout_time"`
}

// LoginLogFilter narrows a log listing or export.
type LoginLogFilter struct {
	UserID *uuid.UUID
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}
