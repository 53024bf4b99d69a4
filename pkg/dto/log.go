package dto

import "github.com/google/uuid"

type LoginLogQuery struct {
	UserID string `form:"user_id"`
	From   string `form:"from"`
	To     string `form:"to"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

type LoginLogResponse struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"user_id"`
	Status           string    `json:"status"`
	CapturedImageURL *string   `json:"captured_image_url"`
	LoginTime        string    `json:"login_time"`
	LogoutTime       *string   `json:"logout_time,omitempty"`
}

type LoginLogListResponse struct {
	Logs   []LoginLogResponse `json:"logs"`
	Total  int                `json:"total"`
	Limit  int                `json:"limit"`
	Offset int                `json:"offset"`
}

type LogoutResponse struct {
	UserID     uuid.UUID  `json:"user_id"`
	LogID      *uuid.UUID `json:"log_id,omitempty"`
	LogoutTime string     `json:"logout_time"`
}
