package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/auth"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/pkg/dto"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

type LogStore interface {
	ListLoginLogs(ctx context.Context, f models.LoginLogFilter) ([]models.LoginLogEntry, error)
	CountLoginLogs(ctx context.Context, f models.LoginLogFilter) (int, error)
	SetLogout(ctx context.Context, logID, userID uuid.UUID, at time.Time) error
}

type LogHandler struct {
	store LogStore
	now   func() time.Time
}

func NewLogHandler(store LogStore) *LogHandler {
	return &LogHandler{store: store, now: time.Now}
}

func (h *LogHandler) List(c *gin.Context) {
	var q dto.LoginLogQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err.Error())
		return
	}

	f, err := logFilter(q)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logs, err := h.store.ListLoginLogs(ctx, f)
	if err != nil {
		respondError(c, err)
		return
	}
	total, err := h.store.CountLoginLogs(ctx, f)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := dto.LoginLogListResponse{
		Logs:   make([]dto.LoginLogResponse, 0, len(logs)),
		Total:  total,
		Limit:  f.Limit,
		Offset: f.Offset,
	}
	for _, l := range logs {
		resp.Logs = append(resp.Logs, logToResponse(l))
	}
	c.JSON(http.StatusOK, resp)
}

// Logout closes the login row named by the bearer token. ID scan tokens
// carry no row and only acknowledge.
func (h *LogHandler) Logout(c *gin.Context) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "missing bearer token"})
		return
	}

	at := h.now().UTC()
	resp := dto.LogoutResponse{UserID: claims.UserID, LogoutTime: at.Format(time.RFC3339)}
	if claims.LogID != uuid.Nil {
		if err := h.store.SetLogout(c.Request.Context(), claims.LogID, claims.UserID, at); err != nil {
			respondError(c, err)
			return
		}
		logID := claims.LogID
		resp.LogID = &logID
	}
	c.JSON(http.StatusOK, resp)
}

func logFilter(q dto.LoginLogQuery) (models.LoginLogFilter, error) {
	f := models.LoginLogFilter{Limit: q.Limit, Offset: q.Offset}
	if q.UserID != "" {
		id, err := uuid.Parse(q.UserID)
		if err != nil {
			return f, errors.New("invalid user_id")
		}
		f.UserID = &id
	}
	for _, p := range []struct {
		name, raw string
		dst       **time.Time
	}{{"from", q.From, &f.From}, {"to", q.To, &f.To}} {
		if p.raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, p.raw)
		if err != nil {
			return f, fmt.Errorf("invalid %s: expected RFC 3339", p.name)
		}
		*p.dst = &t
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return f, errors.New("to is before from")
	}

	switch {
	case f.Limit <= 0:
		f.Limit = defaultLogLimit
	case f.Limit > maxLogLimit:
		f.Limit = maxLogLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f, nil
}

func logToResponse(l models.LoginLogEntry) dto.LoginLogResponse {
	resp := dto.LoginLogResponse{
		ID:               l.ID,
		UserID:           l.UserID,
		Status:           string(l.Status),
		CapturedImageURL: l.CapturedImageURL,
		LoginTime:        l.LoginTime.UTC().Format(time.RFC3339),
	}
	if l.LogoutTime != nil {
		s := l.LogoutTime.UTC().Format(time.RFC3339)
		resp.LogoutTime = &s
	}
	return resp
}
