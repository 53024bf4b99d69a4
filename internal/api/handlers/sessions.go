package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/camera"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/session"
	"github.com/your-org/facegate/pkg/dto"
)

// SourceFactory builds the camera source for a new session. kind is
// dto.SourceDevice or dto.SourcePush.
type SourceFactory func(kind string) (camera.Source, error)

type SessionHandler struct {
	sessions *session.Manager
	sources  SourceFactory
	deps     session.Deps
	cfg      session.Config
}

func NewSessionHandler(sessions *session.Manager, sources SourceFactory, deps session.Deps, cfg session.Config) *SessionHandler {
	return &SessionHandler{sessions: sessions, sources: sources, deps: deps, cfg: cfg}
}

// Create registers a session and opens its camera in the background. The
// client follows progress through GET or the event WebSocket.
func (h *SessionHandler) Create(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	src, err := h.sources(req.Source)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	s := session.New(req.UserID, src, h.deps, h.cfg)
	h.sessions.Add(s)
	s.OnClose(h.sessions.Remove)

	go func() {
		if err := s.Open(context.Background()); err != nil {
			slog.Warn("open session camera", "session_id", s.ID(), "error", err)
		}
	}()

	c.JSON(http.StatusCreated, sessionToResponse(s.Snapshot()))
}

type snapshotter interface {
	Snapshot() models.BiometricSession
}

// Get serves face sessions and ID scanners alike.
func (h *SessionHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	e, err := h.sessions.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	snap, ok := e.(snapshotter)
	if !ok {
		respondError(c, session.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, sessionToResponse(snap.Snapshot()))
}

func (h *SessionHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.sessions.Close(id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) Verify(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	res, err := s.Verify(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, verifyToResponse(res))
}

func (h *SessionHandler) Switch(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Switch(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionToResponse(s.Snapshot()))
}

func (h *SessionHandler) session(c *gin.Context) (*session.Session, bool) {
	id, ok := parseID(c)
	if !ok {
		return nil, false
	}
	s, err := h.sessions.Session(id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return s, true
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

// bindOptionalJSON accepts an empty body as the zero request.
func bindOptionalJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return false
	}
	return true
}

func sessionToResponse(s models.BiometricSession) dto.SessionResponse {
	return dto.SessionResponse{
		ID:              s.ID,
		Kind:            string(s.Kind),
		UserID:          s.UserID,
		Status:          string(s.Status),
		StatusMessage:   s.StatusMessage,
		VideoReady:      s.VideoReady,
		Facing:          s.Facing,
		FallbackOffered: s.FallbackOffered,
		MatchScore:      s.MatchScore,
		CreatedAt:       s.CreatedAt.Format(time.RFC3339),
	}
}

func verifyToResponse(r *session.Result) dto.VerifyResponse {
	resp := dto.VerifyResponse{
		Matched:     r.Matched,
		Distance:    r.Distance,
		Score:       r.Score,
		Status:      string(r.Status),
		Message:     r.Message,
		LogID:       r.LogID,
		EvidenceURL: r.EvidenceURL,
		AccessToken: r.AccessToken,
	}
	if !r.ExpiresAt.IsZero() {
		exp := r.ExpiresAt
		resp.ExpiresAt = &exp
	}
	return resp
}
