package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/scan"
	"github.com/your-org/facegate/internal/session"
	"github.com/your-org/facegate/pkg/dto"
)

type ScanHandler struct {
	sessions *session.Manager
	sources  SourceFactory
	deps     scan.Deps
	cfg      scan.Config
}

func NewScanHandler(sessions *session.Manager, sources SourceFactory, deps scan.Deps, cfg scan.Config) *ScanHandler {
	return &ScanHandler{sessions: sessions, sources: sources, deps: deps, cfg: cfg}
}

func (h *ScanHandler) Create(c *gin.Context) {
	var req dto.CreateScanRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	src, err := h.sources(req.Source)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	sc := scan.New(src, h.deps, h.cfg)
	h.sessions.Add(sc)
	sc.OnClose(h.sessions.Remove)

	go func() {
		if err := sc.Open(context.Background()); err != nil {
			slog.Warn("open scanner camera", "scan_id", sc.ID(), "error", err)
		}
	}()

	c.JSON(http.StatusCreated, sessionToResponse(sc.Snapshot()))
}

func (h *ScanHandler) Trigger(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	e, err := h.sessions.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	sc, ok := e.(*scan.Scanner)
	if !ok {
		respondError(c, session.ErrNotFound)
		return
	}

	var req dto.TriggerScanRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	res, err := sc.Trigger(c.Request.Context(), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ScanResultResponse{
		Status:      string(res.Status),
		Message:     res.Message,
		UserID:      res.Admin.ID,
		FullName:    res.Admin.FullName,
		AccessToken: res.AccessToken,
		ExpiresAt:   res.ExpiresAt,
	})
}
