package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/audit"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/pkg/dto"
)

type ExportPublisher interface {
	PublishExport(ctx context.Context, job models.ExportJob) error
}

type ExportHandler struct {
	publisher ExportPublisher
	publicURL func(key string) string
}

func NewExportHandler(publisher ExportPublisher, publicURL func(key string) string) *ExportHandler {
	return &ExportHandler{publisher: publisher, publicURL: publicURL}
}

// Create queues a report for the worker. The response already carries the
// URL the report will be available at.
func (h *ExportHandler) Create(c *gin.Context) {
	var req dto.CreateExportRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if req.From != nil && req.To != nil && req.To.Before(*req.From) {
		badRequest(c, "to is before from")
		return
	}

	job := audit.NewJob(req.UserID, req.From, req.To, h.publicURL)
	if err := h.publisher.PublishExport(c.Request.Context(), job); err != nil {
		slog.Error("queue export", "job_id", job.ID, "error", err)
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "export queue unavailable"})
		return
	}

	c.JSON(http.StatusAccepted, dto.ExportAcceptedResponse{
		JobID:     job.ID,
		ObjectKey: job.ObjectKey,
		URL:       job.PublicURL,
	})
}
