package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facegate/internal/apperr"
	"github.com/your-org/facegate/internal/scan"
	"github.com/your-org/facegate/internal/session"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/pkg/dto"
)

var stateErrors = []struct {
	err  error
	code int
}{
	{session.ErrNotFound, http.StatusNotFound},
	{session.ErrBusy, http.StatusConflict},
	{scan.ErrBusy, http.StatusConflict},
	{session.ErrNotReady, http.StatusConflict},
	{scan.ErrNotReady, http.StatusConflict},
	{session.ErrSessionEnded, http.StatusGone},
	{scan.ErrEnded, http.StatusGone},
	{session.ErrNotPush, http.StatusBadRequest},
	{scan.ErrNotPush, http.StatusBadRequest},
	{storage.ErrNoOpenLogin, http.StatusConflict},
}

// respondError writes err as {"error", "kind"} with the status its kind maps
// to.
func respondError(c *gin.Context, err error) {
	for _, se := range stateErrors {
		if errors.Is(err, se.err) {
			c.JSON(se.code, dto.ErrorResponse{Error: se.err.Error()})
			return
		}
	}

	kind := apperr.KindOf(err)
	code := apperr.HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "kind", kind, "error", err)
	}
	c.JSON(code, dto.ErrorResponse{Error: apperr.MessageOf(err), Kind: string(kind)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: msg})
}
