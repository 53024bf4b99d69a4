package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type QueuePinger interface {
	Ping() error
}

type SystemHandler struct {
	db    Pinger
	minio Pinger
	queue QueuePinger
}

func NewSystemHandler(db, minio Pinger, queue QueuePinger) *SystemHandler {
	return &SystemHandler{db: db, minio: minio, queue: queue}
}

func (h *SystemHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *SystemHandler) Readyz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	record := func(name string, err error) {
		if err != nil {
			checks[name] = err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}

	record("postgres", h.db.Ping(ctx))
	record("minio", h.minio.Ping(ctx))
	record("nats", h.queue.Ping())

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status": map[bool]string{true: "ready", false: "not ready"}[healthy],
		"checks": checks,
	})
}
