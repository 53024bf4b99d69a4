package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facegate/internal/api/handlers"
	"github.com/your-org/facegate/internal/api/ws"
	"github.com/your-org/facegate/internal/auth"
	"github.com/your-org/facegate/internal/scan"
	"github.com/your-org/facegate/internal/session"
)

// Store is the Postgres surface the API reads and writes.
type Store interface {
	handlers.Pinger
	handlers.LogStore
}

type RouterConfig struct {
	APIKey   string
	DB       Store
	MinIO    handlers.Pinger
	Producer interface {
		handlers.QueuePinger
		handlers.ExportPublisher
	}
	Hub      *ws.Hub
	Sessions *session.Manager
	Sources  handlers.SourceFactory
	Tokens   auth.TokenParser

	SessionDeps   session.Deps
	SessionConfig session.Config
	ScanDeps      scan.Deps
	ScanConfig    scan.Config

	// PublicURL maps an object key to its public address.
	PublicURL func(key string) string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.New(corsConfig()))

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	v1.GET("/ws", cfg.Hub.HandleWS)

	// Face verification sessions
	sessionH := handlers.NewSessionHandler(cfg.Sessions, cfg.Sources, cfg.SessionDeps, cfg.SessionConfig)
	v1.POST("/sessions", sessionH.Create)
	v1.GET("/sessions/:id", sessionH.Get)
	v1.DELETE("/sessions/:id", sessionH.Delete)
	v1.GET("/sessions/:id/frames", sessionH.Frames)
	v1.POST("/sessions/:id/verify", sessionH.Verify)
	v1.POST("/sessions/:id/switch", sessionH.Switch)

	// Fallback ID scans share the session registry
	scanH := handlers.NewScanHandler(cfg.Sessions, cfg.Sources, cfg.ScanDeps, cfg.ScanConfig)
	v1.POST("/scans", scanH.Create)
	v1.GET("/scans/:id", sessionH.Get)
	v1.DELETE("/scans/:id", sessionH.Delete)
	v1.GET("/scans/:id/frames", sessionH.Frames)
	v1.POST("/scans/:id/trigger", scanH.Trigger)

	// Audit trail
	logH := handlers.NewLogHandler(cfg.DB)
	v1.GET("/logs", logH.List)
	v1.POST("/logout", auth.BearerMiddleware(cfg.Tokens), logH.Logout)

	exportH := handlers.NewExportHandler(cfg.Producer, cfg.PublicURL)
	v1.POST("/exports", exportH.Create)

	return r
}

func corsConfig() cors.Config {
	c := cors.DefaultConfig()
	c.AllowAllOrigins = true
	c.AllowHeaders = append(c.AllowHeaders, "Authorization", "X-API-Key")
	return c
}
