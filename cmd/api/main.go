package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facegate/internal/api"
	"github.com/your-org/facegate/internal/api/ws"
	"github.com/your-org/facegate/internal/camera"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/evidence"
	"github.com/your-org/facegate/internal/fetch"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/queue"
	"github.com/your-org/facegate/internal/reference"
	"github.com/your-org/facegate/internal/retry"
	"github.com/your-org/facegate/internal/scan"
	"github.com/your-org/facegate/internal/session"
	"github.com/your-org/facegate/internal/storage"
	"github.com/your-org/facegate/internal/token"
	"github.com/your-org/facegate/internal/vision"
	"github.com/your-org/facegate/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facegate API", "port", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Postgres
	db, pool, err := storage.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := storage.Migrate(ctx, pool); err != nil {
		slog.Error("migrate database", "error", err)
		os.Exit(1)
	}

	// MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	hub := ws.NewHub()
	go hub.Run(ctx)

	// Fan login and export events out to dashboards
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeEvents(ctx, eventConsumerName(), func(ctx context.Context, msg jetstream.Msg) error {
		var evt models.Event
		if err := json.Unmarshal(msg.Data(), &evt); err != nil {
			slog.Warn("drop malformed event", "subject", msg.Subject(), "error", err)
			return nil
		}
		hub.BroadcastEvent(&evt)
		return nil
	})
	if err != nil {
		slog.Warn("start event consumer", "error", err)
	}

	// Face models
	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	engine, err := vision.NewONNXEngine(cfg.Vision.ModelsDir, cfg.Vision.DetectionThreshold)
	if err != nil {
		slog.Error("load face models", "error", err)
		os.Exit(1)
	}
	defer engine.Close()
	slog.Info("face engine ready")

	refPolicy := retry.Policy{
		Attempts: cfg.Verification.ReferenceAttempts,
		Timeout:  cfg.Verification.ReferenceTimeout,
		Backoff:  250 * time.Millisecond,
	}
	fetcher := fetch.New(&http.Client{}, refPolicy)
	tokens := token.NewManager(cfg.Token.Secret, cfg.Token.TTL)
	sessions := session.NewManager()

	device := camera.DeviceConfig{
		FFmpegPath:  cfg.Camera.FFmpegPath,
		InputFormat: cfg.Camera.InputFormat,
		Devices: map[camera.Facing]string{
			camera.FacingUser:        cfg.Camera.FrontDevice,
			camera.FacingEnvironment: cfg.Camera.BackDevice,
		},
		Width: cfg.Camera.Width,
		FPS:   cfg.Camera.FPS,
	}
	sources := func(kind string) (camera.Source, error) {
		switch kind {
		case "", dto.SourceDevice:
			return camera.NewDeviceSource(device), nil
		case dto.SourcePush:
			return camera.NewPushSource(), nil
		}
		return nil, fmt.Errorf("unknown camera source %q", kind)
	}

	router := api.NewRouter(api.RouterConfig{
		APIKey:   cfg.Server.APIKey,
		DB:       db,
		MinIO:    minioStore,
		Producer: producer,
		Hub:      hub,
		Sessions: sessions,
		Sources:  sources,
		Tokens:   tokens,
		SessionDeps: session.Deps{
			Engine:     engine,
			Admins:     db,
			References: reference.NewLoader(fetcher, minioStore, refPolicy),
			Evidence:   evidence.NewRecorder(minioStore, db, producer),
			Tokens:     tokens,
			Events:     producer,
		},
		SessionConfig: session.Config{
			FallbackDelay: cfg.Verification.FallbackDelay,
			ReadyTimeout:  cfg.Verification.ReadyTimeout,
		},
		ScanDeps: scan.Deps{Admins: db, Tokens: tokens, Events: producer},
		ScanConfig: scan.Config{
			Duration:     cfg.Scan.Duration,
			ReadyTimeout: cfg.Verification.ReadyTimeout,
		},
		PublicURL: minioStore.PublicURL,
	})

	// WriteTimeout is left unset: verification blocks for inference and
	// frame sockets are long-lived.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	sessions.CloseAll()
	cancel()
	consumer.Wait()

	slog.Info("API server stopped")
}

// eventConsumerName gives each API replica its own durable so every
// replica sees every event.
func eventConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "api-events"
	}
	return "api-events-" + host
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}
