package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/retry"
)

const (
	LoginsStreamName  = "LOGINS"
	LoginsSubjectBase = "logins"
	ExportsStreamName = "EXPORTS"
	ExportsSubject    = "exports.jobs"
)

// jetStream is the part of jetstream.JetStream the producer uses.
type jetStream interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
	CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
}

type Producer struct {
	nc *nats.Conn
	js jetStream
}

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

func streamConfigs() []jetstream.StreamConfig {
	return []jetstream.StreamConfig{
		{
			Name:        LoginsStreamName,
			Subjects:    []string{LoginsSubjectBase + ".>"},
			Retention:   jetstream.InterestPolicy,
			MaxAge:      24 * time.Hour,
			MaxMsgs:     1000000,
			Storage:     jetstream.FileStorage,
			Description: "Login attempts and session status events",
		},
		{
			Name:        ExportsStreamName,
			Subjects:    []string{ExportsSubject},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      time.Hour,
			MaxMsgs:     10000,
			Storage:     jetstream.FileStorage,
			Discard:     jetstream.DiscardOld,
			Duplicates:  5 * time.Minute,
			Description: "Audit export jobs",
		},
	}
}

// ensurePolicy rides out NATS starting after us.
var ensurePolicy = retry.Policy{Attempts: 30, Timeout: 5 * time.Second, Backoff: 250 * time.Millisecond, MaxBackoff: 2 * time.Second}

// EnsureStreams creates or updates both streams.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	for _, cfg := range streamConfigs() {
		err := retry.Do(ctx, ensurePolicy, func(ctx context.Context) error {
			_, err := p.js.CreateOrUpdateStream(ctx, cfg)
			if err != nil {
				slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "error", err)
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		slog.Info("ensured NATS stream", "name", cfg.Name)
	}
	return nil
}

// EventSubject routes an event under the user it concerns.
func EventSubject(evt models.Event) string {
	if evt.UserID != nil {
		return LoginsSubjectBase + "." + evt.UserID.String()
	}
	return LoginsSubjectBase + ".system"
}

// PublishEvent publishes to the LOGINS stream.
func (p *Producer) PublishEvent(ctx context.Context, evt models.Event) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := p.js.Publish(ctx, EventSubject(evt), payload); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// PublishExport enqueues a job. The job id doubles as the message id so a
// resubmitted request within the dedupe window is dropped.
func (p *Producer) PublishExport(ctx context.Context, job models.ExportJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal export job: %w", err)
	}
	if _, err := p.js.Publish(ctx, ExportsSubject, payload, jetstream.WithMsgID(job.ID.String())); err != nil {
		return fmt.Errorf("publish export job: %w", err)
	}
	return nil
}

// QueueDepth returns the number of pending export jobs.
func (p *Producer) QueueDepth(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, ExportsStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if p.nc == nil || !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
