package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/your-org/facegate/internal/models"
)

type RowSource interface {
	ListLoginLogs(ctx context.Context, f models.LoginLogFilter) ([]models.LoginLogEntry, error)
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, evt models.Event) error
}

// Worker turns queued export jobs into uploaded reports and announces the
// outcome on the event stream.
type Worker struct {
	rows     RowSource
	exporter *Exporter
	events   EventPublisher
}

func NewWorker(rows RowSource, exporter *Exporter, events EventPublisher) *Worker {
	return &Worker{rows: rows, exporter: exporter, events: events}
}

// Process handles one encoded ExportJob. A returned error means the job is
// finished unsuccessfully and must not be redelivered.
func (w *Worker) Process(ctx context.Context, data []byte) error {
	var job models.ExportJob
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("decode export job: %w", err)
	}
	log := slog.With("job_id", job.ID, "key", job.ObjectKey)

	err := w.run(ctx, job)
	evt := models.Event{Type: models.EventExportReady, Export: &job, Timestamp: time.Now().UTC()}
	if err != nil {
		evt.Type = models.EventExportFailed
		evt.Error = err.Error()
		log.Error("export failed", "error", err)
	}
	if perr := w.events.PublishEvent(context.WithoutCancel(ctx), evt); perr != nil {
		log.Warn("publish export outcome", "error", perr)
	}
	return err
}

func (w *Worker) run(ctx context.Context, job models.ExportJob) error {
	rows, err := w.rows.ListLoginLogs(ctx, job.Filter())
	if err != nil {
		return fmt.Errorf("list login logs: %w", err)
	}
	if _, err := w.exporter.Export(ctx, job, rows); err != nil {
		return fmt.Errorf("export %s: %w", job.ID, err)
	}
	return nil
}
