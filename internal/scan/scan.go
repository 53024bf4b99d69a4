// Package scan is the fallback identity check offered after a face
// mismatch: a short scan window followed by a lookup of the admin's ID
// card status.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/apperr"
	"github.com/your-org/facegate/internal/camera"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/token"
)

var (
	ErrBusy     = errors.New("scan already in progress")
	ErrNotReady = errors.New("scanner is not ready")
	ErrEnded    = errors.New("scanner has been closed")
	ErrNotPush  = errors.New("scanner does not accept pushed frames")
)

type AdminLookup interface {
	GetAdminUser(ctx context.Context, id uuid.UUID) (*models.AdminUser, error)
}

type TokenIssuer interface {
	Issue(userID, logID uuid.UUID, method token.Method) (string, time.Time, error)
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, evt models.Event) error
}

type Deps struct {
	Admins AdminLookup
	Tokens TokenIssuer
	Events EventPublisher
}

type Config struct {
	Duration     time.Duration
	ReadyTimeout time.Duration
}

type Result struct {
	Status      models.SessionStatus
	Message     string
	Admin       *models.AdminUser
	AccessToken string
	ExpiresAt   time.Time
}

type Scanner struct {
	deps Deps
	cfg  Config
	cam  *camera.Camera
	push *camera.PushSource

	ctx    context.Context
	cancel context.CancelFunc
	outbox chan models.Event

	mu      sync.Mutex
	state   models.BiometricSession
	closed  bool
	onClose func(uuid.UUID)
}

func New(src camera.Source, deps Deps, cfg Config) *Scanner {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scanner{
		deps:   deps,
		cfg:    cfg,
		cam:    camera.New(src),
		ctx:    ctx,
		cancel: cancel,
		outbox: make(chan models.Event, 16),
		state: models.BiometricSession{
			ID:        uuid.New(),
			Kind:      models.SessionKindScan,
			Status:    models.SessionStatusLoading,
			Facing:    string(camera.FacingEnvironment),
			CreatedAt: time.Now().UTC(),
		},
	}
	if p, ok := src.(*camera.PushSource); ok {
		s.push = p
	}
	go s.drainEvents()
	return s
}

func (s *Scanner) ID() uuid.UUID { return s.state.ID }

func (s *Scanner) OnClose(fn func(uuid.UUID)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = fn
}

func (s *Scanner) Snapshot() models.BiometricSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open starts the rear camera and waits for video.
func (s *Scanner) Open(ctx context.Context) error {
	ctx, stop := s.bind(ctx)
	defer stop()

	if err := s.cam.Open(ctx, camera.FacingEnvironment); err != nil {
		s.set(models.SessionStatusError, apperr.MessageOf(err), false)
		return err
	}

	waitCtx := ctx
	if s.cfg.ReadyTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.cfg.ReadyTimeout)
		defer cancel()
	}
	if err := s.cam.WaitReady(waitCtx); err != nil {
		s.set(models.SessionStatusError, apperr.MessageOf(err), s.cam.Live())
		return err
	}
	s.set(models.SessionStatusReady, "Hold the ID card in front of the camera", true)
	s.watchCamera(s.cam.Lost())
	return nil
}

// watchCamera fails the scanner when the capture ends without a deliberate
// stop.
func (s *Scanner) watchCamera(lost <-chan struct{}) {
	if lost == nil {
		return
	}
	go func() {
		select {
		case <-lost:
		case <-s.ctx.Done():
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || s.state.Status == models.SessionStatusSuccess {
			return
		}
		slog.Warn("scanner capture ended", "scan_id", s.state.ID)
		s.state.VideoReady = false
		if s.state.Status != models.SessionStatusScanning {
			s.state.Status = models.SessionStatusError
			s.state.StatusMessage = "Camera unavailable: capture ended"
		}
		s.publishLocked()
	}()
}

func (s *Scanner) PushFrame(data []byte) error {
	if s.push == nil {
		return ErrNotPush
	}
	return s.push.Push(data)
}

// Trigger runs the scan window and then checks the ID record. Every outcome
// other than an Active record is an error with a message for the user.
func (s *Scanner) Trigger(ctx context.Context, rawID string) (*Result, error) {
	ctx, stop := s.bind(ctx)
	defer stop()

	if err := s.begin(); err != nil {
		return nil, err
	}

	res, err := s.lookup(ctx, rawID)
	if err != nil {
		if s.ctx.Err() != nil {
			return nil, ErrEnded
		}
		s.set(models.SessionStatusError, apperr.MessageOf(err), s.cam.Live())
		outcome := string(apperr.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
		observability.Scans.WithLabelValues(outcome).Inc()
		slog.Info("id scan denied", "scan_id", s.state.ID, "error", err)
		return nil, err
	}
	observability.Scans.WithLabelValues("success").Inc()
	return res, nil
}

func (s *Scanner) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return ErrEnded
	case s.state.Status == models.SessionStatusScanning:
		return ErrBusy
	case s.state.Status != models.SessionStatusReady && s.state.Status != models.SessionStatusError:
		return ErrNotReady
	case !s.cam.Live():
		return ErrNotReady
	}
	s.state.Status = models.SessionStatusScanning
	s.state.StatusMessage = "Scanning ID"
	s.publishLocked()
	return nil
}

func (s *Scanner) lookup(ctx context.Context, rawID string) (*Result, error) {
	timer := time.NewTimer(s.cfg.Duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	rawID = strings.TrimSpace(rawID)
	if rawID == "" {
		return nil, apperr.New(apperr.KindMissingID, "No ID provided", nil)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, apperr.New(apperr.KindRecordNotFound, "ID record not found", err)
	}

	admin, err := s.deps.Admins.GetAdminUser(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperr.New(apperr.KindNetworkFailure, "Network error during ID lookup", err)
	}
	if admin == nil {
		return nil, apperr.New(apperr.KindRecordNotFound, "ID record not found", nil)
	}
	if admin.IDCardStatus != models.IDCardStatusActive {
		return nil, apperr.New(apperr.KindRecordInactive, fmt.Sprintf("ID is %s", admin.IDCardStatus), nil)
	}

	if err := s.cam.Stop(); err != nil {
		slog.Warn("stop scanner camera", "scan_id", s.state.ID, "error", err)
	}
	tok, exp, err := s.deps.Tokens.Issue(admin.ID, uuid.Nil, token.MethodIDScan)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	msg := fmt.Sprintf("ID verified: %s", admin.FullName)
	s.mu.Lock()
	s.state.UserID = admin.ID
	s.mu.Unlock()
	s.set(models.SessionStatusSuccess, msg, false)

	return &Result{
		Status:      models.SessionStatusSuccess,
		Message:     msg,
		Admin:       admin,
		AccessToken: tok,
		ExpiresAt:   exp,
	}, nil
}

// Close stops the camera and deregisters the scanner. It is idempotent.
func (s *Scanner) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	hook := s.onClose
	s.mu.Unlock()

	s.cancel()
	err := s.cam.Close()
	if hook != nil {
		hook(s.state.ID)
	}
	return err
}

func (s *Scanner) bind(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Scanner) set(status models.SessionStatus, msg string, videoReady bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.state.Status = status
	s.state.StatusMessage = msg
	s.state.VideoReady = videoReady
	s.publishLocked()
}

// publishLocked queues a status event, dropping it when the outbox is full.
func (s *Scanner) publishLocked() {
	snap := s.state
	evt := models.Event{
		Type:      models.EventSessionStatus,
		SessionID: &snap.ID,
		Session:   &snap,
		Timestamp: time.Now().UTC(),
	}
	if snap.UserID != uuid.Nil {
		evt.UserID = &snap.UserID
	}
	select {
	case s.outbox <- evt:
	default:
		slog.Debug("scanner event dropped", "scan_id", snap.ID)
	}
}

func (s *Scanner) drainEvents() {
	for {
		select {
		case evt := <-s.outbox:
			s.publish(evt)
		case <-s.ctx.Done():
			for {
				select {
				case evt := <-s.outbox:
					s.publish(evt)
				default:
					return
				}
			}
		}
	}
}

func (s *Scanner) publish(evt models.Event) {
	if s.deps.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.deps.Events.PublishEvent(ctx, evt); err != nil {
		slog.Debug("publish scanner event", "scan_id", evt.SessionID, "error", err)
	}
}
