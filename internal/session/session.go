// Package session runs the face verification flow for one admin: open the
// camera, capture, compare with the reference photo, record evidence and
// hand out an access token.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/facegate/internal/apperr"
	"github.com/your-org/facegate/internal/camera"
	"github.com/your-org/facegate/internal/match"
	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/internal/observability"
	"github.com/your-org/facegate/internal/token"
	"github.com/your-org/facegate/internal/vision"
)

var (
	ErrBusy         = errors.New("verification already in progress")
	ErrNotReady     = errors.New("camera is not ready")
	ErrNotPush      = errors.New("session does not accept pushed frames")
	ErrSessionEnded = errors.New("session has ended")
)

const captureEndedMessage = "Camera unavailable: capture ended"

type AdminLookup interface {
	GetAdminUser(ctx context.Context, id uuid.UUID) (*models.AdminUser, error)
}

type ReferenceLoader interface {
	Load(ctx context.Context, rawURL string) ([]byte, error)
}

type EvidenceRecorder interface {
	Record(ctx context.Context, userID uuid.UUID, status models.LoginStatus, still image.Image) (*models.LoginLogEntry, error)
}

type TokenIssuer interface {
	Issue(userID, logID uuid.UUID, method token.Method) (string, time.Time, error)
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, evt models.Event) error
}

// Deps are the shared clients a session works with.
type Deps struct {
	Engine     vision.Engine
	Admins     AdminLookup
	References ReferenceLoader
	Evidence   EvidenceRecorder
	Tokens     TokenIssuer
	Events     EventPublisher
}

type Config struct {
	FallbackDelay time.Duration
	ReadyTimeout  time.Duration
}

// Result is the outcome of one Verify call that reached a decision.
type Result struct {
	Matched     bool
	Distance    float64
	Score       int
	Status      models.SessionStatus
	Message     string
	LogID       uuid.UUID
	EvidenceURL string
	AccessToken string
	ExpiresAt   time.Time
}

type Session struct {
	deps Deps
	cfg  Config
	cam  *camera.Camera
	push *camera.PushSource

	ctx    context.Context
	cancel context.CancelFunc
	outbox chan models.Event

	mu       sync.Mutex
	state    models.BiometricSession
	fallback *time.Timer
	closed   bool
	onClose  func(uuid.UUID)
}

// New creates a session in the loading state. Call Open to start the
// camera.
func New(userID uuid.UUID, src camera.Source, deps Deps, cfg Config) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		deps:   deps,
		cfg:    cfg,
		cam:    camera.New(src),
		ctx:    ctx,
		cancel: cancel,
		outbox: make(chan models.Event, 32),
		state: models.BiometricSession{
			ID:        uuid.New(),
			Kind:      models.SessionKindFace,
			UserID:    userID,
			Status:    models.SessionStatusLoading,
			Facing:    string(camera.FacingUser),
			CreatedAt: time.Now().UTC(),
		},
	}
	if p, ok := src.(*camera.PushSource); ok {
		s.push = p
	}
	go s.drainEvents()
	return s
}

func (s *Session) ID() uuid.UUID { return s.state.ID }

func (s *Session) UserID() uuid.UUID { return s.state.UserID }

// OnClose registers a hook run once when the session closes.
func (s *Session) OnClose(fn func(uuid.UUID)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = fn
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() models.BiometricSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.state
	if s.state.MatchScore != nil {
		v := *s.state.MatchScore
		snap.MatchScore = &v
	}
	return snap
}

// Open starts the front camera and waits for the first usable frame.
func (s *Session) Open(ctx context.Context) error {
	ctx, stop := s.bind(ctx)
	defer stop()

	s.setState(func(st *models.BiometricSession) {
		st.Status = models.SessionStatusLoading
		st.StatusMessage = "Starting camera"
		st.VideoReady = false
	})

	if err := s.cam.Open(ctx, camera.FacingUser); err != nil {
		s.fail(err)
		return err
	}
	return s.awaitVideo(ctx)
}

func (s *Session) awaitVideo(ctx context.Context) error {
	waitCtx := ctx
	if s.cfg.ReadyTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.cfg.ReadyTimeout)
		defer cancel()
	}
	if err := s.cam.WaitReady(waitCtx); err != nil {
		s.fail(err)
		return err
	}
	s.setState(func(st *models.BiometricSession) {
		st.Status = models.SessionStatusReady
		st.StatusMessage = "Camera ready"
		st.VideoReady = true
		st.Facing = string(s.cam.Facing())
	})
	s.watchCamera(s.cam.Lost())
	return nil
}

// watchCamera moves the session to the error state when the capture ends
// without a deliberate stop. A verification already running reports its
// own outcome.
func (s *Session) watchCamera(lost <-chan struct{}) {
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
		slog.Warn("camera capture ended", "session_id", s.state.ID, "user_id", s.state.UserID)
		s.state.VideoReady = false
		if s.state.Status != models.SessionStatusScanning {
			s.state.Status = models.SessionStatusError
			s.state.StatusMessage = captureEndedMessage
		}
		s.publishLocked(models.EventSessionStatus)
	}()
}

// PushFrame feeds a browser-captured frame into a push session.
func (s *Session) PushFrame(data []byte) error {
	if s.push == nil {
		return ErrNotPush
	}
	return s.push.Push(data)
}

// Switch flips between the front and back camera.
func (s *Session) Switch(ctx context.Context) error {
	ctx, stop := s.bind(ctx)
	defer stop()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	if s.state.Status == models.SessionStatusScanning {
		s.mu.Unlock()
		return ErrBusy
	}
	s.state.VideoReady = false
	s.mu.Unlock()

	facing, err := s.cam.Switch(ctx)
	if err != nil {
		s.fail(err)
		return err
	}
	s.setState(func(st *models.BiometricSession) { st.Facing = string(facing) })
	return s.awaitVideo(ctx)
}

// Verify captures the current frame and compares it with the admin's
// reference photo. A mismatch is a Result, not an error; errors leave the
// session in the error state with a message for the user.
func (s *Session) Verify(ctx context.Context) (*Result, error) {
	ctx, stop := s.bind(ctx)
	defer stop()

	if err := s.beginScan(); err != nil {
		return nil, err
	}

	res, err := s.verify(ctx)
	if err != nil {
		if ctx.Err() != nil && s.ctx.Err() != nil {
			return nil, ErrSessionEnded
		}
		s.fail(err)
		observability.Verifications.WithLabelValues(outcome(err)).Inc()
		return nil, err
	}
	return res, nil
}

func (s *Session) beginScan() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return ErrSessionEnded
	case s.state.Status == models.SessionStatusScanning:
		return ErrBusy
	case s.state.Status != models.SessionStatusReady && s.state.Status != models.SessionStatusError:
		return ErrNotReady
	case !s.cam.Live():
		return ErrNotReady
	}
	s.stopFallbackLocked()
	s.state.Status = models.SessionStatusScanning
	s.state.StatusMessage = "Verifying identity"
	s.state.FallbackOffered = false
	s.publishLocked(models.EventSessionStatus)
	return nil
}

func (s *Session) verify(ctx context.Context) (*Result, error) {
	frame, err := s.cam.Snapshot()
	if err != nil {
		return nil, apperr.New(apperr.KindCameraUnavailable, "", fmt.Errorf("capture frame: %w", err))
	}
	still, err := vision.DecodeImage(frame.Data)
	if err != nil {
		return nil, apperr.New(apperr.KindNoFaceDetected, "", err)
	}

	decision, err := match.Compare(ctx, s.deps.Engine, frame.Data, s.referencePhoto)
	if err != nil {
		return nil, err
	}
	observability.MatchDistance.Observe(decision.Distance)

	res := &Result{Matched: decision.Matched, Distance: decision.Distance, Score: decision.Score}
	if !decision.Matched {
		return s.rejected(ctx, still, res)
	}
	return s.accepted(ctx, still, res)
}

func (s *Session) referencePhoto(ctx context.Context) ([]byte, error) {
	admin, err := s.deps.Admins.GetAdminUser(ctx, s.state.UserID)
	if err != nil {
		return nil, apperr.New(apperr.KindNetworkFailure, "", err)
	}
	if admin == nil {
		return nil, apperr.New(apperr.KindRecordNotFound, "Admin record not found", nil)
	}
	return s.deps.References.Load(ctx, admin.ReferencePhotoURL)
}

func (s *Session) accepted(ctx context.Context, still image.Image, res *Result) (*Result, error) {
	entry, err := s.deps.Evidence.Record(ctx, s.state.UserID, models.LoginStatusSuccess, still)
	if err != nil {
		return nil, err
	}
	if err := s.cam.Stop(); err != nil {
		slog.Warn("stop camera after match", "session_id", s.state.ID, "error", err)
	}
	tok, exp, err := s.deps.Tokens.Issue(s.state.UserID, entry.ID, token.MethodFace)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	res.Status = models.SessionStatusSuccess
	res.Message = fmt.Sprintf("Identity verified (%d%% match)", res.Score)
	res.LogID = entry.ID
	res.EvidenceURL = *entry.CapturedImageURL
	res.AccessToken = tok
	res.ExpiresAt = exp

	s.setState(func(st *models.BiometricSession) {
		st.Status = models.SessionStatusSuccess
		st.StatusMessage = res.Message
		st.VideoReady = false
		st.MatchScore = &res.Score
	})
	observability.Verifications.WithLabelValues("match").Inc()
	slog.Info("admin verified", "session_id", s.state.ID, "user_id", s.state.UserID, "score", res.Score)
	return res, nil
}

func (s *Session) rejected(ctx context.Context, still image.Image, res *Result) (*Result, error) {
	entry, err := s.deps.Evidence.Record(ctx, s.state.UserID, models.LoginStatusFailed, still)
	if err != nil {
		return nil, err
	}

	res.Status = models.SessionStatusError
	res.Message = fmt.Sprintf("Face does not match (%d%% match)", res.Score)
	res.LogID = entry.ID
	res.EvidenceURL = *entry.CapturedImageURL

	s.mu.Lock()
	s.state.Status = models.SessionStatusError
	s.state.StatusMessage = res.Message
	s.state.MatchScore = &res.Score
	s.publishLocked(models.EventSessionStatus)
	s.scheduleFallbackLocked()
	s.mu.Unlock()

	observability.Verifications.WithLabelValues("mismatch").Inc()
	slog.Info("face mismatch", "session_id", s.state.ID, "user_id", s.state.UserID, "score", res.Score)
	return res, nil
}

// scheduleFallbackLocked offers the ID scan after the configured delay
// unless a new attempt starts or the session closes first.
func (s *Session) scheduleFallbackLocked() {
	s.stopFallbackLocked()
	s.fallback = time.AfterFunc(s.cfg.FallbackDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || s.state.Status != models.SessionStatusError {
			return
		}
		s.state.FallbackOffered = true
		s.publishLocked(models.EventFallbackOffered)
	})
}

func (s *Session) stopFallbackLocked() {
	if s.fallback != nil {
		s.fallback.Stop()
		s.fallback = nil
	}
}

// Close cancels in-flight work, releases the camera and deregisters the
// session. It is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopFallbackLocked()
	hook := s.onClose
	s.mu.Unlock()

	s.cancel()
	err := s.cam.Close()
	if hook != nil {
		hook(s.state.ID)
	}
	return err
}

// bind derives a context cancelled by either the caller or Close.
func (s *Session) bind(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Session) setState(fn func(st *models.BiometricSession)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	fn(&s.state)
	s.publishLocked(models.EventSessionStatus)
}

func (s *Session) fail(err error) {
	msg := apperr.MessageOf(err)
	if apperr.KindOf(err) == "" {
		msg = "Verification failed: " + err.Error()
	}
	slog.Warn("verification failed", "session_id", s.state.ID, "user_id", s.state.UserID, "error", err)
	s.setState(func(st *models.BiometricSession) {
		st.Status = models.SessionStatusError
		st.StatusMessage = msg
		st.VideoReady = s.cam.Live()
	})
}

// publishLocked queues an event; a full outbox drops it rather than
// stalling the flow.
func (s *Session) publishLocked(t models.EventType) {
	snap := s.state
	evt := models.Event{
		Type:      t,
		SessionID: &snap.ID,
		UserID:    &snap.UserID,
		Session:   &snap,
		Timestamp: time.Now().UTC(),
	}
	select {
	case s.outbox <- evt:
	default:
		slog.Debug("session event dropped", "session_id", snap.ID, "type", t)
	}
}

// drainEvents publishes in order until the session closes, then flushes
// what is already queued.
func (s *Session) drainEvents() {
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

func (s *Session) publish(evt models.Event) {
	if s.deps.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.deps.Events.PublishEvent(ctx, evt); err != nil {
		slog.Debug("publish session event", "session_id", evt.SessionID, "type", evt.Type, "error", err)
	}
}

func outcome(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindNoFaceDetected:
		return "no_face"
	case apperr.KindInvalidReferenceImage:
		return "invalid_reference"
	case apperr.KindCameraUnavailable:
		return "camera_unavailable"
	case apperr.KindNetworkFailure, apperr.KindRecordNotFound:
		return "lookup_failed"
	}
	return "error"
}
