// Package camera acquires still frames from a local device or from a
// browser pushing JPEG frames.
package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/your-org/facegate/internal/apperr"
	"github.com/your-org/facegate/internal/observability"
)

// Facing selects which physical camera is used.
type Facing string

const (
	FacingUser        Facing = "user"
	FacingEnvironment Facing = "environment"
)

func (f Facing) Valid() bool {
	return f == FacingUser || f == FacingEnvironment
}

func (f Facing) Opposite() Facing {
	if f == FacingUser {
		return FacingEnvironment
	}
	return FacingUser
}

// Frame is one JPEG still with its decoded dimensions.
type Frame struct {
	Data       []byte
	Width      int
	Height     int
	Facing     Facing
	CapturedAt time.Time
}

var (
	ErrNotReady = errors.New("no frame available yet")
	ErrStopped  = errors.New("camera is stopped")
	ErrClosed   = errors.New("camera is closed")
)

// Source produces frames for one facing at a time.
type Source interface {
	Start(ctx context.Context, facing Facing) error
	Ready() <-chan struct{}
	Snapshot() (Frame, error)
	Stop() error
	ActiveTracks() int
}

// exiter is implemented by sources whose capture can end without Stop,
// such as a crashed process or an unplugged device.
type exiter interface {
	Done() <-chan struct{}
}

// Camera owns a Source for the lifetime of one session.
type Camera struct {
	mu     sync.Mutex
	src    Source
	facing Facing
	tracks int
	closed bool

	// gen changes on every deliberate start or stop so a watcher can tell
	// its capture was replaced.
	gen  uint64
	lost chan struct{}
}

func New(src Source) *Camera {
	return &Camera{src: src}
}

// Open starts the source with the requested facing. Any failure is reported
// as CameraUnavailable; there is no automatic retry.
func (c *Camera) Open(ctx context.Context, facing Facing) error {
	if !facing.Valid() {
		return fmt.Errorf("invalid facing %q", facing)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return c.startLocked(ctx, facing)
}

func (c *Camera) startLocked(ctx context.Context, facing Facing) error {
	c.gen++
	err := c.src.Start(ctx, facing)
	c.syncTracksLocked()
	if err != nil {
		return unavailable(err)
	}
	c.facing = facing
	c.lost = nil
	if ex, ok := c.src.(exiter); ok {
		if done := ex.Done(); done != nil {
			c.lost = make(chan struct{})
			go c.watch(c.gen, done, c.lost)
		}
	}
	return nil
}

// watch closes lost when the capture started at gen ends while still
// current.
func (c *Camera) watch(gen uint64, done <-chan struct{}, lost chan struct{}) {
	<-done
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || c.closed {
		return
	}
	c.syncTracksLocked()
	close(lost)
}

// Lost returns a channel closed when the current capture ends on its own.
// Deliberate Stop, Switch and Close never close it. It is nil for sources
// that cannot end by themselves.
func (c *Camera) Lost() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lost
}

// WaitReady blocks until the source has produced a frame with non-zero
// dimensions or ctx ends.
func (c *Camera) WaitReady(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	ready := c.src.Ready()
	c.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return unavailable(errors.New("no video frames before timeout"))
		}
		return ctx.Err()
	}
}

// Snapshot returns the latest frame.
func (c *Camera) Snapshot() (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Frame{}, ErrClosed
	}
	c.syncTracksLocked()
	if c.tracks == 0 {
		return Frame{}, ErrStopped
	}
	f, err := c.src.Snapshot()
	if err != nil {
		return Frame{}, err
	}
	f.Facing = c.facing
	return f, nil
}

// Switch stops the current track before starting the opposite facing, so
// two devices are never held at once.
func (c *Camera) Switch(ctx context.Context) (Facing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrClosed
	}
	next := c.facing.Opposite()
	c.gen++
	if err := c.src.Stop(); err != nil {
		c.syncTracksLocked()
		return c.facing, fmt.Errorf("stop %s camera: %w", c.facing, err)
	}
	c.syncTracksLocked()
	if err := c.startLocked(ctx, next); err != nil {
		return c.facing, err
	}
	return next, nil
}

// Stop releases the device but leaves the camera reusable through Open.
func (c *Camera) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	err := c.src.Stop()
	c.syncTracksLocked()
	return err
}

// Close stops every track. It is safe to call more than once.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.gen++
	err := c.src.Stop()
	c.syncTracksLocked()
	return err
}

func (c *Camera) Facing() Facing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.facing
}

func (c *Camera) ActiveTracks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.src.ActiveTracks()
}

func (c *Camera) Live() bool {
	return c.ActiveTracks() > 0
}

// syncTracksLocked folds this camera's change in track count into the
// process-wide gauge.
func (c *Camera) syncTracksLocked() {
	n := c.src.ActiveTracks()
	if d := n - c.tracks; d != 0 {
		observability.CameraActiveTracks.Add(float64(d))
	}
	c.tracks = n
}

func unavailable(err error) error {
	if apperr.KindOf(err) == apperr.KindCameraUnavailable {
		return err
	}
	return apperr.New(apperr.KindCameraUnavailable, "Camera unavailable: "+err.Error(), err)
}
