package camera

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"sync"
	"time"
)

// latch keeps the most recent valid frame and closes its ready channel on
// the first one.
type latch struct {
	mu     sync.Mutex
	ready  chan struct{}
	closed bool
	last   Frame
	has    bool
}

func newLatch() *latch {
	return &latch{ready: make(chan struct{})}
}

// reset forgets the last frame and re-arms readiness.
func (l *latch) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ready = make(chan struct{})
	l.closed = false
	l.has = false
	l.last = Frame{}
}

// offer accepts data only if it decodes to an image with non-zero size.
func (l *latch) offer(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode frame header: %w", err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return fmt.Errorf("frame has zero dimensions %dx%d", cfg.Width, cfg.Height)
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.last = Frame{Data: buf, Width: cfg.Width, Height: cfg.Height, CapturedAt: time.Now()}
	l.has = true
	if !l.closed {
		close(l.ready)
		l.closed = true
	}
	return nil
}

func (l *latch) readyCh() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}

func (l *latch) snapshot() (Frame, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.has {
		return Frame{}, ErrNotReady
	}
	return l.last, nil
}
