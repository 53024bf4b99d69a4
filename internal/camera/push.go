package camera

import (
	"context"
	"sync"
)

// PushSource receives frames from a remote client, typically a browser
// streaming its getUserMedia track over a WebSocket. Facing is advisory:
// the client is expected to follow the facing reported by the session.
type PushSource struct {
	mu      sync.Mutex
	latch   *latch
	running bool
}

func NewPushSource() *PushSource {
	return &PushSource{latch: newLatch()}
}

func (p *PushSource) Start(_ context.Context, _ Facing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latch.reset()
	p.running = true
	return nil
}

// Push offers one encoded frame. Frames arriving while stopped are rejected.
func (p *PushSource) Push(data []byte) error {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if !running {
		return ErrStopped
	}
	return p.latch.offer(data)
}

func (p *PushSource) Ready() <-chan struct{} {
	return p.latch.readyCh()
}

func (p *PushSource) Snapshot() (Frame, error) {
	return p.latch.snapshot()
}

func (p *PushSource) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	return nil
}

func (p *PushSource) ActiveTracks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return 1
	}
	return 0
}
