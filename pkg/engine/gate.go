package engine

import (
	"context"
	"sync"
)

// Gate blocks dispatch while a scan is paused. The zero value is not usable;
// call NewGate.
type Gate struct {
	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func NewGate() *Gate {
	ch := make(chan struct{})
	close(ch)
	return &Gate{resume: ch}
}

// Pause closes the gate. It reports false if the gate was already closed.
func (g *Gate) Pause() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.paused {
		return false
	}
	g.paused = true
	g.resume = make(chan struct{})
	return true
}

// Resume opens the gate and releases every waiter.
func (g *Gate) Resume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.paused {
		return false
	}
	g.paused = false
	close(g.resume)
	return true
}

func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Wait returns once the gate is open or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	ch := g.resume
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
