package store

import (
	"context"
	"sync"
)

// Gate is a single-shot latch. It starts closed and, once opened, stays open.
type Gate struct {
	once sync.Once
	ch   chan struct{}
}

// GateMake returns a closed gate.
func GateMake() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Open releases all current and future waiters. Only the first call has effect.
func (g *Gate) Open() {
	g.once.Do(func() { close(g.ch) })
}

// IsOpen reports whether Open has been called.
func (g *Gate) IsOpen() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until the gate opens or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	select {
	case <-g.ch:
		return nil
	default:
	}
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
