package engine

import (
	"context"
	"errors"
	"fmt"
)

// ErrLocked signals a concurrent mutation is already in flight for this channel.
var ErrLocked = errors.New("channel locked")

// gate is a 1-token semaphore serialising writers of one channel.
type gate struct{ ch chan struct{} }

func newGate() *gate {
	g := &gate{ch: make(chan struct{}, 1)}
	g.ch <- struct{}{} // token present => unlocked
	return g
}

// Lock waits for the token or ctx. A free gate is taken even when ctx is done.
func (g *gate) Lock(ctx context.Context) error {
	if g.TryLock() {
		return nil
	}
	select {
	case <-g.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) TryLock() bool {
	select {
	case <-g.ch:
		return true
	default:
		return false
	}
}

func (g *gate) Unlock() {
	select {
	case g.ch <- struct{}{}:
	default:
		panic("unlock of unlocked gate")
	}
}

// acquire takes the writer gate of channel id. With fail-fast enabled (or
// when wait is false) a held gate yields ErrLocked instead of blocking.
// The returned unlock func is always safe to call.
func (m *Manager) acquire(ctx context.Context, id string, wait bool) (*entry, func(), error) {
	e, err := m.entry(id)
	if err != nil {
		return nil, func() {}, err
	}

	if !wait || m.failFast {
		if !e.gate.TryLock() {
			return nil, func() {}, fmt.Errorf("channel %s: %w", id, ErrLocked)
		}
	} else if err := e.gate.Lock(ctx); err != nil {
		return nil, func() {}, fmt.Errorf("channel %s: lock: %w", id, err)
	}

	// the channel may have been deleted while we waited
	if e.deleted {
		e.gate.Unlock()
		return nil, func() {}, fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}
	return e, e.gate.Unlock, nil
}
