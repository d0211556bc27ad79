package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
)

// Memory is an in-process Locker. Each name maps to a one-slot semaphore.
type Memory struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewMemory creates an in-process Locker.
func NewMemory() *Memory {
	return &Memory{slots: make(map[string]chan struct{})}
}

func (m *Memory) slot(name string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.slots[name]
	if !ok {
		ch = make(chan struct{}, 1)
		m.slots[name] = ch
	}
	return ch
}

func (m *Memory) Acquire(ctx context.Context, name string, timeout time.Duration) (Guard, error) {
	ch := m.slot(name)

	select {
	case ch <- struct{}{}:
		return &memoryGuard{ch: ch}, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return &memoryGuard{ch: ch}, nil
	case <-timer.C:
		return nil, eris.Wrapf(ErrTimeout, "lock %q after %s", name, timeout)
	case <-ctx.Done():
		return nil, eris.Wrapf(ctx.Err(), "lock %q", name)
	}
}

type memoryGuard struct {
	once     sync.Once
	ch       chan struct{}
	released atomic.Bool
}

// Held only fails after Release; an in-process slot cannot be taken over.
func (g *memoryGuard) Held(context.Context) error {
	if g.released.Load() {
		return ErrLost
	}
	return nil
}

func (g *memoryGuard) Release() error {
	g.once.Do(func() {
		g.released.Store(true)
		<-g.ch
	})
	return nil
}
