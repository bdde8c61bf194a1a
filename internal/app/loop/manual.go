package loop

import (
	"sync"
	"time"
)

// Manual is a Queue driven by the caller, for deterministic tests.
type Manual struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
}

func NewManual() *Manual {
	return &Manual{wake: make(chan struct{}, 1)}
}

func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	m.pending = append(m.pending, fn)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// RunPending runs queued closures, including ones they post, until empty.
func (m *Manual) RunPending() int {
	n := 0
	for {
		m.mu.Lock()
		batch := m.pending
		m.pending = nil
		m.mu.Unlock()
		if len(batch) == 0 {
			return n
		}
		for _, fn := range batch {
			fn()
			n++
		}
	}
}

// Step waits up to timeout for work posted from another goroutine and then
// runs everything pending. It reports whether anything ran.
func (m *Manual) Step(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if m.RunPending() > 0 {
			return true
		}
		select {
		case <-m.wake:
		case <-deadline:
			return m.RunPending() > 0
		}
	}
}
