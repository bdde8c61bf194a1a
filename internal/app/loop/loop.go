// Package loop is the single-threaded cooperative event queue. Every piece of
// session state is read and written only from closures running on a Loop, so
// the components built on top of it carry no locks of their own.
package loop

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Loop runs posted closures one at a time, in post order.
type Loop struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
}

func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post enqueues fn. It never blocks and never runs fn inline.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) take() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	batch := l.pending
	l.pending = nil
	return batch
}

// Run drains the queue until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	log.Info().Str("module", "loop").Msg("event loop started")
	for {
		batch := l.take()
		for _, fn := range batch {
			if ctx.Err() != nil {
				break
			}
			run(fn)
		}
		if len(batch) > 0 && ctx.Err() == nil {
			continue
		}
		select {
		case <-ctx.Done():
			log.Info().Str("module", "loop").Msg("event loop stopped")
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "loop").Interface("panic", r).Msg("task panicked")
		}
	}()
	fn()
}
