// Package guard implements the connection-establishment deadline.
package guard

import (
	"time"

	"github.com/dkeye/VoiceAgent/internal/app/clock"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/rs/zerolog/log"
)

// Guard is a one-shot, cancellable deadline. It is confined to the event loop
// except for the timer callback, which only posts.
type Guard struct {
	clock clock.Clock
	queue core.Queue

	gen   uint64
	armed bool
	timer clock.Timer
}

func New(c clock.Clock, q core.Queue) *Guard {
	return &Guard{clock: c, queue: q}
}

// Arm replaces any pending deadline. onFire runs on the loop at most once,
// and never after a Disarm or a later Arm.
func (g *Guard) Arm(deadline time.Duration, onFire func()) {
	g.stop()
	g.gen++
	g.armed = true
	gen := g.gen
	g.timer = g.clock.AfterFunc(deadline, func() {
		g.queue.Post(func() {
			if !g.armed || g.gen != gen {
				return
			}
			g.armed = false
			g.timer = nil
			log.Warn().Str("module", "guard").Dur("deadline", deadline).Msg("deadline reached")
			onFire()
		})
	})
	log.Debug().Str("module", "guard").Dur("deadline", deadline).Msg("armed")
}

// Disarm is idempotent. A fire already queued on the loop is discarded.
func (g *Guard) Disarm() {
	if !g.armed {
		return
	}
	g.stop()
	g.gen++
	log.Debug().Str("module", "guard").Msg("disarmed")
}

func (g *Guard) Armed() bool { return g.armed }

func (g *Guard) stop() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.armed = false
}
