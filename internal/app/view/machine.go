// Package view decides which top-level view the UI renders and when the
// exit transition of the session view is over.
package view

import (
	"time"

	"github.com/dkeye/VoiceAgent/internal/app/clock"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultExitAnimation = 500 * time.Millisecond

type View int

const (
	Welcome View = iota
	Session
)

func (v View) String() string {
	if v == Session {
		return "session"
	}
	return "welcome"
}

func (v View) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// Teardown is what the machine drives when an exit transition completes.
type Teardown interface {
	Intent() domain.Intent
	CompleteEnd()
	ResumeTeardown()
}

// Rendered is what the UI shows. Exiting means the session view is playing
// its exit transition.
type Rendered struct {
	View    View `json:"view"`
	Exiting bool `json:"exiting"`
}

// Machine is confined to the event loop. What to render is decided when a
// transition starts; what to do about the session is decided when it ends.
type Machine struct {
	clock    clock.Clock
	queue    core.Queue
	session  Teardown
	exitTime time.Duration

	cur      Rendered
	gen      uint64
	timer    clock.Timer
	onChange []func(Rendered)
}

func NewMachine(c clock.Clock, q core.Queue, session Teardown, exitTime time.Duration) *Machine {
	if exitTime <= 0 {
		exitTime = DefaultExitAnimation
	}
	return &Machine{clock: c, queue: q, session: session, exitTime: exitTime}
}

func (m *Machine) OnChange(fn func(Rendered)) { m.onChange = append(m.onChange, fn) }

func (m *Machine) Rendered() Rendered { return m.cur }

// Observe feeds the latest intent into the machine.
func (m *Machine) Observe(intent domain.Intent) {
	switch {
	case intent == domain.IntentStart && m.cur.View == Welcome:
		m.render(Rendered{View: Session})
	case intent == domain.IntentEnd && m.cur.View == Session && !m.cur.Exiting:
		m.beginExit()
	}
}

// AnimationComplete is reported by the UI when the exit animation finished.
// It and the exit timer race; only the first one counts.
func (m *Machine) AnimationComplete() {
	if !m.cur.Exiting {
		return
	}
	m.complete(m.gen)
}

func (m *Machine) beginExit() {
	m.gen++
	gen := m.gen
	m.render(Rendered{View: Session, Exiting: true})
	m.timer = m.clock.AfterFunc(m.exitTime, func() {
		m.queue.Post(func() { m.complete(gen) })
	})
	log.Debug().Str("module", "view").Dur("after", m.exitTime).Msg("exit started")
}

func (m *Machine) complete(gen uint64) {
	if !m.cur.Exiting || gen != m.gen {
		return
	}
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.session.Intent() == domain.IntentStart {
		log.Info().Str("module", "view").Msg("exit completed after restart, keeping session")
		m.render(Rendered{View: Session})
		m.session.ResumeTeardown()
		return
	}
	m.render(Rendered{View: Welcome})
	m.session.CompleteEnd()
	log.Debug().Str("module", "view").Msg("exit completed")
}

func (m *Machine) render(r Rendered) {
	if r == m.cur {
		return
	}
	m.cur = r
	for _, fn := range m.onChange {
		fn(r)
	}
}
