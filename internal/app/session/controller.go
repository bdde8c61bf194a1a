// Package session owns the session lifecycle: it sequences token fetch,
// connect and disconnect, and resolves races between them and user intent.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/VoiceAgent/internal/app/clock"
	"github.com/dkeye/VoiceAgent/internal/app/guard"
	"github.com/dkeye/VoiceAgent/internal/app/loop"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultConnectTimeout = 200 * time.Second

var ErrRoomLost = errors.New("room disconnected before the session became active")

// Snapshot is the read-only view of the session.
type Snapshot struct {
	State     domain.SessionState `json:"state"`
	Intent    domain.Intent       `json:"intent"`
	AppConfig domain.AppConfig    `json:"appConfig"`
	StartedAt *time.Time          `json:"startedAt,omitempty"`
}

type Options struct {
	ConnectTimeout time.Duration
	AppConfig      domain.AppConfig
}

// Controller is confined to the event loop. Every resume after a blocking
// call re-checks state, intent and the attempt epoch before acting.
type Controller struct {
	queue  core.Queue
	room   core.Room
	tokens core.TokenProvider
	clock  clock.Clock
	guard  *guard.Guard
	opts   Options

	state     domain.SessionState
	intent    domain.Intent
	startedAt *time.Time

	epoch         uint64
	cancel        context.CancelFunc
	inFlight      bool
	disconnecting bool
	sub           core.Subscription

	listeners []func(Snapshot)
	onError   []func(error)
}

func NewController(q core.Queue, room core.Room, tokens core.TokenProvider, c clock.Clock, opts Options) *Controller {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	ctl := &Controller{
		queue:  q,
		room:   room,
		tokens: tokens,
		clock:  c,
		guard:  guard.New(c, q),
		opts:   opts,
	}
	ctl.sub = room.On(ctl.handleRoom)
	return ctl
}

func (c *Controller) OnChange(fn func(Snapshot)) { c.listeners = append(c.listeners, fn) }

// OnError receives ConnectionError and TimeoutError values.
func (c *Controller) OnError(fn func(error)) { c.onError = append(c.onError, fn) }

func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{State: c.state, Intent: c.intent, AppConfig: c.opts.AppConfig}
	if c.startedAt != nil {
		at := *c.startedAt
		s.StartedAt = &at
	}
	return s
}

func (c *Controller) State() domain.SessionState { return c.state }

func (c *Controller) Intent() domain.Intent { return c.intent }

// StartSession starts a session from Idle. While Ending it only records the
// intent; the teardown picks it up when it settles.
func (c *Controller) StartSession() {
	switch c.state {
	case domain.SessionIdle:
		c.begin()
	case domain.SessionEnding:
		if c.intent != domain.IntentStart {
			c.intent = domain.IntentStart
			log.Info().Str("module", "session").Msg("restart requested during teardown")
			c.notify()
		}
	}
}

// EndSession moves an Active or Connecting session to Ending. It does not
// disconnect the room; CompleteEnd does, once the UI has finished its exit.
func (c *Controller) EndSession() {
	switch c.state {
	case domain.SessionActive, domain.SessionConnecting:
		c.guard.Disarm()
		c.intent = domain.IntentEnd
		c.transition(domain.SessionEnding)
		log.Info().Str("module", "session").Bool("connecting", c.inFlight).Msg("session ending")
		c.notify()
	case domain.SessionEnding:
		if c.intent != domain.IntentEnd {
			c.intent = domain.IntentEnd
			c.notify()
		}
	}
}

// CompleteEnd is the exit-complete hook. It is the only place an Active
// session's room gets disconnected.
func (c *Controller) CompleteEnd() {
	if c.state != domain.SessionEnding || c.inFlight || c.disconnecting {
		return
	}
	if c.room.State() == core.StateDisconnected {
		c.settle()
		return
	}
	c.disconnect()
}

// ResumeTeardown is the exit-complete hook when the user restarted during
// the exit. A still-connected room is reused.
func (c *Controller) ResumeTeardown() {
	if c.state != domain.SessionEnding || c.inFlight || c.disconnecting {
		return
	}
	c.settle()
}

// Close detaches from the room and abandons any attempt in flight.
func (c *Controller) Close() {
	c.guard.Disarm()
	c.room.Off(c.sub)
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.epoch++
}

func (c *Controller) begin() {
	c.transition(domain.SessionConnecting)
	c.intent = domain.IntentStart
	c.startedAt = nil
	c.epoch++
	epoch := c.epoch
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.inFlight = true
	c.guard.Arm(c.opts.ConnectTimeout, func() { c.timedOut(epoch) })
	log.Info().Str("module", "session").Uint64("attempt", epoch).Msg("session connecting")
	c.notify()

	cfg := c.opts.AppConfig
	loop.Await(c.queue, func() (domain.ConnectionDetails, error) {
		return c.tokens.FetchConnectionDetails(ctx, cfg)
	}, func(details domain.ConnectionDetails, err error) {
		c.tokenFetched(ctx, epoch, details, err)
	})
}

func (c *Controller) tokenFetched(ctx context.Context, epoch uint64, details domain.ConnectionDetails, err error) {
	if epoch != c.epoch {
		return
	}
	if err != nil {
		c.attemptFailed(&domain.ConnectionError{Op: "fetch connection details", Err: err})
		return
	}
	if c.intent == domain.IntentEnd {
		log.Info().Str("module", "session").Msg("session ended before connect, skipping join")
		c.attemptFailed(nil)
		return
	}
	log.Debug().Str("module", "session").Str("room", string(details.RoomName)).Msg("connection details fetched")
	loop.Await(c.queue, func() (struct{}, error) {
		return struct{}{}, c.room.Connect(ctx, details)
	}, func(_ struct{}, err error) {
		c.connected(epoch, err)
	})
}

func (c *Controller) connected(epoch uint64, err error) {
	if epoch != c.epoch {
		return
	}
	if err != nil {
		var ce *domain.ConnectionError
		if !errors.As(err, &ce) {
			err = &domain.ConnectionError{Op: "connect", Err: err}
		}
		c.attemptFailed(err)
		return
	}
	// The room may have dropped between Connect returning and this resume;
	// its Disconnected event was ignored while Connecting.
	if c.room.State() != core.StateConnected {
		c.attemptFailed(&domain.ConnectionError{Op: "connect", Err: ErrRoomLost})
		return
	}
	c.release()
	switch c.state {
	case domain.SessionConnecting:
		c.activate()
	case domain.SessionEnding:
		if c.intent == domain.IntentStart {
			log.Info().Str("module", "session").Msg("connected after restart, keeping session")
			c.settle()
			return
		}
		log.Info().Str("module", "session").Msg("connected after end, disconnecting")
		c.disconnect()
	}
}

// attemptFailed ends a Connecting attempt. err is surfaced only when the
// user still wanted the session.
func (c *Controller) attemptFailed(err error) {
	c.release()
	c.guard.Disarm()
	if c.state == domain.SessionConnecting {
		if err != nil {
			log.Error().Err(err).Str("module", "session").Msg("session failed to connect")
			c.report(err)
		}
		c.intent = domain.IntentEnd
		c.transition(domain.SessionEnding)
		c.notify()
	} else if err != nil {
		log.Debug().Err(err).Str("module", "session").Msg("abandoned attempt failed")
	}
	c.settle()
}

func (c *Controller) timedOut(epoch uint64) {
	if epoch != c.epoch || c.state != domain.SessionConnecting {
		return
	}
	err := &domain.TimeoutError{After: c.opts.ConnectTimeout}
	log.Error().Err(err).Str("module", "session").Msg("session timed out")
	c.report(err)
	if c.cancel != nil {
		c.cancel()
	}
	c.EndSession()
}

func (c *Controller) disconnect() {
	c.disconnecting = true
	loop.Await(c.queue, func() (struct{}, error) {
		return struct{}{}, c.room.Disconnect()
	}, func(_ struct{}, err error) {
		c.disconnecting = false
		if err != nil {
			log.Warn().Err(err).Str("module", "session").Msg("disconnect failed")
		}
		c.settle()
	})
}

// settle finishes a teardown. A restart requested meanwhile reuses a
// connected room or starts over.
func (c *Controller) settle() {
	if c.state != domain.SessionEnding {
		return
	}
	c.transition(domain.SessionIdle)
	c.startedAt = nil
	log.Info().Str("module", "session").Msg("session idle")
	c.notify()
	if c.intent != domain.IntentStart {
		return
	}
	if c.room.State() == core.StateConnected {
		c.transition(domain.SessionConnecting)
		c.epoch++
		c.notify()
		c.activate()
		return
	}
	c.begin()
}

func (c *Controller) activate() {
	c.guard.Disarm()
	c.transition(domain.SessionActive)
	c.intent = domain.IntentStart
	now := c.clock.Now()
	c.startedAt = &now
	log.Info().Str("module", "session").Time("startedAt", now).Msg("session active")
	c.notify()
}

func (c *Controller) release() {
	c.inFlight = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) handleRoom(ev core.RoomEvent) {
	d, ok := ev.(core.Disconnected)
	if !ok {
		return
	}
	switch {
	case c.state == domain.SessionActive:
		log.Warn().Str("module", "session").Str("reason", d.Reason).Msg("room disconnected unexpectedly")
		c.intent = domain.IntentEnd
		c.transition(domain.SessionEnding)
		c.notify()
		c.settle()
	case c.state == domain.SessionEnding && !c.inFlight && !c.disconnecting:
		log.Info().Str("module", "session").Str("reason", d.Reason).Msg("room disconnected during teardown")
		c.settle()
	}
}

func (c *Controller) transition(to domain.SessionState) {
	if !domain.CanTransition(c.state, to) {
		log.Error().Str("module", "session").Stringer("from", c.state).Stringer("to", to).Msg("illegal transition")
		return
	}
	log.Debug().Str("module", "session").Stringer("from", c.state).Stringer("to", to).Msg("transition")
	c.state = to
}

func (c *Controller) notify() {
	s := c.Snapshot()
	for _, fn := range c.listeners {
		fn(s)
	}
}

func (c *Controller) report(err error) {
	for _, fn := range c.onError {
		fn(err)
	}
}
