// Package devices tracks local device toggles and which controls the UI shows.
package devices

import (
	"context"
	"time"

	"github.com/dkeye/VoiceAgent/internal/app/loop"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/rs/zerolog/log"
)

// Switcher is the part of the room that turns local tracks on and off.
type Switcher interface {
	SetDeviceEnabled(ctx context.Context, kind domain.DeviceKind, enabled bool) (bool, error)
}

// State holds one toggle per device kind. It is confined to the event loop.
type State struct {
	queue   core.Queue
	room    Switcher
	timeout time.Duration

	epoch    uint64
	toggles  map[domain.DeviceKind]domain.DeviceToggle
	onChange []func()
	onError  func(error)
}

func NewState(q core.Queue, room Switcher) *State {
	return &State{
		queue:   q,
		room:    room,
		timeout: 10 * time.Second,
		toggles: make(map[domain.DeviceKind]domain.DeviceToggle, len(domain.DeviceKinds)),
	}
}

func (s *State) OnChange(fn func()) { s.onChange = append(s.onChange, fn) }

func (s *State) OnError(fn func(error)) { s.onError = fn }

func (s *State) Get(kind domain.DeviceKind) domain.DeviceToggle { return s.toggles[kind] }

// All returns a copy keyed by kind, with every kind present.
func (s *State) All() map[domain.DeviceKind]domain.DeviceToggle {
	out := make(map[domain.DeviceKind]domain.DeviceToggle, len(domain.DeviceKinds))
	for _, k := range domain.DeviceKinds {
		out[k] = s.toggles[k]
	}
	return out
}

// Toggle requests the opposite of the current state. It reports false when a
// previous request for kind is still pending.
func (s *State) Toggle(kind domain.DeviceKind) bool {
	cur := s.toggles[kind]
	if cur.Pending {
		log.Debug().Str("module", "devices").Str("kind", string(kind)).Msg("toggle rejected: pending")
		return false
	}
	prior := cur.Enabled
	s.toggles[kind] = domain.DeviceToggle{Enabled: prior, Pending: true}
	s.changed()

	epoch := s.epoch
	loop.Await(s.queue, func() (bool, error) {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		return s.room.SetDeviceEnabled(ctx, kind, !prior)
	}, func(enabled bool, err error) {
		if epoch != s.epoch {
			log.Debug().Str("module", "devices").Str("kind", string(kind)).Msg("stale toggle result ignored")
			return
		}
		if err != nil {
			s.toggles[kind] = domain.DeviceToggle{Enabled: prior}
			log.Error().Err(err).Str("module", "devices").Str("kind", string(kind)).Msg("toggle failed")
			s.changed()
			if s.onError != nil {
				s.onError(&domain.DeviceError{Kind: kind, Err: err})
			}
			return
		}
		s.toggles[kind] = domain.DeviceToggle{Enabled: enabled}
		log.Info().Str("module", "devices").Str("kind", string(kind)).Bool("enabled", enabled).Msg("device switched")
		s.changed()
	})
	return true
}

// Reset clears every toggle. Results of requests still in flight are ignored.
func (s *State) Reset() {
	s.epoch++
	if len(s.toggles) == 0 {
		return
	}
	clear(s.toggles)
	s.changed()
}

func (s *State) changed() {
	for _, fn := range s.onChange {
		fn()
	}
}
