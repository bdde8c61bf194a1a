// Package room implements core.Room on top of websocket signaling and a
// pion PeerConnection.
package room

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/VoiceAgent/internal/adapters/rtc"
	"github.com/dkeye/VoiceAgent/internal/adapters/signal"
	"github.com/dkeye/VoiceAgent/internal/app/bus"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// MediaFactory builds the media connection for one join.
type MediaFactory func(cfg webrtc.Configuration, id string) (core.MediaConnection, error)

type Options struct {
	ICEServers []string
	Signal     signal.Options
	Sources    map[domain.DeviceKind]rtc.Source
	NewMedia   MediaFactory
}

func defaultMedia(cfg webrtc.Configuration, id string) (core.MediaConnection, error) {
	return rtc.NewConnection(cfg, id)
}

// Room delivers its events by posting onto the event queue. On and Off must
// be called on that queue; everything else is safe from any goroutine.
type Room struct {
	queue     core.Queue
	bus       *bus.Bus
	opts      Options
	publisher *rtc.Publisher
	roster    *roster

	mu    sync.Mutex
	state core.ConnectionState
	perms domain.Permissions
	local domain.Participant
	cur   *attempt
}

var _ core.Room = (*Room)(nil)

func New(q core.Queue, opts Options) *Room {
	if opts.NewMedia == nil {
		opts.NewMedia = defaultMedia
	}
	return &Room{
		queue:     q,
		bus:       bus.New(),
		opts:      opts,
		publisher: rtc.NewPublisher(opts.Sources),
		roster:    newRoster(),
		perms:     domain.AllPermissions(),
	}
}

func (r *Room) On(h core.Handler) core.Subscription { return r.bus.On(h) }

func (r *Room) Off(sub core.Subscription) { r.bus.Off(sub) }

func (r *Room) State() core.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Room) Permissions() domain.Permissions {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.perms
}

// Local is the participant this client joined as.
func (r *Room) Local() domain.Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.local
}

// Connect joins the room and blocks until the media path is ready, the
// server rejects the join, or ctx ends.
func (r *Room) Connect(ctx context.Context, details domain.ConnectionDetails) error {
	r.mu.Lock()
	if r.state != core.StateDisconnected {
		state := r.state
		r.mu.Unlock()
		return &domain.ConnectionError{Op: "connect", Err: fmt.Errorf("room is %s", state)}
	}
	a := newAttempt(r)
	r.cur = a
	r.state = core.StateConnecting
	r.mu.Unlock()

	logger := log.With().Str("module", "room").Str("room", string(details.RoomName)).Logger()
	logger.Info().Str("server", details.ServerURL).Msg("connecting")

	if err := a.run(ctx, details); err != nil {
		r.abandon(a)
		logger.Error().Err(err).Msg("connect failed")
		return &domain.ConnectionError{Op: "connect", Err: err}
	}

	r.mu.Lock()
	if r.cur != a {
		r.mu.Unlock()
		a.close()
		return &domain.ConnectionError{Op: "connect", Err: signal.ErrClosed}
	}
	r.state = core.StateConnected
	perms := r.perms
	r.mu.Unlock()

	logger.Info().Msg("connected")
	r.emit(core.Connected{})
	r.emit(core.PermissionsChanged{Permissions: perms})
	r.emit(core.ParticipantsChanged{Remote: r.roster.Remote()})
	return nil
}

// Disconnect leaves the room. It is a no-op when not connected.
func (r *Room) Disconnect() error {
	r.mu.Lock()
	a := r.cur
	r.cur = nil
	r.state = core.StateDisconnected
	r.perms = domain.AllPermissions()
	r.mu.Unlock()
	if a == nil {
		return nil
	}

	if err := a.sig.SendLeave(); err != nil {
		log.Debug().Err(err).Str("module", "room").Msg("leave not sent")
	}
	a.close()
	r.cleanup()
	log.Info().Str("module", "room").Msg("disconnected")
	r.emit(core.Disconnected{Reason: "client initiated"})
	return nil
}

func (r *Room) PublishData(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	a, state, local := r.cur, r.state, r.local
	r.mu.Unlock()
	if state != core.StateConnected || a == nil {
		return domain.ErrNotConnected
	}
	b, err := encodeFrame(frame{Topic: topic, From: &local, Kind: core.PacketReliable, Payload: payload})
	if err != nil {
		return err
	}
	if err := a.media.SendData(b); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	log.Debug().Str("module", "room").Str("topic", topic).Int("bytes", len(payload)).Msg("data published")
	return nil
}

func (r *Room) SetDeviceEnabled(ctx context.Context, kind domain.DeviceKind, enabled bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	a, state, perms := r.cur, r.state, r.perms
	r.mu.Unlock()
	if state != core.StateConnected || a == nil {
		return false, domain.ErrNotConnected
	}
	if enabled && !permitted(perms, kind) {
		return false, fmt.Errorf("%s not permitted: %w", kind, domain.ErrDeviceUnavailable)
	}
	got, err := r.publisher.SetEnabled(kind, enabled)
	if err != nil {
		return false, err
	}
	if err := a.sig.SendMute(kind, !got); err != nil {
		log.Warn().Err(err).Str("module", "room").Str("kind", string(kind)).Msg("mute not signalled")
	}
	return got, nil
}

func permitted(p domain.Permissions, kind domain.DeviceKind) bool {
	switch kind {
	case domain.DeviceMicrophone:
		return p.Microphone
	case domain.DeviceCamera:
		return p.Camera
	case domain.DeviceScreenShare:
		return p.ScreenShare
	}
	return false
}

func (r *Room) emit(ev core.RoomEvent) {
	r.queue.Post(func() { r.bus.Publish(ev) })
}

func (r *Room) isCurrent(a *attempt) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur == a
}

func (r *Room) connected(a *attempt) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur == a && r.state == core.StateConnected
}

// abandon rolls back a failed Connect.
func (r *Room) abandon(a *attempt) {
	a.close()
	r.mu.Lock()
	if r.cur == a {
		r.cur = nil
		r.state = core.StateDisconnected
		r.perms = domain.AllPermissions()
	}
	r.mu.Unlock()
	r.cleanup()
}

// dropped handles a connection lost without Disconnect being called.
func (r *Room) dropped(a *attempt, reason string) {
	r.mu.Lock()
	if r.cur != a || r.state != core.StateConnected {
		r.mu.Unlock()
		return
	}
	r.cur = nil
	r.state = core.StateDisconnected
	r.perms = domain.AllPermissions()
	r.mu.Unlock()

	a.close()
	r.cleanup()
	log.Warn().Str("module", "room").Str("reason", reason).Msg("connection lost")
	r.emit(core.Disconnected{Reason: reason})
}

func (r *Room) cleanup() {
	r.publisher.Detach()
	r.roster.Reset()
}

func (r *Room) setLocal(p domain.Participant) {
	p.IsLocal = true
	r.mu.Lock()
	r.local = p
	r.mu.Unlock()
	r.roster.SetLocal(p.Identity)
}

func (r *Room) setPermissions(p domain.Permissions) {
	r.mu.Lock()
	r.perms = p
	r.mu.Unlock()
}

func (r *Room) onData(a *attempt, b []byte) {
	if !r.connected(a) {
		return
	}
	f, err := decodeFrame(b)
	if err != nil {
		log.Warn().Err(err).Str("module", "room").Msg("frame dropped")
		return
	}
	ev := core.DataReceived{Payload: f.Payload, Kind: f.Kind, Topic: f.Topic}
	if f.From != nil {
		p, ok := r.roster.Get(f.From.Identity)
		if !ok {
			p = *f.From
			p.IsLocal = false
		}
		ev.Participant = &p
	}
	log.Debug().Str("module", "room").Str("topic", f.Topic).Int("bytes", len(f.Payload)).Msg("data received")
	r.emit(ev)
}
