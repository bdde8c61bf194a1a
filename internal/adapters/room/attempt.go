package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceAgent/internal/adapters/rtc"
	"github.com/dkeye/VoiceAgent/internal/adapters/signal"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// attempt is one join: a signaling client plus a media connection. Its
// callbacks are ignored once the room has moved on to another attempt.
type attempt struct {
	room   *Room
	ctx    context.Context
	cancel context.CancelFunc

	ready     chan struct{}
	readyOnce sync.Once
	failed    chan error
	closing   atomic.Bool

	sig   *signal.Client
	media core.MediaConnection

	mu       sync.Mutex
	answered bool
	pending  []webrtc.ICECandidateInit
}

var _ signal.Handler = (*attempt)(nil)

func newAttempt(r *Room) *attempt {
	ctx, cancel := context.WithCancel(context.Background())
	return &attempt{
		room:   r,
		ctx:    ctx,
		cancel: cancel,
		ready:  make(chan struct{}),
		failed: make(chan error, 1),
	}
}

func (a *attempt) run(ctx context.Context, details domain.ConnectionDetails) error {
	r := a.room
	media, err := r.opts.NewMedia(rtc.DefaultConfig(r.opts.ICEServers), details.ParticipantName)
	if err != nil {
		return fmt.Errorf("new media connection: %w", err)
	}
	a.mu.Lock()
	a.media = media
	a.mu.Unlock()

	sig, err := signal.Dial(ctx, details.ServerURL, details.ParticipantToken, a, r.opts.Signal)
	if err != nil {
		return err
	}
	a.sig = sig

	media.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		if err := sig.SendCandidate(ci); err != nil {
			log.Debug().Err(err).Str("module", "room").Msg("candidate not sent")
		}
	})
	media.OnData(func(b []byte) { r.onData(a, b) })
	media.OnReady(func() { a.readyOnce.Do(func() { close(a.ready) }) })
	media.OnClosed(func() { a.lost("media closed") })
	if err := media.Start(a.ctx); err != nil {
		return fmt.Errorf("start media: %w", err)
	}
	if err := r.publisher.Attach(a.ctx, media, details.ParticipantName); err != nil {
		return err
	}

	offer, err := media.CreateAndSetOffer()
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := sig.SendOffer(*offer); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}

	select {
	case <-a.ready:
		return nil
	case err := <-a.failed:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *attempt) fail(err error) {
	select {
	case a.failed <- err:
	default:
	}
}

func (a *attempt) lost(reason string) {
	if a.closing.Load() {
		return
	}
	a.fail(errors.New(reason))
	a.room.dropped(a, reason)
}

// close is idempotent.
func (a *attempt) close() {
	if !a.closing.CompareAndSwap(false, true) {
		return
	}
	a.cancel()
	a.mu.Lock()
	media := a.media
	a.mu.Unlock()
	if media != nil {
		media.Close()
	}
	if a.sig != nil {
		a.sig.Close()
	}
}

func (a *attempt) OnJoin(j signal.Join) {
	if !a.room.isCurrent(a) {
		return
	}
	a.room.setLocal(j.Participant)
	a.room.roster.Replace(j.Participants)
	if j.Permissions != nil {
		a.room.setPermissions(*j.Permissions)
	}
}

func (a *attempt) OnAnswer(sd webrtc.SessionDescription) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.media == nil || a.answered {
		return
	}
	if err := a.media.ApplyAnswer(sd); err != nil {
		log.Error().Err(err).Str("module", "room").Msg("apply answer")
		a.fail(fmt.Errorf("apply answer: %w", err))
		return
	}
	a.answered = true
	for _, ci := range a.pending {
		if err := a.media.AddICECandidate(ci); err != nil {
			log.Error().Err(err).Str("module", "room").Msg("add ice candidate")
		}
	}
	a.pending = nil
}

func (a *attempt) OnCandidate(ci webrtc.ICECandidateInit) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.answered || a.media == nil {
		a.pending = append(a.pending, ci)
		return
	}
	if err := a.media.AddICECandidate(ci); err != nil {
		log.Error().Err(err).Str("module", "room").Msg("add ice candidate")
	}
}

func (a *attempt) OnParticipants(ps []domain.Participant) {
	if !a.room.isCurrent(a) {
		return
	}
	a.room.roster.Replace(ps)
	if a.room.connected(a) {
		a.room.emit(core.ParticipantsChanged{Remote: a.room.roster.Remote()})
	}
}

func (a *attempt) OnPermissions(p domain.Permissions) {
	if !a.room.isCurrent(a) {
		return
	}
	a.room.setPermissions(p)
	if a.room.connected(a) {
		a.room.emit(core.PermissionsChanged{Permissions: p})
	}
}

func (a *attempt) OnLeave(reason string) {
	if reason == "" {
		reason = "server requested leave"
	}
	a.lost(reason)
}

func (a *attempt) OnClosed(err error) {
	if err == nil {
		return
	}
	a.lost("signal closed: " + err.Error())
}
