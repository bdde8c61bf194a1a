package rtc

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Publisher forwards local sources into published tracks. A device is
// "enabled" when its track forwards packets; disabled tracks stay attached
// and drop what their source produces.
type Publisher struct {
	mu      sync.RWMutex
	sources map[domain.DeviceKind]Source
	tracks  map[domain.DeviceKind]*OutTrack
	cancel  context.CancelFunc
}

func NewPublisher(sources map[domain.DeviceKind]Source) *Publisher {
	return &Publisher{
		sources: maps.Clone(sources),
		tracks:  make(map[domain.DeviceKind]*OutTrack),
	}
}

func capability(kind domain.DeviceKind) webrtc.RTPCodecCapability {
	if kind == domain.DeviceMicrophone {
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
}

// Attach adds one muted track per source to mc and starts forwarding.
// It replaces tracks from an earlier Attach.
func (p *Publisher) Attach(ctx context.Context, mc core.MediaConnection, streamID string) error {
	p.Detach()

	ctx, cancel := context.WithCancel(ctx)
	tracks := make(map[domain.DeviceKind]*OutTrack, len(p.sources))
	for kind, src := range p.sources {
		track, err := webrtc.NewTrackLocalStaticRTP(capability(kind), string(kind), streamID)
		if err != nil {
			cancel()
			return fmt.Errorf("new %s track: %w", kind, err)
		}
		sender, err := mc.AddLocalTrack(track)
		if err != nil {
			cancel()
			return fmt.Errorf("add %s track: %w", kind, err)
		}
		if sender != nil {
			go drainRTCP(sender)
		}

		ot := NewOutTrack(kind, track)
		tracks[kind] = ot
		logger := log.With().Str("module", "publisher").Str("kind", string(kind)).Logger()
		go p.loop(ctx, src, ot, &logger)
	}

	p.mu.Lock()
	p.tracks = tracks
	p.cancel = cancel
	p.mu.Unlock()
	return nil
}

// SetEnabled switches forwarding for kind and reports the resulting state.
func (p *Publisher) SetEnabled(kind domain.DeviceKind, enabled bool) (bool, error) {
	p.mu.RLock()
	ot, ok := p.tracks[kind]
	p.mu.RUnlock()
	if !ok || ot.GetState() == TrackStateDelete {
		return false, domain.ErrDeviceUnavailable
	}
	if enabled {
		ot.MarkOk()
	} else {
		ot.MarkMuted()
	}
	log.Info().Str("module", "publisher").Str("kind", string(kind)).Bool("enabled", enabled).Msg("track switched")
	return enabled, nil
}

func (p *Publisher) Has(kind domain.DeviceKind) bool {
	_, ok := p.sources[kind]
	return ok
}

// Detach stops forwarding and forgets the tracks.
func (p *Publisher) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ot := range p.tracks {
		ot.MarkDelete()
	}
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.tracks = make(map[domain.DeviceKind]*OutTrack)
}

// loop reads RTP packets from the source and forwards them while the track is enabled.
func (p *Publisher) loop(ctx context.Context, src Source, ot *OutTrack, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("publisher ctx done")
			ot.MarkDelete()
			return
		default:
		}
		pkt, err := src.ReadRTP()
		if err != nil {
			logger.Error().Err(err).Msg("source read RTP error, stopping")
			ot.MarkDelete()
			return
		}
		if !forward(ot, pkt, logger) {
			return
		}
	}
}

func forward(ot *OutTrack, pkt *rtp.Packet, logger *zerolog.Logger) bool {
	switch ot.GetState() {
	case TrackStateDelete:
		return false
	case TrackStateMuted:
	case TrackStateOk:
		if err := ot.Track.WriteRTP(pkt); err != nil {
			logger.Error().Err(err).Msg("write RTP error, marking track as delete")
			ot.MarkDelete()
			return false
		}
	}
	return true
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
