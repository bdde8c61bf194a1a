package rtc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const ReliableLabel = "_reliable"

var ErrChannelClosed = errors.New("data channel not open")

// Connection is the client side of a single PeerConnection with one
// reliable data channel.
type Connection struct {
	pc       *webrtc.PeerConnection
	id       string
	reliable *webrtc.DataChannel
	cancel   context.CancelFunc

	peerUp    atomic.Bool
	channelUp atomic.Bool
	closed    atomic.Bool
	readyOnce sync.Once

	onICE    func(webrtc.ICECandidateInit)
	onData   func([]byte)
	onReady  func()
	onClosed func()
}

func DefaultConfig(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		iceServers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: iceServers,
			},
		},
	}
}

func NewConnection(cfg webrtc.Configuration, id string) (*Connection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	ordered := true
	dc, err := pc.CreateDataChannel(ReliableLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	return &Connection{pc: pc, id: id, reliable: dc}, nil
}

func (c *Connection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("id", c.id).Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("id", c.id).Str("peer_connection_state", s.String()).Msg("Peer state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			c.peerUp.Store(true)
			c.maybeReady()
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			c.Close()
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	c.reliable.OnOpen(func() {
		log.Debug().Str("module", "webrtc").Str("id", c.id).Str("label", c.reliable.Label()).Msg("data channel open")
		c.channelUp.Store(true)
		c.maybeReady()
	})
	c.reliable.OnClose(func() {
		c.channelUp.Store(false)
	})
	c.reliable.OnMessage(func(msg webrtc.DataChannelMessage) {
		if c.onData != nil {
			c.onData(msg.Data)
		}
	})

	go func() {
		<-ctx.Done()
		c.Close()
	}()
	return nil
}

func (c *Connection) maybeReady() {
	if !c.peerUp.Load() || !c.channelUp.Load() {
		return
	}
	c.readyOnce.Do(func() {
		log.Info().Str("module", "webrtc").Str("id", c.id).Msg("ready")
		if c.onReady != nil {
			c.onReady()
		}
	})
}

// CreateAndSetOffer creates the local offer. Candidates trickle through
// OnICECandidate.
func (c *Connection) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	return c.pc.LocalDescription(), nil
}

func (c *Connection) ApplyAnswer(answer webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(answer)
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *Connection) SendData(b []byte) error {
	if !c.channelUp.Load() {
		return ErrChannelClosed
	}
	return c.reliable.Send(b)
}

// AddLocalTrack attaches a local static RTP track to the PeerConnection.
func (c *Connection) AddLocalTrack(track *webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error) {
	return c.pc.AddTrack(track)
}

func (c *Connection) IsClosed() bool { return c.closed.Load() }

// Close is idempotent and safe to call from pion callbacks.
func (c *Connection) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("id", c.id).Msg("close error")
	} else {
		log.Info().Str("module", "webrtc").Str("id", c.id).Msg("closed")
	}
	if c.onClosed != nil {
		c.onClosed()
	}
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

func (c *Connection) OnData(fn func([]byte)) { c.onData = fn }

// OnReady fires once, when the peer is connected and the data channel is open.
func (c *Connection) OnReady(fn func()) { c.onReady = fn }

// OnClosed sets application-level callback for cleanup
func (c *Connection) OnClosed(fn func()) { c.onClosed = fn }
