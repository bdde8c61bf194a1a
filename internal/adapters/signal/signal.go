// Package signal is the websocket signaling client used to join a room.
package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

// Join is the first message the server sends after the socket opens.
type Join struct {
	Participant  domain.Participant   `json:"participant"`
	Permissions  *domain.Permissions  `json:"permissions,omitempty"`
	Participants []domain.Participant `json:"participants"`
}

// Handler receives server messages on the read pump goroutine.
type Handler interface {
	OnJoin(Join)
	OnAnswer(webrtc.SessionDescription)
	OnCandidate(webrtc.ICECandidateInit)
	OnParticipants([]domain.Participant)
	OnPermissions(domain.Permissions)
	OnLeave(reason string)
	// OnClosed runs once when the socket is gone. err is nil after Close.
	OnClosed(err error)
}

type Options struct {
	ReadLimit        int64
	PingPeriod       time.Duration
	HandshakeTimeout time.Duration
}

// Client is a signaling connection. It implements core.SignalConnection.
type Client struct {
	conn    *websocket.Conn
	send    chan core.Frame
	handler Handler
	opts    Options
	cancel  context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalConnection = (*Client)(nil)

// Dial opens the signaling socket at <serverURL>/rtc and starts the pumps.
// ctx bounds the handshake only.
func Dial(ctx context.Context, serverURL, token string, h Handler, opts Options) (*Client, error) {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = 54 * time.Second
	}
	target, err := signalURL(serverURL)
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", target, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	if opts.ReadLimit > 0 {
		ws.SetReadLimit(opts.ReadLimit)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:    ws,
		send:    make(chan core.Frame, 32),
		handler: h,
		opts:    opts,
		cancel:  cancel,
	}
	log.Info().Str("module", "signal").Str("url", target).Msg("signal connected")

	go c.writePump(pumpCtx)
	go c.readPump(pumpCtx)
	return c, nil
}

func signalURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/rtc"
	return u.String(), nil
}

func (c *Client) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close is idempotent.
func (c *Client) Close() {
	c.shutdown(nil)
}

func (c *Client) shutdown(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.cancel()
	_ = c.conn.Close()
	c.mu.Unlock()

	if c.handler != nil {
		c.handler.OnClosed(cause)
	}
}
