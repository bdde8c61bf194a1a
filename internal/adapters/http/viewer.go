package http

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrViewerClosed = errors.New("viewer closed")
)

const writeWait = 5 * time.Second

// viewer is one browser tab subscribed to state pushes. Tabs sharing a
// client token get their own viewer.
type viewer struct {
	id     string
	client string
	conn   *websocket.Conn
	send   chan []byte

	mu      sync.Mutex
	closed  bool
	dropped int
	cancel  context.CancelFunc
}

func newViewer(client string, conn *websocket.Conn) *viewer {
	return &viewer{
		id:     uuid.NewString(),
		client: client,
		conn:   conn,
		send:   make(chan []byte, 32),
	}
}

func (v *viewer) TrySend(data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrViewerClosed
	}
	select {
	case v.send <- data:
		v.dropped = 0
		return nil
	default:
		v.dropped++
		return ErrBackpressure
	}
}

// Dropped is the number of frames dropped in a row.
func (v *viewer) Dropped() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.dropped
}

func (v *viewer) isClosed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func (v *viewer) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	close(v.send)
	cancel := v.cancel
	v.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if v.conn != nil {
		_ = v.conn.Close()
	}
}

func (v *viewer) writePump(ctx context.Context, pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		v.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			_ = v.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		case data, ok := <-v.send:
			if !ok {
				return
			}
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Str("viewer", v.id).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only watches for the peer going away; viewers send actions over REST.
func (v *viewer) readPump(readLimit int64, pongWait time.Duration, onExit func()) {
	defer func() {
		onExit()
		v.Close()
	}()
	v.conn.SetReadLimit(readLimit)
	_ = v.conn.SetReadDeadline(time.Now().Add(pongWait))
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := v.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "adapters.http").Str("viewer", v.id).Msg("viewer read error")
			}
			return
		}
	}
}
