package room

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/VoiceAgent/internal/app/loop"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

type fakeMedia struct {
	mu       sync.Mutex
	onData   func([]byte)
	onReady  func()
	onClosed func()
	sent     [][]byte
	cands    int
	closed   bool
}

func (m *fakeMedia) Start(context.Context) error { return nil }

func (m *fakeMedia) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	fn := m.onClosed
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (m *fakeMedia) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *fakeMedia) AddICECandidate(webrtc.ICECandidateInit) error {
	m.mu.Lock()
	m.cands++
	m.mu.Unlock()
	return nil
}

func (m *fakeMedia) ApplyAnswer(webrtc.SessionDescription) error {
	go m.onReady()
	return nil
}

func (m *fakeMedia) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}, nil
}

func (m *fakeMedia) OnICECandidate(func(webrtc.ICECandidateInit)) {}
func (m *fakeMedia) OnData(fn func([]byte))                       { m.onData = fn }
func (m *fakeMedia) OnReady(fn func())                            { m.onReady = fn }
func (m *fakeMedia) OnClosed(fn func())                           { m.onClosed = fn }

func (m *fakeMedia) SendData(b []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, b)
	return nil
}

func (m *fakeMedia) AddLocalTrack(*webrtc.TrackLocalStaticRTP) (*webrtc.RTPSender, error) {
	return nil, nil
}

// server plays the signaling side. It answers the offer unless silent and
// forwards anything sent on push to the client.
type server struct {
	*httptest.Server
	push   chan map[string]any
	silent bool
}

func newServer(t *testing.T, silent bool) *server {
	t.Helper()
	s := &server{push: make(chan map[string]any, 8), silent: silent}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		var wmu sync.Mutex
		write := func(v any) error {
			wmu.Lock()
			defer wmu.Unlock()
			return ws.WriteJSON(v)
		}
		_ = write(map[string]any{
			"type":         "join",
			"participant":  map[string]any{"identity": "me"},
			"permissions":  map[string]any{"microphone": true, "data": true},
			"participants": []any{map[string]any{"identity": "agent-7", "isAgent": true}},
		})
		go func() {
			for msg := range s.push {
				if err := write(msg); err != nil {
					return
				}
			}
		}()
		for {
			var msg map[string]any
			if err := ws.ReadJSON(&msg); err != nil {
				return
			}
			if msg["type"] == "offer" && !s.silent {
				_ = write(map[string]any{"type": "candidate", "candidate": "candidate:early"})
				_ = write(map[string]any{"type": "answer", "sdp": "v=0 answer"})
			}
		}
	}))
	t.Cleanup(s.Server.Close)
	return s
}

type fixture struct {
	q      *loop.Manual
	room   *Room
	media  *fakeMedia
	events []core.RoomEvent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{q: loop.NewManual(), media: &fakeMedia{}}
	f.room = New(f.q, Options{NewMedia: func(webrtc.Configuration, string) (core.MediaConnection, error) {
		return f.media, nil
	}})
	f.room.On(func(ev core.RoomEvent) { f.events = append(f.events, ev) })
	return f
}

func (f *fixture) waitEvent(t *testing.T, match func(core.RoomEvent) bool) core.RoomEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.q.RunPending()
		for _, ev := range f.events {
			if match(ev) {
				return ev
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for event, got %#v", f.events)
		}
		time.Sleep(time.Millisecond)
	}
}

func details(url string) domain.ConnectionDetails {
	return domain.ConnectionDetails{ServerURL: url, RoomName: "room-1", ParticipantName: "me", ParticipantToken: "tok"}
}

func TestConnectPublishAndReceive(t *testing.T) {
	t.Parallel()

	srv := newServer(t, false)
	f := newFixture(t)
	if err := f.room.Connect(context.Background(), details(srv.URL)); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if f.room.State() != core.StateConnected {
		t.Fatalf("expected connected, got %s", f.room.State())
	}
	if p := f.room.Permissions(); !p.Microphone || p.Camera {
		t.Fatalf("join permissions not applied: %+v", p)
	}
	if f.room.Local().Identity != "me" || !f.room.Local().IsLocal {
		t.Fatalf("unexpected local participant %+v", f.room.Local())
	}

	ev := f.waitEvent(t, func(ev core.RoomEvent) bool { _, ok := ev.(core.ParticipantsChanged); return ok })
	remote := ev.(core.ParticipantsChanged).Remote
	if len(remote) != 1 || !remote[0].IsAgent {
		t.Fatalf("unexpected roster %+v", remote)
	}

	if err := f.room.PublishData(context.Background(), "lk-chat-topic", []byte(`{"id":"1"}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	f.media.mu.Lock()
	sent := f.media.sent[0]
	f.media.mu.Unlock()
	out, err := decodeFrame(sent)
	if err != nil {
		t.Fatalf("decode sent frame: %v", err)
	}
	if out.Topic != "lk-chat-topic" || out.From == nil || out.From.Identity != "me" || string(out.Payload) != `{"id":"1"}` {
		t.Fatalf("unexpected frame %+v", out)
	}

	in, _ := encodeFrame(frame{Topic: "agent_events", From: &domain.Participant{Identity: "agent-7"}, Payload: []byte("{}")})
	f.media.onData(in)
	f.media.onData([]byte{0xc1})
	ev = f.waitEvent(t, func(ev core.RoomEvent) bool { _, ok := ev.(core.DataReceived); return ok })
	data := ev.(core.DataReceived)
	if data.Topic != "agent_events" || data.Participant == nil || !data.Participant.IsAgent || data.Kind != core.PacketReliable {
		t.Fatalf("unexpected data event %+v", data)
	}

	if _, err := f.room.SetDeviceEnabled(context.Background(), domain.DeviceMicrophone, true); !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("no microphone source configured, got %v", err)
	}
	if _, err := f.room.SetDeviceEnabled(context.Background(), domain.DeviceCamera, true); !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("camera not permitted, got %v", err)
	}
}

func TestServerLeaveDisconnects(t *testing.T) {
	t.Parallel()

	srv := newServer(t, false)
	f := newFixture(t)
	if err := f.room.Connect(context.Background(), details(srv.URL)); err != nil {
		t.Fatalf("connect: %v", err)
	}
	srv.push <- map[string]any{"type": "leave", "reason": "agent finished"}

	ev := f.waitEvent(t, func(ev core.RoomEvent) bool { _, ok := ev.(core.Disconnected); return ok })
	if ev.(core.Disconnected).Reason != "agent finished" {
		t.Fatalf("unexpected reason %+v", ev)
	}
	if f.room.State() != core.StateDisconnected || !f.media.IsClosed() {
		t.Fatalf("expected torn down room")
	}
	if err := f.room.PublishData(context.Background(), "x", nil); !errors.Is(err, domain.ErrNotConnected) {
		t.Fatalf("expected not connected, got %v", err)
	}
}

func TestDisconnectEmitsOnce(t *testing.T) {
	t.Parallel()

	srv := newServer(t, false)
	f := newFixture(t)
	if err := f.room.Connect(context.Background(), details(srv.URL)); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := f.room.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	if err := f.room.Disconnect(); err != nil {
		t.Fatalf("second disconnect: %v", err)
	}
	f.waitEvent(t, func(ev core.RoomEvent) bool { _, ok := ev.(core.Disconnected); return ok })
	time.Sleep(20 * time.Millisecond)
	f.q.RunPending()

	n := 0
	for _, ev := range f.events {
		if _, ok := ev.(core.Disconnected); ok {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("expected one disconnected event, got %d", n)
	}
}

func TestConnectHonoursContext(t *testing.T) {
	t.Parallel()

	srv := newServer(t, true)
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := f.room.Connect(ctx, details(srv.URL))
	var ce *domain.ConnectionError
	if !errors.As(err, &ce) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected connection error wrapping the deadline, got %v", err)
	}
	if f.room.State() != core.StateDisconnected || !f.media.IsClosed() {
		t.Fatalf("failed connect must roll back")
	}
}

func TestConnectRejectsWhenNotDisconnected(t *testing.T) {
	t.Parallel()

	srv := newServer(t, false)
	f := newFixture(t)
	if err := f.room.Connect(context.Background(), details(srv.URL)); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := f.room.Connect(context.Background(), details(srv.URL)); !errors.Is(err, domain.ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
}
