package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/VoiceAgent/internal/app/bus"
	"github.com/dkeye/VoiceAgent/internal/app/loop"
	"github.com/dkeye/VoiceAgent/internal/app/orch"
	"github.com/dkeye/VoiceAgent/internal/config"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/gorilla/websocket"
)

type fakeRoom struct {
	q   core.Queue
	bus *bus.Bus

	mu    sync.Mutex
	state core.ConnectionState
}

func (r *fakeRoom) On(h core.Handler) core.Subscription { return r.bus.On(h) }
func (r *fakeRoom) Off(sub core.Subscription)           { r.bus.Off(sub) }
func (r *fakeRoom) Permissions() domain.Permissions     { return domain.AllPermissions() }

func (r *fakeRoom) State() core.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *fakeRoom) Connect(context.Context, domain.ConnectionDetails) error {
	r.mu.Lock()
	r.state = core.StateConnected
	r.mu.Unlock()
	r.q.Post(func() { r.bus.Publish(core.Connected{}) })
	return nil
}

func (r *fakeRoom) Disconnect() error {
	r.mu.Lock()
	r.state = core.StateDisconnected
	r.mu.Unlock()
	r.q.Post(func() { r.bus.Publish(core.Disconnected{Reason: "client initiated"}) })
	return nil
}

func (r *fakeRoom) PublishData(context.Context, string, []byte) error { return nil }

func (r *fakeRoom) SetDeviceEnabled(_ context.Context, _ domain.DeviceKind, enabled bool) (bool, error) {
	return enabled, nil
}

type fakeTokens struct{}

func (fakeTokens) FetchConnectionDetails(context.Context, domain.AppConfig) (domain.ConnectionDetails, error) {
	return domain.ConnectionDetails{ServerURL: "ws://example.invalid", ParticipantToken: "tok"}, nil
}

type harness struct {
	srv    *httptest.Server
	server *Server
	client *http.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	l := loop.New()
	room := &fakeRoom{q: l, bus: bus.New()}
	local, _ := domain.NewParticipant("web-user", true)
	o := orch.New(orch.Deps{
		Queue:         l,
		Room:          room,
		Tokens:        fakeTokens{},
		AppConfig:     domain.DefaultAppConfig(),
		Local:         local,
		ExitAnimation: time.Hour,
	})

	cfg := &config.Config{
		Mode:       "test",
		StaticPath: t.TempDir(),
		ReadLimit:  4096,
		PingPeriod: time.Second,
		Secret:     "test-secret",
	}
	s := NewServer(cfg, l, o)
	srv := httptest.NewServer(SetupRouter(ctx, cfg, s))
	go func() { _ = l.Run(ctx) }()

	jar, _ := cookiejar.New(nil)
	h := &harness{srv: srv, server: s, client: &http.Client{Jar: jar, Timeout: 5 * time.Second}}
	t.Cleanup(func() {
		s.Close()
		srv.Close()
		cancel()
	})
	return h
}

type stateView struct {
	Session struct {
		State  string `json:"state"`
		Intent string `json:"intent"`
	} `json:"session"`
	View struct {
		View string `json:"view"`
	} `json:"view"`
	Messages []domain.ChatMessage `json:"messages"`
	ChatOpen bool                 `json:"chatOpen"`
}

func (h *harness) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

func (h *harness) state(t *testing.T) stateView {
	t.Helper()
	code, data := h.do(t, http.MethodGet, "/api/state", "")
	if code != http.StatusOK {
		t.Fatalf("state: status %d body %s", code, data)
	}
	var sv stateView
	if err := json.Unmarshal(data, &sv); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return sv
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestStateAndStartSession(t *testing.T) {
	h := newHarness(t)

	sv := h.state(t)
	if sv.Session.State != "idle" || sv.View.View != "welcome" {
		t.Fatalf("unexpected initial state %+v", sv)
	}

	code, data := h.do(t, http.MethodPost, "/api/session/start", "")
	if code != http.StatusOK {
		t.Fatalf("start: status %d body %s", code, data)
	}
	eventually(t, func() bool { return h.state(t).Session.State == "active" })
	if got := h.state(t).View.View; got != "session" {
		t.Fatalf("expected session view, got %s", got)
	}

	code, _ = h.do(t, http.MethodPost, "/api/session/end", "")
	if code != http.StatusOK {
		t.Fatalf("end: status %d", code)
	}
	if got := h.state(t).Session.Intent; got != "end" {
		t.Fatalf("expected intent end, got %s", got)
	}
}

func TestChatRequests(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"not json", `{`, http.StatusBadRequest},
		{"blank", `{"text":"   "}`, http.StatusBadRequest},
		{"idle session", `{"text":"hello"}`, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, data := h.do(t, http.MethodPost, "/api/chat", tc.body)
			if code != tc.want {
				t.Fatalf("status %d, want %d (body %s)", code, tc.want, data)
			}
		})
	}
}

func TestChatWhileActive(t *testing.T) {
	h := newHarness(t)

	h.do(t, http.MethodPost, "/api/session/start", "")
	eventually(t, func() bool { return h.state(t).Session.State == "active" })

	code, data := h.do(t, http.MethodPost, "/api/chat", `{"text":"hello agent"}`)
	if code != http.StatusOK {
		t.Fatalf("chat: status %d body %s", code, data)
	}
	sv := h.state(t)
	if len(sv.Messages) != 1 || sv.Messages[0].Text != "hello agent" {
		t.Fatalf("expected echoed message, got %+v", sv.Messages)
	}
}

func TestChatRateLimited(t *testing.T) {
	h := newHarness(t)
	h.server.chat = NewRateLimiter(1, time.Minute)

	if code, _ := h.do(t, http.MethodPost, "/api/chat", `{"text":"one"}`); code != http.StatusConflict {
		t.Fatalf("first message should reach the session, got %d", code)
	}
	if code, _ := h.do(t, http.MethodPost, "/api/chat", `{"text":"two"}`); code != http.StatusTooManyRequests {
		t.Fatalf("second message should be limited, got %d", code)
	}
}

func TestToggleDevice(t *testing.T) {
	h := newHarness(t)

	if code, _ := h.do(t, http.MethodPost, "/api/devices/speaker/toggle", ""); code != http.StatusBadRequest {
		t.Fatalf("unknown kind: got %d", code)
	}
	if code, _ := h.do(t, http.MethodPost, "/api/devices/microphone/toggle", ""); code != http.StatusConflict {
		t.Fatalf("idle toggle: got %d", code)
	}

	h.do(t, http.MethodPost, "/api/session/start", "")
	eventually(t, func() bool { return h.state(t).Session.State == "active" })

	if code, _ := h.do(t, http.MethodPost, "/api/devices/camera/toggle", ""); code != http.StatusForbidden {
		t.Fatalf("camera without video input: got %d", code)
	}
	if code, data := h.do(t, http.MethodPost, "/api/devices/microphone/toggle", ""); code != http.StatusOK {
		t.Fatalf("microphone toggle: got %d body %s", code, data)
	}
}

func TestChatOpenAndDismiss(t *testing.T) {
	h := newHarness(t)

	code, data := h.do(t, http.MethodPost, "/api/chat/open", `{"open":true}`)
	if code != http.StatusOK {
		t.Fatalf("chat open: %d %s", code, data)
	}
	var sv stateView
	if err := json.Unmarshal(data, &sv); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !sv.ChatOpen {
		t.Fatalf("expected chat open in response")
	}
	if code, _ := h.do(t, http.MethodPost, "/api/image/dismiss", ""); code != http.StatusOK {
		t.Fatalf("dismiss: %d", code)
	}
	if code, _ := h.do(t, http.MethodPost, "/api/view/animation-complete", ""); code != http.StatusOK {
		t.Fatalf("animation complete: %d", code)
	}
}

func TestStateSocketPushes(t *testing.T) {
	h := newHarness(t)

	wsURL := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/api/ws/state"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()

	read := func() stateView {
		t.Helper()
		_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var frame struct {
			Type  string    `json:"type"`
			State stateView `json:"state"`
		}
		if err := json.NewDecoder(bytes.NewReader(data)).Decode(&frame); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if frame.Type != "state" {
			t.Fatalf("unexpected frame type %q", frame.Type)
		}
		return frame.State
	}

	if first := read(); first.Session.State != "idle" {
		t.Fatalf("expected idle snapshot first, got %s", first.Session.State)
	}
	eventually(t, func() bool { return h.server.Hub().Len() == 1 })

	h.do(t, http.MethodPost, "/api/session/start", "")
	for {
		if read().Session.State == "active" {
			break
		}
	}
}

func TestRateLimiterWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, time.Second)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatalf("first two attempts must pass")
	}
	if rl.Allow("a") {
		t.Fatalf("third attempt inside the window must be blocked")
	}
	if !rl.Allow("b") {
		t.Fatalf("keys are independent")
	}
	now = now.Add(1500 * time.Millisecond)
	if !rl.Allow("a") {
		t.Fatalf("window should have slid")
	}
	rl.Forget("a")
	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatalf("forget should clear history")
	}
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrEmptyMessage, http.StatusBadRequest},
		{domain.ErrNotConnected, http.StatusConflict},
		{orch.ErrTogglePending, http.StatusConflict},
		{&domain.DeviceError{Kind: domain.DeviceCamera, Err: domain.ErrDeviceUnavailable}, http.StatusForbidden},
		{ErrRateLimited, http.StatusTooManyRequests},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusOf(tc.err); got != tc.want {
			t.Errorf("statusOf(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
