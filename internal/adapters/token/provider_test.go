package token

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dkeye/VoiceAgent/internal/domain"
)

func TestFetchConnectionDetails(t *testing.T) {
	t.Parallel()

	var (
		gotBody    map[string]any
		gotSandbox string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		gotSandbox = r.Header.Get("X-Sandbox-Id")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"serverUrl":"wss://lk.example","roomName":"voice_1","participantName":"user","participantToken":"jwt"}`))
	}))
	defer srv.Close()

	cfg := domain.DefaultAppConfig()
	cfg.AgentName = "freshmarket-agent"
	cfg.SandboxID = "sbx-1"
	got, err := NewProvider(srv.URL, srv.Client()).FetchConnectionDetails(context.Background(), cfg)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	want := domain.ConnectionDetails{ServerURL: "wss://lk.example", RoomName: "voice_1", ParticipantName: "user", ParticipantToken: "jwt"}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
	if gotSandbox != "sbx-1" {
		t.Fatalf("expected sandbox header, got %q", gotSandbox)
	}
	agents := gotBody["room_config"].(map[string]any)["agents"].([]any)
	if agents[0].(map[string]any)["agent_name"] != "freshmarket-agent" {
		t.Fatalf("unexpected request body %v", gotBody)
	}
}

func TestFetchConnectionDetailsFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom", want: "status=500 body=boom"},
		{name: "bad json", status: http.StatusOK, body: "{", want: "decode connection details"},
		{name: "missing token", status: http.StatusOK, body: `{"serverUrl":"wss://x"}`, want: "missing serverUrl or participantToken"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewProvider(srv.URL, srv.Client()).FetchConnectionDetails(context.Background(), domain.DefaultAppConfig())
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q, got %v", tc.want, err)
			}
		})
	}
}

func TestFetchWithoutEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := NewProvider("", nil).FetchConnectionDetails(context.Background(), domain.DefaultAppConfig()); err == nil {
		t.Fatalf("expected error without endpoint")
	}
}
