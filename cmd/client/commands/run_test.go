package commands

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/core"
)

type stubRoom struct {
	state       core.ConnectionState
	err         error
	disconnects int
}

func (r *stubRoom) State() core.ConnectionState { return r.state }

func (r *stubRoom) Disconnect() error {
	r.disconnects++
	return r.err
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestDisconnectRoomLogsFailure(t *testing.T) {
	buf := captureLog(t)
	rm := &stubRoom{state: core.StateConnected, err: errors.New("socket closed")}

	disconnectRoom(rm)

	if rm.disconnects != 1 {
		t.Fatalf("expected one disconnect, got %d", rm.disconnects)
	}
	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) || !strings.Contains(out, "socket closed") {
		t.Fatalf("expected warn entry with the error, got %q", out)
	}
}

func TestDisconnectRoomSkipsDisconnectedRoom(t *testing.T) {
	buf := captureLog(t)
	rm := &stubRoom{state: core.StateDisconnected}

	disconnectRoom(rm)

	if rm.disconnects != 0 {
		t.Fatalf("disconnected room must be left alone, got %d calls", rm.disconnects)
	}
	if buf.Len() != 0 {
		t.Fatalf("unexpected log output %q", buf.String())
	}
}
