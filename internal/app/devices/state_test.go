package devices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/VoiceAgent/internal/app/loop"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

type fakeSwitch struct {
	release chan struct{}
	err     error
}

func (f *fakeSwitch) SetDeviceEnabled(_ context.Context, _ domain.DeviceKind, enabled bool) (bool, error) {
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return false, f.err
	}
	return enabled, nil
}

func TestToggleSucceeds(t *testing.T) {
	t.Parallel()

	q := loop.NewManual()
	s := NewState(q, &fakeSwitch{})
	if !s.Toggle(domain.DeviceMicrophone) {
		t.Fatalf("toggle must be accepted")
	}
	if got := s.Get(domain.DeviceMicrophone); !got.Pending || got.Enabled {
		t.Fatalf("expected pending and still disabled, got %+v", got)
	}
	if !q.Step(time.Second) {
		t.Fatalf("expected toggle result")
	}
	if got := s.Get(domain.DeviceMicrophone); got.Pending || !got.Enabled {
		t.Fatalf("expected enabled, got %+v", got)
	}
}

func TestToggleRejectedWhilePending(t *testing.T) {
	t.Parallel()

	q := loop.NewManual()
	sw := &fakeSwitch{release: make(chan struct{})}
	s := NewState(q, sw)
	s.Toggle(domain.DeviceCamera)
	if s.Toggle(domain.DeviceCamera) {
		t.Fatalf("second toggle must be rejected while pending")
	}
	if !s.Toggle(domain.DeviceMicrophone) {
		t.Fatalf("other kinds are independent")
	}
	close(sw.release)
	for s.Get(domain.DeviceCamera).Pending || s.Get(domain.DeviceMicrophone).Pending {
		if !q.Step(time.Second) {
			t.Fatalf("toggles never resolved")
		}
	}
}

func TestToggleFailureRevertsAndReports(t *testing.T) {
	t.Parallel()

	q := loop.NewManual()
	s := NewState(q, &fakeSwitch{err: domain.ErrDeviceUnavailable})
	var reported error
	s.OnError(func(err error) { reported = err })

	s.Toggle(domain.DeviceScreenShare)
	q.Step(time.Second)

	if got := s.Get(domain.DeviceScreenShare); got.Pending || got.Enabled {
		t.Fatalf("expected reverted toggle, got %+v", got)
	}
	var de *domain.DeviceError
	if !errors.As(reported, &de) || de.Kind != domain.DeviceScreenShare {
		t.Fatalf("expected device error, got %v", reported)
	}
	if !errors.Is(reported, domain.ErrDeviceUnavailable) {
		t.Fatalf("device error must wrap its cause")
	}
}

func TestResetIgnoresInFlightResult(t *testing.T) {
	t.Parallel()

	q := loop.NewManual()
	s := NewState(q, &fakeSwitch{})
	s.Toggle(domain.DeviceMicrophone)
	s.Reset()
	q.Step(time.Second)
	if got := s.Get(domain.DeviceMicrophone); got != (domain.DeviceToggle{}) {
		t.Fatalf("expected cleared toggle after reset, got %+v", got)
	}
	if len(s.All()) != len(domain.DeviceKinds) {
		t.Fatalf("all kinds must be reported")
	}
}
