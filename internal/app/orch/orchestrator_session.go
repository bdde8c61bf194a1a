package orch

import (
	"errors"

	"github.com/dkeye/VoiceAgent/internal/app/session"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/rs/zerolog/log"
)

var ErrTogglePending = errors.New("device toggle pending")

func (o *Orchestrator) StartSession() {
	o.lastError = ""
	o.Session.StartSession()
}

func (o *Orchestrator) EndSession() { o.Session.EndSession() }

func (o *Orchestrator) SendChat(text string) error {
	return o.Chat.Send(text, o.Session.State())
}

func (o *Orchestrator) ToggleDevice(kind domain.DeviceKind) error {
	if o.Session.State() != domain.SessionActive {
		return domain.ErrNotConnected
	}
	if !o.controlVisible(kind) {
		return &domain.DeviceError{Kind: kind, Err: domain.ErrDeviceUnavailable}
	}
	if !o.Devices.Toggle(kind) {
		return ErrTogglePending
	}
	return nil
}

func (o *Orchestrator) AnimationComplete() { o.View.AnimationComplete() }

func (o *Orchestrator) SetChatOpen(open bool) {
	if o.chatOpen == open {
		return
	}
	o.chatOpen = open
	o.changed()
}

func (o *Orchestrator) DismissImage() {
	if o.image == nil {
		return
	}
	o.image = nil
	o.changed()
}

func (o *Orchestrator) controlVisible(kind domain.DeviceKind) bool {
	c := o.Visibility.Controls()
	switch kind {
	case domain.DeviceMicrophone:
		return c.Microphone
	case domain.DeviceCamera:
		return c.Camera
	case domain.DeviceScreenShare:
		return c.ScreenShare
	}
	return false
}

func (o *Orchestrator) onSession(s session.Snapshot) {
	prev := o.last
	o.last = s.State
	if prev != s.State {
		switch s.State {
		case domain.SessionConnecting:
			if o.stale {
				o.Transcript.Reset()
				o.stale = false
			}
			if !o.Events.Subscribed() {
				o.Events.Subscribe(o.eventsTopic)
			}
		case domain.SessionActive:
			o.Visibility.SetPermissions(o.Room.Permissions())
			o.Chat.Flush()
		case domain.SessionIdle:
			if s.Intent == domain.IntentEnd || o.Room.State() != core.StateConnected {
				o.teardown()
			}
		}
	}
	o.View.Observe(s.Intent)
	o.changed()
}

// teardown drops everything that belonged to the finished session. The
// transcript stays visible until the next session starts.
func (o *Orchestrator) teardown() {
	o.Chat.Discard()
	o.Devices.Reset()
	o.Events.Unsubscribe()
	o.image = nil
	o.agentAvailable = false
	o.chatOpen = false
	o.stale = true
	log.Info().Str("module", "orch").Msg("session context cleared")
}

func (o *Orchestrator) onImage(e domain.ImageEvent) {
	o.image = &e
	o.changed()
}

func (o *Orchestrator) fail(err error) {
	o.lastError = err.Error()
	o.changed()
}
