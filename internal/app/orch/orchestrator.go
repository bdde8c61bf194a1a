// Package orch is the session context: it owns the room handle and every
// controller, and exposes one snapshot of everything the UI renders.
package orch

import (
	"time"

	"github.com/dkeye/VoiceAgent/internal/app/agentevents"
	"github.com/dkeye/VoiceAgent/internal/app/clock"
	"github.com/dkeye/VoiceAgent/internal/app/devices"
	"github.com/dkeye/VoiceAgent/internal/app/session"
	"github.com/dkeye/VoiceAgent/internal/app/transcript"
	"github.com/dkeye/VoiceAgent/internal/app/view"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

type Deps struct {
	Queue          core.Queue
	Room           core.Room
	Tokens         core.TokenProvider
	Clock          clock.Clock
	AppConfig      domain.AppConfig
	Local          domain.Participant
	ConnectTimeout time.Duration
	ExitAnimation  time.Duration
	EventsTopic    string
}

// Orchestrator is confined to the event loop. Callers on other goroutines
// go through loop.Call.
type Orchestrator struct {
	Queue      core.Queue
	Room       core.Room
	Session    *session.Controller
	View       *view.Machine
	Transcript *transcript.Aggregator
	Chat       *transcript.Sender
	Events     *agentevents.Channel
	Devices    *devices.State
	Visibility *devices.Visibility

	eventsTopic string
	sub         core.Subscription
	last        domain.SessionState
	stale       bool

	agentAvailable bool
	chatOpen       bool
	image          *domain.ImageEvent
	lastError      string

	listeners []func(Snapshot)
}

func New(d Deps) *Orchestrator {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	o := &Orchestrator{
		Queue:       d.Queue,
		Room:        d.Room,
		Transcript:  transcript.NewAggregator(),
		Events:      agentevents.NewChannel(d.Room),
		Devices:     devices.NewState(d.Queue, d.Room),
		Visibility:  devices.NewVisibility(d.AppConfig, d.Room.Permissions()),
		eventsTopic: d.EventsTopic,
	}
	o.Session = session.NewController(d.Queue, d.Room, d.Tokens, d.Clock, session.Options{
		ConnectTimeout: d.ConnectTimeout,
		AppConfig:      d.AppConfig,
	})
	o.View = view.NewMachine(d.Clock, d.Queue, o.Session, d.ExitAnimation)
	o.Chat = transcript.NewSender(d.Queue, d.Room, o.Transcript, d.Local, d.AppConfig.IsPreConnectBufferEnabled)

	o.sub = d.Room.On(o.onRoomEvent)
	o.Session.OnChange(o.onSession)
	o.Session.OnError(o.fail)
	o.Chat.OnError(o.fail)
	o.Devices.OnError(o.fail)
	o.Events.OnImage(o.onImage)

	o.Transcript.OnChange(o.changed)
	o.Devices.OnChange(o.changed)
	o.Visibility.OnChange(o.changed)
	o.View.OnChange(func(view.Rendered) { o.changed() })
	return o
}

// OnChange listeners run on the loop and must not block.
func (o *Orchestrator) OnChange(fn func(Snapshot)) { o.listeners = append(o.listeners, fn) }

// Close tears the context down. Room resources are the caller's.
func (o *Orchestrator) Close() {
	o.Events.Unsubscribe()
	o.Room.Off(o.sub)
	o.Session.Close()
	o.Chat.Discard()
}

func (o *Orchestrator) changed() {
	if len(o.listeners) == 0 {
		return
	}
	s := o.Snapshot()
	for _, fn := range o.listeners {
		fn(s)
	}
}
