package orch

import (
	"github.com/dkeye/VoiceAgent/internal/app/devices"
	"github.com/dkeye/VoiceAgent/internal/app/session"
	"github.com/dkeye/VoiceAgent/internal/app/view"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

// Snapshot is everything the UI renders.
type Snapshot struct {
	Session        session.Snapshot                          `json:"session"`
	View           view.Rendered                             `json:"view"`
	Messages       []domain.ChatMessage                      `json:"messages"`
	AutoScroll     bool                                      `json:"autoScroll"`
	Devices        map[domain.DeviceKind]domain.DeviceToggle `json:"devices"`
	Controls       devices.Controls                          `json:"controls"`
	LeaveEnabled   bool                                      `json:"leaveEnabled"`
	ChatEnabled    bool                                      `json:"chatEnabled"`
	AgentAvailable bool                                      `json:"agentAvailable"`
	ChatOpen       bool                                      `json:"chatOpen"`
	Image          *domain.ImageEvent                        `json:"image,omitempty"`
	PendingChat    int                                       `json:"pendingChat"`
	LastError      string                                    `json:"lastError,omitempty"`
}

func (o *Orchestrator) Snapshot() Snapshot {
	sess := o.Session.Snapshot()
	controls := o.Visibility.Controls()
	s := Snapshot{
		Session:        sess,
		View:           o.View.Rendered(),
		Messages:       o.Transcript.Messages(),
		AutoScroll:     o.Transcript.LastMessageIsLocal(),
		Devices:        o.Devices.All(),
		Controls:       controls,
		LeaveEnabled:   controls.Leave && sess.Intent == domain.IntentStart,
		ChatEnabled:    controls.Chat && o.canChat(sess.State),
		AgentAvailable: o.agentAvailable,
		ChatOpen:       o.chatOpen,
		PendingChat:    o.Chat.Pending(),
		LastError:      o.lastError,
	}
	if o.image != nil {
		img := *o.image
		s.Image = &img
	}
	return s
}

// canChat mirrors what Sender.Send accepts, plus the agent being present
// once the session is up.
func (o *Orchestrator) canChat(state domain.SessionState) bool {
	switch state {
	case domain.SessionActive:
		return o.agentAvailable
	case domain.SessionConnecting:
		return o.Session.Snapshot().AppConfig.IsPreConnectBufferEnabled
	}
	return false
}
