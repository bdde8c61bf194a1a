package orch

import (
	"github.com/dkeye/VoiceAgent/internal/app/transcript"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) onRoomEvent(ev core.RoomEvent) {
	switch e := ev.(type) {
	case core.DataReceived:
		o.onData(e)
	case core.ParticipantsChanged:
		available := false
		for _, p := range e.Remote {
			if p.IsAgent {
				available = true
				break
			}
		}
		if available != o.agentAvailable {
			o.agentAvailable = available
			log.Info().Str("module", "orch").Bool("available", available).Int("remote", len(e.Remote)).Msg("agent availability changed")
			o.changed()
		}
	case core.PermissionsChanged:
		o.Visibility.SetPermissions(e.Permissions)
	case core.Connected:
		o.Visibility.SetPermissions(o.Room.Permissions())
	case core.Disconnected:
		if o.agentAvailable {
			o.agentAvailable = false
			o.changed()
		}
	}
}

// onData feeds the transcript. The agent event topic has its own subscriber.
func (o *Orchestrator) onData(e core.DataReceived) {
	var (
		msg domain.ChatMessage
		err error
	)
	switch e.Topic {
	case transcript.ChatTopic:
		msg, err = transcript.DecodeChat(e.Payload, e.Participant)
	case transcript.TranscriptionTopic:
		msg, err = transcript.DecodeSegment(e.Payload, e.Participant)
	default:
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("topic", e.Topic).Msg("packet dropped")
		return
	}
	o.Transcript.Ingest(msg)
}
