package signal

import (
	"encoding/json"

	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/rs/zerolog/log"
)

func (c *Client) sendPing() {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "ping",
	}
	if err := c.sendJSON(resp); err != nil {
		log.Debug().Err(err).Str("module", "signal").Msg("ping not sent")
	}
}

// SendMute tells the server a published track was switched.
func (c *Client) SendMute(kind domain.DeviceKind, muted bool) error {
	return c.sendJSON(struct {
		Type  string            `json:"type"`
		Kind  domain.DeviceKind `json:"kind"`
		Muted bool              `json:"muted"`
	}{
		Type:  "mute",
		Kind:  kind,
		Muted: muted,
	})
}

func (c *Client) SendLeave() error {
	return c.sendJSON(struct {
		Type string `json:"type"`
	}{
		Type: "leave",
	})
}

func (c *Client) handleJoin(data []byte) {
	var p Join
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		return
	}
	log.Info().Str("module", "signal").Str("identity", string(p.Participant.Identity)).Int("participants", len(p.Participants)).Msg("joined")
	c.handler.OnJoin(p)
}

func (c *Client) handleParticipants(data []byte) {
	var p struct {
		Participants []domain.Participant `json:"participants"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad participants payload")
		return
	}
	c.handler.OnParticipants(p.Participants)
}

func (c *Client) handlePermissions(data []byte) {
	var p struct {
		Permissions domain.Permissions `json:"permissions"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad permissions payload")
		return
	}
	c.handler.OnPermissions(p.Permissions)
}

func (c *Client) handleLeave(data []byte) {
	var p struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad leave payload")
		return
	}
	log.Info().Str("module", "signal").Str("reason", p.Reason).Msg("server asked to leave")
	c.handler.OnLeave(p.Reason)
}
