package signal

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type candidatePayload struct {
	Type          string  `json:"type"`
	Candidate     string  `json:"candidate"`
	SDPMid        string  `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

func (c *Client) SendOffer(offer webrtc.SessionDescription) error {
	return c.sendJSON(map[string]string{
		"type": "offer",
		"sdp":  offer.SDP,
	})
}

func (c *Client) SendCandidate(ci webrtc.ICECandidateInit) error {
	resp := candidatePayload{
		Type:          "candidate",
		Candidate:     ci.Candidate,
		SDPMLineIndex: ci.SDPMLineIndex,
	}
	if ci.SDPMid != nil {
		resp.SDPMid = *ci.SDPMid
	}
	return c.sendJSON(resp)
}

func (c *Client) handleAnswer(data []byte) {
	var p struct {
		SDP string `json:"sdp"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad answer payload")
		return
	}
	c.handler.OnAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: p.SDP})
}

func (c *Client) handleCandidate(data []byte) {
	var p candidatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad candidate payload")
		return
	}
	cand := webrtc.ICECandidateInit{
		Candidate:     p.Candidate,
		SDPMLineIndex: p.SDPMLineIndex,
	}
	if p.SDPMid != "" {
		cand.SDPMid = &p.SDPMid
	}
	c.handler.OnCandidate(cand)
}
