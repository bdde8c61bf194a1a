// Package token fetches room credentials from a connection-details endpoint.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/rs/zerolog/log"
)

const maxResponseBytes = 64 * 1024

// HTTPClient is the transport seam.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Provider struct {
	endpoint string
	client   HTTPClient
}

var _ core.TokenProvider = (*Provider)(nil)

func NewProvider(endpoint string, client HTTPClient) *Provider {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Provider{endpoint: endpoint, client: client}
}

type agentDispatch struct {
	AgentName string `json:"agent_name"`
}

type roomConfig struct {
	Agents []agentDispatch `json:"agents,omitempty"`
}

type request struct {
	RoomConfig *roomConfig `json:"room_config,omitempty"`
}

// FetchConnectionDetails asks the endpoint for a fresh join. The configured
// agent, if any, is dispatched into the room.
func (p *Provider) FetchConnectionDetails(ctx context.Context, cfg domain.AppConfig) (domain.ConnectionDetails, error) {
	if p.endpoint == "" {
		return domain.ConnectionDetails{}, errors.New("token endpoint not configured")
	}
	var body request
	if cfg.AgentName != "" {
		body.RoomConfig = &roomConfig{Agents: []agentDispatch{{AgentName: cfg.AgentName}}}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return domain.ConnectionDetails{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(raw))
	if err != nil {
		return domain.ConnectionDetails{}, fmt.Errorf("build connection-details request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.SandboxID != "" {
		req.Header.Set("X-Sandbox-Id", cfg.SandboxID)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.ConnectionDetails{}, fmt.Errorf("request connection details: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.ConnectionDetails{}, fmt.Errorf("read connection details: %w", err)
	}
	if resp.StatusCode >= 300 {
		return domain.ConnectionDetails{}, fmt.Errorf("connection details failed status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var details domain.ConnectionDetails
	if err := json.Unmarshal(payload, &details); err != nil {
		return domain.ConnectionDetails{}, fmt.Errorf("decode connection details: %w", err)
	}
	if details.ServerURL == "" || details.ParticipantToken == "" {
		return domain.ConnectionDetails{}, errors.New("connection details missing serverUrl or participantToken")
	}
	log.Info().
		Str("module", "token").
		Str("room", string(details.RoomName)).
		Str("participant", details.ParticipantName).
		Msg("connection details fetched")
	return details, nil
}
