package http

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickViewer
)

// Policy decides what happens to a viewer whose send buffer is full.
type Policy interface {
	OnBackpressure(dropped int) BackpressureAction
}

// SimplePolicy kicks a viewer after MaxDropped frames in a row.
type SimplePolicy struct {
	MaxDropped int
}

func (p SimplePolicy) OnBackpressure(dropped int) BackpressureAction {
	if p.MaxDropped > 0 && dropped >= p.MaxDropped {
		return KickViewer
	}
	return DropFrame
}

// Hub fans state snapshots out to every connected viewer.
type Hub struct {
	mu      sync.RWMutex
	viewers map[string]*viewer
	policy  Policy
}

func NewHub(policy Policy) *Hub {
	if policy == nil {
		policy = SimplePolicy{MaxDropped: 8}
	}
	return &Hub{viewers: make(map[string]*viewer), policy: policy}
}

func (h *Hub) Bind(v *viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.viewers[v.id] = v
	log.Info().Str("module", "adapters.http").Str("viewer", v.id).Str("client", v.client).Int("viewers", len(h.viewers)).Msg("bound viewer")
}

func (h *Hub) Unbind(v *viewer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.viewers[v.id]; ok {
		delete(h.viewers, v.id)
		log.Info().Str("module", "adapters.http").Str("viewer", v.id).Int("viewers", len(h.viewers)).Msg("unbound viewer")
	}
}

// CloseAll disconnects every viewer.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	viewers := h.viewers
	h.viewers = make(map[string]*viewer)
	h.mu.Unlock()
	for _, v := range viewers {
		v.Close()
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

// Broadcast marshals v once and queues it on every viewer. Slow viewers
// miss the frame or get kicked, as the policy says.
func (h *Hub) Broadcast(v any) {
	data, err := encodeState(v)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("marshal state")
		return
	}
	var kick []*viewer
	h.mu.RLock()
	for id, vw := range h.viewers {
		if err := vw.TrySend(data); err != nil {
			if errors.Is(err, ErrBackpressure) && h.policy.OnBackpressure(vw.Dropped()) == KickViewer {
				kick = append(kick, vw)
				continue
			}
			log.Warn().Err(err).Str("module", "adapters.http").Str("viewer", id).Msg("state frame dropped")
		}
	}
	h.mu.RUnlock()

	for _, vw := range kick {
		log.Warn().Str("module", "adapters.http").Str("viewer", vw.id).Msg("kicking slow viewer")
		h.Unbind(vw)
		vw.Close()
	}
}

type stateFrame struct {
	Type  string `json:"type"`
	State any    `json:"state"`
}

func encodeState(v any) ([]byte, error) {
	return json.Marshal(stateFrame{Type: "state", State: v})
}
