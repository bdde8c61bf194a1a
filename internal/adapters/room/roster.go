package room

import (
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/VoiceAgent/internal/domain"
)

// roster tracks the remote participants of the joined room.
type roster struct {
	mu      sync.RWMutex
	local   domain.Identity
	members map[domain.Identity]domain.Participant
}

func newRoster() *roster {
	return &roster{members: make(map[domain.Identity]domain.Participant)}
}

func (r *roster) SetLocal(id domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local = id
	delete(r.members, id)
}

// Replace swaps the whole remote set. The local participant is never a member.
func (r *roster) Replace(ps []domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.members)
	for _, p := range ps {
		if p.Identity == "" || p.Identity == r.local {
			continue
		}
		p.IsLocal = false
		r.members[p.Identity] = p
	}
}

func (r *roster) Get(id domain.Identity) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.members[id]
	return p, ok
}

// Remote returns members ordered by identity.
func (r *roster) Remote() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Participant, 0, len(r.members))
	for _, p := range r.members {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b domain.Participant) int {
		return strings.Compare(string(a.Identity), string(b.Identity))
	})
	return out
}

func (r *roster) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local = ""
	clear(r.members)
}
