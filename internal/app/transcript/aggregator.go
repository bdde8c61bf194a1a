// Package transcript merges chat and transcription messages from every
// producer into one ordered transcript.
package transcript

import (
	"slices"

	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/rs/zerolog/log"
)

// Aggregator is append-or-update only. It is confined to the event loop.
type Aggregator struct {
	byID     map[domain.MessageID]int
	msgs     []domain.ChatMessage
	onChange []func()
}

func NewAggregator() *Aggregator {
	return &Aggregator{byID: make(map[domain.MessageID]int)}
}

func (a *Aggregator) OnChange(fn func()) { a.onChange = append(a.onChange, fn) }

// Ingest upserts msg by id and reports whether the transcript changed.
// Ingesting the same content twice leaves one unchanged entry.
func (a *Aggregator) Ingest(msg domain.ChatMessage) bool {
	if msg.ID == "" {
		log.Warn().Str("module", "transcript").Str("from", string(msg.From.Identity)).Msg("message without id dropped")
		return false
	}
	if idx, ok := a.byID[msg.ID]; ok {
		merged := merge(a.msgs[idx], msg)
		if sameMessage(merged, a.msgs[idx]) {
			return false
		}
		a.msgs[idx] = merged
		log.Debug().Str("module", "transcript").Str("id", string(msg.ID)).Msg("message updated")
		a.changed()
		return true
	}
	a.byID[msg.ID] = len(a.msgs)
	a.msgs = append(a.msgs, msg)
	log.Debug().Str("module", "transcript").Str("id", string(msg.ID)).Bool("local", msg.From.IsLocal).Msg("message added")
	a.changed()
	return true
}

// Messages returns a copy sorted by (timestamp, id).
func (a *Aggregator) Messages() []domain.ChatMessage {
	out := slices.Clone(a.msgs)
	slices.SortStableFunc(out, func(x, y domain.ChatMessage) int {
		switch {
		case x.Less(y):
			return -1
		case y.Less(x):
			return 1
		}
		return 0
	})
	return out
}

// LastMessageIsLocal decides whether the UI should auto-scroll to the bottom.
func (a *Aggregator) LastMessageIsLocal() bool {
	msgs := a.Messages()
	if len(msgs) == 0 {
		return false
	}
	return msgs[len(msgs)-1].From.IsLocal
}

func (a *Aggregator) Len() int { return len(a.msgs) }

// Reset drops everything; used when a new session starts.
func (a *Aggregator) Reset() {
	if len(a.msgs) == 0 {
		return
	}
	a.byID = make(map[domain.MessageID]int)
	a.msgs = nil
	a.changed()
}

func (a *Aggregator) changed() {
	for _, fn := range a.onChange {
		fn()
	}
}

func merge(cur, next domain.ChatMessage) domain.ChatMessage {
	out := cur
	out.Text = next.Text
	if out.Timestamp.IsZero() {
		out.Timestamp = next.Timestamp
	}
	if next.EditedAt != nil {
		at := *next.EditedAt
		out.EditedAt = &at
	}
	if next.From.Identity != "" {
		out.From = next.From
	}
	return out
}

func sameMessage(a, b domain.ChatMessage) bool {
	if a.ID != b.ID || a.Text != b.Text || a.From != b.From || !a.Timestamp.Equal(b.Timestamp) {
		return false
	}
	switch {
	case a.EditedAt == nil && b.EditedAt == nil:
		return true
	case a.EditedAt == nil || b.EditedAt == nil:
		return false
	}
	return a.EditedAt.Equal(*b.EditedAt)
}
