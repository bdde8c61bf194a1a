package domain

import (
	"strings"
	"time"
)

type MessageID string

// ChatMessage is one transcript entry, typed or transcribed.
type ChatMessage struct {
	ID        MessageID   `json:"id"`
	From      Participant `json:"from"`
	Text      string      `json:"text"`
	Timestamp time.Time   `json:"timestamp"`
	EditedAt  *time.Time  `json:"editedAt,omitempty"`
}

// Less orders messages by (timestamp, id).
func (m ChatMessage) Less(o ChatMessage) bool {
	if !m.Timestamp.Equal(o.Timestamp) {
		return m.Timestamp.Before(o.Timestamp)
	}
	return strings.Compare(string(m.ID), string(o.ID)) < 0
}
