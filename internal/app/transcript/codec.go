package transcript

import (
	"encoding/json"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/dkeye/VoiceAgent/internal/domain"
)

const (
	ChatTopic          = "lk-chat-topic"
	TranscriptionTopic = "lk.transcription"
)

var errInvalidUTF8 = errors.New("payload is not valid utf-8")

type chatPacket struct {
	ID            string `json:"id"`
	Timestamp     int64  `json:"timestamp"`
	Message       string `json:"message"`
	EditTimestamp *int64 `json:"editTimestamp,omitempty"`
}

type segmentPacket struct {
	ID                string `json:"id"`
	Text              string `json:"text"`
	Final             bool   `json:"final"`
	FirstReceivedTime int64  `json:"firstReceivedTime"`
	LastReceivedTime  int64  `json:"lastReceivedTime,omitempty"`
}

// DecodeChat turns a chat packet into a transcript message.
func DecodeChat(payload []byte, from *domain.Participant) (domain.ChatMessage, error) {
	var p chatPacket
	if err := unmarshal(payload, &p); err != nil {
		return domain.ChatMessage{}, &domain.DecodeError{Topic: ChatTopic, Err: err}
	}
	if p.ID == "" {
		return domain.ChatMessage{}, &domain.DecodeError{Topic: ChatTopic, Err: errors.New("missing id")}
	}
	msg := domain.ChatMessage{
		ID:        domain.MessageID(p.ID),
		Text:      p.Message,
		Timestamp: time.UnixMilli(p.Timestamp),
	}
	if from != nil {
		msg.From = *from
	}
	if p.EditTimestamp != nil {
		at := time.UnixMilli(*p.EditTimestamp)
		msg.EditedAt = &at
	}
	return msg, nil
}

// EncodeChat is the inverse of DecodeChat for locally sent messages.
func EncodeChat(msg domain.ChatMessage) ([]byte, error) {
	p := chatPacket{
		ID:        string(msg.ID),
		Timestamp: msg.Timestamp.UnixMilli(),
		Message:   msg.Text,
	}
	if msg.EditedAt != nil {
		ms := msg.EditedAt.UnixMilli()
		p.EditTimestamp = &ms
	}
	return json.Marshal(p)
}

// DecodeSegment turns a transcription segment into a transcript message.
// Interim and final segments share an id, so later ones update earlier ones.
func DecodeSegment(payload []byte, from *domain.Participant) (domain.ChatMessage, error) {
	var p segmentPacket
	if err := unmarshal(payload, &p); err != nil {
		return domain.ChatMessage{}, &domain.DecodeError{Topic: TranscriptionTopic, Err: err}
	}
	if p.ID == "" {
		return domain.ChatMessage{}, &domain.DecodeError{Topic: TranscriptionTopic, Err: errors.New("missing id")}
	}
	msg := domain.ChatMessage{
		ID:        domain.MessageID(p.ID),
		Text:      p.Text,
		Timestamp: time.UnixMilli(p.FirstReceivedTime),
	}
	if from != nil {
		msg.From = *from
	}
	if p.LastReceivedTime > p.FirstReceivedTime {
		at := time.UnixMilli(p.LastReceivedTime)
		msg.EditedAt = &at
	}
	return msg, nil
}

func unmarshal(payload []byte, v any) error {
	if !utf8.Valid(payload) {
		return errInvalidUTF8
	}
	return json.Unmarshal(payload, v)
}
