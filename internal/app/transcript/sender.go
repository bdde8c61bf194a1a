package transcript

import (
	"context"
	"strings"
	"time"

	"github.com/dkeye/VoiceAgent/internal/app/loop"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Publisher is the part of the room the chat sender needs.
type Publisher interface {
	PublishData(ctx context.Context, topic string, payload []byte) error
}

// Sender is the chat transport. Local messages are echoed into the transcript
// immediately; while connecting they can be held in the pre-connect buffer.
type Sender struct {
	queue   core.Queue
	room    Publisher
	agg     *Aggregator
	now     func() time.Time
	local   domain.Participant
	buffer  bool
	timeout time.Duration

	pending []domain.ChatMessage
	onError func(error)
}

func NewSender(q core.Queue, room Publisher, agg *Aggregator, local domain.Participant, preConnectBuffer bool) *Sender {
	return &Sender{
		queue:   q,
		room:    room,
		agg:     agg,
		now:     time.Now,
		local:   local,
		buffer:  preConnectBuffer,
		timeout: 10 * time.Second,
	}
}

func (s *Sender) OnError(fn func(error)) { s.onError = fn }

// Send must run on the loop. state is the session state at the time of the call.
func (s *Sender) Send(text string, state domain.SessionState) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ErrEmptyMessage
	}
	msg := domain.ChatMessage{
		ID:        domain.MessageID(uuid.NewString()),
		From:      s.local,
		Text:      text,
		Timestamp: s.now(),
	}
	switch {
	case state == domain.SessionActive:
		s.agg.Ingest(msg)
		s.publish(msg)
	case state == domain.SessionConnecting && s.buffer:
		s.agg.Ingest(msg)
		s.pending = append(s.pending, msg)
		log.Debug().Str("module", "transcript").Int("pending", len(s.pending)).Msg("message buffered until connected")
	default:
		return domain.ErrNotConnected
	}
	return nil
}

// Flush publishes buffered messages in the order they were typed.
func (s *Sender) Flush() {
	pending := s.pending
	s.pending = nil
	if len(pending) == 0 {
		return
	}
	s.publish(pending...)
	log.Info().Str("module", "transcript").Int("count", len(pending)).Msg("pre-connect buffer flushed")
}

// Discard drops buffered messages that never reached the room.
func (s *Sender) Discard() {
	if len(s.pending) > 0 {
		log.Info().Str("module", "transcript").Int("count", len(s.pending)).Msg("pre-connect buffer discarded")
	}
	s.pending = nil
}

func (s *Sender) Pending() int { return len(s.pending) }

// publish sends msgs one after another on a single worker so the room sees
// them in order.
func (s *Sender) publish(msgs ...domain.ChatMessage) {
	payloads := make([][]byte, 0, len(msgs))
	for _, msg := range msgs {
		payload, err := EncodeChat(msg)
		if err != nil {
			s.fail(err)
			return
		}
		payloads = append(payloads, payload)
	}
	loop.Await(s.queue, func() (int, error) {
		for i, payload := range payloads {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			err := s.room.PublishData(ctx, ChatTopic, payload)
			cancel()
			if err != nil {
				return i, err
			}
		}
		return len(payloads), nil
	}, func(sent int, err error) {
		if err != nil {
			log.Error().Err(err).Str("module", "transcript").Str("id", string(msgs[sent].ID)).Msg("chat send failed")
			s.fail(err)
		}
	})
}

func (s *Sender) fail(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}
