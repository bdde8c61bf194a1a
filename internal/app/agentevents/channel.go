// Package agentevents demultiplexes the agent's side-channel protocol carried
// on the room's data path.
package agentevents

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const DefaultTopic = "agent_events"

//go:embed image.schema.json
var imageSchemaSource string

var imageSchema = mustCompile("https://voiceagent.local/schemas/image.schema.json", imageSchemaSource)

// Packet is the undecoded envelope {"type", "data"}.
type Packet struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Channel delivers decoded agent events from one topic. It is confined to the
// event loop. A malformed packet is logged and dropped; it never affects the
// packets after it.
type Channel struct {
	room       core.RoomEvents
	topic      string
	sub        core.Subscription
	subscribed bool

	onImage func(domain.ImageEvent)
}

func NewChannel(room core.RoomEvents) *Channel {
	return &Channel{room: room, topic: DefaultTopic}
}

func (c *Channel) OnImage(fn func(domain.ImageEvent)) { c.onImage = fn }

// Subscribe starts listening on topic, replacing any earlier subscription.
// An empty topic means DefaultTopic.
func (c *Channel) Subscribe(topic string) {
	c.Unsubscribe()
	if topic == "" {
		topic = DefaultTopic
	}
	c.topic = topic
	c.sub = c.room.On(c.handle)
	c.subscribed = true
	log.Debug().Str("module", "agentevents").Str("topic", topic).Msg("subscribed")
}

// Unsubscribe is idempotent.
func (c *Channel) Unsubscribe() {
	if !c.subscribed {
		return
	}
	c.room.Off(c.sub)
	c.subscribed = false
	log.Debug().Str("module", "agentevents").Str("topic", c.topic).Msg("unsubscribed")
}

func (c *Channel) Subscribed() bool { return c.subscribed }

func (c *Channel) Topic() string { return c.topic }

func (c *Channel) handle(ev core.RoomEvent) {
	data, ok := ev.(core.DataReceived)
	if !ok || data.Topic != c.topic {
		return
	}
	p, err := c.Decode(data.Payload)
	if err != nil {
		log.Warn().Err(err).Str("module", "agentevents").Str("topic", c.topic).Msg("packet dropped")
		return
	}
	c.Dispatch(p)
}

// Decode validates UTF-8 and parses the envelope.
func (c *Channel) Decode(payload []byte) (Packet, error) {
	if !utf8.Valid(payload) {
		return Packet{}, &domain.DecodeError{Topic: c.topic, Err: errors.New("payload is not valid utf-8")}
	}
	var p Packet
	if err := json.Unmarshal(payload, &p); err != nil {
		return Packet{}, &domain.DecodeError{Topic: c.topic, Err: err}
	}
	return p, nil
}

// Dispatch routes p to its callback. Unknown tags are ignored.
func (c *Channel) Dispatch(p Packet) {
	ev, err := c.Parse(p)
	if err != nil {
		log.Warn().Err(err).Str("module", "agentevents").Str("type", p.Type).Msg("event dropped")
		return
	}
	switch e := ev.(type) {
	case domain.ImageEvent:
		log.Info().Str("module", "agentevents").Str("url", e.URL).Msg("image event")
		if c.onImage != nil {
			c.onImage(e)
		}
	default:
		log.Debug().Str("module", "agentevents").Str("type", ev.Tag()).Msg("unknown event ignored")
	}
}

// Parse turns an envelope into a typed event.
func (c *Channel) Parse(p Packet) (domain.AgentEvent, error) {
	switch p.Type {
	case domain.TagImage:
		var img domain.ImageEvent
		if err := validate(imageSchema, p.Data, &img); err != nil {
			return nil, &domain.DecodeError{Topic: c.topic, Err: fmt.Errorf("image: %w", err)}
		}
		return img, nil
	default:
		return domain.UnknownEvent{Type: p.Type}, nil
	}
}

func validate(schema *jsonschema.Schema, raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return errors.New("missing data")
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func mustCompile(name, src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("add schema resource %s: %v", name, err))
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return schema
}
