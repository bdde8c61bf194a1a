package room

import (
	"fmt"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/vmihailenco/msgpack/v5"
)

// frame is the envelope of every data-channel message.
type frame struct {
	Topic   string              `msgpack:"topic"`
	From    *domain.Participant `msgpack:"from,omitempty"`
	Kind    core.PacketKind     `msgpack:"kind"`
	Payload []byte              `msgpack:"payload"`
}

func encodeFrame(f frame) ([]byte, error) {
	b, err := msgpack.Marshal(&f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return b, nil
}

func decodeFrame(b []byte) (frame, error) {
	var f frame
	if err := msgpack.Unmarshal(b, &f); err != nil {
		return frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Kind == "" {
		f.Kind = core.PacketReliable
	}
	return f, nil
}
