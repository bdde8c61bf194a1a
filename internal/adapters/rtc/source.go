package rtc

import (
	"io"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pion/rtp"
)

// Source produces RTP packets for one local device.
type Source interface {
	ReadRTP() (*rtp.Packet, error)
}

const (
	opusPayloadType = 111
	opusFrame       = 20 * time.Millisecond
	opusFrameTicks  = 960
)

// opusSilence is a single Opus frame of digital silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SilenceSource paces Opus silence frames in real time. It stands in for a
// microphone on a headless client.
type SilenceSource struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once

	mu   sync.Mutex
	ssrc uint32
	seq  uint16
	ts   uint32
}

func NewSilenceSource() *SilenceSource {
	return &SilenceSource{
		ticker: time.NewTicker(opusFrame),
		done:   make(chan struct{}),
		ssrc:   rand.Uint32(),
		seq:    uint16(rand.UintN(1 << 16)),
		ts:     rand.Uint32(),
	}
}

func (s *SilenceSource) ReadRTP() (*rtp.Packet, error) {
	select {
	case <-s.done:
		return nil, io.EOF
	case <-s.ticker.C:
	}
	select {
	case <-s.done:
		return nil, io.EOF
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    opusPayloadType,
			SequenceNumber: s.seq,
			Timestamp:      s.ts,
			SSRC:           s.ssrc,
		},
		Payload: opusSilence,
	}
	s.seq++
	s.ts += opusFrameTicks
	return pkt, nil
}

func (s *SilenceSource) Close() error {
	s.once.Do(func() {
		s.ticker.Stop()
		close(s.done)
	})
	return nil
}
