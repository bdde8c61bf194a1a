package rtc

import (
	"sync/atomic"

	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/pion/webrtc/v4"
)

// TrackState gates what the publisher loop does with packets read from a device.
type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

// OutTrack is one published local track. It starts muted.
type OutTrack struct {
	Kind  domain.DeviceKind
	Track *webrtc.TrackLocalStaticRTP
	state atomic.Int32
}

func NewOutTrack(kind domain.DeviceKind, track *webrtc.TrackLocalStaticRTP) *OutTrack {
	ot := &OutTrack{Kind: kind, Track: track}
	ot.MarkMuted()
	return ot
}

// GetState is read by the forward loop for every packet; only TrackStateOk packets are written.
func (ot *OutTrack) GetState() TrackState {
	return TrackState(ot.state.Load())
}

// MarkOk unmutes the device. Publisher.SetEnabled calls it when the session enables the device.
func (ot *OutTrack) MarkOk() {
	ot.state.Store(int32(TrackStateOk))
}

// MarkMuted keeps the track negotiated but drops its packets.
// Publisher.SetEnabled calls it when the session disables the device.
func (ot *OutTrack) MarkMuted() {
	ot.state.Store(int32(TrackStateMuted))
}

// MarkDelete is terminal: set on Detach or a source/write failure, it stops the
// forward loop and makes SetEnabled report the device as unavailable.
func (ot *OutTrack) MarkDelete() {
	ot.state.Store(int32(TrackStateDelete))
}
