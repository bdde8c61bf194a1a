package core

import "github.com/dkeye/VoiceAgent/internal/domain"

// RoomEvent is one of Connected, Disconnected, DataReceived,
// ParticipantsChanged or PermissionsChanged.
type RoomEvent interface {
	roomEvent()
}

type Connected struct{}

type Disconnected struct {
	Reason string
}

type PacketKind string

const (
	PacketReliable PacketKind = "reliable"
	PacketLossy    PacketKind = "lossy"
)

// DataReceived is an inbound data-channel packet. Participant is nil when the
// server itself sent the packet.
type DataReceived struct {
	Payload     []byte
	Participant *domain.Participant
	Kind        PacketKind
	Topic       string
}

type ParticipantsChanged struct {
	Remote []domain.Participant
}

type PermissionsChanged struct {
	Permissions domain.Permissions
}

func (Connected) roomEvent()           {}
func (Disconnected) roomEvent()        {}
func (DataReceived) roomEvent()        {}
func (ParticipantsChanged) roomEvent() {}
func (PermissionsChanged) roomEvent()  {}
