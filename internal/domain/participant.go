// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const MaxIdentityLen = 128

var (
	ErrIdentityEmpty   = errors.New("identity empty")
	ErrIdentityTooLong = errors.New("identity too long")
)

type Identity string

// Participant identifies the producer of a message or data packet.
type Participant struct {
	Identity Identity `json:"identity" msgpack:"identity"`
	Name     string   `json:"name,omitempty" msgpack:"name,omitempty"`
	IsLocal  bool     `json:"isLocal" msgpack:"-"`
	IsAgent  bool     `json:"isAgent" msgpack:"agent,omitempty"`
}

// NewParticipant is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewParticipant(identity string, local bool) (Participant, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return Participant{}, ErrIdentityEmpty
	}
	if len(identity) > MaxIdentityLen {
		return Participant{}, ErrIdentityTooLong
	}
	return Participant{Identity: Identity(identity), IsLocal: local}, nil
}
