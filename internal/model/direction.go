package model

import (
	"fmt"
	"strings"
)

// Direction says from which end of a duplex relationship an id was
// issued, so each side knows which keypair decrypts it.
type Direction int

const (
	// DirectionLegacy marks ids from peers predating duplex encoding
	// (no prefix on the wire).
	DirectionLegacy Direction = -1
	// DirectionInbound marks ids issued by the receiving side ("0:" prefix).
	DirectionInbound Direction = 0
	// DirectionOutbound marks ids issued by the calling side ("1:" prefix).
	DirectionOutbound Direction = 1
)

// DirectionalID is a relationship id together with its traversal
// direction. It replaces the wire's ad hoc "0:"/"1:" string prefixes.
type DirectionalID struct {
	Direction Direction
	ID        string
}

// ParseDirectionalID decodes a wire id of the form "0:token", "1:token",
// or a bare legacy token.
func ParseDirectionalID(s string) DirectionalID {
	switch {
	case strings.HasPrefix(s, "0:"):
		return DirectionalID{Direction: DirectionInbound, ID: s[2:]}
	case strings.HasPrefix(s, "1:"):
		return DirectionalID{Direction: DirectionOutbound, ID: s[2:]}
	default:
		return DirectionalID{Direction: DirectionLegacy, ID: s}
	}
}

// String re-encodes the id for the wire.
func (d DirectionalID) String() string {
	switch d.Direction {
	case DirectionInbound:
		return fmt.Sprintf("0:%s", d.ID)
	case DirectionOutbound:
		return fmt.Sprintf("1:%s", d.ID)
	default:
		return d.ID
	}
}
