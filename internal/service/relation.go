// Package service contains application services for the request, confirm,
// and poll phases of the DFRN handshake.
package service

import "github.com/dfrnproto/dfrnd/internal/model"

// Branch identifies which side of the confirm handshake is executing.
type Branch int

const (
	// BranchApprover is the side whose user approved the intro and who
	// initiates the handshake POST.
	BranchApprover Branch = iota
	// BranchReceiver is the side answering the handshake POST.
	BranchReceiver
)

// NextRelation applies the relationship transition table for one branch
// and returns the new relation kind plus the resulting duplex flag.
//
// The approver's fresh relationships start as follower, the receiver's
// as sharing. Duplex upgrades an existing opposite-direction relation to
// friend; a duplex flag that would double-upgrade an already matching
// relation is cleared instead of producing an impossible state.
func NextRelation(branch Branch, current model.Relation, duplex bool) (model.Relation, bool) {
	if current == model.RelationFriend {
		return model.RelationFriend, false
	}

	fresh, opposite := model.RelationFollower, model.RelationFollower
	if branch == BranchApprover {
		opposite = model.RelationSharing
	} else {
		fresh = model.RelationSharing
	}

	switch current {
	case model.RelationNone:
		return fresh, duplex
	case opposite:
		if duplex {
			return model.RelationFriend, false
		}
		return current, false
	default: // same-direction relation already present
		if duplex {
			return model.RelationFriend, true
		}
		return current, false
	}
}
