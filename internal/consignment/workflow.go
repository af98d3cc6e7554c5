// Package consignment implements the lifecycle of a vehicle offered to the
// fleet by a third party: submission, review, promotion into a rentable
// fleet vehicle, and completion.
package consignment

import (
	"github.com/ukydev/fleet-rental/internal/models"
	"github.com/ukydev/fleet-rental/internal/policy"
)

// Action is a workflow step applied to an existing consignment.
type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionPromote  Action = "promote"
	ActionComplete Action = "complete"
)

var transitions = map[models.ConsignmentStatus]map[Action]models.ConsignmentStatus{
	models.ConsignmentPending: {
		ActionApprove: models.ConsignmentApproved,
		ActionReject:  models.ConsignmentRejected,
	},
	models.ConsignmentApproved: {
		ActionPromote: models.ConsignmentActive,
	},
	models.ConsignmentActive: {
		ActionComplete: models.ConsignmentCompleted,
	},
}

// Next returns the state reached by applying action in state from.
func Next(from models.ConsignmentStatus, action Action) (models.ConsignmentStatus, bool) {
	to, ok := transitions[from][action]
	return to, ok
}

// ActionFor returns the action that moves a consignment into target.
// There is no action leading back to pending.
func ActionFor(target models.ConsignmentStatus) (Action, bool) {
	switch target {
	case models.ConsignmentApproved:
		return ActionApprove, true
	case models.ConsignmentRejected:
		return ActionReject, true
	case models.ConsignmentActive:
		return ActionPromote, true
	case models.ConsignmentCompleted:
		return ActionComplete, true
	default:
		return "", false
	}
}

// PolicyAction is the access policy action gating a.
func (a Action) PolicyAction() policy.Action {
	if a == ActionComplete {
		return policy.ActionReview
	}
	return policy.Action(a)
}
