package workflow

import (
	"errors"
	"fmt"

	"github.com/ukydev/fleet-requests/internal/models"
)

var (
	// ErrIllegalTransition indicates the action is not defined for the
	// request's current status.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrNotPermitted indicates the actor's role or ownership does not allow
	// the action.
	ErrNotPermitted = errors.New("action not permitted")
)

// transitions is the complete table; anything absent is illegal.
var transitions = map[models.Status]map[Action]models.Status{
	models.StatusPending: {
		ActionApprove: models.StatusApproved,
		ActionReject:  models.StatusRejected,
		ActionCancel:  models.StatusCancelled,
	},
	models.StatusApproved: {
		ActionCancel:     models.StatusCancelled,
		ActionStartUsing: models.StatusInProgress,
	},
	models.StatusInProgress: {
		ActionEndUsage: models.StatusDone,
		ActionRemind:   models.StatusInProgress,
	},
	models.StatusRejected:  {},
	models.StatusCancelled: {},
	models.StatusDone:      {},
}

// Next returns the status an action leads to from the given status.
func Next(from models.Status, a Action) (models.Status, error) {
	next, ok := transitions[from][a]
	if !ok {
		return from, fmt.Errorf("%w: %s from %s", ErrIllegalTransition, a, from)
	}
	return next, nil
}

// Allowed returns the actions defined for a status, ignoring who acts.
func Allowed(from models.Status) ActionSet {
	var s ActionSet
	for a := range transitions[from] {
		s = s.With(a)
	}
	return s
}

// Authorize is the authoritative check run by whoever applies transitions:
// the action must be defined for the current status and the actor must hold
// the role or ownership the transition requires. It returns the resulting
// status.
func Authorize(actor models.User, req models.Request, a Action) (models.Status, error) {
	if !a.Mutates() {
		return req.Status, nil
	}
	next, err := Next(req.Status, a)
	if err != nil {
		return req.Status, err
	}

	owner := req.IsOwnedBy(actor.UserID)
	manager := actor.Role.IsManager()

	var permitted bool
	switch a {
	case ActionApprove, ActionReject, ActionRemind:
		permitted = manager
	case ActionCancel:
		if req.Status == models.StatusPending {
			permitted = owner
		} else {
			permitted = owner || manager
		}
	case ActionStartUsing, ActionEndUsage:
		permitted = owner
	}
	if !permitted {
		return req.Status, fmt.Errorf("%w: %s by %s on %s request", ErrNotPermitted, a, actor.Role, req.Status)
	}
	return next, nil
}
