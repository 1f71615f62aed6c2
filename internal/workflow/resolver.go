package workflow

import (
	"time"

	"github.com/ukydev/fleet-requests/internal/models"
)

// ResolveActions computes what user may do with req. Rules apply in order:
// view is always available; managers get the approval, cancellation and
// reminder actions; otherwise the owner gets the requester actions; anyone
// else only views. Re-run it on every fetched snapshot.
func ResolveActions(user models.User, req models.Request) ActionSet {
	set := NewActionSet(ActionViewDetail)

	switch {
	case user.Role.IsManager():
		switch req.Status {
		case models.StatusPending:
			set = set.With(ActionApprove).With(ActionReject)
		case models.StatusApproved:
			if !req.IsOwnedBy(user.UserID) {
				set = set.With(ActionCancel)
			}
		case models.StatusInProgress:
			set = set.With(ActionRemind)
		}
	case req.IsOwnedBy(user.UserID):
		switch req.Status {
		case models.StatusPending:
			set = set.With(ActionCancel)
		case models.StatusApproved:
			set = set.With(ActionCancel).With(ActionStartUsing)
		case models.StatusInProgress:
			set = set.With(ActionEndUsage)
		}
	}
	return set
}

// Control is a rendered action button.
type Control struct {
	Action   Action `json:"action"`
	Label    string `json:"label"`
	Color    string `json:"color,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// ResolveControls renders the resolved actions as buttons. reminderSent is
// the caller's session-scoped flag for this request.
func ResolveControls(user models.User, req models.Request, now time.Time, reminderSent bool) []Control {
	actions := ResolveActions(user, req).Actions()
	controls := make([]Control, 0, len(actions))
	for _, a := range actions {
		controls = append(controls, controlFor(a, req, now, reminderSent))
	}
	return controls
}

func controlFor(a Action, req models.Request, now time.Time, reminderSent bool) Control {
	switch a {
	case ActionApprove:
		if req.IsDriverRequired {
			return Control{Action: a, Label: "Approve & assign driver", Color: "green"}
		}
		return Control{Action: a, Label: "Approve", Color: "green"}
	case ActionReject:
		return Control{Action: a, Label: "Reject", Color: "red"}
	case ActionCancel:
		return Control{Action: a, Label: "Cancel request", Color: "gray"}
	case ActionStartUsing:
		return Control{Action: a, Label: "Start using", Color: "blue"}
	case ActionEndUsage:
		return Control{Action: a, Label: "End usage", Color: "teal"}
	case ActionRemind:
		r := ClassifyReminder(req.EndTime, now)
		if reminderSent {
			return Control{Action: a, Label: "Reminder sent", Color: r.Color, Disabled: true}
		}
		return Control{Action: a, Label: r.Label, Color: r.Color}
	default:
		return Control{Action: a, Label: "View detail"}
	}
}
