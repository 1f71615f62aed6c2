// Package workflow holds the vehicle request lifecycle: the status state
// machine, the role-gated action resolver, trip progress tracking and the
// reminder escalation policy. Everything here is pure; callers pass the
// current user, the request snapshot and the clock explicitly.
package workflow

import (
	"fmt"
	"strings"
)

// Action is a user-facing operation on a request.
type Action int

const (
	ActionViewDetail Action = iota
	ActionApprove
	ActionReject
	ActionCancel
	ActionStartUsing
	ActionEndUsage
	ActionRemind
)

// AllActions lists every Action.
var AllActions = []Action{
	ActionViewDetail,
	ActionApprove,
	ActionReject,
	ActionCancel,
	ActionStartUsing,
	ActionEndUsage,
	ActionRemind,
}

var actionNames = map[Action]string{
	ActionViewDetail: "view",
	ActionApprove:    "approve",
	ActionReject:     "reject",
	ActionCancel:     "cancel",
	ActionStartUsing: "start",
	ActionEndUsage:   "end",
	ActionRemind:     "remind",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// ParseAction resolves a command-line style action name.
func ParseAction(name string) (Action, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for a, n := range actionNames {
		if n == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", name)
}

// Mutates reports whether the action asks the backend to change state.
// Remind is included: it triggers a notification even though the status
// stays the same.
func (a Action) Mutates() bool {
	return a != ActionViewDetail
}

// ActionSet is an unordered set of actions.
type ActionSet uint16

// NewActionSet builds a set from the given actions.
func NewActionSet(actions ...Action) ActionSet {
	var s ActionSet
	for _, a := range actions {
		s = s.With(a)
	}
	return s
}

// With returns s plus a.
func (s ActionSet) With(a Action) ActionSet {
	return s | 1<<uint(a)
}

// Has reports whether a is in the set.
func (s ActionSet) Has(a Action) bool {
	return s&(1<<uint(a)) != 0
}

// Len returns the number of actions in the set.
func (s ActionSet) Len() int {
	n := 0
	for _, a := range AllActions {
		if s.Has(a) {
			n++
		}
	}
	return n
}

// Actions returns the members in declaration order.
func (s ActionSet) Actions() []Action {
	out := make([]Action, 0, len(AllActions))
	for _, a := range AllActions {
		if s.Has(a) {
			out = append(out, a)
		}
	}
	return out
}

// SubsetOf reports whether every member of s is also in other.
func (s ActionSet) SubsetOf(other ActionSet) bool {
	return s&^other == 0
}

func (s ActionSet) String() string {
	names := make([]string, 0, len(AllActions))
	for _, a := range s.Actions() {
		names = append(names, a.String())
	}
	return "{" + strings.Join(names, ", ") + "}"
}
