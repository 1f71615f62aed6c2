package requests

import (
	"errors"
	"fmt"

	"github.com/ukydev/fleet-requests/internal/client"
	"github.com/ukydev/fleet-requests/internal/models"
	"github.com/ukydev/fleet-requests/internal/workflow"
)

// Kind is the user-facing class of a failed operation.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is a local precondition failure; nothing was sent.
	KindValidation
	// KindAuthorization means the action is not available to this user on
	// this snapshot.
	KindAuthorization
	// KindConflict means the request changed since it was fetched.
	KindConflict
	// KindTransient covers network failures, throttling and server errors.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// ErrDropped is returned when the caller's context ended before the backend
// answered; whatever the backend did, the result was not applied.
var ErrDropped = errors.New("caller went away; result dropped")

// Error wraps a failed operation with its Kind.
type Error struct {
	Kind   Kind
	Action workflow.Action
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Action, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify maps any error from the workflow, models or client packages to a
// Kind.
func Classify(err error) Kind {
	var opErr *Error
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	var verr *workflow.ValidationError
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &verr), errors.Is(err, models.ErrInvalidID), client.IsValidation(err):
		return KindValidation
	case errors.Is(err, workflow.ErrNotPermitted), client.IsForbidden(err):
		return KindAuthorization
	case errors.Is(err, workflow.ErrIllegalTransition), client.IsConflict(err):
		return KindConflict
	case client.IsTransient(err):
		return KindTransient
	default:
		return KindUnknown
	}
}

func wrap(a workflow.Action, err error) *Error {
	return &Error{Kind: Classify(err), Action: a, Err: err}
}
