package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/fleet-requests/internal/models"
)

func TestNext_TransitionTable(t *testing.T) {
	type edge struct {
		from   models.Status
		action Action
	}
	legal := map[edge]models.Status{
		{models.StatusPending, ActionApprove}:     models.StatusApproved,
		{models.StatusPending, ActionReject}:      models.StatusRejected,
		{models.StatusPending, ActionCancel}:      models.StatusCancelled,
		{models.StatusApproved, ActionCancel}:     models.StatusCancelled,
		{models.StatusApproved, ActionStartUsing}: models.StatusInProgress,
		{models.StatusInProgress, ActionEndUsage}: models.StatusDone,
		{models.StatusInProgress, ActionRemind}:   models.StatusInProgress,
	}

	for _, from := range models.Statuses {
		for _, a := range AllActions {
			next, err := Next(from, a)
			want, ok := legal[edge{from, a}]
			if ok {
				assert.NoError(t, err, "%s from %s", a, from)
				assert.Equal(t, want, next, "%s from %s", a, from)
				continue
			}
			assert.True(t, errors.Is(err, ErrIllegalTransition), "%s from %s should be illegal, got %v", a, from, err)
			assert.Equal(t, from, next, "illegal transitions must not move the status")
		}
	}
}

func TestAllowed_TerminalStatesAreEmpty(t *testing.T) {
	for _, s := range models.Statuses {
		if s.IsTerminal() {
			assert.Equal(t, 0, Allowed(s).Len(), "%s is terminal", s)
		} else {
			assert.NotZero(t, Allowed(s).Len(), "%s is not terminal", s)
		}
	}
}

func TestAuthorize_ActorRules(t *testing.T) {
	owner := models.User{UserID: "owner", Role: models.RoleEmployee}
	other := models.User{UserID: "other", Role: models.RoleEmployee}
	manager := models.User{UserID: "mgr", Role: models.RoleManager}
	admin := models.User{UserID: "adm", Role: models.RoleAdmin}

	tests := []struct {
		name    string
		actor   models.User
		status  models.Status
		action  Action
		wantErr error
		want    models.Status
	}{
		{"manager approves pending", manager, models.StatusPending, ActionApprove, nil, models.StatusApproved},
		{"admin rejects pending", admin, models.StatusPending, ActionReject, nil, models.StatusRejected},
		{"owner cannot approve", owner, models.StatusPending, ActionApprove, ErrNotPermitted, models.StatusPending},
		{"owner cancels pending", owner, models.StatusPending, ActionCancel, nil, models.StatusCancelled},
		{"manager cannot cancel someone's pending", manager, models.StatusPending, ActionCancel, ErrNotPermitted, models.StatusPending},
		{"manager cancels approved", manager, models.StatusApproved, ActionCancel, nil, models.StatusCancelled},
		{"owner cancels approved", owner, models.StatusApproved, ActionCancel, nil, models.StatusCancelled},
		{"stranger cannot cancel approved", other, models.StatusApproved, ActionCancel, ErrNotPermitted, models.StatusApproved},
		{"owner starts", owner, models.StatusApproved, ActionStartUsing, nil, models.StatusInProgress},
		{"manager cannot start for owner", manager, models.StatusApproved, ActionStartUsing, ErrNotPermitted, models.StatusApproved},
		{"owner ends", owner, models.StatusInProgress, ActionEndUsage, nil, models.StatusDone},
		{"manager reminds", manager, models.StatusInProgress, ActionRemind, nil, models.StatusInProgress},
		{"owner cannot remind", owner, models.StatusInProgress, ActionRemind, ErrNotPermitted, models.StatusInProgress},
		{"nobody leaves done", manager, models.StatusDone, ActionCancel, ErrIllegalTransition, models.StatusDone},
		{"view is always fine", other, models.StatusRejected, ActionViewDetail, nil, models.StatusRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := models.Request{UserID: owner.UserID, Status: tt.status}
			got, err := Authorize(tt.actor, req, tt.action)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

// The resolver is the client-side pre-flight; it must never offer an action
// the authoritative check would refuse.
func TestResolveActions_NeverExceedsAuthorize(t *testing.T) {
	users := []models.User{
		{UserID: "owner", Role: models.RoleEmployee},
		{UserID: "owner", Role: models.RoleManager},
		{UserID: "owner", Role: models.RoleAdmin},
		{UserID: "other", Role: models.RoleEmployee},
		{UserID: "other", Role: models.RoleManager},
		{UserID: "other", Role: models.RoleAdmin},
	}
	for _, u := range users {
		for _, s := range models.Statuses {
			req := models.Request{UserID: "owner", Status: s}
			offered := ResolveActions(u, req)
			assert.True(t, offered.SubsetOf(Allowed(s).With(ActionViewDetail)), "%s on %s", u.Role, s)
			for _, a := range offered.Actions() {
				_, err := Authorize(u, req, a)
				assert.NoError(t, err, "resolver offered %s to %s/%s on %s", a, u.UserID, u.Role, s)
			}
		}
	}
}
