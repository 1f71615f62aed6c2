package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ukydev/fleet-requests/internal/models"
)

func TestResolveActions(t *testing.T) {
	owner := models.User{UserID: "u1", Role: models.RoleEmployee}
	stranger := models.User{UserID: "u2", Role: models.RoleEmployee}
	manager := models.User{UserID: "m1", Role: models.RoleManager}
	admin := models.User{UserID: "a1", Role: models.RoleAdmin}
	managerOwner := models.User{UserID: "u1", Role: models.RoleManager}

	tests := []struct {
		name   string
		user   models.User
		status models.Status
		want   []Action
	}{
		{"manager on pending", manager, models.StatusPending, []Action{ActionViewDetail, ActionApprove, ActionReject}},
		{"admin on pending", admin, models.StatusPending, []Action{ActionViewDetail, ActionApprove, ActionReject}},
		{"manager on approved", manager, models.StatusApproved, []Action{ActionViewDetail, ActionCancel}},
		{"manager on in progress", manager, models.StatusInProgress, []Action{ActionViewDetail, ActionRemind}},
		{"owner on pending", owner, models.StatusPending, []Action{ActionViewDetail, ActionCancel}},
		{"owner on approved", owner, models.StatusApproved, []Action{ActionViewDetail, ActionCancel, ActionStartUsing}},
		{"owner on in progress", owner, models.StatusInProgress, []Action{ActionViewDetail, ActionEndUsage}},
		{"stranger on approved", stranger, models.StatusApproved, []Action{ActionViewDetail}},
		{"manager owning approved", managerOwner, models.StatusApproved, []Action{ActionViewDetail}},
		{"owner on done", owner, models.StatusDone, []Action{ActionViewDetail}},
		{"manager on rejected", manager, models.StatusRejected, []Action{ActionViewDetail}},
		{"owner on cancelled", owner, models.StatusCancelled, []Action{ActionViewDetail}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := models.Request{UserID: "u1", Status: tt.status}
			got := ResolveActions(tt.user, req)
			assert.Equal(t, tt.want, got.Actions())
		})
	}
}

func TestResolveActions_AlwaysIncludesView(t *testing.T) {
	for _, role := range models.Roles {
		for _, s := range models.Statuses {
			got := ResolveActions(models.User{UserID: "x", Role: role}, models.Request{UserID: "y", Status: s})
			assert.True(t, got.Has(ActionViewDetail), "%s on %s", role, s)
		}
	}
}

func TestResolveActions_EmptyUserIDNeverOwns(t *testing.T) {
	got := ResolveActions(models.User{Role: models.RoleEmployee}, models.Request{Status: models.StatusApproved})
	assert.Equal(t, NewActionSet(ActionViewDetail), got)
}

func TestResolveControls(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	manager := models.User{UserID: "m1", Role: models.RoleManager}
	owner := models.User{UserID: "u1", Role: models.RoleEmployee}

	t.Run("approve label follows driver requirement", func(t *testing.T) {
		req := models.Request{UserID: "u1", Status: models.StatusPending, IsDriverRequired: true}
		controls := ResolveControls(manager, req, now, false)
		assert.Len(t, controls, 3)
		assert.Equal(t, "View detail", controls[0].Label)
		assert.Equal(t, "Approve & assign driver", controls[1].Label)
		assert.Equal(t, "Reject", controls[2].Label)

		req.IsDriverRequired = false
		controls = ResolveControls(manager, req, now, false)
		assert.Equal(t, "Approve", controls[1].Label)
	})

	t.Run("owner controls on approved", func(t *testing.T) {
		req := models.Request{UserID: "u1", Status: models.StatusApproved}
		controls := ResolveControls(owner, req, now, false)
		var labels []string
		for _, c := range controls {
			labels = append(labels, c.Label)
		}
		assert.Equal(t, []string{"View detail", "Cancel request", "Start using"}, labels)
	})

	t.Run("remind escalates when overdue", func(t *testing.T) {
		req := models.Request{UserID: "u1", Status: models.StatusInProgress, EndTime: now.Add(-36 * time.Hour)}
		controls := ResolveControls(manager, req, now, false)
		assert.Len(t, controls, 2)
		assert.Equal(t, ActionRemind, controls[1].Action)
		assert.Equal(t, "red", controls[1].Color)
		assert.Equal(t, "Remind (overdue)", controls[1].Label)
		assert.False(t, controls[1].Disabled)
	})

	t.Run("remind disabled after sending", func(t *testing.T) {
		req := models.Request{UserID: "u1", Status: models.StatusInProgress, EndTime: now.Add(6 * time.Hour)}
		controls := ResolveControls(manager, req, now, true)
		assert.Equal(t, "Reminder sent", controls[1].Label)
		assert.Equal(t, "orange", controls[1].Color)
		assert.True(t, controls[1].Disabled)
	})
}
