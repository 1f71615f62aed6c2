package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEnum is returned when a wire value falls outside a closed enum.
var ErrUnknownEnum = errors.New("unknown enum value")

// Display is the presentation attached to an enum member.
type Display struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Icon  string `json:"icon,omitempty"`
}

// Status is the workflow state of a vehicle request. The integer encoding
// is shared with the backend.
type Status int

const (
	StatusPending Status = iota
	StatusApproved
	StatusRejected
	StatusCancelled
	StatusInProgress
	StatusDone
)

// Statuses lists every Status in wire order.
var Statuses = []Status{
	StatusPending,
	StatusApproved,
	StatusRejected,
	StatusCancelled,
	StatusInProgress,
	StatusDone,
}

// ParseStatus converts a wire integer into a Status.
func ParseStatus(v int) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return 0, fmt.Errorf("status %d: %w", v, ErrUnknownEnum)
	}
	return s, nil
}

// Valid reports whether s is a member of the closed set.
func (s Status) Valid() bool {
	return s >= StatusPending && s <= StatusDone
}

// IsTerminal reports whether no transition may leave s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusCancelled, StatusDone:
		return true
	default:
		return false
	}
}

// RequiresReason reports whether a request in status s must carry a
// cancel or reject reason.
func (s Status) RequiresReason() bool {
	return s == StatusRejected || s == StatusCancelled
}

func (s Status) String() string {
	d, err := StatusDisplay(s)
	if err != nil {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return d.Label
}

// UnmarshalJSON rejects integers outside the closed set.
func (s *Status) UnmarshalJSON(data []byte) error {
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	parsed, err := ParseStatus(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// StatusDisplay maps a Status to its label and color.
func StatusDisplay(s Status) (Display, error) {
	switch s {
	case StatusPending:
		return Display{Label: "Pending", Color: "amber", Icon: "clock"}, nil
	case StatusApproved:
		return Display{Label: "Approved", Color: "green", Icon: "check-circle"}, nil
	case StatusRejected:
		return Display{Label: "Rejected", Color: "red", Icon: "x-circle"}, nil
	case StatusCancelled:
		return Display{Label: "Cancelled", Color: "gray", Icon: "slash"}, nil
	case StatusInProgress:
		return Display{Label: "In progress", Color: "blue", Icon: "truck"}, nil
	case StatusDone:
		return Display{Label: "Done", Color: "teal", Icon: "flag"}, nil
	}
	return Display{}, fmt.Errorf("status %d: %w", int(s), ErrUnknownEnum)
}

// Role is a user's access level. Admin=0, Employee=1, Manager=2.
type Role int

const (
	RoleAdmin Role = iota
	RoleEmployee
	RoleManager
)

// Roles lists every Role in wire order.
var Roles = []Role{RoleAdmin, RoleEmployee, RoleManager}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleEmployee, RoleManager:
		return true
	default:
		return false
	}
}

// IsManager reports whether the role may approve, reject and remind.
// Admin is treated as a superset of Manager.
func (r Role) IsManager() bool {
	return r == RoleManager || r == RoleAdmin
}

func (r Role) String() string {
	d, err := RoleDisplay(r)
	if err != nil {
		return fmt.Sprintf("Role(%d)", int(r))
	}
	return d.Label
}

// UnmarshalJSON rejects integers outside the closed set.
func (r *Role) UnmarshalJSON(data []byte) error {
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode role: %w", err)
	}
	if !IsValidRole(Role(v)) {
		return fmt.Errorf("role %d: %w", v, ErrUnknownEnum)
	}
	*r = Role(v)
	return nil
}

// RoleDisplay maps a Role to its label and color.
func RoleDisplay(r Role) (Display, error) {
	switch r {
	case RoleAdmin:
		return Display{Label: "Admin", Color: "purple", Icon: "shield"}, nil
	case RoleEmployee:
		return Display{Label: "Employee", Color: "blue", Icon: "user"}, nil
	case RoleManager:
		return Display{Label: "Manager", Color: "indigo", Icon: "briefcase"}, nil
	}
	return Display{}, fmt.Errorf("role %d: %w", int(r), ErrUnknownEnum)
}

// MaintenanceStatus is the state of a vehicle maintenance window.
type MaintenanceStatus int

const (
	MaintenanceScheduled MaintenanceStatus = iota
	MaintenanceInProgress
	MaintenanceCompleted
	MaintenanceCancelled
)

// MaintenanceStatuses lists every MaintenanceStatus in wire order.
var MaintenanceStatuses = []MaintenanceStatus{
	MaintenanceScheduled,
	MaintenanceInProgress,
	MaintenanceCompleted,
	MaintenanceCancelled,
}

// UnmarshalJSON rejects integers outside the closed set.
func (m *MaintenanceStatus) UnmarshalJSON(data []byte) error {
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode maintenance status: %w", err)
	}
	if _, err := MaintenanceStatusDisplay(MaintenanceStatus(v)); err != nil {
		return err
	}
	*m = MaintenanceStatus(v)
	return nil
}

// MaintenanceStatusDisplay maps a MaintenanceStatus to its label and color.
func MaintenanceStatusDisplay(m MaintenanceStatus) (Display, error) {
	switch m {
	case MaintenanceScheduled:
		return Display{Label: "Scheduled", Color: "amber", Icon: "calendar"}, nil
	case MaintenanceInProgress:
		return Display{Label: "In maintenance", Color: "orange", Icon: "wrench"}, nil
	case MaintenanceCompleted:
		return Display{Label: "Completed", Color: "green", Icon: "check"}, nil
	case MaintenanceCancelled:
		return Display{Label: "Cancelled", Color: "gray", Icon: "slash"}, nil
	}
	return Display{}, fmt.Errorf("maintenance status %d: %w", int(m), ErrUnknownEnum)
}
