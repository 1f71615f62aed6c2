package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestStatusDisplay_CoversEveryStatus(t *testing.T) {
	seen := map[string]bool{}
	for _, s := range Statuses {
		d, err := StatusDisplay(s)
		if err != nil {
			t.Fatalf("StatusDisplay(%d) returned error: %v", s, err)
		}
		if d.Label == "" || d.Color == "" {
			t.Errorf("StatusDisplay(%d) has empty label or color: %+v", s, d)
		}
		if seen[d.Label] {
			t.Errorf("duplicate label %q", d.Label)
		}
		seen[d.Label] = true
	}

	if _, err := StatusDisplay(Status(42)); !errors.Is(err, ErrUnknownEnum) {
		t.Errorf("expected ErrUnknownEnum for unmapped status, got %v", err)
	}
}

func TestOtherDisplays_CoverEveryMember(t *testing.T) {
	for _, r := range Roles {
		if _, err := RoleDisplay(r); err != nil {
			t.Errorf("RoleDisplay(%d): %v", r, err)
		}
	}
	for _, m := range MaintenanceStatuses {
		if _, err := MaintenanceStatusDisplay(m); err != nil {
			t.Errorf("MaintenanceStatusDisplay(%d): %v", m, err)
		}
	}
	for _, n := range NotificationTypes {
		if _, err := NotificationTypeDisplay(n); err != nil {
			t.Errorf("NotificationTypeDisplay(%s): %v", n, err)
		}
	}
	for _, c := range []CheckPointType{CheckIn, CheckOut} {
		if _, err := CheckPointTypeDisplay(c); err != nil {
			t.Errorf("CheckPointTypeDisplay(%d): %v", c, err)
		}
	}
	if _, err := NotificationTypeDisplay("SOMETHING_NEW"); !errors.Is(err, ErrUnknownEnum) {
		t.Errorf("expected ErrUnknownEnum, got %v", err)
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusApproved, false},
		{StatusRejected, true},
		{StatusCancelled, true},
		{StatusInProgress, false},
		{StatusDone, true},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestStatus_UnmarshalJSON(t *testing.T) {
	var s Status
	if err := json.Unmarshal([]byte("4"), &s); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if s != StatusInProgress {
		t.Errorf("expected InProgress, got %v", s)
	}

	if err := json.Unmarshal([]byte("6"), &s); !errors.Is(err, ErrUnknownEnum) {
		t.Errorf("expected ErrUnknownEnum for 6, got %v", err)
	}
	if err := json.Unmarshal([]byte(`"pending"`), &s); err == nil {
		t.Error("expected error for string status")
	}
}

func TestParseStatus(t *testing.T) {
	for i, want := range Statuses {
		got, err := ParseStatus(i)
		if err != nil {
			t.Fatalf("ParseStatus(%d): %v", i, err)
		}
		if got != want {
			t.Errorf("ParseStatus(%d) = %v, want %v", i, got, want)
		}
	}
	if _, err := ParseStatus(-1); err == nil {
		t.Error("expected error for -1")
	}
}
