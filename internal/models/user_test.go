package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		name     string
		role     Role
		expected bool
	}{
		{"admin role", RoleAdmin, true},
		{"employee role", RoleEmployee, true},
		{"manager role", RoleManager, true},
		{"negative role", Role(-1), false},
		{"out of range role", Role(3), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidRole(tt.role)
			if result != tt.expected {
				t.Errorf("IsValidRole(%d) = %v, want %v", tt.role, result, tt.expected)
			}
		})
	}
}

func TestRole_IsManager(t *testing.T) {
	tests := []struct {
		role     Role
		expected bool
	}{
		{RoleAdmin, true},
		{RoleManager, true},
		{RoleEmployee, false},
	}

	for _, tt := range tests {
		t.Run(tt.role.String(), func(t *testing.T) {
			if got := tt.role.IsManager(); got != tt.expected {
				t.Errorf("%s.IsManager() = %v, want %v", tt.role, got, tt.expected)
			}
		})
	}
}

func TestRole_WireEncoding(t *testing.T) {
	data, err := json.Marshal(User{UserID: "u1", Role: RoleManager})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if raw["role"] != float64(2) {
		t.Errorf("expected manager to encode as 2, got %v", raw["role"])
	}

	var u User
	if err := json.Unmarshal([]byte(`{"userId":"u1","role":7}`), &u); err == nil {
		t.Error("expected error for role outside the closed set")
	}
}

func TestClaims_Expired(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		exp      int64
		expected bool
	}{
		{"no expiry", 0, false},
		{"future", now.Add(time.Hour).Unix(), false},
		{"past", now.Add(-time.Hour).Unix(), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Claims{Exp: tt.exp}
			if got := c.Expired(now); got != tt.expected {
				t.Errorf("Expired() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestClaims_User(t *testing.T) {
	c := &Claims{UserID: "abc", FullName: "Dana Ruiz", Role: RoleEmployee}
	u := c.User()
	if u.UserID != "abc" || u.FullName != "Dana Ruiz" || u.Role != RoleEmployee {
		t.Errorf("unexpected user from claims: %+v", u)
	}
	if !u.IsActive() {
		t.Error("expected user derived from claims to be active")
	}
}
