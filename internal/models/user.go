package models

import (
	"time"
)

// UserStatus marks whether an account may sign in.
type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserInactive UserStatus = "inactive"
)

// User represents a user in the system
type User struct {
	UserID    string     `bson:"_id,omitempty" json:"userId"`
	FullName  string     `bson:"full_name" json:"fullName"`
	Email     string     `bson:"email" json:"email"`
	Phone     string     `bson:"phone,omitempty" json:"phone,omitempty"`
	Role      Role       `bson:"role" json:"role"`
	Status    UserStatus `bson:"status" json:"status"`
	CreatedAt time.Time  `bson:"created_at" json:"createdAt"`
}

// IsActive reports whether the account is enabled.
func (u *User) IsActive() bool {
	return u.Status != UserInactive
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
	Exp      int64  `json:"exp"`
}

// Expired reports whether the token carrying the claims is past its expiry.
func (c *Claims) Expired(now time.Time) bool {
	return c.Exp != 0 && now.Unix() >= c.Exp
}

// User returns the identity portion of the claims as a User.
func (c *Claims) User() User {
	return User{UserID: c.UserID, FullName: c.FullName, Role: c.Role, Status: UserActive}
}
