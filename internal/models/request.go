package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrInvalidID         = errors.New("invalid id")
	ErrReasonMismatch    = errors.New("cancel or reject reason must be set exactly when status is rejected or cancelled")
	ErrInvalidTimeWindow = errors.New("end time is before start time")
)

// Request represents one vehicle-usage request.
type Request struct {
	RequestID            string      `bson:"_id,omitempty" json:"requestId"`
	UserID               string      `bson:"user_id" json:"userId"`
	User                 *User       `bson:"user,omitempty" json:"user,omitempty"`
	VehicleID            string      `bson:"vehicle_id" json:"vehicleId"`
	Vehicle              *Vehicle    `bson:"vehicle,omitempty" json:"vehicle,omitempty"`
	ActionBy             string      `bson:"action_by,omitempty" json:"actionBy,omitempty"`
	ActionByUser         *User       `bson:"action_by_user,omitempty" json:"actionByUser,omitempty"`
	Purpose              string      `bson:"purpose,omitempty" json:"purpose,omitempty"`
	StartTime            time.Time   `bson:"start_time" json:"startTime"`
	EndTime              time.Time   `bson:"end_time" json:"endTime"`
	Status               Status      `bson:"status" json:"status"`
	IsDriverRequired     bool        `bson:"is_driver_required" json:"isDriverRequired"`
	CancelOrRejectReason string      `bson:"cancel_or_reject_reason,omitempty" json:"cancelOrRejectReason,omitempty"`
	Locations            []Location  `bson:"locations" json:"locations"`
	Assignment           *Assignment `bson:"assignment,omitempty" json:"assignment,omitempty"`
	CreatedAt            time.Time   `bson:"created_at" json:"createdAt"`
	UpdatedAt            time.Time   `bson:"updated_at" json:"updatedAt"`
}

// IsSingleDay reports whether the request is a non-range trip.
func (r *Request) IsSingleDay() bool {
	return r.StartTime.Equal(r.EndTime)
}

// IsOwnedBy reports whether userID submitted the request.
func (r *Request) IsOwnedBy(userID string) bool {
	return userID != "" && r.UserID == userID
}

// OrderedLocations returns a copy of the waypoints sorted by Order.
func (r *Request) OrderedLocations() []Location {
	out := make([]Location, len(r.Locations))
	copy(out, r.Locations)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Validate checks the snapshot invariants a backend response must satisfy.
func (r *Request) Validate() error {
	if !r.Status.Valid() {
		return fmt.Errorf("status %d: %w", int(r.Status), ErrUnknownEnum)
	}
	hasReason := strings.TrimSpace(r.CancelOrRejectReason) != ""
	if hasReason != r.Status.RequiresReason() {
		return ErrReasonMismatch
	}
	if r.EndTime.Before(r.StartTime) {
		return ErrInvalidTimeWindow
	}
	return nil
}

// CreateRequestInput is the payload used to submit a new request.
type CreateRequestInput struct {
	VehicleID        string          `json:"vehicleId"`
	Purpose          string          `json:"purpose,omitempty"`
	StartTime        time.Time       `json:"startTime"`
	EndTime          time.Time       `json:"endTime"`
	IsDriverRequired bool            `json:"isDriverRequired"`
	Locations        []LocationInput `json:"locations"`
}

// LocationInput is one waypoint of a CreateRequestInput; position in the
// slice becomes its Order.
type LocationInput struct {
	Address   string  `json:"address"`
	Name      string  `json:"name,omitempty"`
	Note      string  `json:"note,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ReasonInput carries the reason of a reject or cancel action.
type ReasonInput struct {
	Reason string `json:"reason"`
}

// NewID returns a fresh backend-style identifier.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// ValidateID checks that id has the backend's ObjectID shape.
func ValidateID(id string) error {
	if _, err := primitive.ObjectIDFromHex(id); err != nil {
		return fmt.Errorf("%q: %w", id, ErrInvalidID)
	}
	return nil
}
