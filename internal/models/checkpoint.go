package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// CheckPointType marks whether a checkpoint is an arrival at an intermediate
// stop or the final check-out.
type CheckPointType int

const (
	CheckIn CheckPointType = iota
	CheckOut
)

// UnmarshalJSON rejects integers outside the closed set.
func (t *CheckPointType) UnmarshalJSON(data []byte) error {
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode checkpoint type: %w", err)
	}
	if _, err := CheckPointTypeDisplay(CheckPointType(v)); err != nil {
		return err
	}
	*t = CheckPointType(v)
	return nil
}

func (t CheckPointType) String() string {
	d, err := CheckPointTypeDisplay(t)
	if err != nil {
		return fmt.Sprintf("CheckPointType(%d)", int(t))
	}
	return d.Label
}

// CheckPointTypeDisplay maps a CheckPointType to its label and icon.
func CheckPointTypeDisplay(t CheckPointType) (Display, error) {
	switch t {
	case CheckIn:
		return Display{Label: "Check-in", Color: "blue", Icon: "map-pin"}, nil
	case CheckOut:
		return Display{Label: "Check-out", Color: "green", Icon: "log-out"}, nil
	}
	return Display{}, fmt.Errorf("checkpoint type %d: %w", int(t), ErrUnknownEnum)
}

// CheckPoint is an append-only record created while a trip is in progress.
type CheckPoint struct {
	CheckPointID string         `bson:"_id,omitempty" json:"checkPointId"`
	RequestID    string         `bson:"request_id" json:"requestId"`
	Type         CheckPointType `bson:"type" json:"type"`
	Latitude     float64        `bson:"latitude" json:"latitude"`
	Longitude    float64        `bson:"longitude" json:"longitude"`
	Photos       []string       `bson:"photos,omitempty" json:"photos,omitempty"`
	Note         string         `bson:"note,omitempty" json:"note,omitempty"`
	CreatedAt    time.Time      `bson:"created_at" json:"createdAt"`
}

// Coordinates returns the recorded position.
func (c CheckPoint) Coordinates() Coordinates {
	return Coordinates{Latitude: c.Latitude, Longitude: c.Longitude}
}

// Photo is an image captured on the device and uploaded with a checkpoint.
type Photo struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// CheckPointInput is the payload of a checkpoint submission.
type CheckPointInput struct {
	Type      CheckPointType `json:"type"`
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Photos    []Photo        `json:"photos,omitempty"`
	Note      string         `json:"note,omitempty"`
}
