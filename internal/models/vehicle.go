package models

import (
	"time"
)

// Vehicle represents a fleet vehicle.
type Vehicle struct {
	VehicleID         string             `bson:"_id,omitempty" json:"vehicleId"`
	PlateNumber       string             `bson:"plate_number" json:"plateNumber"`
	Brand             string             `bson:"brand" json:"brand"`
	Model             string             `bson:"model" json:"model"`
	Seats             int                `bson:"seats" json:"seats"`
	MaintenanceStatus *MaintenanceStatus `bson:"maintenance_status,omitempty" json:"maintenanceStatus,omitempty"`
	CreatedAt         time.Time          `bson:"created_at" json:"createdAt"`
}

// Driver is a person who may be assigned to drive an approved request.
type Driver struct {
	DriverID      string    `bson:"_id,omitempty" json:"driverId"`
	FullName      string    `bson:"full_name" json:"fullName"`
	Phone         string    `bson:"phone" json:"phone"`
	LicenseNumber string    `bson:"license_number" json:"licenseNumber"`
	IsActive      bool      `bson:"is_active" json:"isActive"`
	CreatedAt     time.Time `bson:"created_at" json:"createdAt"`
}

// Assignment binds a Driver to an approved Request that required one.
type Assignment struct {
	AssignmentID string    `bson:"_id,omitempty" json:"assignmentId"`
	RequestID    string    `bson:"request_id" json:"requestId"`
	DriverID     string    `bson:"driver_id" json:"driverId"`
	Driver       *Driver   `bson:"driver,omitempty" json:"driver,omitempty"`
	Note         string    `bson:"note,omitempty" json:"note,omitempty"`
	CreatedAt    time.Time `bson:"created_at" json:"createdAt"`
}

// AssignmentInput is the optional payload of an approve action.
type AssignmentInput struct {
	DriverID string `json:"driverId"`
	Note     string `json:"note,omitempty"`
}
