package workflow

import (
	"strings"
	"unicode/utf8"

	"github.com/ukydev/fleet-requests/internal/models"
)

// MinCancelReasonLength is the shortest accepted cancel reason after
// trimming. Reject reasons only need to be non-empty; the two rules differ
// in the deployed backend and are kept as they are.
const MinCancelReasonLength = 6

// ValidationError is a local precondition failure. It is never sent to the
// backend.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// ValidateCancelReason requires more than five characters after trimming.
func ValidateCancelReason(reason string) error {
	if utf8.RuneCountInString(strings.TrimSpace(reason)) < MinCancelReasonLength {
		return invalid("reason", "cancel reason must be longer than 5 characters")
	}
	return nil
}

// ValidateRejectReason requires a non-blank reason.
func ValidateRejectReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return invalid("reason", "reject reason is required")
	}
	return nil
}

// ValidateAssignment checks the approve payload against the request. A
// driver is mandatory when the request requires one; driver, when known,
// must be active.
func ValidateAssignment(req models.Request, in *models.AssignmentInput, driver *models.Driver) error {
	if !req.IsDriverRequired {
		return nil
	}
	if in == nil || strings.TrimSpace(in.DriverID) == "" {
		return invalid("driverId", "a driver must be assigned to this request")
	}
	if err := models.ValidateID(in.DriverID); err != nil {
		return invalid("driverId", err.Error())
	}
	if driver != nil && !driver.IsActive {
		return invalid("driverId", "driver "+driver.FullName+" is not active")
	}
	return nil
}

// ValidateCoordinates checks a WGS84 position.
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return invalid("latitude", "must be between -90 and 90")
	}
	if lon < -180 || lon > 180 {
		return invalid("longitude", "must be between -180 and 180")
	}
	return nil
}

// ValidateCreate checks a new request before it is submitted.
func ValidateCreate(in models.CreateRequestInput) error {
	if err := models.ValidateID(in.VehicleID); err != nil {
		return invalid("vehicleId", err.Error())
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		return invalid("startTime", "start and end time are required")
	}
	if in.EndTime.Before(in.StartTime) {
		return invalid("endTime", "end time is before start time")
	}
	if len(in.Locations) == 0 {
		return invalid("locations", "at least one location is required")
	}
	for _, l := range in.Locations {
		if strings.TrimSpace(l.Address) == "" {
			return invalid("locations", "every location needs an address")
		}
		if err := ValidateCoordinates(l.Latitude, l.Longitude); err != nil {
			return err
		}
	}
	return nil
}
