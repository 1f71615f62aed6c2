package workflow

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/fleet-requests/internal/models"
)

func TestValidateCancelReason(t *testing.T) {
	tests := []struct {
		reason  string
		wantErr bool
	}{
		{"", true},
		{"     ", true},
		{"short", true},
		{"  short  ", true},
		{"change", false},
		{"meeting moved to next week", false},
	}
	for _, tt := range tests {
		err := ValidateCancelReason(tt.reason)
		if tt.wantErr {
			var verr *ValidationError
			require.Error(t, err, "reason %q", tt.reason)
			assert.True(t, errors.As(err, &verr))
			assert.Equal(t, "reason", verr.Field)
		} else {
			assert.NoError(t, err, "reason %q", tt.reason)
		}
	}
}

func TestValidateRejectReason(t *testing.T) {
	assert.Error(t, ValidateRejectReason(""))
	assert.Error(t, ValidateRejectReason(" \t"))
	assert.NoError(t, ValidateRejectReason("no"))
}

func TestValidateAssignment(t *testing.T) {
	driverID := models.NewID()
	active := &models.Driver{DriverID: driverID, FullName: "Anh", IsActive: true}
	inactive := &models.Driver{DriverID: driverID, FullName: "Binh", IsActive: false}

	tests := []struct {
		name    string
		req     models.Request
		in      *models.AssignmentInput
		driver  *models.Driver
		wantErr bool
	}{
		{"no driver needed", models.Request{}, nil, nil, false},
		{"driver needed but missing", models.Request{IsDriverRequired: true}, nil, nil, true},
		{"driver needed but blank", models.Request{IsDriverRequired: true}, &models.AssignmentInput{DriverID: " "}, nil, true},
		{"malformed driver id", models.Request{IsDriverRequired: true}, &models.AssignmentInput{DriverID: "d-1"}, nil, true},
		{"inactive driver", models.Request{IsDriverRequired: true}, &models.AssignmentInput{DriverID: driverID}, inactive, true},
		{"active driver", models.Request{IsDriverRequired: true}, &models.AssignmentInput{DriverID: driverID}, active, false},
		{"unknown driver record", models.Request{IsDriverRequired: true}, &models.AssignmentInput{DriverID: driverID}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAssignment(tt.req, tt.in, tt.driver)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCoordinates(t *testing.T) {
	assert.NoError(t, ValidateCoordinates(0, 0))
	assert.NoError(t, ValidateCoordinates(-90, 180))
	assert.Error(t, ValidateCoordinates(91, 0))
	assert.Error(t, ValidateCoordinates(0, -181))
}

func TestValidateCreate(t *testing.T) {
	start := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	valid := func() models.CreateRequestInput {
		return models.CreateRequestInput{
			VehicleID: models.NewID(),
			StartTime: start,
			EndTime:   start.Add(8 * time.Hour),
			Locations: []models.LocationInput{{Address: "1 Main St", Latitude: 10.7, Longitude: 106.6}},
		}
	}

	assert.NoError(t, ValidateCreate(valid()))

	single := valid()
	single.EndTime = single.StartTime
	assert.NoError(t, ValidateCreate(single), "single-day trips have start == end")

	tests := []struct {
		name   string
		mutate func(*models.CreateRequestInput)
		field  string
	}{
		{"bad vehicle", func(in *models.CreateRequestInput) { in.VehicleID = "car" }, "vehicleId"},
		{"missing start", func(in *models.CreateRequestInput) { in.StartTime = time.Time{} }, "startTime"},
		{"end before start", func(in *models.CreateRequestInput) { in.EndTime = start.Add(-time.Hour) }, "endTime"},
		{"no locations", func(in *models.CreateRequestInput) { in.Locations = nil }, "locations"},
		{"blank address", func(in *models.CreateRequestInput) { in.Locations[0].Address = "" }, "locations"},
		{"bad latitude", func(in *models.CreateRequestInput) { in.Locations[0].Latitude = 120 }, "latitude"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid()
			tt.mutate(&in)
			err := ValidateCreate(in)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}
