package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrPlanNotFound is returned by stores when no plan matches the
// requested ID.
var ErrPlanNotFound = errors.New("plan not found")

// DurationType represents the unit a plan's duration is expressed in.
type DurationType string

const (
	// DurationHour counts plan duration in hours.
	DurationHour DurationType = "HOUR"
	// DurationDay counts plan duration in days.
	DurationDay DurationType = "DAY"
	// DurationWeek counts plan duration in weeks.
	DurationWeek DurationType = "WEEK"
	// DurationMonth counts plan duration in calendar months.
	DurationMonth DurationType = "MONTH"
	// DurationQuarter counts plan duration in calendar quarters.
	DurationQuarter DurationType = "QUARTER"
	// DurationYear counts plan duration in calendar years.
	DurationYear DurationType = "YEAR"
	// DurationLifetime means the key never expires.
	DurationLifetime DurationType = "LIFETIME"
)

// ValidDurationTypes returns all valid duration types.
func ValidDurationTypes() []DurationType {
	return []DurationType{
		DurationHour,
		DurationDay,
		DurationWeek,
		DurationMonth,
		DurationQuarter,
		DurationYear,
		DurationLifetime,
	}
}

// IsValid checks if the duration type is valid.
func (d DurationType) IsValid() bool {
	for _, valid := range ValidDurationTypes() {
		if d == valid {
			return true
		}
	}
	return false
}

// Plan describes an entitlement plan that license keys are issued
// against. Plans are owned by the billing side; this server only
// reads them.
type Plan struct {
	ID            uuid.UUID    `json:"id"`
	Name          string       `json:"name"`
	DurationType  DurationType `json:"duration_type"`
	DurationValue int          `json:"duration_value"`
	MaxDevices    int          `json:"max_devices"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// NewPlan creates a new Plan.
func NewPlan(name string, durationType DurationType, durationValue, maxDevices int) *Plan {
	now := time.Now().UTC()
	return &Plan{
		ID:            uuid.New(),
		Name:          name,
		DurationType:  durationType,
		DurationValue: durationValue,
		MaxDevices:    maxDevices,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CreatePlanRequest is the request body for creating a plan.
type CreatePlanRequest struct {
	Name          string       `json:"name" binding:"required,min=1,max=255"`
	DurationType  DurationType `json:"duration_type" binding:"required,oneof=HOUR DAY WEEK MONTH QUARTER YEAR LIFETIME"`
	DurationValue int          `json:"duration_value" binding:"required,min=1"`
	MaxDevices    int          `json:"max_devices" binding:"required,min=1"`
}
