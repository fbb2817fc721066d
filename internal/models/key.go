package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrKeyNotFound is returned by stores when no license key matches the
// requested key code.
var ErrKeyNotFound = errors.New("license key not found")

// KeyStatus represents the lifecycle status of a license key.
type KeyStatus string

const (
	// KeyStatusInactive means the key has been issued but never activated.
	KeyStatusInactive KeyStatus = "INACTIVE"
	// KeyStatusActive means the key has at least been activated once and is usable.
	KeyStatusActive KeyStatus = "ACTIVE"
	// KeyStatusExpired means the key's expiration timestamp has passed.
	KeyStatusExpired KeyStatus = "EXPIRED"
	// KeyStatusSuspended means an administrator has temporarily blocked the key.
	KeyStatusSuspended KeyStatus = "SUSPENDED"
	// KeyStatusBanned means the key has been banned for abuse.
	KeyStatusBanned KeyStatus = "BANNED"
	// KeyStatusRevoked means the key has been permanently revoked.
	KeyStatusRevoked KeyStatus = "REVOKED"
)

// ValidKeyStatuses returns all valid key statuses.
func ValidKeyStatuses() []KeyStatus {
	return []KeyStatus{
		KeyStatusInactive,
		KeyStatusActive,
		KeyStatusExpired,
		KeyStatusSuspended,
		KeyStatusBanned,
		KeyStatusRevoked,
	}
}

// IsValid checks if the status is valid.
func (s KeyStatus) IsValid() bool {
	for _, valid := range ValidKeyStatuses() {
		if s == valid {
			return true
		}
	}
	return false
}

// IsBlocking reports whether the status blocks protocol operations
// through administrative action.
func (s KeyStatus) IsBlocking() bool {
	return s == KeyStatusSuspended || s == KeyStatusBanned || s == KeyStatusRevoked
}

// LicenseKey is the entitlement record for a single issued key.
type LicenseKey struct {
	ID               uuid.UUID  `json:"id"`
	KeyCode          string     `json:"key_code"`
	PlanID           uuid.UUID  `json:"plan_id"`
	Status           KeyStatus  `json:"status"`
	MaxDevices       int        `json:"max_devices"`
	CurrentDevices   int        `json:"current_devices"`
	TotalActivations int        `json:"total_activations"`
	ActivatedAt      *time.Time `json:"activated_at,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty"`
	LastUsedIP       string     `json:"last_used_ip,omitempty"`
	LastHWID         string     `json:"last_hwid,omitempty"`
	Notes            string     `json:"notes,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// NewLicenseKey creates an unactivated LicenseKey for a plan. The device
// quota is copied from the plan at creation time.
func NewLicenseKey(keyCode string, plan *Plan) *LicenseKey {
	now := time.Now().UTC()
	return &LicenseKey{
		ID:         uuid.New(),
		KeyCode:    keyCode,
		PlanID:     plan.ID,
		Status:     KeyStatusInactive,
		MaxDevices: plan.MaxDevices,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// IsExpiredAt reports whether the key's expiration timestamp has passed
// at the given instant. Keys without an expiration never expire.
func (k *LicenseKey) IsExpiredAt(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

// ActivationStatus represents the status of a device binding.
type ActivationStatus string

const (
	// ActivationStatusActive means the device currently holds a quota slot.
	ActivationStatusActive ActivationStatus = "ACTIVE"
	// ActivationStatusDeactivated means the device released its slot.
	ActivationStatusDeactivated ActivationStatus = "DEACTIVATED"
)

// KeyActivation is a binding between a license key and one hashed
// device identity. At most one row exists per (key, hwid) pair;
// rebinding a deactivated device updates the existing row.
type KeyActivation struct {
	ID            uuid.UUID        `json:"id"`
	KeyID         uuid.UUID        `json:"key_id"`
	HWID          string           `json:"hwid"`
	Status        ActivationStatus `json:"status"`
	DeviceName    string           `json:"device_name,omitempty"`
	DeviceInfo    string           `json:"device_info,omitempty"`
	IPAddress     string           `json:"ip_address,omitempty"`
	UserAgent     string           `json:"user_agent,omitempty"`
	LastSeenAt    time.Time        `json:"last_seen_at"`
	DeactivatedAt *time.Time       `json:"deactivated_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// DeviceMeta carries the descriptive, non-authoritative device details
// supplied by a client alongside a protocol call.
type DeviceMeta struct {
	DeviceName string `json:"device_name,omitempty"`
	DeviceInfo string `json:"device_info,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
}

// CreateLicenseKeyRequest is the request body for issuing a new key.
type CreateLicenseKeyRequest struct {
	PlanID uuid.UUID `json:"plan_id" binding:"required"`
	Notes  string    `json:"notes,omitempty"`
	// MaxDevices overrides the plan quota when set.
	MaxDevices *int `json:"max_devices,omitempty" binding:"omitempty,min=1"`
}

// ActivateRequest is the request body for the activate endpoint.
type ActivateRequest struct {
	KeyCode    string `json:"key" binding:"required"`
	HWID       string `json:"hwid" binding:"required"`
	DeviceName string `json:"device_name,omitempty"`
	DeviceInfo string `json:"device_info,omitempty"`
}

// ValidateRequest is the request body for the validate endpoint. The
// hwid is optional; when present the response reports binding state.
type ValidateRequest struct {
	KeyCode string `json:"key" binding:"required"`
	HWID    string `json:"hwid,omitempty"`
}

// DeviceRequest is the request body for heartbeat and deactivate,
// both of which address an existing binding.
type DeviceRequest struct {
	KeyCode string `json:"key" binding:"required"`
	HWID    string `json:"hwid" binding:"required"`
}

// ExtendKeyRequest is the request body for extending a key's expiration.
type ExtendKeyRequest struct {
	DurationType  DurationType `json:"duration_type" binding:"required,oneof=HOUR DAY WEEK MONTH QUARTER YEAR LIFETIME"`
	DurationValue int          `json:"duration_value" binding:"required,min=1"`
}
