package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageAction identifies the protocol or administrative action a usage
// log entry records.
type UsageAction string

const (
	ActionValidate   UsageAction = "VALIDATE"
	ActionActivate   UsageAction = "ACTIVATE"
	ActionDeactivate UsageAction = "DEACTIVATE"
	ActionHeartbeat  UsageAction = "HEARTBEAT"
	ActionLogin      UsageAction = "LOGIN"
	ActionResetHWID  UsageAction = "RESET_HWID"
	ActionExtend     UsageAction = "EXTEND"
	ActionSuspend    UsageAction = "SUSPEND"
	ActionRevoke     UsageAction = "REVOKE"
)

// KeyUsageLog is one append-only audit entry for a license key. Entries
// are written for every protocol action, successful or not, and are
// never updated or deleted.
type KeyUsageLog struct {
	ID           uuid.UUID   `json:"id"`
	KeyID        uuid.UUID   `json:"key_id"`
	Action       UsageAction `json:"action"`
	Success      bool        `json:"success"`
	ErrorMessage string      `json:"error_message,omitempty"`
	HWID         string      `json:"hwid,omitempty"`
	IPAddress    string      `json:"ip_address,omitempty"`
	UserAgent    string      `json:"user_agent,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

// NewKeyUsageLog creates a usage log entry stamped with the current time.
func NewKeyUsageLog(keyID uuid.UUID, action UsageAction, success bool) *KeyUsageLog {
	return &KeyUsageLog{
		ID:        uuid.New(),
		KeyID:     keyID,
		Action:    action,
		Success:   success,
		CreatedAt: time.Now().UTC(),
	}
}
