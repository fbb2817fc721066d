package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewPlan(t *testing.T) {
	plan := NewPlan("Pro Monthly", DurationMonth, 1, 3)

	if plan.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if plan.Name != "Pro Monthly" {
		t.Errorf("expected Name 'Pro Monthly', got %s", plan.Name)
	}
	if plan.DurationType != DurationMonth {
		t.Errorf("expected DurationType MONTH, got %s", plan.DurationType)
	}
	if plan.MaxDevices != 3 {
		t.Errorf("expected MaxDevices 3, got %d", plan.MaxDevices)
	}
	if plan.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestDurationTypeIsValid(t *testing.T) {
	for _, d := range ValidDurationTypes() {
		if !d.IsValid() {
			t.Errorf("expected %s to be valid", d)
		}
	}
	for _, d := range []DurationType{"", "DECADE", "month", "Lifetime"} {
		if d.IsValid() {
			t.Errorf("expected %q to be invalid", d)
		}
	}
}

func TestNewLicenseKey(t *testing.T) {
	plan := NewPlan("Basic", DurationYear, 1, 2)
	key := NewLicenseKey("ABCD-EFGH-IJKL-MNOP", plan)

	if key.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if key.KeyCode != "ABCD-EFGH-IJKL-MNOP" {
		t.Errorf("unexpected KeyCode %s", key.KeyCode)
	}
	if key.PlanID != plan.ID {
		t.Error("expected PlanID to match plan")
	}
	if key.Status != KeyStatusInactive {
		t.Errorf("expected status INACTIVE, got %s", key.Status)
	}
	if key.MaxDevices != 2 {
		t.Errorf("expected MaxDevices copied from plan, got %d", key.MaxDevices)
	}
	if key.ExpiresAt != nil {
		t.Error("expected no expiration before activation")
	}
}

func TestKeyStatusIsValid(t *testing.T) {
	for _, s := range ValidKeyStatuses() {
		if !s.IsValid() {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if KeyStatus("DELETED").IsValid() {
		t.Error("expected DELETED to be invalid")
	}
	if KeyStatus("active").IsValid() {
		t.Error("statuses are case sensitive")
	}
}

func TestKeyStatusIsBlocking(t *testing.T) {
	blocking := map[KeyStatus]bool{
		KeyStatusInactive:  false,
		KeyStatusActive:    false,
		KeyStatusExpired:   false,
		KeyStatusSuspended: true,
		KeyStatusBanned:    true,
		KeyStatusRevoked:   true,
	}
	for status, want := range blocking {
		if got := status.IsBlocking(); got != want {
			t.Errorf("%s: IsBlocking() = %v, want %v", status, got, want)
		}
	}
}

func TestLicenseKeyIsExpiredAt(t *testing.T) {
	now := time.Now().UTC()
	key := &LicenseKey{}

	if key.IsExpiredAt(now) {
		t.Error("key without expiration should never expire")
	}

	past := now.Add(-time.Minute)
	key.ExpiresAt = &past
	if !key.IsExpiredAt(now) {
		t.Error("expected key with past expiration to be expired")
	}

	future := now.Add(time.Minute)
	key.ExpiresAt = &future
	if key.IsExpiredAt(now) {
		t.Error("expected key with future expiration to not be expired")
	}

	// The boundary instant itself is not yet expired.
	key.ExpiresAt = &now
	if key.IsExpiredAt(now) {
		t.Error("expected key expiring exactly now to not be expired")
	}
}

func TestNewKeyUsageLog(t *testing.T) {
	keyID := uuid.New()
	entry := NewKeyUsageLog(keyID, ActionActivate, true)

	if entry.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	if entry.KeyID != keyID {
		t.Error("expected KeyID to match")
	}
	if entry.Action != ActionActivate {
		t.Errorf("expected action ACTIVATE, got %s", entry.Action)
	}
	if !entry.Success {
		t.Error("expected Success true")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}
