package licensing

import (
	"context"
	"errors"
	"fmt"

	"github.com/HoangDuong1310/licensegate/internal/keygen"
	"github.com/HoangDuong1310/licensegate/internal/models"
	"github.com/google/uuid"
)

// CreateKey issues a new license key against a plan. The key starts
// INACTIVE with the device quota copied from the plan; maxDevices
// overrides the plan quota when non-nil.
func (s *Service) CreateKey(ctx context.Context, planID uuid.UUID, notes string, maxDevices *int) (*models.LicenseKey, error) {
	plan, err := s.plans.GetPlanByID(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("look up plan %s: %w", planID, err)
	}

	keyCode, err := keygen.GenerateUnique(ctx, s.store.KeyCodeExists)
	if err != nil {
		if errors.Is(err, keygen.ErrGenerationExhausted) {
			return nil, newError(CodeKeyGenerationExhausted, "could not generate a unique key code")
		}
		return nil, err
	}

	key := models.NewLicenseKey(keyCode, plan)
	key.Notes = notes
	if maxDevices != nil {
		key.MaxDevices = *maxDevices
	}

	if err := s.store.CreateLicenseKey(ctx, key); err != nil {
		return nil, fmt.Errorf("create license key: %w", err)
	}

	s.logger.Info().
		Str("key_id", key.ID.String()).
		Str("plan_id", planID.String()).
		Int("max_devices", key.MaxDevices).
		Msg("license key issued")
	return key, nil
}

// Suspend blocks a key until an explicit unsuspend.
func (s *Service) Suspend(ctx context.Context, keyCode, reason string) (*models.LicenseKey, error) {
	return s.setAdminStatus(ctx, keyCode, models.KeyStatusSuspended, models.ActionSuspend, reason)
}

// Ban permanently blocks a key for abuse.
func (s *Service) Ban(ctx context.Context, keyCode, reason string) (*models.LicenseKey, error) {
	return s.setAdminStatus(ctx, keyCode, models.KeyStatusBanned, models.ActionRevoke, reason)
}

// Revoke permanently revokes a key.
func (s *Service) Revoke(ctx context.Context, keyCode, reason string) (*models.LicenseKey, error) {
	return s.setAdminStatus(ctx, keyCode, models.KeyStatusRevoked, models.ActionRevoke, reason)
}

// Unsuspend lifts a suspension. The key returns to the state its own
// history dictates: EXPIRED when past its window, ACTIVE when it has
// been activated, INACTIVE otherwise.
func (s *Service) Unsuspend(ctx context.Context, keyCode string) (*models.LicenseKey, error) {
	keyCode = keygen.Normalize(keyCode)

	var updated *models.LicenseKey
	err := s.store.WithKey(ctx, keyCode, func(tx KeyTx) error {
		key := tx.Key()
		if key.Status != models.KeyStatusSuspended {
			return fmt.Errorf("key is %s, not suspended", key.Status)
		}

		now := s.now()
		switch {
		case key.IsExpiredAt(now):
			key.Status = models.KeyStatusExpired
		case key.ActivatedAt != nil:
			key.Status = models.KeyStatusActive
		default:
			key.Status = models.KeyStatusInactive
		}
		key.UpdatedAt = now
		if err := tx.UpdateKey(ctx, key); err != nil {
			return err
		}
		updated = key
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unsuspend %s: %w", keyCode, err)
	}

	s.record(ctx, updated.ID, models.ActionSuspend, true, "", "suspension lifted", models.DeviceMeta{})
	return updated, nil
}

// Extend pushes a key's expiration forward by the given duration,
// anchored at the current expiration when it is still in the future and
// at the current time otherwise. Extending with LIFETIME clears the
// expiration. An EXPIRED key whose new window is in the future returns
// to ACTIVE.
func (s *Service) Extend(ctx context.Context, keyCode string, durationType models.DurationType, durationValue int) (*models.LicenseKey, error) {
	keyCode = keygen.Normalize(keyCode)

	var updated *models.LicenseKey
	err := s.store.WithKey(ctx, keyCode, func(tx KeyTx) error {
		key := tx.Key()
		now := s.now()

		anchor := now
		if key.ExpiresAt != nil && key.ExpiresAt.After(now) {
			anchor = *key.ExpiresAt
		}
		key.ExpiresAt = ExpirationOf(durationType, durationValue, anchor)

		if key.Status == models.KeyStatusExpired && !key.IsExpiredAt(now) {
			key.Status = models.KeyStatusActive
		}
		key.UpdatedAt = now
		if err := tx.UpdateKey(ctx, key); err != nil {
			return err
		}
		updated = key
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("extend %s: %w", keyCode, err)
	}

	s.record(ctx, updated.ID, models.ActionExtend, true, "", "", models.DeviceMeta{})
	return updated, nil
}

// ResetHWID releases every device bound to a key, freeing the whole
// quota at once. The bindings keep their history and can re-activate.
func (s *Service) ResetHWID(ctx context.Context, keyCode string) (*models.LicenseKey, error) {
	keyCode = keygen.Normalize(keyCode)

	var (
		updated  *models.LicenseKey
		released int
	)
	err := s.store.WithKey(ctx, keyCode, func(tx KeyTx) error {
		key := tx.Key()
		now := s.now()

		n, err := tx.DeactivateAllActivations(ctx, now)
		if err != nil {
			return err
		}
		released = n

		key.CurrentDevices = 0
		key.UpdatedAt = now
		if err := tx.UpdateKey(ctx, key); err != nil {
			return err
		}
		updated = key
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reset hwid %s: %w", keyCode, err)
	}

	s.logger.Info().
		Str("key_id", updated.ID.String()).
		Int("released", released).
		Msg("device bindings reset")
	s.record(ctx, updated.ID, models.ActionResetHWID, true, "", "", models.DeviceMeta{})
	return updated, nil
}

// setAdminStatus flips a key into an administrative blocking state.
func (s *Service) setAdminStatus(ctx context.Context, keyCode string, status models.KeyStatus, action models.UsageAction, reason string) (*models.LicenseKey, error) {
	keyCode = keygen.Normalize(keyCode)

	var updated *models.LicenseKey
	err := s.store.WithKey(ctx, keyCode, func(tx KeyTx) error {
		key := tx.Key()
		key.Status = status
		key.UpdatedAt = s.now()
		if err := tx.UpdateKey(ctx, key); err != nil {
			return err
		}
		updated = key
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set status %s on %s: %w", status, keyCode, err)
	}

	s.logger.Info().
		Str("key_id", updated.ID.String()).
		Str("status", string(status)).
		Str("reason", reason).
		Msg("license key status changed")
	s.record(ctx, updated.ID, action, true, "", reason, models.DeviceMeta{})
	return updated, nil
}
