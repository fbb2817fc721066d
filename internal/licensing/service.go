// Package licensing implements the license key lifecycle: activation of
// hashed device identities against per-key quotas, validation,
// heartbeats, deactivation, lazy expiration and the append-only usage
// ledger.
package licensing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HoangDuong1310/licensegate/internal/keygen"
	"github.com/HoangDuong1310/licensegate/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service owns the status lifecycle of license keys and the set of
// devices bound to each. All four protocol operations run as a single
// per-key transaction against the store, so the quota invariant holds
// under concurrent calls for the same key.
type Service struct {
	store  Store
	plans  PlanStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates a licensing Service.
func NewService(store Store, plans PlanStore, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		plans:  plans,
		logger: logger.With().Str("component", "licensing").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Result is the outcome of a successful protocol operation.
type Result struct {
	KeyID            uuid.UUID        `json:"key_id"`
	KeyCode          string           `json:"key"`
	Status           models.KeyStatus `json:"status"`
	ExpiresAt        *time.Time       `json:"expires_at,omitempty"`
	CurrentDevices   int              `json:"current_devices"`
	MaxDevices       int              `json:"max_devices"`
	TotalActivations int              `json:"total_activations"`

	// DeviceBound reports whether the hwid supplied with the call holds
	// an ACTIVE binding. Only meaningful when a hwid was supplied.
	DeviceBound bool `json:"device_bound"`

	// Warning distinguishes "this hwid could activate" from "this hwid
	// would be rejected because the quota is full" on Validate calls.
	Warning ErrorCode `json:"warning,omitempty"`
}

// Activate binds a device to a license key, or refreshes an existing
// binding. The first successful activation pins the key's expiration
// window. A device that is already bound re-logs-in without consuming
// quota; a new device takes a quota slot or fails with
// CodeMaxDevicesReached.
func (s *Service) Activate(ctx context.Context, keyCode, rawHWID string, meta models.DeviceMeta) (*Result, error) {
	keyCode = keygen.Normalize(keyCode)
	hwid := HashHWID(rawHWID)

	var (
		result *Result
		opErr  *Error
		keyID  uuid.UUID
		action = models.ActionActivate
	)

	err := s.store.WithKey(ctx, keyCode, func(tx KeyTx) error {
		key := tx.Key()
		keyID = key.ID
		now := s.now()

		if perr := s.checkUsable(ctx, tx, now); perr != nil {
			opErr = perr
			return nil
		}

		activation, err := tx.GetActivation(ctx, hwid)
		if err != nil {
			return err
		}

		if activation != nil && activation.Status == models.ActivationStatusActive {
			// Re-login of an already-bound device: no quota change.
			action = models.ActionLogin
			activation.LastSeenAt = now
			activation.IPAddress = meta.IPAddress
			activation.UserAgent = meta.UserAgent
			activation.UpdatedAt = now
			if err := tx.UpsertActivation(ctx, activation); err != nil {
				return err
			}

			key.TotalActivations++
			s.touchKey(key, now, meta.IPAddress, hwid)
			if err := tx.UpdateKey(ctx, key); err != nil {
				return err
			}
			result = s.resultFor(key, true)
			return nil
		}

		active, err := tx.CountActiveActivations(ctx)
		if err != nil {
			return err
		}
		if active >= key.MaxDevices {
			opErr = &Error{
				Code:           CodeMaxDevicesReached,
				Message:        fmt.Sprintf("device limit reached: %d of %d devices active", active, key.MaxDevices),
				CurrentDevices: active,
				MaxDevices:     key.MaxDevices,
			}
			return nil
		}

		if key.Status == models.KeyStatusInactive {
			// First activation pins the expiration window.
			plan, err := s.plans.GetPlanByID(ctx, key.PlanID)
			if err != nil {
				return fmt.Errorf("look up plan %s: %w", key.PlanID, err)
			}
			key.ActivatedAt = &now
			key.ExpiresAt = ExpirationOf(plan.DurationType, plan.DurationValue, now)
		}

		if activation == nil {
			activation = &models.KeyActivation{
				ID:        uuid.New(),
				KeyID:     key.ID,
				HWID:      hwid,
				CreatedAt: now,
			}
		}
		activation.Status = models.ActivationStatusActive
		activation.DeviceName = meta.DeviceName
		activation.DeviceInfo = meta.DeviceInfo
		activation.IPAddress = meta.IPAddress
		activation.UserAgent = meta.UserAgent
		activation.LastSeenAt = now
		activation.DeactivatedAt = nil
		activation.UpdatedAt = now
		if err := tx.UpsertActivation(ctx, activation); err != nil {
			return err
		}

		active, err = tx.CountActiveActivations(ctx)
		if err != nil {
			return err
		}

		key.Status = models.KeyStatusActive
		key.CurrentDevices = active
		key.TotalActivations++
		s.touchKey(key, now, meta.IPAddress, hwid)
		if err := tx.UpdateKey(ctx, key); err != nil {
			return err
		}

		result = s.resultFor(key, true)
		return nil
	})

	return s.finish(ctx, keyID, keyCode, hwid, action, meta, result, opErr, err)
}

// Validate checks whether a key is usable without modifying any
// binding. The lazy EXPIRED write-back is the one mutation it may
// perform. When a hwid is supplied and the key is active, the result
// reports whether that device is bound and, if not, whether an
// activation attempt would be rejected for quota.
func (s *Service) Validate(ctx context.Context, keyCode, rawHWID string, meta models.DeviceMeta) (*Result, error) {
	keyCode = keygen.Normalize(keyCode)
	hwid := ""
	if rawHWID != "" {
		hwid = HashHWID(rawHWID)
	}

	var (
		result *Result
		opErr  *Error
		keyID  uuid.UUID
	)

	err := s.store.WithKey(ctx, keyCode, func(tx KeyTx) error {
		key := tx.Key()
		keyID = key.ID
		now := s.now()

		if perr := s.checkUsable(ctx, tx, now); perr != nil {
			opErr = perr
			return nil
		}

		result = s.resultFor(key, false)

		if hwid == "" || key.Status != models.KeyStatusActive {
			return nil
		}

		activation, err := tx.GetActivation(ctx, hwid)
		if err != nil {
			return err
		}
		if activation != nil && activation.Status == models.ActivationStatusActive {
			result.DeviceBound = true
			return nil
		}

		active, err := tx.CountActiveActivations(ctx)
		if err != nil {
			return err
		}
		if active >= key.MaxDevices {
			result.Warning = CodeHwidNotActivatedQuotaFull
		}
		return nil
	})

	return s.finish(ctx, keyID, keyCode, hwid, models.ActionValidate, meta, result, opErr, err)
}

// Heartbeat refreshes the liveness of an existing ACTIVE binding. It
// consumes no quota and changes no status; a device that was never
// bound, or was deactivated, fails with CodeHwidNotActivated.
func (s *Service) Heartbeat(ctx context.Context, keyCode, rawHWID string, meta models.DeviceMeta) (*Result, error) {
	keyCode = keygen.Normalize(keyCode)
	hwid := HashHWID(rawHWID)

	var (
		result *Result
		opErr  *Error
		keyID  uuid.UUID
	)

	err := s.store.WithKey(ctx, keyCode, func(tx KeyTx) error {
		key := tx.Key()
		keyID = key.ID
		now := s.now()

		if perr := s.checkUsable(ctx, tx, now); perr != nil {
			opErr = perr
			return nil
		}

		activation, err := tx.GetActivation(ctx, hwid)
		if err != nil {
			return err
		}
		if activation == nil || activation.Status != models.ActivationStatusActive {
			opErr = newError(CodeHwidNotActivated, "device is not activated on this key")
			return nil
		}

		activation.LastSeenAt = now
		activation.UpdatedAt = now
		if err := tx.UpsertActivation(ctx, activation); err != nil {
			return err
		}

		key.LastUsedAt = &now
		if meta.IPAddress != "" {
			key.LastUsedIP = meta.IPAddress
		}
		key.UpdatedAt = now
		if err := tx.UpdateKey(ctx, key); err != nil {
			return err
		}

		result = s.resultFor(key, true)
		return nil
	})

	return s.finish(ctx, keyID, keyCode, hwid, models.ActionHeartbeat, meta, result, opErr, err)
}

// Deactivate releases a device's quota slot. The key's own status is
// untouched, so a freed slot can be reused immediately by Activate.
func (s *Service) Deactivate(ctx context.Context, keyCode, rawHWID string, meta models.DeviceMeta) (*Result, error) {
	keyCode = keygen.Normalize(keyCode)
	hwid := HashHWID(rawHWID)

	var (
		result *Result
		opErr  *Error
		keyID  uuid.UUID
	)

	err := s.store.WithKey(ctx, keyCode, func(tx KeyTx) error {
		key := tx.Key()
		keyID = key.ID
		now := s.now()

		activation, err := tx.GetActivation(ctx, hwid)
		if err != nil {
			return err
		}
		if activation == nil || activation.Status != models.ActivationStatusActive {
			opErr = newError(CodeNotActivated, "no active binding exists for this device")
			return nil
		}

		activation.Status = models.ActivationStatusDeactivated
		activation.DeactivatedAt = &now
		activation.UpdatedAt = now
		if err := tx.UpsertActivation(ctx, activation); err != nil {
			return err
		}

		active, err := tx.CountActiveActivations(ctx)
		if err != nil {
			return err
		}
		key.CurrentDevices = active
		key.UpdatedAt = now
		if err := tx.UpdateKey(ctx, key); err != nil {
			return err
		}

		result = s.resultFor(key, false)
		return nil
	})

	return s.finish(ctx, keyID, keyCode, hwid, models.ActionDeactivate, meta, result, opErr, err)
}

// checkUsable enforces the administrative blocking states and lazy
// expiration. The EXPIRED write-back commits with the transaction even
// though the operation itself fails; observing an already-expired key
// twice is harmless.
func (s *Service) checkUsable(ctx context.Context, tx KeyTx, now time.Time) *Error {
	key := tx.Key()

	switch key.Status {
	case models.KeyStatusRevoked:
		return newError(CodeKeyRevoked, "license key has been revoked")
	case models.KeyStatusBanned:
		return newError(CodeKeyBanned, "license key has been banned")
	case models.KeyStatusSuspended:
		return newError(CodeKeySuspended, "license key is suspended")
	case models.KeyStatusExpired:
		return newError(CodeKeyExpired, "license key has expired")
	}

	if key.IsExpiredAt(now) {
		key.Status = models.KeyStatusExpired
		key.UpdatedAt = now
		if err := tx.UpdateKey(ctx, key); err != nil {
			s.logger.Warn().
				Err(err).
				Str("key_id", key.ID.String()).
				Msg("failed to persist lazy expiration")
		}
		return newError(CodeKeyExpired, "license key has expired")
	}

	return nil
}

// touchKey stamps the key's most-recent-use diagnostics.
func (s *Service) touchKey(key *models.LicenseKey, now time.Time, ip, hwid string) {
	key.LastUsedAt = &now
	if ip != "" {
		key.LastUsedIP = ip
	}
	key.LastHWID = hwid
	key.UpdatedAt = now
}

// resultFor builds a Result snapshot from the key row.
func (s *Service) resultFor(key *models.LicenseKey, deviceBound bool) *Result {
	return &Result{
		KeyID:            key.ID,
		KeyCode:          key.KeyCode,
		Status:           key.Status,
		ExpiresAt:        key.ExpiresAt,
		CurrentDevices:   key.CurrentDevices,
		MaxDevices:       key.MaxDevices,
		TotalActivations: key.TotalActivations,
		DeviceBound:      deviceBound,
	}
}

// finish maps the transaction outcome to the caller's result and writes
// the usage ledger entry. Unknown keys have no row to attach a ledger
// entry to, so they are only logged.
func (s *Service) finish(ctx context.Context, keyID uuid.UUID, keyCode, hwid string, action models.UsageAction, meta models.DeviceMeta, result *Result, opErr *Error, txErr error) (*Result, error) {
	if txErr != nil {
		if errors.Is(txErr, models.ErrKeyNotFound) {
			s.logger.Debug().
				Str("action", string(action)).
				Str("ip", meta.IPAddress).
				Msg("protocol call for unknown license key")
			return nil, newError(CodeInvalidKey, "license key not found")
		}
		return nil, fmt.Errorf("%s %s: %w", action, keyCode, txErr)
	}

	if opErr != nil {
		if keyID != uuid.Nil {
			s.record(ctx, keyID, action, false, hwid, opErr.Message, meta)
		}
		return nil, opErr
	}

	s.record(ctx, result.KeyID, action, true, hwid, "", meta)
	return result, nil
}
