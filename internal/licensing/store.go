package licensing

import (
	"context"
	"time"

	"github.com/HoangDuong1310/licensegate/internal/models"
	"github.com/google/uuid"
)

// Store provides transactional persistence for license keys. The
// license key row is the unit of mutual exclusion: WithKey must hold an
// exclusive lock on the key for the duration of fn so that concurrent
// operations against the same key serialize, while operations on
// different keys never contend.
type Store interface {
	// WithKey runs fn inside a transaction that locks the license key
	// identified by the (already normalized) key code. It returns
	// models.ErrKeyNotFound when no such key exists. An error from fn
	// rolls the transaction back; a nil return commits it.
	WithKey(ctx context.Context, keyCode string, fn func(tx KeyTx) error) error

	// RecordUsage appends an entry to the usage ledger.
	RecordUsage(ctx context.Context, entry *models.KeyUsageLog) error

	// KeyCodeExists reports whether a key code is already issued.
	KeyCodeExists(ctx context.Context, keyCode string) (bool, error)

	// CreateLicenseKey persists a newly issued key.
	CreateLicenseKey(ctx context.Context, key *models.LicenseKey) error
}

// KeyTx is the per-key transactional view passed to WithKey callbacks.
// All reads observe writes made earlier in the same transaction.
type KeyTx interface {
	// Key returns the locked license key row. Mutations become visible
	// to other callers only after UpdateKey and commit.
	Key() *models.LicenseKey

	// CountActiveActivations counts this key's ACTIVE device bindings.
	CountActiveActivations(ctx context.Context) (int, error)

	// GetActivation returns the binding for the hashed device identity,
	// or nil if the device was never bound to this key.
	GetActivation(ctx context.Context, hwid string) (*models.KeyActivation, error)

	// UpsertActivation inserts the binding or, when a row already exists
	// for the same (key, hwid) pair, updates it in place.
	UpsertActivation(ctx context.Context, activation *models.KeyActivation) error

	// UpdateKey writes the key row back.
	UpdateKey(ctx context.Context, key *models.LicenseKey) error

	// DeactivateAllActivations marks every ACTIVE binding DEACTIVATED
	// and returns the number of bindings released.
	DeactivateAllActivations(ctx context.Context, deactivatedAt time.Time) (int, error)
}

// PlanStore resolves plan references. Plans are owned by the billing
// side; the licensing core only reads them.
type PlanStore interface {
	GetPlanByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
}
