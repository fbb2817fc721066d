package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/HoangDuong1310/licensegate/internal/licensing"
	"github.com/HoangDuong1310/licensegate/internal/models"
)

const licenseKeyColumns = `id, key_code, plan_id, status, max_devices, current_devices,
	total_activations, activated_at, expires_at, last_used_at, last_used_ip,
	last_hwid, notes, created_at, updated_at`

func scanLicenseKey(row pgx.Row) (*models.LicenseKey, error) {
	var key models.LicenseKey
	var status string
	err := row.Scan(
		&key.ID, &key.KeyCode, &key.PlanID, &status, &key.MaxDevices,
		&key.CurrentDevices, &key.TotalActivations, &key.ActivatedAt,
		&key.ExpiresAt, &key.LastUsedAt, &key.LastUsedIP, &key.LastHWID,
		&key.Notes, &key.CreatedAt, &key.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	key.Status = models.KeyStatus(status)
	return &key, nil
}

// WithKey runs fn inside a transaction holding a row lock on the license
// key, so concurrent operations against the same key serialize.
func (db *DB) WithKey(ctx context.Context, keyCode string, fn func(tx licensing.KeyTx) error) error {
	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		key, err := scanLicenseKey(tx.QueryRow(ctx, `
			SELECT `+licenseKeyColumns+`
			FROM license_keys
			WHERE key_code = $1
			FOR UPDATE
		`, keyCode))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return models.ErrKeyNotFound
			}
			return fmt.Errorf("lock license key: %w", err)
		}

		return fn(&keyTx{tx: tx, key: key})
	})
}

// keyTx implements licensing.KeyTx over a pgx transaction.
type keyTx struct {
	tx  pgx.Tx
	key *models.LicenseKey
}

func (t *keyTx) Key() *models.LicenseKey {
	return t.key
}

func (t *keyTx) CountActiveActivations(ctx context.Context) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM key_activations
		WHERE key_id = $1 AND status = 'ACTIVE'
	`, t.key.ID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active activations: %w", err)
	}
	return count, nil
}

func (t *keyTx) GetActivation(ctx context.Context, hwid string) (*models.KeyActivation, error) {
	var a models.KeyActivation
	var status string
	err := t.tx.QueryRow(ctx, `
		SELECT id, key_id, hwid, status, device_name, device_info, ip_address,
			user_agent, last_seen_at, deactivated_at, created_at, updated_at
		FROM key_activations
		WHERE key_id = $1 AND hwid = $2
	`, t.key.ID, hwid).Scan(
		&a.ID, &a.KeyID, &a.HWID, &status, &a.DeviceName, &a.DeviceInfo,
		&a.IPAddress, &a.UserAgent, &a.LastSeenAt, &a.DeactivatedAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get activation: %w", err)
	}
	a.Status = models.ActivationStatus(status)
	return &a, nil
}

func (t *keyTx) UpsertActivation(ctx context.Context, activation *models.KeyActivation) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO key_activations (id, key_id, hwid, status, device_name,
			device_info, ip_address, user_agent, last_seen_at, deactivated_at,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (key_id, hwid)
		DO UPDATE SET
			status = $4,
			device_name = $5,
			device_info = $6,
			ip_address = $7,
			user_agent = $8,
			last_seen_at = $9,
			deactivated_at = $10,
			updated_at = $12
	`, activation.ID, activation.KeyID, activation.HWID, string(activation.Status),
		activation.DeviceName, activation.DeviceInfo, activation.IPAddress,
		activation.UserAgent, activation.LastSeenAt, activation.DeactivatedAt,
		activation.CreatedAt, activation.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert activation: %w", err)
	}
	return nil
}

func (t *keyTx) UpdateKey(ctx context.Context, key *models.LicenseKey) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE license_keys SET
			status = $2,
			max_devices = $3,
			current_devices = $4,
			total_activations = $5,
			activated_at = $6,
			expires_at = $7,
			last_used_at = $8,
			last_used_ip = $9,
			last_hwid = $10,
			notes = $11,
			updated_at = $12
		WHERE id = $1
	`, key.ID, string(key.Status), key.MaxDevices, key.CurrentDevices,
		key.TotalActivations, key.ActivatedAt, key.ExpiresAt, key.LastUsedAt,
		key.LastUsedIP, key.LastHWID, key.Notes, key.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update license key: %w", err)
	}
	return nil
}

func (t *keyTx) DeactivateAllActivations(ctx context.Context, deactivatedAt time.Time) (int, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE key_activations SET
			status = 'DEACTIVATED',
			deactivated_at = $2,
			updated_at = $2
		WHERE key_id = $1 AND status = 'ACTIVE'
	`, t.key.ID, deactivatedAt)
	if err != nil {
		return 0, fmt.Errorf("deactivate all activations: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CreateLicenseKey persists a newly issued key.
func (db *DB) CreateLicenseKey(ctx context.Context, key *models.LicenseKey) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO license_keys (id, key_code, plan_id, status, max_devices,
			current_devices, total_activations, activated_at, expires_at,
			last_used_at, last_used_ip, last_hwid, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, key.ID, key.KeyCode, key.PlanID, string(key.Status), key.MaxDevices,
		key.CurrentDevices, key.TotalActivations, key.ActivatedAt, key.ExpiresAt,
		key.LastUsedAt, key.LastUsedIP, key.LastHWID, key.Notes,
		key.CreatedAt, key.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create license key: %w", err)
	}
	return nil
}

// KeyCodeExists reports whether a key code is already issued.
func (db *DB) KeyCodeExists(ctx context.Context, keyCode string) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM license_keys WHERE key_code = $1)",
		keyCode,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check key code: %w", err)
	}
	return exists, nil
}

// GetLicenseKeyByID returns a license key by ID, or ErrKeyNotFound.
func (db *DB) GetLicenseKeyByID(ctx context.Context, id uuid.UUID) (*models.LicenseKey, error) {
	key, err := scanLicenseKey(db.Pool.QueryRow(ctx, `
		SELECT `+licenseKeyColumns+`
		FROM license_keys
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrKeyNotFound
		}
		return nil, fmt.Errorf("get license key: %w", err)
	}
	return key, nil
}

// GetLicenseKeyByCode returns a license key by its key code, or
// ErrKeyNotFound.
func (db *DB) GetLicenseKeyByCode(ctx context.Context, keyCode string) (*models.LicenseKey, error) {
	key, err := scanLicenseKey(db.Pool.QueryRow(ctx, `
		SELECT `+licenseKeyColumns+`
		FROM license_keys
		WHERE key_code = $1
	`, keyCode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrKeyNotFound
		}
		return nil, fmt.Errorf("get license key by code: %w", err)
	}
	return key, nil
}

// ListLicenseKeys returns license keys ordered by creation time, newest
// first, with limit/offset paging. A non-empty status filters by status.
func (db *DB) ListLicenseKeys(ctx context.Context, status models.KeyStatus, limit, offset int) ([]*models.LicenseKey, error) {
	query := `
		SELECT ` + licenseKeyColumns + `
		FROM license_keys
	`
	args := []any{}
	if status != "" {
		query += " WHERE status = $1"
		args = append(args, string(status))
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list license keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.LicenseKey
	for rows.Next() {
		key, err := scanLicenseKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan license key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// GetActivationsByKeyID returns all device bindings for a key.
func (db *DB) GetActivationsByKeyID(ctx context.Context, keyID uuid.UUID) ([]*models.KeyActivation, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, key_id, hwid, status, device_name, device_info, ip_address,
			user_agent, last_seen_at, deactivated_at, created_at, updated_at
		FROM key_activations
		WHERE key_id = $1
		ORDER BY created_at
	`, keyID)
	if err != nil {
		return nil, fmt.Errorf("list activations: %w", err)
	}
	defer rows.Close()

	var activations []*models.KeyActivation
	for rows.Next() {
		var a models.KeyActivation
		var status string
		err := rows.Scan(
			&a.ID, &a.KeyID, &a.HWID, &status, &a.DeviceName, &a.DeviceInfo,
			&a.IPAddress, &a.UserAgent, &a.LastSeenAt, &a.DeactivatedAt,
			&a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan activation: %w", err)
		}
		a.Status = models.ActivationStatus(status)
		activations = append(activations, &a)
	}
	return activations, rows.Err()
}
