package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/HoangDuong1310/licensegate/internal/models"
)

// RecordUsage appends an entry to the usage ledger. Entries are never
// updated or deleted.
func (db *DB) RecordUsage(ctx context.Context, entry *models.KeyUsageLog) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO key_usage_logs (id, key_id, action, success, error_message,
			hwid, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.KeyID, string(entry.Action), entry.Success,
		entry.ErrorMessage, entry.HWID, entry.IPAddress, entry.UserAgent,
		entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// GetUsageLogsByKeyID returns ledger entries for a key, newest first,
// with limit/offset paging.
func (db *DB) GetUsageLogsByKeyID(ctx context.Context, keyID uuid.UUID, limit, offset int) ([]*models.KeyUsageLog, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, key_id, action, success, error_message, hwid, ip_address,
			user_agent, created_at
		FROM key_usage_logs
		WHERE key_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, keyID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list usage logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.KeyUsageLog
	for rows.Next() {
		var entry models.KeyUsageLog
		var action string
		err := rows.Scan(
			&entry.ID, &entry.KeyID, &action, &entry.Success,
			&entry.ErrorMessage, &entry.HWID, &entry.IPAddress,
			&entry.UserAgent, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan usage log: %w", err)
		}
		entry.Action = models.UsageAction(action)
		logs = append(logs, &entry)
	}
	return logs, rows.Err()
}

// CountUsageLogsByKeyID returns the total number of ledger entries for a
// key, for paging.
func (db *DB) CountUsageLogsByKeyID(ctx context.Context, keyID uuid.UUID) (int, error) {
	var count int
	err := db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM key_usage_logs WHERE key_id = $1",
		keyID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count usage logs: %w", err)
	}
	return count, nil
}
