package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/HoangDuong1310/licensegate/internal/models"
)

// CreatePlan persists a new plan.
func (db *DB) CreatePlan(ctx context.Context, plan *models.Plan) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO plans (id, name, duration_type, duration_value, max_devices, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, plan.ID, plan.Name, string(plan.DurationType), plan.DurationValue,
		plan.MaxDevices, plan.CreatedAt, plan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create plan: %w", err)
	}
	return nil
}

// GetPlanByID returns a plan by ID, or models.ErrPlanNotFound.
func (db *DB) GetPlanByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	var plan models.Plan
	var durationType string
	err := db.Pool.QueryRow(ctx, `
		SELECT id, name, duration_type, duration_value, max_devices, created_at, updated_at
		FROM plans
		WHERE id = $1
	`, id).Scan(
		&plan.ID, &plan.Name, &durationType, &plan.DurationValue,
		&plan.MaxDevices, &plan.CreatedAt, &plan.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrPlanNotFound
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}
	plan.DurationType = models.DurationType(durationType)
	return &plan, nil
}

// ListPlans returns all plans ordered by name.
func (db *DB) ListPlans(ctx context.Context) ([]*models.Plan, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, name, duration_type, duration_value, max_devices, created_at, updated_at
		FROM plans
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []*models.Plan
	for rows.Next() {
		var plan models.Plan
		var durationType string
		err := rows.Scan(
			&plan.ID, &plan.Name, &durationType, &plan.DurationValue,
			&plan.MaxDevices, &plan.CreatedAt, &plan.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plan.DurationType = models.DurationType(durationType)
		plans = append(plans, &plan)
	}
	return plans, rows.Err()
}
