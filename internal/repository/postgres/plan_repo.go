package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/sleep-keeper/internal/convert"
	"github.com/and161185/sleep-keeper/internal/errs"
	"github.com/and161185/sleep-keeper/internal/model"
)

// PlanRepo implements PlanRepository using PostgreSQL.
// start_time/end_time are stored as "HH:MM:SS" and re-anchored to today on read.
type PlanRepo struct {
	db  *DB
	now func() time.Time
}

// NewPlanRepo constructs a plan repository.
func NewPlanRepo(db *DB) *PlanRepo { return &PlanRepo{db: db, now: time.Now} }

const planColumns = `id, start_time, end_time, selected_days, blocked_apps, is_active, created_at, updated_at`

// Create inserts a new plan row.
func (r *PlanRepo) Create(ctx context.Context, p *model.SleepPlan) error {
	const q = `
INSERT INTO sleep_plans (id, start_time, end_time, selected_days, blocked_apps, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Pool.Exec(ctx, q,
		p.ID,
		p.StartTime.Format(convert.ClockLayout),
		p.EndTime.Format(convert.ClockLayout),
		nonNilInts(p.SelectedDays),
		nonNilStrings(p.BlockedApps),
		p.IsActive,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Get selects a plan by ID.
func (r *PlanRepo) Get(ctx context.Context, id uuid.UUID) (*model.SleepPlan, error) {
	q := `SELECT ` + planColumns + ` FROM sleep_plans WHERE id=$1`
	p, err := r.scan(r.db.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// List returns all plans ordered by creation time.
func (r *PlanRepo) List(ctx context.Context) ([]model.SleepPlan, error) {
	q := `SELECT ` + planColumns + ` FROM sleep_plans ORDER BY created_at ASC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SleepPlan
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// Update overwrites every mutable column of an existing plan.
func (r *PlanRepo) Update(ctx context.Context, p *model.SleepPlan) error {
	const q = `
UPDATE sleep_plans
SET start_time=$2, end_time=$3, selected_days=$4, blocked_apps=$5, is_active=$6, updated_at=$7
WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q,
		p.ID,
		p.StartTime.Format(convert.ClockLayout),
		p.EndTime.Format(convert.ClockLayout),
		nonNilInts(p.SelectedDays),
		nonNilStrings(p.BlockedApps),
		p.IsActive,
		p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Delete removes a plan by ID.
func (r *PlanRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM sleep_plans WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *PlanRepo) scan(row pgx.Row) (*model.SleepPlan, error) {
	var (
		p          model.SleepPlan
		start, end string
	)
	if err := row.Scan(&p.ID, &start, &end, &p.SelectedDays, &p.BlockedApps, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	now := r.now()
	p.StartTime = convert.ParseClock(start, now)
	p.EndTime = convert.ParseClock(end, now)
	return &p, nil
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
