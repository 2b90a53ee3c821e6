package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/sleep-keeper/internal/convert"
	"github.com/and161185/sleep-keeper/internal/errs"
	"github.com/and161185/sleep-keeper/internal/model"
)

// PlanRepo implements PlanRepository using SQLite.
// Days and apps are stored as JSON arrays, timestamps as RFC 3339 text.
type PlanRepo struct {
	db  *DB
	now func() time.Time
}

// NewPlanRepo constructs a plan repository.
func NewPlanRepo(db *DB) *PlanRepo { return &PlanRepo{db: db, now: time.Now} }

const planColumns = `id, start_time, end_time, selected_days, blocked_apps, is_active, created_at, updated_at`

// Create inserts a new plan row.
func (r *PlanRepo) Create(ctx context.Context, p *model.SleepPlan) error {
	args, err := planArgs(p)
	if err != nil {
		return err
	}
	_, err = r.db.SQL.ExecContext(ctx,
		`INSERT INTO sleep_plans (`+planColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if isConstraintViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// Get selects a plan by ID.
func (r *PlanRepo) Get(ctx context.Context, id uuid.UUID) (*model.SleepPlan, error) {
	row := r.db.SQL.QueryRowContext(ctx, `SELECT `+planColumns+` FROM sleep_plans WHERE id = ?`, id.String())
	p, err := r.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// List returns all plans ordered by creation time.
func (r *PlanRepo) List(ctx context.Context) ([]model.SleepPlan, error) {
	rows, err := r.db.SQL.QueryContext(ctx, `SELECT `+planColumns+` FROM sleep_plans`)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// text timestamps may carry different offsets, so order in Go
	model.SortPlans(out)
	return out, nil
}

// Update overwrites every mutable column of an existing plan.
func (r *PlanRepo) Update(ctx context.Context, p *model.SleepPlan) error {
	args, err := planArgs(p)
	if err != nil {
		return err
	}
	res, err := r.db.SQL.ExecContext(ctx, `
UPDATE sleep_plans
SET start_time = ?, end_time = ?, selected_days = ?, blocked_apps = ?, is_active = ?, updated_at = ?
WHERE id = ?`, args[1], args[2], args[3], args[4], args[5], args[7], args[0])
	if err != nil {
		return err
	}
	return affected(res)
}

// Delete removes a plan by ID.
func (r *PlanRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.SQL.ExecContext(ctx, `DELETE FROM sleep_plans WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	return affected(res)
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// planArgs returns column values in planColumns order.
func planArgs(p *model.SleepPlan) ([]any, error) {
	days := p.SelectedDays
	if days == nil {
		days = []int{}
	}
	apps := p.BlockedApps
	if apps == nil {
		apps = []string{}
	}
	daysJSON, err := json.Marshal(days)
	if err != nil {
		return nil, err
	}
	appsJSON, err := json.Marshal(apps)
	if err != nil {
		return nil, err
	}
	return []any{
		p.ID.String(),
		p.StartTime.Format(convert.ClockLayout),
		p.EndTime.Format(convert.ClockLayout),
		string(daysJSON),
		string(appsJSON),
		p.IsActive,
		p.CreatedAt.Format(time.RFC3339Nano),
		p.UpdatedAt.Format(time.RFC3339Nano),
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *PlanRepo) scan(row scanner) (*model.SleepPlan, error) {
	var (
		id, start, end, days, apps, created, updated string
		active                                       bool
	)
	if err := row.Scan(&id, &start, &end, &days, &apps, &active, &created, &updated); err != nil {
		return nil, err
	}
	pid, err := uuid.FromString(id)
	if err != nil {
		return nil, err
	}
	p := model.SleepPlan{ID: pid, IsActive: active}
	if err := json.Unmarshal([]byte(days), &p.SelectedDays); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(apps), &p.BlockedApps); err != nil {
		return nil, err
	}
	now := r.now()
	p.StartTime = convert.ParseClock(start, now)
	p.EndTime = convert.ParseClock(end, now)
	p.CreatedAt = convert.ParseTimestamp(created, now)
	p.UpdatedAt = convert.ParseTimestamp(updated, now)
	return &p, nil
}
