package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/sleep-keeper/internal/errs"
	"github.com/and161185/sleep-keeper/internal/model"
)

var planCols = []string{"id", "start_time", "end_time", "selected_days", "blocked_apps", "is_active", "created_at", "updated_at"}

func fixedNow() time.Time { return time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC) }

func samplePlan() *model.SleepPlan {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &model.SleepPlan{
		ID:           uuid.Must(uuid.NewV4()),
		StartTime:    time.Date(2026, 1, 2, 22, 30, 0, 0, time.UTC),
		EndTime:      time.Date(2026, 1, 3, 6, 15, 0, 0, time.UTC),
		SelectedDays: []int{1, 2, 3},
		BlockedApps:  []string{"app.video"},
		IsActive:     true,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func TestPlanRepo_Create_OK_and_Duplicate(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPlanRepo(db)
	ctx := context.Background()
	p := samplePlan()

	mock.ExpectExec(`INSERT INTO sleep_plans \(id, start_time, end_time, selected_days, blocked_apps, is_active, created_at, updated_at\) VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8\)`).
		WithArgs(p.ID, "22:30:00", "06:15:00", p.SelectedDays, p.BlockedApps, true, p.CreatedAt, p.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(ctx, p))

	mock.ExpectExec(`INSERT INTO sleep_plans`).
		WithArgs(p.ID, "22:30:00", "06:15:00", p.SelectedDays, p.BlockedApps, true, p.CreatedAt, p.UpdatedAt).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.Create(ctx, p), errs.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanRepo_Create_NilSlicesStoredEmpty(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPlanRepo(db)
	p := samplePlan()
	p.SelectedDays, p.BlockedApps = nil, nil

	mock.ExpectExec(`INSERT INTO sleep_plans`).
		WithArgs(p.ID, "22:30:00", "06:15:00", []int{}, []string{}, true, p.CreatedAt, p.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.Create(context.Background(), p))
}

func TestPlanRepo_Get_ReanchorsClockToToday(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPlanRepo(db)
	r.now = fixedNow
	p := samplePlan()

	mock.ExpectQuery(`SELECT id, start_time, end_time, selected_days, blocked_apps, is_active, created_at, updated_at FROM sleep_plans WHERE id=\$1`).
		WithArgs(p.ID).
		WillReturnRows(pgxmock.NewRows(planCols).
			AddRow(p.ID, "22:30:00", "06:15:00", []int{1, 2, 3}, []string{"app.video"}, true, p.CreatedAt, p.UpdatedAt))

	got, err := r.Get(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)
	require.Equal(t, time.Date(2026, 3, 4, 22, 30, 0, 0, time.UTC), got.StartTime)
	require.Equal(t, time.Date(2026, 3, 4, 6, 15, 0, 0, time.UTC), got.EndTime)
	require.Equal(t, []int{1, 2, 3}, got.SelectedDays)
	require.Equal(t, p.CreatedAt, got.CreatedAt)
}

func TestPlanRepo_Get_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPlanRepo(db)
	id := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT .* FROM sleep_plans WHERE id=\$1`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	_, err := r.Get(context.Background(), id)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestPlanRepo_List(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPlanRepo(db)
	r.now = fixedNow
	a, b := samplePlan(), samplePlan()

	mock.ExpectQuery(`SELECT .* FROM sleep_plans ORDER BY created_at ASC`).
		WillReturnRows(pgxmock.NewRows(planCols).
			AddRow(a.ID, "22:30:00", "06:15:00", []int{1}, []string{}, true, a.CreatedAt, a.UpdatedAt).
			AddRow(b.ID, "21:00:00", "07:00:00", []int{0, 6}, []string{"x"}, false, b.CreatedAt, b.UpdatedAt))

	got, err := r.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, a.ID, got[0].ID)
	require.False(t, got[1].IsActive)
	require.Equal(t, 21, got[1].StartTime.Hour())
}

func TestPlanRepo_Update(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPlanRepo(db)
	ctx := context.Background()
	p := samplePlan()

	mock.ExpectExec(`UPDATE sleep_plans SET start_time=\$2, end_time=\$3, selected_days=\$4, blocked_apps=\$5, is_active=\$6, updated_at=\$7 WHERE id=\$1`).
		WithArgs(p.ID, "22:30:00", "06:15:00", p.SelectedDays, p.BlockedApps, true, p.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.Update(ctx, p))

	mock.ExpectExec(`UPDATE sleep_plans`).
		WithArgs(p.ID, "22:30:00", "06:15:00", p.SelectedDays, p.BlockedApps, true, p.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	require.ErrorIs(t, r.Update(ctx, p), errs.ErrNotFound)
}

func TestPlanRepo_Delete(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewPlanRepo(db)
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	mock.ExpectExec(`DELETE FROM sleep_plans WHERE id=\$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	require.NoError(t, r.Delete(ctx, id))

	mock.ExpectExec(`DELETE FROM sleep_plans WHERE id=\$1`).
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	require.ErrorIs(t, r.Delete(ctx, id), errs.ErrNotFound)
}
