package convert

import (
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/sleep-keeper/internal/errs"
	"github.com/and161185/sleep-keeper/internal/model"
)

var anchor = time.Date(2026, 5, 6, 14, 0, 0, 0, time.UTC)

const planJSON = `{
	"id": "6f1c2a4e-0d4b-4a53-9a55-1c1f9f6f2b11",
	"start_time": "22:30:00",
	"end_time": "06:15:30",
	"selected_days": [1, 3, 5],
	"blocked_apps": ["app.video"],
	"is_active": true,
	"created_at": "2026-01-02T03:04:05.678Z",
	"updated_at": "2026-01-03T10:00:00"
}`

func TestDecodePlanAt(t *testing.T) {
	p, err := DecodePlanAt([]byte(planJSON), anchor)
	require.NoError(t, err)

	require.Equal(t, uuid.Must(uuid.FromString("6f1c2a4e-0d4b-4a53-9a55-1c1f9f6f2b11")), p.ID)
	require.Equal(t, time.Date(2026, 5, 6, 22, 30, 0, 0, time.UTC), p.StartTime)
	require.Equal(t, time.Date(2026, 5, 6, 6, 15, 30, 0, time.UTC), p.EndTime)
	require.Equal(t, []int{1, 3, 5}, p.SelectedDays)
	require.Equal(t, []string{"app.video"}, p.BlockedApps)
	require.True(t, p.IsActive)
	require.True(t, p.CreatedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 678000000, time.UTC)))
	require.True(t, p.UpdatedAt.Equal(time.Date(2026, 1, 3, 10, 0, 0, 0, time.UTC)))
}

func TestDecodePlanAt_TimestampFallbacks(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"fractional", `"2026-01-02T03:04:05.5+02:00"`, time.Date(2026, 1, 2, 1, 4, 5, 500000000, time.UTC)},
		{"basic", `"2026-01-02T03:04:05"`, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"garbage", `"yesterday"`, anchor},
		{"null", `null`, anchor},
		{"reference-date seconds", `720000000`, time.Date(2023, 10, 26, 8, 0, 0, 0, time.UTC)},
		{"reference-date fractional", `0.25`, time.Date(2001, 1, 1, 0, 0, 0, 250000000, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := []byte(`{"id":"6f1c2a4e-0d4b-4a53-9a55-1c1f9f6f2b11","start_time":"01:00:00","end_time":"02:00:00",` +
				`"selected_days":[],"blocked_apps":[],"is_active":false,"created_at":` + tc.raw + `}`)
			p, err := DecodePlanAt(data, anchor)
			require.NoError(t, err)
			require.True(t, tc.want.Equal(p.CreatedAt), "got %v want %v", p.CreatedAt, tc.want)
			require.True(t, anchor.Equal(p.UpdatedAt), "absent updated_at falls back to now")
		})
	}
}

func TestDecodePlanAt_BadClockFallsBackToNow(t *testing.T) {
	data := []byte(`{"id":"6f1c2a4e-0d4b-4a53-9a55-1c1f9f6f2b11","start_time":"late","end_time":"06:00:00",` +
		`"selected_days":[1],"blocked_apps":[],"is_active":true}`)
	p, err := DecodePlanAt(data, anchor)
	require.NoError(t, err)
	require.Equal(t, anchor, p.StartTime)
}

func TestDecodePlanAt_Errors(t *testing.T) {
	_, err := DecodePlanAt([]byte(`{"id":"6f1c2a4e-0d4b-4a53-9a55-1c1f9f6f2b11"}`), anchor)
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = DecodePlanAt([]byte(`not json`), anchor)
	require.Error(t, err)

	_, err = DecodePlanAt([]byte(`{"id":"nope","start_time":"01:00:00","end_time":"02:00:00",`+
		`"selected_days":[],"blocked_apps":[],"is_active":true}`), anchor)
	require.Error(t, err)
}

func TestEncodeDecode_KeepsOnlyTimeOfDay(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 678000000, time.UTC)
	in := model.SleepPlan{
		ID:           uuid.Must(uuid.NewV4()),
		StartTime:    time.Date(2020, 7, 8, 23, 0, 0, 0, time.UTC),
		EndTime:      time.Date(2020, 7, 9, 7, 0, 0, 0, time.UTC),
		SelectedDays: []int{0, 6},
		IsActive:     true,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	data, err := EncodePlan(in)
	require.NoError(t, err)
	require.Contains(t, string(data), `"start_time":"23:00:00"`)
	require.Contains(t, string(data), `"blocked_apps":[]`)
	require.Contains(t, string(data), `"created_at":"2026-01-02T03:04:05.678Z"`)

	out, err := DecodePlanAt(data, anchor)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 5, 6, 23, 0, 0, 0, time.UTC), out.StartTime)
	require.Equal(t, model.TimeOfDayOf(in.EndTime), model.TimeOfDayOf(out.EndTime))
	require.True(t, created.Equal(out.CreatedAt))
	require.Equal(t, in.Window(), out.Window())
}

func TestEncodeDecodePlans(t *testing.T) {
	plans := []model.SleepPlan{
		{ID: uuid.Must(uuid.NewV4()), StartTime: anchor, EndTime: anchor, CreatedAt: anchor, UpdatedAt: anchor},
		{ID: uuid.Must(uuid.NewV4()), StartTime: anchor, EndTime: anchor, CreatedAt: anchor, UpdatedAt: anchor},
	}
	data, err := EncodePlans(plans)
	require.NoError(t, err)

	out, err := DecodePlansAt(data, anchor)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, plans[1].ID, out[1].ID)

	_, err = DecodePlansAt([]byte(`[{"id":"x"}]`), anchor)
	require.ErrorIs(t, err, errs.ErrValidation)
}
