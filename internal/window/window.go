// Package window evaluates daily sleep windows against wall-clock time.
package window

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/and161185/sleep-keeper/internal/model"
)

const day = 24 * time.Hour

// Contains reports whether now falls inside w.
//
// The weekday gate uses the current calendar day: the after-midnight part of a
// wrapping window is only covered when that next day is itself selected.
// Start == End takes the wrapping branch and is always inside.
// Out-of-range times of day are treated as "not in window".
func Contains(now time.Time, w model.SleepWindow) bool {
	if !w.Days.Has(now.Weekday()) {
		return false
	}
	if !w.Start.Valid() || !w.End.Valid() {
		return false
	}
	start := w.Start.On(now)
	end := w.End.On(now)
	if end.After(start) {
		return !now.Before(start) && now.Before(end)
	}
	return !now.Before(start) || now.Before(end)
}

// Duration is the length of one occurrence of w. A zero-length window counts as 24h,
// matching the always-inside behaviour of Contains.
func Duration(w model.SleepWindow) time.Duration {
	mins := w.End.Minutes() - w.Start.Minutes()
	if mins <= 0 {
		mins += 24 * 60
	}
	return time.Duration(mins) * time.Minute
}

// Cron renders the window start as a five-field cron expression over its active days.
func Cron(w model.SleepWindow) (string, error) {
	if w.Days.Empty() {
		return "", fmt.Errorf("window has no active days")
	}
	if !w.Start.Valid() {
		return "", fmt.Errorf("start %v: invalid time of day", w.Start)
	}
	days := w.Days.Days()
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return fmt.Sprintf("%d %d * * %s", w.Start.Minute, w.Start.Hour, strings.Join(parts, ",")), nil
}

// NextStart returns the first start instant strictly after now on an active weekday.
func NextStart(now time.Time, w model.SleepWindow) (time.Time, error) {
	expr, err := Cron(w)
	if err != nil {
		return time.Time{}, err
	}
	next, err := gronx.NextTickAfter(expr, now, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("next start for %q: %w", expr, err)
	}
	return next, nil
}

// NextStartWithin is NextStart limited to the coming week; ok is false when none exists.
func NextStartWithin(now time.Time, w model.SleepWindow) (time.Time, bool) {
	next, err := NextStart(now, w)
	if err != nil || next.After(now.Add(7*day)) {
		return time.Time{}, false
	}
	return next, true
}
