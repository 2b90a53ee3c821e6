// Package model defines domain entities used by services and repositories.
package model

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/sleep-keeper/internal/errs"
)

// TimeOfDay is a wall-clock time with the date component dropped.
type TimeOfDay struct {
	Hour   int // 0..23
	Minute int // 0..59
	Second int // 0..59, kept for persisted plans; the evaluator ignores it
}

// NewTimeOfDay builds an hour:minute time of day.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay{Hour: hour, Minute: minute}
}

// TimeOfDayOf extracts the time of day of t in t's location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}
}

// ParseTimeOfDay accepts "HH:MM" and "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDayOf(t), nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("%q: %w", s, errs.ErrInvalidTime)
}

// Valid reports whether every component is in range.
func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 &&
		t.Minute >= 0 && t.Minute < 60 &&
		t.Second >= 0 && t.Second < 60
}

// Minutes returns minutes since midnight (seconds ignored).
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

// On anchors the hour and minute to the calendar day of day, seconds truncated to 0.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, day.Location())
}

// String formats as "HH:MM".
func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// Clock formats as "HH:MM:SS".
func (t TimeOfDay) Clock() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// WeekdaySet is a bitmask of days, bit 0 = Sunday .. bit 6 = Saturday.
type WeekdaySet uint8

// DefaultWeekdays is Monday through Friday.
const DefaultWeekdays WeekdaySet = 1<<time.Monday | 1<<time.Tuesday | 1<<time.Wednesday |
	1<<time.Thursday | 1<<time.Friday

// WeekdaysOf builds a set from day numbers in 0..6.
func WeekdaysOf(days ...int) (WeekdaySet, error) {
	var s WeekdaySet
	for _, d := range days {
		if d < 0 || d > 6 {
			return 0, fmt.Errorf("%d: %w", d, errs.ErrInvalidWeekday)
		}
		s |= 1 << uint(d)
	}
	return s, nil
}

// Has reports whether d is in the set.
func (s WeekdaySet) Has(d time.Weekday) bool {
	return d >= time.Sunday && d <= time.Saturday && s&(1<<uint(d)) != 0
}

// Toggle flips d; days outside 0..6 leave the set unchanged.
func (s WeekdaySet) Toggle(d time.Weekday) WeekdaySet {
	if d < time.Sunday || d > time.Saturday {
		return s
	}
	return s ^ 1<<uint(d)
}

// Empty reports whether no day is selected.
func (s WeekdaySet) Empty() bool { return s&0x7f == 0 }

// Days returns the selected day numbers in ascending order.
func (s WeekdaySet) Days() []int {
	out := make([]int, 0, 7)
	for d := 0; d < 7; d++ {
		if s&(1<<uint(d)) != 0 {
			out = append(out, d)
		}
	}
	return out
}

// SleepWindow is the daily time-of-day span plus the weekdays it applies to.
// Any (Start, End) pair is legal; End <= Start wraps past midnight.
type SleepWindow struct {
	Start TimeOfDay
	End   TimeOfDay
	Days  WeekdaySet
}

// BlockSet is the opaque set of application and web-domain tokens to shield.
type BlockSet struct {
	Applications []string `json:"applications,omitempty"`
	WebDomains   []string `json:"web_domains,omitempty"`
}

// Len returns the number of tokens in the set.
func (b BlockSet) Len() int { return len(b.Applications) + len(b.WebDomains) }

// Clone returns a deep copy.
func (b BlockSet) Clone() BlockSet {
	return BlockSet{
		Applications: append([]string(nil), b.Applications...),
		WebDomains:   append([]string(nil), b.WebDomains...),
	}
}

// TrackRef references an ambient audio track from the catalog.
type TrackRef struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist,omitempty"`
}

// cloneTrack copies an optional track reference.
func cloneTrack(t *TrackRef) *TrackRef {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// ShieldState is the coarse state of the shield state machine.
type ShieldState int

const (
	StateDisabled ShieldState = iota // sleep mode off
	StateInactive                    // enabled, outside the window
	StateActive                      // enabled, inside the window, shield applied
)

func (s ShieldState) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateInactive:
		return "enabled-inactive"
	case StateActive:
		return "enabled-active"
	default:
		return fmt.Sprintf("ShieldState(%d)", int(s))
	}
}

// ShieldSession is the mutable runtime state owned by the shield service.
// ShieldActive implies SleepModeEnabled.
type ShieldSession struct {
	SleepModeEnabled bool
	ShieldActive     bool
	Window           SleepWindow
	BlockSet         BlockSet
	SelectedTrack    *TrackRef
	SelectedPlanID   uuid.UUID // uuid.Nil when no plan was activated
}

// State derives the coarse machine state.
func (s ShieldSession) State() ShieldState {
	switch {
	case !s.SleepModeEnabled:
		return StateDisabled
	case s.ShieldActive:
		return StateActive
	default:
		return StateInactive
	}
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s ShieldSession) Clone() ShieldSession {
	s.BlockSet = s.BlockSet.Clone()
	s.SelectedTrack = cloneTrack(s.SelectedTrack)
	return s
}

// MusicOwnership tracks who started the current audio session.
type MusicOwnership struct {
	IsPlaying       bool
	CurrentTrack    *TrackRef
	IsUserInitiated bool
}

// Clone returns a deep copy.
func (m MusicOwnership) Clone() MusicOwnership {
	m.CurrentTrack = cloneTrack(m.CurrentTrack)
	return m
}

// NotificationKind identifies a notification event emitted by the state machine.
type NotificationKind string

const (
	KindModeEnabled   NotificationKind = "mode-enabled"
	KindSleepStarted  NotificationKind = "sleep-started"
	KindSleepEnded    NotificationKind = "sleep-ended"
	KindUpcomingStart NotificationKind = "upcoming-start"
)

// EventKind identifies a published state change.
type EventKind string

const (
	EventModeEnabled    EventKind = "mode-enabled"
	EventModeDisabled   EventKind = "mode-disabled"
	EventShieldApplied  EventKind = "shield-applied"
	EventShieldRemoved  EventKind = "shield-removed"
	EventConfigChanged  EventKind = "config-changed"
	EventMusicChanged   EventKind = "music-changed"
	EventSettingsLoaded EventKind = "settings-loaded"
)

// Event is a snapshot published to observers after a state change.
type Event struct {
	Kind    EventKind
	Session ShieldSession
	Music   MusicOwnership
	At      time.Time
}

// SleepPlan is a persisted, user-managed schedule record.
// Only the time of day of StartTime/EndTime survives serialization.
type SleepPlan struct {
	ID           uuid.UUID
	StartTime    time.Time
	EndTime      time.Time
	SelectedDays []int    // ordered as entered, 0 = Sunday
	BlockedApps  []string // opaque application tokens
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Window converts the plan into a sleep window; out-of-range days are skipped.
func (p SleepPlan) Window() SleepWindow {
	var days WeekdaySet
	for _, d := range p.SelectedDays {
		if d >= 0 && d <= 6 {
			days |= 1 << uint(d)
		}
	}
	return SleepWindow{
		Start: TimeOfDayOf(p.StartTime),
		End:   TimeOfDayOf(p.EndTime),
		Days:  days,
	}
}

// SortPlans orders plans by creation time, oldest first.
func SortPlans(plans []SleepPlan) {
	sort.SliceStable(plans, func(i, j int) bool { return plans[i].CreatedAt.Before(plans[j].CreatedAt) })
}
