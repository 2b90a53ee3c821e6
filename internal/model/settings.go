package model

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Stable Config Store keys.
const (
	KeyStartTime      = "startTime"
	KeyEndTime        = "endTime"
	KeyEnabled        = "isSleepModeEnabled"
	KeySelectedDays   = "selectedDays"
	KeySelection      = "selection"
	KeySelectedTrack  = "selectedTrack"
	KeySelectedPlanID = "selectedPlanId"
)

// Settings is the Config Store snapshot loaded at start and saved after every mutation.
type Settings struct {
	Start          TimeOfDay
	End            TimeOfDay
	Enabled        bool
	Days           WeekdaySet
	BlockSet       BlockSet
	SelectedTrack  *TrackRef
	SelectedPlanID uuid.UUID
}

// DefaultSettings returns the documented defaults relative to now:
// start = now, end = now + 1h, disabled, Monday..Friday, empty block set, no track.
func DefaultSettings(now time.Time) Settings {
	return Settings{
		Start: NewTimeOfDay(now.Hour(), now.Minute()),
		End:   NewTimeOfDay(now.Add(time.Hour).Hour(), now.Add(time.Hour).Minute()),
		Days:  DefaultWeekdays,
	}
}

// Window returns the sleep window described by the settings.
func (s Settings) Window() SleepWindow {
	return SleepWindow{Start: s.Start, End: s.End, Days: s.Days}
}

// SettingsFromValues decodes a key/value snapshot. Absent keys take their default;
// keys that are present but unparseable also take their default and are reported in bad.
func SettingsFromValues(values map[string]string, now time.Time) (s Settings, bad []string) {
	s = DefaultSettings(now)

	if v, ok := values[KeyStartTime]; ok {
		if t, err := ParseTimeOfDay(v); err == nil {
			s.Start = t
		} else {
			bad = append(bad, KeyStartTime)
		}
	}
	if v, ok := values[KeyEndTime]; ok {
		if t, err := ParseTimeOfDay(v); err == nil {
			s.End = t
		} else {
			bad = append(bad, KeyEndTime)
		}
	}
	if v, ok := values[KeyEnabled]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			s.Enabled = b
		} else {
			bad = append(bad, KeyEnabled)
		}
	}
	if v, ok := values[KeySelectedDays]; ok {
		var days []int
		if err := json.Unmarshal([]byte(v), &days); err != nil {
			bad = append(bad, KeySelectedDays)
		} else if set, err := WeekdaysOf(days...); err != nil {
			bad = append(bad, KeySelectedDays)
		} else {
			s.Days = set
		}
	}
	if v, ok := values[KeySelection]; ok {
		var bs BlockSet
		if err := json.Unmarshal([]byte(v), &bs); err == nil {
			s.BlockSet = bs
		} else {
			bad = append(bad, KeySelection)
		}
	}
	if v, ok := values[KeySelectedTrack]; ok && v != "" {
		var tr TrackRef
		if err := json.Unmarshal([]byte(v), &tr); err == nil {
			s.SelectedTrack = &tr
		} else {
			bad = append(bad, KeySelectedTrack)
		}
	}
	if v, ok := values[KeySelectedPlanID]; ok && v != "" {
		if id, err := uuid.FromString(v); err == nil {
			s.SelectedPlanID = id
		} else {
			bad = append(bad, KeySelectedPlanID)
		}
	}
	return s, bad
}

// Values encodes the snapshot for the key/value store. Optional keys are omitted when unset.
func (s Settings) Values() map[string]string {
	days, _ := json.Marshal(s.Days.Days())
	sel, _ := json.Marshal(s.BlockSet)
	out := map[string]string{
		KeyStartTime:    s.Start.String(),
		KeyEndTime:      s.End.String(),
		KeyEnabled:      strconv.FormatBool(s.Enabled),
		KeySelectedDays: string(days),
		KeySelection:    string(sel),
	}
	if s.SelectedTrack != nil {
		tr, _ := json.Marshal(s.SelectedTrack)
		out[KeySelectedTrack] = string(tr)
	}
	if s.SelectedPlanID != uuid.Nil {
		out[KeySelectedPlanID] = s.SelectedPlanID.String()
	}
	return out
}
