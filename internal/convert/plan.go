// Package convert maps domain sleep plans to and from their persisted JSON record.
package convert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	u "github.com/gofrs/uuid/v5"

	"github.com/and161185/sleep-keeper/internal/errs"
	model "github.com/and161185/sleep-keeper/internal/model"
)

// Layouts of the persisted record.
const (
	ClockLayout     = "15:04:05"
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
	basicLayout     = "2006-01-02T15:04:05"
)

// PlanRecord is the wire shape of a sleep plan.
type PlanRecord struct {
	ID           string          `json:"id"`
	StartTime    string          `json:"start_time"`
	EndTime      string          `json:"end_time"`
	SelectedDays []int           `json:"selected_days"`
	BlockedApps  []string        `json:"blocked_apps"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    json.RawMessage `json:"created_at,omitempty"`
	UpdatedAt    json.RawMessage `json:"updated_at,omitempty"`
}

// ToRecord converts a plan to its record. Only the time of day of start/end is kept.
func ToRecord(p model.SleepPlan) PlanRecord {
	days := p.SelectedDays
	if days == nil {
		days = []int{}
	}
	apps := p.BlockedApps
	if apps == nil {
		apps = []string{}
	}
	return PlanRecord{
		ID:           p.ID.String(),
		StartTime:    p.StartTime.Format(ClockLayout),
		EndTime:      p.EndTime.Format(ClockLayout),
		SelectedDays: days,
		BlockedApps:  apps,
		IsActive:     p.IsActive,
		CreatedAt:    stamp(p.CreatedAt),
		UpdatedAt:    stamp(p.UpdatedAt),
	}
}

func stamp(t time.Time) json.RawMessage {
	b, _ := json.Marshal(t.Format(TimestampLayout))
	return b
}

// FromRecord converts a record back into a plan, anchoring start/end to the day of now.
// Unparseable clock strings become now; timestamps follow ParseTimestamp.
func FromRecord(r PlanRecord, now time.Time) (model.SleepPlan, error) {
	var id u.UUID
	if err := id.UnmarshalText([]byte(r.ID)); err != nil {
		return model.SleepPlan{}, fmt.Errorf("invalid id: %w", err)
	}
	return model.SleepPlan{
		ID:           id,
		StartTime:    ParseClock(r.StartTime, now),
		EndTime:      ParseClock(r.EndTime, now),
		SelectedDays: append([]int{}, r.SelectedDays...),
		BlockedApps:  append([]string{}, r.BlockedApps...),
		IsActive:     r.IsActive,
		CreatedAt:    decodeStamp(r.CreatedAt, now),
		UpdatedAt:    decodeStamp(r.UpdatedAt, now),
	}, nil
}

// ParseClock combines an "HH:MM:SS" string with the calendar day of now.
func ParseClock(s string, now time.Time) time.Time {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return now
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, now.Location())
}

// ParseTimestamp tries ISO-8601 with fractional seconds, then the basic
// "yyyy-MM-ddTHH:mm:ss" form in now's location, then falls back to now.
func ParseTimestamp(s string, now time.Time) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.ParseInLocation(basicLayout, s, now.Location()); err == nil {
		return t
	}
	return now
}

// referenceEpoch is 2001-01-01T00:00:00Z in Unix seconds. Numeric stamps
// written by the mobile app count from it.
const referenceEpoch = 978307200

// decodeStamp accepts a JSON string (see ParseTimestamp) or a number of
// seconds since 2001-01-01 UTC.
func decodeStamp(raw json.RawMessage, now time.Time) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return now
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseTimestamp(s, now)
	}
	var secs float64
	if err := json.Unmarshal(raw, &secs); err == nil {
		sec := int64(secs)
		return time.Unix(referenceEpoch+sec, int64((secs-float64(sec))*float64(time.Second))).In(now.Location())
	}
	return now
}

// required lists the keys a record must carry; created_at/updated_at may be absent.
var required = []string{"id", "start_time", "end_time", "selected_days", "blocked_apps", "is_active"}

// DecodePlan decodes one JSON record using the current time as the anchor day.
func DecodePlan(data []byte) (model.SleepPlan, error) {
	return DecodePlanAt(data, time.Now())
}

// DecodePlanAt decodes one JSON record anchored to now.
func DecodePlanAt(data []byte, now time.Time) (model.SleepPlan, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return model.SleepPlan{}, fmt.Errorf("decode plan: %w", err)
	}
	for _, k := range required {
		if _, ok := keys[k]; !ok {
			return model.SleepPlan{}, fmt.Errorf("decode plan: missing %q: %w", k, errs.ErrValidation)
		}
	}
	var r PlanRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return model.SleepPlan{}, fmt.Errorf("decode plan: %w", err)
	}
	return FromRecord(r, now)
}

// EncodePlan encodes one plan as a JSON record.
func EncodePlan(p model.SleepPlan) ([]byte, error) {
	return json.Marshal(ToRecord(p))
}

// EncodePlans encodes a list of plans as a JSON array.
func EncodePlans(plans []model.SleepPlan) ([]byte, error) {
	recs := make([]PlanRecord, len(plans))
	for i := range plans {
		recs[i] = ToRecord(plans[i])
	}
	return json.Marshal(recs)
}

// DecodePlansAt decodes a JSON array of records anchored to now.
func DecodePlansAt(data []byte, now time.Time) ([]model.SleepPlan, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode plans: %w", err)
	}
	out := make([]model.SleepPlan, 0, len(raws))
	for i, raw := range raws {
		p, err := DecodePlanAt(raw, now)
		if err != nil {
			return nil, fmt.Errorf("plan[%d]: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}
