package service

import (
	"context"
	"time"

	"github.com/and161185/sleep-keeper/internal/model"
	"github.com/and161185/sleep-keeper/internal/repository"
)

// ConfigEditor edits the Config Store while the state machine runs in another
// process. The daemon picks the changes up on Reload.
type ConfigEditor struct {
	repo repository.SettingsRepository
	now  func() time.Time
}

var _ PlanApplier = (*ConfigEditor)(nil)

// NewConfigEditor constructs a ConfigEditor.
func NewConfigEditor(repo repository.SettingsRepository) *ConfigEditor {
	return &ConfigEditor{repo: repo, now: time.Now}
}

// Load returns the stored settings with per-key defaults and the keys that had to be defaulted.
func (e *ConfigEditor) Load(ctx context.Context) (model.Settings, []string, error) {
	values, err := e.repo.Load(ctx)
	if err != nil {
		return model.Settings{}, nil, err
	}
	st, bad := model.SettingsFromValues(values, e.now())
	return st, bad, nil
}

// Update loads the settings, applies fn and saves the result. Nothing is saved when fn fails.
func (e *ConfigEditor) Update(ctx context.Context, fn func(st *model.Settings) error) (model.Settings, error) {
	st, _, err := e.Load(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	if err := fn(&st); err != nil {
		return model.Settings{}, err
	}
	if err := e.repo.Save(ctx, st.Values()); err != nil {
		return model.Settings{}, err
	}
	return st, nil
}

// ApplyPlan stores the plan's window and remembers the plan.
func (e *ConfigEditor) ApplyPlan(ctx context.Context, plan model.SleepPlan) error {
	_, err := e.Update(ctx, func(st *model.Settings) error {
		w := plan.Window()
		st.Start = model.NewTimeOfDay(w.Start.Hour, w.Start.Minute)
		st.End = model.NewTimeOfDay(w.End.Hour, w.End.Minute)
		st.Days = w.Days
		st.SelectedPlanID = plan.ID
		if len(plan.BlockedApps) > 0 {
			st.BlockSet.Applications = append([]string(nil), plan.BlockedApps...)
		}
		return nil
	})
	return err
}
