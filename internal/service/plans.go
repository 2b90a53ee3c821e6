package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/sleep-keeper/internal/errs"
	"github.com/and161185/sleep-keeper/internal/model"
	"github.com/and161185/sleep-keeper/internal/repository"
)

// PlanService defines sleep-plan management.
type PlanService interface {
	// Create stores a new active plan. Empty days default to Monday..Friday.
	Create(ctx context.Context, start, end model.TimeOfDay, days []int, apps []string) (*model.SleepPlan, error)
	List(ctx context.Context) ([]model.SleepPlan, error)
	Get(ctx context.Context, id uuid.UUID) (*model.SleepPlan, error)
	// Update overwrites a plan and refreshes UpdatedAt.
	Update(ctx context.Context, p *model.SleepPlan) error
	Delete(ctx context.Context, id uuid.UUID) error
	// Activate loads the plan's window into the shield session.
	Activate(ctx context.Context, id uuid.UUID) (*model.SleepPlan, error)
	HasPlans(ctx context.Context) (bool, error)
}

// PlanApplier receives an activated plan.
type PlanApplier interface {
	ApplyPlan(ctx context.Context, plan model.SleepPlan) error
}

type PlanServiceImpl struct {
	repo   repository.PlanRepository
	shield PlanApplier
	log    *zap.Logger
	now    func() time.Time
}

var _ PlanService = (*PlanServiceImpl)(nil)

// NewPlanService constructs PlanService. shield may be nil when plans are only edited.
func NewPlanService(repo repository.PlanRepository, shield PlanApplier, log *zap.Logger) *PlanServiceImpl {
	return &PlanServiceImpl{repo: repo, shield: shield, log: log, now: time.Now}
}

// Create validates input and inserts the plan.
// Validation rules:
// - start and end are valid times of day
// - every day is in 0..6
func (s *PlanServiceImpl) Create(ctx context.Context, start, end model.TimeOfDay, days []int, apps []string) (*model.SleepPlan, error) {
	if !start.Valid() || !end.Valid() {
		return nil, fmt.Errorf("plan %v-%v: %w", start, end, errs.ErrInvalidTime)
	}
	if _, err := model.WeekdaysOf(days...); err != nil {
		return nil, err
	}
	if len(days) == 0 {
		days = model.DefaultWeekdays.Days()
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	now := s.now()
	p := &model.SleepPlan{
		ID:           id,
		StartTime:    at(start, now),
		EndTime:      at(end, now),
		SelectedDays: append([]int(nil), days...),
		BlockedApps:  append([]string(nil), apps...),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("plan created", zap.String("plan", id.String()), zap.Ints("days", p.SelectedDays))
	return p, nil
}

// List returns all plans oldest first.
func (s *PlanServiceImpl) List(ctx context.Context) ([]model.SleepPlan, error) {
	return s.repo.List(ctx)
}

// Get fetches a plan by id.
func (s *PlanServiceImpl) Get(ctx context.Context, id uuid.UUID) (*model.SleepPlan, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: empty plan id", errs.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// Update validates p, stamps UpdatedAt and stores it.
func (s *PlanServiceImpl) Update(ctx context.Context, p *model.SleepPlan) error {
	if p == nil || p.ID == uuid.Nil {
		return fmt.Errorf("%w: empty plan id", errs.ErrValidation)
	}
	if _, err := model.WeekdaysOf(p.SelectedDays...); err != nil {
		return err
	}
	p.UpdatedAt = s.now()
	return s.repo.Update(ctx, p)
}

// Delete removes a plan permanently.
func (s *PlanServiceImpl) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("%w: empty plan id", errs.ErrValidation)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("plan deleted", zap.String("plan", id.String()))
	return nil
}

// Activate hands an active plan to the shield service.
func (s *PlanServiceImpl) Activate(ctx context.Context, id uuid.UUID) (*model.SleepPlan, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, fmt.Errorf("%w: plan %s is inactive", errs.ErrValidation, id)
	}
	if s.shield == nil {
		return nil, fmt.Errorf("%w: no shield service to activate into", errs.ErrValidation)
	}
	if err := s.shield.ApplyPlan(ctx, *p); err != nil {
		return nil, err
	}
	return p, nil
}

// HasPlans reports whether any plan exists.
func (s *PlanServiceImpl) HasPlans(ctx context.Context) (bool, error) {
	plans, err := s.repo.List(ctx)
	if err != nil {
		return false, err
	}
	return len(plans) > 0, nil
}

func at(t model.TimeOfDay, day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, t.Second, 0, day.Location())
}
