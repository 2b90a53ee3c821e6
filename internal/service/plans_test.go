package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/sleep-keeper/internal/errs"
	"github.com/and161185/sleep-keeper/internal/model"
)

func newPlanService(t *testing.T, repo *fakePlanRepo, ap PlanApplier) *PlanServiceImpl {
	s := NewPlanService(repo, ap, zaptest.NewLogger(t))
	s.now = func() time.Time { return monday(9, 30) }
	return s
}

func TestPlanService_Create(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newFakePlanRepo()
	s := newPlanService(t, repo, nil)

	p, err := s.Create(ctx, model.TimeOfDay{Hour: 22, Minute: 30, Second: 15}, model.NewTimeOfDay(6, 0), nil, []string{"app.a"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.ID == uuid.Nil || !p.IsActive {
		t.Fatalf("plan=%+v", p)
	}
	if len(p.SelectedDays) != 5 || p.SelectedDays[0] != 1 || p.SelectedDays[4] != 5 {
		t.Fatalf("default days=%v", p.SelectedDays)
	}
	if p.StartTime.Hour() != 22 || p.StartTime.Minute() != 30 || p.StartTime.Second() != 15 {
		t.Fatalf("start=%v", p.StartTime)
	}
	if !p.CreatedAt.Equal(monday(9, 30)) || !p.UpdatedAt.Equal(p.CreatedAt) {
		t.Fatalf("timestamps: %v %v", p.CreatedAt, p.UpdatedAt)
	}
	if _, ok := repo.plans[p.ID]; !ok {
		t.Fatalf("repo not called")
	}
}

func TestPlanService_Create_Validation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newFakePlanRepo()
	s := newPlanService(t, repo, nil)

	if _, err := s.Create(ctx, model.TimeOfDay{Hour: 24}, model.NewTimeOfDay(6, 0), nil, nil); !errors.Is(err, errs.ErrInvalidTime) {
		t.Fatalf("want ErrInvalidTime, got %v", err)
	}
	if _, err := s.Create(ctx, model.NewTimeOfDay(22, 0), model.NewTimeOfDay(6, 0), []int{1, 7}, nil); !errors.Is(err, errs.ErrInvalidWeekday) {
		t.Fatalf("want ErrInvalidWeekday, got %v", err)
	}
	if len(repo.plans) != 0 {
		t.Fatalf("repo should not be called on invalid input")
	}

	repo.createErr = errors.New("db down")
	if _, err := s.Create(ctx, model.NewTimeOfDay(22, 0), model.NewTimeOfDay(6, 0), []int{0}, nil); err == nil {
		t.Fatalf("want repo error")
	}
}

func TestPlanService_UpdateRefreshesTimestamp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newFakePlanRepo()
	s := newPlanService(t, repo, nil)

	p, err := s.Create(ctx, model.NewTimeOfDay(22, 0), model.NewTimeOfDay(6, 0), []int{1}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.now = func() time.Time { return monday(10, 0) }
	p.SelectedDays = []int{2, 3}
	if err := s.Update(ctx, p); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if repo.updated == nil || !repo.updated.UpdatedAt.Equal(monday(10, 0)) {
		t.Fatalf("updated=%+v", repo.updated)
	}
	if !repo.updated.CreatedAt.Equal(monday(9, 30)) {
		t.Fatalf("createdAt changed")
	}

	if err := s.Update(ctx, &model.SleepPlan{}); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
	bad := *p
	bad.SelectedDays = []int{-1}
	if err := s.Update(ctx, &bad); !errors.Is(err, errs.ErrInvalidWeekday) {
		t.Fatalf("want ErrInvalidWeekday, got %v", err)
	}
	missing := *p
	missing.ID = uuid.Must(uuid.NewV4())
	if err := s.Update(ctx, &missing); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPlanService_GetDeleteHasPlans(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newFakePlanRepo()
	s := newPlanService(t, repo, nil)

	has, err := s.HasPlans(ctx)
	if err != nil || has {
		t.Fatalf("HasPlans=%v err=%v", has, err)
	}
	p, err := s.Create(ctx, model.NewTimeOfDay(22, 0), model.NewTimeOfDay(6, 0), nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if has, _ := s.HasPlans(ctx); !has {
		t.Fatalf("HasPlans should be true")
	}
	got, err := s.Get(ctx, p.ID)
	if err != nil || got.ID != p.ID {
		t.Fatalf("Get: %+v %v", got, err)
	}
	if _, err := s.Get(ctx, uuid.Nil); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
	list, err := s.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("List: %v %v", list, err)
	}

	if err := s.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, p.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, uuid.Nil); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
}

func TestPlanService_Activate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newFakePlanRepo()
	ap := &fakeApplier{}
	s := newPlanService(t, repo, ap)

	p, err := s.Create(ctx, model.NewTimeOfDay(21, 0), model.NewTimeOfDay(7, 0), []int{0, 6}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Activate(ctx, p.ID); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if ap.got == nil || ap.got.ID != p.ID {
		t.Fatalf("applier got %+v", ap.got)
	}

	p.IsActive = false
	if err := s.Update(ctx, p); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := s.Activate(ctx, p.ID); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("inactive plan: want ErrValidation, got %v", err)
	}
	if _, err := s.Activate(ctx, uuid.Must(uuid.NewV4())); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	ap.err = errors.New("busy")
	p.IsActive = true
	_ = s.Update(ctx, p)
	if _, err := s.Activate(ctx, p.ID); err == nil {
		t.Fatalf("want applier error")
	}
}

func TestPlanService_ActivateIntoShield(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nightSettings(true), monday(21, 30), 0)
	h.start(t)
	repo := newFakePlanRepo()
	s := newPlanService(t, repo, h.svc)

	p, err := s.Create(ctx, model.NewTimeOfDay(21, 0), model.NewTimeOfDay(23, 0), []int{1}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Activate(ctx, p.ID); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	st := h.svc.State()
	if !st.ShieldActive || st.SelectedPlanID != p.ID {
		t.Fatalf("state=%+v", st)
	}
}
