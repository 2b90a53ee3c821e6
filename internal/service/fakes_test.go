package service

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/sleep-keeper/internal/enforce"
	"github.com/and161185/sleep-keeper/internal/errs"
	"github.com/and161185/sleep-keeper/internal/model"
	"github.com/and161185/sleep-keeper/internal/notify"
	"github.com/and161185/sleep-keeper/internal/repository"
)

// 2024-01-01 is a Monday.
func monday(hour, minute int) time.Time {
	return time.Date(2024, time.January, 1, hour, minute, 0, 0, time.UTC)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type fakeSettingsRepo struct {
	mu      sync.Mutex
	values  map[string]string
	loadErr error
	saveErr error
	saves   int
}

var _ repository.SettingsRepository = (*fakeSettingsRepo)(nil)

func (f *fakeSettingsRepo) Load(_ context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	out := make(map[string]string, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSettingsRepo) Save(_ context.Context, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.values = values
	return nil
}

func (f *fakeSettingsRepo) get(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key]
}

type fakeEnforcer struct {
	mu      sync.Mutex
	applied []model.BlockSet
	clears  int
	err     error
}

var _ enforce.Enforcer = (*fakeEnforcer)(nil)

func (f *fakeEnforcer) Apply(_ context.Context, bs model.BlockSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, bs.Clone())
	return f.err
}

func (f *fakeEnforcer) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	return f.err
}

func (f *fakeEnforcer) counts() (applies, clears int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.applied), f.clears
}

type scheduled struct {
	kind  model.NotificationKind
	delay time.Duration
}

type fakeNotifier struct {
	mu        sync.Mutex
	sent      []model.NotificationKind
	scheduled []scheduled
	cancels   int
	err       error

	// Notify for gated blocks until gate is closed; entered fires when it starts waiting.
	gated   model.NotificationKind
	gate    chan struct{}
	entered chan struct{}
}

var _ notify.Notifier = (*fakeNotifier)(nil)

func (f *fakeNotifier) Notify(_ context.Context, kind model.NotificationKind) error {
	if f.gate != nil && kind == f.gated {
		select {
		case f.entered <- struct{}{}:
		default:
		}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, kind)
	return f.err
}

func (f *fakeNotifier) ScheduleDelayed(_ context.Context, kind model.NotificationKind, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, scheduled{kind: kind, delay: delay})
	return nil
}

// CancelAllPending forgets everything scheduled so far, like the real queue.
func (f *fakeNotifier) CancelAllPending(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	f.scheduled = nil
	return nil
}

func (f *fakeNotifier) sentKinds() []model.NotificationKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.NotificationKind(nil), f.sent...)
}

func (f *fakeNotifier) pending() []scheduled {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scheduled(nil), f.scheduled...)
}

func (f *fakeNotifier) count(kind model.NotificationKind) int {
	n := 0
	for _, k := range f.sentKinds() {
		if k == kind {
			n++
		}
	}
	return n
}

type fakePlanRepo struct {
	plans     map[uuid.UUID]model.SleepPlan
	createErr error
	updated   *model.SleepPlan
}

var _ repository.PlanRepository = (*fakePlanRepo)(nil)

func newFakePlanRepo() *fakePlanRepo { return &fakePlanRepo{plans: map[uuid.UUID]model.SleepPlan{}} }

func (f *fakePlanRepo) Create(_ context.Context, p *model.SleepPlan) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.plans[p.ID]; ok {
		return errs.ErrAlreadyExists
	}
	f.plans[p.ID] = *p
	return nil
}

func (f *fakePlanRepo) Get(_ context.Context, id uuid.UUID) (*model.SleepPlan, error) {
	p, ok := f.plans[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &p, nil
}

func (f *fakePlanRepo) List(_ context.Context) ([]model.SleepPlan, error) {
	out := make([]model.SleepPlan, 0, len(f.plans))
	for _, p := range f.plans {
		out = append(out, p)
	}
	model.SortPlans(out)
	return out, nil
}

func (f *fakePlanRepo) Update(_ context.Context, p *model.SleepPlan) error {
	if _, ok := f.plans[p.ID]; !ok {
		return errs.ErrNotFound
	}
	cp := *p
	f.updated = &cp
	f.plans[p.ID] = cp
	return nil
}

func (f *fakePlanRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.plans[id]; !ok {
		return errs.ErrNotFound
	}
	delete(f.plans, id)
	return nil
}

type fakeApplier struct {
	got *model.SleepPlan
	err error
}

func (f *fakeApplier) ApplyPlan(_ context.Context, p model.SleepPlan) error {
	f.got = &p
	return f.err
}
