// Package service contains the sleep-mode state machine, the music ownership
// coordinator and sleep-plan management.
package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/sleep-keeper/internal/enforce"
	"github.com/and161185/sleep-keeper/internal/errs"
	"github.com/and161185/sleep-keeper/internal/model"
	"github.com/and161185/sleep-keeper/internal/notify"
	"github.com/and161185/sleep-keeper/internal/repository"
	"github.com/and161185/sleep-keeper/internal/scheduler"
	"github.com/and161185/sleep-keeper/internal/window"
)

// DefaultLead is how long before the window start the upcoming-start notification fires.
const DefaultLead = 5 * time.Minute

// ShieldService drives the sleep-mode state machine.
type ShieldService interface {
	// Start loads settings, resumes the shield if needed and starts the ticker when enabled.
	Start(ctx context.Context) error
	// Stop halts the ticker and cancels pending notifications. The applied shield is kept.
	Stop(ctx context.Context)
	// Reload re-reads settings and applies them as a user edit.
	Reload(ctx context.Context) error

	EnableSleepMode(ctx context.Context) error
	DisableSleepMode(ctx context.Context) error
	// Evaluate runs one transition check against the current clock.
	Evaluate(ctx context.Context)

	ToggleWeekday(ctx context.Context, day time.Weekday) error
	SetStartTime(ctx context.Context, t model.TimeOfDay) error
	SetEndTime(ctx context.Context, t model.TimeOfDay) error
	SetBlockSet(ctx context.Context, bs model.BlockSet) error
	SetSelectedTrack(ctx context.Context, track *model.TrackRef) error
	ApplyPlan(ctx context.Context, plan model.SleepPlan) error

	// State returns a snapshot of the session.
	State() model.ShieldSession
}

// ShieldConfig tunes the service. Zero values take defaults.
type ShieldConfig struct {
	Interval time.Duration // evaluation tick period
	Lead     time.Duration // upcoming-start notification lead
}

// ShieldServiceImpl is the single owner of the ShieldSession.
//
// opMu serializes every operation, so ticks and user edits never interleave.
// mu only guards sess. Enforcement and notification calls are queued on fx
// after the transition is committed and run in order outside opMu.
type ShieldServiceImpl struct {
	repo     repository.SettingsRepository
	enforcer enforce.Enforcer
	notifier notify.Notifier
	music    Music
	events   *Broadcaster
	log      *zap.Logger

	ticker *scheduler.Ticker
	fx     effectQueue
	lead   time.Duration
	now    func() time.Time

	opMu sync.Mutex

	mu     sync.Mutex
	sess   model.ShieldSession
	runCtx context.Context
}

var _ ShieldService = (*ShieldServiceImpl)(nil)

// NewShieldService wires the state machine. events may be nil.
func NewShieldService(
	repo repository.SettingsRepository,
	enforcer enforce.Enforcer,
	notifier notify.Notifier,
	music Music,
	events *Broadcaster,
	log *zap.Logger,
	cfg ShieldConfig,
) *ShieldServiceImpl {
	if cfg.Lead <= 0 {
		cfg.Lead = DefaultLead
	}
	s := &ShieldServiceImpl{
		repo:     repo,
		enforcer: enforcer,
		notifier: notifier,
		music:    music,
		events:   events,
		log:      log,
		lead:     cfg.Lead,
		now:      time.Now,
		runCtx:   context.Background(),
	}
	s.ticker = scheduler.NewTicker(cfg.Interval, log, s.Evaluate)
	return s
}

// Start loads the Config Store and brings the session in line with it.
// A shield found inside the window is re-applied without a notification.
func (s *ShieldServiceImpl) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	s.runCtx = ctx
	s.mu.Unlock()

	st := s.load(ctx)
	now := s.now()

	s.mu.Lock()
	s.sess = model.ShieldSession{
		SleepModeEnabled: st.Enabled,
		Window:           st.Window(),
		BlockSet:         st.BlockSet,
		SelectedTrack:    st.SelectedTrack,
		SelectedPlanID:   st.SelectedPlanID,
	}
	snap := s.sess.Clone()
	s.mu.Unlock()
	s.publish(model.EventSettingsLoaded, now)

	if !snap.SleepModeEnabled {
		s.clearLeftover(ctx)
		s.log.Info("started", zap.Bool("enabled", false))
		return nil
	}

	s.ticker.Start(ctx)
	s.reschedule(ctx, now)
	if window.Contains(now, snap.Window) {
		s.applyShield(ctx, now, false)
	} else {
		s.clearLeftover(ctx)
	}
	s.log.Info("started",
		zap.Bool("enabled", true),
		zap.Bool("shieldActive", s.State().ShieldActive),
		zap.Bool("ticking", s.ticker.Running()),
		zap.Duration("interval", s.ticker.Interval()),
	)
	return nil
}

// Stop halts evaluation, cancels pending notifications and waits for queued
// enforcement and delivery until ctx is done. The shield stays applied so a
// restart inside the window resumes it.
func (s *ShieldServiceImpl) Stop(ctx context.Context) {
	s.opMu.Lock()
	s.ticker.Stop()
	s.effect(ctx, func(ctx context.Context) {
		if err := s.notifier.CancelAllPending(ctx); err != nil {
			s.log.Warn("cancel pending notifications failed", zap.Error(err))
		}
	})
	s.opMu.Unlock()

	// a tick blocked on opMu must be able to finish before we wait on it
	s.ticker.Wait()
	if err := s.fx.wait(ctx); err != nil {
		s.log.Warn("stopped with side effects outstanding", zap.Int("queued", s.fx.pending()), zap.Error(err))
		return
	}
	s.log.Info("stopped")
}

// effect queues fn behind earlier side effects. fn gets a context that keeps
// ctx's values but not its cancellation, since the caller has already returned.
func (s *ShieldServiceImpl) effect(ctx context.Context, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	s.fx.submit(func() { fn(ctx) })
}

func (s *ShieldServiceImpl) clearLeftover(ctx context.Context) {
	s.effect(ctx, func(ctx context.Context) {
		if err := s.enforcer.Clear(ctx); err != nil {
			s.log.Warn("clear leftover shield failed", zap.Error(err))
		}
	})
}

// Reload re-reads the Config Store and applies differences the way the matching
// user action would.
func (s *ShieldServiceImpl) Reload(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	st := s.load(ctx)
	now := s.now()

	s.mu.Lock()
	prev := s.sess.Clone()
	s.sess.Window = st.Window()
	s.sess.BlockSet = st.BlockSet
	s.sess.SelectedTrack = st.SelectedTrack
	s.sess.SelectedPlanID = st.SelectedPlanID
	s.mu.Unlock()
	s.publish(model.EventSettingsLoaded, now)

	switch {
	case st.Enabled && !prev.SleepModeEnabled:
		s.enableLocked(ctx, now)
	case !st.Enabled && prev.SleepModeEnabled:
		s.disableLocked(ctx, now)
	default:
		if prev.ShieldActive && !sameBlockSet(prev.BlockSet, st.BlockSet) {
			s.reapply(ctx)
		}
		s.reschedule(ctx, now)
		s.evaluateLocked(ctx, now)
	}
	return nil
}

// EnableSleepMode turns sleep mode on, announces it, starts the ticker and
// evaluates at once. Enabling twice is a no-op.
func (s *ShieldServiceImpl) EnableSleepMode(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.State().SleepModeEnabled {
		return nil
	}
	s.enableLocked(ctx, s.now())
	return s.save(ctx)
}

func (s *ShieldServiceImpl) enableLocked(ctx context.Context, now time.Time) {
	s.mu.Lock()
	s.sess.SleepModeEnabled = true
	runCtx := s.runCtx
	s.mu.Unlock()

	s.effect(ctx, func(ctx context.Context) {
		if err := s.notifier.Notify(ctx, model.KindModeEnabled); err != nil {
			s.log.Warn("mode-enabled notification failed", zap.Error(err))
		}
	})
	s.publish(model.EventModeEnabled, now)
	s.ticker.Start(runCtx)
	s.reschedule(ctx, now)
	s.evaluateLocked(ctx, now)
	s.log.Info("sleep mode enabled", zap.Bool("ticking", s.ticker.Running()))
}

// DisableSleepMode turns sleep mode off. An active shield is removed without a
// notification and automatic music is stopped; user music keeps playing.
func (s *ShieldServiceImpl) DisableSleepMode(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.State().SleepModeEnabled {
		return nil
	}
	s.disableLocked(ctx, s.now())
	return s.save(ctx)
}

// disableLocked drops both flags in one step so no snapshot ever shows an
// active shield with sleep mode off.
func (s *ShieldServiceImpl) disableLocked(ctx context.Context, now time.Time) {
	s.mu.Lock()
	s.sess.SleepModeEnabled = false
	active := s.sess.ShieldActive
	s.sess.ShieldActive = false
	s.mu.Unlock()

	s.ticker.Stop()
	s.reschedule(ctx, now)
	if active {
		s.shieldRemoved(ctx, now, false)
	} else {
		s.music.AutoStop()
	}
	s.publish(model.EventModeDisabled, now)
	s.log.Info("sleep mode disabled")
}

// Evaluate checks the window against the clock and fires a transition on an edge.
func (s *ShieldServiceImpl) Evaluate(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.evaluateLocked(ctx, s.now())
}

// EvaluateAt is Evaluate against an explicit instant.
func (s *ShieldServiceImpl) EvaluateAt(ctx context.Context, now time.Time) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.evaluateLocked(ctx, now)
}

func (s *ShieldServiceImpl) evaluateLocked(ctx context.Context, now time.Time) {
	snap := s.State()
	if !snap.SleepModeEnabled {
		if snap.ShieldActive {
			s.removeShield(ctx, now)
		}
		return
	}
	in := window.Contains(now, snap.Window)
	switch {
	case in && !snap.ShieldActive:
		s.applyShield(ctx, now, true)
	case !in && snap.ShieldActive:
		s.removeShield(ctx, now)
	}
}

// applyShield flips shieldActive and performs the entering side effects.
// The flag records intent: enforcement failures are logged, not retried.
func (s *ShieldServiceImpl) applyShield(ctx context.Context, now time.Time, announce bool) {
	s.mu.Lock()
	if s.sess.ShieldActive {
		s.mu.Unlock()
		return
	}
	s.sess.ShieldActive = true
	bs := s.sess.BlockSet.Clone()
	var track *model.TrackRef
	if s.sess.SelectedTrack != nil {
		t := *s.sess.SelectedTrack
		track = &t
	}
	s.mu.Unlock()

	s.effect(ctx, func(ctx context.Context) {
		if err := s.enforcer.Apply(ctx, bs); err != nil {
			s.log.Error("apply shield failed", zap.Error(err))
		}
		if announce {
			if err := s.notifier.Notify(ctx, model.KindSleepStarted); err != nil {
				s.log.Warn("sleep-started notification failed", zap.Error(err))
			}
		}
	})
	if track != nil {
		s.music.AutoPlayIfFree(*track)
	}
	s.publish(model.EventShieldApplied, now)
	s.log.Info("shield applied", zap.Int("tokens", bs.Len()), zap.Bool("announced", announce))
}

// removeShield flips shieldActive off and undoes applyShield. The ended
// notification is only sent while sleep mode is still enabled.
func (s *ShieldServiceImpl) removeShield(ctx context.Context, now time.Time) {
	s.mu.Lock()
	if !s.sess.ShieldActive {
		s.mu.Unlock()
		return
	}
	s.sess.ShieldActive = false
	enabled := s.sess.SleepModeEnabled
	s.mu.Unlock()

	s.shieldRemoved(ctx, now, enabled)
}

// shieldRemoved performs the leaving side effects once shieldActive is off.
func (s *ShieldServiceImpl) shieldRemoved(ctx context.Context, now time.Time, announce bool) {
	s.effect(ctx, func(ctx context.Context) {
		if err := s.enforcer.Clear(ctx); err != nil {
			s.log.Error("remove shield failed", zap.Error(err))
		}
		if announce {
			if err := s.notifier.Notify(ctx, model.KindSleepEnded); err != nil {
				s.log.Warn("sleep-ended notification failed", zap.Error(err))
			}
		}
	})
	s.music.AutoStop()
	s.publish(model.EventShieldRemoved, now)
	s.log.Info("shield removed", zap.Bool("announced", announce))
}

// reapply pushes the current block set to enforcement while the shield is up.
func (s *ShieldServiceImpl) reapply(ctx context.Context) {
	snap := s.State()
	if !snap.ShieldActive {
		return
	}
	s.effect(ctx, func(ctx context.Context) {
		if err := s.enforcer.Apply(ctx, snap.BlockSet); err != nil {
			s.log.Error("re-apply shield failed", zap.Error(err))
		}
	})
}

// reschedule replaces any pending upcoming-start notification with one for the
// next start on an active weekday, if that start is more than lead away.
func (s *ShieldServiceImpl) reschedule(ctx context.Context, now time.Time) {
	var (
		next  time.Time
		delay time.Duration
	)
	if snap := s.State(); snap.SleepModeEnabled {
		if n, ok := window.NextStartWithin(now, snap.Window); ok {
			next, delay = n, n.Sub(now)-s.lead
		}
	}
	s.effect(ctx, func(ctx context.Context) {
		if err := s.notifier.CancelAllPending(ctx); err != nil {
			s.log.Warn("cancel pending notifications failed", zap.Error(err))
		}
		if delay <= 0 {
			return
		}
		if err := s.notifier.ScheduleDelayed(ctx, model.KindUpcomingStart, delay); err != nil {
			s.log.Warn("schedule upcoming-start failed", zap.Error(err))
			return
		}
		s.log.Debug("upcoming-start scheduled", zap.Time("start", next), zap.Duration("delay", delay))
	})
}

// ToggleWeekday flips day in the active set and evaluates.
func (s *ShieldServiceImpl) ToggleWeekday(ctx context.Context, day time.Weekday) error {
	if day < time.Sunday || day > time.Saturday {
		return fmt.Errorf("%d: %w", day, errs.ErrInvalidWeekday)
	}
	return s.mutate(ctx, true, func(sess *model.ShieldSession) {
		sess.Window.Days = sess.Window.Days.Toggle(day)
	})
}

// SetStartTime moves the window start and evaluates.
func (s *ShieldServiceImpl) SetStartTime(ctx context.Context, t model.TimeOfDay) error {
	if !t.Valid() {
		return fmt.Errorf("start %v: %w", t, errs.ErrInvalidTime)
	}
	return s.mutate(ctx, true, func(sess *model.ShieldSession) {
		sess.Window.Start = model.NewTimeOfDay(t.Hour, t.Minute)
	})
}

// SetEndTime moves the window end and evaluates.
func (s *ShieldServiceImpl) SetEndTime(ctx context.Context, t model.TimeOfDay) error {
	if !t.Valid() {
		return fmt.Errorf("end %v: %w", t, errs.ErrInvalidTime)
	}
	return s.mutate(ctx, false, func(sess *model.ShieldSession) {
		sess.Window.End = model.NewTimeOfDay(t.Hour, t.Minute)
	})
}

// SetBlockSet replaces the block set. An active shield is re-applied with the
// new set without a notification.
func (s *ShieldServiceImpl) SetBlockSet(ctx context.Context, bs model.BlockSet) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	s.sess.BlockSet = bs.Clone()
	s.mu.Unlock()

	now := s.now()
	s.reapply(ctx)
	s.publish(model.EventConfigChanged, now)
	s.evaluateLocked(ctx, now)
	return s.save(ctx)
}

// SetSelectedTrack changes the track started automatically at window start.
// It does not touch current playback.
func (s *ShieldServiceImpl) SetSelectedTrack(ctx context.Context, track *model.TrackRef) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if track == nil {
		s.sess.SelectedTrack = nil
	} else {
		t := *track
		s.sess.SelectedTrack = &t
	}
	s.mu.Unlock()

	s.publish(model.EventConfigChanged, s.now())
	return s.save(ctx)
}

// ApplyPlan copies the plan's window into the session and remembers the plan.
// A plan with blocked apps replaces the application part of the block set.
func (s *ShieldServiceImpl) ApplyPlan(ctx context.Context, plan model.SleepPlan) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	s.sess.Window = plan.Window()
	s.sess.SelectedPlanID = plan.ID
	changedApps := len(plan.BlockedApps) > 0
	if changedApps {
		s.sess.BlockSet.Applications = append([]string(nil), plan.BlockedApps...)
	}
	s.mu.Unlock()

	now := s.now()
	if changedApps {
		s.reapply(ctx)
	}
	s.publish(model.EventConfigChanged, now)
	s.reschedule(ctx, now)
	s.evaluateLocked(ctx, now)
	s.log.Info("plan applied", zap.String("plan", plan.ID.String()))
	return s.save(ctx)
}

// mutate applies a window edit, persists it and evaluates immediately.
func (s *ShieldServiceImpl) mutate(ctx context.Context, affectsStart bool, fn func(sess *model.ShieldSession)) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	fn(&s.sess)
	s.mu.Unlock()

	now := s.now()
	s.publish(model.EventConfigChanged, now)
	if affectsStart {
		s.reschedule(ctx, now)
	}
	s.evaluateLocked(ctx, now)
	return s.save(ctx)
}

// State returns a deep copy of the session.
func (s *ShieldServiceImpl) State() model.ShieldSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess.Clone()
}

// load reads the Config Store. Failures and bad keys fall back to defaults.
func (s *ShieldServiceImpl) load(ctx context.Context) model.Settings {
	now := s.now()
	values, err := s.repo.Load(ctx)
	if err != nil {
		s.log.Warn("load settings failed, using defaults", zap.Error(err))
		return model.DefaultSettings(now)
	}
	st, bad := model.SettingsFromValues(values, now)
	if len(bad) > 0 {
		s.log.Warn("unparseable settings replaced by defaults", zap.Strings("keys", bad))
	}
	return st
}

// save persists the session. The in-memory change stands even when saving fails.
func (s *ShieldServiceImpl) save(ctx context.Context) error {
	snap := s.State()
	st := model.Settings{
		Start:          snap.Window.Start,
		End:            snap.Window.End,
		Enabled:        snap.SleepModeEnabled,
		Days:           snap.Window.Days,
		BlockSet:       snap.BlockSet,
		SelectedTrack:  snap.SelectedTrack,
		SelectedPlanID: snap.SelectedPlanID,
	}
	if err := s.repo.Save(ctx, st.Values()); err != nil {
		s.log.Error("save settings failed", zap.Error(err))
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (s *ShieldServiceImpl) publish(kind model.EventKind, now time.Time) {
	if s.events == nil {
		return
	}
	s.events.Publish(model.Event{Kind: kind, Session: s.State(), Music: s.music.State(), At: now})
}

func sameBlockSet(a, b model.BlockSet) bool {
	return slices.Equal(a.Applications, b.Applications) && slices.Equal(a.WebDomains, b.WebDomains)
}
