// Package notify delivers user-facing notifications immediately or after a delay.
package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/sleep-keeper/internal/errs"
	"github.com/and161185/sleep-keeper/internal/model"
	"github.com/and161185/sleep-keeper/internal/scheduler"
)

// Notifier is the outbound notification port of the shield service.
type Notifier interface {
	// Notify delivers a notification of kind now.
	Notify(ctx context.Context, kind model.NotificationKind) error
	// ScheduleDelayed delivers a notification of kind after delay.
	ScheduleDelayed(ctx context.Context, kind model.NotificationKind, delay time.Duration) error
	// CancelAllPending drops every notification scheduled so far.
	CancelAllPending(ctx context.Context) error
}

// Message is a rendered notification.
type Message struct {
	Kind  model.NotificationKind
	Title string
	Body  string
}

// Sender hands a rendered message to a delivery channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher implements Notifier over a Sender and a delay queue.
type Dispatcher struct {
	ctx    context.Context
	sender Sender
	texts  *Texts
	queue  *scheduler.Queue
	log    *zap.Logger
	now    func() time.Time
}

var _ Notifier = (*Dispatcher)(nil)

// NewDispatcher starts a dispatcher whose delayed deliveries live as long as ctx.
func NewDispatcher(ctx context.Context, sender Sender, texts *Texts, log *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		ctx:    ctx,
		sender: sender,
		texts:  texts,
		log:    log,
		now:    time.Now,
	}
	d.queue = scheduler.NewQueue(ctx, log, d.fire)
	return d
}

// Notify renders kind and sends it right away.
func (d *Dispatcher) Notify(ctx context.Context, kind model.NotificationKind) error {
	msg := d.texts.Message(kind)
	if err := d.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify %s: %w", kind, err)
	}
	return nil
}

// ScheduleDelayed queues kind for delivery after delay. Delay must be positive.
func (d *Dispatcher) ScheduleDelayed(_ context.Context, kind model.NotificationKind, delay time.Duration) error {
	if delay <= 0 {
		return fmt.Errorf("%w: non-positive delay %s", errs.ErrValidation, delay)
	}
	at := d.now().Add(delay)
	d.queue.Add(scheduler.Job{ID: string(kind), TriggerAt: at, Payload: kind})
	d.log.Debug("notification scheduled", zap.String("kind", string(kind)), zap.Time("at", at))
	return nil
}

// CancelAllPending clears the delay queue.
func (d *Dispatcher) CancelAllPending(_ context.Context) error {
	d.queue.Clear()
	return nil
}

// pending returns the number of queued notifications.
func (d *Dispatcher) pending() int { return d.queue.Len() }

func (d *Dispatcher) fire(j scheduler.Job) {
	kind, ok := j.Payload.(model.NotificationKind)
	if !ok {
		d.log.Warn("unexpected job payload", zap.String("job", j.ID))
		return
	}
	if err := d.Notify(d.ctx, kind); err != nil {
		d.log.Warn("delayed notification failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}
