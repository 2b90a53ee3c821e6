package scheduler

import (
	"container/heap"
	"context"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

const maxSleepCap = 60 * time.Second

// Job is a pending one-shot job. Payload is opaque to the queue.
type Job struct {
	ID        string
	TriggerAt time.Time
	Payload   any
}

// Queue fires jobs at their trigger time from a single goroutine.
type Queue struct {
	addCh    chan Job
	removeCh chan string
	clearCh  chan struct{}
	lenCh    chan chan int
	ctx      context.Context
	log      *zap.Logger
	now      func() time.Time
}

// NewQueue creates and starts a queue. onFire runs on the queue goroutine;
// the goroutine exits when ctx is cancelled, dropping any pending jobs.
func NewQueue(ctx context.Context, log *zap.Logger, onFire func(Job)) *Queue {
	q := &Queue{
		addCh:    make(chan Job),
		removeCh: make(chan string),
		clearCh:  make(chan struct{}),
		lenCh:    make(chan chan int),
		ctx:      ctx,
		log:      log,
		now:      time.Now,
	}
	go q.run(onFire)
	return q
}

// Add enqueues a job.
func (q *Queue) Add(j Job) {
	select {
	case q.addCh <- j:
	case <-q.ctx.Done():
	}
}

// Remove cancels every pending job with id.
func (q *Queue) Remove(id string) {
	select {
	case q.removeCh <- id:
	case <-q.ctx.Done():
	}
}

// Clear cancels all pending jobs. Channels are unbuffered, so jobs a caller added
// before calling Clear are always removed and jobs added after it never are.
func (q *Queue) Clear() {
	select {
	case q.clearCh <- struct{}{}:
	case <-q.ctx.Done():
	}
}

// Len reports the number of pending jobs; 0 once the queue has stopped.
func (q *Queue) Len() int {
	reply := make(chan int, 1)
	select {
	case q.lenCh <- reply:
		return <-reply
	case <-q.ctx.Done():
		return 0
	}
}

func (q *Queue) run(onFire func(Job)) {
	h := &jobHeap{}
	heap.Init(h)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		if h.Len() == 0 {
			return nil
		}
		dur := (*h)[0].TriggerAt.Sub(q.now())
		if dur > maxSleepCap {
			dur = maxSleepCap
		}
		if dur < 0 {
			dur = 0
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	timerCh := resetTimer()
	for {
		select {
		case <-q.ctx.Done():
			return

		case j := <-q.addCh:
			heapPush(h, j)
			timerCh = resetTimer()

		case id := <-q.removeCh:
			heapRemoveByID(h, id)
			timerCh = resetTimer()

		case <-q.clearCh:
			*h = (*h)[:0]
			timerCh = resetTimer()

		case reply := <-q.lenCh:
			reply <- h.Len()

		case <-timerCh:
			now := q.now()
			for h.Len() > 0 && !(*h)[0].TriggerAt.After(now) {
				q.fire(onFire, heapPop(h))
			}
			timerCh = resetTimer()
		}
	}
}

func (q *Queue) fire(onFire func(Job), j Job) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("panic",
				zap.Any("reason", r),
				zap.ByteString("stack", debug.Stack()),
				zap.String("job", j.ID),
			)
		}
	}()
	onFire(j)
}
