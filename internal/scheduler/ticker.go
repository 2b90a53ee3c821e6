package scheduler

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the evaluation period of the shield loop.
const DefaultInterval = 60 * time.Second

// Ticker calls fn every interval while started. At most one loop runs at a time.
type Ticker struct {
	interval time.Duration
	fn       func(ctx context.Context)
	log      *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTicker builds a stopped ticker. A non-positive interval means DefaultInterval.
func NewTicker(interval time.Duration, log *zap.Logger, fn func(ctx context.Context)) *Ticker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Ticker{interval: interval, fn: fn, log: log}
}

// Interval returns the tick period.
func (t *Ticker) Interval() time.Duration { return t.interval }

// Start launches the loop under ctx. It reports false when the loop is already running.
func (t *Ticker) Start(ctx context.Context) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return false
	}
	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.wg.Add(1)
	go t.loop(loopCtx)
	return true
}

// Stop cancels the loop without waiting for it, so it is safe to call from fn's callees.
// It reports whether a loop was running.
func (t *Ticker) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel == nil {
		return false
	}
	t.cancel()
	t.cancel = nil
	return true
}

// Running reports whether the loop is started.
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Wait blocks until every loop started so far has exited.
func (t *Ticker) Wait() { t.wg.Wait() }

func (t *Ticker) loop(ctx context.Context) {
	defer t.wg.Done()
	tk := time.NewTicker(t.interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			if ctx.Err() != nil {
				return
			}
			t.tick(ctx)
		}
	}
}

func (t *Ticker) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("panic",
				zap.Any("reason", r),
				zap.ByteString("stack", debug.Stack()),
				zap.String("component", "ticker"),
			)
		}
	}()
	t.fn(ctx)
}
