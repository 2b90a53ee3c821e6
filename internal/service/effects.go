package service

import (
	"context"
	"sync"
)

// effectQueue runs submitted calls one at a time in submission order on a
// goroutine started on demand. It exits when the queue drains.
type effectQueue struct {
	mu      sync.Mutex
	queue   []func()
	running bool
	idle    chan struct{}
}

func (q *effectQueue) submit(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = append(q.queue, fn)
	if q.running {
		return
	}
	q.running = true
	q.idle = make(chan struct{})
	go q.drain()
}

func (q *effectQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.queue) == 0 {
			q.running = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		fn := q.queue[0]
		q.queue[0] = nil
		q.queue = q.queue[1:]
		q.mu.Unlock()

		fn()
	}
}

// wait blocks until everything submitted so far has run or ctx is done.
func (q *effectQueue) wait(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pending reports how many calls are queued but not started.
func (q *effectQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}
