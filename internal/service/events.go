package service

import (
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/sleep-keeper/internal/model"
)

// Broadcaster fans state-change events out to subscribers.
// Publishing never blocks: a subscriber whose buffer is full misses the event.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan model.Event
	next int
	log  *zap.Logger
}

// NewBroadcaster constructs an empty Broadcaster.
func NewBroadcaster(log *zap.Logger) *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan model.Event), log: log}
}

// Subscribe registers a subscriber with a buffer of buf events. The returned
// cancel func unregisters it and closes the channel; calling it twice is safe.
func (b *Broadcaster) Subscribe(buf int) (<-chan model.Event, func()) {
	if buf < 1 {
		buf = 1
	}
	ch := make(chan model.Event, buf)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber that has room for it.
func (b *Broadcaster) Publish(ev model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.log.Debug("event dropped", zap.Int("subscriber", id), zap.String("kind", string(ev.Kind)))
		}
	}
}

// subscribers returns the number of registered subscribers.
func (b *Broadcaster) subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
