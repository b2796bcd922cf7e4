package agent

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Observer receives events in strict publish order. Panics inside an observer
// are recovered and logged; they never reach the loop.
type Observer func(Event)

// Bus fans events out to subscribers. Each subscriber has its own goroutine
// and an unbounded FIFO queue, so a slow observer never blocks publishing or
// delivery to its peers, and every observer sees the same ordered view.
type Bus struct {
	mu     sync.Mutex
	subs   map[string]*subscriber
	closed bool
	log    *slog.Logger
}

type subscriber struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
}

// NewBus creates an event bus. logger may be nil.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subs: make(map[string]*subscriber),
		log:  logger,
	}
}

// Subscribe registers an observer and returns its unsubscribe function.
// Unsubscribing is idempotent; queued events for the subscriber are still
// delivered before its goroutine exits.
func (b *Bus) Subscribe(fn Observer) func() {
	sub := &subscriber{}
	sub.cond = sync.NewCond(&sub.mu)

	id := uuid.NewString()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.subs[id] = sub
	b.mu.Unlock()

	go b.deliver(sub, fn)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			sub.close()
		})
	}
}

// Publish appends the event to every subscriber's queue. Publish never
// blocks on observers.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		sub.push(ev)
	}
}

// Close drops all subscribers after their queued events drain. Safe to call
// more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[string]*subscriber)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

func (b *Bus) deliver(sub *subscriber, fn Observer) {
	for {
		sub.mu.Lock()
		for len(sub.queue) == 0 && !sub.closed {
			sub.cond.Wait()
		}
		if len(sub.queue) == 0 && sub.closed {
			sub.mu.Unlock()
			return
		}
		batch := sub.queue
		sub.queue = nil
		sub.mu.Unlock()

		for _, ev := range batch {
			b.safeNotify(fn, ev)
		}
	}
}

func (b *Bus) safeNotify(fn Observer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event observer panicked", "kind", ev.Kind, "panic", r)
		}
	}()
	fn(ev)
}

func (s *subscriber) push(ev Event) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, ev)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
}
