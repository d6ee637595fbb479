package phoenix

import (
	"sync"
)

// PostEvent is emitted every time a new post enters the global post index.
type PostEvent struct {
	Type string  `json:"type"`
	Post Message `json:"post"`
}

// EventBus fans post events out to subscribers in application order.
// Publishing never blocks on slow subscribers: each one has its own queue.
type EventBus struct {
	subs   map[*Subscription]struct{}
	closed bool
	mu     sync.Mutex
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new subscriber. Events published before this call are
// not delivered.
func (b *EventBus) Subscribe() *Subscription {
	sub := &Subscription{
		bus:    b,
		out:    make(chan PostEvent),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	sub.C = sub.out

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.stop()
		close(sub.out)
		return sub
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go sub.pump()
	return sub
}

// Publish queues ev for every current subscriber.
func (b *EventBus) Publish(ev PostEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		sub.push(ev)
	}
}

// Close ends every subscription.
func (b *EventBus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[*Subscription]struct{})
	b.closed = true
	b.mu.Unlock()

	for sub := range subs {
		sub.stop()
	}
}

func (b *EventBus) remove(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// Subscription delivers events on C until Close is called.
type Subscription struct {
	C <-chan PostEvent

	bus    *EventBus
	out    chan PostEvent
	queue  []PostEvent
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
}

func (s *Subscription) push(ev PostEvent) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		pending := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, ev := range pending {
			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}

		if len(pending) == 0 {
			select {
			case <-s.signal:
			case <-s.done:
				return
			}
		}
	}
}

func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// Close unsubscribes. C is closed once the pump goroutine exits.
func (s *Subscription) Close() {
	s.bus.remove(s)
	s.stop()
}
