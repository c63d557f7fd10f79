package feed

import (
	"log/slog"
	"sync"

	"signalhub/internal/domain"
)

// DefaultBuffer is used when NewBroker is given a non-positive buffer.
const DefaultBuffer = 256

type subscriber struct {
	events chan domain.ChangeEvent
	done   chan struct{}
}

// Broker fans change events out to in-process subscribers. Every subscriber
// has its own bounded queue; a slow one loses events instead of stalling
// Publish or the other subscribers.
type Broker struct {
	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int
	buffer int
	closed bool

	logger    *slog.Logger
	onDropped func()
}

func NewBroker(buffer int, logger *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{
		subs:   make(map[int]*subscriber),
		buffer: buffer,
		logger: logger,
	}
}

// OnDropped registers a hook called once per dropped event.
func (b *Broker) OnDropped(fn func()) {
	b.mu.Lock()
	b.onDropped = fn
	b.mu.Unlock()
}

// Subscribe starts delivering events to h until the returned func is called.
// h runs on the subscriber's own goroutine, one event at a time.
func (b *Broker) Subscribe(h func(domain.ChangeEvent)) (unsubscribe func()) {
	sub := &subscriber{
		events: make(chan domain.ChangeEvent, b.buffer),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	go func() {
		defer close(sub.done)
		for ev := range sub.events {
			h(ev)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.events)
			}
			b.mu.Unlock()
			<-sub.done
		})
	}
}

func (b *Broker) Publish(ev domain.ChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, sub := range b.subs {
		select {
		case sub.events <- ev:
		default:
			b.logger.Warn("feed subscriber queue full, event dropped",
				slog.Int("subscriber", id),
				slog.String("kind", string(ev.Kind)),
			)
			if b.onDropped != nil {
				b.onDropped()
			}
		}
	}
}

func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close detaches every subscriber and waits for their handlers to return.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[int]*subscriber)
	for _, sub := range subs {
		close(sub.events)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		<-sub.done
	}
}
