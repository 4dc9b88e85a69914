// ABOUTME: In-memory publish/subscribe bus keyed by request ID
// ABOUTME: Synchronous in-order fan-out with idempotent scoped subscriptions

package bus

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for SubscribeChan subscribers.
	subscriberBufferSize = 64
)

// Handler receives events for one request ID. Handlers run on the
// publisher's goroutine and must not publish to the same request ID.
type Handler func(Event)

// topic holds the subscribers of one request ID.
type topic struct {
	// deliver serializes Publish calls so every subscriber sees events in
	// publish order.
	deliver sync.Mutex

	mu   sync.Mutex
	subs []*Subscription
}

// Bus is a process-wide publish/subscribe registry.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]*topic
	logger *slog.Logger
}

// New creates a bus. Pass nil logger for default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		topics: make(map[string]*topic),
		logger: logger.With("component", "bus"),
	}
}

// Subscription is the token returned by Subscribe.
type Subscription struct {
	bus       *Bus
	requestID string
	id        string
	handler   Handler
	once      sync.Once
	onRelease func()
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string { return s.id }

// Unsubscribe removes the subscription. It is safe to call multiple times,
// including from inside the subscription's own handler.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s.requestID, s.id)
		if s.onRelease != nil {
			s.onRelease()
		}
	})
}

// Subscribe registers h for all future events published for requestID.
func (b *Bus) Subscribe(requestID string, h Handler) *Subscription {
	return b.subscribe(requestID, h, nil)
}

func (b *Bus) subscribe(requestID string, h Handler, onRelease func()) *Subscription {
	sub := &Subscription{
		bus:       b,
		requestID: requestID,
		id:        uuid.New().String(),
		handler:   h,
		onRelease: onRelease,
	}

	b.mu.Lock()
	t, ok := b.topics[requestID]
	if !ok {
		t = &topic{}
		b.topics[requestID] = t
	}
	t.mu.Lock()
	t.subs = append(t.subs, sub)
	t.mu.Unlock()
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "request_id", requestID, "sub_id", sub.id)
	return sub
}

// SubscribeChan registers a buffered channel subscriber. The subscription is
// released when ctx is done or Unsubscribe is called, and the channel is then
// closed. Non-terminal events arriving while the buffer is full are
// dropped; a terminal event displaces the oldest buffered event instead.
func (b *Bus) SubscribeChan(ctx context.Context, requestID string) (<-chan Event, *Subscription) {
	ch := make(chan Event, subscriberBufferSize)
	done := make(chan struct{})

	var (
		mu     sync.Mutex
		closed bool
		sub    *Subscription
	)
	sub = b.subscribe(requestID, func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- ev:
			return
		default:
		}

		if !ev.Type.Terminal() {
			b.logger.Warn("dropped event for slow subscriber",
				"request_id", requestID,
				"type", ev.Type)
			return
		}

		// A terminal event replaces the oldest buffered event so the
		// subscriber still sees the end of the stream.
		select {
		case old := <-ch:
			b.logger.Warn("dropped event for slow subscriber",
				"request_id", requestID,
				"type", old.Type)
		default:
		}
		ch <- ev
	}, func() {
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
		close(done)
	})

	go func() {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
		case <-done:
		}
	}()

	return ch, sub
}

// Publish delivers ev to every current subscriber of requestID in
// subscription order. With no subscribers the event is dropped.
func (b *Bus) Publish(requestID string, ev Event) {
	b.mu.RLock()
	t, ok := b.topics[requestID]
	b.mu.RUnlock()
	if !ok {
		return
	}

	t.deliver.Lock()
	defer t.deliver.Unlock()

	t.mu.Lock()
	targets := slices.Clone(t.subs)
	t.mu.Unlock()

	for _, sub := range targets {
		sub.handler(ev)
	}
}

// SubscriberCount returns the number of subscribers for requestID.
func (b *Bus) SubscriberCount(requestID string) int {
	b.mu.RLock()
	t, ok := b.topics[requestID]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// remove deletes a subscriber and drops the topic once it is empty.
func (b *Bus) remove(requestID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[requestID]
	if !ok {
		return
	}

	t.mu.Lock()
	t.subs = slices.DeleteFunc(t.subs, func(s *Subscription) bool { return s.id == subID })
	empty := len(t.subs) == 0
	t.mu.Unlock()

	if empty {
		delete(b.topics, requestID)
	}

	b.logger.Debug("subscriber removed", "request_id", requestID, "sub_id", subID)
}

// Close releases every subscription and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.RLock()
	var all []*Subscription
	for _, t := range b.topics {
		t.mu.Lock()
		all = append(all, t.subs...)
		t.mu.Unlock()
	}
	b.mu.RUnlock()

	for _, sub := range all {
		sub.Unsubscribe()
	}

	b.logger.Debug("bus closed")
}
