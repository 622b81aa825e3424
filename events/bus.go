package events

import (
	"sync"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-appstate/core"
)

// Listener receives lifecycle events synchronously on the publisher's
// goroutine. Listeners must not block.
type Listener func(event core.LifecycleEvent)

// Bus is an in-process fan-out for lifecycle events. Dispatch is synchronous
// and in registration order; a panicking listener is recovered and logged so
// one bad subscriber cannot starve the rest.
type Bus struct {
	logger core.Logger

	mu        sync.Mutex
	listeners []*subscription
	nextID    uint64
}

type subscription struct {
	id       uint64
	listener Listener
}

type Option func(*Bus)

func WithLogger(logger core.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

func New(options ...Option) *Bus {
	bus := &Bus{
		logger: glog.Ensure(nil),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(bus)
	}
	return bus
}

// Subscribe registers a listener and returns its unsubscribe handle. The
// handle is idempotent.
func (b *Bus) Subscribe(listener Listener) (unsubscribe func()) {
	if b == nil || listener == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	sub := &subscription{id: b.nextID, listener: listener}
	b.listeners = append(b.listeners, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.remove(sub.id)
		})
	}
}

// Publish delivers the event to every listener registered at call time.
// The listener list is snapshotted before dispatch, so subscribing or
// unsubscribing from inside a listener affects the next publish, not the
// current one.
func (b *Bus) Publish(event core.LifecycleEvent) {
	if b == nil {
		return
	}
	b.mu.Lock()
	snapshot := make([]*subscription, len(b.listeners))
	copy(snapshot, b.listeners)
	b.mu.Unlock()

	for _, sub := range snapshot {
		b.dispatch(sub, event)
	}
}

func (b *Bus) dispatch(sub *subscription, event core.LifecycleEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("lifecycle listener panicked",
				"event_kind", string(event.Kind),
				"event_id", event.ID,
				"panic", r,
			)
		}
	}()
	sub.listener(event)
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.listeners {
		if sub.id == id {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}

var _ core.LifecyclePublisher = (*Bus)(nil)
