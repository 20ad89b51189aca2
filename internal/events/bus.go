package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chachabrian/mooveit-dispatch/internal/logger"
)

// Handler consumes one event. Returned errors are logged by the bus and never
// reach the publisher.
type Handler func(ctx context.Context, e Event) error

// Publisher is the fire-and-forget side of the bus.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

type subscriber struct {
	label   string
	handler Handler
}

// Bus is an in-process publish/subscribe bus. Every matching handler runs in
// its own goroutine; a failing or panicking handler affects nobody else.
// Subscriptions are expected to be registered at startup.
type Bus struct {
	mu      sync.RWMutex
	byName  map[Name][]subscriber
	byTopic map[Topic][]subscriber
	all     []subscriber
	closed  bool
	wg      sync.WaitGroup
	log     logger.Logger
}

// NewBus creates an empty bus.
func NewBus(log logger.Logger) *Bus {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Bus{
		byName:  make(map[Name][]subscriber),
		byTopic: make(map[Topic][]subscriber),
		log:     log,
	}
}

// Subscribe registers h for one event name.
func (b *Bus) Subscribe(name Name, label string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byName[name] = append(b.byName[name], subscriber{label: label, handler: h})
}

// SubscribeTopic registers h for every event of the topic and its subtopics.
func (b *Bus) SubscribeTopic(topic Topic, label string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byTopic[topic] = append(b.byTopic[topic], subscriber{label: label, handler: h})
}

// SubscribeAll registers h for every event.
func (b *Bus) SubscribeAll(label string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, subscriber{label: label, handler: h})
}

// matching returns the subscribers for e and counts them in flight before
// releasing the lock, so Close never waits on a count that can still grow.
// The caller must call b.wg.Done once per returned subscriber.
func (b *Bus) matching(e Event) []subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	subs := append([]subscriber(nil), b.byName[e.Name()]...)
	for t := e.Topic(); t != TopicNone; t = t.Parent() {
		subs = append(subs, b.byTopic[t]...)
	}
	subs = append(subs, b.all...)
	b.wg.Add(len(subs))
	return subs
}

// Publish hands the event to every matching handler and returns immediately.
// Handlers outlive the caller's context cancellation but keep its values.
func (b *Bus) Publish(ctx context.Context, e Event) {
	ctx = context.WithoutCancel(ctx)
	for _, s := range b.matching(e) {
		go func(s subscriber) {
			defer b.wg.Done()
			if err := b.invoke(ctx, s, e); err != nil {
				b.log.Errorf("handler %s failed on %s: %v", s.label, e.Name(), err)
			}
		}(s)
	}
}

// Deliver runs every matching handler concurrently, waits for all of them
// and returns their joined errors. Used where the caller needs to know whether
// delivery succeeded, such as the outbox relay.
func (b *Bus) Deliver(ctx context.Context, e Event) error {
	subs := b.matching(e)
	if len(subs) == 0 {
		return nil
	}
	errs := make([]error, len(subs))
	var wg sync.WaitGroup
	for i, s := range subs {
		wg.Add(1)
		go func(i int, s subscriber) {
			defer wg.Done()
			defer b.wg.Done()
			if err := b.invoke(ctx, s, e); err != nil {
				b.log.Warnf("handler %s failed on %s: %v", s.label, e.Name(), err)
				errs[i] = fmt.Errorf("%s: %w", s.label, err)
			}
		}(i, s)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (b *Bus) invoke(ctx context.Context, s subscriber, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.handler(ctx, e)
}

// Close stops accepting events and waits for in-flight handlers.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}
