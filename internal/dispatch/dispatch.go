// Package dispatch routes session deliveries to per-group subscribers.
package dispatch

import (
	"context"
	"sort"
	"sync"

	"github.com/danmuck/groupctl/internal/transport"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Subscriber consumes messages for one group. Deliver runs on the
// dispatcher goroutine and must not block for long.
type Subscriber interface {
	Deliver(msg transport.Message)
}

type SubscriberFunc func(msg transport.Message)

func (f SubscriberFunc) Deliver(msg transport.Message) {
	f(msg)
}

// Dispatcher maps group names to subscribers.
type Dispatcher struct {
	log zerolog.Logger

	mu       sync.RWMutex
	subs     map[string]Subscriber
	fallback Subscriber
}

func New(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		log:  log,
		subs: make(map[string]Subscriber),
	}
}

// Subscribe routes group to sub, replacing any earlier subscriber.
func (d *Dispatcher) Subscribe(group string, sub Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[group] = sub
}

func (d *Dispatcher) Unsubscribe(group string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subs, group)
}

func (d *Dispatcher) Subscribed(group string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.subs[group]
	return ok
}

// Groups lists subscribed group names in sorted order.
func (d *Dispatcher) Groups() []string {
	d.mu.RLock()
	names := lo.Keys(d.subs)
	d.mu.RUnlock()
	sort.Strings(names)
	return names
}

// SetFallback receives messages for groups without a subscriber. nil drops them.
func (d *Dispatcher) SetFallback(sub Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = sub
}

// Run delivers from in until it is closed (nil) or ctx is done (ctx.Err()).
func (d *Dispatcher) Run(ctx context.Context, in <-chan transport.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			d.Dispatch(msg)
		}
	}
}

// Dispatch routes one message synchronously.
func (d *Dispatcher) Dispatch(msg transport.Message) {
	d.mu.RLock()
	sub, ok := d.subs[msg.Group]
	if !ok {
		sub = d.fallback
	}
	d.mu.RUnlock()

	if sub == nil {
		d.log.Debug().Str("group", msg.Group).Str("kind", msg.Kind.String()).Msg("no subscriber, dropping message")
		return
	}
	sub.Deliver(msg)
}
