// Package events delivers host notifications (document edits, renames,
// deletions, cursor interactions, manual triggers) to subscribers over
// bounded channels.
package events

import (
	"log/slog"
	"sync"
)

const defaultSubscriberCapacity = 64

// Kind identifies an event.
type Kind int

const (
	DocumentModified Kind = iota + 1
	DocumentRenamed
	DocumentDeleted
	InteractionOccurred
	ManualTrigger
)

func (k Kind) String() string {
	switch k {
	case DocumentModified:
		return "document-modified"
	case DocumentRenamed:
		return "document-renamed"
	case DocumentDeleted:
		return "document-deleted"
	case InteractionOccurred:
		return "interaction"
	case ManualTrigger:
		return "manual"
	default:
		return "unknown"
	}
}

// Event is one host notification. Fields beyond Kind and Path are set only
// for the kinds that use them.
type Event struct {
	Kind    Kind
	Path    string
	OldPath string // DocumentRenamed
	Line    int    // InteractionOccurred
	Content string // InteractionOccurred
	// Deletion marks an interaction that removed text.
	Deletion bool
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used to report dropped events.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithSubscriberCapacity overrides the buffered channel size per subscriber.
func WithSubscriberCapacity(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.capacity = n
		}
	}
}

// Dispatcher fans events out to subscribers by kind.
type Dispatcher struct {
	mu       sync.RWMutex
	subs     map[*subscriber]struct{}
	capacity int
	logger   *slog.Logger
}

// NewDispatcher returns a dispatcher with no subscribers.
func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		subs:     make(map[*subscriber]struct{}),
		capacity: defaultSubscriberCapacity,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Subscription is an active registration.
type Subscription struct {
	Events <-chan Event
	cancel func()
}

// Close ends the subscription and closes its channel.
func (s *Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Subscribe registers for the given kinds; no kinds means every kind.
func (d *Dispatcher) Subscribe(kinds ...Kind) *Subscription {
	sub := &subscriber{ch: make(chan Event, d.capacity)}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = true
		}
	}
	d.mu.Lock()
	d.subs[sub] = struct{}{}
	d.mu.Unlock()
	return &Subscription{
		Events: sub.ch,
		cancel: func() { d.remove(sub) },
	}
}

// Publish delivers e to every interested subscriber without blocking.
// A subscriber whose buffer is full misses the event. Publish reports
// whether every interested subscriber received it.
func (d *Dispatcher) Publish(e Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	delivered := true
	for sub := range d.subs {
		if !sub.wants(e.Kind) {
			continue
		}
		if !sub.deliver(e) {
			delivered = false
			d.logger.Debug("event dropped", "kind", e.Kind, "path", e.Path)
		}
	}
	return delivered
}

func (d *Dispatcher) remove(sub *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subs[sub]; !ok {
		return
	}
	delete(d.subs, sub)
	close(sub.ch)
}

type subscriber struct {
	ch    chan Event
	kinds map[Kind]bool
}

func (s *subscriber) wants(k Kind) bool {
	return s.kinds == nil || s.kinds[k]
}

func (s *subscriber) deliver(e Event) bool {
	select {
	case s.ch <- e:
		return true
	default:
		return false
	}
}
