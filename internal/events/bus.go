package events

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DropPolicy controls what happens when a subscriber's queue is full.
type DropPolicy string

const (
	DropNewest DropPolicy = "drop_newest"
	DropOldest DropPolicy = "drop_oldest"
)

// Handler receives events matching a subscription's filter.
type Handler func(*Event)

type subscription struct {
	id       string
	seq      int64
	filter   *EventFilter
	handler  Handler
	queue    chan *Event
	drop     DropPolicy
	stopOnce sync.Once
	stop     chan struct{}
}

// Bus is the in-memory pub/sub hub. Each subscriber is dispatched on its
// own goroutine reading from a bounded queue, so a slow callback cannot
// stall emit() or starve other subscribers; per-subscriber delivery order
// matches emission order since the queue is FIFO.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	seqCounter    int64

	history    *ringBuffer
	durable    *DurableLog // optional, nil if disabled
	broadcast  Broadcaster // optional, nil if disabled
	log        zerolog.Logger
	defaultCap int

	countersMu sync.Mutex
	byType     map[EventType]int64
	bySeverity map[Severity]int64
}

// Broadcaster forwards events to an external fan-out (e.g. a websocket hub).
type Broadcaster interface {
	Broadcast(*Event)
}

// NewBus constructs a bus with the given ring-buffer capacity and optional
// durable log / broadcaster (pass nil to disable either).
func NewBus(historyCap int, durable *DurableLog, broadcast Broadcaster, log zerolog.Logger) *Bus {
	if historyCap <= 0 {
		historyCap = 1000
	}
	return &Bus{
		subscriptions: make(map[string]*subscription),
		history:       newRingBuffer(historyCap),
		durable:       durable,
		broadcast:     broadcast,
		log:           log.With().Str("component", "event_bus").Logger(),
		defaultCap:    256,
		byType:        make(map[EventType]int64),
		bySeverity:    make(map[Severity]int64),
	}
}

// Emit runs the full pipeline: counters, ring buffer, optional durable
// log, optional broadcaster, then subscriber dispatch in registration
// order. Safe for concurrent use by multiple detector goroutines.
func (b *Bus) Emit(e *Event) {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}

	b.countersMu.Lock()
	b.byType[e.Type]++
	b.bySeverity[e.Severity]++
	b.countersMu.Unlock()

	b.history.push(e)

	if b.durable != nil {
		if err := b.durable.Append(e); err != nil {
			b.log.Error().Err(err).Str("event_id", e.EventID).Msg("failed to persist event to durable log")
		}
	}

	if b.broadcast != nil {
		b.broadcast.Broadcast(e)
	}

	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.subscriptions))
	for _, s := range b.subscriptions {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	// Registration order across subscribers.
	sortBySeq(subs)

	for _, s := range subs {
		if !s.filter.Matches(e) {
			continue
		}
		b.enqueue(s, e)
	}
}

func sortBySeq(subs []*subscription) {
	for i := 1; i < len(subs); i++ {
		for j := i; j > 0 && subs[j-1].seq > subs[j].seq; j-- {
			subs[j-1], subs[j] = subs[j], subs[j-1]
		}
	}
}

func (b *Bus) enqueue(s *subscription, e *Event) {
	select {
	case s.queue <- e:
		return
	default:
	}

	switch s.drop {
	case DropOldest:
		select {
		case <-s.queue:
		default:
		}
		select {
		case s.queue <- e:
		default:
			b.log.Warn().Str("subscription_id", s.id).Str("event_id", e.EventID).Msg("subscriber queue full, dropped event")
		}
	default: // DropNewest
		b.log.Warn().Str("subscription_id", s.id).Str("event_id", e.EventID).Msg("subscriber queue full, dropped event")
	}
}

func (b *Bus) dispatchLoop(s *subscription) {
	for {
		select {
		case e, ok := <-s.queue:
			if !ok {
				return
			}
			b.invokeSafely(s, e)
		case <-s.stop:
			return
		}
	}
}

func (b *Bus) invokeSafely(s *subscription, e *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Str("subscription_id", s.id).Msg("subscriber handler panicked")
		}
	}()
	s.handler(e)
}

// Subscribe registers a handler, optionally scoped by filter and with a
// caller-supplied id (must be unique); an empty id is generated. Returns
// the subscription id.
func (b *Bus) Subscribe(handler Handler, filter *EventFilter, id string) string {
	return b.subscribeWithPolicy(handler, filter, id, DropNewest)
}

// SubscribeWithDropPolicy is Subscribe with an explicit full-queue policy.
func (b *Bus) SubscribeWithDropPolicy(handler Handler, filter *EventFilter, id string, drop DropPolicy) string {
	return b.subscribeWithPolicy(handler, filter, id, drop)
}

func (b *Bus) subscribeWithPolicy(handler Handler, filter *EventFilter, id string, drop DropPolicy) string {
	if id == "" {
		id = uuid.NewString()
	}

	s := &subscription{
		id:      id,
		seq:     atomic.AddInt64(&b.seqCounter, 1),
		filter:  filter,
		handler: handler,
		queue:   make(chan *Event, b.defaultCap),
		drop:    drop,
		stop:    make(chan struct{}),
	}

	b.mu.Lock()
	b.subscriptions[id] = s
	b.mu.Unlock()

	go b.dispatchLoop(s)
	return id
}

// Unsubscribe removes a subscription and stops its dispatch goroutine.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	s, ok := b.subscriptions[id]
	if ok {
		delete(b.subscriptions, id)
	}
	b.mu.Unlock()

	if !ok {
		return false
	}
	s.stopOnce.Do(func() { close(s.stop) })
	return true
}

// GetHistory returns ring-buffer events matching filter, newest first,
// capped at limit (0 = no cap).
func (b *Bus) GetHistory(filter *EventFilter, limit int) []*Event {
	all := b.history.snapshot()
	out := make([]*Event, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if filter.Matches(all[i]) {
			out = append(out, all[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

// GetPersisted delegates to the durable log, if enabled.
func (b *Bus) GetPersisted(startID int64, count int) ([]*Event, error) {
	if b.durable == nil {
		return nil, nil
	}
	return b.durable.Read(startID, count)
}

// Counters returns a snapshot of the running per-type and per-severity
// counts accumulated since the bus was constructed.
func (b *Bus) Counters() (byType map[EventType]int64, bySeverity map[Severity]int64) {
	b.countersMu.Lock()
	defer b.countersMu.Unlock()

	byType = make(map[EventType]int64, len(b.byType))
	for k, v := range b.byType {
		byType[k] = v
	}
	bySeverity = make(map[Severity]int64, len(b.bySeverity))
	for k, v := range b.bySeverity {
		bySeverity[k] = v
	}
	return
}
