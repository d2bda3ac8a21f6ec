// Package live delivers query results that track the store: a subscription
// re-runs its query whenever a transaction touches one of its declared entity
// types, publishing pending/fulfilled/rejected snapshots with latest-only
// delivery.
package live

import (
	"context"
	"sync"

	"labelcore/pkg/domain"
)

// State is the lifecycle stage of a subscription's current snapshot.
type State string

// Subscription snapshot states.
const (
	// StatePending means a re-run is in flight; any Data is from the
	// previous run.
	StatePending State = "pending"
	// StateFulfilled means Data holds the latest query result.
	StateFulfilled State = "fulfilled"
	// StateRejected means the latest run failed; Err holds the failure.
	StateRejected State = "rejected"
)

// Snapshot is one delivery on a subscription's update channel.
type Snapshot[T any] struct {
	State State
	Data  T
	Err   error
}

type subscriber struct {
	deps   map[domain.EntityType]struct{}
	notify func()
}

// Broker fans committed change feeds out to subscriptions. One broker per
// store; subscriptions attach and detach freely.
type Broker struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	seq    int
	cancel func()
	closed bool
}

// NewBroker attaches a broker to the store's change feed.
func NewBroker(store domain.PersistentStore) *Broker {
	b := &Broker{subs: map[int]*subscriber{}}
	b.cancel = store.Watch(b.dispatch)
	return b
}

func (b *Broker) dispatch(changes []domain.Change) {
	touched := map[domain.EntityType]struct{}{}
	for _, c := range changes {
		touched[c.Entity] = struct{}{}
	}

	b.mu.Lock()
	var notify []func()
	for _, sub := range b.subs {
		for entity := range touched {
			if _, ok := sub.deps[entity]; ok {
				notify = append(notify, sub.notify)
				break
			}
		}
	}
	b.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
}

func (b *Broker) attach(deps []domain.EntityType, notify func()) (id int, ok bool) {
	depSet := make(map[domain.EntityType]struct{}, len(deps))
	for _, d := range deps {
		depSet[d] = struct{}{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, false
	}
	b.seq++
	b.subs[b.seq] = &subscriber{deps: depSet, notify: notify}
	return b.seq, true
}

func (b *Broker) detach(id int) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Close detaches the broker from the store. Existing subscriptions stop
// receiving change notifications but stay readable until closed themselves.
func (b *Broker) Close() {
	b.mu.Lock()
	closed := b.closed
	b.closed = true
	cancel := b.cancel
	b.mu.Unlock()
	if !closed && cancel != nil {
		cancel()
	}
}

// Subscription tracks one query against the store. Updates are coalesced:
// a slow consumer sees only the most recent snapshot.
type Subscription[T any] struct {
	broker  *Broker
	id      int
	query   func(context.Context) (T, error)
	updates chan Snapshot[T]
	trigger chan struct{}
	ctx     context.Context
	stop    context.CancelFunc
	once    sync.Once
}

// Subscribe registers query to re-run whenever a transaction changes one of
// the entity types in deps. The first run starts immediately.
func Subscribe[T any](b *Broker, deps []domain.EntityType, query func(context.Context) (T, error)) *Subscription[T] {
	ctx, stop := context.WithCancel(context.Background())
	s := &Subscription[T]{
		broker:  b,
		query:   query,
		updates: make(chan Snapshot[T], 1),
		trigger: make(chan struct{}, 1),
		ctx:     ctx,
		stop:    stop,
	}
	id, ok := b.attach(deps, s.wake)
	if !ok {
		stop()
		close(s.updates)
		return s
	}
	s.id = id
	go s.run()
	return s
}

// wake requests a re-run; pending requests collapse into one.
func (s *Subscription[T]) wake() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) run() {
	defer close(s.updates)
	for {
		s.emit(Snapshot[T]{State: StatePending})
		data, err := s.query(s.ctx)
		if err != nil {
			s.emit(Snapshot[T]{State: StateRejected, Err: err})
		} else {
			s.emit(Snapshot[T]{State: StateFulfilled, Data: data})
		}
		select {
		case <-s.ctx.Done():
			return
		case <-s.trigger:
		}
	}
}

// emit replaces any undelivered snapshot with the new one.
func (s *Subscription[T]) emit(snap Snapshot[T]) {
	for {
		select {
		case s.updates <- snap:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}

// Updates returns the snapshot channel. It closes when the subscription is
// closed.
func (s *Subscription[T]) Updates() <-chan Snapshot[T] { return s.updates }

// Close detaches the subscription and closes its update channel.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		s.broker.detach(s.id)
		s.stop()
	})
}
