package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/ncxd/confd/pkg/objtree"
	"github.com/ncxd/confd/pkg/xpath"
)

const (
	defaultReplayCapacity   = 1024
	defaultSubscriberBuffer = 64
	defaultFanoutWorkers    = 32
	defaultBackpressure     = 5 * time.Second
)

// Bus is the notification bus of spec.md §4.H, keyed by stream name.
// Fan-out to subscribers of a single Publish call runs concurrently,
// bounded by a semaphore so one slow subscriber's blocking send cannot
// delay delivery to the others; each subscriber send still has its own
// backpressure timeout, so a stalled subscriber doesn't hold a fan-out
// slot indefinitely either.
type Bus struct {
	mu      sync.Mutex
	streams map[string]*stream

	sem *semaphore.Weighted

	ReplayCapacity   int
	SubscriberBuffer int
	Backpressure     time.Duration

	nextID atomic.Uint64
}

type stream struct {
	mu   sync.Mutex
	name string
	buf  *ring
	subs map[uint64]*Subscription
}

// NewBus constructs an empty bus. Streams are created lazily on first
// Publish or Subscribe, matching spec.md §4.H's "streams are named"
// (there is no fixed, pre-declared stream set in this engine).
func NewBus() *Bus {
	return &Bus{
		streams:          map[string]*stream{},
		sem:              semaphore.NewWeighted(defaultFanoutWorkers),
		ReplayCapacity:   defaultReplayCapacity,
		SubscriberBuffer: defaultSubscriberBuffer,
		Backpressure:     defaultBackpressure,
	}
}

func (b *Bus) streamFor(name string) *stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.streams[name]
	if !ok {
		s = &stream{name: name, buf: newRing(b.ReplayCapacity), subs: map[uint64]*Subscription{}}
		b.streams[name] = s
	}
	return s
}

// Publish appends a new event to streamName's replay buffer and fans it
// out to every live, filter-matching subscription. It blocks until
// fan-out completes, which keeps emission strictly ordered per stream
// (spec.md §5 "Notifications are emitted in the order their originating
// commits completed").
func (b *Bus) Publish(ctx context.Context, streamName string, payload *objtree.Tree) {
	s := b.streamFor(streamName)
	event := &Event{Stream: streamName, Time: time.Now(), Payload: payload}

	s.mu.Lock()
	s.buf.append(event)
	subs := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		if !sub.matches(event) {
			continue
		}
		if err := b.sem.Acquire(ctx, 1); err != nil {
			continue // caller's context canceled while waiting for a slot; skip this subscriber
		}
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()
			defer b.sem.Release(1)
			b.trySend(s, sub, event)
		}(sub)
	}
	wg.Wait()
}

// trySend delivers event to sub, dropping sub from the stream with a
// warning if it is not drained within the stream's backpressure window
// (spec.md §4.H "Subscriber sockets that are not drained within a
// bounded backpressure window are dropped with a warning"). Returns
// false if sub was dropped rather than delivered to.
func (b *Bus) trySend(s *stream, sub *Subscription, event *Event) bool {
	timer := time.NewTimer(b.Backpressure)
	defer timer.Stop()
	select {
	case sub.C <- event:
		return true
	case <-timer.C:
		log.Warnf("notify: dropping subscription %d on stream %q, stalled past backpressure window", sub.ID, s.name)
		b.unsubscribeFrom(s, sub.ID)
		sub.markDone()
		return false
	}
}

// Subscribe creates a subscription on streamName. filterExpr, if
// non-empty, is an XPath expression events must satisfy to be delivered.
// startTime, if set, replays buffered events from that point before
// switching to live fan-out. stopTime, if set and already in the past,
// makes this a replay-only subscription: matching buffered events are
// delivered and C is then closed, with no live registration (spec.md
// §4.H "Stop-time in the past causes the subscription to replay from the
// buffer then terminate").
func (b *Bus) Subscribe(streamName, filterExpr string, startTime, stopTime *time.Time) (*Subscription, error) {
	var filter xpath.Expr
	if filterExpr != "" {
		f, err := xpath.Parse(filterExpr)
		if err != nil {
			return nil, err
		}
		filter = f
	}

	sub := &Subscription{
		ID:       b.nextID.Add(1),
		Stream:   streamName,
		filter:   filter,
		stopTime: stopTime,
		C:        make(chan *Event, b.SubscriberBuffer),
		Done:     make(chan struct{}),
	}

	s := b.streamFor(streamName)
	replayOnly := stopTime != nil && !stopTime.After(time.Now())

	s.mu.Lock()
	var replay []*Event
	if startTime != nil {
		replay = s.buf.since(*startTime)
	}
	if !replayOnly {
		s.subs[sub.ID] = sub
	}
	s.mu.Unlock()

	go func() {
		for _, e := range replay {
			if stopTime != nil && e.Time.After(*stopTime) {
				break
			}
			if sub.matches(e) && !b.trySend(s, sub, e) {
				return // dropped for stalling during replay; nothing further to do
			}
		}
		if replayOnly {
			close(sub.C)
			sub.markDone()
		}
	}()

	return sub, nil
}

// Unsubscribe removes sub from its stream. Safe to call more than once;
// only the first call has any effect.
func (b *Bus) Unsubscribe(sub *Subscription) {
	s := b.streamFor(sub.Stream)
	b.unsubscribeFrom(s, sub.ID)
	sub.markDone()
}

func (b *Bus) unsubscribeFrom(s *stream, id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return false
	}
	delete(s.subs, id)
	return true
}
