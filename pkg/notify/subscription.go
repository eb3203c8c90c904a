package notify

import (
	"sync"
	"time"

	"github.com/ncxd/confd/pkg/xpath"
)

// Subscription is a live subscriber's cursor into a stream (spec.md
// §4.H). C delivers matching events; a front-end goroutine drains it for
// the lifetime of the subscriber's socket, canceling via its own
// context.Context on disconnect rather than this package spawning or
// tracking that goroutine itself.
//
// Done is closed exactly once: when the bus drops the subscription for
// stalling past its backpressure window, when the caller unsubscribes,
// or when a replay-only subscription (stop-time already past) has sent
// its replayed events. C is closed only in that last case, by the replay
// goroutine; a live subscription's C is never closed, since a concurrent
// Publish fan-out goroutine may still be attempting a send on it when
// the drop happens.
type Subscription struct {
	ID     uint64
	Stream string

	filter   xpath.Expr
	stopTime *time.Time

	C    chan *Event
	Done chan struct{}

	closeOnce sync.Once
}

func (s *Subscription) markDone() {
	s.closeOnce.Do(func() { close(s.Done) })
}

// matches reports whether e passes this subscription's filter. A nil
// filter (no <filter> given at create-subscription time) matches every
// event on the stream.
func (s *Subscription) matches(e *Event) bool {
	if s.filter == nil {
		return true
	}
	ctx := &xpath.Context{Tree: e.Payload, Node: e.Payload.Root(), Current: e.Payload.Root(), Pos: 1, Size: 1}
	val, err := xpath.Eval(s.filter, ctx)
	if err != nil {
		return false
	}
	return val.ToBool()
}
