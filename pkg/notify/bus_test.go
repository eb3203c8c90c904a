package notify

import (
	"context"
	"testing"
	"time"

	"github.com/ncxd/confd/pkg/objtree"
)

func payloadTree(t *testing.T, name, value string) *objtree.Tree {
	t.Helper()
	tr := objtree.NewTree("notification", "", nil)
	leaf := tr.Create(objtree.KindLeaf, name, "", nil)
	if err := tr.AddChild(tr.Root(), leaf, nil); err != nil {
		t.Fatalf("AddChild: %v", err)
	}
	if err := tr.SetBody(leaf, value); err != nil {
		t.Fatalf("SetBody: %v", err)
	}
	return tr
}

func TestPublishDeliversToMatchingSubscriber(t *testing.T) {
	b := NewBus()
	sub, err := b.Subscribe("interface-events", "", nil, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer b.Unsubscribe(sub)

	b.Publish(context.Background(), "interface-events", payloadTree(t, "link-up", "eth0"))

	select {
	case e := <-sub.C:
		if e.Stream != "interface-events" {
			t.Fatalf("got stream %q, want interface-events", e.Stream)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestPublishSkipsNonMatchingStream(t *testing.T) {
	b := NewBus()
	sub, err := b.Subscribe("a", "", nil, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer b.Unsubscribe(sub)

	b.Publish(context.Background(), "b", payloadTree(t, "x", "1"))

	select {
	case e := <-sub.C:
		t.Fatalf("unexpected event delivered: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFilterExcludesNonMatchingEvents(t *testing.T) {
	b := NewBus()
	sub, err := b.Subscribe("events", "/link-up[.='eth1']", nil, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer b.Unsubscribe(sub)

	b.Publish(context.Background(), "events", payloadTree(t, "link-up", "eth0"))
	b.Publish(context.Background(), "events", payloadTree(t, "link-up", "eth1"))

	select {
	case e := <-sub.C:
		children := e.Payload.Children(e.Payload.Root())
		if len(children) != 1 || e.Payload.Body(children[0]) != "eth1" {
			t.Fatalf("expected the eth1 event, got %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for filtered event")
	}

	select {
	case e := <-sub.C:
		t.Fatalf("unexpected second event delivered: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeReplaysBufferedEventsThenGoesLive(t *testing.T) {
	b := NewBus()
	start := time.Now()
	b.Publish(context.Background(), "events", payloadTree(t, "a", "1"))
	time.Sleep(5 * time.Millisecond)

	sub, err := b.Subscribe("events", "", &start, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer b.Unsubscribe(sub)

	select {
	case <-sub.C:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for replayed event")
	}

	b.Publish(context.Background(), "events", payloadTree(t, "b", "2"))
	select {
	case <-sub.C:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for live event")
	}
}

func TestSubscribeWithPastStopTimeIsReplayOnly(t *testing.T) {
	b := NewBus()
	start := time.Now()
	b.Publish(context.Background(), "events", payloadTree(t, "a", "1"))
	time.Sleep(5 * time.Millisecond)
	stop := time.Now()
	time.Sleep(5 * time.Millisecond)

	sub, err := b.Subscribe("events", "", &start, &stop)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	select {
	case _, ok := <-sub.C:
		if !ok {
			t.Fatal("channel closed before delivering the buffered event")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for replayed event")
	}

	select {
	case _, ok := <-sub.C:
		if ok {
			t.Fatal("expected channel to be closed after replay-only delivery")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel close")
	}

	select {
	case <-sub.Done:
	case <-time.After(time.Second):
		t.Fatal("Done was never closed for a replay-only subscription")
	}

	// A replay-only subscription must never be registered live: publishing
	// again afterward must not panic or block on a stale subscriber.
	b.Publish(context.Background(), "events", payloadTree(t, "c", "3"))
}

func TestBackpressureDropsStalledSubscriberAndClosesDone(t *testing.T) {
	b := NewBus()
	b.Backpressure = 10 * time.Millisecond
	b.SubscriberBuffer = 1

	sub, err := b.Subscribe("events", "", nil, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// Fill the buffer, then publish again without draining so the second
	// publish's fan-out goroutine stalls past the backpressure window.
	b.Publish(context.Background(), "events", payloadTree(t, "a", "1"))
	b.Publish(context.Background(), "events", payloadTree(t, "b", "2"))

	select {
	case <-sub.Done:
	case <-time.After(time.Second):
		t.Fatal("Done was never closed after the subscriber stalled")
	}

	// The bus must have removed the subscription from its live set; a
	// further publish must not attempt to send on (or close) sub.C again.
	b.Publish(context.Background(), "events", payloadTree(t, "c", "3"))
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBus()
	sub, err := b.Subscribe("events", "", nil, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	select {
	case <-sub.Done:
	default:
		t.Fatal("Done should be closed after Unsubscribe")
	}
}
