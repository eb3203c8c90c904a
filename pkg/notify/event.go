// Package notify implements the notification bus of spec.md §4.H: named
// event streams, a bounded replay buffer per stream, and filtered
// fan-out to live subscriptions with backpressure-drop semantics.
package notify

import (
	"time"

	"github.com/ncxd/confd/pkg/objtree"
)

// Event is one published notification: a stream name, the time it was
// published, and its payload rendered as an object tree (rooted at the
// notification element itself) so a subscription's XPath filter can be
// evaluated against it the same way §4.F's when/must expressions
// evaluate against a configuration tree.
type Event struct {
	Stream  string
	Time    time.Time
	Payload *objtree.Tree
}
