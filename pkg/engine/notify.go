package engine

import (
	"context"

	"github.com/ncxd/confd/pkg/objtree"
)

const configChangeStream = "NETCONF"

// publishConfigChange publishes a minimal netconf-config-change event
// (RFC 6470) to the "NETCONF" built-in stream after a successful commit,
// carrying the committing session's identity so subscribers can filter on
// it (spec.md §4.H).
func (e *Context) publishConfigChange(ctx context.Context, sess *Session) {
	payload := objtree.NewTree("netconf-config-change", "", nil)
	by := payload.Create(objtree.KindContainer, "changed-by", "", nil)
	_ = payload.AddChild(payload.Root(), by, nil)

	user := payload.Create(objtree.KindLeaf, "username", "", nil)
	_ = payload.AddChild(by, user, nil)
	_ = payload.SetBody(user, sess.User)

	e.Notify.Publish(ctx, configChangeStream, payload)
}
