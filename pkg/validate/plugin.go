package validate

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/ncxd/confd/pkg/netconf"
	"github.com/ncxd/confd/pkg/objtree"
)

// runPluginTransaction implements spec.md §4.F stage 5: begin → validate
// → complete → commit dispatched to plugins in registration order; any
// plugin returning failure aborts the transaction, with abort dispatched
// to every previously-notified plugin in reverse order.
func (p *Pipeline) runPluginTransaction(ctx context.Context, candidate *objtree.Tree, plugins []PluginHooks) (*Result, error) {
	res := &Result{Stage: StagePluginTransaction}
	if len(plugins) == 0 {
		return res, nil
	}

	phases := []struct {
		name string
		call func(PluginHooks) func(context.Context, *objtree.Tree) error
	}{
		{"begin", func(h PluginHooks) func(context.Context, *objtree.Tree) error { return h.OnBegin }},
		{"validate", func(h PluginHooks) func(context.Context, *objtree.Tree) error { return h.OnValidate }},
		{"complete", func(h PluginHooks) func(context.Context, *objtree.Tree) error { return h.OnComplete }},
		{"commit", func(h PluginHooks) func(context.Context, *objtree.Tree) error { return h.OnCommit }},
	}

	var notified []PluginHooks
	seen := map[string]bool{}
	for _, phase := range phases {
		for _, plugin := range plugins {
			if !seen[plugin.Name] {
				seen[plugin.Name] = true
				notified = append(notified, plugin)
			}
			fn := phase.call(plugin)
			if fn == nil {
				continue
			}
			if err := fn(ctx, candidate); err != nil {
				res.Errors = append(res.Errors, netconf.Wrap(netconf.ErrorTypeApplication, netconf.ErrorTagOperationFailed, err,
					"plugin %q failed during %s phase", plugin.Name, phase.name))
				abortNotified(ctx, notified)
				return res, nil
			}
		}
	}
	return res, nil
}

func abortNotified(ctx context.Context, notified []PluginHooks) {
	for idx := len(notified) - 1; idx >= 0; idx-- {
		plugin := notified[idx]
		if plugin.OnAbort == nil {
			continue
		}
		log.Warnf("aborting plugin %q", plugin.Name)
		plugin.OnAbort(ctx)
	}
}
