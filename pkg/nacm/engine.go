package nacm

import (
	"context"

	"github.com/ncxd/confd/pkg/netconf"
	"github.com/ncxd/confd/pkg/objtree"
	"github.com/ncxd/confd/pkg/xpath"
	"github.com/ncxd/confd/pkg/yang"
)

// Engine is a loaded NACM configuration: the enable switch, the three
// defaults, and the ordered rule-lists of spec.md §4.G. It is immutable
// once built by LoadFromTree/LoadFromFile; a configuration change is
// applied by building a fresh Engine and swapping it in, matching how
// schema nodes are treated (spec.md §3 "Rules are re-read whenever the
// NACM configuration subtree changes").
type Engine struct {
	Schema *yang.Schema

	Enabled      bool
	RecoveryUser string // e.g. the fixed "recovery session" user permitted to bypass all checks

	ReadDefault Decision
	WriteDefault Decision
	ExecDefault Decision

	// Groups maps a configured group name to its member user names
	// (RFC 8341 "groups/group/user-name"). CheckData/CheckRPC/
	// CheckNotification take the caller's resolved groups directly, so
	// this is exposed for front-ends that need to resolve a user name to
	// its groups before calling them.
	Groups map[string][]string

	RuleLists []RuleList
}

// GroupsForUser returns the configured groups user belongs to.
func (e *Engine) GroupsForUser(user string) []string {
	var out []string
	for name, members := range e.Groups {
		for _, m := range members {
			if m == user {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

// CheckData implements spec.md §4.G for a single data-node access,
// evaluating the rule-list path predicate against node's enclosing tree.
func (e *Engine) CheckData(ctx context.Context, user string, groups []string, op Operation, tree *objtree.Tree, node objtree.Index) Decision {
	if !e.Enabled || user == e.RecoveryUser {
		return Permit
	}
	module := moduleNameOf(tree, node)
	decision, matched := e.matchRules(groups, op, module, "", "", func(path string) bool {
		return e.pathMatches(tree, node, path)
	})
	if matched {
		return decision
	}
	return e.defaultFor(op)
}

// CheckRPC implements spec.md §4.G for an RPC invocation, including the
// emergency bypass for <close-session/> (step 3 of RFC 8341 §3.4.4).
func (e *Engine) CheckRPC(ctx context.Context, user string, groups []string, module, rpcName string) Decision {
	if !e.Enabled || user == e.RecoveryUser {
		return Permit
	}
	if rpcName == "close-session" {
		return Permit
	}
	decision, matched := e.matchRules(groups, OpExec, module, rpcName, "", nil)
	if matched {
		return decision
	}
	return e.ExecDefault
}

// CheckNotification implements spec.md §4.G for an event notification
// about to be delivered to a subscriber.
func (e *Engine) CheckNotification(ctx context.Context, user string, groups []string, module, notificationName string) Decision {
	if !e.Enabled || user == e.RecoveryUser {
		return Permit
	}
	decision, matched := e.matchRules(groups, OpRead, module, "", notificationName, nil)
	if matched {
		return decision
	}
	return e.ReadDefault
}

// FilterRead implements spec.md §4.G's silent-pruning read behavior: a
// deep copy of t with every node CheckData denies (together with its
// descendants) removed. The root itself is never pruned.
func (e *Engine) FilterRead(ctx context.Context, user string, groups []string, t *objtree.Tree) *objtree.Tree {
	clone := objtree.CloneTree(t)
	if !e.Enabled || user == e.RecoveryUser {
		return clone
	}
	e.pruneDenied(clone, clone.Root(), user, groups)
	return clone
}

func (e *Engine) pruneDenied(t *objtree.Tree, node objtree.Index, user string, groups []string) {
	for _, c := range t.Children(node) {
		if e.CheckData(context.Background(), user, groups, OpRead, t, c) == Deny {
			_ = t.Remove(c)
			continue
		}
		e.pruneDenied(t, c, user, groups)
	}
}

func (e *Engine) defaultFor(op Operation) Decision {
	if op == OpRead {
		return e.ReadDefault
	}
	return e.WriteDefault
}

// matchRules walks the rule-lists in order, and within each rule-list the
// rules in order, returning the first rule whose group set, module,
// RPC/notification name, access-operations and (for data nodes) path all
// match (spec.md §4.G steps 4-6). pathMatch is nil for RPC/notification
// checks, which carry no data-node path.
func (e *Engine) matchRules(groups []string, op Operation, module, rpcName, notifName string, pathMatch func(string) bool) (Decision, bool) {
	for _, rl := range e.RuleLists {
		if !rl.appliesToAnyOf(groups) {
			continue
		}
		for _, r := range rl.Rules {
			if !r.moduleMatches(module) {
				continue
			}
			if !r.Access.Has(op) {
				continue
			}
			if r.RPCName != "" && (rpcName == "" || !(r.RPCName == "*" || r.RPCName == rpcName)) {
				continue // an RPC rule matches RPC requests only
			}
			if r.NotificationName != "" && (notifName == "" || !(r.NotificationName == "*" || r.NotificationName == notifName)) {
				continue // a notification rule matches notification requests only
			}
			if r.Path != "" {
				if pathMatch == nil || !pathMatch(r.Path) {
					continue
				}
			}
			return r.Action, true
		}
	}
	return Deny, false
}

func (e *Engine) pathMatches(tree *objtree.Tree, node objtree.Index, path string) bool {
	expr, err := xpath.Parse(path)
	if err != nil {
		return false
	}
	ctx := &xpath.Context{Tree: tree, Node: tree.Root(), Current: tree.Root(), Pos: 1, Size: 1, Identities: e.Schema}
	val, err := xpath.Eval(expr, ctx)
	if err != nil || val.Kind != xpath.KindNodeSet {
		return false
	}
	for _, n := range val.Nodes {
		if n == node {
			return true
		}
	}
	return false
}

func moduleNameOf(tree *objtree.Tree, node objtree.Index) string {
	schema := tree.Schema(node)
	if schema == nil || schema.Module() == nil {
		return ""
	}
	return schema.Module().Name
}

// AccessDeniedError builds the structured RFC 6241 §7 error spec.md §4.G
// requires for a denied write or RPC: error-type "application" for data
// nodes, "protocol" for RPCs.
func AccessDeniedError(forRPC bool, path string) *netconf.RPCError {
	typ := netconf.ErrorTypeApplication
	if forRPC {
		typ = netconf.ErrorTypeProtocol
	}
	err := netconf.New(typ, netconf.ErrorTagAccessDenied, "access denied")
	if path != "" {
		err = err.WithPath(path)
	}
	return err
}
