package nacm

import (
	"github.com/ncxd/confd/pkg/objtree"
	"github.com/ncxd/confd/pkg/yang"
)

// Namespace is the "ietf-netconf-acm" module namespace spec.md §6 names
// as one of the two places NACM configuration may live ("stored inline
// in running under the ietf-netconf-acm namespace").
const Namespace = "urn:ietf:params:xml:ns:yang:ietf-netconf-acm"

// LoadFromTree builds an Engine from the <nacm> subtree of a datastore
// tree (spec.md §6 inline-mode). schema is attached to the Engine so
// rule path predicates can resolve prefixes against the module they were
// declared in.
func LoadFromTree(tree *objtree.Tree, schema *yang.Schema) (*Engine, error) {
	e := &Engine{
		Schema:       schema,
		Enabled:      true,
		ReadDefault:  Permit,
		WriteDefault: Deny,
		ExecDefault:  Permit,
		Groups:       map[string][]string{},
	}

	nacmNode, ok := tree.FindChild(tree.Root(), "nacm", Namespace)
	if !ok {
		e.Enabled = false
		return e, nil
	}

	if v, ok := leafBody(tree, nacmNode, "enable-nacm"); ok {
		e.Enabled = v != "false"
	}
	if v, ok := leafBody(tree, nacmNode, "read-default"); ok {
		e.ReadDefault = parseDecision(v, e.ReadDefault)
	}
	if v, ok := leafBody(tree, nacmNode, "write-default"); ok {
		e.WriteDefault = parseDecision(v, e.WriteDefault)
	}
	if v, ok := leafBody(tree, nacmNode, "exec-default"); ok {
		e.ExecDefault = parseDecision(v, e.ExecDefault)
	}

	if groupsNode, ok := tree.FindChild(nacmNode, "groups", ""); ok {
		for _, g := range tree.Children(groupsNode) {
			if tree.Name(g) != "group" {
				continue
			}
			name, _ := leafBody(tree, g, "name")
			var members []string
			for _, c := range tree.Children(g) {
				if tree.Name(c) == "user-name" {
					members = append(members, tree.Body(c))
				}
			}
			e.Groups[name] = members
		}
	}

	for _, rln := range tree.Children(nacmNode) {
		if tree.Name(rln) != "rule-list" {
			continue
		}
		rl := RuleList{}
		rl.Name, _ = leafBody(tree, rln, "name")
		for _, c := range tree.Children(rln) {
			if tree.Name(c) == "group" {
				rl.Groups = append(rl.Groups, tree.Body(c))
			}
		}
		for _, rn := range tree.Children(rln) {
			if tree.Name(rn) != "rule" {
				continue
			}
			rl.Rules = append(rl.Rules, ruleFromTree(tree, rn))
		}
		e.RuleLists = append(e.RuleLists, rl)
	}

	return e, nil
}

func ruleFromTree(tree *objtree.Tree, rn objtree.Index) Rule {
	r := Rule{}
	r.Name, _ = leafBody(tree, rn, "name")
	if v, ok := leafBody(tree, rn, "module-name"); ok {
		r.Module = v
	} else {
		r.Module = "*"
	}
	r.RPCName, _ = leafBody(tree, rn, "rpc-name")
	r.NotificationName, _ = leafBody(tree, rn, "notification-name")
	r.Path, _ = leafBody(tree, rn, "path")
	if v, ok := leafBody(tree, rn, "access-operations"); ok {
		r.Access = parseAccessOps(v)
	} else {
		r.Access = accessOpsAll
	}
	if v, ok := leafBody(tree, rn, "action"); ok {
		r.Action = parseDecision(v, Deny)
	}
	return r
}

func leafBody(tree *objtree.Tree, parent objtree.Index, name string) (string, bool) {
	c, ok := tree.FindChild(parent, name, "")
	if !ok {
		return "", false
	}
	return tree.Body(c), true
}
