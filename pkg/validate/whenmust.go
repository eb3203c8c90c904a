package validate

import (
	"github.com/ncxd/confd/pkg/netconf"
	"github.com/ncxd/confd/pkg/objtree"
	"github.com/ncxd/confd/pkg/xpath"
	"github.com/ncxd/confd/pkg/yang"
)

// runWhenMust implements spec.md §4.F stage 4: every when/must expression
// evaluates true under the candidate tree, evaluated bottom-up so a node
// whose "when" is false is treated as absent for higher-level checks —
// this is why the walk collects nodes first and then evaluates them in
// reverse (post-order) rather than checking during the pre-order descent.
func (p *Pipeline) runWhenMust(tree *objtree.Tree) *Result {
	res := &Result{Stage: StageWhenMust}
	var order []objtree.Index
	_ = tree.Walk(tree.Root(), func(t *objtree.Tree, i objtree.Index, depth int) (bool, error) {
		order = append(order, i)
		return true, nil
	})

	absent := map[objtree.Index]bool{}
	for idx := len(order) - 1; idx >= 0; idx-- {
		i := order[idx]
		if ancestorAbsent(tree, i, absent) {
			continue
		}
		schema := tree.Schema(i)
		if schema == nil {
			continue
		}
		if expr := schema.WhenExpr(); expr != "" {
			ok, err := evalBool(p.Schema, tree, i, expr)
			if err != nil {
				res.Errors = append(res.Errors, netconf.Wrap(netconf.ErrorTypeApplication, netconf.ErrorTagOperationFailed, err,
					"when expression %q failed to evaluate", expr).WithPath(tree.Path(i)))
				continue
			}
			if !ok {
				absent[i] = true
				continue
			}
		}
		for _, expr := range schema.MustExprs() {
			ok, err := evalBool(p.Schema, tree, i, expr)
			if err != nil {
				res.Errors = append(res.Errors, netconf.Wrap(netconf.ErrorTypeApplication, netconf.ErrorTagOperationFailed, err,
					"must expression %q failed to evaluate", expr).WithPath(tree.Path(i)))
				continue
			}
			if !ok {
				res.Errors = append(res.Errors, netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagOperationFailed,
					"must expression %q is false", expr).WithPath(tree.Path(i)))
			}
		}
	}
	return res
}

func ancestorAbsent(t *objtree.Tree, i objtree.Index, absent map[objtree.Index]bool) bool {
	for p := t.Parent(i); p != objtree.NoIndex; p = t.Parent(p) {
		if absent[p] {
			return true
		}
	}
	return false
}

func evalBool(schema *yang.Schema, tree *objtree.Tree, node objtree.Index, expr string) (bool, error) {
	ast, err := xpath.Parse(expr)
	if err != nil {
		return false, err
	}
	resolver := func(prefix string) (string, bool) {
		sn := tree.Schema(node)
		if sn == nil || sn.Module() == nil {
			return "", false
		}
		mod, ok := schema.FindModuleByPrefix(sn.Module(), prefix)
		if !ok {
			return "", false
		}
		return mod.Namespace, true
	}
	ctx := &xpath.Context{
		Tree: tree, Node: node, Current: node, Pos: 1, Size: 1,
		Resolver: resolver, Identities: schema,
	}
	val, err := xpath.Eval(ast, ctx)
	if err != nil {
		return false, err
	}
	return val.ToBool(), nil
}
