package xpath

import "github.com/ncxd/confd/pkg/objtree"

// evalPath evaluates a full location path starting from the document
// root (Absolute) or the context node (relative).
func evalPath(p PathExpr, ctx *Context) ([]objtree.Index, error) {
	start := ctx.Node
	if p.Absolute {
		start = ctx.Tree.Root()
	}
	return evalSteps(p.Steps, ctx, []objtree.Index{start})
}

func evalSteps(steps []Step, ctx *Context, from []objtree.Index) ([]objtree.Index, error) {
	current := from
	for _, step := range steps {
		next, err := evalStep(step, ctx, current)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

func evalStep(step Step, ctx *Context, from []objtree.Index) ([]objtree.Index, error) {
	var candidates []objtree.Index
	for _, n := range from {
		candidates = append(candidates, axisNodes(step.Axis, ctx.Tree, n)...)
	}
	candidates = dedupe(candidates)

	var matched []objtree.Index
	for _, n := range candidates {
		if nodeTestMatches(step.NodeTest, ctx, n) {
			matched = append(matched, n)
		}
	}
	return applyPredicates(step.Predicates, ctx, matched)
}

// axisNodes enumerates one axis's node-set from n, per XPath 1.0 §2.2.
// objtree has no separate attribute nodes, so attribute:: yields n
// itself and the step's node test is then applied to n's own name;
// attribute values (objtree's Attrs side-table) are not selected.
func axisNodes(axis string, t *objtree.Tree, n objtree.Index) []objtree.Index {
	switch axis {
	case "self":
		return []objtree.Index{n}
	case "child":
		return t.Children(n)
	case "parent":
		if p := t.Parent(n); p != objtree.NoIndex {
			return []objtree.Index{p}
		}
		return nil
	case "ancestor":
		var out []objtree.Index
		for p := t.Parent(n); p != objtree.NoIndex; p = t.Parent(p) {
			out = append(out, p)
		}
		return out
	case "ancestor-or-self":
		out := []objtree.Index{n}
		for p := t.Parent(n); p != objtree.NoIndex; p = t.Parent(p) {
			out = append(out, p)
		}
		return out
	case "descendant":
		var out []objtree.Index
		t.Walk(n, func(t *objtree.Tree, i objtree.Index, depth int) (bool, error) {
			if i != n {
				out = append(out, i)
			}
			return true, nil
		})
		return out
	case "descendant-or-self":
		var out []objtree.Index
		t.Walk(n, func(t *objtree.Tree, i objtree.Index, depth int) (bool, error) {
			out = append(out, i)
			return true, nil
		})
		return out
	case "attribute":
		return []objtree.Index{n}
	case "following-sibling":
		return siblings(t, n, true)
	case "preceding-sibling":
		return siblings(t, n, false)
	default:
		return t.Children(n)
	}
}

func siblings(t *objtree.Tree, n objtree.Index, after bool) []objtree.Index {
	p := t.Parent(n)
	if p == objtree.NoIndex {
		return nil
	}
	kids := t.Children(p)
	idx := -1
	for i, k := range kids {
		if k == n {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	if after {
		return kids[idx+1:]
	}
	out := make([]objtree.Index, len(kids[:idx]))
	for i, k := range kids[:idx] {
		out[len(out)-1-i] = k
	}
	return out
}

func nodeTestMatches(nt NodeTest, ctx *Context, n objtree.Index) bool {
	if nt.NodeType != "" {
		switch nt.NodeType {
		case "node":
			return true
		case "text":
			return ctx.Tree.Kind(n) == objtree.KindLeaf || ctx.Tree.Kind(n) == objtree.KindLeafListEntry
		default:
			return false
		}
	}
	if nt.Wildcard {
		if nt.Prefix == "" {
			return true
		}
		ns, ok := resolvePrefix(ctx, nt.Prefix)
		return ok && ctx.Tree.Namespace(n) == ns
	}
	if ctx.Tree.Name(n) != nt.Local {
		return false
	}
	if nt.Prefix == "" {
		return true
	}
	ns, ok := resolvePrefix(ctx, nt.Prefix)
	return ok && ctx.Tree.Namespace(n) == ns
}

func resolvePrefix(ctx *Context, prefix string) (string, bool) {
	if ctx.Resolver == nil {
		return "", false
	}
	return ctx.Resolver(prefix)
}

func applyPredicates(preds []Expr, ctx *Context, nodes []objtree.Index) ([]objtree.Index, error) {
	for _, pred := range preds {
		var kept []objtree.Index
		for i, n := range nodes {
			pctx := ctx.child(n, i+1, len(nodes))
			v, err := Eval(pred, pctx)
			if err != nil {
				return nil, err
			}
			// XPath 1.0 §2.4: a numeric predicate result tests position
			// equality; any other result coerces to boolean.
			if v.Kind == KindNumber {
				if int(v.Num) == i+1 && float64(int(v.Num)) == v.Num {
					kept = append(kept, n)
				}
				continue
			}
			if v.ToBool() {
				kept = append(kept, n)
			}
		}
		nodes = kept
	}
	return nodes, nil
}
