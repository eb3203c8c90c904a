package engine

import (
	"github.com/ncxd/confd/pkg/objtree"
	"github.com/ncxd/confd/pkg/xpath"
)

// filterTree implements NETCONF subtree/XPath filtering (RFC 6241 §6):
// given a set of matched node indices, builds a new tree holding each
// matched node's full subtree, reachable from the root through bare
// (childless) copies of its ancestors, so the result stays a
// well-formed instance document instead of a bag of disconnected
// fragments. A list-entry ancestor keeps its key leaves, since those are
// needed to identify which entry the match sits under.
func filterTree(src *objtree.Tree, matched []objtree.Index) *objtree.Tree {
	dst := objtree.NewTree(src.Name(src.Root()), src.Namespace(src.Root()), src.Schema(src.Root()))
	ancestors := map[objtree.Index]objtree.Index{src.Root(): dst.Root()}
	grafted := map[objtree.Index]bool{}

	var ensureAncestor func(objtree.Index) objtree.Index
	ensureAncestor = func(i objtree.Index) objtree.Index {
		if d, ok := ancestors[i]; ok {
			return d
		}
		parentDst := ensureAncestor(src.Parent(i))
		bare := dst.Create(src.Kind(i), src.Name(i), src.Namespace(i), src.Schema(i))
		_ = dst.AddChild(parentDst, bare, nil)
		if src.Kind(i) == objtree.KindListEntry && src.Schema(i) != nil {
			for _, key := range src.Schema(i).ListKeys() {
				if kc, ok := src.FindChild(i, key, ""); ok {
					clone := src.CopyInto(dst, kc)
					_ = dst.AddChild(bare, clone, nil)
				}
			}
		}
		ancestors[i] = bare
		return bare
	}

	for _, m := range matched {
		if grafted[m] || m == src.Root() {
			continue
		}
		parentDst := ensureAncestor(src.Parent(m))
		clone := src.CopyInto(dst, m)
		_ = dst.AddChild(parentDst, clone, nil)
		grafted[m] = true
	}
	return dst
}

// evalFilterExpr evaluates an XPath filter expression against tree,
// returning the matched node-set, or nil if expr is empty (no filtering).
func evalFilterExpr(tree *objtree.Tree, expr string) ([]objtree.Index, error) {
	if expr == "" {
		return nil, nil
	}
	parsed, err := xpath.Parse(expr)
	if err != nil {
		return nil, err
	}
	ctx := &xpath.Context{Tree: tree, Node: tree.Root(), Current: tree.Root(), Pos: 1, Size: 1}
	val, err := xpath.Eval(parsed, ctx)
	if err != nil {
		return nil, err
	}
	if val.Kind != xpath.KindNodeSet {
		return nil, nil
	}
	return val.Nodes, nil
}
