package validate

import (
	"github.com/ncxd/confd/pkg/netconf"
	"github.com/ncxd/confd/pkg/objtree"
)

// runType implements spec.md §4.F stage 2 by delegating facet checking to
// pkg/yang.Type.ValidateBody (range/length/pattern/enum, union
// first-match) for every leaf and leaf-list entry in the tree.
func (p *Pipeline) runType(tree *objtree.Tree) *Result {
	res := &Result{Stage: StageType}
	_ = tree.Walk(tree.Root(), func(t *objtree.Tree, i objtree.Index, depth int) (bool, error) {
		if t.Kind(i) != objtree.KindLeaf && t.Kind(i) != objtree.KindLeafListEntry {
			return true, nil
		}
		schema := t.Schema(i)
		if schema == nil {
			return true, nil
		}
		typ, err := p.Schema.ResolveType(schema)
		if err != nil {
			return true, nil // not a leaf-typed schema node; stage 1 already caught a missing binding
		}
		if err := typ.ValidateBody(t.Body(i)); err != nil {
			res.Errors = append(res.Errors, netconf.Wrap(netconf.ErrorTypeApplication, netconf.ErrorTagInvalidValue, err,
				"%q fails type validation", t.Name(i)).WithPath(t.Path(i)))
		}
		return true, nil
	})
	return res
}
