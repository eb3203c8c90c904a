package validate

import (
	"github.com/ncxd/confd/pkg/netconf"
	"github.com/ncxd/confd/pkg/objtree"
)

// runStructural implements spec.md §4.F stage 1: every node has a schema
// binding, cardinality holds (already enforced on the way in by
// objtree.Tree.AddChild), and key uniqueness holds within each list.
func (p *Pipeline) runStructural(tree *objtree.Tree) *Result {
	res := &Result{Stage: StageStructural}
	err := tree.Walk(tree.Root(), func(t *objtree.Tree, i objtree.Index, depth int) (bool, error) {
		if t.Schema(i) == nil {
			res.Errors = append(res.Errors, netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagUnknownElement,
				"%q has no schema binding", t.Name(i)).WithPath(t.Path(i)))
			return false, nil
		}
		if t.Kind(i) == objtree.KindListEntry {
			if err := checkKeyUniqueness(t, i); err != nil {
				if rerr, ok := netconf.AsRPCError(err); ok {
					res.Errors = append(res.Errors, rerr)
				} else {
					res.Errors = append(res.Errors, netconf.Wrap(netconf.ErrorTypeApplication, netconf.ErrorTagOperationFailed, err, "key uniqueness check failed"))
				}
			}
		}
		return true, nil
	})
	if err != nil {
		res.Errors = append(res.Errors, netconf.Wrap(netconf.ErrorTypeApplication, netconf.ErrorTagOperationFailed, err, "structural walk failed"))
	}
	return res
}

// checkKeyUniqueness verifies entry's key tuple is not shared by any
// sibling list entry of the same schema (spec.md §3 invariant (d)).
func checkKeyUniqueness(t *objtree.Tree, entry objtree.Index) error {
	keys, err := t.KeyTuple(entry)
	if err != nil {
		return err
	}
	parent := t.Parent(entry)
	if parent == objtree.NoIndex {
		return nil
	}
	for _, sib := range t.Children(parent) {
		if sib == entry || t.Kind(sib) != objtree.KindListEntry || t.Name(sib) != t.Name(entry) {
			continue
		}
		sibKeys, err := t.KeyTuple(sib)
		if err != nil {
			continue
		}
		if sameKeys(keys, sibKeys) {
			return netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagDataExists,
				"duplicate list entry key %v for %q", keys, t.Name(entry)).WithPath(t.Path(entry))
		}
	}
	return nil
}

func sameKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
