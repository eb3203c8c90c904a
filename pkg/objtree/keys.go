package objtree

import (
	"fmt"

	"github.com/ncxd/confd/pkg/netconf"
)

// KeyTuple returns a list entry's key values in schema key order, used
// for instance identity comparisons (spec.md §4.A "two list entries are
// the same instance iff all key leaf values are equal") by diff, merge
// and XPath predicate matching.
func (t *Tree) KeyTuple(i Index) ([]string, error) {
	n, err := t.get(i)
	if err != nil {
		return nil, err
	}
	if n.schema == nil {
		return nil, fmt.Errorf("objtree: %q has no schema, cannot compute key tuple", n.name)
	}
	keys := n.schema.ListKeys()
	if len(keys) == 0 {
		return nil, netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagBadElement,
			"list %q has no key leaves", n.name)
	}
	out := make([]string, len(keys))
	for idx, key := range keys {
		child, ok := t.FindChild(i, key, "")
		if !ok {
			return nil, netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagMissingElement,
				"list entry %q missing key leaf %q", n.name, key)
		}
		out[idx] = t.Body(child)
	}
	return out, nil
}

// SameInstance reports whether a and b (which must share a parent schema
// context) represent the same instance: same name+namespace, and for list
// entries the same key tuple.
func (t *Tree) SameInstance(a, b Index) bool {
	if t.Name(a) != t.Name(b) || t.Namespace(a) != t.Namespace(b) {
		return false
	}
	if t.Kind(a) != KindListEntry {
		return true
	}
	ka, erra := t.KeyTuple(a)
	kb, errb := t.KeyTuple(b)
	if erra != nil || errb != nil || len(ka) != len(kb) {
		return false
	}
	for i := range ka {
		if ka[i] != kb[i] {
			return false
		}
	}
	return true
}
