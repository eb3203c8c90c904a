package engine

import (
	"github.com/ncxd/confd/pkg/codec/xml"
	"github.com/ncxd/confd/pkg/netconf"
	"github.com/ncxd/confd/pkg/objtree"
)

// mergeChildren applies frag's children under fragParent onto dst's tree
// under dstParent, honoring each fragment node's pending nc:operation
// attribute (RFC 6241 §7.2: merge, replace, create, delete, remove) when
// present, or defaultOp — the <edit-config> request's default-operation
// parameter (spec.md §4.E) — when absent. A node found to be in effect
// "merge" passes that same effective operation down as the default for
// its own children, so an explicit operation attribute's scope extends
// to its subtree exactly as RFC 6241 §7.2 describes. frag and dst are
// always distinct trees — the fragment decoded from an <edit-config>
// request, dst the target datastore's tree — so grafting a fragment
// subtree in always goes through CopyInto.
//
// continueOnError implements the <error-option> continue-on-error value:
// false (stop-on-error/rollback-on-error) returns as soon as the first
// error is hit; true collects every error across the whole fragment and
// keeps applying whatever operations succeed. The caller decides, from
// the returned errors and the chosen error-option, whether to persist
// the partial result or discard it.
func mergeChildren(dst *objtree.Tree, dstParent objtree.Index, frag *objtree.Tree, fragParent objtree.Index, defaultOp xml.Operation, continueOnError bool) []error {
	var errs []error
	for _, fc := range frag.Children(fragParent) {
		op := xml.OperationOfWithDefault(frag, fc, defaultOp)
		existing, found := findMatchingChild(dst, dstParent, frag, fc)

		var err error
		switch op {
		case xml.OperationCreate:
			if found {
				err = netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagDataExists,
					"data already exists at %q", frag.Path(fc)).WithPath(frag.Path(fc))
			} else {
				err = attachCopy(dst, dstParent, frag, fc)
			}
		case xml.OperationDelete:
			if !found {
				err = netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagDataMissing,
					"data does not exist at %q", frag.Path(fc)).WithPath(frag.Path(fc))
			} else {
				err = dst.Remove(existing)
			}
		case xml.OperationRemove:
			if found {
				err = dst.Remove(existing)
			}
		case xml.OperationReplace:
			if found {
				err = dst.Remove(existing)
			}
			if err == nil {
				err = attachCopy(dst, dstParent, frag, fc)
			}
		default: // merge
			if !found {
				err = attachCopy(dst, dstParent, frag, fc)
			} else {
				switch frag.Kind(fc) {
				case objtree.KindLeaf, objtree.KindLeafListEntry:
					err = dst.SetBody(existing, frag.Body(fc))
				default:
					if sub := mergeChildren(dst, existing, frag, fc, xml.OperationMerge, continueOnError); len(sub) > 0 {
						errs = append(errs, sub...)
						if !continueOnError {
							return errs
						}
					}
				}
			}
		}
		if err != nil {
			errs = append(errs, err)
			if !continueOnError {
				return errs
			}
		}
	}
	return errs
}

// findMatchingChild finds dstParent's child that represents the same
// instance as frag's fc node: same name and namespace, and for list
// entries the same key tuple (spec.md §4.A "two list entries are the same
// instance iff all key leaf values are equal").
func findMatchingChild(dst *objtree.Tree, dstParent objtree.Index, frag *objtree.Tree, fc objtree.Index) (objtree.Index, bool) {
	name, ns := frag.Name(fc), frag.Namespace(fc)
	isList := frag.Kind(fc) == objtree.KindListEntry
	var fragKeys []string
	if isList {
		fragKeys, _ = frag.KeyTuple(fc)
	}

	for _, c := range dst.Children(dstParent) {
		if dst.Name(c) != name || dst.Namespace(c) != ns {
			continue
		}
		if !isList {
			return c, true
		}
		keys, err := dst.KeyTuple(c)
		if err != nil || len(keys) != len(fragKeys) {
			continue
		}
		match := true
		for i := range keys {
			if keys[i] != fragKeys[i] {
				match = false
				break
			}
		}
		if match {
			return c, true
		}
	}
	return objtree.NoIndex, false
}

func attachCopy(dst *objtree.Tree, dstParent objtree.Index, frag *objtree.Tree, fc objtree.Index) error {
	clone := frag.CopyInto(dst, fc)
	return dst.AddChild(dstParent, clone, nil)
}
