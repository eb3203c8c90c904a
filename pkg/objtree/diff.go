package objtree

import "strings"

// Diff implements spec.md §4.A: diff(a, b) → marks on a merged tree. The
// merged tree mirrors b's (the "new" tree's) structure, with b-only
// subtrees marked MarkCreated, changed leaf bodies marked MarkChanged,
// and a-only (deleted) subtrees grafted back in under their former
// parent and marked MarkDeleted, so a single pre-order Walk over the
// merged tree yields the full change set pkg/validate's commit pipeline
// and pkg/notify's <notification> payloads both need.
func Diff(a, b *Tree) (*Tree, *MarkSet) {
	merged := CloneTree(b)
	marks := NewMarkSet()
	diffNode(a, a.Root(), b, b.Root(), merged, merged.Root(), marks)
	return merged, marks
}

func matchKey(t *Tree, i Index) string {
	name, ns := t.Name(i), t.Namespace(i)
	switch t.Kind(i) {
	case KindListEntry:
		keys, err := t.KeyTuple(i)
		if err != nil {
			return name + "|" + ns
		}
		return name + "|" + ns + "|" + strings.Join(keys, "\x00")
	case KindLeafListEntry:
		return name + "|" + ns + "|" + t.Body(i)
	default:
		return name + "|" + ns
	}
}

// diffNode recurses over oldNode's and newNode's children, mutating
// mergedNode's children (already a structural clone of newNode's) to
// also carry deleted subtrees, and populating marks against merged
// indices.
func diffNode(oldT *Tree, oldNode Index, newT *Tree, newNode Index, mergedT *Tree, mergedNode Index, marks *MarkSet) {
	if oldT.Kind(oldNode) == KindLeaf || oldT.Kind(oldNode) == KindLeafListEntry {
		if oldT.Body(oldNode) != newT.Body(newNode) {
			marks.Set(mergedNode, MarkChanged)
		}
		return
	}

	oldChildren := oldT.Children(oldNode)
	newChildren := newT.Children(newNode)
	mergedChildren := mergedT.Children(mergedNode)

	oldByKey := make(map[string]Index, len(oldChildren))
	for _, c := range oldChildren {
		oldByKey[matchKey(oldT, c)] = c
	}
	matchedOld := make(map[Index]bool, len(oldChildren))

	for idx, nc := range newChildren {
		key := matchKey(newT, nc)
		mc := mergedChildren[idx]
		oc, found := oldByKey[key]
		if !found {
			markSubtreeCreated(mergedT, mc, marks)
			continue
		}
		matchedOld[oc] = true
		diffNode(oldT, oc, newT, nc, mergedT, mc, marks)
	}

	for _, oc := range oldChildren {
		if matchedOld[oc] {
			continue
		}
		deletedClone := oldT.CopyInto(mergedT, oc)
		if err := mergedT.AddChild(mergedNode, deletedClone, nil); err != nil {
			continue
		}
		markSubtreeDeleted(mergedT, deletedClone, marks)
	}
}

func markSubtreeCreated(t *Tree, i Index, marks *MarkSet) {
	t.Walk(i, func(t *Tree, i Index, depth int) (bool, error) {
		marks.Set(i, MarkCreated)
		return true, nil
	})
}

func markSubtreeDeleted(t *Tree, i Index, marks *MarkSet) {
	t.Walk(i, func(t *Tree, i Index, depth int) (bool, error) {
		marks.Set(i, MarkDeleted)
		return true, nil
	})
}
