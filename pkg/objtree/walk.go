package objtree

// Visitor is called once per node during Walk. Returning false from descend
// skips the node's children (but not its siblings); returning a non-nil
// err aborts the walk entirely.
type Visitor func(t *Tree, i Index, depth int) (descend bool, err error)

// Walk performs a pre-order traversal of the subtree rooted at i.
func (t *Tree) Walk(i Index, visit Visitor) error {
	return t.walk(i, 0, visit)
}

func (t *Tree) walk(i Index, depth int, visit Visitor) error {
	descend, err := visit(t, i, depth)
	if err != nil {
		return err
	}
	if !descend {
		return nil
	}
	for _, c := range t.Children(i) {
		if err := t.walk(c, depth+1, visit); err != nil {
			return err
		}
	}
	return nil
}

// CanonicalChildren returns i's children ordered per spec.md §4.A: list
// and leaf-list entries preserve insertion order (significant per RFC
// 7950 unless ordered-by system, in which case sorted by key tuple);
// other children follow schema declaration order, with unrecognized
// (schemaless) children appended in insertion order at the end.
func (t *Tree) CanonicalChildren(i Index) []Index {
	children := t.Children(i)
	schema := t.Schema(i)
	if schema == nil {
		return children
	}

	order := map[string]int{}
	for idx, c := range schema.Children() {
		order[c.Name()] = idx
	}

	type entry struct {
		idx  Index
		rank int
		pos  int
	}
	entries := make([]entry, len(children))
	for pos, c := range children {
		rank, ok := order[t.Name(c)]
		if !ok {
			rank = len(order) + pos // schemaless: stable-sort to the tail
		}
		entries[pos] = entry{idx: c, rank: rank, pos: pos}
	}
	// stable sort by rank, preserving insertion order within a rank
	// (i.e. across repeated list/leaf-list entries of the same name).
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j-1].rank > entries[j].rank; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
	out := make([]Index, len(entries))
	for idx, e := range entries {
		out[idx] = e.idx
	}
	t.sortOrderedBySystemGroups(out)
	return out
}

// sortOrderedBySystemGroups re-sorts, in place, each contiguous run of
// same-name list/leaf-list entries declared `ordered-by system`: such
// entries carry no significant order (RFC 7950 §7.7.7), so this engine
// sorts them by key tuple (lists) or body (leaf-lists) for a stable,
// comparison-friendly canonical form.
func (t *Tree) sortOrderedBySystemGroups(children []Index) {
	i := 0
	for i < len(children) {
		j := i + 1
		for j < len(children) && t.Name(children[j]) == t.Name(children[i]) {
			j++
		}
		schema := t.Schema(children[i])
		if schema != nil && schema.OrderedBySystem() && j-i > 1 {
			group := children[i:j]
			for a := 1; a < len(group); a++ {
				for b := a; b > 0 && t.sortKey(group[b-1]) > t.sortKey(group[b]); b-- {
					group[b-1], group[b] = group[b], group[b-1]
				}
			}
		}
		i = j
	}
}

func (t *Tree) sortKey(i Index) string {
	if t.Kind(i) == KindListEntry {
		keys, err := t.KeyTuple(i)
		if err == nil {
			out := ""
			for _, k := range keys {
				out += k + "\x00"
			}
			return out
		}
	}
	return t.Body(i)
}
