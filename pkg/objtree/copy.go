package objtree

// Copy deep-clones the subtree rooted at src within the same tree,
// returning the new, detached root index (spec.md §4.A: copy(src) → deep
// clone). Attach it with AddChild to use it.
func (t *Tree) Copy(src Index) Index {
	return t.CopyInto(t, src)
}

// CopyInto deep-clones the subtree rooted at src (which may belong to a
// different Tree, e.g. copying "running" into a freshly opened
// "candidate") into dst's arena, returning the new, detached root index.
func (t *Tree) CopyInto(dst *Tree, src Index) Index {
	n, err := t.get(src)
	if err != nil {
		return NoIndex
	}
	attrs := map[string]string(nil)
	if n.attrs != nil {
		attrs = make(map[string]string, len(n.attrs))
		for k, v := range n.attrs {
			attrs[k] = v
		}
	}
	clone := dst.alloc(node{
		alive:     true,
		kind:      n.kind,
		name:      n.name,
		namespace: n.namespace,
		schema:    n.schema,
		parent:    NoIndex,
		body:      n.body,
		attrs:     attrs,
	})
	for _, c := range n.children {
		childClone := t.CopyInto(dst, c)
		cn, _ := dst.get(childClone)
		cn.parent = clone
		dn, _ := dst.get(clone)
		dn.children = append(dn.children, childClone)
	}
	return clone
}

// CloneTree returns an independent deep copy of the whole tree, used by
// the datastore layer to snapshot "running" into "candidate" (spec.md
// §4.E) without aliasing arena slots between the two.
func CloneTree(src *Tree) *Tree {
	dst := &Tree{}
	dst.root = src.CopyInto(dst, src.root)
	return dst
}
