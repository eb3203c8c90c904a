// Package objtree implements the object tree of spec.md §4.A: an
// ordered, typed, namespace-aware tree node representing both data and
// schema instances.
//
// Per spec.md §9 ("Cyclic structures (parent links)"), nodes live in an
// arena (a growable slice) addressed by integer Index; a node's parent
// and children are Index values rather than pointers, so the tree can be
// copied, diffed and walked without ever reasoning about pointer cycles.
package objtree

import (
	"fmt"

	"github.com/ncxd/confd/pkg/netconf"
	"github.com/ncxd/confd/pkg/yang"
)

// Kind is the tagged variant over {container, list-entry, leaf,
// leaf-list-entry, anydata} spec.md §3 describes.
type Kind uint8

const (
	KindContainer Kind = iota
	KindListEntry
	KindLeaf
	KindLeafListEntry
	KindAnydata
)

func (k Kind) String() string {
	switch k {
	case KindContainer:
		return "container"
	case KindListEntry:
		return "list-entry"
	case KindLeaf:
		return "leaf"
	case KindLeafListEntry:
		return "leaf-list-entry"
	case KindAnydata:
		return "anydata"
	default:
		return "unknown"
	}
}

// Index addresses a node within a Tree's arena. NoIndex is the zero value
// of a never-set reference (e.g. the root's parent).
type Index int32

const NoIndex Index = -1

// node is the arena slot. Marker bits (spec.md §3 invariant (c)) are
// deliberately not a field here — see MarkSet in marks.go — so that
// "outside the pipeline they must be zero" holds by construction rather
// than by discipline (spec.md §9 "State-diff marker bits").
type node struct {
	alive bool

	kind      Kind
	name      string
	namespace string
	schema    *yang.SchemaNode

	parent   Index
	children []Index

	body  string
	attrs map[string]string
}

// Tree is the arena of nodes making up one datastore's configuration
// tree, rooted at Root().
type Tree struct {
	nodes []node
	root  Index
	free  []Index
}

// NewTree creates an empty tree whose root is a container node.
func NewTree(name, ns string, schema *yang.SchemaNode) *Tree {
	t := &Tree{}
	t.root = t.alloc(node{
		alive:     true,
		kind:      KindContainer,
		name:      name,
		namespace: ns,
		schema:    schema,
		parent:    NoIndex,
	})
	return t
}

func (t *Tree) alloc(n node) Index {
	if len(t.free) > 0 {
		idx := t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
		t.nodes[idx] = n
		return idx
	}
	t.nodes = append(t.nodes, n)
	return Index(len(t.nodes) - 1)
}

// Root returns the tree's root index.
func (t *Tree) Root() Index { return t.root }

func (t *Tree) get(i Index) (*node, error) {
	if i < 0 || int(i) >= len(t.nodes) || !t.nodes[i].alive {
		return nil, fmt.Errorf("objtree: invalid index %d", i)
	}
	return &t.nodes[i], nil
}

// Kind returns i's node kind.
func (t *Tree) Kind(i Index) Kind {
	n, err := t.get(i)
	if err != nil {
		return KindContainer
	}
	return n.kind
}

// Name returns i's local name.
func (t *Tree) Name(i Index) string {
	n, err := t.get(i)
	if err != nil {
		return ""
	}
	return n.name
}

// Namespace returns i's namespace URI, inheriting the parent's per XML
// rules (spec.md §3 invariant (a)) when the node did not set its own.
func (t *Tree) Namespace(i Index) string {
	n, err := t.get(i)
	if err != nil {
		return ""
	}
	if n.namespace != "" {
		return n.namespace
	}
	if n.parent != NoIndex {
		return t.Namespace(n.parent)
	}
	return ""
}

// Schema returns i's schema back-reference, or nil.
func (t *Tree) Schema(i Index) *yang.SchemaNode {
	n, err := t.get(i)
	if err != nil {
		return nil
	}
	return n.schema
}

// Parent returns i's parent index, or NoIndex at the root.
func (t *Tree) Parent(i Index) Index {
	n, err := t.get(i)
	if err != nil {
		return NoIndex
	}
	return n.parent
}

// Children returns i's children in current insertion order.
func (t *Tree) Children(i Index) []Index {
	n, err := t.get(i)
	if err != nil {
		return nil
	}
	out := make([]Index, len(n.children))
	copy(out, n.children)
	return out
}

// Create allocates a new, detached node (spec.md §4.A: create(name, ns,
// schema?)). Attach it to a parent with AddChild.
func (t *Tree) Create(kind Kind, name, ns string, schema *yang.SchemaNode) Index {
	return t.alloc(node{
		alive:     true,
		kind:      kind,
		name:      name,
		namespace: ns,
		schema:    schema,
		parent:    NoIndex,
		attrs:     nil,
	})
}

// AddChild attaches child to parent (spec.md §4.A: add_child(parent,
// child, position?)). position, if non-nil, is the insertion index within
// parent's children; nil appends. Returns a structured RFC 6241 Appendix
// A error when the parent's schema forbids the child (spec.md §4.A
// "Failure").
func (t *Tree) AddChild(parent, child Index, position *int) error {
	pn, err := t.get(parent)
	if err != nil {
		return err
	}
	cn, err := t.get(child)
	if err != nil {
		return err
	}
	if err := t.checkCardinality(parent, child); err != nil {
		return err
	}
	cn.parent = parent

	if position == nil || *position >= len(pn.children) {
		pn.children = append(pn.children, child)
		return nil
	}
	pos := *position
	if pos < 0 {
		pos = 0
	}
	pn.children = append(pn.children, NoIndex)
	copy(pn.children[pos+1:], pn.children[pos:])
	pn.children[pos] = child
	return nil
}

// checkCardinality implements spec.md §4.A "Failure": creating a child
// whose schema is present and forbids it returns a structured error.
func (t *Tree) checkCardinality(parent, child Index) error {
	pn, _ := t.get(parent)
	cn, _ := t.get(child)
	if pn.schema == nil {
		return nil // schemaless tree (codec mode NONE); binding is deferred
	}
	childSchema, ok := pn.schema.FindChild(cn.name, "")
	if !ok {
		return netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagUnknownElement,
			"unknown element %q under %q", cn.name, pn.name)
	}
	if k := childSchema.Keyword(); k != "list" && k != "leaf-list" {
		for _, existing := range pn.children {
			en, _ := t.get(existing)
			if en != nil && en.name == cn.name && existing != child {
				return netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagTooManyElements,
					"too many elements %q under %q", cn.name, pn.name)
			}
		}
	}
	return nil
}

// FindChild implements spec.md §4.A: find_child(parent, name, ns?).
func (t *Tree) FindChild(parent Index, name, ns string) (Index, bool) {
	pn, err := t.get(parent)
	if err != nil {
		return NoIndex, false
	}
	for _, c := range pn.children {
		cn, err := t.get(c)
		if err != nil {
			continue
		}
		if cn.name == name && (ns == "" || t.Namespace(c) == ns) {
			return c, true
		}
	}
	return NoIndex, false
}

// Body returns i's textual body (spec.md §4.A: body_get).
func (t *Tree) Body(i Index) string {
	n, err := t.get(i)
	if err != nil {
		return ""
	}
	return n.body
}

// SetBody sets i's textual body (spec.md §4.A: body_set).
func (t *Tree) SetBody(i Index, body string) error {
	n, err := t.get(i)
	if err != nil {
		return err
	}
	n.body = body
	return nil
}

// Attr returns attribute name's value on i, or "" if unset (spec.md
// §4.A: attr_get).
func (t *Tree) Attr(i Index, name string) string {
	n, err := t.get(i)
	if err != nil {
		return ""
	}
	return n.attrs[name]
}

// SetAttr sets attribute name to value on i (spec.md §4.A: attr_set).
func (t *Tree) SetAttr(i Index, name, value string) error {
	n, err := t.get(i)
	if err != nil {
		return err
	}
	if n.attrs == nil {
		n.attrs = map[string]string{}
	}
	n.attrs[name] = value
	return nil
}

// Attrs returns a copy of i's attribute map.
func (t *Tree) Attrs(i Index) map[string]string {
	n, err := t.get(i)
	if err != nil {
		return nil
	}
	out := make(map[string]string, len(n.attrs))
	for k, v := range n.attrs {
		out[k] = v
	}
	return out
}

// Remove detaches i from its parent and frees its subtree's arena slots.
// Needed by edit-config's delete/remove default operations (spec.md
// §4.E), which spec.md §4.A does not name explicitly but requires.
func (t *Tree) Remove(i Index) error {
	n, err := t.get(i)
	if err != nil {
		return err
	}
	if n.parent != NoIndex {
		pn, _ := t.get(n.parent)
		for idx, c := range pn.children {
			if c == i {
				pn.children = append(pn.children[:idx], pn.children[idx+1:]...)
				break
			}
		}
	}
	t.freeSubtree(i)
	return nil
}

func (t *Tree) freeSubtree(i Index) {
	n, err := t.get(i)
	if err != nil {
		return
	}
	for _, c := range n.children {
		t.freeSubtree(c)
	}
	n.alive = false
	n.children = nil
	n.attrs = nil
	t.free = append(t.free, i)
}

// Path renders i's absolute instance path as "/name/name/...", used by
// error reporting and NACM/XPath matching when a full XPath render isn't
// needed.
func (t *Tree) Path(i Index) string {
	var segs []string
	for cur := i; cur != NoIndex; {
		n, err := t.get(cur)
		if err != nil {
			break
		}
		segs = append([]string{n.name}, segs...)
		cur = n.parent
	}
	out := ""
	for _, s := range segs {
		out += "/" + s
	}
	return out
}
