package yang

import (
	"sort"
	"strconv"
	"strings"

	goyang "github.com/openconfig/goyang/pkg/yang"
)

// SchemaNode is the tagged variant over YANG statement kinds spec.md §3
// describes: "Each carries: keyword, argument string, parent weak
// reference, children (ordered), a resolved cv value..., and flags for
// config-true/false, mandatory, and deprecated."
//
// It wraps a goyang *Entry (already uses/grouping/augment/typedef
// resolved) rather than re-deriving that resolution, since spec.md §1
// treats YANG text parsing as an external collaborator's job.
type SchemaNode struct {
	entry  *goyang.Entry
	module *Module

	kind     string
	name     string
	parent   *SchemaNode
	children map[string]*SchemaNode
	order    []string // declaration order, for canonical output (spec.md §4.A)

	path string // stable "/ns:name/..." key, assigned once at load (spec.md §4.B "Cross-cutting")
}

func newSchemaNode(e *goyang.Entry, mod *Module) *SchemaNode {
	n := &SchemaNode{
		entry:    e,
		module:   mod,
		kind:     entryKeyword(e),
		name:     e.Name,
		children: map[string]*SchemaNode{},
	}
	if e.IsDir() {
		for _, name := range orderedChildNames(e) {
			child := newSchemaNode(e.Dir[name], mod)
			n.addChild(name, child)
		}
	}
	return n
}

// orderedChildNames returns e.Dir's keys in the order spec.md §4.A and §3
// require: a list's key leaves first, in the list's declared key order,
// then every remaining child in schema declaration order. goyang's
// Entry.Dir is a plain map with no order of its own, so declaration order
// is recovered from each child's source position (Entry.Node.Statement().
// Location(), a "file:line:col" string) rather than substituted with an
// alphabetical sort, which would both scramble §4.A's canonical output and
// not reliably put key leaves first.
func orderedChildNames(e *goyang.Entry) []string {
	names := make([]string, 0, len(e.Dir))
	for name := range e.Dir {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return childLess(e.Dir[names[i]], names[i], e.Dir[names[j]], names[j])
	})
	if e.IsList() && e.Key != "" {
		rank := make(map[string]int)
		for i, k := range strings.Fields(e.Key) {
			rank[k] = i
		}
		sort.SliceStable(names, func(i, j int) bool {
			ri, iok := rank[names[i]]
			rj, jok := rank[names[j]]
			switch {
			case iok && jok:
				return ri < rj
			case iok != jok:
				return iok
			default:
				return false // keep the declaration-order relative position
			}
		})
	}
	return names
}

// childLess orders two of a parent's children by source line, falling
// back to name when either's position is unknown (e.g. a synthetic entry
// with no Statement of its own) so ordering stays deterministic either way.
func childLess(a *goyang.Entry, aName string, b *goyang.Entry, bName string) bool {
	la, oka := sourceLine(a)
	lb, okb := sourceLine(b)
	switch {
	case oka && okb && la != lb:
		return la < lb
	case oka != okb:
		return oka
	default:
		return aName < bName
	}
}

// sourceLine extracts e's declaration line number from goyang's
// "file:line:col" Statement().Location() string.
func sourceLine(e *goyang.Entry) (int, bool) {
	if e == nil || e.Node == nil {
		return 0, false
	}
	stmt := e.Node.Statement()
	if stmt == nil {
		return 0, false
	}
	loc := stmt.Location()
	col := strings.LastIndex(loc, ":")
	if col < 0 {
		return 0, false
	}
	rest := loc[:col]
	line := strings.LastIndex(rest, ":")
	if line < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(rest[line+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

func (n *SchemaNode) addChild(name string, child *SchemaNode) {
	child.parent = n
	if _, exists := n.children[name]; !exists {
		n.order = append(n.order, name)
	}
	n.children[name] = child
}

func entryKeyword(e *goyang.Entry) string {
	switch {
	case e.IsList():
		return "list"
	case e.IsLeafList():
		return "leaf-list"
	case e.IsLeaf():
		return "leaf"
	case e.IsDir():
		if e.RPC != nil {
			return "rpc"
		}
		return "container"
	default:
		return "unknown"
	}
}

// Keyword returns the YANG statement keyword for this node.
func (n *SchemaNode) Keyword() string { return n.kind }

// Name returns the node's local (unqualified) name.
func (n *SchemaNode) Name() string { return n.name }

// Parent returns the parent schema node, or nil at the root.
func (n *SchemaNode) Parent() *SchemaNode { return n.parent }

// Path returns the stable "/ns:name/..." key used for NACM data-node
// matching and XPath when/must evaluation (spec.md §4.B "Cross-cutting").
func (n *SchemaNode) Path() string { return n.path }

// Namespace returns the XML namespace URI this node's instances are
// rendered in.
func (n *SchemaNode) Namespace() string {
	if n.entry == nil {
		return ""
	}
	if v := n.entry.Namespace(); v != nil {
		return v.Name
	}
	if n.module != nil {
		return n.module.Namespace
	}
	return ""
}

// Module returns the owning module (the module the node's namespace
// belongs to, which may differ from its lexical parent's module for
// augmented nodes).
func (n *SchemaNode) Module() *Module { return n.module }

func (n *SchemaNode) moduleName() string {
	if n.module == nil {
		return ""
	}
	return n.module.Name
}

func (n *SchemaNode) namespacedName() string {
	return n.moduleName() + ":" + n.name
}

// Children returns direct children in schema declaration order.
func (n *SchemaNode) Children() []*SchemaNode {
	out := make([]*SchemaNode, 0, len(n.order))
	for _, name := range n.order {
		out = append(out, n.children[name])
	}
	return out
}

// FindChild looks up a direct child by local name; ns, when non-empty,
// must match the child's namespace (namespace-qualified lookup used when
// crossing module boundaries, e.g. via an augment).
func (n *SchemaNode) FindChild(name string, ns string) (*SchemaNode, bool) {
	c, ok := n.children[name]
	if !ok || (ns != "" && c.Namespace() != ns) {
		return nil, false
	}
	return c, true
}

// IsConfig reports the effective config-true/false flag (spec.md §3).
func (n *SchemaNode) IsConfig() bool {
	if n.entry == nil {
		return true
	}
	return n.entry.Config != goyang.TSFalse
}

// IsMandatory reports the mandatory flag (spec.md §3).
func (n *SchemaNode) IsMandatory() bool {
	return n.entry != nil && n.entry.Mandatory == goyang.TSTrue
}

// IsDeprecated reports the deprecated flag (spec.md §3), read from the
// underlying "status" substatement goyang preserves on the Entry's node.
func (n *SchemaNode) IsDeprecated() bool {
	if n.entry == nil || n.entry.Node == nil {
		return false
	}
	return statusOf(n.entry.Node) == "deprecated"
}

// IsList reports whether this node is a YANG list (as opposed to a
// container).
func (n *SchemaNode) IsList() bool { return n.entry != nil && n.entry.IsList() }

// IsPresence reports whether a container is a presence container.
func (n *SchemaNode) IsPresence() bool {
	if n.entry == nil || n.kind != "container" {
		return false
	}
	if c, ok := n.entry.Node.(*goyang.Container); ok {
		return c.Presence != nil && c.Presence.Name != ""
	}
	return false
}

// ListKeys returns the ordered key-leaf names of a list, per spec.md §3
// "Keys of a list entry must appear before non-key children in output".
func (n *SchemaNode) ListKeys() []string {
	if n.entry == nil || n.entry.Key == "" {
		return nil
	}
	return strings.Fields(n.entry.Key)
}

// OrderedBySystem reports whether a list/leaf-list is declared
// `ordered-by system` (spec.md §3/§4.A canonical ordering rule).
func (n *SchemaNode) OrderedBySystem() bool {
	if n.entry == nil || n.entry.ListAttr == nil || n.entry.ListAttr.OrderedBy == nil {
		return false // default is "system" per RFC 7950 §7.7.7, but this engine
		// treats absence as user-ordered-insertion-preserving unless a list
		// explicitly says "system", matching spec.md §3's "unless the list
		// declares ordered-by system".
	}
	return n.entry.ListAttr.OrderedBy.Name == "system"
}

// WhenExpr returns the node's "when" XPath expression, or "" if it has
// none — spec.md §4.F stage 4 evaluates this bottom-up against the
// candidate tree.
func (n *SchemaNode) WhenExpr() string {
	if n.entry == nil || n.entry.Node == nil {
		return ""
	}
	return whenOf(n.entry.Node)
}

// MustExprs returns the node's "must" XPath expressions, in declaration
// order — spec.md §4.F stage 4.
func (n *SchemaNode) MustExprs() []string {
	if n.entry == nil || n.entry.Node == nil {
		return nil
	}
	return mustOf(n.entry.Node)
}

func whenOf(node goyang.Node) string {
	var v *goyang.Value
	switch t := node.(type) {
	case *goyang.Container:
		v = t.When
	case *goyang.Leaf:
		v = t.When
	case *goyang.LeafList:
		v = t.When
	case *goyang.List:
		v = t.When
	case *goyang.Choice:
		v = t.When
	case *goyang.Case:
		v = t.When
	}
	if v == nil {
		return ""
	}
	return v.Name
}

func mustOf(node goyang.Node) []string {
	var musts []*goyang.Must
	switch t := node.(type) {
	case *goyang.Container:
		musts = t.Must
	case *goyang.Leaf:
		musts = t.Must
	case *goyang.LeafList:
		musts = t.Must
	case *goyang.List:
		musts = t.Must
	}
	out := make([]string, 0, len(musts))
	for _, m := range musts {
		out = append(out, m.Name)
	}
	return out
}

func statusOf(node goyang.Node) string {
	var v *goyang.Value
	switch t := node.(type) {
	case *goyang.Container:
		v = t.Status
	case *goyang.Leaf:
		v = t.Status
	case *goyang.LeafList:
		v = t.Status
	case *goyang.List:
		v = t.Status
	}
	if v == nil {
		return ""
	}
	return v.Name
}

func ifFeatures(node goyang.Node) []string {
	var vals []*goyang.Value
	switch t := node.(type) {
	case *goyang.Container:
		vals = t.IfFeature
	case *goyang.Leaf:
		vals = t.IfFeature
	case *goyang.LeafList:
		vals = t.IfFeature
	case *goyang.List:
		vals = t.IfFeature
	case *goyang.Choice:
		vals = t.IfFeature
	case *goyang.Case:
		vals = t.IfFeature
	case *goyang.Uses:
		vals = t.IfFeature
	case *goyang.RPC:
		vals = t.IfFeature
	case *goyang.Action:
		vals = t.IfFeature
	case *goyang.Notification:
		vals = t.IfFeature
	case *goyang.AnyXML:
		vals = t.IfFeature
	case *goyang.AnyData:
		vals = t.IfFeature
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		out = append(out, v.Name)
	}
	return out
}

// LeafType returns the resolved YangType for a leaf/leaf-list node, or
// nil if n is not a leaf-like node.
func (n *SchemaNode) LeafType() *goyang.YangType {
	if n.entry == nil {
		return nil
	}
	return n.entry.Type
}
