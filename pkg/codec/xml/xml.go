// Package xml implements the NETCONF wire encoding of spec.md §4.D:
// object-tree ↔ XML using beevik/etree, grounded on the teacher's own
// pkg/tree/xml.go (xmlns-conditional namespace attributes, nc:operation
// attribute placement) and pkg/utils/xml.go (the AddXMLOperation helper).
package xml

import (
	"github.com/beevik/etree"

	"github.com/ncxd/confd/pkg/netconf"
	"github.com/ncxd/confd/pkg/objtree"
	"github.com/ncxd/confd/pkg/yang"
)

const ncBase1_0 = "urn:ietf:params:xml:ns:netconf:base:1.0"

// Operation is the RFC 6241 §7.2 edit-config operation attribute.
type Operation string

const (
	OperationMerge   Operation = "merge"
	OperationReplace Operation = "replace"
	OperationCreate  Operation = "create"
	OperationDelete  Operation = "delete"
	OperationRemove  Operation = "remove"
)

// operationAttr is the objtree.Attr key this codec reads/writes the
// pending edit-config operation under; decodeElement sets it from an
// element's operation attribute and pkg/engine's edit-config merge step
// consumes it via OperationOf/OperationOfWithDefault (spec.md §4.E).
const operationAttr = "nc:operation"

// EncodeOptions controls Encode's namespace and operation-attribute
// rendering, mirroring the teacher's ToXmlInternal parameters.
type EncodeOptions struct {
	// HonorNamespace adds an xmlns attribute whenever a node's namespace
	// differs from its parent's.
	HonorNamespace bool
	// OperationWithNamespace declares xmlns:nc and uses the "nc:operation"
	// attribute name instead of a bare "operation" attribute.
	OperationWithNamespace bool
	// OnlyMarked, if non-nil, restricts encoding to nodes present in
	// marks (spec.md §4.H notification payloads carry only the changed
	// subtree, not a snapshot).
	OnlyMarked *objtree.MarkSet
}

// Encode renders the subtree rooted at root as an *etree.Document.
func Encode(t *objtree.Tree, root objtree.Index, opts EncodeOptions) (*etree.Document, error) {
	doc := etree.NewDocument()
	if _, err := encodeNode(t, root, objtree.NoIndex, &doc.Element, opts); err != nil {
		return nil, err
	}
	return doc, nil
}

// EncodeChildrenInto renders root's children directly under the existing
// element into, without adding a wrapper element for root itself — used
// to render a schema's synthetic aggregate root (a container with no name
// of its own) into a caller-supplied wrapper such as <config>.
func EncodeChildrenInto(t *objtree.Tree, root objtree.Index, into *etree.Element, opts EncodeOptions) error {
	for _, c := range t.CanonicalChildren(root) {
		if _, err := encodeNode(t, c, root, into, opts); err != nil {
			return err
		}
	}
	return nil
}

func encodeNode(t *objtree.Tree, i, parent objtree.Index, into *etree.Element, opts EncodeOptions) (bool, error) {
	if opts.OnlyMarked != nil && opts.OnlyMarked.Get(i) == objtree.MarkNone && !hasMarkedDescendant(t, i, opts.OnlyMarked) {
		return false, nil
	}

	switch t.Kind(i) {
	case objtree.KindLeaf, objtree.KindLeafListEntry:
		elem := into.CreateElement(t.Name(i))
		addNamespaceConditional(t, i, parent, elem, opts.HonorNamespace)
		if opts.OnlyMarked != nil && opts.OnlyMarked.Get(i) == objtree.MarkDeleted {
			addOperation(elem, OperationDelete, opts.OperationWithNamespace)
			return true, nil
		}
		elem.SetText(t.Body(i))
		return true, nil
	default:
		elem := into.CreateElement(t.Name(i))
		addNamespaceConditional(t, i, parent, elem, opts.HonorNamespace)

		if opts.OnlyMarked != nil && opts.OnlyMarked.Get(i) == objtree.MarkDeleted {
			addOperation(elem, OperationDelete, opts.OperationWithNamespace)
			return true, nil
		}

		any := false
		for _, c := range t.CanonicalChildren(i) {
			added, err := encodeNode(t, c, i, elem, opts)
			if err != nil {
				return false, err
			}
			any = any || added
		}
		if !any && t.Kind(i) != objtree.KindContainer {
			return false, nil
		}
		return true, nil
	}
}

func hasMarkedDescendant(t *objtree.Tree, i objtree.Index, marks *objtree.MarkSet) bool {
	found := false
	t.Walk(i, func(t *objtree.Tree, n objtree.Index, depth int) (bool, error) {
		if marks.Get(n) != objtree.MarkNone {
			found = true
		}
		return !found, nil
	})
	return found
}

func addNamespaceConditional(t *objtree.Tree, i, parent objtree.Index, elem *etree.Element, honor bool) {
	if !honor {
		return
	}
	if parent == objtree.NoIndex || t.Namespace(i) != t.Namespace(parent) {
		elem.CreateAttr("xmlns", t.Namespace(i))
	}
}

func addOperation(elem *etree.Element, op Operation, withNamespace bool) {
	key := "operation"
	if withNamespace {
		elem.CreateAttr("xmlns:nc", ncBase1_0)
		key = "nc:" + key
	}
	elem.CreateAttr(key, string(op))
}

// Decode parses elem's children into a freshly built Tree bound to
// schema, starting at schema's root SchemaNode. Unknown elements produce
// a structured "unknown-element" RPCError (spec.md §4.D "Failure").
func Decode(elem *etree.Element, schema *yang.Schema) (*objtree.Tree, error) {
	root := schema.Root()
	tree := objtree.NewTree(root.Name(), root.Namespace(), root)
	for _, child := range elem.ChildElements() {
		idx, err := decodeElement(tree, child, root)
		if err != nil {
			return nil, err
		}
		if err := tree.AddChild(tree.Root(), idx, nil); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

func decodeElement(tree *objtree.Tree, elem *etree.Element, parentSchema *yang.SchemaNode) (objtree.Index, error) {
	childSchema, ok := parentSchema.FindChild(elem.Tag, "")
	if !ok {
		return objtree.NoIndex, netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagUnknownElement,
			"unknown element %q under %q", elem.Tag, parentSchema.Name())
	}

	kind := objtree.KindContainer
	switch childSchema.Keyword() {
	case "list":
		kind = objtree.KindListEntry
	case "leaf":
		kind = objtree.KindLeaf
	case "leaf-list":
		kind = objtree.KindLeafListEntry
	}

	idx := tree.Create(kind, childSchema.Name(), childSchema.Namespace(), childSchema)
	if op := elem.SelectAttrValue("operation", elem.SelectAttrValue("nc:operation", "")); op != "" {
		tree.SetAttr(idx, operationAttr, op)
	}

	if kind == objtree.KindLeaf || kind == objtree.KindLeafListEntry {
		tree.SetBody(idx, elem.Text())
		return idx, nil
	}

	for _, child := range elem.ChildElements() {
		c, err := decodeElement(tree, child, childSchema)
		if err != nil {
			return objtree.NoIndex, err
		}
		if err := tree.AddChild(idx, c, nil); err != nil {
			return objtree.NoIndex, err
		}
	}
	return idx, nil
}

// DecodeInto decodes elem's children against schema and appends each as
// a new child of the existing tree node into. It adds nodes only; it does
// not match them against into's existing children or apply any
// nc:operation semantics (pkg/engine's edit-config decodes with Decode
// and merges separately).
func DecodeInto(tree *objtree.Tree, into objtree.Index, elem *etree.Element, schema *yang.SchemaNode) error {
	for _, child := range elem.ChildElements() {
		idx, err := decodeElement(tree, child, schema)
		if err != nil {
			return err
		}
		if err := tree.AddChild(into, idx, nil); err != nil {
			return err
		}
	}
	return nil
}

// operationOf reads back the pending edit-config operation an element
// decoded with, or OperationMerge (RFC 6241 §7.2's default-operation)
// when unset.
func operationOf(tree *objtree.Tree, i objtree.Index) Operation {
	if v := tree.Attr(i, operationAttr); v != "" {
		return Operation(v)
	}
	return OperationMerge
}

// OperationOf is operationOf exported for pkg/engine's edit-config merge
// step, the caller spec.md §4.E assigns the job of consuming the pending
// nc:operation attribute this codec decodes onto each node.
func OperationOf(tree *objtree.Tree, i objtree.Index) Operation { return operationOf(tree, i) }

// OperationOfWithDefault is OperationOf, but falls back to def instead of
// always defaulting to merge — the per-node scoping rule for an
// <edit-config> request's default-operation parameter (RFC 6241 §7.2):
// a node with no nc:operation attribute of its own takes on whatever
// default is in effect for its position in the fragment, not a fixed
// merge.
func OperationOfWithDefault(tree *objtree.Tree, i objtree.Index, def Operation) Operation {
	if v := tree.Attr(i, operationAttr); v != "" {
		return Operation(v)
	}
	return def
}
