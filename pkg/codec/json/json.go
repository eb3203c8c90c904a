// Package json implements the RFC 7951 wire encoding of spec.md §4.D:
// object-tree ↔ JSON, module-qualifying member names exactly where their
// module differs from the parent's (grounded on the teacher's own
// pkg/tree/json.go jsonGetIetfPrefixConditional), and quoting int64,
// uint64 and decimal64 leaf values as JSON strings per RFC 7951 §6.1,
// since encoding/json's native number type cannot round-trip 64-bit
// integers losslessly through a float64-backed `any`.
package json

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ncxd/confd/pkg/netconf"
	"github.com/ncxd/confd/pkg/objtree"
	"github.com/ncxd/confd/pkg/yang"
)

// Encode renders the subtree rooted at root as a generic JSON value
// (map[string]any / []any / string / json.Number / bool), suitable for
// json.Marshal or further composition into a RESTCONF response body.
func Encode(t *objtree.Tree, root objtree.Index) (any, error) {
	return encodeNode(t, root)
}

func encodeNode(t *objtree.Tree, i objtree.Index) (any, error) {
	switch t.Kind(i) {
	case objtree.KindLeaf, objtree.KindLeafListEntry:
		return leafValue(t.Schema(i), t.Body(i)), nil
	default:
		children := t.CanonicalChildren(i)
		obj := map[string]any{}
		// group leaf-list entries and list entries of the same name into
		// a single JSON array member, per RFC 7951 §5.3/§5.4.
		groups := map[string][]objtree.Index{}
		var order []string
		for _, c := range children {
			key := memberName(t, c, i)
			if _, seen := groups[key]; !seen {
				order = append(order, key)
			}
			groups[key] = append(groups[key], c)
		}
		for _, key := range order {
			members := groups[key]
			schema := t.Schema(members[0])
			if schema != nil && (schema.Keyword() == "list" || schema.Keyword() == "leaf-list") {
				arr := make([]any, 0, len(members))
				for _, m := range members {
					v, err := encodeNode(t, m)
					if err != nil {
						return nil, err
					}
					arr = append(arr, v)
				}
				obj[key] = arr
				continue
			}
			v, err := encodeNode(t, members[0])
			if err != nil {
				return nil, err
			}
			obj[key] = v
		}
		return obj, nil
	}
}

// memberName module-qualifies name with "module:" exactly when the
// child's owning module differs from the parent's, per RFC 7951 §4.
func memberName(t *objtree.Tree, child, parent objtree.Index) string {
	name := t.Name(child)
	cs, ps := t.Schema(child), t.Schema(parent)
	if cs == nil || ps == nil || cs.Module() == nil || ps.Module() == nil {
		return name
	}
	if cs.Module().Name == ps.Module().Name {
		return name
	}
	return cs.Module().Name + ":" + name
}

func leafValue(schema *yang.SchemaNode, body string) any {
	if schema == nil {
		return body
	}
	yt := schema.LeafType()
	if yt == nil {
		return body
	}
	switch yt.Kind.String() {
	case "boolean":
		return body == "true"
	case "int64", "uint64", "decimal64":
		return body // quoted string, per RFC 7951 §6.1
	case "int8", "int16", "int32", "uint8", "uint16", "uint32":
		return json.Number(body)
	case "empty":
		return []any{nil}
	default:
		return body // string/enumeration/identityref/leafref/instance-identifier/binary/bits
	}
}

// Decode parses a generic JSON value (as produced by encoding/json's
// Unmarshal into `any`) into a freshly built Tree bound to schema.
func Decode(value any, schema *yang.Schema) (*objtree.Tree, error) {
	root := schema.Root()
	tree := objtree.NewTree(root.Name(), root.Namespace(), root)
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagBadElement,
			"top-level JSON value must be an object")
	}
	keys := sortedKeys(obj)
	for _, key := range keys {
		if err := decodeMember(tree, tree.Root(), root, key, obj[key]); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

func decodeMember(tree *objtree.Tree, parent objtree.Index, parentSchema *yang.SchemaNode, key string, value any) error {
	_, local := splitModulePrefix(key)
	childSchema, ok := parentSchema.FindChild(local, "")
	if !ok {
		return netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagUnknownElement,
			"unknown element %q under %q", local, parentSchema.Name())
	}

	switch childSchema.Keyword() {
	case "list":
		arr, ok := value.([]any)
		if !ok {
			return netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagBadElement, "list %q must be a JSON array", local)
		}
		for _, entryVal := range arr {
			idx := tree.Create(objtree.KindListEntry, childSchema.Name(), childSchema.Namespace(), childSchema)
			entryObj, ok := entryVal.(map[string]any)
			if !ok {
				return netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagBadElement, "list %q entry must be a JSON object", local)
			}
			for _, k := range sortedKeys(entryObj) {
				if err := decodeMember(tree, idx, childSchema, k, entryObj[k]); err != nil {
					return err
				}
			}
			if err := tree.AddChild(parent, idx, nil); err != nil {
				return err
			}
		}
		return nil
	case "leaf-list":
		arr, ok := value.([]any)
		if !ok {
			return netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagBadElement, "leaf-list %q must be a JSON array", local)
		}
		for _, v := range arr {
			idx := tree.Create(objtree.KindLeafListEntry, childSchema.Name(), childSchema.Namespace(), childSchema)
			tree.SetBody(idx, scalarToString(v))
			if err := tree.AddChild(parent, idx, nil); err != nil {
				return err
			}
		}
		return nil
	case "leaf":
		idx := tree.Create(objtree.KindLeaf, childSchema.Name(), childSchema.Namespace(), childSchema)
		tree.SetBody(idx, scalarToString(value))
		return tree.AddChild(parent, idx, nil)
	default: // container
		idx := tree.Create(objtree.KindContainer, childSchema.Name(), childSchema.Namespace(), childSchema)
		if obj, ok := value.(map[string]any); ok {
			for _, k := range sortedKeys(obj) {
				if err := decodeMember(tree, idx, childSchema, k, obj[k]); err != nil {
					return err
				}
			}
		}
		return tree.AddChild(parent, idx, nil)
	}
}

func scalarToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case json.Number:
		return t.String()
	case float64:
		return fmt.Sprintf("%v", t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func splitModulePrefix(key string) (module, local string) {
	for i, c := range key {
		if c == ':' {
			return key[:i], key[i+1:]
		}
	}
	return "", key
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
