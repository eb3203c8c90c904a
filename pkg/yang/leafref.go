package yang

import (
	"fmt"
	"strings"
)

// ResolveLeafref implements the §4.B public contract:
// resolve_leafref(from) → target schema node. Cyclic leafrefs are fatal
// per §4.B resolution step (7); ResolveLeafref reports the cycle instead
// of looping forever.
func (s *Schema) ResolveLeafref(from *SchemaNode) (*SchemaNode, error) {
	return s.resolveLeafrefPath(from, map[*SchemaNode]bool{})
}

func (s *Schema) resolveLeafrefPath(from *SchemaNode, seen map[*SchemaNode]bool) (*SchemaNode, error) {
	if seen[from] {
		return nil, fmt.Errorf("cyclic leafref resolving from %q", from.Path())
	}
	seen[from] = true

	yt := from.LeafType()
	if yt == nil || yt.Path == "" {
		return nil, fmt.Errorf("%q is not a leafref", from.Path())
	}
	target, err := s.walkLeafrefPath(from, yt.Path)
	if err != nil {
		return nil, err
	}
	// a leafref target that is itself a leafref must be followed
	// transitively (RFC 7950 §9.9.3); guard against cycles via `seen`.
	if target.LeafType() != nil && target.LeafType().Path != "" {
		return s.resolveLeafrefPath(target, seen)
	}
	return target, nil
}

// walkLeafrefPath resolves the XPath-like leafref path (relative,
// beginning with "../", or absolute, beginning with "/") to a schema
// node, ignoring predicates (`[...]`) since only the schema-level target
// is needed here; instance-level key matching is pkg/validate's job
// (spec.md §4.F stage 3).
func (s *Schema) walkLeafrefPath(from *SchemaNode, path string) (*SchemaNode, error) {
	path = strings.TrimSpace(path)
	cur := from.parent // leafref paths are relative to the leaf's parent
	absolute := strings.HasPrefix(path, "/")
	segments := splitPathSegments(path)

	if absolute {
		cur = s.root
	}

	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if cur == nil || cur.parent == nil {
				return nil, fmt.Errorf("leafref path %q in %q walks above the schema root", path, from.Path())
			}
			cur = cur.parent
		default:
			name, ns := s.splitPrefixedName(seg, from, cur)
			child, ok := cur.FindChild(name, ns)
			if !ok {
				return nil, fmt.Errorf("leafref path %q in %q: no schema node %q under %q", path, from.Path(), seg, cur.Path())
			}
			cur = child
		}
	}
	if cur == nil || cur == s.root {
		return nil, fmt.Errorf("leafref path %q in %q did not resolve to a node", path, from.Path())
	}
	return cur, nil
}

func splitPathSegments(path string) []string {
	path = strings.TrimPrefix(path, "/")
	var segs []string
	for _, raw := range strings.Split(path, "/") {
		if i := strings.Index(raw, "["); i >= 0 {
			raw = raw[:i]
		}
		segs = append(segs, raw)
	}
	return segs
}

// splitPrefixedName splits a possibly prefixed "pfx:name" path segment,
// resolving the namespace for the prefix relative to from's module
// import table; an unprefixed segment inherits cur's own namespace.
func (s *Schema) splitPrefixedName(seg string, from *SchemaNode, cur *SchemaNode) (name, ns string) {
	if i := strings.Index(seg, ":"); i >= 0 {
		prefix, local := seg[:i], seg[i+1:]
		if mod, ok := s.FindModuleByPrefix(from.module, prefix); ok {
			return local, mod.Namespace
		}
		return local, ""
	}
	if cur != nil {
		return seg, cur.Namespace()
	}
	return seg, ""
}
