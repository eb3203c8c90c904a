// Package yang wraps github.com/openconfig/goyang's module/entry parser
// (the "external collaborator" spec.md §1 says owns YANG file syntax
// parsing) into the resolved schema graph spec.md §4.B describes: a
// queryable tree of SchemaNodes with stable paths, feature pruning,
// identity derivation, and leafref target resolution on top of what
// goyang's Entry already resolves (uses/grouping/augment/typedef chains).
package yang

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	goyang "github.com/openconfig/goyang/pkg/yang"
)

// Schema is the resolved module graph produced by LoadDir: the public
// contract of spec.md §4.B.
type Schema struct {
	modules *goyang.Modules

	byName      map[string]*Module
	byNamespace map[string]*Module

	root *SchemaNode // synthetic container that aggregates every top-level data node across modules

	features map[string]bool // "module:feature" -> enabled

	// identityChildren maps a base identity's qualified name to the
	// identities that directly derive from it (RFC 7950 §7.18 "identity").
	identityChildren map[string][]string
	identityModule   map[string]string // qualified identity name -> owning module
}

// Module is a loaded YANG module, kept alongside goyang's own *Module node
// because goyang does not expose a stable namespace/prefix map the way
// spec.md §3 requires ("Module nodes additionally own a namespace and a
// list of imported prefix→module bindings").
type Module struct {
	Name      string
	Namespace string
	Prefix    string
	Entry     *goyang.Entry

	imports map[string]string // local prefix -> imported module name
}

// ModuleInfo is the read-only view handed to an external collaborator
// rendering RFC 8525 yang-library state (spec.md §1 names that rendering
// itself out of scope).
type ModuleInfo struct {
	Name      string
	Namespace string
	Revision  string
}

// LoadDir parses every .yang file under dirs, resolves imports/includes,
// folds uses/grouping/augment/typedef (goyang's job), then builds the
// SchemaNode graph this package's callers use. mainModule names the
// top-level module to root the aggregate data tree on; pass "" to include
// every parsed module's top-level data nodes.
func LoadDir(dirs []string, mainModule string) (*Schema, error) {
	ms := goyang.NewModules()
	ms.Path = append(ms.Path, dirs...)

	for _, dir := range dirs {
		files, err := goyang.PathsWithModules(dir)
		if err != nil {
			return nil, fmt.Errorf("scanning yang dir %q: %w", dir, err)
		}
		// PathsWithModules returns the directories holding .yang files,
		// not the files themselves.
		for _, d := range files {
			yangFiles, err := filepath.Glob(filepath.Join(d, "*.yang"))
			if err != nil {
				return nil, fmt.Errorf("scanning yang dir %q: %w", d, err)
			}
			for _, f := range yangFiles {
				if err := ms.Read(f); err != nil {
					return nil, fmt.Errorf("reading %q: %w", f, err)
				}
			}
		}
	}

	// resolve import/include; circular imports surface here as errors,
	// per spec.md §4.B resolution step (2).
	if errs := ms.Process(); len(errs) > 0 {
		return nil, fmt.Errorf("resolving yang modules: %v", errs)
	}

	s := &Schema{
		modules:          ms,
		byName:           map[string]*Module{},
		byNamespace:      map[string]*Module{},
		features:         map[string]bool{},
		identityChildren: map[string][]string{},
		identityModule:   map[string]string{},
	}

	names := make([]string, 0, len(ms.Modules))
	for _, m := range ms.Modules {
		names = append(names, m.Name)
	}
	sort.Strings(names)

	if mainModule != "" {
		if _, ok := ms.Modules[mainModule]; !ok {
			return nil, fmt.Errorf("main module %q not found", mainModule)
		}
	}

	s.root = &SchemaNode{
		kind:     "container",
		name:     "",
		children: map[string]*SchemaNode{},
		order:    nil,
	}

	for _, name := range names {
		gm := ms.Modules[name]
		entry := goyang.ToEntry(gm)
		if entry == nil || len(entry.Errors) > 0 {
			return nil, fmt.Errorf("building entry for module %q: %v", name, entry.Errors)
		}
		mod := &Module{
			Name:      gm.Name,
			Namespace: valueOf(gm.Namespace),
			Prefix:    valueOf(gm.Prefix),
			Entry:     entry,
			imports:   map[string]string{},
		}
		for _, imp := range gm.Import {
			mod.imports[imp.Prefix.Name] = imp.Name
		}
		s.byName[mod.Name] = mod
		s.byNamespace[mod.Namespace] = mod

		for _, feat := range gm.Feature {
			s.features[mod.Name+":"+feat.Name] = false // declared, disabled by default until enabled by config
		}
		s.collectIdentities(mod.Name, gm.Identity)

		if mainModule != "" && mod.Name != mainModule {
			// still index the module (it may be imported) but do not
			// graft its top level into the aggregate data root unless
			// it is the main module or gets augmented in.
			continue
		}
		s.graftModule(mod, entry)
	}

	s.applyFeaturePruning(s.root)
	s.assignPaths(s.root, "")

	log.Infof("yang schema loaded: %d modules", len(names))
	return s, nil
}

func valueOf(v *goyang.Value) string {
	if v == nil {
		return ""
	}
	return v.Name
}

func (s *Schema) collectIdentities(moduleName string, ids []*goyang.Identity) {
	for _, id := range ids {
		qn := moduleName + ":" + id.Name
		s.identityModule[qn] = moduleName
		if len(id.Base) > 0 && id.Base[0].Name != "" {
			base := qualify(id.Base[0].Name, moduleName)
			s.identityChildren[base] = append(s.identityChildren[base], qn)
		}
		s.collectIdentities(moduleName, id.Values)
	}
}

// qualify turns a possibly prefixed identity/type reference into a
// "module:name" key, defaulting the module to defMod when unprefixed.
func qualify(ref, defMod string) string {
	if i := strings.Index(ref, ":"); i >= 0 {
		return ref[:i] + ":" + ref[i+1:]
	}
	return defMod + ":" + ref
}

// graftModule adds mod's top-level data nodes as children of the aggregate
// root, in declaration order (orderedChildNames), so the root's canonical
// ordering is stable across runs instead of following entry.Dir's
// map-iteration order.
func (s *Schema) graftModule(mod *Module, entry *goyang.Entry) {
	for _, name := range orderedChildNames(entry) {
		sn := newSchemaNode(entry.Dir[name], mod)
		s.root.addChild(name, sn)
	}
}

// FindModuleByName implements the §4.B public contract.
func (s *Schema) FindModuleByName(name string) (*Module, bool) {
	m, ok := s.byName[name]
	return m, ok
}

// FindModuleByNamespace implements the §4.B public contract.
func (s *Schema) FindModuleByNamespace(ns string) (*Module, bool) {
	m, ok := s.byNamespace[ns]
	return m, ok
}

// FindModuleByPrefix resolves a prefix used within the given module's
// import statements to the imported module.
func (s *Schema) FindModuleByPrefix(from *Module, prefix string) (*Module, bool) {
	if from == nil {
		return nil, false
	}
	if prefix == "" || prefix == from.Prefix {
		return from, true
	}
	name, ok := from.imports[prefix]
	if !ok {
		return nil, false
	}
	return s.FindModuleByName(name)
}

// Root returns the synthetic container aggregating every module's
// top-level data nodes; it is the schema back-reference for a datastore's
// root object-tree node.
func (s *Schema) Root() *SchemaNode { return s.root }

// FindChildSchema implements the §4.B public contract.
func (s *Schema) FindChildSchema(parent *SchemaNode, name, ns string) (*SchemaNode, error) {
	if parent == nil {
		return nil, fmt.Errorf("find child schema: nil parent")
	}
	child, ok := parent.FindChild(name, ns)
	if !ok {
		return nil, fmt.Errorf("no schema child %q under %q", name, parent.Path())
	}
	return child, nil
}

// Modules implements the ModuleInfo view for an external yang-library
// renderer (spec.md §1 keeps RFC 8525 rendering itself out of scope).
func (s *Schema) Modules() []*ModuleInfo {
	out := make([]*ModuleInfo, 0, len(s.byName))
	for _, m := range s.byName {
		out = append(out, &ModuleInfo{Name: m.Name, Namespace: m.Namespace})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FeatureEnabled implements the §4.B public contract. name is
// "module:feature"; an undeclared feature is treated as enabled (it
// carries no if-feature dependency at all) per RFC 7950 §7.20.2 default.
func (s *Schema) FeatureEnabled(name string) bool {
	v, ok := s.features[name]
	if !ok {
		return true
	}
	return v
}

// SetFeatureEnabled is the startup-time toggle spec.md §3 Lifecycle
// allows for schema nodes ("immutable thereafter except for
// feature-enabled toggles"). It does not re-run pruning: features are
// expected to be set before the first Load completes downstream binding;
// toggling after load is reflected only in new FeatureEnabled queries,
// not retroactively in already-pruned nodes.
func (s *Schema) SetFeatureEnabled(name string, enabled bool) {
	s.features[name] = enabled
}

// IdentityDerivedFrom implements the §4.B public contract: true if id is
// base itself, or transitively derives from base.
func (s *Schema) IdentityDerivedFrom(id, base string) bool {
	idMod := s.identityModule[id]
	baseMod := s.identityModule[base]
	_ = idMod
	_ = baseMod
	if id == base {
		return true
	}
	visited := map[string]bool{}
	var walk func(string) bool
	walk = func(cur string) bool {
		if visited[cur] {
			return false
		}
		visited[cur] = true
		for _, child := range s.identityChildren[cur] {
			if child == id || walk(child) {
				return true
			}
		}
		return false
	}
	return walk(base)
}

// AugmentsAppliedTo implements the §4.B public contract by returning the
// schema nodes that were grafted into target's position via `augment`.
// goyang already performs the graft (step 4 of §4.B's resolution
// algorithm) as part of ToEntry; we recover the provenance by
// cross-checking Entry.Augments recorded on the providing module.
func (s *Schema) AugmentsAppliedTo(target *SchemaNode) []*SchemaNode {
	if target == nil || target.entry == nil {
		return nil
	}
	var out []*SchemaNode
	for _, aug := range target.entry.Augments {
		out = append(out, newSchemaNode(aug, target.module))
	}
	return out
}

func (s *Schema) applyFeaturePruning(n *SchemaNode) {
	for name, child := range n.children {
		if !s.nodeFeatureEnabled(child) {
			delete(n.children, name)
			idx := -1
			for i, on := range n.order {
				if on == name {
					idx = i
					break
				}
			}
			if idx >= 0 {
				n.order = append(n.order[:idx], n.order[idx+1:]...)
			}
			continue
		}
		s.applyFeaturePruning(child)
	}
}

func (s *Schema) nodeFeatureEnabled(n *SchemaNode) bool {
	if n.entry == nil || n.entry.Node == nil {
		return true
	}
	feats := ifFeatures(n.entry.Node)
	for _, f := range feats {
		qn := qualify(f, n.moduleName())
		if !s.FeatureEnabled(qn) {
			return false
		}
	}
	return true
}

func (s *Schema) assignPaths(n *SchemaNode, prefix string) {
	for _, name := range n.order {
		child := n.children[name]
		child.path = prefix + "/" + child.namespacedName()
		s.assignPaths(child, child.path)
	}
}
