// Package datastore holds the four named configuration datastores of
// spec.md §3 ("running", "candidate", "startup", "tmp"), each an in-memory
// pkg/objtree.Tree backed by a file on disk, and the lock table that
// serializes access to them.
package datastore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/beevik/etree"
	log "github.com/sirupsen/logrus"

	"github.com/ncxd/confd/pkg/codec/xml"
	"github.com/ncxd/confd/pkg/netconf"
	"github.com/ncxd/confd/pkg/objtree"
	"github.com/ncxd/confd/pkg/yang"
)

// DBName identifies one of the four well-known datastores spec.md §3
// names; NACM's inline rule list and RESTCONF's "datastore" query
// parameter both key off these names.
type DBName string

const (
	Running   DBName = "running"
	Candidate DBName = "candidate"
	Startup   DBName = "startup"
	Tmp       DBName = "tmp"
)

// Entry is one named datastore: its in-memory tree plus the bookkeeping
// the lock-denied/dirty-tracking machinery needs.
type Entry struct {
	mu sync.RWMutex

	Tree    *objtree.Tree
	Dirty   bool
	Holder  string
	ModTime time.Time
	Path    string
}

// Snapshot returns the entry's tree under a read lock; callers that
// mutate must go through Store.Replace so Dirty/ModTime stay consistent
// with what is actually on disk.
func (e *Entry) Snapshot() *objtree.Tree {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Tree
}

// Store is the full set of named datastores for one engine instance.
type Store struct {
	dir    string
	schema *yang.Schema

	entries map[DBName]*Entry
	locks   *lockTable
}

// NewStore creates an empty Store rooted at dir; call Load to populate it
// from disk before serving traffic.
func NewStore(dir string, schema *yang.Schema) *Store {
	s := &Store{
		dir:     dir,
		schema:  schema,
		entries: map[DBName]*Entry{},
		locks:   newLockTable(),
	}
	for _, name := range []DBName{Running, Candidate, Startup, Tmp} {
		root := schema.Root()
		s.entries[name] = &Entry{
			Tree: objtree.NewTree(root.Name(), root.Namespace(), root),
			Path: filepath.Join(dir, string(name)+"_db"),
		}
	}
	return s
}

// Entry returns the named datastore, or (nil, false) for an unknown name.
func (s *Store) Entry(name DBName) (*Entry, bool) {
	e, ok := s.entries[name]
	return e, ok
}

// Load reads all four on-disk files, treating a missing file as an empty
// <config/>, decodes each with the XML codec, and re-serializes once to
// normalize on-disk formatting — the "upgrade-on-load" step of spec.md §3
// Lifecycle, mirroring the teacher's general stage-then-normalize habit
// for anything it persists across restarts.
func (s *Store) Load(ctx context.Context) error {
	for _, name := range []DBName{Running, Candidate, Startup, Tmp} {
		if err := s.loadOne(name); err != nil {
			return fmt.Errorf("loading datastore %q: %w", name, err)
		}
	}
	return nil
}

func (s *Store) loadOne(name DBName) error {
	e := s.entries[name]
	data, err := os.ReadFile(e.Path)
	switch {
	case os.IsNotExist(err):
		log.Infof("datastore %q has no on-disk file at %q, starting empty", name, e.Path)
		return s.writeFile(name, e.Tree)
	case err != nil:
		return err
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return netconf.Wrap(netconf.ErrorTypeApplication, netconf.ErrorTagOperationFailed, err,
			"corrupt datastore file %q", e.Path)
	}
	root := doc.SelectElement("config")
	if root == nil {
		return netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagBadElement,
			"datastore file %q missing top-level <config> element", e.Path)
	}
	tree, err := xml.Decode(root, s.schema)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.Tree = tree
	e.ModTime = time.Now()
	e.Dirty = false
	e.mu.Unlock()

	log.Debugf("loaded datastore %q from %q", name, e.Path)
	return s.writeFile(name, tree) // re-serialize to normalize formatting
}

// Replace atomically swaps the named datastore's in-memory tree and
// persists it to disk, used by the commit pipeline's final stage
// (spec.md §4.F stage 6 "atomic swap") and by <copy-config>.
func (s *Store) Replace(name DBName, tree *objtree.Tree, holder string) error {
	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("unknown datastore %q", name)
	}
	if err := s.writeFile(name, tree); err != nil {
		return err
	}
	e.mu.Lock()
	e.Tree = tree
	e.Dirty = false
	e.ModTime = time.Now()
	e.mu.Unlock()
	log.Infof("datastore %q replaced by %s", name, holder)
	return nil
}

// writeFile stages the tree to a temp file in the same directory, fsyncs
// it, then renames it over the target path — the "never observe a
// partial write" idiom spec.md §4.E's cache-coherence note describes,
// ported from the teacher's stage-to-temp-then-rename habit for anything
// it persists.
func (s *Store) writeFile(name DBName, tree *objtree.Tree) error {
	e := s.entries[name]

	doc := etree.NewDocument()
	configElem := doc.CreateElement("config")
	if err := xml.EncodeChildrenInto(tree, tree.Root(), configElem, xml.EncodeOptions{HonorNamespace: true}); err != nil {
		return err
	}
	doc.Indent(2)

	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return err
	}

	tmpPath := e.Path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := doc.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, e.Path)
}
