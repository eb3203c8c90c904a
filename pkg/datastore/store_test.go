package datastore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ncxd/confd/pkg/objtree"
	"github.com/ncxd/confd/pkg/yang"
)

const hostsYang = `
module hosts {
  namespace "urn:test:hosts";
  prefix h;

  container hosts {
    list host {
      key "name";
      leaf name {
        type string;
      }
    }
  }
}
`

func loadHostsSchema(t *testing.T) *yang.Schema {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hosts.yang"), []byte(strings.TrimSpace(hostsYang)), 0o644); err != nil {
		t.Fatalf("writing fixture module: %v", err)
	}
	schema, err := yang.LoadDir([]string{dir}, "")
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	return schema
}

func TestNewStoreCreatesFourEmptyEntries(t *testing.T) {
	schema := loadHostsSchema(t)
	s := NewStore(t.TempDir(), schema)
	for _, name := range []DBName{Running, Candidate, Startup, Tmp} {
		e, ok := s.Entry(name)
		if !ok {
			t.Fatalf("missing entry %q", name)
		}
		if len(e.Tree.Children(e.Tree.Root())) != 0 {
			t.Fatalf("entry %q should start empty", name)
		}
	}
}

func TestLoadOnMissingFilesCreatesEmptyOnDisk(t *testing.T) {
	schema := loadHostsSchema(t)
	dir := t.TempDir()
	s := NewStore(dir, schema)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, name := range []DBName{Running, Candidate, Startup, Tmp} {
		path := filepath.Join(dir, string(name)+"_db")
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %q to exist after Load: %v", path, err)
		}
	}
}

func TestReplacePersistsAndReloads(t *testing.T) {
	schema := loadHostsSchema(t)
	dir := t.TempDir()
	s := NewStore(dir, schema)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	root := schema.Root()
	hostsSchema, _ := root.FindChild("hosts", "")
	hostSchema, _ := hostsSchema.FindChild("host", "")
	nameSchema, _ := hostSchema.FindChild("name", "")

	tree := objtree.NewTree(root.Name(), root.Namespace(), root)
	hosts := tree.Create(objtree.KindContainer, "hosts", hostsSchema.Namespace(), hostsSchema)
	if err := tree.AddChild(tree.Root(), hosts, nil); err != nil {
		t.Fatalf("AddChild(hosts): %v", err)
	}
	entry := tree.Create(objtree.KindListEntry, "host", hostSchema.Namespace(), hostSchema)
	if err := tree.AddChild(hosts, entry, nil); err != nil {
		t.Fatalf("AddChild(host): %v", err)
	}
	name := tree.Create(objtree.KindLeaf, "name", nameSchema.Namespace(), nameSchema)
	tree.SetBody(name, "r1")
	if err := tree.AddChild(entry, name, nil); err != nil {
		t.Fatalf("AddChild(name): %v", err)
	}

	if err := s.Replace(Candidate, tree, "session-1"); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	reloaded := NewStore(dir, schema)
	if err := reloaded.Load(context.Background()); err != nil {
		t.Fatalf("reload Load: %v", err)
	}
	candEntry, _ := reloaded.Entry(Candidate)
	hostsNode, ok := candEntry.Tree.FindChild(candEntry.Tree.Root(), "hosts", "")
	if !ok {
		t.Fatal("reloaded candidate missing hosts")
	}
	entryNode, ok := candEntry.Tree.FindChild(hostsNode, "host", "")
	if !ok {
		t.Fatal("reloaded candidate missing host entry")
	}
	nameNode, ok := candEntry.Tree.FindChild(entryNode, "name", "")
	if !ok || candEntry.Tree.Body(nameNode) != "r1" {
		t.Fatalf("reloaded name leaf wrong: ok=%v body=%q", ok, candEntry.Tree.Body(nameNode))
	}
}

func TestLockDeniesSecondHolder(t *testing.T) {
	schema := loadHostsSchema(t)
	s := NewStore(t.TempDir(), schema)

	if err := s.Lock(Candidate, "session-1"); err != nil {
		t.Fatalf("first Lock: %v", err)
	}
	if err := s.Lock(Candidate, "session-2"); err == nil {
		t.Fatal("expected lock-denied for second holder")
	}
	if err := s.Unlock(Candidate, "session-1"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := s.Lock(Candidate, "session-2"); err != nil {
		t.Fatalf("Lock after Unlock: %v", err)
	}
}

func TestUnlockAllReleasesHolderLocks(t *testing.T) {
	schema := loadHostsSchema(t)
	s := NewStore(t.TempDir(), schema)
	if err := s.Lock(Running, "session-1"); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	s.UnlockAll("session-1")
	if _, locked := s.IsLocked(Running); locked {
		t.Fatal("expected Running to be unlocked after UnlockAll")
	}
}
