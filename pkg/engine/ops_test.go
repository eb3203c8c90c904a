package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beevik/etree"

	xmlcodec "github.com/ncxd/confd/pkg/codec/xml"
	"github.com/ncxd/confd/pkg/config"
	"github.com/ncxd/confd/pkg/datastore"
	"github.com/ncxd/confd/pkg/nacm"
	"github.com/ncxd/confd/pkg/notify"
	"github.com/ncxd/confd/pkg/validate"
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
      leaf role {
        type string;
      }
    }
  }
}
`

func newTestContext(t *testing.T) *Context {
	t.Helper()
	yangDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(yangDir, "hosts.yang"), []byte(strings.TrimSpace(hostsYang)), 0o644); err != nil {
		t.Fatalf("writing fixture module: %v", err)
	}
	schema, err := yang.LoadDir([]string{yangDir}, "")
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	store := datastore.NewStore(t.TempDir(), schema)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("store.Load: %v", err)
	}

	return &Context{
		Config:   &config.Config{},
		Schema:   schema,
		Store:    store,
		Notify:   notify.NewBus(),
		pipeline: validate.NewPipeline(schema, store),
		nacm:     &nacm.Engine{Enabled: false},
	}
}

func parseFragment(t *testing.T, xmlFragment string) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xmlFragment); err != nil {
		t.Fatalf("ReadFromString: %v", err)
	}
	root := doc.Root()
	if root == nil {
		t.Fatal("fragment has no root element")
	}
	return root
}

func TestEditConfigThenCommitThenGetConfig(t *testing.T) {
	e := newTestContext(t)
	sess := &Session{ID: "sess-1", User: "admin"}

	frag := parseFragment(t, `<config><hosts><host><name>eth0</name><role>spine</role></host></hosts></config>`)
	if err := e.EditConfig(context.Background(), sess, datastore.Candidate, frag, xmlcodec.OperationMerge, TestThenSet, StopOnError); err != nil {
		t.Fatalf("EditConfig: %v", err)
	}

	res, err := e.Commit(context.Background(), sess)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("commit reported errors: %v", res.Errors)
	}

	tree, err := e.GetConfig(context.Background(), sess, datastore.Running, "")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	hosts, ok := tree.FindChild(tree.Root(), "hosts", "")
	if !ok {
		t.Fatal("expected hosts container in running")
	}
	host, ok := tree.FindChild(hosts, "host", "")
	if !ok {
		t.Fatal("expected host entry in running")
	}
	name, ok := tree.FindChild(host, "name", "")
	if !ok || tree.Body(name) != "eth0" {
		t.Fatalf("expected host name eth0, got ok=%v body=%q", ok, tree.Body(name))
	}
}

func TestEditConfigRejectsLockedDatastore(t *testing.T) {
	e := newTestContext(t)
	owner := &Session{ID: "sess-owner", User: "admin"}
	other := &Session{ID: "sess-other", User: "admin"}

	if err := e.Lock(context.Background(), owner, datastore.Candidate); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	frag := parseFragment(t, `<config><hosts><host><name>eth0</name></host></hosts></config>`)
	err := e.EditConfig(context.Background(), other, datastore.Candidate, frag, xmlcodec.OperationMerge, TestThenSet, StopOnError)
	if err == nil {
		t.Fatal("expected lock-denied error")
	}
}

func TestDiscardChangesResetsCandidate(t *testing.T) {
	e := newTestContext(t)
	sess := &Session{ID: "sess-1", User: "admin"}

	frag := parseFragment(t, `<config><hosts><host><name>eth0</name></host></hosts></config>`)
	if err := e.EditConfig(context.Background(), sess, datastore.Candidate, frag, xmlcodec.OperationMerge, TestThenSet, StopOnError); err != nil {
		t.Fatalf("EditConfig: %v", err)
	}
	if err := e.DiscardChanges(context.Background(), sess); err != nil {
		t.Fatalf("DiscardChanges: %v", err)
	}

	tree, err := e.GetConfig(context.Background(), sess, datastore.Candidate, "")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if hosts, ok := tree.FindChild(tree.Root(), "hosts", ""); ok && len(tree.Children(hosts)) != 0 {
		t.Fatal("expected candidate to be reset to running's empty content")
	}
}

func TestEditConfigTestOnlyDoesNotPersist(t *testing.T) {
	e := newTestContext(t)
	sess := &Session{ID: "sess-1", User: "admin"}

	frag := parseFragment(t, `<config><hosts><host><name>eth0</name><role>spine</role></host></hosts></config>`)
	if err := e.EditConfig(context.Background(), sess, datastore.Candidate, frag, xmlcodec.OperationMerge, TestOnly, StopOnError); err != nil {
		t.Fatalf("EditConfig: %v", err)
	}

	tree, err := e.GetConfig(context.Background(), sess, datastore.Candidate, "")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if hosts, ok := tree.FindChild(tree.Root(), "hosts", ""); ok && len(tree.Children(hosts)) != 0 {
		t.Fatal("test-only edit-config must not persist to the target datastore")
	}
}

func TestEditConfigRollbackOnErrorLeavesTargetUntouched(t *testing.T) {
	e := newTestContext(t)
	sess := &Session{ID: "sess-1", User: "admin"}

	// Seed an existing host so the next edit-config's delete recurses into
	// the already-present hosts container instead of attaching a brand new
	// one wholesale (which would never look at the nested operation
	// attributes at all).
	seed := parseFragment(t, `<config><hosts><host><name>seed1</name><role>spine</role></host></hosts></config>`)
	if err := e.EditConfig(context.Background(), sess, datastore.Candidate, seed, xmlcodec.OperationMerge, TestSet, StopOnError); err != nil {
		t.Fatalf("seeding EditConfig: %v", err)
	}

	frag := parseFragment(t, `<config><hosts><host operation="delete"><name>ghost</name></host></hosts></config>`)
	err := e.EditConfig(context.Background(), sess, datastore.Candidate, frag, xmlcodec.OperationMerge, TestThenSet, RollbackOnError)
	if err == nil {
		t.Fatal("expected data-missing error deleting a host that does not exist")
	}

	tree, err := e.GetConfig(context.Background(), sess, datastore.Candidate, "")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	hosts, ok := tree.FindChild(tree.Root(), "hosts", "")
	if !ok {
		t.Fatal("expected the seeded hosts container to still be present")
	}
	if len(tree.Children(hosts)) != 1 {
		t.Fatal("rollback-on-error must leave the target datastore exactly as it was")
	}
}

func TestEditConfigContinueOnErrorAppliesSuccessfulNodes(t *testing.T) {
	e := newTestContext(t)
	sess := &Session{ID: "sess-1", User: "admin"}

	seed := parseFragment(t, `<config><hosts><host><name>seed1</name><role>spine</role></host></hosts></config>`)
	if err := e.EditConfig(context.Background(), sess, datastore.Candidate, seed, xmlcodec.OperationMerge, TestSet, StopOnError); err != nil {
		t.Fatalf("seeding EditConfig: %v", err)
	}

	frag := parseFragment(t, `<config><hosts>`+
		`<host operation="delete"><name>ghost</name></host>`+
		`<host operation="create"><name>eth1</name><role>leaf</role></host>`+
		`</hosts></config>`)
	err := e.EditConfig(context.Background(), sess, datastore.Candidate, frag, xmlcodec.OperationMerge, TestSet, ContinueOnError)
	if err == nil {
		t.Fatal("expected data-missing error reported for the delete of a nonexistent host")
	}

	tree, err := e.GetConfig(context.Background(), sess, datastore.Candidate, "")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	hosts, ok := tree.FindChild(tree.Root(), "hosts", "")
	if !ok {
		t.Fatal("expected hosts container despite the reported error")
	}
	names := map[string]bool{}
	for _, h := range tree.Children(hosts) {
		if name, ok := tree.FindChild(h, "name", ""); ok {
			names[tree.Body(name)] = true
		}
	}
	if !names["eth1"] {
		t.Fatal("continue-on-error must still apply the operations that succeeded")
	}
	if !names["seed1"] {
		t.Fatal("continue-on-error must not disturb unrelated existing entries")
	}
}

func TestMergeOperationReplacesLeafBody(t *testing.T) {
	e := newTestContext(t)
	sess := &Session{ID: "sess-1", User: "admin"}

	first := parseFragment(t, `<config><hosts><host><name>eth0</name><role>spine</role></host></hosts></config>`)
	if err := e.EditConfig(context.Background(), sess, datastore.Candidate, first, xmlcodec.OperationMerge, TestThenSet, StopOnError); err != nil {
		t.Fatalf("EditConfig: %v", err)
	}
	second := parseFragment(t, `<config><hosts><host><name>eth0</name><role>leaf</role></host></hosts></config>`)
	if err := e.EditConfig(context.Background(), sess, datastore.Candidate, second, xmlcodec.OperationMerge, TestThenSet, StopOnError); err != nil {
		t.Fatalf("EditConfig: %v", err)
	}

	tree, err := e.GetConfig(context.Background(), sess, datastore.Candidate, "")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	hosts, _ := tree.FindChild(tree.Root(), "hosts", "")
	host, _ := tree.FindChild(hosts, "host", "")
	role, ok := tree.FindChild(host, "role", "")
	if !ok || tree.Body(role) != "leaf" {
		t.Fatalf("expected merged role to be 'leaf', got ok=%v body=%q", ok, tree.Body(role))
	}
}
