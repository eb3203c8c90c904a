package validate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ncxd/confd/pkg/datastore"
	"github.com/ncxd/confd/pkg/objtree"
	"github.com/ncxd/confd/pkg/yang"
)

var errPluginRejected = errors.New("plugin rejected candidate")

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
        type string {
          pattern "spine|leaf";
        }
      }
      leaf mgmt-ref {
        type leafref {
          path "/hosts/host/name";
        }
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

func buildHostEntry(t *testing.T, tree *objtree.Tree, hosts objtree.Index, hostSchema, nameSchema, roleSchema, refSchema *yang.SchemaNode, name, role, ref string) objtree.Index {
	t.Helper()
	entry := tree.Create(objtree.KindListEntry, "host", hostSchema.Namespace(), hostSchema)
	if err := tree.AddChild(hosts, entry, nil); err != nil {
		t.Fatalf("AddChild(host): %v", err)
	}
	nameLeaf := tree.Create(objtree.KindLeaf, "name", nameSchema.Namespace(), nameSchema)
	tree.SetBody(nameLeaf, name)
	if err := tree.AddChild(entry, nameLeaf, nil); err != nil {
		t.Fatalf("AddChild(name): %v", err)
	}
	if role != "" {
		roleLeaf := tree.Create(objtree.KindLeaf, "role", roleSchema.Namespace(), roleSchema)
		tree.SetBody(roleLeaf, role)
		if err := tree.AddChild(entry, roleLeaf, nil); err != nil {
			t.Fatalf("AddChild(role): %v", err)
		}
	}
	if ref != "" {
		refLeaf := tree.Create(objtree.KindLeaf, "mgmt-ref", refSchema.Namespace(), refSchema)
		tree.SetBody(refLeaf, ref)
		if err := tree.AddChild(entry, refLeaf, nil); err != nil {
			t.Fatalf("AddChild(mgmt-ref): %v", err)
		}
	}
	return entry
}

func buildTree(t *testing.T, schema *yang.Schema) (*objtree.Tree, objtree.Index, *yang.SchemaNode, *yang.SchemaNode, *yang.SchemaNode, *yang.SchemaNode) {
	t.Helper()
	root := schema.Root()
	hostsSchema, _ := root.FindChild("hosts", "")
	hostSchema, _ := hostsSchema.FindChild("host", "")
	nameSchema, _ := hostSchema.FindChild("name", "")
	roleSchema, _ := hostSchema.FindChild("role", "")
	refSchema, _ := hostSchema.FindChild("mgmt-ref", "")

	tree := objtree.NewTree(root.Name(), root.Namespace(), root)
	hosts := tree.Create(objtree.KindContainer, "hosts", hostsSchema.Namespace(), hostsSchema)
	if err := tree.AddChild(tree.Root(), hosts, nil); err != nil {
		t.Fatalf("AddChild(hosts): %v", err)
	}
	return tree, hosts, hostSchema, nameSchema, roleSchema, refSchema
}

func TestRunTypeRejectsPatternViolation(t *testing.T) {
	schema := loadHostsSchema(t)
	p := &Pipeline{Schema: schema}
	tree, hosts, hostSchema, nameSchema, roleSchema, refSchema := buildTree(t, schema)
	buildHostEntry(t, tree, hosts, hostSchema, nameSchema, roleSchema, refSchema, "r1", "bogus-role", "")

	res := p.runType(tree)
	if res.Ok() {
		t.Fatal("expected a type error for role pattern violation")
	}
}

func TestRunTypeAcceptsValidPattern(t *testing.T) {
	schema := loadHostsSchema(t)
	p := &Pipeline{Schema: schema}
	tree, hosts, hostSchema, nameSchema, roleSchema, refSchema := buildTree(t, schema)
	buildHostEntry(t, tree, hosts, hostSchema, nameSchema, roleSchema, refSchema, "r1", "spine", "")

	if res := p.runType(tree); !res.Ok() {
		t.Fatalf("expected no type errors, got %v", res.Errors)
	}
}

func TestRunReferenceRejectsDanglingLeafref(t *testing.T) {
	schema := loadHostsSchema(t)
	p := &Pipeline{Schema: schema}
	tree, hosts, hostSchema, nameSchema, roleSchema, refSchema := buildTree(t, schema)
	buildHostEntry(t, tree, hosts, hostSchema, nameSchema, roleSchema, refSchema, "r1", "", "nonexistent")

	res := p.runReference(tree)
	if res.Ok() {
		t.Fatal("expected a reference error for dangling leafref")
	}
}

func TestRunReferenceAcceptsResolvedLeafref(t *testing.T) {
	schema := loadHostsSchema(t)
	p := &Pipeline{Schema: schema}
	tree, hosts, hostSchema, nameSchema, roleSchema, refSchema := buildTree(t, schema)
	buildHostEntry(t, tree, hosts, hostSchema, nameSchema, roleSchema, refSchema, "r1", "", "r1")

	if res := p.runReference(tree); !res.Ok() {
		t.Fatalf("expected no reference errors, got %v", res.Errors)
	}
}

func TestRunStructuralRejectsDuplicateKeys(t *testing.T) {
	schema := loadHostsSchema(t)
	p := &Pipeline{Schema: schema}
	tree, hosts, hostSchema, nameSchema, roleSchema, refSchema := buildTree(t, schema)
	buildHostEntry(t, tree, hosts, hostSchema, nameSchema, roleSchema, refSchema, "r1", "", "")
	buildHostEntry(t, tree, hosts, hostSchema, nameSchema, roleSchema, refSchema, "r1", "", "")

	res := p.runStructural(tree)
	if res.Ok() {
		t.Fatal("expected a structural error for duplicate keys")
	}
}

func TestPipelineRunRejectsTmpDatastore(t *testing.T) {
	schema := loadHostsSchema(t)
	store := datastore.NewStore(t.TempDir(), schema)
	p := NewPipeline(schema, store)

	if _, err := p.Run(context.Background(), datastore.Tmp, datastore.Running, nil); err == nil {
		t.Fatal("expected an error committing from the tmp datastore")
	}
}

func TestPipelineRunCommitsValidCandidate(t *testing.T) {
	schema := loadHostsSchema(t)
	dir := t.TempDir()
	store := datastore.NewStore(dir, schema)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	tree, hosts, hostSchema, nameSchema, roleSchema, refSchema := buildTree(t, schema)
	buildHostEntry(t, tree, hosts, hostSchema, nameSchema, roleSchema, refSchema, "r1", "spine", "")
	if err := store.Replace(datastore.Candidate, tree, "test"); err != nil {
		t.Fatalf("Replace(candidate): %v", err)
	}

	p := NewPipeline(schema, store)
	res, err := p.Run(context.Background(), datastore.Candidate, datastore.Running, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Ok() {
		t.Fatalf("expected commit to succeed, got errors: %v", res.Errors)
	}
	if res.Stage != StageAtomicSwap {
		t.Fatalf("expected final stage StageAtomicSwap, got %v", res.Stage)
	}

	runningEntry, _ := store.Entry(datastore.Running)
	if _, ok := runningEntry.Tree.FindChild(runningEntry.Tree.Root(), "hosts", ""); !ok {
		t.Fatal("expected running to contain hosts after commit")
	}
}

func TestPipelineRunAbortsOnPluginFailure(t *testing.T) {
	schema := loadHostsSchema(t)
	dir := t.TempDir()
	store := datastore.NewStore(dir, schema)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	tree, hosts, hostSchema, nameSchema, roleSchema, refSchema := buildTree(t, schema)
	buildHostEntry(t, tree, hosts, hostSchema, nameSchema, roleSchema, refSchema, "r1", "spine", "")
	if err := store.Replace(datastore.Candidate, tree, "test"); err != nil {
		t.Fatalf("Replace(candidate): %v", err)
	}

	aborted := false
	plugins := []PluginHooks{
		{
			Name: "always-fails",
			OnValidate: func(ctx context.Context, candidate *objtree.Tree) error {
				return errPluginRejected
			},
			OnAbort: func(ctx context.Context) { aborted = true },
		},
	}

	p := NewPipeline(schema, store)
	res, err := p.Run(context.Background(), datastore.Candidate, datastore.Running, plugins)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Ok() {
		t.Fatal("expected the commit to fail")
	}
	if res.Stage != StagePluginTransaction {
		t.Fatalf("expected failing stage StagePluginTransaction, got %v", res.Stage)
	}
	if !aborted {
		t.Fatal("expected OnAbort to be called")
	}

	runningEntry, _ := store.Entry(datastore.Running)
	if _, ok := runningEntry.Tree.FindChild(runningEntry.Tree.Root(), "hosts", ""); ok {
		t.Fatal("running must not change when the plugin stage rejects the commit")
	}
}
