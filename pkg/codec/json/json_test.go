package json

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ncxd/confd/pkg/objtree"
	"github.com/ncxd/confd/pkg/yang"
)

func TestEncodeGroupsListEntriesIntoArray(t *testing.T) {
	schema := loadHostsSchema(t)
	root := schema.Root()
	hostsSchema, _ := root.FindChild("hosts", "")
	hostSchema, _ := hostsSchema.FindChild("host", "")
	nameSchema, _ := hostSchema.FindChild("name", "")

	tree := objtree.NewTree(root.Name(), root.Namespace(), root)
	hosts := tree.Create(objtree.KindContainer, "hosts", hostsSchema.Namespace(), hostsSchema)
	if err := tree.AddChild(tree.Root(), hosts, nil); err != nil {
		t.Fatalf("AddChild(hosts): %v", err)
	}
	for _, hostname := range []string{"r1", "r2"} {
		entry := tree.Create(objtree.KindListEntry, "host", hostSchema.Namespace(), hostSchema)
		if err := tree.AddChild(hosts, entry, nil); err != nil {
			t.Fatalf("AddChild(host): %v", err)
		}
		name := tree.Create(objtree.KindLeaf, "name", nameSchema.Namespace(), nameSchema)
		tree.SetBody(name, hostname)
		if err := tree.AddChild(entry, name, nil); err != nil {
			t.Fatalf("AddChild(name): %v", err)
		}
	}

	out, err := Encode(tree, hosts)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	obj, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("expected top-level object, got %T", out)
	}
	arr, ok := obj["host"].([]any)
	if !ok {
		t.Fatalf("expected host member to be an array, got %T", obj["host"])
	}
	if len(arr) != 2 {
		t.Fatalf("expected 2 host entries, got %d", len(arr))
	}
}

func TestDecodeBuildsTreeFromJSON(t *testing.T) {
	schema := loadHostsSchema(t)
	value := map[string]any{
		"hosts": map[string]any{
			"host": []any{
				map[string]any{"name": "r1"},
			},
		},
	}
	tree, err := Decode(value, schema)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	hosts, ok := tree.FindChild(tree.Root(), "hosts", "")
	if !ok {
		t.Fatal("decoded tree missing hosts")
	}
	entry, ok := tree.FindChild(hosts, "host", "")
	if !ok {
		t.Fatal("decoded tree missing host entry")
	}
	name, ok := tree.FindChild(entry, "name", "")
	if !ok || tree.Body(name) != "r1" {
		t.Fatalf("decoded name leaf wrong: ok=%v body=%q", ok, tree.Body(name))
	}
}

func TestDecodeRejectsNonObjectTopLevel(t *testing.T) {
	schema := loadHostsSchema(t)
	if _, err := Decode([]any{}, schema); err == nil {
		t.Fatal("expected error decoding non-object top level")
	}
}

func TestDecodeRejectsUnknownMember(t *testing.T) {
	schema := loadHostsSchema(t)
	value := map[string]any{"bogus": "x"}
	if _, err := Decode(value, schema); err == nil {
		t.Fatal("expected error decoding unknown member")
	}
}

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
