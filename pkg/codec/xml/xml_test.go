package xml

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beevik/etree"

	"github.com/ncxd/confd/pkg/objtree"
	"github.com/ncxd/confd/pkg/yang"
)

func buildHostsTree(t *testing.T) (*objtree.Tree, objtree.Index) {
	t.Helper()
	tree := objtree.NewTree("config", "urn:test:hosts", nil)
	hosts := tree.Create(objtree.KindContainer, "hosts", "urn:test:hosts", nil)
	if err := tree.AddChild(tree.Root(), hosts, nil); err != nil {
		t.Fatalf("AddChild(hosts): %v", err)
	}
	entry := tree.Create(objtree.KindListEntry, "host", "urn:test:hosts", nil)
	if err := tree.AddChild(hosts, entry, nil); err != nil {
		t.Fatalf("AddChild(host): %v", err)
	}
	name := tree.Create(objtree.KindLeaf, "name", "urn:test:hosts", nil)
	tree.SetBody(name, "r1")
	if err := tree.AddChild(entry, name, nil); err != nil {
		t.Fatalf("AddChild(name): %v", err)
	}
	return tree, hosts
}

func TestEncodeRendersNestedElements(t *testing.T) {
	tree, hosts := buildHostsTree(t)
	doc, err := Encode(tree, hosts, EncodeOptions{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	root := doc.Root()
	if root.Tag != "hosts" {
		t.Fatalf("expected root tag hosts, got %q", root.Tag)
	}
	host := root.SelectElement("host")
	if host == nil {
		t.Fatal("missing host element")
	}
	if got := host.SelectElement("name").Text(); got != "r1" {
		t.Fatalf("expected name text r1, got %q", got)
	}
}

func TestEncodeOnlyMarkedRendersDeleteOperation(t *testing.T) {
	tree, hosts := buildHostsTree(t)
	entry, _ := tree.FindChild(hosts, "host", "")

	marks := objtree.NewMarkSet()
	marks.Set(entry, objtree.MarkDeleted)

	doc, err := Encode(tree, hosts, EncodeOptions{OnlyMarked: marks, OperationWithNamespace: true})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	host := doc.Root().SelectElement("host")
	if host == nil {
		t.Fatal("expected marked host element to survive OnlyMarked filtering")
	}
	if got := host.SelectAttrValue("nc:operation", ""); got != string(OperationDelete) {
		t.Fatalf("expected nc:operation=delete, got %q", got)
	}
}

func TestEncodeOnlyMarkedDropsUnmarkedSubtrees(t *testing.T) {
	tree, hosts := buildHostsTree(t)
	marks := objtree.NewMarkSet() // nothing marked

	doc, err := Encode(tree, hosts, EncodeOptions{OnlyMarked: marks})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if doc.Root() != nil {
		t.Fatalf("expected no elements when nothing is marked, got %q", doc.Root().Tag)
	}
}

func TestDecodeRoundTripsAgainstSchema(t *testing.T) {
	schema := loadHostsSchema(t)

	elem := etree.NewElement("config")
	host := elem.CreateElement("hosts").CreateElement("host")
	host.CreateElement("name").SetText("r1")

	tree, err := Decode(elem, schema)
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

func TestDecodeRejectsUnknownElement(t *testing.T) {
	schema := loadHostsSchema(t)
	elem := etree.NewElement("hosts")
	elem.CreateElement("bogus")

	if _, err := Decode(elem, schema); err == nil {
		t.Fatal("expected error decoding unknown element")
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
