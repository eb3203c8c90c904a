package xpath

import (
	"testing"

	"github.com/ncxd/confd/pkg/objtree"
)

func buildTree(t *testing.T) *objtree.Tree {
	t.Helper()
	tree := objtree.NewTree("config", "urn:test", nil)
	hosts := tree.Create(objtree.KindContainer, "hosts", "urn:test", nil)
	if err := tree.AddChild(tree.Root(), hosts, nil); err != nil {
		t.Fatalf("AddChild(hosts): %v", err)
	}
	for _, name := range []string{"r1", "r2"} {
		entry := tree.Create(objtree.KindListEntry, "host", "urn:test", nil)
		if err := tree.AddChild(hosts, entry, nil); err != nil {
			t.Fatalf("AddChild(host): %v", err)
		}
		nameLeaf := tree.Create(objtree.KindLeaf, "name", "urn:test", nil)
		tree.SetBody(nameLeaf, name)
		if err := tree.AddChild(entry, nameLeaf, nil); err != nil {
			t.Fatalf("AddChild(name): %v", err)
		}
	}
	return tree
}

func evalExpr(t *testing.T, tree *objtree.Tree, node objtree.Index, expr string) Value {
	t.Helper()
	e, err := Parse(expr)
	if err != nil {
		t.Fatalf("Parse(%q): %v", expr, err)
	}
	v, err := Eval(e, &Context{Tree: tree, Node: node, Current: node})
	if err != nil {
		t.Fatalf("Eval(%q): %v", expr, err)
	}
	return v
}

func TestLocationPathCount(t *testing.T) {
	tree := buildTree(t)
	v := evalExpr(t, tree, tree.Root(), "count(hosts/host)")
	if v.ToNumber() != 2 {
		t.Fatalf("expected 2 host entries, got %v", v.ToNumber())
	}
}

func TestPredicateByPosition(t *testing.T) {
	tree := buildTree(t)
	v := evalExpr(t, tree, tree.Root(), "hosts/host[1]/name")
	if got := v.ToString(); got != "r1" {
		t.Fatalf("expected r1, got %q", got)
	}
}

func TestPredicateByEquality(t *testing.T) {
	tree := buildTree(t)
	v := evalExpr(t, tree, tree.Root(), "hosts/host[name='r2']/name")
	if got := v.ToString(); got != "r2" {
		t.Fatalf("expected r2, got %q", got)
	}
}

func TestDescendantOrSelf(t *testing.T) {
	tree := buildTree(t)
	v := evalExpr(t, tree, tree.Root(), "count(//name)")
	if v.ToNumber() != 2 {
		t.Fatalf("expected 2 name leaves, got %v", v.ToNumber())
	}
}

func TestStringFunctions(t *testing.T) {
	tree := buildTree(t)
	v := evalExpr(t, tree, tree.Root(), "concat('a', 'b', 'c')")
	if got := v.ToString(); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	v = evalExpr(t, tree, tree.Root(), "starts-with('hostname', 'host')")
	if !v.ToBool() {
		t.Fatal("expected starts-with to be true")
	}
}

func TestArithmeticAndComparison(t *testing.T) {
	tree := buildTree(t)
	v := evalExpr(t, tree, tree.Root(), "1 + 2 * 3")
	if v.ToNumber() != 7 {
		t.Fatalf("expected 7, got %v", v.ToNumber())
	}
	v = evalExpr(t, tree, tree.Root(), "count(hosts/host) > 1")
	if !v.ToBool() {
		t.Fatal("expected count(hosts/host) > 1 to be true")
	}
}

func TestCurrentFunction(t *testing.T) {
	tree := buildTree(t)
	hosts, _ := tree.FindChild(tree.Root(), "hosts", "")
	entries := tree.Children(hosts)
	v := evalExpr(t, tree, entries[1], "current()/name")
	if got := v.ToString(); got != "r2" {
		t.Fatalf("expected r2, got %q", got)
	}
}
