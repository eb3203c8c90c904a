package objtree

import "testing"

func buildSimpleTree(t *testing.T, host1, host2 string) *Tree {
	t.Helper()
	tree := NewTree("config", "urn:test", nil)
	hosts := tree.Create(KindContainer, "hosts", "urn:test", nil)
	if err := tree.AddChild(tree.Root(), hosts, nil); err != nil {
		t.Fatalf("AddChild(hosts): %v", err)
	}

	for _, name := range []string{host1, host2} {
		if name == "" {
			continue
		}
		entry := tree.Create(KindListEntry, "host", "urn:test", nil)
		if err := tree.AddChild(hosts, entry, nil); err != nil {
			t.Fatalf("AddChild(host): %v", err)
		}
		nameLeaf := tree.Create(KindLeaf, "name", "urn:test", nil)
		tree.SetBody(nameLeaf, name)
		if err := tree.AddChild(entry, nameLeaf, nil); err != nil {
			t.Fatalf("AddChild(name): %v", err)
		}
	}
	return tree
}

func TestAddChildAndFindChild(t *testing.T) {
	tree := buildSimpleTree(t, "r1", "r2")
	hosts, ok := tree.FindChild(tree.Root(), "hosts", "")
	if !ok {
		t.Fatal("hosts child not found")
	}
	if got := len(tree.Children(hosts)); got != 2 {
		t.Fatalf("expected 2 host entries, got %d", got)
	}
}

func TestNamespaceInheritance(t *testing.T) {
	tree := NewTree("root", "urn:parent", nil)
	child := tree.Create(KindContainer, "child", "", nil)
	if err := tree.AddChild(tree.Root(), child, nil); err != nil {
		t.Fatalf("AddChild: %v", err)
	}
	if got := tree.Namespace(child); got != "urn:parent" {
		t.Fatalf("expected inherited namespace urn:parent, got %q", got)
	}
}

func TestRemoveFreesSubtree(t *testing.T) {
	tree := buildSimpleTree(t, "r1", "")
	hosts, _ := tree.FindChild(tree.Root(), "hosts", "")
	if err := tree.Remove(hosts); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, ok := tree.FindChild(tree.Root(), "hosts", ""); ok {
		t.Fatal("hosts should no longer be reachable from root")
	}
}

func TestCopyIsIndependent(t *testing.T) {
	tree := buildSimpleTree(t, "r1", "")
	hosts, _ := tree.FindChild(tree.Root(), "hosts", "")
	clone := tree.Copy(hosts)
	entry, _ := tree.FindChild(hosts, "host", "")
	nameLeaf, _ := tree.FindChild(entry, "name", "")
	tree.SetBody(nameLeaf, "changed")

	cloneEntry, _ := tree.FindChild(clone, "host", "")
	cloneNameLeaf, _ := tree.FindChild(cloneEntry, "name", "")
	if got := tree.Body(cloneNameLeaf); got != "r1" {
		t.Fatalf("clone should be independent of source edits, got body %q", got)
	}
}

func TestDiffMarksCreatedChangedDeleted(t *testing.T) {
	oldTree := buildSimpleTree(t, "r1", "r2")
	newTree := buildSimpleTree(t, "r1", "r3")

	// mutate r1's name leaf in newTree to exercise MarkChanged.
	hosts, _ := newTree.FindChild(newTree.Root(), "hosts", "")
	for _, entry := range newTree.Children(hosts) {
		nameLeaf, _ := newTree.FindChild(entry, "name", "")
		if newTree.Body(nameLeaf) == "r1" {
			newTree.SetBody(nameLeaf, "r1-renamed")
		}
	}

	merged, marks := Diff(oldTree, newTree)

	var created, deleted, changed int
	mergedHosts, ok := merged.FindChild(merged.Root(), "hosts", "")
	if !ok {
		t.Fatal("merged tree missing hosts")
	}
	for _, entry := range merged.Children(mergedHosts) {
		nameLeaf, _ := merged.FindChild(entry, "name", "")
		switch marks.Get(nameLeaf) {
		case MarkCreated:
			created++
		case MarkChanged:
			changed++
		}
		if marks.Get(entry) == MarkDeleted {
			deleted++
		}
	}
	if created != 1 {
		t.Errorf("expected 1 created name leaf (r3), got %d", created)
	}
	if changed != 1 {
		t.Errorf("expected 1 changed name leaf (r1->r1-renamed), got %d", changed)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted host entry (r2), got %d", deleted)
	}
}

func TestCanonicalChildrenPreservesInsertionForUserOrdered(t *testing.T) {
	tree := buildSimpleTree(t, "b-host", "a-host")
	hosts, _ := tree.FindChild(tree.Root(), "hosts", "")
	order := tree.CanonicalChildren(hosts)
	first, _ := tree.FindChild(order[0], "name", "")
	if got := tree.Body(first); got != "b-host" {
		t.Fatalf("user-ordered list should preserve insertion order, got first=%q", got)
	}
}
