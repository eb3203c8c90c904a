package nacm

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ncxd/confd/pkg/objtree"
)

func buildDataTree(t *testing.T) (*objtree.Tree, objtree.Index, objtree.Index) {
	t.Helper()
	tree := objtree.NewTree("config", "urn:test", nil)
	hosts := tree.Create(objtree.KindContainer, "hosts", "urn:test", nil)
	if err := tree.AddChild(tree.Root(), hosts, nil); err != nil {
		t.Fatalf("AddChild(hosts): %v", err)
	}
	entry := tree.Create(objtree.KindListEntry, "host", "urn:test", nil)
	if err := tree.AddChild(hosts, entry, nil); err != nil {
		t.Fatalf("AddChild(host): %v", err)
	}
	name := tree.Create(objtree.KindLeaf, "name", "urn:test", nil)
	tree.SetBody(name, "r1")
	if err := tree.AddChild(entry, name, nil); err != nil {
		t.Fatalf("AddChild(name): %v", err)
	}
	secret := tree.Create(objtree.KindLeaf, "secret", "urn:test", nil)
	tree.SetBody(secret, "hunter2")
	if err := tree.AddChild(entry, secret, nil); err != nil {
		t.Fatalf("AddChild(secret): %v", err)
	}
	return tree, hosts, entry
}

func TestCheckDataDisabledPermitsEverything(t *testing.T) {
	e := &Engine{Enabled: false}
	tree, _, entry := buildDataTree(t)
	if d := e.CheckData(context.Background(), "alice", nil, OpRead, tree, entry); d != Permit {
		t.Fatalf("expected Permit when NACM disabled, got %v", d)
	}
}

func TestCheckDataRecoveryUserBypasses(t *testing.T) {
	e := &Engine{Enabled: true, RecoveryUser: "root", WriteDefault: Deny}
	tree, _, entry := buildDataTree(t)
	if d := e.CheckData(context.Background(), "root", nil, OpUpdate, tree, entry); d != Permit {
		t.Fatalf("expected Permit for recovery user, got %v", d)
	}
}

func TestCheckDataDenyWriteFallsThroughToDefault(t *testing.T) {
	e := &Engine{Enabled: true, WriteDefault: Deny, ReadDefault: Permit}
	tree, _, entry := buildDataTree(t)
	if d := e.CheckData(context.Background(), "guest", []string{"guest"}, OpUpdate, tree, entry); d != Deny {
		t.Fatalf("expected Deny from write-default, got %v", d)
	}
}

func TestCheckDataFirstMatchingRuleWins(t *testing.T) {
	e := &Engine{
		Enabled: true, WriteDefault: Deny, ReadDefault: Permit,
		RuleLists: []RuleList{
			{
				Name:   "admin-rules",
				Groups: []string{"admin"},
				Rules: []Rule{
					{Name: "allow-all", Module: "*", Access: accessOpsAll, Action: Permit},
				},
			},
		},
	}
	tree, _, entry := buildDataTree(t)
	if d := e.CheckData(context.Background(), "alice", []string{"admin"}, OpUpdate, tree, entry); d != Permit {
		t.Fatalf("expected Permit via matching rule, got %v", d)
	}
	if d := e.CheckData(context.Background(), "bob", []string{"guest"}, OpUpdate, tree, entry); d != Deny {
		t.Fatalf("expected Deny for a group with no matching rule-list, got %v", d)
	}
}

func TestCheckDataPathScopedRule(t *testing.T) {
	e := &Engine{
		Enabled: true, WriteDefault: Deny, ReadDefault: Permit,
		RuleLists: []RuleList{
			{
				Name:   "limited",
				Groups: []string{"limited"},
				Rules: []Rule{
					{Name: "deny-secret", Module: "*", Path: "//secret", Access: accessOpsAll, Action: Deny},
					{Name: "allow-rest", Module: "*", Access: accessOpsAll, Action: Permit},
				},
			},
		},
	}
	tree, _, entry := buildDataTree(t)
	secret, _ := tree.FindChild(entry, "secret", "")
	name, _ := tree.FindChild(entry, "name", "")

	if d := e.CheckData(context.Background(), "carl", []string{"limited"}, OpRead, tree, secret); d != Deny {
		t.Fatalf("expected Deny for secret leaf, got %v", d)
	}
	if d := e.CheckData(context.Background(), "carl", []string{"limited"}, OpRead, tree, name); d != Permit {
		t.Fatalf("expected Permit for name leaf, got %v", d)
	}
}

func TestCheckRPCCloseSessionAlwaysPermitted(t *testing.T) {
	e := &Engine{Enabled: true, ExecDefault: Deny}
	if d := e.CheckRPC(context.Background(), "anyone", nil, "ietf-netconf", "close-session"); d != Permit {
		t.Fatalf("expected close-session emergency bypass, got %v", d)
	}
}

func TestCheckRPCDeniedRPCFallsBackToExecDefault(t *testing.T) {
	e := &Engine{Enabled: true, ExecDefault: Deny}
	if d := e.CheckRPC(context.Background(), "guest", []string{"guest"}, "ietf-netconf", "kill-session"); d != Deny {
		t.Fatalf("expected Deny from exec-default, got %v", d)
	}
}

func TestFilterReadPrunesDeniedSubtreesSilently(t *testing.T) {
	e := &Engine{
		Enabled: true, ReadDefault: Permit,
		RuleLists: []RuleList{
			{
				Name:   "limited",
				Groups: []string{"limited"},
				Rules: []Rule{
					{Name: "deny-secret", Module: "*", Path: "//secret", Access: accessOpsAll, Action: Deny},
				},
			},
		},
	}
	tree, _, entry := buildDataTree(t)
	filtered := e.FilterRead(context.Background(), "carl", []string{"limited"}, tree)

	filteredEntry, ok := filtered.FindChild(filtered.Root(), "hosts", "")
	if !ok {
		t.Fatal("expected hosts container to survive filtering")
	}
	filteredEntry, ok = filtered.FindChild(filteredEntry, "host", "")
	if !ok {
		t.Fatal("expected host entry to survive filtering")
	}
	if _, ok := filtered.FindChild(filteredEntry, "secret", ""); ok {
		t.Fatal("expected secret leaf to be pruned")
	}
	if _, ok := filtered.FindChild(filteredEntry, "name", ""); !ok {
		t.Fatal("expected name leaf to survive")
	}

	// the original tree must be untouched
	if _, ok := tree.FindChild(entry, "secret", ""); !ok {
		t.Fatal("FilterRead must not mutate the source tree")
	}
}

const nacmFixtureXML = `<nacm>
  <enable-nacm>true</enable-nacm>
  <read-default>permit</read-default>
  <write-default>deny</write-default>
  <exec-default>deny</exec-default>
  <groups>
    <group>
      <name>admin</name>
      <user-name>alice</user-name>
    </group>
  </groups>
  <rule-list>
    <name>admin-acl</name>
    <group>admin</group>
    <rule>
      <name>allow-all</name>
      <module-name>*</module-name>
      <access-operations>*</access-operations>
      <action>permit</action>
    </rule>
  </rule-list>
</nacm>
`

func TestLoadFromFileParsesGroupsAndRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nacm.xml")
	if err := os.WriteFile(path, []byte(nacmFixtureXML), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	e, err := LoadFromFile(path, nil)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if !e.Enabled {
		t.Fatal("expected enable-nacm true")
	}
	if e.WriteDefault != Deny || e.ExecDefault != Deny || e.ReadDefault != Permit {
		t.Fatalf("unexpected defaults: read=%v write=%v exec=%v", e.ReadDefault, e.WriteDefault, e.ExecDefault)
	}
	if got := e.GroupsForUser("alice"); len(got) != 1 || got[0] != "admin" {
		t.Fatalf("expected alice in admin group, got %v", got)
	}
	if len(e.RuleLists) != 1 || len(e.RuleLists[0].Rules) != 1 {
		t.Fatalf("expected one rule-list with one rule, got %+v", e.RuleLists)
	}

	tree, _, entry := buildDataTree(t)
	if d := e.CheckData(context.Background(), "alice", []string{"admin"}, OpUpdate, tree, entry); d != Permit {
		t.Fatalf("expected Permit via loaded rule, got %v", d)
	}
}

func TestLoadFromTreeDisabledWhenNoNacmSubtree(t *testing.T) {
	tree := objtree.NewTree("config", "urn:test", nil)
	e, err := LoadFromTree(tree, nil)
	if err != nil {
		t.Fatalf("LoadFromTree: %v", err)
	}
	if e.Enabled {
		t.Fatal("expected NACM disabled with no <nacm> subtree present")
	}
}

func TestLoadFromTreeParsesInlineConfiguration(t *testing.T) {
	tree := objtree.NewTree("config", "urn:test", nil)
	nacmNode := tree.Create(objtree.KindContainer, "nacm", Namespace, nil)
	if err := tree.AddChild(tree.Root(), nacmNode, nil); err != nil {
		t.Fatalf("AddChild(nacm): %v", err)
	}
	addLeaf := func(parent objtree.Index, name, body string) objtree.Index {
		l := tree.Create(objtree.KindLeaf, name, Namespace, nil)
		tree.SetBody(l, body)
		if err := tree.AddChild(parent, l, nil); err != nil {
			t.Fatalf("AddChild(%s): %v", name, err)
		}
		return l
	}
	addLeaf(nacmNode, "enable-nacm", "true")
	addLeaf(nacmNode, "write-default", "deny")

	rl := tree.Create(objtree.KindListEntry, "rule-list", Namespace, nil)
	if err := tree.AddChild(nacmNode, rl, nil); err != nil {
		t.Fatalf("AddChild(rule-list): %v", err)
	}
	addLeaf(rl, "name", "admin-acl")
	addLeaf(rl, "group", "admin")

	rule := tree.Create(objtree.KindListEntry, "rule", Namespace, nil)
	if err := tree.AddChild(rl, rule, nil); err != nil {
		t.Fatalf("AddChild(rule): %v", err)
	}
	addLeaf(rule, "name", "allow-all")
	addLeaf(rule, "module-name", "*")
	addLeaf(rule, "access-operations", "*")
	addLeaf(rule, "action", "permit")

	e, err := LoadFromTree(tree, nil)
	if err != nil {
		t.Fatalf("LoadFromTree: %v", err)
	}
	if !e.Enabled || e.WriteDefault != Deny {
		t.Fatalf("unexpected parsed config: enabled=%v write=%v", e.Enabled, e.WriteDefault)
	}
	if len(e.RuleLists) != 1 || len(e.RuleLists[0].Rules) != 1 {
		t.Fatalf("expected one rule-list with one rule, got %+v", e.RuleLists)
	}

	dataTree, _, entry := buildDataTree(t)
	if d := e.CheckData(context.Background(), "alice", []string{"admin"}, OpUpdate, dataTree, entry); d != Permit {
		t.Fatalf("expected Permit via inline-loaded rule, got %v", d)
	}
}
