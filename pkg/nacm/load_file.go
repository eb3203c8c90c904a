package nacm

import (
	"fmt"
	"os"

	"github.com/beevik/etree"

	"github.com/ncxd/confd/pkg/yang"
)

// LoadFromFile builds an Engine from an external NACM configuration file
// (spec.md §6 external-file mode), whose root element is <nacm> with the
// same child structure as the inline ietf-netconf-acm subtree
// LoadFromTree reads.
func LoadFromFile(path string, schema *yang.Schema) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("nacm: reading %s: %w", path, err)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("nacm: parsing %s: %w", path, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "nacm" {
		return nil, fmt.Errorf("nacm: %s: expected root element <nacm>", path)
	}

	e := &Engine{
		Schema:       schema,
		Enabled:      true,
		ReadDefault:  Permit,
		WriteDefault: Deny,
		ExecDefault:  Permit,
		Groups:       map[string][]string{},
	}

	if el := root.SelectElement("enable-nacm"); el != nil {
		e.Enabled = el.Text() != "false"
	}
	if el := root.SelectElement("read-default"); el != nil {
		e.ReadDefault = parseDecision(el.Text(), e.ReadDefault)
	}
	if el := root.SelectElement("write-default"); el != nil {
		e.WriteDefault = parseDecision(el.Text(), e.WriteDefault)
	}
	if el := root.SelectElement("exec-default"); el != nil {
		e.ExecDefault = parseDecision(el.Text(), e.ExecDefault)
	}

	if groups := root.SelectElement("groups"); groups != nil {
		for _, g := range groups.SelectElements("group") {
			name := elementText(g, "name")
			var members []string
			for _, u := range g.SelectElements("user-name") {
				members = append(members, u.Text())
			}
			e.Groups[name] = members
		}
	}

	for _, rln := range root.SelectElements("rule-list") {
		rl := RuleList{Name: elementText(rln, "name")}
		for _, g := range rln.SelectElements("group") {
			rl.Groups = append(rl.Groups, g.Text())
		}
		for _, rn := range rln.SelectElements("rule") {
			rl.Rules = append(rl.Rules, ruleFromElement(rn))
		}
		e.RuleLists = append(e.RuleLists, rl)
	}

	return e, nil
}

func ruleFromElement(rn *etree.Element) Rule {
	r := Rule{Name: elementText(rn, "name")}
	if module := rn.SelectElement("module-name"); module != nil {
		r.Module = module.Text()
	} else {
		r.Module = "*"
	}
	r.RPCName = elementText(rn, "rpc-name")
	r.NotificationName = elementText(rn, "notification-name")
	r.Path = elementText(rn, "path")
	if ops := rn.SelectElement("access-operations"); ops != nil {
		r.Access = parseAccessOps(ops.Text())
	} else {
		r.Access = accessOpsAll
	}
	if action := rn.SelectElement("action"); action != nil {
		r.Action = parseDecision(action.Text(), Deny)
	}
	return r
}

func elementText(parent *etree.Element, name string) string {
	el := parent.SelectElement(name)
	if el == nil {
		return ""
	}
	return el.Text()
}
