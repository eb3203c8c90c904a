package validate

import (
	"github.com/ncxd/confd/pkg/netconf"
	"github.com/ncxd/confd/pkg/objtree"
	"github.com/ncxd/confd/pkg/xpath"
	"github.com/ncxd/confd/pkg/yang"
)

// runReference implements spec.md §4.F stage 3: every leafref resolves to
// an existing instance, every instance-identifier resolves, and every
// identityref value derives from its declared base.
func (p *Pipeline) runReference(tree *objtree.Tree) *Result {
	res := &Result{Stage: StageReference}
	_ = tree.Walk(tree.Root(), func(t *objtree.Tree, i objtree.Index, depth int) (bool, error) {
		if t.Kind(i) != objtree.KindLeaf && t.Kind(i) != objtree.KindLeafListEntry {
			return true, nil
		}
		schema := t.Schema(i)
		if schema == nil {
			return true, nil
		}
		typ, err := p.Schema.ResolveType(schema)
		if err != nil {
			return true, nil
		}
		switch typ.Primitive {
		case "leafref":
			p.checkLeafref(res, t, i, schema)
		case "identityref":
			p.checkIdentityref(res, t, i, typ)
		case "instance-identifier":
			p.checkInstanceIdentifier(res, t, i)
		}
		return true, nil
	})
	return res
}

func (p *Pipeline) checkLeafref(res *Result, t *objtree.Tree, i objtree.Index, schema *yang.SchemaNode) {
	target, err := p.Schema.ResolveLeafref(schema)
	if err != nil {
		res.Errors = append(res.Errors, netconf.Wrap(netconf.ErrorTypeApplication, netconf.ErrorTagInvalidValue, err,
			"leafref %q does not resolve to a schema node", t.Name(i)).WithPath(t.Path(i)))
		return
	}
	value := t.Body(i)
	found := false
	_ = t.Walk(t.Root(), func(t *objtree.Tree, n objtree.Index, depth int) (bool, error) {
		if found {
			return false, nil
		}
		if t.Schema(n) == target && (t.Kind(n) == objtree.KindLeaf || t.Kind(n) == objtree.KindLeafListEntry) && t.Body(n) == value {
			found = true
		}
		return !found, nil
	})
	if !found {
		res.Errors = append(res.Errors, netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagDataMissing,
			"leafref %q value %q has no matching instance", t.Name(i), value).WithPath(t.Path(i)))
	}
}

func (p *Pipeline) checkIdentityref(res *Result, t *objtree.Tree, i objtree.Index, typ *yang.Type) {
	if typ.IdentityBase == "" {
		return
	}
	if !p.Schema.IdentityDerivedFrom(t.Body(i), typ.IdentityBase) {
		res.Errors = append(res.Errors, netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagInvalidValue,
			"identityref %q is not derived from base %q", t.Body(i), typ.IdentityBase).WithPath(t.Path(i)))
	}
}

// checkInstanceIdentifier resolves an instance-identifier leaf's body as
// an XPath absolute location path against the same tree, per RFC 7950
// §9.13.2 ("the XPath expression... evaluated in the context of... the
// document root of the accessible tree").
func (p *Pipeline) checkInstanceIdentifier(res *Result, t *objtree.Tree, i objtree.Index) {
	expr, err := xpath.Parse(t.Body(i))
	if err != nil {
		res.Errors = append(res.Errors, netconf.Wrap(netconf.ErrorTypeApplication, netconf.ErrorTagInvalidValue, err,
			"instance-identifier %q does not parse", t.Body(i)).WithPath(t.Path(i)))
		return
	}
	ctx := &xpath.Context{Tree: t, Node: t.Root(), Current: t.Root(), Pos: 1, Size: 1, Identities: p.Schema}
	val, err := xpath.Eval(expr, ctx)
	if err != nil || val.Kind != xpath.KindNodeSet || len(val.Nodes) == 0 {
		res.Errors = append(res.Errors, netconf.New(netconf.ErrorTypeApplication, netconf.ErrorTagDataMissing,
			"instance-identifier %q does not resolve", t.Body(i)).WithPath(t.Path(i)))
	}
}
