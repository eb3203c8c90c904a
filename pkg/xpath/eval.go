package xpath

import (
	"fmt"

	"github.com/ncxd/confd/pkg/objtree"
)

// PrefixResolver resolves a YANG module prefix used in a NodeTest or a
// function argument (e.g. "derived-from(., 'pfx:identity')") to the
// owning module's namespace URI, the way goyang resolves import prefixes
// at schema-load time (spec.md §4.B). It is supplied by the caller
// (pkg/validate), which alone knows which module an expression's prefixes
// are declared against.
type PrefixResolver func(prefix string) (namespace string, ok bool)

// IdentityResolver answers the derived-from family of YANG extension
// functions (RFC 7950 §10.4.2/§10.4.3) without this package importing
// pkg/yang directly, keeping the evaluator's only hard dependency on
// pkg/objtree.
type IdentityResolver interface {
	IdentityDerivedFrom(identity, base string) bool
}

// Context carries everything an XPath evaluation needs: the tree being
// evaluated over, the context node and its position/size within the
// current node-set (XPath 1.0 §2.3.1), the `current()` node (RFC 7950
// §10.1.1, fixed at the outermost evaluation and unchanged by nested
// steps/predicates), and the two YANG-specific resolvers above.
type Context struct {
	Tree       *objtree.Tree
	Node       objtree.Index
	Current    objtree.Index
	Pos, Size  int
	Resolver   PrefixResolver
	Identities IdentityResolver
	Deref      DerefResolver
}

func (c *Context) child(node objtree.Index, pos, size int) *Context {
	cp := *c
	cp.Node, cp.Pos, cp.Size = node, pos, size
	return &cp
}

// Eval evaluates expr against ctx, returning its XPath 1.0 value.
func Eval(expr Expr, ctx *Context) (Value, error) {
	switch e := expr.(type) {
	case PathExpr:
		nodes, err := evalPath(e, ctx)
		if err != nil {
			return Value{}, err
		}
		return NodeSetValue(ctx.Tree, nodes), nil
	case PathFromFilter:
		base, err := Eval(e.Base, ctx)
		if err != nil {
			return Value{}, err
		}
		if base.Kind != KindNodeSet {
			return Value{}, fmt.Errorf("xpath: path step applied to non-node-set")
		}
		out := []objtree.Index{}
		for _, n := range base.Nodes {
			sub, err := evalSteps(e.Steps, ctx, []objtree.Index{n})
			if err != nil {
				return Value{}, err
			}
			out = append(out, sub...)
		}
		return NodeSetValue(ctx.Tree, dedupe(out)), nil
	case FilterExpr:
		base, err := Eval(e.Base, ctx)
		if err != nil {
			return Value{}, err
		}
		if base.Kind != KindNodeSet {
			return base, nil
		}
		nodes, err := applyPredicates(e.Predicates, ctx, base.Nodes)
		if err != nil {
			return Value{}, err
		}
		return NodeSetValue(ctx.Tree, nodes), nil
	case NumberLit:
		return NumberValue(float64(e)), nil
	case StringLit:
		return StringValue(string(e)), nil
	case VarRef:
		return Value{}, fmt.Errorf("xpath: variable reference $%s is not supported", e.Name)
	case FuncCall:
		return evalFunc(e, ctx)
	case UnaryMinus:
		x, err := Eval(e.X, ctx)
		if err != nil {
			return Value{}, err
		}
		return NumberValue(-x.ToNumber()), nil
	case BinaryExpr:
		return evalBinary(e, ctx)
	}
	return Value{}, fmt.Errorf("xpath: unhandled expression type %T", expr)
}

func evalBinary(e BinaryExpr, ctx *Context) (Value, error) {
	switch e.Op {
	case "or":
		l, err := Eval(e.Left, ctx)
		if err != nil {
			return Value{}, err
		}
		if l.ToBool() {
			return BoolValue(true), nil
		}
		r, err := Eval(e.Right, ctx)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(r.ToBool()), nil
	case "and":
		l, err := Eval(e.Left, ctx)
		if err != nil {
			return Value{}, err
		}
		if !l.ToBool() {
			return BoolValue(false), nil
		}
		r, err := Eval(e.Right, ctx)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(r.ToBool()), nil
	case "|":
		l, err := Eval(e.Left, ctx)
		if err != nil {
			return Value{}, err
		}
		r, err := Eval(e.Right, ctx)
		if err != nil {
			return Value{}, err
		}
		return NodeSetValue(ctx.Tree, dedupe(append(append([]objtree.Index{}, l.Nodes...), r.Nodes...))), nil
	}

	l, err := Eval(e.Left, ctx)
	if err != nil {
		return Value{}, err
	}
	r, err := Eval(e.Right, ctx)
	if err != nil {
		return Value{}, err
	}

	switch e.Op {
	case "=", "!=":
		eq := valuesEqual(l, r, ctx)
		if e.Op == "!=" {
			return BoolValue(!eq), nil
		}
		return BoolValue(eq), nil
	case "<", "<=", ">", ">=":
		return BoolValue(compareNumbers(l.ToNumber(), r.ToNumber(), e.Op)), nil
	case "+":
		return NumberValue(l.ToNumber() + r.ToNumber()), nil
	case "-":
		return NumberValue(l.ToNumber() - r.ToNumber()), nil
	case "*":
		return NumberValue(l.ToNumber() * r.ToNumber()), nil
	case "div":
		return NumberValue(l.ToNumber() / r.ToNumber()), nil
	case "mod":
		lm, rm := l.ToNumber(), r.ToNumber()
		return NumberValue(float64(int64(lm) % int64(rm))), nil
	}
	return Value{}, fmt.Errorf("xpath: unknown operator %q", e.Op)
}

func compareNumbers(l, r float64, op string) bool {
	switch op {
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	case ">=":
		return l >= r
	}
	return false
}

// valuesEqual implements XPath 1.0 §3.4's equality rules: node-set
// comparisons check for any matching string-value pair; otherwise both
// sides coerce to the type of whichever side is not a node-set (boolean
// beats number beats string, in the order XPath lists).
func valuesEqual(l, r Value, ctx *Context) bool {
	if l.Kind == KindNodeSet && r.Kind == KindNodeSet {
		for _, a := range l.Nodes {
			for _, b := range r.Nodes {
				if stringValueOf(ctx.Tree, a) == stringValueOf(ctx.Tree, b) {
					return true
				}
			}
		}
		return false
	}
	if l.Kind == KindNodeSet || r.Kind == KindNodeSet {
		ns, other := l, r
		if r.Kind == KindNodeSet {
			ns, other = r, l
		}
		if other.Kind == KindBool {
			return ns.ToBool() == other.ToBool()
		}
		for _, n := range ns.Nodes {
			sv := stringValueOf(ctx.Tree, n)
			switch other.Kind {
			case KindNumber:
				if stringToNumber(sv) == other.Num {
					return true
				}
			default:
				if sv == other.ToString() {
					return true
				}
			}
		}
		return false
	}
	if l.Kind == KindBool || r.Kind == KindBool {
		return l.ToBool() == r.ToBool()
	}
	if l.Kind == KindNumber || r.Kind == KindNumber {
		return l.ToNumber() == r.ToNumber()
	}
	return l.ToString() == r.ToString()
}

func dedupe(idx []objtree.Index) []objtree.Index {
	seen := map[objtree.Index]bool{}
	out := idx[:0]
	for _, i := range idx {
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
	}
	return out
}
