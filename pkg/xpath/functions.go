package xpath

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/ncxd/confd/pkg/objtree"
)

// DerefResolver follows a leafref/instance-identifier value to the
// instance node it designates (RFC 7950 §10.1.2's deref()); schema-aware
// resolution is pkg/validate's job, so this is supplied, not hard-wired.
type DerefResolver func(tree *objtree.Tree, node objtree.Index) (objtree.Index, bool)

func evalFunc(e FuncCall, ctx *Context) (Value, error) {
	args := e.Args
	switch e.Name {
	case "last":
		return NumberValue(float64(ctx.Size)), nil
	case "position":
		return NumberValue(float64(ctx.Pos)), nil
	case "count":
		ns, err := evalNodeSetArg(args, ctx, 0)
		if err != nil {
			return Value{}, err
		}
		return NumberValue(float64(len(ns))), nil
	case "local-name", "name":
		n := ctx.Node
		if len(args) > 0 {
			ns, err := evalNodeSetArg(args, ctx, 0)
			if err != nil {
				return Value{}, err
			}
			if len(ns) == 0 {
				return StringValue(""), nil
			}
			n = ns[0]
		}
		return StringValue(ctx.Tree.Name(n)), nil
	case "namespace-uri":
		n := ctx.Node
		if len(args) > 0 {
			ns, err := evalNodeSetArg(args, ctx, 0)
			if err != nil {
				return Value{}, err
			}
			if len(ns) == 0 {
				return StringValue(""), nil
			}
			n = ns[0]
		}
		return StringValue(ctx.Tree.Namespace(n)), nil
	case "string":
		if len(args) == 0 {
			return StringValue(stringValueOf(ctx.Tree, ctx.Node)), nil
		}
		v, err := Eval(args[0], ctx)
		if err != nil {
			return Value{}, err
		}
		return StringValue(v.ToString(ctx)), nil
	case "concat":
		var sb strings.Builder
		for _, a := range args {
			v, err := Eval(a, ctx)
			if err != nil {
				return Value{}, err
			}
			sb.WriteString(v.ToString(ctx))
		}
		return StringValue(sb.String()), nil
	case "starts-with":
		a, b, err := twoStrings(args, ctx)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(strings.HasPrefix(a, b)), nil
	case "contains":
		a, b, err := twoStrings(args, ctx)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(strings.Contains(a, b)), nil
	case "substring-before":
		a, b, err := twoStrings(args, ctx)
		if err != nil {
			return Value{}, err
		}
		if i := strings.Index(a, b); i >= 0 {
			return StringValue(a[:i]), nil
		}
		return StringValue(""), nil
	case "substring-after":
		a, b, err := twoStrings(args, ctx)
		if err != nil {
			return Value{}, err
		}
		if i := strings.Index(a, b); i >= 0 {
			return StringValue(a[i+len(b):]), nil
		}
		return StringValue(""), nil
	case "substring":
		return evalSubstring(args, ctx)
	case "string-length":
		s := stringValueOf(ctx.Tree, ctx.Node)
		if len(args) > 0 {
			v, err := Eval(args[0], ctx)
			if err != nil {
				return Value{}, err
			}
			s = v.ToString(ctx)
		}
		return NumberValue(float64(len([]rune(s)))), nil
	case "normalize-space":
		s := stringValueOf(ctx.Tree, ctx.Node)
		if len(args) > 0 {
			v, err := Eval(args[0], ctx)
			if err != nil {
				return Value{}, err
			}
			s = v.ToString(ctx)
		}
		return StringValue(strings.Join(strings.Fields(s), " ")), nil
	case "translate":
		return evalTranslate(args, ctx)
	case "boolean":
		v, err := Eval(args[0], ctx)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(v.ToBool()), nil
	case "not":
		v, err := Eval(args[0], ctx)
		if err != nil {
			return Value{}, err
		}
		return BoolValue(!v.ToBool()), nil
	case "true":
		return BoolValue(true), nil
	case "false":
		return BoolValue(false), nil
	case "number":
		if len(args) == 0 {
			return NumberValue(stringToNumber(stringValueOf(ctx.Tree, ctx.Node))), nil
		}
		v, err := Eval(args[0], ctx)
		if err != nil {
			return Value{}, err
		}
		return NumberValue(v.ToNumber()), nil
	case "sum":
		ns, err := evalNodeSetArg(args, ctx, 0)
		if err != nil {
			return Value{}, err
		}
		var total float64
		for _, n := range ns {
			total += stringToNumber(stringValueOf(ctx.Tree, n))
		}
		return NumberValue(total), nil
	case "floor":
		v, err := Eval(args[0], ctx)
		if err != nil {
			return Value{}, err
		}
		return NumberValue(math.Floor(v.ToNumber())), nil
	case "ceiling":
		v, err := Eval(args[0], ctx)
		if err != nil {
			return Value{}, err
		}
		return NumberValue(math.Ceil(v.ToNumber())), nil
	case "round":
		v, err := Eval(args[0], ctx)
		if err != nil {
			return Value{}, err
		}
		return NumberValue(math.Round(v.ToNumber())), nil

	// YANG extension functions, RFC 7950 §10.
	case "current":
		return NodeSetValue(ctx.Tree, []objtree.Index{ctx.Current}), nil
	case "deref":
		ns, err := evalNodeSetArg(args, ctx, 0)
		if err != nil {
			return Value{}, err
		}
		if len(ns) == 0 || ctx.Deref == nil {
			return NodeSetValue(ctx.Tree, nil), nil
		}
		target, ok := ctx.Deref(ctx.Tree, ns[0])
		if !ok {
			return NodeSetValue(ctx.Tree, nil), nil
		}
		return NodeSetValue(ctx.Tree, []objtree.Index{target}), nil
	case "derived-from", "derived-from-or-self":
		ns, err := evalNodeSetArg(args, ctx, 0)
		if err != nil {
			return Value{}, err
		}
		baseVal, err := Eval(args[1], ctx)
		if err != nil {
			return Value{}, err
		}
		if len(ns) == 0 || ctx.Identities == nil {
			return BoolValue(false), nil
		}
		identity := stringValueOf(ctx.Tree, ns[0])
		base := baseVal.ToString(ctx)
		if e.Name == "derived-from-or-self" && identity == base {
			return BoolValue(true), nil
		}
		return BoolValue(ctx.Identities.IdentityDerivedFrom(identity, base)), nil
	case "enum-value":
		ns, err := evalNodeSetArg(args, ctx, 0)
		if err != nil {
			return Value{}, err
		}
		if len(ns) == 0 {
			return NumberValue(-1), nil
		}
		schema := ctx.Tree.Schema(ns[0])
		if schema == nil {
			return NumberValue(-1), nil
		}
		yt := schema.LeafType()
		if yt == nil || yt.Enum == nil {
			return NumberValue(-1), nil
		}
		if v, ok := yt.Enum.NameMap()[stringValueOf(ctx.Tree, ns[0])]; ok {
			return NumberValue(float64(v)), nil
		}
		return NumberValue(-1), nil
	case "bit-is-set":
		ns, err := evalNodeSetArg(args, ctx, 0)
		if err != nil {
			return Value{}, err
		}
		bitVal, err := Eval(args[1], ctx)
		if err != nil {
			return Value{}, err
		}
		if len(ns) == 0 {
			return BoolValue(false), nil
		}
		for _, bit := range strings.Fields(stringValueOf(ctx.Tree, ns[0])) {
			if bit == bitVal.ToString(ctx) {
				return BoolValue(true), nil
			}
		}
		return BoolValue(false), nil
	case "re-match":
		a, b, err := twoStrings(args, ctx)
		if err != nil {
			return Value{}, err
		}
		re, err := regexp.Compile("^(?:" + b + ")$")
		if err != nil {
			return BoolValue(false), nil
		}
		return BoolValue(re.MatchString(a)), nil
	}
	return Value{}, fmt.Errorf("xpath: unknown function %q", e.Name)
}

func evalNodeSetArg(args []Expr, ctx *Context, i int) ([]objtree.Index, error) {
	if i >= len(args) {
		return []objtree.Index{ctx.Node}, nil
	}
	v, err := Eval(args[i], ctx)
	if err != nil {
		return nil, err
	}
	if v.Kind != KindNodeSet {
		return nil, fmt.Errorf("xpath: expected node-set argument, got kind %d", v.Kind)
	}
	return v.Nodes, nil
}

func twoStrings(args []Expr, ctx *Context) (string, string, error) {
	a, err := Eval(args[0], ctx)
	if err != nil {
		return "", "", err
	}
	b, err := Eval(args[1], ctx)
	if err != nil {
		return "", "", err
	}
	return a.ToString(ctx), b.ToString(ctx), nil
}

func evalSubstring(args []Expr, ctx *Context) (Value, error) {
	sv, err := Eval(args[0], ctx)
	if err != nil {
		return Value{}, err
	}
	s := []rune(sv.ToString(ctx))
	startV, err := Eval(args[1], ctx)
	if err != nil {
		return Value{}, err
	}
	start := math.Round(startV.ToNumber())
	length := math.Inf(1)
	if len(args) > 2 {
		lenV, err := Eval(args[2], ctx)
		if err != nil {
			return Value{}, err
		}
		length = math.Round(lenV.ToNumber())
	}
	from := start
	to := start + length
	if from < 1 {
		from = 1
	}
	if to > float64(len(s))+1 {
		to = float64(len(s)) + 1
	}
	if to <= from || int(from) > len(s) {
		return StringValue(""), nil
	}
	return StringValue(string(s[int(from)-1 : int(to)-1])), nil
}

func evalTranslate(args []Expr, ctx *Context) (Value, error) {
	sv, err := Eval(args[0], ctx)
	if err != nil {
		return Value{}, err
	}
	fromV, err := Eval(args[1], ctx)
	if err != nil {
		return Value{}, err
	}
	toV, err := Eval(args[2], ctx)
	if err != nil {
		return Value{}, err
	}
	src := sv.ToString(ctx)
	from := []rune(fromV.ToString(ctx))
	to := []rune(toV.ToString(ctx))

	var sb strings.Builder
	for _, r := range src {
		idx := -1
		for i, f := range from {
			if f == r {
				idx = i
				break
			}
		}
		if idx == -1 {
			sb.WriteRune(r)
			continue
		}
		if idx < len(to) {
			sb.WriteRune(to[idx])
		}
		// idx >= len(to): character is deleted, per XPath 1.0 translate().
	}
	return StringValue(sb.String()), nil
}
