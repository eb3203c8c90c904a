package xpath

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ncxd/confd/pkg/objtree"
)

// ValueKind tags which of Value's fields is meaningful, mirroring
// XPath 1.0's four data types (node-set, boolean, number, string).
type ValueKind int

const (
	KindNodeSet ValueKind = iota
	KindBool
	KindNumber
	KindString
)

// Value is a tagged union over the four XPath 1.0 data types. A node-set
// Value carries the Tree its indices belong to, so ToString/ToNumber can
// compute a node's string-value without every caller threading a
// *Context through.
type Value struct {
	Kind  ValueKind
	Nodes []objtree.Index
	Tree  *objtree.Tree
	Bool  bool
	Num   float64
	Str   string
}

// NodeSetValue wraps nodes (belonging to tree) as a node-set Value.
func NodeSetValue(tree *objtree.Tree, nodes []objtree.Index) Value {
	return Value{Kind: KindNodeSet, Nodes: nodes, Tree: tree}
}
func BoolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func StringValue(s string) Value  { return Value{Kind: KindString, Str: s} }

// ToBool converts v to a boolean per XPath 1.0 §4.3.
func (v Value) ToBool() bool {
	switch v.Kind {
	case KindNodeSet:
		return len(v.Nodes) > 0
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num != 0 && !isNaN(v.Num)
	case KindString:
		return v.Str != ""
	}
	return false
}

// ToNumber converts v to a number per XPath 1.0 §4.4.
func (v Value) ToNumber() float64 {
	switch v.Kind {
	case KindNodeSet:
		return stringToNumber(v.ToString())
	case KindBool:
		if v.Bool {
			return 1
		}
		return 0
	case KindNumber:
		return v.Num
	case KindString:
		return stringToNumber(v.Str)
	}
	return nan()
}

func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nan()
	}
	return f
}

// ToString converts v to a string per XPath 1.0 §4.2. The variadic ctx
// argument is accepted for call-site symmetry with ToBool/ToNumber but is
// no longer required for node-sets, which carry their own Tree.
func (v Value) ToString(_ ...*Context) string {
	switch v.Kind {
	case KindNodeSet:
		if len(v.Nodes) > 0 && v.Tree != nil {
			return stringValueOf(v.Tree, v.Nodes[0])
		}
		return ""
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindNumber:
		return numberToString(v.Num)
	case KindString:
		return v.Str
	}
	return ""
}

func numberToString(n float64) string {
	if isNaN(n) {
		return "NaN"
	}
	if n == 0 {
		return "0"
	}
	if n == float64(int64(n)) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func isNaN(f float64) bool { return f != f }

// stringValueOf implements XPath 1.0's string-value of a node: a leaf's
// body, or the concatenation (in document order) of all descendant text
// for a container/list-entry.
func stringValueOf(t *objtree.Tree, i objtree.Index) string {
	switch t.Kind(i) {
	case objtree.KindLeaf, objtree.KindLeafListEntry:
		return t.Body(i)
	default:
		var sb strings.Builder
		t.Walk(i, func(t *objtree.Tree, n objtree.Index, depth int) (bool, error) {
			if t.Kind(n) == objtree.KindLeaf || t.Kind(n) == objtree.KindLeafListEntry {
				sb.WriteString(t.Body(n))
			}
			return true, nil
		})
		return sb.String()
	}
}

func (v Value) String() string {
	return fmt.Sprintf("Value{kind=%d bool=%v num=%v str=%q nodes=%d}", v.Kind, v.Bool, v.Num, v.Str, len(v.Nodes))
}
