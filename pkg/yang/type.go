package yang

import (
	"fmt"
	"strconv"
	"strings"

	goyang "github.com/openconfig/goyang/pkg/yang"
)

// Type is the primitive+facets pair spec.md §4.B's resolve_type returns.
// goyang already interns typedef chains onto YangType.Root (resolution
// step (5) of §4.B); this wraps that result in the shape this module's
// validators expect.
type Type struct {
	Primitive string // goyang base kind name, e.g. "string", "int32", "leafref", "identityref", "union"
	Range     goyang.YangRange
	Length    goyang.YangRange
	Pattern   []string
	Enum      *goyang.EnumType
	Default   string
	Union     []*Type
	LeafrefPath string
	IdentityBase string
}

// ResolveType implements the §4.B public contract: resolve_type(ref) →
// primitive+facets.
func (s *Schema) ResolveType(n *SchemaNode) (*Type, error) {
	yt := n.LeafType()
	if yt == nil {
		return nil, fmt.Errorf("resolve type: %q is not a leaf", n.Path())
	}
	return fromYangType(yt), nil
}

func fromYangType(yt *goyang.YangType) *Type {
	t := &Type{
		Primitive: yt.Kind.String(),
		Range:     yt.Range,
		Length:    yt.Length,
		Pattern:   yt.Pattern,
		Enum:      yt.Enum,
		Default:   yt.Default,
		LeafrefPath: yt.Path,
	}
	if yt.IdentityBase != nil {
		t.IdentityBase = yt.IdentityBase.PrefixedName()
	}
	for _, member := range yt.Type {
		t.Union = append(t.Union, fromYangType(member))
	}
	return t
}

// ValidateBody checks a leaf's textual body against this Type's facets,
// implementing spec.md §4.F stage 2: "each leaf body parses into its
// primitive and satisfies range/length/pattern/enum facets; union types
// use first-match semantics in declaration order."
func (t *Type) ValidateBody(body string) error {
	switch t.Primitive {
	case "union":
		var lastErr error
		for _, member := range t.Union {
			if err := member.ValidateBody(body); err == nil {
				return nil
			} else {
				lastErr = err
			}
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("empty union type")
		}
		return fmt.Errorf("no union member matched %q: %w", body, lastErr)
	case "enumeration":
		if t.Enum == nil {
			return nil
		}
		if !t.Enum.IsDefined(body) {
			return fmt.Errorf("%q is not a valid enum value", body)
		}
		return nil
	case "int8", "int16", "int32", "int64", "uint8", "uint16", "uint32", "uint64":
		n, err := strconv.ParseInt(body, 10, 64)
		if err != nil {
			if _, uerr := strconv.ParseUint(body, 10, 64); uerr != nil {
				return fmt.Errorf("%q is not an integer: %w", body, err)
			}
		}
		if len(t.Range) > 0 && !inRange(t.Range, float64(n)) {
			return fmt.Errorf("%q out of range", body)
		}
		return nil
	case "decimal64":
		f, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return fmt.Errorf("%q is not a decimal64: %w", body, err)
		}
		if len(t.Range) > 0 && !inRange(t.Range, f) {
			return fmt.Errorf("%q out of range", body)
		}
		return nil
	case "boolean":
		if body != "true" && body != "false" {
			return fmt.Errorf("%q is not a boolean", body)
		}
		return nil
	case "string", "":
		if len(t.Length) > 0 && !inRange(t.Length, float64(len(body))) {
			return fmt.Errorf("%q violates length facet", body)
		}
		for _, p := range t.Pattern {
			if err := matchPattern(p, body); err != nil {
				return err
			}
		}
		return nil
	default:
		// leafref/identityref/instance-identifier/binary/empty/bits and
		// anything else: syntactic validation only, reference-level
		// checks belong to pkg/validate stage 3, not type facets.
		return nil
	}
}

func numberToFloat(n goyang.Number) float64 {
	f := float64(n.Value)
	if n.FractionDigits > 0 {
		div := 1.0
		for i := uint8(0); i < n.FractionDigits; i++ {
			div *= 10
		}
		f /= div
	}
	if n.Negative {
		f = -f
	}
	return f
}

func inRange(r goyang.YangRange, v float64) bool {
	for _, part := range r {
		if v >= numberToFloat(part.Min) && v <= numberToFloat(part.Max) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, body string) error {
	re, err := compilePattern(pattern)
	if err != nil {
		return nil // an unsupported XSD regex construct should not fail validation outright
	}
	if !re.MatchString(body) {
		return fmt.Errorf("%q does not match pattern %q", body, pattern)
	}
	return nil
}

// compilePattern is the pattern compile step matchPattern uses; other
// packages reach it only through pattern facet checks in this package.
var compilePattern = func(pattern string) (regexpMatcher, error) {
	return newXSDRegexp(pattern)
}

type regexpMatcher interface {
	MatchString(string) bool
}

// newXSDRegexp anchors the XSD pattern (YANG patterns are implicitly
// full-string matches per RFC 7950 §9.4.6) and compiles it with
// compileRE2, returning RE2's compile error when the pattern uses XSD
// constructs RE2 rejects (matchPattern then accepts the body).
func newXSDRegexp(pattern string) (regexpMatcher, error) {
	anchored := pattern
	if !strings.HasPrefix(anchored, "^") {
		anchored = "^(?:" + anchored + ")$"
	}
	return compileRE2(anchored)
}
