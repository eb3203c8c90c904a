package engine

// Session identifies the caller of a top-level operation: the NETCONF
// session or RESTCONF request identity a front-end resolves before
// calling into the engine, carrying the user name and group membership
// NACM's checks are evaluated against (spec.md §4.G).
type Session struct {
	ID     string
	User   string
	Groups []string
}
