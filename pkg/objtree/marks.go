package objtree

// Mark is the transient per-instance state-diff tag spec.md §3's invariant
// (c) describes: "created/deleted/changed... zero outside the six-stage
// pipeline."
type Mark uint8

const (
	MarkNone Mark = iota
	MarkCreated
	MarkDeleted
	MarkChanged
)

func (m Mark) String() string {
	switch m {
	case MarkCreated:
		return "created"
	case MarkDeleted:
		return "deleted"
	case MarkChanged:
		return "changed"
	default:
		return "none"
	}
}

// MarkSet is a side-table of Index→Mark kept off the Tree itself, so that
// the invariant "marks are zero outside the pipeline" holds by
// construction: a Tree with no live MarkSet simply has no marks to
// violate it. pkg/validate owns the MarkSet for the duration of a single
// commit's diff/apply/notify cycle and discards it afterward.
type MarkSet struct {
	marks map[Index]Mark
}

// NewMarkSet returns an empty mark side-table.
func NewMarkSet() *MarkSet {
	return &MarkSet{marks: map[Index]Mark{}}
}

// Get returns i's mark, or MarkNone if unset.
func (s *MarkSet) Get(i Index) Mark {
	return s.marks[i]
}

// Set records i's mark.
func (s *MarkSet) Set(i Index, m Mark) {
	if m == MarkNone {
		delete(s.marks, i)
		return
	}
	s.marks[i] = m
}

// Clear empties the side-table, e.g. after a commit completes or aborts.
func (s *MarkSet) Clear() {
	s.marks = map[Index]Mark{}
}

// Marked returns every index carrying a non-zero mark. Order is
// unspecified; callers that need deterministic output should sort by
// Tree.Path.
func (s *MarkSet) Marked() []Index {
	out := make([]Index, 0, len(s.marks))
	for i := range s.marks {
		out = append(out, i)
	}
	return out
}
