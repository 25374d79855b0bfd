// Package lookup records which declaration lookups an analysis performed.
// Incremental builds use the records to decide which files to re-analyse
// when a declaration changes.
package lookup

import "sync"

// Result is the outcome of a lookup.
type Result int

const (
	// Resolved means the name was found.
	Resolved Result = iota
	// Unresolved means no provider knew the name.
	Unresolved
	// Computed marks the one-time computation of a declaration's signature.
	// Name holds the declaration's fully-qualified name.
	Computed
)

func (r Result) String() string {
	switch r {
	case Resolved:
		return "resolved"
	case Unresolved:
		return "unresolved"
	case Computed:
		return "computed"
	}
	return "unknown"
}

// ScopeKind says what kind of scope a name was looked up in.
type ScopeKind string

const (
	ScopePackage     ScopeKind = "package"
	ScopeClass       ScopeKind = "class"
	ScopeFile        ScopeKind = "file"
	ScopeDeclaration ScopeKind = "declaration"
)

// Lookup is one recorded event.
type Lookup struct {
	File      string    `json:"file"`
	Line      int       `json:"line"`
	Col       int       `json:"col"`
	Scope     string    `json:"scope"`
	ScopeKind ScopeKind `json:"scope_kind"`
	Name      string    `json:"name"`
	Result    Result    `json:"result"`
}

// Tracker is a sink for lookup events.
type Tracker interface {
	Record(l Lookup)
}

type doNothing struct{}

func (doNothing) Record(Lookup) {}

// DoNothing discards every event. It is the default tracker.
var DoNothing Tracker = doNothing{}

// Recorder keeps events in memory. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	lookups []Lookup
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Record(l Lookup) {
	r.mu.Lock()
	r.lookups = append(r.lookups, l)
	r.mu.Unlock()
}

// Lookups returns a copy of every recorded event in arrival order.
func (r *Recorder) Lookups() []Lookup {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Lookup, len(r.lookups))
	copy(out, r.lookups)
	return out
}

// Computations counts computation events for the fully-qualified name fq.
func (r *Recorder) Computations(fq string) int {
	return r.count(func(l Lookup) bool { return l.Result == Computed && l.Name == fq })
}

// Reads counts resolved lookups of name.
func (r *Recorder) Reads(name string) int {
	return r.count(func(l Lookup) bool { return l.Result == Resolved && l.Name == name })
}

// Unresolved returns the failed lookups.
func (r *Recorder) Unresolved() []Lookup {
	var out []Lookup
	for _, l := range r.Lookups() {
		if l.Result == Unresolved {
			out = append(out, l)
		}
	}
	return out
}

func (r *Recorder) count(match func(Lookup) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, l := range r.lookups {
		if match(l) {
			n++
		}
	}
	return n
}

// Multi fans events out to several trackers in order.
type Multi []Tracker

func (m Multi) Record(l Lookup) {
	for _, t := range m {
		if t != nil {
			t.Record(l)
		}
	}
}

var (
	_ Tracker = (*Recorder)(nil)
	_ Tracker = Multi(nil)
)
