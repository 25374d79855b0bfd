package resolve

import "fmt"

// Mode selects how far an analysis goes.
type Mode int

const (
	// TopLevelDeclarations stops after signatures: bodies, initializers
	// and implicit types are never resolved.
	TopLevelDeclarations Mode = iota
	// Full also resolves executable code.
	Full
)

func (m Mode) String() string {
	switch m {
	case TopLevelDeclarations:
		return "top-level"
	case Full:
		return "full"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode accepts "top-level" or "full".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "top-level", "toplevel", "top-level-declarations":
		return TopLevelDeclarations, nil
	case "full", "":
		return Full, nil
	}
	return 0, fmt.Errorf("unknown analysis mode %q", s)
}

// State is the analyzer's position in its pass sequence.
type State int

const (
	NotStarted State = iota
	DeclarationsCollected
	SignaturesResolved
	BodiesResolved
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case DeclarationsCollected:
		return "DeclarationsCollected"
	case SignaturesResolved:
		return "SignaturesResolved"
	case BodiesResolved:
		return "BodiesResolved"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}
