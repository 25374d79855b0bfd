package resolve

import (
	"fmt"
	"sort"

	"github.com/jward/topdown/internal/syntax"
)

// Code identifies the kind of a diagnostic.
type Code string

const (
	UnresolvedReference   Code = "UNRESOLVED_REFERENCE"
	CyclicInheritance     Code = "CYCLIC_INHERITANCE"
	Redeclaration         Code = "REDECLARATION"
	InvisibleReference    Code = "INVISIBLE_REFERENCE"
	TypeMismatch          Code = "TYPE_MISMATCH"
	ArgumentCountMismatch Code = "ARGUMENT_COUNT_MISMATCH"
	UnresolvedImport      Code = "UNRESOLVED_IMPORT"
	ParseError            Code = "PARSE_ERROR"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is a recoverable problem found during analysis.
type Diagnostic struct {
	Code     Code     `json:"code"`
	Severity Severity `json:"severity"`
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Col      int      `json:"col"`
	Message  string   `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: %s %s: %s", d.File, d.Line, d.Col, d.Severity, d.Code, d.Message)
}

func newDiagnostic(code Code, file *syntax.File, pos syntax.Pos, format string, args ...any) Diagnostic {
	d := Diagnostic{
		Code:     code,
		Severity: SeverityError,
		Line:     pos.Line,
		Col:      pos.Col,
		Message:  fmt.Sprintf(format, args...),
	}
	if file != nil {
		d.File = file.Path
	}
	return d
}

// SortDiagnostics orders diagnostics by file, position, code and message.
func SortDiagnostics(ds []Diagnostic) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Col != b.Col {
			return a.Col < b.Col
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Message < b.Message
	})
}

// HasErrors reports whether any diagnostic has error severity.
func HasErrors(ds []Diagnostic) bool {
	for _, d := range ds {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
