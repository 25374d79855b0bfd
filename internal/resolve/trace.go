package resolve

import (
	"fmt"

	tderrors "github.com/jward/topdown/internal/errors"
	"github.com/jward/topdown/internal/symbols"
	"github.com/jward/topdown/internal/syntax"
)

// BindingTrace accumulates the results of one analysis: which descriptor
// each declaration produced, what each reference points to, the type of
// each expression, and diagnostics. Records are append-only. Recording a
// different value for a node that already has one is an
// internal-consistency failure.
type BindingTrace struct {
	declarations map[*syntax.Declaration]symbols.Descriptor
	references   map[syntax.Node]symbols.Descriptor
	types        map[syntax.Node]symbols.Type
	diagnostics  []Diagnostic
	frozen       bool
	onReport     func(Diagnostic)
}

func NewBindingTrace() *BindingTrace {
	return &BindingTrace{
		declarations: make(map[*syntax.Declaration]symbols.Descriptor),
		references:   make(map[syntax.Node]symbols.Descriptor),
		types:        make(map[syntax.Node]symbols.Type),
	}
}

// OnReport registers a hook called for every reported diagnostic.
func (t *BindingTrace) OnReport(fn func(Diagnostic)) {
	t.onReport = fn
}

func (t *BindingTrace) checkWritable(slice string, n syntax.Node) error {
	if t.frozen {
		return tderrors.AddContext(
			tderrors.Newf(tderrors.CodeInternal, "%s recorded after analysis completed", slice),
			tderrors.CtxNode, describeNode(n))
	}
	return nil
}

func conflict(slice string, n syntax.Node, old, new any) error {
	return tderrors.AddContext(
		tderrors.Newf(tderrors.CodeInternal, "conflicting %s: %v then %v", slice, old, new),
		tderrors.CtxNode, describeNode(n))
}

func describeNode(n syntax.Node) string {
	switch n := n.(type) {
	case *syntax.Declaration:
		return fmt.Sprintf("%s %s at %s", n.Kind, n.Name, n.Pos)
	case *syntax.NameExpr:
		return fmt.Sprintf("name %s at %s", n.Name, n.Pos)
	case *syntax.MemberExpr:
		return fmt.Sprintf("member %s at %s", n.Name, n.Pos)
	case *syntax.TypeRef:
		return fmt.Sprintf("type %s at %s", n.Name, n.Pos)
	case *syntax.Import:
		return fmt.Sprintf("import %s at %s", n.Path, n.Pos)
	case nil:
		return "<nil>"
	}
	return fmt.Sprintf("%T at %s", n, n.Position())
}

// RecordDeclaration binds a declaration to its descriptor.
func (t *BindingTrace) RecordDeclaration(d *syntax.Declaration, desc symbols.Descriptor) error {
	if err := t.checkWritable("declaration", d); err != nil {
		return err
	}
	if old, ok := t.declarations[d]; ok {
		if old != desc {
			return conflict("declaration", d, old.FqName(), desc.FqName())
		}
		return nil
	}
	t.declarations[d] = desc
	return nil
}

// RecordReference binds a name, member access, type reference or import to
// the descriptor it resolved to.
func (t *BindingTrace) RecordReference(n syntax.Node, desc symbols.Descriptor) error {
	if err := t.checkWritable("reference", n); err != nil {
		return err
	}
	if old, ok := t.references[n]; ok {
		if old != desc {
			return conflict("reference", n, old.FqName(), desc.FqName())
		}
		return nil
	}
	t.references[n] = desc
	return nil
}

// RecordType records the type of an expression or type reference.
func (t *BindingTrace) RecordType(n syntax.Node, typ symbols.Type) error {
	if err := t.checkWritable("type", n); err != nil {
		return err
	}
	if old, ok := t.types[n]; ok {
		if old != typ {
			return conflict("type", n, old, typ)
		}
		return nil
	}
	t.types[n] = typ
	return nil
}

// Report adds a diagnostic.
func (t *BindingTrace) Report(d Diagnostic) {
	t.diagnostics = append(t.diagnostics, d)
	if t.onReport != nil {
		t.onReport(d)
	}
}

// Freeze makes the trace read-only.
func (t *BindingTrace) Freeze() { t.frozen = true }

func (t *BindingTrace) Frozen() bool { return t.frozen }

// Declaration returns the descriptor of d, or nil.
func (t *BindingTrace) Declaration(d *syntax.Declaration) symbols.Descriptor {
	return t.declarations[d]
}

// Reference returns what n resolved to, or nil.
func (t *BindingTrace) Reference(n syntax.Node) symbols.Descriptor {
	return t.references[n]
}

// Type returns the recorded type of n.
func (t *BindingTrace) Type(n syntax.Node) (symbols.Type, bool) {
	typ, ok := t.types[n]
	return typ, ok
}

// Diagnostics returns the diagnostics sorted by position.
func (t *BindingTrace) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(t.diagnostics))
	copy(out, t.diagnostics)
	SortDiagnostics(out)
	return out
}

// Counts reports how many declarations, references and types are bound.
func (t *BindingTrace) Counts() (declarations, references, types int) {
	return len(t.declarations), len(t.references), len(t.types)
}

// Descriptors returns every declared descriptor that has no container,
// sorted by source path and fully-qualified name.
func (t *BindingTrace) Descriptors() []symbols.Descriptor {
	var out []symbols.Descriptor
	for _, d := range t.declarations {
		if d.Container() == nil {
			out = append(out, d)
		}
	}
	sortDescriptors(out)
	return out
}
