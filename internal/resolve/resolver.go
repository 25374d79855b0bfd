package resolve

import (
	"strings"

	"github.com/jward/topdown/internal/lookup"
	"github.com/jward/topdown/internal/storage"
	"github.com/jward/topdown/internal/symbols"
	"github.com/jward/topdown/internal/syntax"
)

// resolver holds the lazy state shared by the signature and body passes.
type resolver struct {
	module  *symbols.ModuleDescriptor
	mode    Mode
	trace   *BindingTrace
	tracker lookup.Tracker
	scope   *symbols.Composite

	signatures *storage.Memo[symbols.Descriptor, bool]
	bodies     *storage.Memo[*syntax.Declaration, symbols.Type]

	// pendingParams holds parameters of functions whose signature is still
	// being computed, so an inferred body can see them.
	pendingParams map[*symbols.FunctionDescriptor][]*symbols.ParameterDescriptor

	err error
}

func newResolver(m *storage.Manager, module *symbols.ModuleDescriptor, mode Mode, trace *BindingTrace, tracker lookup.Tracker, scope *symbols.Composite) *resolver {
	r := &resolver{
		module:        module,
		mode:          mode,
		trace:         trace,
		tracker:       tracker,
		scope:         scope,
		pendingParams: make(map[*symbols.FunctionDescriptor][]*symbols.ParameterDescriptor),
	}
	r.signatures = storage.NewMemo(m, r.computeSignature, nil).OnCompute(func(d symbols.Descriptor) {
		r.tracker.Record(lookup.Lookup{
			File:      d.SourcePath(),
			Line:      declPos(d).Line,
			Col:       declPos(d).Col,
			Scope:     string(d.FqName().Parent()),
			ScopeKind: lookup.ScopeDeclaration,
			Name:      string(d.FqName()),
			Result:    lookup.Computed,
		})
	})
	r.bodies = storage.NewMemo(m, r.computeBody, func(*syntax.Declaration) symbols.Type {
		return symbols.ErrorType("<recursive>")
	})
	return r
}

// fail keeps the first hard error; passes stop at the next boundary.
func (r *resolver) fail(err error) {
	if err != nil && r.err == nil {
		r.err = err
	}
}

func (r *resolver) report(d Diagnostic) {
	r.trace.Report(d)
}

// ensure resolves d's signature if it has not been resolved yet.
func (r *resolver) ensure(d symbols.Descriptor) {
	r.signatures.Get(d)
}

func declPos(d symbols.Descriptor) syntax.Pos {
	if decl := d.Decl(); decl != nil {
		return decl.Pos
	}
	return syntax.Pos{}
}

// site is where a name is being resolved: a file and the innermost
// enclosing class, if any.
type site struct {
	file  *syntax.File
	class *symbols.ClassDescriptor
}

func (s site) path() string {
	if s.file == nil {
		return ""
	}
	return s.file.Path
}

func (s site) pkg() string {
	if s.file == nil {
		return ""
	}
	return s.file.Package
}

func (r *resolver) record(s site, pos syntax.Pos, kind lookup.ScopeKind, scope, name string, res lookup.Result) {
	r.tracker.Record(lookup.Lookup{
		File:      s.path(),
		Line:      pos.Line,
		Col:       pos.Col,
		Scope:     scope,
		ScopeKind: kind,
		Name:      name,
		Result:    res,
	})
}

func splitDotted(name string) []string {
	return strings.Split(name, ".")
}

// findClassifier resolves a simple classifier name. Scopes are searched
// innermost first: enclosing classes, explicit imports, the file's package,
// star imports, then the built-ins package. Lookups are recorded; the
// caller reports failures.
func (r *resolver) findClassifier(s site, name string, pos syntax.Pos) *symbols.ClassDescriptor {
	for c := s.class; c != nil; c = c.Container() {
		if n := c.NestedClass(name); n != nil {
			r.record(s, pos, lookup.ScopeClass, string(c.FqName()), name, lookup.Resolved)
			return n
		}
	}
	if s.file != nil {
		for _, imp := range s.file.Imports {
			if imp.Star || imp.LocalName() != name {
				continue
			}
			if c := r.scope.ResolveQualified(splitDotted(imp.Path)); c != nil {
				r.record(s, pos, lookup.ScopeFile, imp.Path, name, lookup.Resolved)
				return c
			}
		}
	}
	if c := r.scope.Package(s.pkg()).Class(name); c != nil {
		r.record(s, pos, lookup.ScopePackage, s.pkg(), name, lookup.Resolved)
		return c
	}
	if s.file != nil {
		for _, imp := range s.file.Imports {
			if !imp.Star {
				continue
			}
			if c := r.starClassifier(imp.Path, name); c != nil {
				r.record(s, pos, lookup.ScopePackage, imp.Path, name, lookup.Resolved)
				return c
			}
		}
	}
	if c := r.scope.Package(symbols.BuiltinsPackage).Class(name); c != nil {
		r.record(s, pos, lookup.ScopePackage, symbols.BuiltinsPackage, name, lookup.Resolved)
		return c
	}
	return nil
}

// starClassifier looks name up in a star-imported package or class.
func (r *resolver) starClassifier(path, name string) *symbols.ClassDescriptor {
	if r.scope.HasPackage(path) {
		if c := r.scope.Package(path).Class(name); c != nil {
			return c
		}
	}
	if outer := r.scope.ResolveQualified(splitDotted(path)); outer != nil {
		return outer.NestedClass(name)
	}
	return nil
}

// resolveClassName resolves a simple or dotted classifier name. A dotted
// name is first tried relative to a classifier visible by its first
// segment, then as fully qualified.
func (r *resolver) resolveClassName(s site, name string, pos syntax.Pos) *symbols.ClassDescriptor {
	parts := splitDotted(name)
	if len(parts) == 1 {
		c := r.findClassifier(s, name, pos)
		if c == nil {
			r.record(s, pos, lookup.ScopePackage, s.pkg(), name, lookup.Unresolved)
		}
		return c
	}
	if head := r.findClassifier(s, parts[0], pos); head != nil {
		c := head
		for _, p := range parts[1:] {
			if c = c.NestedClass(p); c == nil {
				break
			}
		}
		if c != nil {
			return c
		}
	}
	if c := r.scope.ResolveQualified(parts); c != nil {
		r.record(s, pos, lookup.ScopePackage, strings.Join(parts[:len(parts)-1], "."), parts[len(parts)-1], lookup.Resolved)
		return c
	}
	r.record(s, pos, lookup.ScopePackage, s.pkg(), name, lookup.Unresolved)
	return nil
}

// resolveTypeRef resolves a written type, binds it, and reports unresolved
// or invisible classifiers. Unresolved types become error types.
func (r *resolver) resolveTypeRef(s site, ref *syntax.TypeRef) symbols.Type {
	c := r.resolveClassName(s, ref.Name, ref.Pos)
	if c == nil {
		r.report(newDiagnostic(UnresolvedReference, s.file, ref.Pos, "unresolved reference: %s", ref.Name))
		t := symbols.ErrorType(ref.Name)
		r.fail(r.trace.RecordType(ref, t))
		return t
	}
	r.checkVisible(s, ref.Pos, c)
	r.fail(r.trace.RecordReference(ref, c))
	r.fail(r.trace.RecordType(ref, c.DefaultType()))
	return c.DefaultType()
}

// typeByName resolves a fully-qualified type name from a stub.
func (r *resolver) typeByName(fq string) symbols.Type {
	if fq == "" {
		return symbols.ErrorType("<missing type>")
	}
	if c := r.scope.Classifier(symbols.FqName(fq)); c != nil {
		return c.DefaultType()
	}
	return symbols.ErrorType(fq)
}

func (r *resolver) builtinType(name string) symbols.Type {
	if c := r.scope.Package(symbols.BuiltinsPackage).Class(name); c != nil {
		return c.DefaultType()
	}
	return symbols.ErrorType(symbols.BuiltinsPackage + "." + name)
}

// visible applies visibility rules for a use at s.
func (r *resolver) visible(s site, d symbols.Descriptor) bool {
	switch d.Visibility() {
	case symbols.Internal:
		return d.Module() == nil || d.Module() == r.module
	case symbols.Private:
		if c := d.Container(); c != nil {
			for k := s.class; k != nil; k = k.Container() {
				if k == c {
					return true
				}
			}
			return false
		}
		return d.Origin() == symbols.OriginSource && d.SourcePath() == s.path()
	case symbols.Protected:
		c := d.Container()
		if c == nil {
			return true
		}
		for k := s.class; k != nil; k = k.Container() {
			if r.isSubclass(k, c) {
				return true
			}
		}
		return false
	}
	return true
}

func (r *resolver) checkVisible(s site, pos syntax.Pos, d symbols.Descriptor) {
	if !r.visible(s, d) {
		r.report(newDiagnostic(InvisibleReference, s.file, pos,
			"cannot access '%s': it is %s", d.FqName(), d.Visibility()))
	}
}

// siteOf returns the site a descriptor's own signature is resolved in.
func siteOf(d symbols.Descriptor) site {
	return site{file: d.File(), class: d.Container()}
}
