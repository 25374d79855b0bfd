package resolve

import (
	"strings"

	"github.com/jward/topdown/internal/lookup"
	"github.com/jward/topdown/internal/symbols"
	"github.com/jward/topdown/internal/syntax"
)

// env is a chain of local scopes inside a body.
type env struct {
	parent *env
	vars   map[string]*symbols.PropertyDescriptor
}

func newEnv(parent *env) *env {
	return &env{parent: parent, vars: make(map[string]*symbols.PropertyDescriptor)}
}

func (e *env) lookup(name string) *symbols.PropertyDescriptor {
	for s := e; s != nil; s = s.parent {
		if v, ok := s.vars[name]; ok {
			return v
		}
	}
	return nil
}

// body is the resolution state of one function body or initializer.
type body struct {
	site
	fn *symbols.FunctionDescriptor // nil for initializers
}

func (r *resolver) local(b *body, name string, typ symbols.Type) *symbols.PropertyDescriptor {
	v := symbols.NewProperty(symbols.Info{
		Name:       name,
		Origin:     symbols.OriginSource,
		Module:     r.module,
		File:       b.file,
		SourcePath: b.path(),
	})
	v.SetType(typ)
	return v
}

// computeBody resolves the executable code of a function or the
// initializer of a property and returns its type: the expression type for
// expression bodies and initializers, Unit for block bodies.
func (r *resolver) computeBody(decl *syntax.Declaration) symbols.Type {
	switch d := r.trace.Declaration(decl).(type) {
	case *symbols.FunctionDescriptor:
		b := &body{site: siteOf(d), fn: d}
		scope := newEnv(nil)
		for _, p := range r.paramsOf(d) {
			scope.vars[p.Name] = r.local(b, p.Name, p.Type)
		}
		if decl.Body == nil {
			return r.builtinType("Unit")
		}
		if decl.ExprBody && len(decl.Body.Stmts) == 1 {
			if ret, ok := decl.Body.Stmts[0].(*syntax.ReturnStmt); ok && ret.Value != nil {
				t := r.expr(b, scope, ret.Value)
				if decl.ReturnType != nil {
					r.checkAssignable(b, ret.Value, t, returnTypeOf(d))
				}
				return t
			}
		}
		r.block(b, scope, decl.Body)
		return r.builtinType("Unit")

	case *symbols.PropertyDescriptor:
		if decl.Initializer == nil {
			return symbols.ErrorType("<no initializer>")
		}
		b := &body{site: siteOf(d)}
		t := r.expr(b, newEnv(nil), decl.Initializer)
		if decl.Type != nil {
			r.ensure(d)
			r.checkAssignable(b, decl.Initializer, t, typeOfProperty(d))
		}
		return t
	}
	return symbols.ErrorType("<not a body>")
}

func (r *resolver) checkAssignable(b *body, at syntax.Node, got, want symbols.Type) {
	if !r.isSubtype(got, want) {
		r.report(newDiagnostic(TypeMismatch, b.file, at.Position(),
			"type mismatch: inferred type is %s but %s was expected", got, want))
	}
}

func (r *resolver) block(b *body, parent *env, blk *syntax.Block) {
	scope := newEnv(parent)
	for _, stmt := range blk.Stmts {
		switch s := stmt.(type) {
		case *syntax.ValStmt:
			var t symbols.Type
			if s.Value != nil {
				t = r.expr(b, scope, s.Value)
			}
			if s.Type != nil {
				declared := r.resolveTypeRef(b.site, s.Type)
				if s.Value != nil {
					r.checkAssignable(b, s.Value, t, declared)
				}
				t = declared
			} else if s.Value == nil {
				t = symbols.ErrorType("<implicit type>")
			}
			v := r.local(b, s.Name, t)
			scope.vars[s.Name] = v
			r.fail(r.trace.RecordType(s, t))
		case *syntax.ReturnStmt:
			if s.Value == nil {
				continue
			}
			t := r.expr(b, scope, s.Value)
			if b.fn != nil && b.fn.SignatureResolved() {
				r.checkAssignable(b, s.Value, t, b.fn.ReturnType())
			}
		case *syntax.ExprStmt:
			r.expr(b, scope, s.X)
		}
	}
}

// expr resolves e, records its type and returns it.
func (r *resolver) expr(b *body, scope *env, e syntax.Expr) symbols.Type {
	var t symbols.Type
	switch e := e.(type) {
	case *syntax.LiteralExpr:
		t = r.literal(e)
	case *syntax.NameExpr:
		t = r.name(b, scope, e)
	case *syntax.MemberExpr:
		t = r.member(b, scope, e)
	case *syntax.CallExpr:
		t = r.call(b, scope, e)
	default:
		t = symbols.ErrorType("<unknown expression>")
	}
	r.fail(r.trace.RecordType(e, t))
	return t
}

func (r *resolver) literal(e *syntax.LiteralExpr) symbols.Type {
	switch e.Kind {
	case syntax.LitInt:
		return r.builtinType("Int")
	case syntax.LitDouble:
		return r.builtinType("Double")
	case syntax.LitString:
		return r.builtinType("String")
	case syntax.LitBool:
		return r.builtinType("Boolean")
	}
	return r.builtinType("Nothing")
}

func (r *resolver) bind(b *body, n syntax.Node, pos syntax.Pos, d symbols.Descriptor) {
	r.checkVisible(b.site, pos, d)
	r.fail(r.trace.RecordReference(n, d))
}

func (r *resolver) valueType(d symbols.Descriptor) symbols.Type {
	switch d := d.(type) {
	case *symbols.PropertyDescriptor:
		r.ensure(d)
		return typeOfProperty(d)
	case *symbols.ClassDescriptor:
		return d.DefaultType()
	}
	return symbols.ErrorType(string(d.FqName()))
}

// name resolves a bare identifier used as a value: locals, then members of
// enclosing classes, then file-level scopes.
func (r *resolver) name(b *body, scope *env, e *syntax.NameExpr) symbols.Type {
	if v := scope.lookup(e.Name); v != nil {
		r.fail(r.trace.RecordReference(e, v))
		return v.Type()
	}
	for c := b.class; c != nil; c = c.Container() {
		if p := r.memberProperty(c, e.Name); p != nil {
			r.record(b.site, e.Pos, lookup.ScopeClass, string(c.FqName()), e.Name, lookup.Resolved)
			r.bind(b, e, e.Pos, p)
			return r.valueType(p)
		}
		if n := c.NestedClass(e.Name); n != nil && n.Kind() == symbols.KindObject {
			r.record(b.site, e.Pos, lookup.ScopeClass, string(c.FqName()), e.Name, lookup.Resolved)
			r.bind(b, e, e.Pos, n)
			return n.DefaultType()
		}
	}
	if ds := r.topLevel(b.site, e.Name, e.Pos, values); len(ds) > 0 {
		r.bind(b, e, e.Pos, ds[0])
		return r.valueType(ds[0])
	}
	r.record(b.site, e.Pos, lookup.ScopePackage, b.pkg(), e.Name, lookup.Unresolved)
	r.report(newDiagnostic(UnresolvedReference, b.file, e.Pos, "unresolved reference: %s", e.Name))
	return symbols.ErrorType(e.Name)
}

func (r *resolver) member(b *body, scope *env, e *syntax.MemberExpr) symbols.Type {
	recv := r.expr(b, scope, e.Receiver)
	if recv.IsError() {
		return symbols.ErrorType(e.Name)
	}
	if p := r.memberProperty(recv.Class, e.Name); p != nil {
		r.record(b.site, e.Pos, lookup.ScopeClass, string(recv.Class.FqName()), e.Name, lookup.Resolved)
		r.bind(b, e, e.Pos, p)
		return r.valueType(p)
	}
	r.record(b.site, e.Pos, lookup.ScopeClass, string(recv.Class.FqName()), e.Name, lookup.Unresolved)
	r.report(newDiagnostic(UnresolvedReference, b.file, e.Pos, "unresolved reference: %s", e.Name))
	return symbols.ErrorType(e.Name)
}

func (r *resolver) call(b *body, scope *env, e *syntax.CallExpr) symbols.Type {
	args := make([]symbols.Type, len(e.Args))
	for i, a := range e.Args {
		args[i] = r.expr(b, scope, a)
	}

	var (
		cands   []*symbols.FunctionDescriptor
		name    string
		ref     syntax.Node
		refPos  syntax.Pos
		scopeOf string
		kind    lookup.ScopeKind
	)
	switch callee := e.Callee.(type) {
	case *syntax.NameExpr:
		name, ref, refPos = callee.Name, callee, callee.Pos
		for c := b.class; c != nil && len(cands) == 0; c = c.Container() {
			if fs := r.memberFunctions(c, name); len(fs) > 0 {
				cands = fs
				r.record(b.site, refPos, lookup.ScopeClass, string(c.FqName()), name, lookup.Resolved)
			}
		}
		if len(cands) == 0 {
			for _, d := range r.topLevel(b.site, name, refPos, functions) {
				cands = append(cands, d.(*symbols.FunctionDescriptor))
			}
		}
		if len(cands) == 0 {
			if c := r.findClassifier(b.site, name, refPos); c != nil && c.Kind() != symbols.KindInterface {
				r.bind(b, callee, refPos, c)
				return c.DefaultType()
			}
		}
		scopeOf, kind = b.pkg(), lookup.ScopePackage
	case *syntax.MemberExpr:
		name, ref, refPos = callee.Name, callee, callee.Pos
		recv := r.expr(b, scope, callee.Receiver)
		if recv.IsError() {
			return symbols.ErrorType(name)
		}
		cands = r.memberFunctions(recv.Class, name)
		scopeOf, kind = string(recv.Class.FqName()), lookup.ScopeClass
		if len(cands) > 0 {
			r.record(b.site, refPos, kind, scopeOf, name, lookup.Resolved)
		}
	default:
		r.expr(b, scope, callee)
		return symbols.ErrorType("<not callable>")
	}

	if len(cands) == 0 {
		r.record(b.site, refPos, kind, scopeOf, name, lookup.Unresolved)
		r.report(newDiagnostic(UnresolvedReference, b.file, refPos, "unresolved reference: %s", name))
		return symbols.ErrorType(name)
	}
	f, t := r.pickOverload(b, e, cands, args)
	r.bind(b, ref, refPos, f)
	return t
}

// pickOverload chooses the first candidate whose arity and parameter types
// accept the arguments. Failing that it reports against the closest
// candidate.
func (r *resolver) pickOverload(b *body, e *syntax.CallExpr, cands []*symbols.FunctionDescriptor, args []symbols.Type) (*symbols.FunctionDescriptor, symbols.Type) {
	var arity []*symbols.FunctionDescriptor
	for _, f := range cands {
		r.ensure(f)
		if len(r.paramsOf(f)) == len(args) {
			arity = append(arity, f)
		}
	}
	if len(arity) == 0 {
		f := cands[0]
		r.report(newDiagnostic(ArgumentCountMismatch, b.file, e.Pos,
			"%s expects %d argument(s) but %d were given", f.Name(), len(r.paramsOf(f)), len(args)))
		return f, symbols.ErrorType(f.Name())
	}
	for _, f := range arity {
		if r.accepts(r.paramsOf(f), args) {
			return f, returnTypeOf(f)
		}
	}
	f := arity[0]
	for i, p := range r.paramsOf(f) {
		if !r.isSubtype(args[i], p.Type) {
			r.report(newDiagnostic(TypeMismatch, b.file, e.Args[i].Position(),
				"type mismatch: inferred type is %s but %s was expected", args[i], p.Type))
		}
	}
	return f, returnTypeOf(f)
}

func (r *resolver) accepts(params []*symbols.ParameterDescriptor, args []symbols.Type) bool {
	for i, p := range params {
		if !r.isSubtype(args[i], p.Type) {
			return false
		}
	}
	return true
}

// isSubtype is Type.IsSubtypeOf with the supertypes of every class on the
// way resolved first, so the answer does not depend on which declarations
// were visited earlier.
func (r *resolver) isSubtype(got, want symbols.Type) bool {
	if got.IsSubtypeOf(want) {
		return true
	}
	if got.Class == nil || want.Class == nil {
		return false
	}
	return r.isSubclass(got.Class, want.Class)
}

func (r *resolver) isSubclass(c, other *symbols.ClassDescriptor) bool {
	found := false
	r.walkHierarchy(c, func(k *symbols.ClassDescriptor) bool {
		found = k == other
		return found
	})
	return found
}

// memberFunctions returns the functions called name declared by the
// nearest class in c's hierarchy that declares any, falling back to Any.
func (r *resolver) memberFunctions(c *symbols.ClassDescriptor, name string) []*symbols.FunctionDescriptor {
	var found []*symbols.FunctionDescriptor
	r.walkHierarchy(c, func(k *symbols.ClassDescriptor) bool {
		found = k.Functions(name)
		return len(found) > 0
	})
	return found
}

// memberProperty returns the property called name from the nearest class
// in c's hierarchy that declares it.
func (r *resolver) memberProperty(c *symbols.ClassDescriptor, name string) *symbols.PropertyDescriptor {
	var found *symbols.PropertyDescriptor
	r.walkHierarchy(c, func(k *symbols.ClassDescriptor) bool {
		found = k.Property(name)
		return found != nil
	})
	return found
}

// walkHierarchy visits c and its supertypes breadth first, then Any, until
// visit returns true.
func (r *resolver) walkHierarchy(c *symbols.ClassDescriptor, visit func(*symbols.ClassDescriptor) bool) {
	seen := make(map[*symbols.ClassDescriptor]bool)
	queue := []*symbols.ClassDescriptor{c}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		if seen[k] {
			continue
		}
		seen[k] = true
		if visit(k) {
			return
		}
		r.ensure(k)
		queue = append(queue, k.Supertypes()...)
	}
	if anyCls := r.scope.Classifier(symbols.AnyName); anyCls != nil && !seen[anyCls] {
		visit(anyCls)
	}
}

// picker selects candidates called name from one package scope.
type picker func(scope *symbols.PackageScope, name string) []symbols.Descriptor

func values(scope *symbols.PackageScope, name string) []symbols.Descriptor {
	var out []symbols.Descriptor
	for _, p := range scope.Properties(name) {
		out = append(out, p)
	}
	if c := scope.Class(name); c != nil && c.Kind() == symbols.KindObject {
		out = append(out, c)
	}
	return out
}

func functions(scope *symbols.PackageScope, name string) []symbols.Descriptor {
	var out []symbols.Descriptor
	for _, f := range scope.Functions(name) {
		out = append(out, f)
	}
	return out
}

// topLevel searches the file-level scopes for name: explicit imports, the
// file's package, star imports, then built-ins. It returns the matches of
// the first scope that has any.
func (r *resolver) topLevel(s site, name string, pos syntax.Pos, pick picker) []symbols.Descriptor {
	if s.file != nil {
		for _, imp := range s.file.Imports {
			if imp.Star || imp.LocalName() != name {
				continue
			}
			parts := splitDotted(imp.Path)
			pkg := strings.Join(parts[:len(parts)-1], ".")
			if !r.scope.HasPackage(pkg) {
				continue
			}
			if ds := pick(r.scope.Package(pkg), parts[len(parts)-1]); len(ds) > 0 {
				r.record(s, pos, lookup.ScopeFile, imp.Path, name, lookup.Resolved)
				return ds
			}
		}
	}
	if ds := pick(r.scope.Package(s.pkg()), name); len(ds) > 0 {
		r.record(s, pos, lookup.ScopePackage, s.pkg(), name, lookup.Resolved)
		return ds
	}
	if s.file != nil {
		for _, imp := range s.file.Imports {
			if !imp.Star || !r.scope.HasPackage(imp.Path) {
				continue
			}
			if ds := pick(r.scope.Package(imp.Path), name); len(ds) > 0 {
				r.record(s, pos, lookup.ScopePackage, imp.Path, name, lookup.Resolved)
				return ds
			}
		}
	}
	if ds := pick(r.scope.Package(symbols.BuiltinsPackage), name); len(ds) > 0 {
		r.record(s, pos, lookup.ScopePackage, symbols.BuiltinsPackage, name, lookup.Resolved)
		return ds
	}
	return nil
}
