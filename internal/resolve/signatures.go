package resolve

import (
	"fmt"
	"strings"

	"github.com/jward/topdown/internal/lookup"
	"github.com/jward/topdown/internal/symbols"
	"github.com/jward/topdown/internal/syntax"
)

func (r *resolver) computeSignature(d symbols.Descriptor) bool {
	switch d := d.(type) {
	case *symbols.ClassDescriptor:
		r.resolveSupertypes(d)
	case *symbols.FunctionDescriptor:
		r.resolveFunction(d)
	case *symbols.PropertyDescriptor:
		r.resolveProperty(d)
	}
	return true
}

// resolveSupertypes resolves the direct supertypes of c. A supertype whose
// own supertypes are still being resolved closes a cycle: the edge is
// dropped and reported on the reference that closed it.
func (r *resolver) resolveSupertypes(c *symbols.ClassDescriptor) {
	var supers []*symbols.ClassDescriptor
	if decl := c.Decl(); decl != nil {
		s := site{file: c.File(), class: c.Container()}
		for _, ref := range decl.Supertypes {
			t := r.resolveTypeRef(s, ref)
			if t.IsError() {
				continue
			}
			super := t.Class
			if r.signatures.InProgress(super) {
				r.report(newDiagnostic(CyclicInheritance, s.file, ref.Pos,
					"there's a cycle in the inheritance hierarchy for %s", c.FqName()))
				continue
			}
			r.ensure(super)
			supers = append(supers, super)
		}
	} else if stub := c.Stub(); stub != nil {
		for _, fq := range stub.Supertypes {
			super := r.scope.Classifier(symbols.FqName(fq))
			if super == nil || r.signatures.InProgress(super) {
				continue
			}
			r.ensure(super)
			supers = append(supers, super)
		}
	}
	c.SetSupertypes(supers)
}

func (r *resolver) resolveFunction(f *symbols.FunctionDescriptor) {
	if decl := f.Decl(); decl != nil {
		s := siteOf(f)
		params := make([]*symbols.ParameterDescriptor, 0, len(decl.Params))
		for _, p := range decl.Params {
			typ := symbols.ErrorType("<missing type>")
			if p.Type != nil {
				typ = r.resolveTypeRef(s, p.Type)
			}
			params = append(params, &symbols.ParameterDescriptor{Name: p.Name, Type: typ})
		}

		var ret symbols.Type
		switch {
		case decl.ReturnType != nil:
			ret = r.resolveTypeRef(s, decl.ReturnType)
		case decl.ExprBody && r.mode == Full:
			r.pendingParams[f] = params
			ret = r.bodies.Get(decl)
			delete(r.pendingParams, f)
		case decl.ExprBody:
			ret = symbols.ErrorType("<implicit type>")
		default:
			ret = r.builtinType("Unit")
		}
		f.SetSignature(params, ret)
		return
	}

	stub := f.Stub()
	if stub == nil {
		f.SetSignature(nil, symbols.ErrorType("<no declaration>"))
		return
	}
	params := make([]*symbols.ParameterDescriptor, 0, len(stub.Params))
	for _, p := range stub.Params {
		params = append(params, &symbols.ParameterDescriptor{Name: p.Name, Type: r.typeByName(p.Type)})
	}
	ret := r.builtinType("Unit")
	if stub.ReturnType != "" {
		ret = r.typeByName(stub.ReturnType)
	}
	f.SetSignature(params, ret)
}

func (r *resolver) resolveProperty(p *symbols.PropertyDescriptor) {
	if decl := p.Decl(); decl != nil {
		switch {
		case decl.Type != nil:
			p.SetType(r.resolveTypeRef(siteOf(p), decl.Type))
		case decl.Initializer != nil && r.mode == Full:
			p.SetType(r.bodies.Get(decl))
		default:
			p.SetType(symbols.ErrorType("<implicit type>"))
		}
		return
	}
	if stub := p.Stub(); stub != nil {
		p.SetType(r.typeByName(stub.Type))
		return
	}
	p.SetType(symbols.ErrorType("<no declaration>"))
}

// paramsOf returns f's parameters, including while f's own signature is
// being computed.
func (r *resolver) paramsOf(f *symbols.FunctionDescriptor) []*symbols.ParameterDescriptor {
	if f.SignatureResolved() {
		return f.Params()
	}
	return r.pendingParams[f]
}

// returnTypeOf is f's return type, or an error type while it is unknown.
func returnTypeOf(f *symbols.FunctionDescriptor) symbols.Type {
	if !f.SignatureResolved() {
		return symbols.ErrorType("<recursive>")
	}
	return f.ReturnType()
}

func typeOfProperty(p *symbols.PropertyDescriptor) symbols.Type {
	if !p.TypeResolved() {
		return symbols.ErrorType("<recursive>")
	}
	return p.Type()
}

// resolveTree resolves the signatures of d and all of its members.
func (r *resolver) resolveTree(d symbols.Descriptor) {
	r.ensure(d)
	if c, ok := d.(*symbols.ClassDescriptor); ok {
		for _, m := range c.Members() {
			r.resolveTree(m)
		}
	}
}

// checkImports binds every import of f and reports the ones that name
// nothing.
func (r *resolver) checkImports(f *syntax.File) {
	s := site{file: f}
	for _, imp := range f.Imports {
		parts := splitDotted(imp.Path)
		if imp.Star {
			if r.scope.HasPackage(imp.Path) {
				r.record(s, imp.Pos, lookup.ScopePackage, imp.Path, "*", lookup.Resolved)
				continue
			}
			if c := r.scope.ResolveQualified(parts); c != nil {
				r.fail(r.trace.RecordReference(imp, c))
				continue
			}
			r.record(s, imp.Pos, lookup.ScopePackage, imp.Path, "*", lookup.Unresolved)
			r.report(newDiagnostic(UnresolvedImport, f, imp.Pos, "unresolved import: %s.*", imp.Path))
			continue
		}

		if c := r.scope.ResolveQualified(parts); c != nil {
			r.record(s, imp.Pos, lookup.ScopePackage, string(c.FqName().Parent()), c.Name(), lookup.Resolved)
			r.fail(r.trace.RecordReference(imp, c))
			continue
		}
		pkg, name := strings.Join(parts[:len(parts)-1], "."), parts[len(parts)-1]
		if d := r.packageMember(pkg, name); d != nil {
			r.record(s, imp.Pos, lookup.ScopePackage, pkg, name, lookup.Resolved)
			r.fail(r.trace.RecordReference(imp, d))
			continue
		}
		r.record(s, imp.Pos, lookup.ScopePackage, pkg, name, lookup.Unresolved)
		r.report(newDiagnostic(UnresolvedImport, f, imp.Pos, "unresolved import: %s", imp.Path))
	}
}

// packageMember finds a top-level function or property called name in pkg.
func (r *resolver) packageMember(pkg, name string) symbols.Descriptor {
	if !r.scope.HasPackage(pkg) {
		return nil
	}
	scope := r.scope.Package(pkg)
	if fs := scope.Functions(name); len(fs) > 0 {
		return fs[0]
	}
	if ps := scope.Properties(name); len(ps) > 0 {
		return ps[0]
	}
	return nil
}

// checkRedeclarations reports every member of a group of same-scope
// declarations that conflict: classifiers and properties by name, functions
// by name and parameter types. Signatures must already be resolved.
func (r *resolver) checkRedeclarations(ds []symbols.Descriptor) {
	groups := make(map[string][]symbols.Descriptor)
	var keys []string
	for _, d := range ds {
		if d.Decl() == nil {
			continue
		}
		var key string
		switch d := d.(type) {
		case *symbols.ClassDescriptor:
			key = "classifier " + d.Name()
		case *symbols.FunctionDescriptor:
			r.ensure(d)
			key = "function " + d.Signature()
		case *symbols.PropertyDescriptor:
			key = "property " + d.Name()
		}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], d)
	}
	for _, key := range keys {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		for _, d := range group {
			r.report(newDiagnostic(Redeclaration, d.File(), d.Decl().Pos,
				"conflicting declarations: %s", describe(d)))
		}
	}
	for _, d := range ds {
		if c, ok := d.(*symbols.ClassDescriptor); ok && c.Decl() != nil {
			r.checkRedeclarations(c.Members())
		}
	}
}

func describe(d symbols.Descriptor) string {
	switch d := d.(type) {
	case *symbols.ClassDescriptor:
		return fmt.Sprintf("%s %s", d.Kind(), d.FqName())
	case *symbols.FunctionDescriptor:
		return fmt.Sprintf("fun %s", d.Signature())
	case *symbols.PropertyDescriptor:
		return fmt.Sprintf("val %s", d.FqName())
	}
	return string(d.FqName())
}
