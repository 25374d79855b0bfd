package symbols

import (
	"strings"

	"github.com/jward/topdown/internal/syntax"
)

// Descriptor is the semantic counterpart of a declaration, whatever its
// origin.
type Descriptor interface {
	Name() string
	FqName() FqName
	Origin() Origin
	Visibility() Visibility
	Module() *ModuleDescriptor

	// Container is the enclosing class, or nil for top-level declarations.
	Container() *ClassDescriptor

	// File and Decl are set for source descriptors only.
	File() *syntax.File
	Decl() *syntax.Declaration

	// Stub is set for descriptors loaded from compiled form.
	Stub() *Stub

	// SourcePath is the file the declaration was written in, when known.
	SourcePath() string
}

// Info carries the identity fields shared by every descriptor.
type Info struct {
	Name       string
	Package    string
	Origin     Origin
	Visibility Visibility
	Module     *ModuleDescriptor
	Container  *ClassDescriptor
	File       *syntax.File
	Decl       *syntax.Declaration
	Stub       *Stub
	SourcePath string
}

type base struct {
	info Info
	fq   FqName
}

func newBase(info Info) base {
	fq := Join(info.Package, info.Name)
	if info.Container != nil {
		fq = info.Container.FqName().Child(info.Name)
	}
	if info.SourcePath == "" && info.File != nil {
		info.SourcePath = info.File.Path
	}
	return base{info: info, fq: fq}
}

func (b *base) Name() string                { return b.info.Name }
func (b *base) FqName() FqName              { return b.fq }
func (b *base) Origin() Origin              { return b.info.Origin }
func (b *base) Visibility() Visibility      { return b.info.Visibility }
func (b *base) Module() *ModuleDescriptor   { return b.info.Module }
func (b *base) Container() *ClassDescriptor { return b.info.Container }
func (b *base) File() *syntax.File          { return b.info.File }
func (b *base) Decl() *syntax.Declaration   { return b.info.Decl }
func (b *base) Stub() *Stub                 { return b.info.Stub }
func (b *base) SourcePath() string          { return b.info.SourcePath }

// Package returns the package the declaration (or its outermost container)
// lives in.
func (b *base) Package() string { return b.info.packageName() }

func (i Info) packageName() string {
	if i.Container != nil {
		return i.Container.Package()
	}
	return i.Package
}

// ClassDescriptor describes a class, interface or object.
type ClassDescriptor struct {
	base
	kind ClassKind

	supertypes    []*ClassDescriptor
	supertypesSet bool

	members []Descriptor
	nested  map[string]*ClassDescriptor
}

func NewClass(info Info, kind ClassKind) *ClassDescriptor {
	return &ClassDescriptor{base: newBase(info), kind: kind, nested: make(map[string]*ClassDescriptor)}
}

func (c *ClassDescriptor) Kind() ClassKind { return c.kind }

// AddMember attaches a member descriptor. Only used while building skeletons.
func (c *ClassDescriptor) AddMember(d Descriptor) {
	c.members = append(c.members, d)
	if nc, ok := d.(*ClassDescriptor); ok {
		if _, exists := c.nested[nc.Name()]; !exists {
			c.nested[nc.Name()] = nc
		}
	}
}

// Members returns members in declaration order.
func (c *ClassDescriptor) Members() []Descriptor { return c.members }

// NestedClass returns the first nested classifier called name.
func (c *ClassDescriptor) NestedClass(name string) *ClassDescriptor { return c.nested[name] }

// Functions returns member functions called name, in declaration order.
func (c *ClassDescriptor) Functions(name string) []*FunctionDescriptor {
	var out []*FunctionDescriptor
	for _, m := range c.members {
		if f, ok := m.(*FunctionDescriptor); ok && f.Name() == name {
			out = append(out, f)
		}
	}
	return out
}

// Property returns the first member property called name.
func (c *ClassDescriptor) Property(name string) *PropertyDescriptor {
	for _, m := range c.members {
		if p, ok := m.(*PropertyDescriptor); ok && p.Name() == name {
			return p
		}
	}
	return nil
}

// SetSupertypes records the resolved direct supertypes. Only the first call
// has an effect.
func (c *ClassDescriptor) SetSupertypes(s []*ClassDescriptor) {
	if c.supertypesSet {
		return
	}
	c.supertypes = s
	c.supertypesSet = true
}

// Supertypes returns the resolved direct supertypes, or nil before
// signature resolution.
func (c *ClassDescriptor) Supertypes() []*ClassDescriptor { return c.supertypes }

// SupertypesResolved reports whether SetSupertypes has been called.
func (c *ClassDescriptor) SupertypesResolved() bool { return c.supertypesSet }

// DefaultType is the type of values of this class.
func (c *ClassDescriptor) DefaultType() Type { return Type{Class: c} }

// IsSubclassOf reports whether other is c or one of c's resolved
// transitive supertypes. Terminates on malformed (cyclic) hierarchies.
func (c *ClassDescriptor) IsSubclassOf(other *ClassDescriptor) bool {
	seen := make(map[*ClassDescriptor]bool)
	stack := []*ClassDescriptor{c}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == other {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, cur.supertypes...)
	}
	return false
}

// ParameterDescriptor is a resolved value parameter.
type ParameterDescriptor struct {
	Name string
	Type Type
}

// FunctionDescriptor describes a top-level or member function.
type FunctionDescriptor struct {
	base
	params     []*ParameterDescriptor
	returnType Type
	resolved   bool
}

func NewFunction(info Info) *FunctionDescriptor {
	return &FunctionDescriptor{base: newBase(info)}
}

// SetSignature records resolved parameter and return types once.
func (f *FunctionDescriptor) SetSignature(params []*ParameterDescriptor, ret Type) {
	if f.resolved {
		return
	}
	f.params = params
	f.returnType = ret
	f.resolved = true
}

func (f *FunctionDescriptor) Params() []*ParameterDescriptor { return f.params }
func (f *FunctionDescriptor) ReturnType() Type               { return f.returnType }
func (f *FunctionDescriptor) SignatureResolved() bool        { return f.resolved }

// Signature renders name and parameter types, e.g. "plus(lang.Int)".
// Two functions with equal signatures in one scope conflict.
func (f *FunctionDescriptor) Signature() string {
	var sb strings.Builder
	sb.WriteString(f.Name())
	sb.WriteByte('(')
	for i, p := range f.params {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.Type.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

// PropertyDescriptor describes a top-level or member property.
type PropertyDescriptor struct {
	base
	typ      Type
	resolved bool
}

func NewProperty(info Info) *PropertyDescriptor {
	return &PropertyDescriptor{base: newBase(info)}
}

// SetType records the resolved type once.
func (p *PropertyDescriptor) SetType(t Type) {
	if p.resolved {
		return
	}
	p.typ = t
	p.resolved = true
}

func (p *PropertyDescriptor) Type() Type         { return p.typ }
func (p *PropertyDescriptor) TypeResolved() bool { return p.resolved }

var (
	_ Descriptor = (*ClassDescriptor)(nil)
	_ Descriptor = (*FunctionDescriptor)(nil)
	_ Descriptor = (*PropertyDescriptor)(nil)
)
