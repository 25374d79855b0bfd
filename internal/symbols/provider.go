package symbols

import (
	"strings"

	"github.com/jward/topdown/internal/storage"
)

// Provider answers "what declarations exist under package path P".
// Implementations must return the same descriptors (by identity) for
// repeated calls with the same package.
type Provider interface {
	// Name identifies the provider in logs and lookup records.
	Name() string

	// Declarations returns the top-level descriptors declared in pkg.
	Declarations(pkg string) []Descriptor

	// HasPackage reports whether pkg, or a package nested in it, exists.
	HasPackage(pkg string) bool
}

// PackageScope is the merged view of one package across all providers.
type PackageScope struct {
	Package string

	all        []Descriptor
	classes    map[string]*ClassDescriptor
	functions  map[string][]*FunctionDescriptor
	properties map[string][]*PropertyDescriptor
	shadowed   []Descriptor
	owners     map[FqName]string
}

// All returns the visible descriptors in provider order.
func (s *PackageScope) All() []Descriptor { return s.all }

// Class returns the visible classifier called name.
func (s *PackageScope) Class(name string) *ClassDescriptor { return s.classes[name] }

// Functions returns the visible functions called name.
func (s *PackageScope) Functions(name string) []*FunctionDescriptor { return s.functions[name] }

// Properties returns the visible properties called name.
func (s *PackageScope) Properties(name string) []*PropertyDescriptor { return s.properties[name] }

// Shadowed returns descriptors hidden by an earlier provider claiming the
// same fully-qualified name.
func (s *PackageScope) Shadowed() []Descriptor { return s.shadowed }

// Owner returns the provider that won the given name.
func (s *PackageScope) Owner(fq FqName) string { return s.owners[fq] }

// Composite merges an ordered provider list. Earlier providers shadow later
// ones: once a provider claims a fully-qualified name, declarations with
// that name from later providers are hidden.
type Composite struct {
	providers []Provider
	packages  *storage.Memo[string, *PackageScope]
}

// NewComposite creates a composite over providers, queried in order. Nil
// providers are skipped.
func NewComposite(m *storage.Manager, providers ...Provider) *Composite {
	c := &Composite{}
	for _, p := range providers {
		if p != nil {
			c.providers = append(c.providers, p)
		}
	}
	c.packages = storage.NewMemo(m, c.merge, func(pkg string) *PackageScope {
		return newPackageScope(pkg)
	})
	return c
}

func newPackageScope(pkg string) *PackageScope {
	return &PackageScope{
		Package:    pkg,
		classes:    make(map[string]*ClassDescriptor),
		functions:  make(map[string][]*FunctionDescriptor),
		properties: make(map[string][]*PropertyDescriptor),
		owners:     make(map[FqName]string),
	}
}

func (c *Composite) merge(pkg string) *PackageScope {
	scope := newPackageScope(pkg)
	claimed := make(map[FqName]bool)
	for _, p := range c.providers {
		var mine []FqName
		for _, d := range p.Declarations(pkg) {
			fq := d.FqName()
			if claimed[fq] {
				scope.shadowed = append(scope.shadowed, d)
				continue
			}
			if _, ok := scope.owners[fq]; !ok {
				scope.owners[fq] = p.Name()
				mine = append(mine, fq)
			}
			scope.all = append(scope.all, d)
			switch d := d.(type) {
			case *ClassDescriptor:
				if _, ok := scope.classes[d.Name()]; !ok {
					scope.classes[d.Name()] = d
				}
			case *FunctionDescriptor:
				scope.functions[d.Name()] = append(scope.functions[d.Name()], d)
			case *PropertyDescriptor:
				scope.properties[d.Name()] = append(scope.properties[d.Name()], d)
			}
		}
		for _, fq := range mine {
			claimed[fq] = true
		}
	}
	return scope
}

// Providers returns the providers in query order.
func (c *Composite) Providers() []Provider { return c.providers }

// Package returns the merged scope of pkg. The merge runs once per package.
func (c *Composite) Package(pkg string) *PackageScope {
	return c.packages.Get(pkg)
}

// HasPackage reports whether any provider knows pkg.
func (c *Composite) HasPackage(pkg string) bool {
	if pkg == "" {
		return true
	}
	for _, p := range c.providers {
		if p.HasPackage(pkg) {
			return true
		}
	}
	return false
}

// Classifier resolves a fully-qualified class name, including nested
// classes written as Outer.Inner.
func (c *Composite) Classifier(fq FqName) *ClassDescriptor {
	return c.ResolveQualified(fq.Segments())
}

// ResolveQualified resolves a dotted name by trying the longest package
// prefix first and then walking nested classes.
func (c *Composite) ResolveQualified(parts []string) *ClassDescriptor {
	for i := len(parts) - 1; i >= 0; i-- {
		pkg := strings.Join(parts[:i], ".")
		if !c.HasPackage(pkg) {
			continue
		}
		cls := c.Package(pkg).Class(parts[i])
		for _, name := range parts[i+1:] {
			if cls == nil {
				break
			}
			cls = cls.NestedClass(name)
		}
		if cls != nil {
			return cls
		}
	}
	return nil
}
