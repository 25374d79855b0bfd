package symbols

import (
	"sort"

	"github.com/jward/topdown/internal/storage"
)

// PartLoader is the read side of anything holding compiled parts: an
// incremental cache, a binary library, an extension.
type PartLoader interface {
	Parts(pkg string) []*Part
	HasPackage(pkg string) bool
}

// StubProvider serves descriptors built from compiled stubs. Descriptors
// for a package are built once, on first request, so repeated lookups
// return the same identities. Type names inside stubs stay unresolved until
// the analyzer asks for the descriptor's signature.
type StubProvider struct {
	name   string
	origin Origin
	module *ModuleDescriptor
	loader PartLoader
	built  *storage.Memo[string, []Descriptor]
}

// NewStubProvider creates a provider over loader. Every descriptor it
// produces carries origin and belongs to module.
func NewStubProvider(m *storage.Manager, name string, origin Origin, module *ModuleDescriptor, loader PartLoader) *StubProvider {
	p := &StubProvider{name: name, origin: origin, module: module, loader: loader}
	p.built = storage.NewMemo(m, p.build, nil)
	return p
}

func (p *StubProvider) Name() string { return p.name }

func (p *StubProvider) HasPackage(pkg string) bool {
	return p.loader.HasPackage(pkg)
}

func (p *StubProvider) Declarations(pkg string) []Descriptor {
	return p.built.Get(pkg)
}

func (p *StubProvider) build(pkg string) []Descriptor {
	parts := p.loader.Parts(pkg)
	sorted := make([]*Part, len(parts))
	copy(sorted, parts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	var out []Descriptor
	for _, part := range sorted {
		for _, s := range part.Stubs {
			if d := p.FromStub(pkg, nil, part.SourceFile, s); d != nil {
				out = append(out, d)
			}
		}
	}
	return out
}

// FromStub converts one stub, and its members recursively, into a
// descriptor. Unknown kinds yield nil.
func (p *StubProvider) FromStub(pkg string, container *ClassDescriptor, source string, s *Stub) Descriptor {
	info := Info{
		Name:       s.Name,
		Package:    pkg,
		Origin:     p.origin,
		Visibility: ParseVisibility(s.Visibility),
		Module:     p.module,
		Container:  container,
		Stub:       s,
		SourcePath: source,
	}
	switch s.Kind {
	case "function":
		return NewFunction(info)
	case "property":
		return NewProperty(info)
	}
	kind, ok := ParseClassKind(s.Kind)
	if !ok {
		return nil
	}
	cls := NewClass(info, kind)
	for _, m := range s.Members {
		if d := p.FromStub(pkg, cls, source, m); d != nil {
			cls.AddMember(d)
		}
	}
	return cls
}

var _ Provider = (*StubProvider)(nil)

// MapLoader is an in-memory PartLoader keyed by package.
type MapLoader map[string][]*Part

func (l MapLoader) Parts(pkg string) []*Part { return l[pkg] }

func (l MapLoader) HasPackage(pkg string) bool {
	if _, ok := l[pkg]; ok {
		return true
	}
	for p := range l {
		if len(p) > len(pkg) && p[:len(pkg)] == pkg && p[len(pkg)] == '.' {
			return true
		}
	}
	return false
}

// Add appends parts under their own package.
func (l MapLoader) Add(parts ...*Part) {
	for _, part := range parts {
		l[part.Package] = append(l[part.Package], part)
	}
}
