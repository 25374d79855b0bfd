package platform

import (
	"github.com/jward/topdown/internal/incremental"
	"github.com/jward/topdown/internal/storage"
	"github.com/jward/topdown/internal/symbols"
)

// libraryLoader exposes the library parts the package-part provider admits.
type libraryLoader struct {
	lib   *Library
	parts incremental.PackagePartProvider
}

func (l *libraryLoader) Parts(pkg string) []*symbols.Part {
	var out []*symbols.Part
	for _, t := range l.lib.Targets() {
		if l.parts.HasPart(t, pkg) {
			out = append(out, l.lib.Parts(t, pkg)...)
		}
	}
	return out
}

func (l *libraryLoader) HasPackage(pkg string) bool {
	return l.lib.HasPackage(pkg)
}

// Provider is the interop provider: built-ins first, then library parts.
type Provider struct {
	builtins *symbols.StubProvider
	library  *symbols.StubProvider
}

// NewProvider creates the platform provider of one analysis run. lib may be
// nil. parts decides which library parts are visible; when nil the library
// answers for itself.
func NewProvider(m *storage.Manager, b *BuiltIns, lib *Library, parts incremental.PackagePartProvider) *Provider {
	p := &Provider{
		builtins: symbols.NewStubProvider(m, "builtins", symbols.OriginPlatform, b.Module, b),
	}
	if lib != nil {
		if parts == nil {
			parts = lib
		}
		mod := symbols.NewModule(symbols.SpecialName("library"), Name)
		mod.Seal()
		p.library = symbols.NewStubProvider(m, "library", symbols.OriginLibrary, mod,
			&libraryLoader{lib: lib, parts: parts})
	}
	return p
}

func (p *Provider) Name() string { return "platform" }

func (p *Provider) Declarations(pkg string) []symbols.Descriptor {
	out := p.builtins.Declarations(pkg)
	if p.library != nil {
		lib := p.library.Declarations(pkg)
		if len(lib) > 0 {
			merged := make([]symbols.Descriptor, 0, len(out)+len(lib))
			merged = append(merged, out...)
			out = append(merged, lib...)
		}
	}
	return out
}

func (p *Provider) HasPackage(pkg string) bool {
	return p.builtins.HasPackage(pkg) || (p.library != nil && p.library.HasPackage(pkg))
}

var _ symbols.Provider = (*Provider)(nil)
