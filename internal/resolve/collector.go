package resolve

import (
	"sort"

	"github.com/jward/topdown/internal/decls"
	"github.com/jward/topdown/internal/symbols"
	"github.com/jward/topdown/internal/syntax"
)

// localProvider serves descriptor skeletons built from the files of the
// current batch. It takes precedence over every other provider.
type localProvider struct {
	factory   *decls.Factory
	byPackage map[string][]symbols.Descriptor
}

func (p *localProvider) Name() string { return "local" }

func (p *localProvider) Declarations(pkg string) []symbols.Descriptor {
	return p.byPackage[pkg]
}

func (p *localProvider) HasPackage(pkg string) bool {
	return p.factory.HasPackage(pkg)
}

// collector turns declarations into skeleton descriptors and binds each
// declaration in the trace.
type collector struct {
	module *symbols.ModuleDescriptor
	trace  *BindingTrace
	count  int
	err    error
}

func (c *collector) collect(factory *decls.Factory) *localProvider {
	p := &localProvider{factory: factory, byPackage: make(map[string][]symbols.Descriptor)}
	for _, pkg := range factory.Packages() {
		for _, e := range factory.Declarations(pkg) {
			p.byPackage[pkg] = append(p.byPackage[pkg], c.skeleton(e.File, nil, e.Decl))
		}
	}
	return p
}

func (c *collector) skeleton(file *syntax.File, container *symbols.ClassDescriptor, decl *syntax.Declaration) symbols.Descriptor {
	info := symbols.Info{
		Name:       decl.Name,
		Package:    file.Package,
		Origin:     symbols.OriginSource,
		Visibility: symbols.ParseVisibility(decl.Visibility),
		Module:     c.module,
		Container:  container,
		File:       file,
		Decl:       decl,
	}

	var d symbols.Descriptor
	switch decl.Kind {
	case syntax.KindClass, syntax.KindInterface, syntax.KindObject:
		cls := symbols.NewClass(info, classKind(decl.Kind))
		for _, m := range decl.Members {
			cls.AddMember(c.skeleton(file, cls, m))
		}
		d = cls
	case syntax.KindFunction:
		d = symbols.NewFunction(info)
	default:
		d = symbols.NewProperty(info)
	}

	c.count++
	if err := c.trace.RecordDeclaration(decl, d); err != nil && c.err == nil {
		c.err = err
	}
	return d
}

func classKind(k syntax.DeclKind) symbols.ClassKind {
	switch k {
	case syntax.KindInterface:
		return symbols.KindInterface
	case syntax.KindObject:
		return symbols.KindObject
	}
	return symbols.KindClass
}

// sortDescriptors orders descriptors by source path, declaration position,
// then fully-qualified name.
func sortDescriptors(ds []symbols.Descriptor) {
	sort.SliceStable(ds, func(i, j int) bool {
		a, b := ds[i], ds[j]
		if a.SourcePath() != b.SourcePath() {
			return a.SourcePath() < b.SourcePath()
		}
		if pa, pb := declPos(a), declPos(b); pa != pb {
			return pa.Less(pb)
		}
		return a.FqName() < b.FqName()
	})
}
