package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/topdown/internal/storage"
)

type fixedProvider struct {
	name  string
	decls map[string][]Descriptor
	calls int
}

func (p *fixedProvider) Name() string { return p.name }

func (p *fixedProvider) Declarations(pkg string) []Descriptor {
	p.calls++
	return p.decls[pkg]
}

func (p *fixedProvider) HasPackage(pkg string) bool {
	_, ok := p.decls[pkg]
	return ok
}

func class(pkg, name string, origin Origin) *ClassDescriptor {
	return NewClass(Info{Name: name, Package: pkg, Origin: origin}, KindClass)
}

func TestFqName(t *testing.T) {
	t.Parallel()
	n := Join("org.example", "Outer").Child("Inner")
	assert.Equal(t, FqName("org.example.Outer.Inner"), n)
	assert.Equal(t, "Inner", n.ShortName())
	assert.Equal(t, FqName("org.example.Outer"), n.Parent())
	assert.Equal(t, []string{"org", "example", "Outer", "Inner"}, n.Segments())
	assert.Equal(t, FqName("A"), Join("", "A"))
	assert.Equal(t, FqName(""), FqName("A").Parent())
	assert.Nil(t, FqName("").Segments())
}

func TestModule_SealAndDependencies(t *testing.T) {
	t.Parallel()
	builtins := NewModule(SpecialName("builtins"), "jvm")
	m := NewModule(SpecialName("app"), "jvm")
	assert.Equal(t, "<app>", m.Name())
	assert.Equal(t, "<app>", SpecialName("<app>"))

	require.NoError(t, m.SetDependencies(m, builtins, m))
	assert.Equal(t, []*ModuleDescriptor{m, builtins}, m.Dependencies())
	assert.True(t, m.DependsOn(builtins))

	m.Seal()
	assert.True(t, m.IsSealed())
	assert.ErrorIs(t, m.SetDependencies(), ErrSealed)
	assert.ErrorIs(t, m.AddDependency(NewModule("<x>", "jvm")), ErrSealed)
	assert.Len(t, m.Dependencies(), 2)
}

func TestComposite_EarlierProviderShadows(t *testing.T) {
	t.Parallel()
	fresh := class("p", "A", OriginSource)
	stale := class("p", "A", OriginCache)
	other := class("p", "B", OriginCache)

	local := &fixedProvider{name: "local", decls: map[string][]Descriptor{"p": {fresh}}}
	cached := &fixedProvider{name: "cache", decls: map[string][]Descriptor{"p": {stale, other}}}

	c := NewComposite(storage.NewManager(), local, nil, cached)
	scope := c.Package("p")

	assert.Same(t, fresh, scope.Class("A"))
	assert.Same(t, other, scope.Class("B"))
	assert.Equal(t, []Descriptor{stale}, scope.Shadowed())
	assert.Equal(t, "local", scope.Owner("p.A"))
	assert.Equal(t, "cache", scope.Owner("p.B"))
	assert.Len(t, c.Providers(), 2)
}

func TestComposite_DuplicatesWithinProviderKept(t *testing.T) {
	t.Parallel()
	a1 := class("p", "A", OriginSource)
	a2 := class("p", "A", OriginSource)
	local := &fixedProvider{name: "local", decls: map[string][]Descriptor{"p": {a1, a2}}}

	scope := NewComposite(storage.NewManager(), local).Package("p")
	assert.Len(t, scope.All(), 2)
	assert.Same(t, a1, scope.Class("A"))
	assert.Empty(t, scope.Shadowed())
}

func TestComposite_MergeOncePerPackage(t *testing.T) {
	t.Parallel()
	local := &fixedProvider{name: "local", decls: map[string][]Descriptor{"p": {class("p", "A", OriginSource)}}}
	c := NewComposite(storage.NewManager(), local)
	c.Package("p")
	c.Package("p")
	assert.Equal(t, 1, local.calls)
}

func TestComposite_ResolveQualifiedNested(t *testing.T) {
	t.Parallel()
	outer := class("org.ex", "Outer", OriginSource)
	inner := NewClass(Info{Name: "Inner", Container: outer, Origin: OriginSource}, KindClass)
	outer.AddMember(inner)
	local := &fixedProvider{name: "local", decls: map[string][]Descriptor{
		"org.ex": {outer},
		"org":    nil,
	}}
	c := NewComposite(storage.NewManager(), local)

	assert.Same(t, outer, c.Classifier("org.ex.Outer"))
	assert.Same(t, inner, c.Classifier("org.ex.Outer.Inner"))
	assert.Equal(t, FqName("org.ex.Outer.Inner"), inner.FqName())
	assert.Nil(t, c.Classifier("org.ex.Missing"))
	assert.Nil(t, c.Classifier("org.ex.Outer.Missing"))
}

func TestStubProvider_StableIdentities(t *testing.T) {
	t.Parallel()
	loader := MapLoader{}
	loader.Add(&Part{Package: "lib", Name: "lib/a.kt", SourceFile: "a.kt", Stubs: []*Stub{
		{Name: "Base", Kind: "interface", Members: []*Stub{
			{Name: "size", Kind: "property", Type: "lang.Int"},
			{Name: "get", Kind: "function", Params: []StubParam{{Name: "i", Type: "lang.Int"}}, ReturnType: "lang.Any"},
		}},
		{Name: "helper", Kind: "function", Visibility: "internal", ReturnType: "lang.Unit"},
		{Name: "bogus", Kind: "nonsense"},
	}})
	mod := NewModule("<lib>", "jvm")
	p := NewStubProvider(storage.NewManager(), "library", OriginLibrary, mod, loader)

	first := p.Declarations("lib")
	require.Len(t, first, 2)
	assert.Equal(t, first, p.Declarations("lib"))

	base, ok := first[0].(*ClassDescriptor)
	require.True(t, ok)
	assert.Equal(t, KindInterface, base.Kind())
	assert.Equal(t, OriginLibrary, base.Origin())
	assert.Same(t, mod, base.Module())
	assert.Equal(t, "a.kt", base.SourcePath())
	require.NotNil(t, base.Property("size"))
	assert.Len(t, base.Functions("get"), 1)
	assert.Equal(t, FqName("lib.Base.get"), base.Functions("get")[0].FqName())

	assert.Equal(t, Internal, first[1].Visibility())
	assert.True(t, p.HasPackage("lib"))
	assert.False(t, p.HasPackage("nope"))
}

func TestMapLoader_ParentPackages(t *testing.T) {
	t.Parallel()
	l := MapLoader{}
	l.Add(&Part{Package: "org.example.util"})
	assert.True(t, l.HasPackage("org.example.util"))
	assert.True(t, l.HasPackage("org.example"))
	assert.True(t, l.HasPackage("org"))
	assert.False(t, l.HasPackage("org.ex"))
}

func TestType_Subtyping(t *testing.T) {
	t.Parallel()
	anyCls := class(BuiltinsPackage, "Any", OriginPlatform)
	nothing := class(BuiltinsPackage, "Nothing", OriginPlatform)
	a := class("p", "A", OriginSource)
	b := class("p", "B", OriginSource)
	b.SetSupertypes([]*ClassDescriptor{a})
	b.SetSupertypes(nil)

	assert.True(t, b.DefaultType().IsSubtypeOf(a.DefaultType()))
	assert.False(t, a.DefaultType().IsSubtypeOf(b.DefaultType()))
	assert.True(t, a.DefaultType().IsSubtypeOf(anyCls.DefaultType()))
	assert.True(t, nothing.DefaultType().IsSubtypeOf(b.DefaultType()))
	assert.True(t, ErrorType("").IsSubtypeOf(a.DefaultType()))
	assert.Equal(t, "<error>", ErrorType("").String())
	assert.True(t, Type{}.IsUnknown())
}

func TestClass_IsSubclassOfTerminatesOnCycle(t *testing.T) {
	t.Parallel()
	a := class("p", "A", OriginSource)
	b := class("p", "B", OriginSource)
	c := class("p", "C", OriginSource)
	a.SetSupertypes([]*ClassDescriptor{b})
	b.SetSupertypes([]*ClassDescriptor{a})
	assert.True(t, a.IsSubclassOf(b))
	assert.False(t, a.IsSubclassOf(c))
}

func TestPartsOf_GroupsByPackageAndFile(t *testing.T) {
	t.Parallel()
	intCls := class(BuiltinsPackage, "Int", OriginPlatform)
	a := NewClass(Info{Name: "A", Package: "p", SourcePath: "src/a.kt"}, KindClass)
	a.SetSupertypes(nil)
	f := NewFunction(Info{Name: "f", Package: "p", SourcePath: "src/b.kt", Visibility: Private})
	f.SetSignature([]*ParameterDescriptor{{Name: "x", Type: intCls.DefaultType()}}, intCls.DefaultType())
	q := NewProperty(Info{Name: "q", Package: "p", SourcePath: "src/a.kt"})
	q.SetType(intCls.DefaultType())

	parts := PartsOf([]Descriptor{f, a, q})
	require.Len(t, parts, 2)
	assert.Equal(t, "p/a.kt", parts[0].Name)
	assert.Len(t, parts[0].Stubs, 2)
	assert.Equal(t, "p/b.kt", parts[1].Name)

	stub := parts[1].Stubs[0]
	assert.Equal(t, "function", stub.Kind)
	assert.Equal(t, "private", stub.Visibility)
	assert.Equal(t, []StubParam{{Name: "x", Type: "lang.Int"}}, stub.Params)
	assert.Equal(t, "lang.Int", stub.ReturnType)
	assert.Equal(t, "f(lang.Int)", f.Signature())
}
