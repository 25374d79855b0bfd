package platform

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/topdown/internal/incremental"
	"github.com/jward/topdown/internal/storage"
	"github.com/jward/topdown/internal/symbols"
)

const manifestYAML = `
target:
  name: collections
  type: library
parts:
  - package: org.coll
    name: org.coll/List.kt
    stubs:
      - name: List
        kind: interface
        members:
          - name: size
            kind: property
            type: lang.Int
      - name: listOf
        kind: function
        return_type: org.coll.List
        params:
          - name: first
            type: lang.Any
`

func TestBuiltins_SharedAndSealed(t *testing.T) {
	t.Parallel()
	b := Builtins()
	assert.Same(t, b, Builtins())
	assert.True(t, b.Module.IsSealed())
	assert.Equal(t, "<builtins>", b.Module.Name())
	assert.True(t, b.HasPackage(symbols.BuiltinsPackage))
	assert.NotEmpty(t, b.Parts(symbols.BuiltinsPackage))
}

func TestProvider_FreshDescriptorsPerRun(t *testing.T) {
	t.Parallel()
	p1 := NewProvider(storage.NewManager(), Builtins(), nil, nil)
	p2 := NewProvider(storage.NewManager(), Builtins(), nil, nil)

	c1 := symbols.NewComposite(storage.NewManager(), p1)
	c2 := symbols.NewComposite(storage.NewManager(), p2)
	s1 := c1.Classifier("lang.String")
	s2 := c2.Classifier("lang.String")
	require.NotNil(t, s1)
	require.NotNil(t, s2)
	assert.NotSame(t, s1, s2)
	assert.NotNil(t, s1.Property("length"))
	assert.Equal(t, symbols.OriginPlatform, s1.Origin())
	assert.Same(t, Builtins().Module, s1.Module())
	assert.Same(t, s1, c1.Classifier("lang.String"))
}

func TestParseManifest(t *testing.T) {
	t.Parallel()
	m, err := ParseManifest(strings.NewReader(manifestYAML))
	require.NoError(t, err)
	assert.Equal(t, incremental.TargetID{Name: "collections", Type: "library"}, m.Target)
	require.Len(t, m.Parts, 1)
	require.Len(t, m.Parts[0].Stubs, 2)
	assert.Equal(t, "lang.Int", m.Parts[0].Stubs[0].Members[0].Type)
	assert.Equal(t, "first", m.Parts[0].Stubs[1].Params[0].Name)
}

func TestParseManifest_Invalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{name: "empty", doc: "", want: "empty document"},
		{name: "unknown field", doc: "target: {name: x}\nbogus: 1\n", want: "bogus"},
		{name: "missing target", doc: "parts: []\n", want: "target.name is required"},
		{name: "bad kind", doc: "target: {name: x}\nparts:\n  - name: p\n    stubs:\n      - name: A\n        kind: enum\n", want: `kind "enum"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadLibrary_PartProviderGatesParts(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "collections.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifestYAML), 0o644))

	lib, err := LoadLibrary(path)
	require.NoError(t, err)
	target := incremental.TargetID{Name: "collections", Type: "library"}
	assert.True(t, lib.HasPart(target, "org.coll"))
	assert.False(t, lib.HasPart(target, "org"))
	assert.True(t, lib.HasPackage("org"))

	open := NewProvider(storage.NewManager(), Builtins(), lib, nil)
	decls := open.Declarations("org.coll")
	require.Len(t, decls, 2)
	assert.Equal(t, symbols.OriginLibrary, decls[0].Origin())

	closed := NewProvider(storage.NewManager(), Builtins(), lib, incremental.NoParts)
	assert.Empty(t, closed.Declarations("org.coll"))
	assert.True(t, closed.HasPackage("org.coll"))

	_, err = LoadLibrary(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
