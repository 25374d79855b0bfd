package cache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tderrors "github.com/jward/topdown/internal/errors"
	"github.com/jward/topdown/internal/incremental"
	"github.com/jward/topdown/internal/lookup"
	"github.com/jward/topdown/internal/symbols"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

var app = incremental.TargetID{Name: "app", Type: "java-production"}

func sampleParts() []*symbols.Part {
	return []*symbols.Part{
		{Package: "p", Name: "p/a.kt", SourceFile: "src/a.kt", Stubs: []*symbols.Stub{
			{Name: "A", Kind: "class", Members: []*symbols.Stub{
				{Name: "size", Kind: "property", Type: "lang.Int"},
			}},
		}},
		{Package: "p", Name: "p/b.kt", SourceFile: "src/b.kt", Stubs: []*symbols.Stub{
			{Name: "B", Kind: "class", Supertypes: []string{"p.A"}},
			{Name: "f", Kind: "function", Params: []symbols.StubParam{{Name: "x", Type: "lang.Int"}}, ReturnType: "lang.Unit"},
		}},
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())

	for _, table := range []string{"targets", "parts", "part_stubs", "lookups", "metadata"} {
		var name string
		err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s missing", table)
	}
}

func TestSaveTarget_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.SaveTarget(app, sampleParts()))

	targets, err := s.Targets()
	require.NoError(t, err)
	assert.Equal(t, []incremental.TargetID{app}, targets)

	parts, obsolete, err := s.LoadParts(app)
	require.NoError(t, err)
	assert.Empty(t, obsolete)
	assert.Equal(t, sampleParts(), parts)

	infos, err := s.PartInfos(app)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, 2, infos[1].Stubs)
	assert.Equal(t, PartHash(sampleParts()[1]), infos[1].Hash)
}

func TestSaveTarget_Replaces(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.SaveTarget(app, sampleParts()))
	require.NoError(t, s.SaveTarget(app, sampleParts()[:1]))

	parts, _, err := s.LoadParts(app)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, "p/a.kt", parts[0].Name)

	var stubs int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM part_stubs").Scan(&stubs))
	assert.Equal(t, 1, stubs)
}

func TestLoadParts_UnknownTarget(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, _, err := s.LoadParts(incremental.TargetID{Name: "nope"})
	require.Error(t, err)
	assert.True(t, tderrors.IsCode(err, tderrors.CodeNotFound))
}

func TestChangedParts(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	changed, err := s.ChangedParts(app, sampleParts())
	require.NoError(t, err)
	assert.Equal(t, []string{"p/a.kt", "p/b.kt"}, changed, "unsaved target: everything changed")

	require.NoError(t, s.SaveTarget(app, sampleParts()))
	changed, err = s.ChangedParts(app, sampleParts())
	require.NoError(t, err)
	assert.Empty(t, changed)

	next := sampleParts()
	next[1].Stubs[1].ReturnType = "lang.Int"
	next[0].SourceFile = "moved/a.kt"
	changed, err = s.ChangedParts(app, next)
	require.NoError(t, err)
	assert.Equal(t, []string{"p/b.kt"}, changed, "location is not part of the signature")

	changed, err = s.ChangedParts(app, sampleParts()[:1])
	require.NoError(t, err)
	assert.Equal(t, []string{"p/b.kt"}, changed, "removed part")
}

func TestChangedParts_ReadError(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.SaveTarget(app, sampleParts()))
	_, err := s.DB().Exec("ALTER TABLE parts RENAME TO parts_old")
	require.NoError(t, err)

	changed, err := s.ChangedParts(app, sampleParts())
	require.Error(t, err, "a failed read must not report every part as changed")
	assert.Nil(t, changed)
}

func TestMarkDeletedSources(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	gone, err := s.MarkDeletedSources(app, []string{"src/b.kt"})
	require.NoError(t, err)
	assert.Empty(t, gone, "unknown target")

	parts := append(sampleParts(), &symbols.Part{Package: "lib", Name: "lib/x", Stubs: []*symbols.Stub{{Name: "X", Kind: "class"}}})
	require.NoError(t, s.SaveTarget(app, parts))
	gone, err = s.MarkDeletedSources(app, []string{"src/b.kt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p/a.kt"}, gone)

	_, obsolete, err := s.LoadParts(app)
	require.NoError(t, err)
	assert.Equal(t, []string{"p/a.kt"}, obsolete)

	gone, err = s.MarkDeletedSources(app, []string{"src/b.kt"})
	require.NoError(t, err)
	assert.Empty(t, gone, "already obsolete")
}

func TestSignatureHash(t *testing.T) {
	t.Parallel()
	a := &symbols.Stub{Name: "A", Kind: "class", Supertypes: []string{"x.I", "x.J"}, Members: []*symbols.Stub{
		{Name: "m", Kind: "function"}, {Name: "n", Kind: "function"},
	}}
	b := &symbols.Stub{Name: "A", Kind: "class", Supertypes: []string{"x.J", "x.I"}, Members: []*symbols.Stub{
		{Name: "n", Kind: "function"}, {Name: "m", Kind: "function"},
	}}
	assert.Equal(t, SignatureHash(a), SignatureHash(b))

	f1 := &symbols.Stub{Name: "f", Kind: "function", Params: []symbols.StubParam{{Name: "a", Type: "lang.Int"}, {Name: "b", Type: "lang.String"}}}
	f2 := &symbols.Stub{Name: "f", Kind: "function", Params: []symbols.StubParam{{Name: "b", Type: "lang.String"}, {Name: "a", Type: "lang.Int"}}}
	assert.NotEqual(t, SignatureHash(f1), SignatureHash(f2))

	private := &symbols.Stub{Name: "A", Kind: "class", Visibility: "private"}
	assert.NotEqual(t, SignatureHash(&symbols.Stub{Name: "A", Kind: "class"}), SignatureHash(private))
}

func TestComponents_ObsoleteAndMissing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.SaveTarget(app, sampleParts()))
	require.NoError(t, s.MarkObsolete(app, "p/b.kt"))

	rec := lookup.NewRecorder()
	other := incremental.TargetID{Name: "other"}
	c, err := s.Components(rec, app, other)
	require.NoError(t, err)

	assert.Same(t, rec, c.LookupTracker())
	assert.Nil(t, c.IncrementalCache(other))
	cache := c.IncrementalCache(app)
	require.NotNil(t, cache)
	assert.Equal(t, []string{"p/b.kt"}, cache.ObsoleteParts())
	assert.Len(t, cache.Parts("p"), 2)
	assert.True(t, cache.HasPackage("p"))

	def, err := s.Components(nil)
	require.NoError(t, err)
	assert.Equal(t, lookup.DoNothing, def.LookupTracker())
}

func TestBatchedTracker_Commit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	b := NewBatchedTracker(s)
	require.NotEmpty(t, b.RunID())

	b.Record(lookup.Lookup{File: "src/b.kt", Line: 3, Col: 1, Scope: "p", ScopeKind: lookup.ScopePackage, Name: "A", Result: lookup.Resolved})
	b.Record(lookup.Lookup{File: "src/c.kt", Line: 1, Col: 1, Scope: "p", ScopeKind: lookup.ScopePackage, Name: "Z", Result: lookup.Unresolved})
	b.Record(lookup.Lookup{Scope: "p", ScopeKind: lookup.ScopeDeclaration, Name: "p.A", Result: lookup.Computed})
	assert.Equal(t, 3, b.Len())

	var count int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM lookups").Scan(&count))
	assert.Equal(t, 0, count, "nothing written before commit")

	require.NoError(t, b.Commit())
	assert.Equal(t, 0, b.Len())

	last, err := s.LastRun()
	require.NoError(t, err)
	assert.Equal(t, b.RunID(), last)

	got, err := s.RunLookups(b.RunID())
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, lookup.Unresolved, got[1].Result)
	assert.Equal(t, lookup.Computed, got[2].Result)
	assert.Equal(t, lookup.ScopePackage, got[0].ScopeKind)

	files, err := s.DependentFiles(b.RunID(), "A", "Z", "p.A")
	require.NoError(t, err)
	assert.Equal(t, []string{"src/b.kt", "src/c.kt"}, files)
}

func TestMetadata(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	v, err := s.Metadata("module")
	require.NoError(t, err)
	assert.Empty(t, v)
	require.NoError(t, s.SetMetadata("module", "<app>"))
	require.NoError(t, s.SetMetadata("module", "<app2>"))
	v, err = s.Metadata("module")
	require.NoError(t, err)
	assert.Equal(t, "<app2>", v)
}
