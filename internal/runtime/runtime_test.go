package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/topdown"
	"github.com/jward/topdown/internal/cache"
	tderrors "github.com/jward/topdown/internal/errors"
	"github.com/jward/topdown/internal/incremental"
	"github.com/jward/topdown/internal/lookup"
	"github.com/jward/topdown/internal/symbols"
	"github.com/jward/topdown/internal/syntax"
)

// analyzeWith runs a full analysis of a small two-class batch through ext.
func analyzeWith(t *testing.T, ext topdown.Extension, decls ...*syntax.Declaration) *topdown.AnalysisResult {
	t.Helper()
	if len(decls) == 0 {
		decls = []*syntax.Declaration{
			syntax.Class("A"),
			syntax.Class("B", "A"),
			syntax.Fun("f", nil, "Int", syntax.Return(syntax.Int("1"))),
		}
	}
	f := syntax.NewFile("src/a.kt", "p", nil, decls...)
	return topdown.Analyze(context.Background(), topdown.NewModuleContext("proj", "app"), []*topdown.File{f},
		topdown.Full, nil, nil, nil, topdown.WithExtensions(ext))
}

func TestScriptExtension_NoOpinion(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")
	ext := NewSourceExtension(rt, `
if module_name != "<app>" { fail("module " + module_name) }
if project != "proj" { fail("project " + project) }
if len(files) != 1 || files[0] != "src/a.kt" { fail("files") }
cs := classes()
if len(cs) != 2 { fail("class count") }
if cs[0]["fq_name"] != "p.A" || cs[1]["fq_name"] != "p.B" { fail("class order") }
if cs[1]["kind"] != "class" || cs[1]["origin"] != "source" { fail("class attributes") }
fns := functions()
if len(fns) != 1 || fns[0]["name"] != "f" { fail("functions") }
if fns[0]["container"] != nil { fail("container") }
if len(diagnostics()) != 0 { fail("diagnostics") }
`)

	res := analyzeWith(t, ext)
	require.False(t, res.IsError(), "%v", res.Err)
	assert.Equal(t, topdown.KindSuccess, res.Kind)
}

func TestScriptExtension_FailRejects(t *testing.T) {
	t.Parallel()
	ext := NewSourceExtension(NewRuntime(""), `
for _, c := range classes() {
	if c["name"] == "B" { fail("class B is banned") }
}
fail("second reason")
`)

	res := analyzeWith(t, ext)
	require.True(t, res.IsError())
	assert.True(t, tderrors.IsCode(res.Err, tderrors.CodeValidationError))
	assert.Contains(t, res.Err.Error(), "class B is banned; second reason")
	assert.NotNil(t, res.Bindings)
}

func TestScriptExtension_ScriptErrorIsInternal(t *testing.T) {
	t.Parallel()
	ext := NewSourceExtension(NewRuntime(""), `no_such_function()`)

	res := analyzeWith(t, ext)
	require.True(t, res.IsError())
	assert.True(t, tderrors.IsCode(res.Err, tderrors.CodeInternal))
}

func TestScriptExtension_Supertypes(t *testing.T) {
	t.Parallel()
	ext := NewSourceExtension(NewRuntime(""), `
s := supertypes("p.B")
if len(s) != 1 || s[0] != "p.A" { fail("p.B supertypes") }
if len(supertypes("p.A")) != 0 { fail("p.A supertypes") }
if supertypes("p.Missing") != nil { fail("missing class") }
`)

	res := analyzeWith(t, ext)
	require.False(t, res.IsError(), "%v", res.Err)
}

func TestScriptExtension_SeesDiagnostics(t *testing.T) {
	t.Parallel()
	ext := NewSourceExtension(NewRuntime(""), `
for _, d := range diagnostics() {
	if d["code"] == "CYCLIC_INHERITANCE" { fail("cycle in " + d["file"]) }
}
`)

	res := analyzeWith(t, ext, syntax.Class("A", "A"))
	require.True(t, res.IsError())
	assert.Contains(t, res.Err.Error(), "cycle in src/a.kt")
}

func TestScriptExtension_FromFS(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"checks/naming.risor": &fstest.MapFile{Data: []byte(`
for _, c := range classes() {
	if len(c["name"]) < 2 { fail("short class name " + c["name"]) }
}
`)},
	}
	rt := NewRuntime("", WithRuntimeFS(fsys))

	res := analyzeWith(t, NewScriptExtension(rt, "checks/naming.risor"))
	require.True(t, res.IsError())
	assert.Contains(t, res.Err.Error(), "short class name A")
	assert.Contains(t, res.Err.Error(), "checks/naming.risor")
}

func TestScriptExtension_FromDisk(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.risor"), []byte("x := 1\n"), 0o644))

	res := analyzeWith(t, NewScriptExtension(NewRuntime(dir), "ok.risor"))
	require.False(t, res.IsError(), "%v", res.Err)
}

func TestScriptExtension_MissingScript(t *testing.T) {
	t.Parallel()
	res := analyzeWith(t, NewScriptExtension(NewRuntime(t.TempDir()), "absent.risor"))
	require.True(t, res.IsError())
	assert.True(t, tderrors.IsCode(res.Err, tderrors.CodeInternal))
}

func TestLoadScript(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		rt      *Runtime
		path    string
		want    string
		wantErr bool
	}{
		{
			name: "fs",
			rt:   NewRuntime("", WithRuntimeFS(fstest.MapFS{"a.risor": &fstest.MapFile{Data: []byte("1")}})),
			path: "/a.risor",
			want: "1",
		},
		{
			name:    "fs missing",
			rt:      NewRuntime("", WithRuntimeFS(fstest.MapFS{})),
			path:    "a.risor",
			wantErr: true,
		},
		{
			name:    "disk missing",
			rt:      NewRuntime(t.TempDir()),
			path:    "a.risor",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.rt.LoadScript(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func newTestCache(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRuntime_CacheGlobals(t *testing.T) {
	t.Parallel()
	s := newTestCache(t)
	target := incremental.TargetID{Name: "app", Type: "java-production"}
	require.NoError(t, s.SaveTarget(target, []*symbols.Part{
		{Package: "p", Name: "p/a.kt", SourceFile: "src/a.kt", Stubs: []*symbols.Stub{{Name: "A", Kind: "class"}}},
	}))

	fails := &failures{}
	rt := NewRuntime("", WithCache(s))
	err := rt.RunSource(context.Background(), `
ts := cached_targets()
if len(ts) != 1 || ts[0]["name"] != "app" || ts[0]["type"] != "java-production" { fail("targets") }
ps := cached_parts({"name": "app", "type": "java-production"})
if len(ps) != 1 || ps[0]["source_file"] != "src/a.kt" || ps[0]["stubs"] != 1 { fail("parts") }
rows := db_query("SELECT name FROM targets WHERE type = ?", "java-production")
if len(rows) != 1 || rows[0]["name"] != "app" { fail("rows") }
stubs := db_query("SELECT COUNT(*) AS n FROM part_stubs WHERE ordinal >= ?", 0)
if stubs[0]["n"] != 1 { fail("stubs") }
if len(last_lookups()) != 0 { fail("no run committed yet") }
`, map[string]any{"fail": makeFailFn(fails)})
	require.NoError(t, err)
	assert.Empty(t, fails.list())
}

func TestRuntime_CacheGlobalsReportFailures(t *testing.T) {
	t.Parallel()
	s := newTestCache(t)
	fails := &failures{}
	rt := NewRuntime("", WithCache(s))

	err := rt.RunSource(context.Background(), `
if len(cached_targets()) != 0 { fail("expected an empty cache") }
fail("marker")
`, map[string]any{"fail": makeFailFn(fails)})
	require.NoError(t, err)
	assert.Equal(t, []string{"marker"}, fails.list())

	err = rt.RunSource(context.Background(), `db_query("DELETE FROM targets")`, nil)
	require.Error(t, err)
	err = rt.RunSource(context.Background(), `db_query("SELECT name FROM targets WHERE id = ?", 1.5)`, nil)
	require.Error(t, err)
}

func TestRuntime_LastLookups(t *testing.T) {
	t.Parallel()
	s := newTestCache(t)
	b := cache.NewBatchedTracker(s)
	b.Record(lookup.Lookup{File: "src/b.kt", Line: 3, Col: 11, Scope: "p", ScopeKind: lookup.ScopePackage, Name: "A", Result: lookup.Resolved})
	b.Record(lookup.Lookup{File: "src/b.kt", Line: 5, Col: 5, Scope: "p", ScopeKind: lookup.ScopePackage, Name: "missing", Result: lookup.Unresolved})
	require.NoError(t, b.Commit())

	fails := &failures{}
	err := NewRuntime("", WithCache(s)).RunSource(context.Background(), `
ls := last_lookups()
if len(ls) != 2 { fail("count") }
if ls[0]["name"] != "A" || ls[0]["line"] != 3 || ls[0]["file"] != "src/b.kt" { fail("first") }
if ls[1]["result"] != "unresolved" { fail("second") }
`, map[string]any{"fail": makeFailFn(fails)})
	require.NoError(t, err)
	assert.Empty(t, fails.list())
}

func TestRuntime_NoCacheGlobalsWithoutCache(t *testing.T) {
	t.Parallel()
	err := NewRuntime("").RunSource(context.Background(), `cached_targets()`, nil)
	require.Error(t, err)
}
