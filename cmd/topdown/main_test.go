package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/topdown/internal/config"
	"github.com/jward/topdown/internal/resolve"
)

const (
	baseSource    = "package p\n\nopen class A {\n    fun size(): Int = 1\n}\n"
	derivedClean  = "package p\n\nclass B : A() {\n    fun twice(): Int = size() + size()\n}\n"
	derivedBroken = "package p\n\nclass B : A() {\n    fun twice(): Int = size() + size()\n    fun broken(): Int = missing()\n}\n"
)

// newTestProject writes files under a fresh directory with a topdown.toml,
// so the directory is the project root.
func newTestProject(t *testing.T, toml string, files map[string]string) *project {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(toml), 0o644))
	for rel, src := range files {
		writeFile(t, filepath.Join(dir, rel), src)
	}
	p, err := loadProject([]string{dir}, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return p
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFindProjectRoot_ConfigFile(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, config.FileName), "")
	deep := filepath.Join(root, "src", "main")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	assert.Equal(t, root, findProjectRoot(deep))
}

func TestFindProjectRoot_ConfigBeatsGit(t *testing.T) {
	t.Parallel()
	repo := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(repo, ".git"), 0o755))
	module := filepath.Join(repo, "app")
	writeFile(t, filepath.Join(module, config.FileName), "")

	assert.Equal(t, module, findProjectRoot(filepath.Join(module)))
}

func TestFindProjectRoot_GitDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	deep := filepath.Join(root, "sub", "deep")
	require.NoError(t, os.MkdirAll(deep, 0o755))

	assert.Equal(t, root, findProjectRoot(deep))
}

func TestFindProjectRoot_NoMarker(t *testing.T) {
	t.Parallel()
	// TempDir has no marker anywhere in its ancestry
	// (unless /tmp itself is a repo, which would be unusual).
	dir := t.TempDir()
	assert.Equal(t, dir, findProjectRoot(dir))
}

func TestResolveTargetDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	got, err := resolveTargetDir([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = resolveTargetDir([]string{filepath.Join(dir, "missing")})
	require.Error(t, err)

	file := filepath.Join(dir, "a.kt")
	writeFile(t, file, "")
	_, err = resolveTargetDir([]string{file})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	tests := []struct {
		format  string
		wantErr bool
	}{
		{"json", false},
		{"text", false},
		{"yaml", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			err := validateFormat(tt.format)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDiscoverSources(t *testing.T) {
	t.Parallel()
	p := newTestProject(t, `exclude = ["build/**"]`, map[string]string{
		"src/b.kt":         "package p\n",
		"src/a.kt":         "package p\n",
		"scripts/x.kts":    "package s\n",
		"build/gen.kt":     "package g\n",
		".idea/ignored.kt": "package i\n",
		"README.md":        "# readme\n",
	})

	got, err := p.discoverSources()
	require.NoError(t, err)
	assert.Equal(t, []string{"scripts/x.kts", "src/a.kt", "src/b.kt"}, got)
}

func TestResolveCachePath(t *testing.T) {
	t.Parallel()
	p := newTestProject(t, `cache = "out/cache.db"`, nil)
	assert.Equal(t, filepath.Join(p.root, "out", "cache.db"), p.cachePath)
}

type analyzeOutput struct {
	Command    string      `json:"command"`
	Results    CLIAnalysis `json:"results"`
	TotalCount *int        `json:"total_count"`
	Error      string      `json:"error"`
}

func TestAnalyzeOnce_ReportsDiagnostics(t *testing.T) {
	p := newTestProject(t, "", map[string]string{
		"src/a.kt": baseSource,
		"src/b.kt": derivedBroken,
	})

	var buf bytes.Buffer
	err := analyzeOnce(context.Background(), &buf, p, resolve.Full, false, "json")
	require.ErrorIs(t, err, errDiagnostics)

	var out analyzeOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "analyze", out.Command)
	assert.Equal(t, "success", out.Results.Result)
	assert.Equal(t, "full", out.Results.Mode)
	assert.Equal(t, 2, out.Results.Files)
	require.Len(t, out.Results.Diagnostics, 1)
	assert.Equal(t, resolve.UnresolvedReference, out.Results.Diagnostics[0].Code)
	assert.Equal(t, "src/b.kt", out.Results.Diagnostics[0].File)
	require.NotNil(t, out.TotalCount)
	assert.Equal(t, 1, *out.TotalCount)
	assert.Nil(t, out.Results.ChangedParts)
}

func TestAnalyzeOnce_TopLevelSkipsBodies(t *testing.T) {
	p := newTestProject(t, `mode = "top-level"`, map[string]string{
		"src/a.kt": baseSource,
		"src/b.kt": derivedBroken,
	})

	var buf bytes.Buffer
	err := analyzeOnce(context.Background(), &buf, p, p.cfg.AnalysisMode(), false, "text")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "success: 2 files, 0 diagnostics (top-level")
}

func TestAnalyzeOnce_TextFormat(t *testing.T) {
	p := newTestProject(t, "", map[string]string{
		"src/a.kt": baseSource,
		"src/b.kt": derivedBroken,
	})

	var buf bytes.Buffer
	err := analyzeOnce(context.Background(), &buf, p, resolve.Full, false, "text")
	require.ErrorIs(t, err, errDiagnostics)
	assert.Contains(t, buf.String(), "src/b.kt:5:")
	assert.Contains(t, buf.String(), "error UNRESOLVED_REFERENCE")
	assert.Contains(t, buf.String(), "success: 2 files, 1 diagnostics")
}

func TestAnalyzeOnce_ExtensionRejects(t *testing.T) {
	p := newTestProject(t, "scripts_dir = \"checks\"\nextensions = [\"reject.risor\"]\n", map[string]string{
		"src/a.kt":            baseSource,
		"checks/reject.risor": `fail("no classes named A")`,
	})

	var buf bytes.Buffer
	err := analyzeOnce(context.Background(), &buf, p, resolve.Full, false, "json")
	require.ErrorIs(t, err, errDiagnostics)

	var out analyzeOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "error", out.Results.Result)
	assert.Contains(t, out.Results.Error, "no classes named A")
}

func TestAnalyzeOnce_BuiltinStrictCheck(t *testing.T) {
	p := newTestProject(t, `extensions = ["checks/strict.risor"]`, map[string]string{
		"src/a.kt": baseSource,
		"src/c.kt": "package p\n\nclass {\n",
	})

	var buf bytes.Buffer
	err := analyzeOnce(context.Background(), &buf, p, resolve.Full, false, "json")
	require.ErrorIs(t, err, errDiagnostics)

	var out analyzeOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "error", out.Results.Result)
	assert.Contains(t, out.Results.Error, "src/c.kt: ")
}

func TestAnalyzeOnce_BadLibrary(t *testing.T) {
	p := newTestProject(t, `libraries = ["libs/missing.yaml"]`, map[string]string{
		"src/a.kt": baseSource,
	})

	var buf bytes.Buffer
	err := analyzeOnce(context.Background(), &buf, p, resolve.Full, false, "json")
	require.Error(t, err)
	assert.NotErrorIs(t, err, errDiagnostics)

	var out analyzeOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.NotEmpty(t, out.Error)
}

func TestAlreadyReported(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	err := outputError(&buf, "json", "analyze", errors.New("boom"))
	assert.EqualError(t, err, "boom")
	assert.True(t, alreadyReported(err))
	assert.True(t, alreadyReported(fmt.Errorf("watch: %w", errDiagnostics)))
	assert.False(t, alreadyReported(errors.New("not printed")))
}

// Watch reruns analyses from timer goroutines; their outcome travels only
// through the returned error.
func TestAnalyzeOnce_ConcurrentRuns(t *testing.T) {
	p := newTestProject(t, "", map[string]string{
		"src/a.kt": baseSource,
		"src/b.kt": derivedBroken,
	})

	_, err := p.report(context.Background(), resolve.TopLevelDeclarations, false)
	require.NoError(t, err, "create the cache before the concurrent runs")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = analyzeOnce(context.Background(), io.Discard, p, resolve.TopLevelDeclarations, false, "json")
		}()
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}

	err = analyzeOnce(context.Background(), io.Discard, p, resolve.Full, false, "json")
	require.ErrorIs(t, err, errDiagnostics)
	assert.True(t, alreadyReported(err))
}

func TestSaveCacheThenShow(t *testing.T) {
	p := newTestProject(t, "", map[string]string{
		"src/a.kt": baseSource,
		"src/b.kt": derivedClean,
	})
	ctx := context.Background()

	_, err := p.showCache(ctx)
	require.Error(t, err, "no cache before the first save")

	report, err := p.report(ctx, resolve.Full, true)
	require.NoError(t, err)
	assert.Empty(t, report.Diagnostics)
	require.NotNil(t, report.ChangedParts)
	assert.Equal(t, 2, *report.ChangedParts)

	targets, err := p.showCache(ctx)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "main", targets[0].Name)
	assert.Equal(t, "production", targets[0].Type)
	require.Len(t, targets[0].Parts, 2)
	assert.Equal(t, "p", targets[0].Parts[0].Package)
	assert.Empty(t, targets[0].Changed)
	assert.Empty(t, targets[0].Packages)
	assert.Empty(t, targets[0].Dependents)

	// A second save of unchanged sources changes nothing.
	report, err = p.report(ctx, resolve.Full, true)
	require.NoError(t, err)
	assert.Equal(t, 0, *report.ChangedParts)

	writeFile(t, filepath.Join(p.root, "src", "a.kt"),
		"package p\n\nopen class A {\n    fun size(): Int = 1\n    fun extra(): Int = 2\n}\n")
	targets, err = p.showCache(ctx)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Len(t, targets[0].Changed, 1)
	assert.Equal(t, []string{"p"}, targets[0].Packages)
	assert.Contains(t, targets[0].Dependents, "src/b.kt", "b.kt looked up A")

	var buf bytes.Buffer
	require.NoError(t, outputResult(&buf, "text", CLIResult{Command: "cache show", Results: targets}))
	assert.Contains(t, buf.String(), "TARGET")
	assert.Contains(t, buf.String(), "changed")
	assert.Contains(t, buf.String(), "main:production changed packages: p")
	assert.Contains(t, buf.String(), "main:production re-analyze: ")
}

func TestReport_DeletedSourceNotServedFromCache(t *testing.T) {
	p := newTestProject(t, "", map[string]string{
		"src/a.kt": "package p\n\nopen class A\n",
		"src/b.kt": "package p\n\nclass B : A()\n",
	})
	ctx := context.Background()

	report, err := p.report(ctx, resolve.Full, true)
	require.NoError(t, err)
	require.Empty(t, report.Diagnostics)

	require.NoError(t, os.Remove(filepath.Join(p.root, "src", "a.kt")))
	report, err = p.report(ctx, resolve.Full, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Files)
	require.NotEmpty(t, report.Diagnostics, "A must not resolve from the stale cache")
	assert.Equal(t, resolve.UnresolvedReference, report.Diagnostics[0].Code)
	assert.Equal(t, "src/b.kt", report.Diagnostics[0].File)
	assert.Contains(t, report.Diagnostics[0].Message, "A")

	targets, err := p.showCache(ctx)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	for _, part := range targets[0].Parts {
		assert.Equal(t, part.SourceFile == "src/a.kt", part.Obsolete, part.Name)
	}
}

func TestSourceWatcher_Debounces(t *testing.T) {
	t.Parallel()
	p := newTestProject(t, "[watch]\ndebounce = \"20ms\"\n", nil)

	var mu sync.Mutex
	var batches [][]string
	w, err := newSourceWatcher(p, slog.New(slog.DiscardHandler), func(paths []string) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, paths)
	})
	require.NoError(t, err)
	defer w.Close()

	w.scheduleChange("/x/b.kt")
	w.scheduleChange("/x/a.kt")
	w.scheduleChange("/x/b.kt")

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(batches) == 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"/x/a.kt", "/x/b.kt"}, batches[0])
	mu.Unlock()
}

func TestSourceWatcher_Filters(t *testing.T) {
	t.Parallel()
	p := newTestProject(t, `exclude = ["build/**"]`, nil)
	w, err := newSourceWatcher(p, slog.New(slog.DiscardHandler), func([]string) {})
	require.NoError(t, err)
	defer w.Close()

	assert.True(t, w.isSource(filepath.Join(p.root, "src", "a.kt")))
	assert.False(t, w.isSource(filepath.Join(p.root, "src", "a.java")))
	assert.False(t, w.isSource(filepath.Join(p.root, "build", "a.kt")))
	assert.False(t, w.excludedDir(p.root))
	assert.True(t, w.excludedDir(filepath.Join(p.root, ".git")))
	assert.True(t, w.excludedDir(filepath.Join(p.root, "build")))
	assert.False(t, w.excludedDir(filepath.Join(p.root, "src")))
}

func TestSourceWatcher_SeesWrites(t *testing.T) {
	t.Parallel()
	p := newTestProject(t, "[watch]\ndebounce = \"20ms\"\n", map[string]string{
		"src/a.kt": baseSource,
	})

	changed := make(chan []string, 4)
	w, err := newSourceWatcher(p, slog.New(slog.DiscardHandler), func(paths []string) {
		changed <- paths
	})
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Watch(p.root))

	writeFile(t, filepath.Join(p.root, "src", "a.kt"), derivedClean)
	writeFile(t, filepath.Join(p.root, "src", "notes.txt"), "ignored")

	select {
	case paths := <-changed:
		assert.Equal(t, []string{filepath.Join(p.root, "src", "a.kt")}, paths)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	newLogger(&buf, false).Debug("hidden")
	assert.Empty(t, buf.String())

	newLogger(&buf, true).Debug("shown", "k", 1)
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "k=1")
}
