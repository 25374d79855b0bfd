package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jward/topdown"
	"github.com/jward/topdown/internal/cache"
	"github.com/jward/topdown/internal/config"
	"github.com/jward/topdown/internal/incremental"
	"github.com/jward/topdown/internal/parser"
	"github.com/jward/topdown/internal/platform"
	"github.com/jward/topdown/internal/resolve"
	"github.com/jward/topdown/internal/runtime"
	"github.com/jward/topdown/internal/symbols"
	"github.com/jward/topdown/scripts"
)

// project is a source tree with its configuration.
type project struct {
	root      string
	cfg       *config.Config
	cachePath string
	logger    *slog.Logger
}

func loadProject(args []string, logger *slog.Logger) (*project, error) {
	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return nil, err
	}
	root := findProjectRoot(targetDir)
	cfg, err := config.LoadDir(root)
	if err != nil {
		return nil, err
	}
	return &project{root: root, cfg: cfg, cachePath: resolveCachePath(root, cfg), logger: logger}, nil
}

// discoverSources lists the analyzable files under the project root as
// sorted slash paths relative to it. Hidden directories are skipped.
func (p *project) discoverSources() ([]string, error) {
	var out []string
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != p.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := parser.LanguageForFile(path); !ok {
			return nil
		}
		rel, err := filepath.Rel(p.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if p.cfg.Excluded(rel) {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discovering sources: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

// openCache opens and migrates the project's cache, creating its directory.
func (p *project) openCache() (*cache.Store, error) {
	if err := os.MkdirAll(filepath.Dir(p.cachePath), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(p.cachePath), err)
	}
	store, err := cache.Open(p.cachePath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// analysisRun is one analysis of the whole project.
type analysisRun struct {
	sources  []string
	targets  []incremental.Target
	result   *topdown.AnalysisResult
	tracker  *cache.BatchedTracker
	duration time.Duration
}

// analyze parses every source and analyzes it in mode against the cached
// parts of store.
func (p *project) analyze(ctx context.Context, store *cache.Store, mode resolve.Mode) (*analysisRun, error) {
	start := time.Now()
	sources, err := p.discoverSources()
	if err != nil {
		return nil, err
	}
	files, err := parser.ParseFiles(ctx, p.root, sources)
	if err != nil {
		return nil, err
	}

	targets := p.cfg.AssignTargets(sources)
	ids := make([]incremental.TargetID, len(targets))
	for i, t := range targets {
		ids[i] = t.ID
	}
	// Every discovered source is parsed, so cached parts can only stand in
	// for files that no longer exist. Those must not be served.
	for _, id := range ids {
		gone, err := store.MarkDeletedSources(id, sources)
		if err != nil {
			return nil, err
		}
		if len(gone) > 0 {
			p.logger.Info("cached parts of deleted sources marked obsolete", "target", id.String(), "parts", gone)
		}
	}
	tracker := cache.NewBatchedTracker(store)
	components, err := store.Components(tracker, ids...)
	if err != nil {
		return nil, err
	}

	libs := make([]string, len(p.cfg.Libraries))
	for i, l := range p.cfg.Libraries {
		libs[i] = config.Resolve(p.root, l)
	}
	library, err := platform.LoadLibrary(libs...)
	if err != nil {
		return nil, err
	}

	opts := []topdown.Option{topdown.WithLogger(p.logger), topdown.WithLibrary(library)}
	if len(p.cfg.Extensions) > 0 {
		// Without a scripts directory, extensions name built-in scripts.
		rtOpts := []runtime.RuntimeOption{runtime.WithCache(store), runtime.WithLogger(p.logger)}
		if p.cfg.ScriptsDir == "" {
			rtOpts = append(rtOpts, runtime.WithRuntimeFS(scripts.FS))
		}
		rt := runtime.NewRuntime(config.Resolve(p.root, p.cfg.ScriptsDir), rtOpts...)
		exts := make([]topdown.Extension, len(p.cfg.Extensions))
		for i, path := range p.cfg.Extensions {
			exts[i] = runtime.NewScriptExtension(rt, path)
		}
		opts = append(opts, topdown.WithExtensions(exts...))
	}

	mc := topdown.NewModuleContext(p.cfg.Project, p.cfg.Module)
	res := topdown.Analyze(ctx, mc, files, mode, targets, components, nil, opts...)
	p.logger.Debug("project analyzed",
		"root", p.root,
		"files", len(files),
		"diagnostics", len(res.Diagnostics),
		"lookups", tracker.Len())
	return &analysisRun{
		sources:  sources,
		targets:  targets,
		result:   res,
		tracker:  tracker,
		duration: time.Since(start),
	}, nil
}

// parts groups the run's declarations into the parts of each target.
func (r *analysisRun) parts() map[incremental.TargetID][]*symbols.Part {
	out := make(map[incremental.TargetID][]*symbols.Part, len(r.targets))
	if r.result.Bindings == nil {
		return out
	}
	owner := make(map[string]incremental.TargetID)
	for _, t := range r.targets {
		for _, f := range t.SourceFiles {
			owner[f] = t.ID
		}
	}
	byTarget := make(map[incremental.TargetID][]symbols.Descriptor)
	for _, d := range r.result.Bindings.Descriptors() {
		if id, ok := owner[d.SourcePath()]; ok {
			byTarget[id] = append(byTarget[id], d)
		}
	}
	for _, t := range r.targets {
		out[t.ID] = symbols.PartsOf(byTarget[t.ID])
	}
	return out
}

// save persists the run's parts and lookups. It returns the number of
// parts whose signatures changed.
func (r *analysisRun) save(store *cache.Store) (int, error) {
	if r.result.IsError() {
		return 0, fmt.Errorf("not saving a failed analysis: %w", r.result.Err)
	}
	changed := 0
	parts := r.parts()
	for _, t := range r.targets {
		names, err := store.ChangedParts(t.ID, parts[t.ID])
		if err != nil {
			return 0, err
		}
		changed += len(names)
		if err := store.SaveTarget(t.ID, parts[t.ID]); err != nil {
			return 0, err
		}
	}
	if err := r.tracker.Commit(); err != nil {
		return 0, err
	}
	if err := store.SetMetadata("last_saved", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return 0, err
	}
	return changed, nil
}
