// Package incremental wires incremental-build collaborators into an
// analysis: compilation targets, their caches of compiled parts, and the
// package-part provider used to find binary dependencies.
package incremental

import (
	"fmt"
	"path/filepath"
	"sort"

	tderrors "github.com/jward/topdown/internal/errors"
	"github.com/jward/topdown/internal/lookup"
	"github.com/jward/topdown/internal/storage"
	"github.com/jward/topdown/internal/symbols"
	"github.com/jward/topdown/internal/syntax"
)

// TargetID identifies one compilation target.
type TargetID struct {
	Name string `json:"name" toml:"name" yaml:"name"`
	Type string `json:"type" toml:"type" yaml:"type"`
}

func (t TargetID) String() string {
	if t.Type == "" {
		return t.Name
	}
	return t.Name + ":" + t.Type
}

// BuildModule is a build-system module: one target and the source files it
// compiles.
type BuildModule struct {
	Name        string
	Type        string
	SourceFiles []string
}

// TargetOf derives the target a build module compiles into.
func TargetOf(m BuildModule) TargetID {
	return TargetID{Name: m.Name, Type: m.Type}
}

// Target is a target together with the source files it owns.
type Target struct {
	ID          TargetID
	SourceFiles []string
}

// TargetsOf converts build modules into targets, keeping their order.
func TargetsOf(modules []BuildModule) []Target {
	if modules == nil {
		return nil
	}
	out := make([]Target, 0, len(modules))
	for _, m := range modules {
		out = append(out, Target{ID: TargetOf(m), SourceFiles: m.SourceFiles})
	}
	return out
}

// PackagePartProvider answers whether a target contains a compiled part for
// a package. The build system supplies it.
type PackagePartProvider interface {
	HasPart(target TargetID, pkg string) bool
}

// PartProviderFunc adapts a function to PackagePartProvider.
type PartProviderFunc func(target TargetID, pkg string) bool

func (f PartProviderFunc) HasPart(target TargetID, pkg string) bool { return f(target, pkg) }

// NoParts is a provider that knows no compiled parts.
var NoParts PackagePartProvider = PartProviderFunc(func(TargetID, string) bool { return false })

// Cache is the read-only incremental cache of one target.
type Cache interface {
	symbols.PartLoader

	// ObsoleteParts names parts that must not be served because their
	// sources changed since the cache was written.
	ObsoleteParts() []string
}

// Components are the incremental-compilation collaborators of a build.
type Components interface {
	LookupTracker() lookup.Tracker

	// IncrementalCache returns the cache of target, or nil if it has none.
	IncrementalCache(target TargetID) Cache
}

// Assignment maps each target to the batch files it owns.
type Assignment struct {
	Targets []Target
	files   map[TargetID][]*syntax.File
	owner   map[string]TargetID
}

// Files returns the batch files owned by target, sorted by path.
func (a *Assignment) Files(target TargetID) []*syntax.File {
	return a.files[target]
}

// Owner returns the target owning path.
func (a *Assignment) Owner(path string) (TargetID, bool) {
	t, ok := a.owner[cleanPath(path)]
	return t, ok
}

// AssignFiles matches batch files to the targets listing them. A file listed
// by two targets, or a target listed twice, is a precondition failure.
// Files no target lists stay unassigned.
func AssignFiles(targets []Target, files []*syntax.File) (*Assignment, error) {
	a := &Assignment{
		Targets: targets,
		files:   make(map[TargetID][]*syntax.File),
		owner:   make(map[string]TargetID),
	}
	seen := make(map[TargetID]bool, len(targets))
	for _, t := range targets {
		if seen[t.ID] {
			return nil, tderrors.AddContext(
				tderrors.New(tderrors.CodePrecondition, "target listed twice"),
				tderrors.CtxTarget, t.ID.String())
		}
		seen[t.ID] = true
		for _, p := range t.SourceFiles {
			p = cleanPath(p)
			if prev, ok := a.owner[p]; ok && prev != t.ID {
				return nil, tderrors.AddContext(
					tderrors.Newf(tderrors.CodePrecondition, "file %s belongs to targets %s and %s", p, prev, t.ID),
					tderrors.CtxPath, p)
			}
			a.owner[p] = t.ID
		}
	}
	for _, f := range files {
		if f == nil {
			continue
		}
		if id, ok := a.owner[cleanPath(f.Path)]; ok {
			a.files[id] = append(a.files[id], f)
		}
	}
	for id, fs := range a.files {
		sort.SliceStable(fs, func(i, j int) bool { return fs[i].Path < fs[j].Path })
		a.files[id] = fs
	}
	return a, nil
}

func cleanPath(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}

type batchPartProvider struct {
	parent   PackagePartProvider
	targets  map[TargetID]bool
	packages map[string]bool
}

// WrapPartProvider hides compiled parts of the batch's targets for packages
// whose sources are in the batch, so they are not served twice. With no
// targets or no components the parent is returned unchanged.
func WrapPartProvider(parent PackagePartProvider, files []*syntax.File, targets []Target, components Components) PackagePartProvider {
	if parent == nil {
		parent = NoParts
	}
	if len(targets) == 0 || components == nil {
		return parent
	}
	w := &batchPartProvider{
		parent:   parent,
		targets:  make(map[TargetID]bool, len(targets)),
		packages: make(map[string]bool),
	}
	for _, t := range targets {
		w.targets[t.ID] = true
	}
	for _, f := range files {
		if f != nil {
			w.packages[f.Package] = true
		}
	}
	return w
}

func (w *batchPartProvider) HasPart(target TargetID, pkg string) bool {
	if w.targets[target] && w.packages[pkg] {
		return false
	}
	return w.parent.HasPart(target, pkg)
}

// cacheLoader filters a target's cache down to parts not superseded by the
// current batch.
type cacheLoader struct {
	cache    Cache
	exclude  map[string]bool
	obsolete map[string]bool
}

func (l *cacheLoader) Parts(pkg string) []*symbols.Part {
	var out []*symbols.Part
	for _, p := range l.cache.Parts(pkg) {
		if l.obsolete[p.Name] || (p.SourceFile != "" && l.exclude[cleanPath(p.SourceFile)]) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (l *cacheLoader) HasPackage(pkg string) bool {
	return l.cache.HasPackage(pkg)
}

// NewCacheProvider creates the provider serving target's cached parts.
// Parts compiled from a file in targetFiles are skipped: the fresh source
// supersedes them.
func NewCacheProvider(m *storage.Manager, module *symbols.ModuleDescriptor, cache Cache, target TargetID, targetFiles []*syntax.File) *symbols.StubProvider {
	l := &cacheLoader{
		cache:    cache,
		exclude:  make(map[string]bool, len(targetFiles)),
		obsolete: make(map[string]bool),
	}
	for _, f := range targetFiles {
		l.exclude[cleanPath(f.Path)] = true
	}
	for _, name := range cache.ObsoleteParts() {
		l.obsolete[name] = true
	}
	return symbols.NewStubProvider(m, fmt.Sprintf("incremental[%s]", target), symbols.OriginCache, module, l)
}
