// Package decls indexes a batch of parsed files by package path. The index
// is built lazily on first query and cached for the factory's lifetime.
package decls

import (
	"sort"
	"strings"

	"github.com/jward/topdown/internal/storage"
	"github.com/jward/topdown/internal/syntax"
)

// Entry is one top-level declaration together with the file declaring it.
type Entry struct {
	File *syntax.File
	Decl *syntax.Declaration
}

// Factory answers declaration queries over a fixed set of files.
// Distinct files with identical paths are kept as-is; redeclarations they
// cause are reported by the analyzer, not here. The same *syntax.File passed
// twice is indexed once.
type Factory struct {
	files []*syntax.File
	index *storage.Lazy[*index]
}

type index struct {
	byPackage map[string][]Entry
	files     map[string][]*syntax.File
	packages  []string
	known     map[string]bool // every package and each of its parents
}

// NewFactory creates a Factory over files. Nothing is computed until the
// first query.
func NewFactory(m *storage.Manager, files []*syntax.File) *Factory {
	sorted := make([]*syntax.File, 0, len(files))
	seen := make(map[*syntax.File]bool, len(files))
	for _, f := range files {
		if f != nil && !seen[f] {
			seen[f] = true
			sorted = append(sorted, f)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Path < sorted[j].Path
	})
	f := &Factory{files: sorted}
	f.index = storage.NewLazy(m, f.build, nil)
	return f
}

func (f *Factory) build() *index {
	idx := &index{
		byPackage: make(map[string][]Entry),
		files:     make(map[string][]*syntax.File),
		known:     map[string]bool{"": true},
	}
	for _, file := range f.files {
		pkg := file.Package
		idx.files[pkg] = append(idx.files[pkg], file)
		for _, d := range file.Declarations {
			idx.byPackage[pkg] = append(idx.byPackage[pkg], Entry{File: file, Decl: d})
		}
		for p := pkg; p != ""; p = parentPackage(p) {
			idx.known[p] = true
		}
	}
	for pkg, entries := range idx.byPackage {
		sortEntries(entries)
		idx.byPackage[pkg] = entries
	}
	for pkg := range idx.files {
		idx.packages = append(idx.packages, pkg)
	}
	sort.Strings(idx.packages)
	return idx
}

// sortEntries orders by (file path, position, name); the sort is stable so
// duplicates of the same file keep their relative order.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.File.Path != b.File.Path {
			return a.File.Path < b.File.Path
		}
		if a.Decl.Pos != b.Decl.Pos {
			return a.Decl.Pos.Less(b.Decl.Pos)
		}
		return a.Decl.Name < b.Decl.Name
	})
}

// Files returns every input file sorted by path, duplicates included.
func (f *Factory) Files() []*syntax.File {
	return f.files
}

// Packages returns the packages declared by at least one file, sorted.
func (f *Factory) Packages() []string {
	return f.index.Get().packages
}

// Declarations returns the top-level declarations of pkg in stable order.
func (f *Factory) Declarations(pkg string) []Entry {
	return f.index.Get().byPackage[pkg]
}

// FilesIn returns the files declaring pkg.
func (f *Factory) FilesIn(pkg string) []*syntax.File {
	return f.index.Get().files[pkg]
}

// HasPackage reports whether pkg, or a package nested in it, is declared.
func (f *Factory) HasPackage(pkg string) bool {
	return f.index.Get().known[pkg]
}

// Contains reports whether file is one of the indexed files.
func (f *Factory) Contains(file *syntax.File) bool {
	for _, x := range f.files {
		if x == file {
			return true
		}
	}
	return false
}

// Computed reports whether the index has been built.
func (f *Factory) Computed() bool {
	return f.index.IsComputed()
}

func parentPackage(pkg string) string {
	if i := strings.LastIndexByte(pkg, '.'); i >= 0 {
		return pkg[:i]
	}
	return ""
}
