// Package parser is the Kotlin-syntax frontend used by the command line
// tools. It parses sources with tree-sitter and lowers the concrete tree into
// the syntax model. Constructs the model cannot express are reported as
// parse errors on the file and skipped.
package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
	"golang.org/x/sync/errgroup"

	"github.com/jward/topdown/internal/observability"
	"github.com/jward/topdown/internal/syntax"
)

// Parse parses one source file. Syntax problems are attached to the file as
// parse errors; only unsupported file types and parser failures are
// returned as errors.
func Parse(ctx context.Context, path string, src []byte) (*syntax.File, error) {
	lang, ok := LanguageForFile(path)
	if !ok {
		return nil, fmt.Errorf("parser: %s: unsupported file type", path)
	}
	grammar, ok := GrammarForLanguage(lang)
	if !ok {
		return nil, fmt.Errorf("parser: %s: no grammar for %s", path, lang)
	}

	p := sitter.NewParser()
	defer p.Close()
	p.SetLanguage(grammar)

	tree, err := p.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parser: %s: %w", path, err)
	}
	defer tree.Close()

	c := &converter{src: src, file: &syntax.File{Path: path}}
	root := tree.RootNode()
	c.collectErrors(root)
	c.sourceFile(root)
	observability.FilesParsed.Inc()
	return c.file, nil
}

// ParseFiles reads and parses paths, relative to root unless root is empty,
// on a bounded worker pool. Each file keeps its path as given, in slash
// form. The result is sorted by path. The first read or parser failure
// cancels the remaining work.
func ParseFiles(ctx context.Context, root string, paths []string) ([]*syntax.File, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	files := make([]*syntax.File, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(runtime.GOMAXPROCS(0), len(paths)))
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			full := path
			if root != "" && !filepath.IsAbs(path) {
				full = filepath.Join(root, path)
			}
			src, err := os.ReadFile(full)
			if err != nil {
				return fmt.Errorf("parser: reading %s: %w", full, err)
			}
			f, err := Parse(gctx, filepath.ToSlash(path), src)
			if err != nil {
				return err
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
