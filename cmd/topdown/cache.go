package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jward/topdown/internal/cache"
	"github.com/jward/topdown/internal/resolve"
	"github.com/jward/topdown/internal/symbols"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the incremental cache",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "List cached targets and parts, the parts changed since the last save, and the files to re-analyze",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCacheShow,
}

func init() {
	cacheCmd.AddCommand(cacheShowCmd)
}

func runCacheShow(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd.ErrOrStderr(), flagVerbose)
	p, err := loadProject(args, logger)
	if err != nil {
		return outputError(cmd.OutOrStdout(), flagFormat, "cache show", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	targets, err := p.showCache(ctx)
	if err != nil {
		return outputError(cmd.OutOrStdout(), flagFormat, "cache show", err)
	}
	n := len(targets)
	return outputResult(cmd.OutOrStdout(), flagFormat, CLIResult{Command: "cache show", Results: targets, TotalCount: &n})
}

// showCache lists the cached targets. Changed parts compare the current
// sources' signatures against the saved ones.
func (p *project) showCache(ctx context.Context) ([]CLITarget, error) {
	if _, err := os.Stat(p.cachePath); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no cache at %s: run analyze --save-cache first", p.cachePath)
	}
	store, err := p.openCache()
	if err != nil {
		return nil, err
	}
	defer store.Close()

	ids, err := store.Targets()
	if err != nil {
		return nil, err
	}
	run, err := p.analyze(ctx, store, resolve.TopLevelDeclarations)
	if err != nil {
		return nil, err
	}
	fresh := run.parts()
	lastRun, err := store.LastRun()
	if err != nil {
		return nil, err
	}

	out := make([]CLITarget, 0, len(ids))
	for _, id := range ids {
		infos, err := store.PartInfos(id)
		if err != nil {
			return nil, err
		}
		changed, err := store.ChangedParts(id, fresh[id])
		if err != nil {
			return nil, err
		}
		t := CLITarget{Name: id.Name, Type: id.Type, Parts: make([]CLIPart, 0, len(infos)), Changed: changed}
		if t.Changed == nil {
			t.Changed = []string{}
		}
		t.Packages = changedPackages(changed, infos, fresh[id])

		saved, _, err := store.LoadParts(id)
		if err != nil {
			return nil, err
		}
		t.Dependents, err = store.DependentFiles(lastRun, declaredNames(changed, saved, fresh[id])...)
		if err != nil {
			return nil, err
		}
		if t.Dependents == nil {
			t.Dependents = []string{}
		}
		for _, info := range infos {
			t.Parts = append(t.Parts, CLIPart{
				Package:    info.Package,
				Name:       info.Name,
				SourceFile: info.SourceFile,
				Stubs:      info.Stubs,
				Obsolete:   info.Obsolete,
			})
		}
		out = append(out, t)
	}
	return out, nil
}

// changedPackages maps changed part names to their packages, looking in
// both the saved and the fresh parts.
func changedPackages(changed []string, saved []cache.PartInfo, fresh []*symbols.Part) []string {
	pkgOf := make(map[string]string, len(saved)+len(fresh))
	for _, info := range saved {
		pkgOf[info.Name] = info.Package
	}
	for _, p := range fresh {
		pkgOf[p.Name] = p.Package
	}
	seen := make(map[string]bool)
	out := []string{}
	for _, name := range changed {
		pkg := pkgOf[name]
		if seen[pkg] {
			continue
		}
		seen[pkg] = true
		out = append(out, pkg)
	}
	sort.Strings(out)
	return out
}

// declaredNames lists the simple names declared by the changed parts,
// members included, as they were saved and as they are now. These are the
// names whose earlier lookups are stale.
func declaredNames(changed []string, saved, fresh []*symbols.Part) []string {
	want := make(map[string]bool, len(changed))
	for _, name := range changed {
		want[name] = true
	}
	seen := make(map[string]bool)
	var out []string
	var add func(stubs []*symbols.Stub)
	add = func(stubs []*symbols.Stub) {
		for _, st := range stubs {
			if !seen[st.Name] {
				seen[st.Name] = true
				out = append(out, st.Name)
			}
			add(st.Members)
		}
	}
	for _, parts := range [][]*symbols.Part{saved, fresh} {
		for _, p := range parts {
			if want[p.Name] {
				add(p.Stubs)
			}
		}
	}
	sort.Strings(out)
	return out
}
