package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/jward/topdown/internal/observability"
	"github.com/jward/topdown/internal/parser"
	"github.com/jward/topdown/internal/resolve"
)

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Re-analyze a project whenever its sources change",
	Long:  "Analyzes the project once, then watches its directories and re-runs the analysis after source files change. Changes are debounced by the watch.debounce setting.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&flagMode, "mode", "", "analysis mode: top-level|full (default: mode setting of topdown.toml)")
	watchCmd.Flags().BoolVar(&flagSaveCache, "save-cache", false, "persist compiled parts after every run")
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd.ErrOrStderr(), flagVerbose)
	p, err := loadProject(args, logger)
	if err != nil {
		return outputError(cmd.OutOrStdout(), flagFormat, "watch", err)
	}
	mode := p.cfg.AnalysisMode()
	if flagMode != "" {
		if mode, err = resolve.ParseMode(flagMode); err != nil {
			return outputError(cmd.OutOrStdout(), flagFormat, "watch", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	// Failed runs are logged and watching continues; nothing here decides
	// the exit status.
	rerun := func() {
		err := analyzeOnce(ctx, out, p, mode, flagSaveCache, flagFormat)
		if err != nil && !errors.Is(err, errDiagnostics) {
			logger.Error("analysis failed", "error", err)
		}
	}

	w, err := newSourceWatcher(p, logger, func(paths []string) {
		logger.Info("sources changed", "count", len(paths))
		rerun()
	})
	if err != nil {
		return err
	}
	defer w.Close()

	rerun()
	if err := w.Watch(p.root); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (ctrl-c to stop)\n", p.root)
	<-ctx.Done()
	return nil
}

// sourceWatcher reports batches of changed source files. Events are
// collected until no new one arrived for the debounce interval.
type sourceWatcher struct {
	fsWatcher *fsnotify.Watcher
	project   *project
	logger    *slog.Logger
	debounce  time.Duration
	onChange  func([]string)

	callbackMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]struct{}
	timer     *time.Timer
}

func newSourceWatcher(p *project, logger *slog.Logger, onChange func([]string)) (*sourceWatcher, error) {
	if onChange == nil {
		return nil, os.ErrInvalid
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	return &sourceWatcher{
		fsWatcher: fsw,
		project:   p,
		logger:    logger,
		debounce:  p.cfg.Watch.Debounce,
		onChange:  onChange,
		pending:   make(map[string]struct{}),
	}, nil
}

// Watch adds root and its non-hidden subdirectories and starts delivering
// events.
func (w *sourceWatcher) Watch(root string) error {
	if err := w.watchRecursive(root); err != nil {
		return err
	}
	go w.run()
	return nil
}

func (w *sourceWatcher) watchRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.excludedDir(path) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *sourceWatcher) run() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			observability.WatcherEventsTotal.Inc()

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !w.excludedDir(event.Name) {
						if err := w.watchRecursive(event.Name); err != nil {
							w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
						}
					}
					continue
				}
			}
			if !w.isSource(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.scheduleChange(event.Name)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *sourceWatcher) scheduleChange(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flushChanges)
}

func (w *sourceWatcher) flushChanges() {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]struct{})
	w.pendingMu.Unlock()

	if len(paths) == 0 {
		return
	}
	sort.Strings(paths)
	w.callbackMu.Lock()
	defer w.callbackMu.Unlock()
	w.onChange(paths)
}

func (w *sourceWatcher) excludedDir(path string) bool {
	if path == w.project.root {
		return false
	}
	if strings.HasPrefix(filepath.Base(path), ".") {
		return true
	}
	rel, err := filepath.Rel(w.project.root, path)
	if err != nil {
		return false
	}
	return w.project.cfg.Excluded(filepath.ToSlash(rel) + "/")
}

func (w *sourceWatcher) isSource(path string) bool {
	if _, ok := parser.LanguageForFile(path); !ok {
		return false
	}
	rel, err := filepath.Rel(w.project.root, path)
	if err != nil {
		return false
	}
	return !w.project.cfg.Excluded(filepath.ToSlash(rel))
}

// Close stops the watcher and any pending flush.
func (w *sourceWatcher) Close() error {
	w.pendingMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pendingMu.Unlock()
	return w.fsWatcher.Close()
}
