package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/topdown/internal/config"
)

var (
	flagDB      string
	flagFormat  string
	flagVerbose bool
)

// reportedError is an error outputError already printed.
type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// alreadyReported reports whether err reached the user before it got back to
// main: printed by outputError, or errDiagnostics after its diagnostics.
func alreadyReported(err error) bool {
	var r *reportedError
	return errors.Is(err, errDiagnostics) || errors.As(err, &r)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !alreadyReported(err) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "topdown",
	Short:         "Top-down semantic analysis of Kotlin-syntax sources",
	Long:          "Topdown parses a project with tree-sitter, resolves its declarations and bodies, and reports diagnostics. Compiled parts are cached in SQLite between runs.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "cache database path (default: cache setting of topdown.toml)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log analysis progress to stderr")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(cacheCmd)
}

// newLogger returns a text logger on w. Verbose enables Debug records.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// resolveTargetDir returns the absolute path of the directory to analyze.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findProjectRoot walks up from startDir looking for topdown.toml, then for
// a .git directory. Returns startDir if neither is found.
func findProjectRoot(startDir string) string {
	if dir, ok := walkUp(startDir, func(dir string) bool {
		info, err := os.Stat(filepath.Join(dir, config.FileName))
		return err == nil && !info.IsDir()
	}); ok {
		return dir
	}
	if dir, ok := walkUp(startDir, func(dir string) bool {
		info, err := os.Stat(filepath.Join(dir, ".git"))
		return err == nil && info.IsDir()
	}); ok {
		return dir
	}
	return startDir
}

func walkUp(startDir string, match func(string) bool) (string, bool) {
	dir := startDir
	for {
		if match(dir) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// resolveCachePath returns the cache path from the --db flag or the
// configuration, absolute against root.
func resolveCachePath(root string, cfg *config.Config) string {
	if flagDB != "" {
		return config.Resolve(root, flagDB)
	}
	return config.Resolve(root, cfg.Cache)
}
