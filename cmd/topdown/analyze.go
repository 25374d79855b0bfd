package main

import (
	"context"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/jward/topdown/internal/resolve"
)

var (
	flagMode      string
	flagSaveCache bool
)

// errDiagnostics makes the process exit non-zero after the diagnostics were
// printed.
var errDiagnostics = errors.New("analysis reported errors")

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "Analyze a project and print its diagnostics",
	Long:  "Parses every source file of the project, resolves declarations and (in full mode) bodies, and prints the diagnostics. Exits non-zero when the analysis failed or reported errors.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&flagMode, "mode", "", "analysis mode: top-level|full (default: mode setting of topdown.toml)")
	analyzeCmd.Flags().BoolVar(&flagSaveCache, "save-cache", false, "persist compiled parts for the next run")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd.ErrOrStderr(), flagVerbose)
	p, err := loadProject(args, logger)
	if err != nil {
		return outputError(cmd.OutOrStdout(), flagFormat, "analyze", err)
	}
	mode := p.cfg.AnalysisMode()
	if flagMode != "" {
		if mode, err = resolve.ParseMode(flagMode); err != nil {
			return outputError(cmd.OutOrStdout(), flagFormat, "analyze", err)
		}
	}
	return analyzeOnce(cmd.Context(), cmd.OutOrStdout(), p, mode, flagSaveCache, flagFormat)
}

// analyzeOnce runs one analysis and writes its report to w. It returns
// errDiagnostics when the run failed or reported errors.
func analyzeOnce(ctx context.Context, w io.Writer, p *project, mode resolve.Mode, save bool, format string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	report, err := p.report(ctx, mode, save)
	if err != nil {
		return outputError(w, format, "analyze", err)
	}
	n := len(report.Diagnostics)
	if err := outputResult(w, format, CLIResult{Command: "analyze", Results: *report, TotalCount: &n}); err != nil {
		return err
	}
	if report.Result != "success" || resolve.HasErrors(report.Diagnostics) {
		return errDiagnostics
	}
	return nil
}

// report analyzes the project against its cache and, when save is set,
// persists the result.
func (p *project) report(ctx context.Context, mode resolve.Mode, save bool) (*CLIAnalysis, error) {
	store, err := p.openCache()
	if err != nil {
		return nil, err
	}
	defer store.Close()

	run, err := p.analyze(ctx, store, mode)
	if err != nil {
		return nil, err
	}
	res := run.result
	report := &CLIAnalysis{
		Root:        p.root,
		Mode:        mode.String(),
		Files:       len(run.sources),
		Result:      res.Kind.String(),
		Diagnostics: res.Diagnostics,
		DurationMS:  run.duration.Milliseconds(),
	}
	if report.Diagnostics == nil {
		report.Diagnostics = []resolve.Diagnostic{}
	}
	if res.Err != nil {
		report.Error = res.Err.Error()
	}
	if save && !res.IsError() {
		changed, err := run.save(store)
		if err != nil {
			return nil, err
		}
		report.ChangedParts = &changed
	}
	return report, nil
}
