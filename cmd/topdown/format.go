package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}

// outputResult writes result to w in the given format.
func outputResult(w io.Writer, format string, result CLIResult) error {
	if format == "text" {
		return outputResultText(w, result)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to w as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(w io.Writer, format, command string, err error) error {
	if format == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return &reportedError{err: err}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return &reportedError{err: err}
}

func outputResultText(w io.Writer, result CLIResult) error {
	switch r := result.Results.(type) {
	case CLIAnalysis:
		formatAnalysisText(w, r)
	case []CLITarget:
		formatTargetsText(w, r)
	default:
		return fmt.Errorf("no text format for %s results", result.Command)
	}
	return nil
}

// formatAnalysisText prints one "file:line:col: severity CODE: message" line
// per diagnostic followed by a summary line.
func formatAnalysisText(w io.Writer, a CLIAnalysis) {
	for _, d := range a.Diagnostics {
		fmt.Fprintln(w, d.String())
	}
	fmt.Fprintf(w, "%s: %d files, %d diagnostics (%s, %dms)\n",
		a.Result, a.Files, len(a.Diagnostics), a.Mode, a.DurationMS)
	if a.Error != "" {
		fmt.Fprintf(w, "error: %s\n", a.Error)
	}
	if a.ChangedParts != nil {
		fmt.Fprintf(w, "cache saved, %d parts changed\n", *a.ChangedParts)
	}
}

// formatTargetsText formats cached targets as aligned columns.
func formatTargetsText(w io.Writer, targets []CLITarget) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TARGET\tPACKAGE\tPART\tSTUBS\tSTATE")
	for _, t := range targets {
		changed := make(map[string]bool, len(t.Changed))
		for _, c := range t.Changed {
			changed[c] = true
		}
		for _, p := range t.Parts {
			state := "ok"
			switch {
			case p.Obsolete:
				state = "obsolete"
			case changed[p.Name]:
				state = "changed"
			}
			fmt.Fprintf(tw, "%s:%s\t%s\t%s\t%d\t%s\n", t.Name, t.Type, p.Package, p.Name, p.Stubs, state)
		}
	}
	tw.Flush()

	for _, t := range targets {
		if len(t.Packages) > 0 {
			fmt.Fprintf(w, "%s:%s changed packages: %s\n", t.Name, t.Type, strings.Join(t.Packages, ", "))
		}
		if len(t.Dependents) > 0 {
			fmt.Fprintf(w, "%s:%s re-analyze: %s\n", t.Name, t.Type, strings.Join(t.Dependents, ", "))
		}
	}
}
