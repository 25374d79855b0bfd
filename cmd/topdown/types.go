package main

import "github.com/jward/topdown/internal/resolve"

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLIAnalysis summarizes one analysis run.
type CLIAnalysis struct {
	Root         string               `json:"root"`
	Mode         string               `json:"mode"`
	Files        int                  `json:"files"`
	Result       string               `json:"result"`
	Error        string               `json:"error,omitempty"`
	Diagnostics  []resolve.Diagnostic `json:"diagnostics"`
	ChangedParts *int                 `json:"changed_parts,omitempty"`
	DurationMS   int64                `json:"duration_ms"`
}

// CLITarget is a cached target with its parts. Dependents are the files
// whose lookups in the last saved run hit a name declared by a changed part.
type CLITarget struct {
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Parts      []CLIPart `json:"parts"`
	Changed    []string  `json:"changed"`
	Packages   []string  `json:"changed_packages"`
	Dependents []string  `json:"dependents"`
}

// CLIPart is a JSON-friendly cached part.
type CLIPart struct {
	Package    string `json:"package"`
	Name       string `json:"name"`
	SourceFile string `json:"source_file,omitempty"`
	Stubs      int    `json:"stubs"`
	Obsolete   bool   `json:"obsolete,omitempty"`
}
