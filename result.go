package topdown

import (
	"context"

	"github.com/jward/topdown/internal/resolve"
	"github.com/jward/topdown/internal/storage"
	"github.com/jward/topdown/internal/symbols"
)

// ResultKind says whether an analysis produced a usable model.
type ResultKind int

const (
	KindSuccess ResultKind = iota
	KindError
)

func (k ResultKind) String() string {
	if k == KindError {
		return "error"
	}
	return "success"
}

// AnalysisResult is the terminal value of an analysis run. A successful
// result may still carry error diagnostics; Err is set only for failures
// that prevented a usable model.
type AnalysisResult struct {
	Kind        ResultKind
	Bindings    *BindingTrace
	Module      *Module
	Diagnostics []Diagnostic
	Err         error
}

// Success wraps finished bindings. Diagnostics are taken from bindings.
func Success(bindings *BindingTrace, module *Module) *AnalysisResult {
	r := &AnalysisResult{Kind: KindSuccess, Bindings: bindings, Module: module}
	if bindings != nil {
		r.Diagnostics = bindings.Diagnostics()
	}
	return r
}

// Failure is a result that must not be used as a semantic model. Bindings
// may be nil or partial.
func Failure(bindings *BindingTrace, err error, diags ...Diagnostic) *AnalysisResult {
	r := &AnalysisResult{Kind: KindError, Bindings: bindings, Err: err}
	if bindings != nil {
		r.Diagnostics = bindings.Diagnostics()
	}
	r.Diagnostics = append(r.Diagnostics, diags...)
	resolve.SortDiagnostics(r.Diagnostics)
	return r
}

func (r *AnalysisResult) IsError() bool { return r.Kind == KindError }

// HasErrors reports whether the result failed or carries error diagnostics.
func (r *AnalysisResult) HasErrors() bool {
	return r.IsError() || resolve.HasErrors(r.Diagnostics)
}

// Extension is a post-analysis hook. Returning nil means no opinion;
// anything else replaces the result and ends the chain.
type Extension interface {
	AnalysisCompleted(ctx context.Context, project string, module *Module, bindings *BindingTrace, files []*File) *AnalysisResult
}

// ExtensionFunc adapts a function to Extension.
type ExtensionFunc func(ctx context.Context, project string, module *Module, bindings *BindingTrace, files []*File) *AnalysisResult

func (f ExtensionFunc) AnalysisCompleted(ctx context.Context, project string, module *Module, bindings *BindingTrace, files []*File) *AnalysisResult {
	return f(ctx, project, module, bindings, files)
}

// ProviderExtension contributes a symbol provider to a run. Its provider
// is consulted after incremental caches and before the platform. A nil
// provider is skipped.
type ProviderExtension interface {
	PackageProvider(project string, module *Module, storage *storage.Manager, bindings *BindingTrace) symbols.Provider
}

// ProviderExtensionFunc adapts a function to ProviderExtension.
type ProviderExtensionFunc func(project string, module *Module, storage *storage.Manager, bindings *BindingTrace) symbols.Provider

func (f ProviderExtensionFunc) PackageProvider(project string, module *Module, storage *storage.Manager, bindings *BindingTrace) symbols.Provider {
	return f(project, module, storage, bindings)
}
