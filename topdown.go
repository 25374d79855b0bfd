package topdown

import (
	"context"
	"log/slog"

	"github.com/jward/topdown/internal/decls"
	tderrors "github.com/jward/topdown/internal/errors"
	"github.com/jward/topdown/internal/incremental"
	"github.com/jward/topdown/internal/lookup"
	"github.com/jward/topdown/internal/observability"
	"github.com/jward/topdown/internal/platform"
	"github.com/jward/topdown/internal/resolve"
	"github.com/jward/topdown/internal/symbols"
)

type options struct {
	extensions         []Extension
	providerExtensions []ProviderExtension
	logger             *slog.Logger
	tracker            lookup.Tracker
	library            *platform.Library
}

// Option configures an analysis run.
type Option func(*options)

// WithExtensions appends post-analysis hooks, run in order.
func WithExtensions(exts ...Extension) Option {
	return func(o *options) {
		o.extensions = append(o.extensions, exts...)
	}
}

// WithProviderExtensions appends extension-supplied symbol providers.
func WithProviderExtensions(exts ...ProviderExtension) Option {
	return func(o *options) {
		o.providerExtensions = append(o.providerExtensions, exts...)
	}
}

// WithLogger sets the logger passes report to. The default discards.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTracker adds a lookup tracker. It receives events alongside the
// incremental components' tracker, if any.
func WithTracker(t lookup.Tracker) Option {
	return func(o *options) {
		o.tracker = t
	}
}

// WithLibrary makes compiled library parts available through the platform
// provider. Parts are visible when the package-part provider admits them;
// with no package-part provider the library answers for itself.
func WithLibrary(lib *platform.Library) Option {
	return func(o *options) {
		o.library = lib
	}
}

// NewModuleContext creates an isolated, sealed module called name with the
// platform built-ins wired as a dependency.
func NewModuleContext(project, name string) *ModuleContext {
	return resolve.NewModuleContext(project, name)
}

// Analyze runs a top-down analysis of files for the module in mc.
//
// Targets map files to incremental build units. For each target that
// components has a cache for, the cache serves the parts the batch does not
// supersede. parts decides which compiled library parts the platform
// provider may serve; it may be nil.
//
// Recoverable problems are returned as diagnostics on a successful result.
// Precondition failures, cancellation and internal inconsistencies produce
// an error result and skip the extension chain.
func Analyze(ctx context.Context, mc *ModuleContext, files []*File, mode Mode, targets []Target, components Components, parts PackagePartProvider, opts ...Option) *AnalysisResult {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	res := analyze(ctx, mc, files, mode, targets, components, parts, o, logger)
	outcome := "success"
	switch {
	case res.IsError():
		outcome = "error"
	case res.HasErrors():
		outcome = "diagnostics"
	}
	observability.AnalysesTotal.WithLabelValues(outcome).Inc()
	if res.Err != nil {
		logger.Warn("analysis failed", "error", res.Err)
	}
	return res
}

func analyze(ctx context.Context, mc *ModuleContext, files []*File, mode Mode, targets []Target, components Components, parts PackagePartProvider, o *options, logger *slog.Logger) *AnalysisResult {
	if mc == nil || mc.Module == nil || mc.Storage == nil || mc.BuiltIns == nil {
		return Failure(nil, tderrors.New(tderrors.CodePrecondition, "analyze: module context is required"))
	}
	assignment, err := incremental.AssignFiles(targets, files)
	if err != nil {
		return Failure(nil, err)
	}

	var trackers lookup.Multi
	if components != nil {
		if t := components.LookupTracker(); t != nil {
			trackers = append(trackers, t)
		}
	}
	if o.tracker != nil {
		trackers = append(trackers, o.tracker)
	}
	var tracker lookup.Tracker = lookup.DoNothing
	if len(trackers) > 0 {
		tracker = trackers
	}

	trace := resolve.NewBindingTrace()
	factory := decls.NewFactory(mc.Storage, files)
	providers := providersFor(mc, files, assignment, components, parts, trace, o)
	logger.Debug("analysis started",
		"module", mc.Module.Name(),
		"mode", mode.String(),
		"files", len(files),
		"targets", len(targets),
		"providers", len(providers)+1)

	analyzer := resolve.NewLazyTopDownAnalyzer(mc, trace, factory, tracker, logger)
	if err := analyzer.AnalyzeFiles(ctx, mode, files, providers); err != nil {
		return Failure(trace, err)
	}

	for _, ext := range o.extensions {
		if r := ext.AnalysisCompleted(ctx, mc.Project, mc.Module, trace, files); r != nil {
			logger.Debug("extension replaced analysis result", "kind", r.Kind.String())
			return r
		}
	}
	return Success(trace, mc.Module)
}

// providersFor composes the non-local providers of a run in precedence
// order: incremental caches, extension providers, then the platform.
func providersFor(mc *ModuleContext, files []*File, assignment *incremental.Assignment, components Components, parts PackagePartProvider, trace *BindingTrace, o *options) []symbols.Provider {
	var out []symbols.Provider
	if components != nil {
		for _, t := range assignment.Targets {
			cache := components.IncrementalCache(t.ID)
			if cache == nil {
				continue
			}
			out = append(out, incremental.NewCacheProvider(mc.Storage, mc.Module, cache, t.ID, assignment.Files(t.ID)))
		}
	}
	for _, pe := range o.providerExtensions {
		if p := pe.PackageProvider(mc.Project, mc.Module, mc.Storage, trace); p != nil {
			out = append(out, p)
		}
	}

	if parts == nil && o.library != nil {
		parts = o.library
	}
	wrapped := incremental.WrapPartProvider(parts, files, assignment.Targets, components)
	out = append(out, platform.NewProvider(mc.Storage, mc.BuiltIns, o.library, wrapped))
	return out
}

// AnalyzeWithCustomProviders analyses only top-level declarations of files,
// with targets derived from modules. It serves callers that need public
// signatures, such as separate-target compilation.
func AnalyzeWithCustomProviders(ctx context.Context, mc *ModuleContext, files []*File, modules []BuildModule, components Components, parts PackagePartProvider, opts ...Option) *AnalysisResult {
	return Analyze(ctx, mc, files, TopLevelDeclarations, incremental.TargetsOf(modules), components, parts, opts...)
}
