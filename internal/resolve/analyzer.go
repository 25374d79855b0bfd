// Package resolve implements the top-down analyzer: it collects descriptor
// skeletons for a batch of files, resolves their signatures lazily, and in
// full mode resolves executable code, recording everything in a
// BindingTrace.
package resolve

import (
	"context"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jward/topdown/internal/decls"
	tderrors "github.com/jward/topdown/internal/errors"
	"github.com/jward/topdown/internal/lookup"
	"github.com/jward/topdown/internal/observability"
	"github.com/jward/topdown/internal/symbols"
	"github.com/jward/topdown/internal/syntax"
)

// LazyTopDownAnalyzer runs the analysis passes for one module. An analyzer
// is single-use: AnalyzeFiles may be called once.
type LazyTopDownAnalyzer struct {
	mc      *ModuleContext
	trace   *BindingTrace
	factory *decls.Factory
	tracker lookup.Tracker
	logger  *slog.Logger

	state State
	local *localProvider
	res   *resolver
}

// NewLazyTopDownAnalyzer creates an analyzer over the files indexed by
// factory. A nil tracker records nothing; a nil logger discards.
func NewLazyTopDownAnalyzer(mc *ModuleContext, trace *BindingTrace, factory *decls.Factory, tracker lookup.Tracker, logger *slog.Logger) *LazyTopDownAnalyzer {
	if tracker == nil {
		tracker = lookup.DoNothing
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LazyTopDownAnalyzer{
		mc:      mc,
		trace:   trace,
		factory: factory,
		tracker: tracker,
		logger:  logger,
	}
}

// State returns how far the analyzer got.
func (a *LazyTopDownAnalyzer) State() State { return a.state }

// Scope returns the composed declaration scope of the run, or nil before
// signature resolution started.
func (a *LazyTopDownAnalyzer) Scope() *symbols.Composite {
	if a.res == nil {
		return nil
	}
	return a.res.scope
}

type pass struct {
	name string
	run  func(ctx context.Context) error
	next State
}

// AnalyzeFiles analyses files, which must all be indexed by the analyzer's
// factory, against the local declarations followed by providers in order.
// Recoverable problems become diagnostics in the trace; the returned error
// is reserved for precondition failures, cancellation and internal
// inconsistencies. Cancellation is observed between passes only.
func (a *LazyTopDownAnalyzer) AnalyzeFiles(ctx context.Context, mode Mode, files []*syntax.File, providers []symbols.Provider) (err error) {
	if a.state != NotStarted {
		return tderrors.Newf(tderrors.CodeInternal, "analyzer already ran (state %s)", a.state)
	}
	defer func() {
		if err != nil {
			a.state = Failed
		}
	}()

	if a.mc == nil || a.trace == nil || a.factory == nil {
		return tderrors.New(tderrors.CodePrecondition, "analyzer requires a module context, trace and declaration factory")
	}
	analysed, err := a.selectFiles(files)
	if err != nil {
		return err
	}
	a.mc.Seal()

	passes := []pass{
		{name: "collect", next: DeclarationsCollected, run: func(context.Context) error {
			return a.collect(analysed)
		}},
		{name: "signatures", next: SignaturesResolved, run: func(context.Context) error {
			return a.resolveSignatures(mode, analysed, providers)
		}},
	}
	if mode == Full {
		passes = append(passes, pass{name: "bodies", next: BodiesResolved, run: func(context.Context) error {
			return a.resolveBodies(analysed)
		}})
	}
	passes = append(passes, pass{name: "complete", next: Completed, run: func(context.Context) error {
		a.complete()
		return nil
	}})

	computed := a.mc.Storage.Computations()
	for _, p := range passes {
		if cerr := ctx.Err(); cerr != nil {
			return tderrors.AddContext(
				tderrors.Wrap(cerr, tderrors.CodeCancelled, "analysis cancelled"),
				tderrors.CtxPhase, p.name)
		}
		pctx, end := observability.StartPass(ctx, p.name,
			attribute.String("module", a.mc.Module.Name()),
			attribute.String("mode", mode.String()),
			attribute.Int("files", len(analysed)))
		perr := p.run(pctx)
		end(perr)
		if perr != nil {
			return tderrors.AddContext(perr, tderrors.CtxPhase, p.name)
		}
		a.state = p.next
		a.logger.Debug("analysis pass finished",
			"pass", p.name,
			"module", a.mc.Module.Name(),
			"state", a.state.String())
	}
	observability.Computations.Add(float64(a.mc.Storage.Computations() - computed))
	return nil
}

// selectFiles dedups files, orders them by path and checks each one is
// part of the factory's batch.
func (a *LazyTopDownAnalyzer) selectFiles(files []*syntax.File) ([]*syntax.File, error) {
	seen := make(map[*syntax.File]bool, len(files))
	out := make([]*syntax.File, 0, len(files))
	for _, f := range files {
		if f == nil || seen[f] {
			continue
		}
		if !a.factory.Contains(f) {
			return nil, tderrors.AddContext(
				tderrors.New(tderrors.CodePrecondition, "file is not part of the declaration batch"),
				tderrors.CtxPath, f.Path)
		}
		seen[f] = true
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (a *LazyTopDownAnalyzer) collect(files []*syntax.File) error {
	c := &collector{module: a.mc.Module, trace: a.trace}
	a.local = c.collect(a.factory)
	for _, f := range files {
		for _, pe := range f.Errors {
			d := newDiagnostic(ParseError, f, pe.Pos, "%s", pe.Message)
			d.Severity = SeverityWarning
			a.trace.Report(d)
		}
	}
	observability.DeclarationsCollected.Add(float64(c.count))
	a.logger.Debug("declarations collected", "count", c.count, "packages", len(a.local.byPackage))
	return c.err
}

func (a *LazyTopDownAnalyzer) resolveSignatures(mode Mode, files []*syntax.File, providers []symbols.Provider) error {
	all := append([]symbols.Provider{a.local}, providers...)
	scope := symbols.NewComposite(a.mc.Storage, all...)
	r := newResolver(a.mc.Storage, a.mc.Module, mode, a.trace, a.tracker, scope)
	a.res = r

	packages := make(map[string]bool)
	for _, f := range files {
		packages[f.Package] = true
		r.checkImports(f)
		for _, d := range f.Declarations {
			if desc := a.trace.Declaration(d); desc != nil {
				r.resolveTree(desc)
			}
		}
	}
	for _, pkg := range sortedKeys(packages) {
		r.checkRedeclarations(a.local.Declarations(pkg))
	}
	return r.err
}

func (a *LazyTopDownAnalyzer) resolveBodies(files []*syntax.File) error {
	var walk func(d *syntax.Declaration)
	walk = func(d *syntax.Declaration) {
		switch {
		case d.Kind == syntax.KindFunction && d.Body != nil:
			a.res.bodies.Get(d)
		case d.Kind == syntax.KindProperty && d.Initializer != nil:
			a.res.bodies.Get(d)
		}
		for _, m := range d.Members {
			walk(m)
		}
	}
	for _, f := range files {
		for _, d := range f.Declarations {
			walk(d)
		}
	}
	return a.res.err
}

func (a *LazyTopDownAnalyzer) complete() {
	a.trace.Freeze()
	diags := a.trace.Diagnostics()
	for _, d := range diags {
		observability.DiagnosticsReported.WithLabelValues(string(d.Code)).Inc()
	}
	declared, refs, types := a.trace.Counts()
	a.logger.Debug("analysis complete",
		"module", a.mc.Module.Name(),
		"declarations", declared,
		"references", refs,
		"types", types,
		"diagnostics", len(diags))
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
