package runtime

import (
	"context"
	"strings"

	"github.com/risor-io/risor/object"

	"github.com/jward/topdown"
	tderrors "github.com/jward/topdown/internal/errors"
)

// ScriptExtension runs a Risor script once analysis has completed. The
// script inspects the run through its globals and may reject it with
// fail(message); it has no way to alter bindings.
//
// Globals available to the script, besides those of the Runtime:
//
//	project       string
//	module_name   string
//	files         list of analysed paths
//	classes()     list of class maps
//	functions()   list of function maps
//	diagnostics() list of diagnostic maps
//	supertypes(fq)
//	fail(message)
type ScriptExtension struct {
	rt     *Runtime
	path   string
	source string
}

// NewScriptExtension creates an extension running the script at path,
// resolved the way Runtime.LoadScript resolves it.
func NewScriptExtension(rt *Runtime, path string) *ScriptExtension {
	return &ScriptExtension{rt: rt, path: path}
}

// NewSourceExtension creates an extension running inline Risor source.
func NewSourceExtension(rt *Runtime, source string) *ScriptExtension {
	return &ScriptExtension{rt: rt, source: source}
}

func (e *ScriptExtension) label() string {
	if e.path != "" {
		return e.path
	}
	return "<inline>"
}

// AnalysisCompleted implements topdown.Extension. It returns nil when the
// script neither failed nor called fail.
func (e *ScriptExtension) AnalysisCompleted(ctx context.Context, project string, module *topdown.Module, bindings *topdown.BindingTrace, files []*topdown.File) *topdown.AnalysisResult {
	fails := &failures{}
	globals := analysisGlobals(module, newAnalysisView(bindings), fails)
	globals["project"] = object.NewString(project)
	paths := make([]object.Object, 0, len(files))
	for _, f := range files {
		paths = append(paths, object.NewString(f.Path))
	}
	globals["files"] = object.NewList(paths)

	var err error
	if e.path != "" {
		err = e.rt.RunScript(ctx, e.path, globals)
	} else {
		err = e.rt.RunSource(ctx, e.source, globals)
	}
	if err != nil {
		e.rt.logger.Warn("extension script failed", "script", e.label(), "error", err)
		return topdown.Failure(bindings, tderrors.AddContext(
			tderrors.Wrap(err, tderrors.CodeInternal, "extension script failed"),
			tderrors.CtxScript, e.label()))
	}

	if msgs := fails.list(); len(msgs) > 0 {
		e.rt.logger.Info("extension rejected analysis", "script", e.label(), "reasons", len(msgs))
		return topdown.Failure(bindings, tderrors.AddContext(
			tderrors.New(tderrors.CodeValidationError, strings.Join(msgs, "; ")),
			tderrors.CtxScript, e.label()))
	}
	return nil
}
