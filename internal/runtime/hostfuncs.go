package runtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/risor-io/risor/object"

	"github.com/jward/topdown/internal/resolve"
	"github.com/jward/topdown/internal/symbols"
)

// analysisView is the read-only model of one finished run, as scripts see
// it. Classes are indexed by fully-qualified name, nested ones included.
type analysisView struct {
	bindings  *resolve.BindingTrace
	classes   []*symbols.ClassDescriptor
	functions []*symbols.FunctionDescriptor
	byFq      map[symbols.FqName]*symbols.ClassDescriptor
}

func newAnalysisView(bindings *resolve.BindingTrace) *analysisView {
	v := &analysisView{bindings: bindings, byFq: make(map[symbols.FqName]*symbols.ClassDescriptor)}
	var walk func(d symbols.Descriptor)
	walk = func(d symbols.Descriptor) {
		switch d := d.(type) {
		case *symbols.ClassDescriptor:
			v.classes = append(v.classes, d)
			if _, dup := v.byFq[d.FqName()]; !dup {
				v.byFq[d.FqName()] = d
			}
			for _, m := range d.Members() {
				walk(m)
			}
		case *symbols.FunctionDescriptor:
			v.functions = append(v.functions, d)
		}
	}
	for _, d := range bindings.Descriptors() {
		walk(d)
	}
	return v
}

// failures collects fail() messages raised by a script.
type failures struct {
	mu       sync.Mutex
	messages []string
}

func (f *failures) add(msg string) {
	f.mu.Lock()
	f.messages = append(f.messages, msg)
	f.mu.Unlock()
}

func (f *failures) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

// analysisGlobals builds the per-run globals of an extension script.
func analysisGlobals(module *symbols.ModuleDescriptor, view *analysisView, fails *failures) map[string]any {
	return map[string]any{
		"module_name": object.NewString(module.Name()),
		"classes":     makeClassesFn(view),
		"functions":   makeFunctionsFn(view),
		"diagnostics": makeDiagnosticsFn(view),
		"supertypes":  makeSupertypesFn(view),
		"fail":        makeFailFn(fails),
	}
}

// makeClassesFn creates "classes".
//
// classes() → list of {name, fq_name, kind, file, origin, visibility, supertypes}
func makeClassesFn(v *analysisView) *object.Builtin {
	return object.NewBuiltin("classes", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("classes", 0, len(args))
		}
		results := make([]object.Object, 0, len(v.classes))
		for _, c := range v.classes {
			results = append(results, classToObject(c))
		}
		return object.NewList(results)
	})
}

// makeFunctionsFn creates "functions".
//
// functions() → list of {name, fq_name, signature, return_type, file, visibility, container}
func makeFunctionsFn(v *analysisView) *object.Builtin {
	return object.NewBuiltin("functions", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("functions", 0, len(args))
		}
		results := make([]object.Object, 0, len(v.functions))
		for _, f := range v.functions {
			m := map[string]object.Object{
				"name":        object.NewString(f.Name()),
				"fq_name":     object.NewString(f.FqName().String()),
				"signature":   object.NewString(f.Signature()),
				"return_type": object.NewString(f.ReturnType().String()),
				"file":        object.NewString(f.SourcePath()),
				"visibility":  object.NewString(f.Visibility().String()),
				"container":   object.Nil,
			}
			if c := f.Container(); c != nil {
				m["container"] = object.NewString(c.FqName().String())
			}
			results = append(results, object.NewMap(m))
		}
		return object.NewList(results)
	})
}

// makeDiagnosticsFn creates "diagnostics".
//
// diagnostics() → list of {code, severity, file, line, col, message}
func makeDiagnosticsFn(v *analysisView) *object.Builtin {
	return object.NewBuiltin("diagnostics", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("diagnostics", 0, len(args))
		}
		diags := v.bindings.Diagnostics()
		results := make([]object.Object, 0, len(diags))
		for _, d := range diags {
			results = append(results, object.NewMap(map[string]object.Object{
				"code":     object.NewString(string(d.Code)),
				"severity": object.NewString(string(d.Severity)),
				"file":     object.NewString(d.File),
				"line":     object.NewInt(int64(d.Line)),
				"col":      object.NewInt(int64(d.Col)),
				"message":  object.NewString(d.Message),
			}))
		}
		return object.NewList(results)
	})
}

// makeSupertypesFn creates "supertypes".
//
// supertypes(fqName) → list of fully-qualified names, or nil for an unknown class
func makeSupertypesFn(v *analysisView) *object.Builtin {
	return object.NewBuiltin("supertypes", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("supertypes", 1, len(args))
		}
		fq, err := toString(args[0])
		if err != nil {
			return object.Errorf("supertypes: %v", err)
		}
		c, ok := v.byFq[symbols.FqName(fq)]
		if !ok {
			return object.Nil
		}
		return fqList(c.Supertypes())
	})
}

// makeFailFn creates "fail". The script keeps running; the run is marked
// failed once it returns.
//
// fail(message)
func makeFailFn(f *failures) *object.Builtin {
	return object.NewBuiltin("fail", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("fail", 1, len(args))
		}
		msg, err := toString(args[0])
		if err != nil {
			return object.Errorf("fail: %v", err)
		}
		f.add(msg)
		return object.Nil
	})
}

func classToObject(c *symbols.ClassDescriptor) object.Object {
	return object.NewMap(map[string]object.Object{
		"name":       object.NewString(c.Name()),
		"fq_name":    object.NewString(c.FqName().String()),
		"kind":       object.NewString(c.Kind().String()),
		"file":       object.NewString(c.SourcePath()),
		"origin":     object.NewString(c.Origin().String()),
		"visibility": object.NewString(c.Visibility().String()),
		"supertypes": fqList(c.Supertypes()),
	})
}

func fqList(classes []*symbols.ClassDescriptor) object.Object {
	out := make([]object.Object, 0, len(classes))
	for _, c := range classes {
		out = append(out, object.NewString(c.FqName().String()))
	}
	return object.NewList(out)
}

// logObject provides log.debug/info/warn/error methods for Risor scripts.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Debug(msg string) { l.logger.Debug(msg) }

func (l *logObject) Info(msg string) { l.logger.Info(msg) }

func (l *logObject) Warn(msg string) { l.logger.Warn(msg) }

func (l *logObject) Error(msg string) { l.logger.Error(msg) }
