package resolve

import (
	"github.com/jward/topdown/internal/platform"
	"github.com/jward/topdown/internal/storage"
	"github.com/jward/topdown/internal/symbols"
)

// ModuleContext owns the module of one analysis run together with the
// storage its lazy values live in. Contexts are not shared between runs
// analysed concurrently.
type ModuleContext struct {
	Project  string
	Module   *symbols.ModuleDescriptor
	Platform string
	Storage  *storage.Manager
	BuiltIns *platform.BuiltIns
}

// NewModuleContext creates a sealed context for a new module called name.
// The module depends on itself and on the platform built-ins.
func NewModuleContext(project, name string) *ModuleContext {
	mc := NewMutableModuleContext(project, name)
	mc.Module.Seal()
	return mc
}

// NewMutableModuleContext is NewModuleContext without sealing, for callers
// that wire further dependencies. The analyzer seals it before resolving.
func NewMutableModuleContext(project, name string) *ModuleContext {
	b := platform.Builtins()
	mod := symbols.NewModule(symbols.SpecialName(name), platform.Name)
	// A fresh module is never sealed, so this cannot fail.
	_ = mod.SetDependencies(mod, b.Module)
	return &ModuleContext{
		Project:  project,
		Module:   mod,
		Platform: platform.Name,
		Storage:  storage.NewManager(),
		BuiltIns: b,
	}
}

// SetDependencies replaces the module's dependencies. It fails once the
// module is sealed.
func (mc *ModuleContext) SetDependencies(deps ...*symbols.ModuleDescriptor) error {
	return mc.Module.SetDependencies(deps...)
}

// Seal freezes the module's dependency set.
func (mc *ModuleContext) Seal() {
	mc.Module.Seal()
}
