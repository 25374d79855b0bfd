package topdown

import (
	"github.com/jward/topdown/internal/incremental"
	"github.com/jward/topdown/internal/resolve"
	"github.com/jward/topdown/internal/symbols"
	"github.com/jward/topdown/internal/syntax"
)

// Public type aliases for the internal types used by Analyze and the
// extension interfaces. These are Go type aliases (=), so no conversion is
// needed between the public and internal names.

type ModuleContext = resolve.ModuleContext
type BindingTrace = resolve.BindingTrace
type Diagnostic = resolve.Diagnostic
type Mode = resolve.Mode

type File = syntax.File
type Provider = symbols.Provider
type Module = symbols.ModuleDescriptor

type Target = incremental.Target
type TargetID = incremental.TargetID
type BuildModule = incremental.BuildModule
type Components = incremental.Components
type PackagePartProvider = incremental.PackagePartProvider

const (
	TopLevelDeclarations = resolve.TopLevelDeclarations
	Full                 = resolve.Full
)
