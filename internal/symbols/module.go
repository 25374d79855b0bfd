package symbols

import (
	"errors"
	"strings"
)

// ErrSealed is returned when dependencies of a sealed module are changed.
var ErrSealed = errors.New("module is sealed")

// ModuleDescriptor is a semantic module: a named unit that owns declarations
// and depends on other modules. Dependencies may only change before Seal.
type ModuleDescriptor struct {
	name     string
	platform string
	deps     []*ModuleDescriptor
	sealed   bool
}

// NewModule creates a module. Names are conventionally written as special
// names, "<name>"; SpecialName adds the brackets.
func NewModule(name, platform string) *ModuleDescriptor {
	return &ModuleDescriptor{name: name, platform: platform}
}

// SpecialName wraps name in angle brackets unless it already is wrapped.
func SpecialName(name string) string {
	if strings.HasPrefix(name, "<") && strings.HasSuffix(name, ">") {
		return name
	}
	return "<" + name + ">"
}

func (m *ModuleDescriptor) Name() string     { return m.name }
func (m *ModuleDescriptor) Platform() string { return m.platform }
func (m *ModuleDescriptor) IsSealed() bool   { return m.sealed }

// Dependencies returns the modules m may reference, in declaration order.
func (m *ModuleDescriptor) Dependencies() []*ModuleDescriptor {
	out := make([]*ModuleDescriptor, len(m.deps))
	copy(out, m.deps)
	return out
}

// SetDependencies replaces the dependency list. Duplicates are dropped.
func (m *ModuleDescriptor) SetDependencies(deps ...*ModuleDescriptor) error {
	if m.sealed {
		return ErrSealed
	}
	seen := make(map[*ModuleDescriptor]bool, len(deps))
	m.deps = m.deps[:0]
	for _, d := range deps {
		if d == nil || seen[d] {
			continue
		}
		seen[d] = true
		m.deps = append(m.deps, d)
	}
	return nil
}

// AddDependency appends a dependency edge.
func (m *ModuleDescriptor) AddDependency(dep *ModuleDescriptor) error {
	if m.sealed {
		return ErrSealed
	}
	if dep == nil || m.DependsOn(dep) {
		return nil
	}
	m.deps = append(m.deps, dep)
	return nil
}

// Seal freezes the dependency set. Sealing twice is a no-op.
func (m *ModuleDescriptor) Seal() {
	m.sealed = true
}

// DependsOn reports whether other is a direct dependency of m.
func (m *ModuleDescriptor) DependsOn(other *ModuleDescriptor) bool {
	for _, d := range m.deps {
		if d == other {
			return true
		}
	}
	return false
}

func (m *ModuleDescriptor) String() string { return m.name }
