package platform

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jward/topdown/internal/incremental"
	"github.com/jward/topdown/internal/symbols"
)

// Library is a read-only set of compiled parts grouped by the target that
// produced them. It is the default package-part provider: a target has a
// part for a package when it holds at least one part of that package.
type Library struct {
	targets map[incremental.TargetID]symbols.MapLoader
	order   []incremental.TargetID
}

func NewLibrary() *Library {
	return &Library{targets: make(map[incremental.TargetID]symbols.MapLoader)}
}

// Add registers parts compiled by target.
func (l *Library) Add(target incremental.TargetID, parts ...*symbols.Part) {
	loader, ok := l.targets[target]
	if !ok {
		loader = symbols.MapLoader{}
		l.targets[target] = loader
		l.order = append(l.order, target)
		sort.Slice(l.order, func(i, j int) bool { return l.order[i].String() < l.order[j].String() })
	}
	loader.Add(parts...)
}

// Targets returns the library's targets sorted by name.
func (l *Library) Targets() []incremental.TargetID {
	return l.order
}

// Parts returns the parts target holds for pkg.
func (l *Library) Parts(target incremental.TargetID, pkg string) []*symbols.Part {
	return l.targets[target].Parts(pkg)
}

func (l *Library) HasPart(target incremental.TargetID, pkg string) bool {
	return len(l.targets[target].Parts(pkg)) > 0
}

// HasPackage reports whether any target knows pkg or a package nested in it.
func (l *Library) HasPackage(pkg string) bool {
	for _, t := range l.order {
		if l.targets[t].HasPackage(pkg) {
			return true
		}
	}
	return false
}

var _ incremental.PackagePartProvider = (*Library)(nil)

// Manifest is the YAML form of one library target.
type Manifest struct {
	Target incremental.TargetID `yaml:"target"`
	Parts  []*symbols.Part      `yaml:"parts"`
}

// ValidationError aggregates manifest validation failures.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "manifest: invalid library"
	}
	var b strings.Builder
	b.WriteString("manifest validation failed:")
	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}

// ParseManifest decodes and validates a manifest. Unknown fields are errors.
func ParseManifest(r io.Reader) (*Manifest, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var m Manifest
	if err := decoder.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest: empty document")
		}
		return nil, fmt.Errorf("manifest: parse: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadManifest reads a manifest from disk.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", path, err)
	}
	defer f.Close()
	m, err := ParseManifest(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func (m *Manifest) validate() error {
	var issues []string
	if m.Target.Name == "" {
		issues = append(issues, "target.name is required")
	}
	for i, p := range m.Parts {
		if p == nil {
			issues = append(issues, fmt.Sprintf("parts[%d] is empty", i))
			continue
		}
		if p.Name == "" {
			issues = append(issues, fmt.Sprintf("parts[%d].name is required", i))
		}
		for j, s := range p.Stubs {
			issues = append(issues, validateStub(fmt.Sprintf("parts[%d].stubs[%d]", i, j), s)...)
		}
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

func validateStub(where string, s *symbols.Stub) []string {
	if s == nil {
		return []string{where + " is empty"}
	}
	var issues []string
	if s.Name == "" {
		issues = append(issues, where+".name is required")
	}
	switch s.Kind {
	case "function", "property", "class", "interface", "object":
	default:
		issues = append(issues, fmt.Sprintf("%s.kind %q is not a declaration kind", where, s.Kind))
	}
	for k, m := range s.Members {
		issues = append(issues, validateStub(fmt.Sprintf("%s.members[%d]", where, k), m)...)
	}
	return issues
}

// AddManifest registers the parts of m.
func (l *Library) AddManifest(m *Manifest) {
	l.Add(m.Target, m.Parts...)
}

// LoadLibrary reads every manifest in paths into one library.
func LoadLibrary(paths ...string) (*Library, error) {
	l := NewLibrary()
	for _, p := range paths {
		m, err := LoadManifest(p)
		if err != nil {
			return nil, err
		}
		l.AddManifest(m)
	}
	return l, nil
}
