package symbols

import (
	"sort"

	"github.com/jward/topdown/internal/syntax"
)

// Stub is the compiled form of a declaration as stored by incremental
// caches and binary libraries. Type names are fully qualified.
type Stub struct {
	Name       string      `json:"name" yaml:"name"`
	Kind       string      `json:"kind" yaml:"kind"`
	Visibility string      `json:"visibility,omitempty" yaml:"visibility,omitempty"`
	Supertypes []string    `json:"supertypes,omitempty" yaml:"supertypes,omitempty"`
	Params     []StubParam `json:"params,omitempty" yaml:"params,omitempty"`
	ReturnType string      `json:"return_type,omitempty" yaml:"return_type,omitempty"`
	Type       string      `json:"type,omitempty" yaml:"type,omitempty"`
	Members    []*Stub     `json:"members,omitempty" yaml:"members,omitempty"`
}

type StubParam struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Part is a compiled package part: the stubs one source file contributed
// to one package.
type Part struct {
	Package    string  `json:"package" yaml:"package"`
	Name       string  `json:"name" yaml:"name"`
	SourceFile string  `json:"source_file,omitempty" yaml:"source_file,omitempty"`
	Stubs      []*Stub `json:"stubs" yaml:"stubs"`
}

// StubOf renders a resolved descriptor back into stub form. It is used to
// save freshly analysed declarations into an incremental cache.
func StubOf(d Descriptor) *Stub {
	s := &Stub{Name: d.Name()}
	if d.Visibility() != Public {
		s.Visibility = d.Visibility().String()
	}
	switch d := d.(type) {
	case *ClassDescriptor:
		s.Kind = d.Kind().String()
		for _, st := range d.Supertypes() {
			s.Supertypes = append(s.Supertypes, string(st.FqName()))
		}
		for _, m := range d.Members() {
			s.Members = append(s.Members, StubOf(m))
		}
	case *FunctionDescriptor:
		s.Kind = syntax.KindFunction.String()
		for _, p := range d.Params() {
			s.Params = append(s.Params, StubParam{Name: p.Name, Type: p.Type.String()})
		}
		s.ReturnType = d.ReturnType().String()
	case *PropertyDescriptor:
		s.Kind = syntax.KindProperty.String()
		s.Type = d.Type().String()
	}
	return s
}

// PartsOf groups the given top-level descriptors into parts, one per
// (package, source file) pair, in a deterministic order.
func PartsOf(ds []Descriptor) []*Part {
	type key struct{ pkg, file string }
	byKey := make(map[key]*Part)
	var keys []key
	for _, d := range ds {
		k := key{pkg: string(d.FqName().Parent()), file: d.SourcePath()}
		p, ok := byKey[k]
		if !ok {
			p = &Part{Package: k.pkg, Name: partName(k.pkg, k.file), SourceFile: k.file}
			byKey[k] = p
			keys = append(keys, k)
		}
		p.Stubs = append(p.Stubs, StubOf(d))
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].pkg != keys[j].pkg {
			return keys[i].pkg < keys[j].pkg
		}
		return keys[i].file < keys[j].file
	})
	out := make([]*Part, 0, len(keys))
	for _, k := range keys {
		out = append(out, byKey[k])
	}
	return out
}

func partName(pkg, file string) string {
	base := file
	for i := len(file) - 1; i >= 0; i-- {
		if file[i] == '/' || file[i] == '\\' {
			base = file[i+1:]
			break
		}
	}
	if pkg == "" {
		return base
	}
	return pkg + "/" + base
}
