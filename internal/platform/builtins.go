// Package platform provides the symbols every module can see without
// declaring them: the process-wide built-ins and binary libraries resolved
// through the build's package-part provider.
package platform

import (
	"sync"

	"github.com/jward/topdown/internal/symbols"
)

// Name is the platform tag of modules analysed by this package.
const Name = "jvm"

// BuiltIns is the immutable built-ins module. Only stubs are shared; every
// analysis run builds its own descriptors from them.
type BuiltIns struct {
	Module *symbols.ModuleDescriptor
	parts  symbols.MapLoader
}

// Parts returns the built-in parts of pkg.
func (b *BuiltIns) Parts(pkg string) []*symbols.Part { return b.parts.Parts(pkg) }

// HasPackage reports whether pkg is the built-ins package or a parent of it.
func (b *BuiltIns) HasPackage(pkg string) bool { return b.parts.HasPackage(pkg) }

var (
	builtinsOnce sync.Once
	builtins     *BuiltIns
)

// Builtins returns the process-wide built-ins, creating them on first use.
func Builtins() *BuiltIns {
	builtinsOnce.Do(func() {
		mod := symbols.NewModule(symbols.SpecialName("builtins"), Name)
		mod.Seal()
		parts := symbols.MapLoader{}
		parts.Add(&symbols.Part{
			Package: symbols.BuiltinsPackage,
			Name:    symbols.BuiltinsPackage + "/builtins",
			Stubs:   builtinStubs(),
		})
		builtins = &BuiltIns{Module: mod, parts: parts}
	})
	return builtins
}

func fn(name, ret string, params ...string) *symbols.Stub {
	s := &symbols.Stub{Name: name, Kind: "function", ReturnType: ret}
	for i := 0; i+1 < len(params); i += 2 {
		s.Params = append(s.Params, symbols.StubParam{Name: params[i], Type: params[i+1]})
	}
	return s
}

func prop(name, typ string) *symbols.Stub {
	return &symbols.Stub{Name: name, Kind: "property", Type: typ}
}

func cls(kind, name string, supertypes []string, members ...*symbols.Stub) *symbols.Stub {
	return &symbols.Stub{Name: name, Kind: kind, Supertypes: supertypes, Members: members}
}

func builtinStubs() []*symbols.Stub {
	const (
		anyT     = "lang.Any"
		boolT    = "lang.Boolean"
		intT     = "lang.Int"
		longT    = "lang.Long"
		doubleT  = "lang.Double"
		stringT  = "lang.String"
		unitT    = "lang.Unit"
		nothingT = "lang.Nothing"
		numberT  = "lang.Number"
	)
	arith := func(t string) []*symbols.Stub {
		return []*symbols.Stub{
			fn("plus", t, "other", t),
			fn("minus", t, "other", t),
			fn("times", t, "other", t),
			fn("div", t, "other", t),
			fn("compareTo", intT, "other", t),
		}
	}
	return []*symbols.Stub{
		cls("class", "Any", nil,
			fn("equals", boolT, "other", anyT),
			fn("hashCode", intT),
			fn("toString", stringT),
		),
		cls("object", "Unit", nil),
		cls("class", "Nothing", nil),
		cls("class", "Boolean", nil,
			fn("not", boolT),
			fn("and", boolT, "other", boolT),
			fn("or", boolT, "other", boolT),
		),
		cls("class", "Number", nil,
			fn("toInt", intT),
			fn("toLong", longT),
			fn("toDouble", doubleT),
		),
		cls("class", "Int", []string{numberT}, arith(intT)...),
		cls("class", "Long", []string{numberT}, arith(longT)...),
		cls("class", "Double", []string{numberT}, arith(doubleT)...),
		cls("interface", "CharSequence", nil,
			prop("length", intT),
		),
		cls("class", "String", []string{"lang.CharSequence"},
			prop("length", intT),
			fn("plus", stringT, "other", anyT),
			fn("substring", stringT, "start", intT, "end", intT),
		),
		cls("class", "Array", nil,
			prop("size", intT),
			fn("get", anyT, "index", intT),
		),
		fn("println", unitT, "message", anyT),
		fn("error", nothingT, "message", stringT),
	}
}
