// Package symbols holds the semantic model: descriptors for classes,
// functions and properties, resolved types, the serialized stub form used by
// caches and binary libraries, and the Provider abstraction that answers
// declaration lookups by package path.
package symbols

import (
	"fmt"
	"strings"
)

// FqName is a dotted fully-qualified name, e.g. "org.example.Outer.Inner".
type FqName string

// Join builds the fully-qualified name of name declared in pkg.
func Join(pkg, name string) FqName {
	if pkg == "" {
		return FqName(name)
	}
	return FqName(pkg + "." + name)
}

// Child appends a segment.
func (n FqName) Child(name string) FqName {
	return Join(string(n), name)
}

// Parent drops the last segment.
func (n FqName) Parent() FqName {
	if i := strings.LastIndexByte(string(n), '.'); i >= 0 {
		return n[:i]
	}
	return ""
}

// ShortName returns the last segment.
func (n FqName) ShortName() string {
	if i := strings.LastIndexByte(string(n), '.'); i >= 0 {
		return string(n[i+1:])
	}
	return string(n)
}

// Segments splits the name on dots.
func (n FqName) Segments() []string {
	if n == "" {
		return nil
	}
	return strings.Split(string(n), ".")
}

func (n FqName) String() string { return string(n) }

// Origin says where a descriptor came from.
type Origin int

const (
	OriginSource Origin = iota
	OriginCache
	OriginExtension
	OriginLibrary
	OriginPlatform
)

func (o Origin) String() string {
	switch o {
	case OriginSource:
		return "source"
	case OriginCache:
		return "cache"
	case OriginExtension:
		return "extension"
	case OriginLibrary:
		return "library"
	case OriginPlatform:
		return "platform"
	}
	return fmt.Sprintf("Origin(%d)", int(o))
}

type Visibility int

const (
	Public Visibility = iota
	Internal
	Protected
	Private
)

// ParseVisibility maps a source modifier to a Visibility. Anything
// unrecognised, including the empty string, is public.
func ParseVisibility(s string) Visibility {
	switch s {
	case "internal":
		return Internal
	case "protected":
		return Protected
	case "private":
		return Private
	}
	return Public
}

func (v Visibility) String() string {
	switch v {
	case Public:
		return "public"
	case Internal:
		return "internal"
	case Protected:
		return "protected"
	case Private:
		return "private"
	}
	return fmt.Sprintf("Visibility(%d)", int(v))
}

type ClassKind int

const (
	KindClass ClassKind = iota
	KindInterface
	KindObject
)

// ParseClassKind accepts "class", "interface" or "object".
func ParseClassKind(s string) (ClassKind, bool) {
	switch s {
	case "class":
		return KindClass, true
	case "interface":
		return KindInterface, true
	case "object":
		return KindObject, true
	}
	return 0, false
}

func (k ClassKind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindInterface:
		return "interface"
	case KindObject:
		return "object"
	}
	return fmt.Sprintf("ClassKind(%d)", int(k))
}
