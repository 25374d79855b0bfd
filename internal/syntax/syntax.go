// Package syntax defines the parsed-file model consumed by the analyzer.
// Files are produced by a frontend (see internal/parser) or built directly
// with the helpers in build.go. The analyzer never mutates them; node
// pointer identity is what bindings are keyed on.
package syntax

import "fmt"

// Pos is a 1-based source position. The zero Pos means "unknown".
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// Less orders positions by line, then column.
func (p Pos) Less(o Pos) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Col < o.Col
}

// Node is any syntax element that can carry a binding.
type Node interface {
	Position() Pos
}

// File is one parsed source file.
type File struct {
	Path         string
	Package      string
	Imports      []*Import
	Declarations []*Declaration

	// Errors are recoverable problems the frontend found while parsing.
	Errors []ParseError
}

// ParseError is a frontend problem attached to a file.
type ParseError struct {
	Pos     Pos
	Message string
}

type Import struct {
	Path  string // dotted path, without the trailing ".*"
	Alias string
	Star  bool
	Pos   Pos
}

func (i *Import) Position() Pos { return i.Pos }

// LocalName is the name an explicit import introduces into file scope.
func (i *Import) LocalName() string {
	if i.Alias != "" {
		return i.Alias
	}
	return LastSegment(i.Path)
}

type DeclKind int

const (
	KindClass DeclKind = iota
	KindInterface
	KindObject
	KindFunction
	KindProperty
)

func (k DeclKind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindInterface:
		return "interface"
	case KindObject:
		return "object"
	case KindFunction:
		return "function"
	case KindProperty:
		return "property"
	}
	return fmt.Sprintf("DeclKind(%d)", int(k))
}

// IsClassifier reports whether declarations of this kind introduce a type.
func (k DeclKind) IsClassifier() bool {
	return k == KindClass || k == KindInterface || k == KindObject
}

// Declaration is a class, interface, object, function or property as written
// in source, before any type resolution.
type Declaration struct {
	Kind       DeclKind
	Name       string
	Visibility string // "", "public", "internal", "protected", "private"

	Supertypes []*TypeRef // classifiers only
	Members    []*Declaration

	Params     []*Param // functions only
	ReturnType *TypeRef // nil means Unit, or inferred from an expression body
	Body       *Block
	ExprBody   bool // Body holds a single return synthesized from `= expr`

	Type        *TypeRef // properties only; nil means inferred
	Initializer Expr

	Pos Pos
}

func (d *Declaration) Position() Pos { return d.Pos }

type TypeRef struct {
	Name string // simple or dotted
	Pos  Pos
}

func (t *TypeRef) Position() Pos { return t.Pos }

type Param struct {
	Name string
	Type *TypeRef
	Pos  Pos
}

func (p *Param) Position() Pos { return p.Pos }

type Block struct {
	Stmts []Stmt
	Pos   Pos
}

func (b *Block) Position() Pos { return b.Pos }

type Stmt interface {
	Node
	stmtNode()
}

type ValStmt struct {
	Name  string
	Type  *TypeRef
	Value Expr
	Pos   Pos
}

type ReturnStmt struct {
	Value Expr // may be nil
	Pos   Pos
}

type ExprStmt struct {
	X Expr
}

func (s *ValStmt) Position() Pos    { return s.Pos }
func (s *ReturnStmt) Position() Pos { return s.Pos }
func (s *ExprStmt) Position() Pos   { return s.X.Position() }

func (*ValStmt) stmtNode()    {}
func (*ReturnStmt) stmtNode() {}
func (*ExprStmt) stmtNode()   {}

type Expr interface {
	Node
	exprNode()
}

type NameExpr struct {
	Name string
	Pos  Pos
}

type CallExpr struct {
	Callee Expr
	Args   []Expr
	Pos    Pos
}

type MemberExpr struct {
	Receiver Expr
	Name     string
	Pos      Pos
}

type LiteralKind int

const (
	LitInt LiteralKind = iota
	LitDouble
	LitString
	LitBool
	LitNull
)

type LiteralExpr struct {
	Kind  LiteralKind
	Value string
	Pos   Pos
}

func (e *NameExpr) Position() Pos    { return e.Pos }
func (e *CallExpr) Position() Pos    { return e.Pos }
func (e *MemberExpr) Position() Pos  { return e.Pos }
func (e *LiteralExpr) Position() Pos { return e.Pos }

func (*NameExpr) exprNode()    {}
func (*CallExpr) exprNode()    {}
func (*MemberExpr) exprNode()  {}
func (*LiteralExpr) exprNode() {}

// LastSegment returns the part of a dotted name after the final dot.
func LastSegment(dotted string) string {
	for i := len(dotted) - 1; i >= 0; i-- {
		if dotted[i] == '.' {
			return dotted[i+1:]
		}
	}
	return dotted
}
