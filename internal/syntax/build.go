package syntax

import "strings"

// NewFile builds a file from declarations and numbers every node so that
// positions are stable and distinct. Imports are given as dotted paths; a
// trailing ".*" marks a star import and " as X" an alias.
func NewFile(path, pkg string, imports []string, decls ...*Declaration) *File {
	f := &File{Path: path, Package: pkg, Declarations: decls}
	for _, raw := range imports {
		imp := &Import{Path: raw}
		if head, alias, ok := strings.Cut(raw, " as "); ok {
			imp.Path, imp.Alias = strings.TrimSpace(head), strings.TrimSpace(alias)
		}
		if strings.HasSuffix(imp.Path, ".*") {
			imp.Path = strings.TrimSuffix(imp.Path, ".*")
			imp.Star = true
		}
		f.Imports = append(f.Imports, imp)
	}
	Number(f)
	return f
}

// Number assigns sequential line numbers to every node in walk order.
func Number(f *File) {
	line := 0
	Walk(f, func(n Node) {
		line++
		setPos(n, Pos{Line: line, Col: 1})
	})
}

func setPos(n Node, p Pos) {
	switch n := n.(type) {
	case *Import:
		n.Pos = p
	case *Declaration:
		n.Pos = p
	case *TypeRef:
		n.Pos = p
	case *Param:
		n.Pos = p
	case *Block:
		n.Pos = p
	case *ValStmt:
		n.Pos = p
	case *ReturnStmt:
		n.Pos = p
	case *NameExpr:
		n.Pos = p
	case *CallExpr:
		n.Pos = p
	case *MemberExpr:
		n.Pos = p
	case *LiteralExpr:
		n.Pos = p
	}
}

// Walk visits every node of f in source order.
func Walk(f *File, fn func(Node)) {
	for _, imp := range f.Imports {
		fn(imp)
	}
	for _, d := range f.Declarations {
		walkDecl(d, fn)
	}
}

func walkDecl(d *Declaration, fn func(Node)) {
	fn(d)
	for _, s := range d.Supertypes {
		fn(s)
	}
	for _, p := range d.Params {
		fn(p)
		if p.Type != nil {
			fn(p.Type)
		}
	}
	if d.ReturnType != nil {
		fn(d.ReturnType)
	}
	if d.Type != nil {
		fn(d.Type)
	}
	if d.Initializer != nil {
		walkExpr(d.Initializer, fn)
	}
	if d.Body != nil {
		fn(d.Body)
		for _, s := range d.Body.Stmts {
			walkStmt(s, fn)
		}
	}
	for _, m := range d.Members {
		walkDecl(m, fn)
	}
}

func walkStmt(s Stmt, fn func(Node)) {
	switch s := s.(type) {
	case *ValStmt:
		fn(s)
		if s.Type != nil {
			fn(s.Type)
		}
		if s.Value != nil {
			walkExpr(s.Value, fn)
		}
	case *ReturnStmt:
		fn(s)
		if s.Value != nil {
			walkExpr(s.Value, fn)
		}
	case *ExprStmt:
		walkExpr(s.X, fn)
	}
}

func walkExpr(e Expr, fn func(Node)) {
	fn(e)
	switch e := e.(type) {
	case *CallExpr:
		walkExpr(e.Callee, fn)
		for _, a := range e.Args {
			walkExpr(a, fn)
		}
	case *MemberExpr:
		walkExpr(e.Receiver, fn)
	}
}

// Class declares a class with the given supertype names.
func Class(name string, supertypes ...string) *Declaration {
	return classifier(KindClass, name, supertypes)
}

func Interface(name string, supertypes ...string) *Declaration {
	return classifier(KindInterface, name, supertypes)
}

func Object(name string, supertypes ...string) *Declaration {
	return classifier(KindObject, name, supertypes)
}

func classifier(kind DeclKind, name string, supertypes []string) *Declaration {
	d := &Declaration{Kind: kind, Name: name}
	for _, s := range supertypes {
		d.Supertypes = append(d.Supertypes, &TypeRef{Name: s})
	}
	return d
}

// With appends members and returns d.
func (d *Declaration) With(members ...*Declaration) *Declaration {
	d.Members = append(d.Members, members...)
	return d
}

// Private marks d private and returns it.
func (d *Declaration) Private() *Declaration {
	d.Visibility = "private"
	return d
}

// Internal marks d internal and returns it.
func (d *Declaration) Internal() *Declaration {
	d.Visibility = "internal"
	return d
}

// Fun declares a function. An empty ret means Unit.
func Fun(name string, params []*Param, ret string, body ...Stmt) *Declaration {
	d := &Declaration{Kind: KindFunction, Name: name, Params: params}
	if ret != "" {
		d.ReturnType = &TypeRef{Name: ret}
	}
	if len(body) > 0 {
		d.Body = &Block{Stmts: body}
	}
	return d
}

// Prop declares a property. An empty typ means the type is inferred from init.
func Prop(name, typ string, init Expr) *Declaration {
	d := &Declaration{Kind: KindProperty, Name: name, Initializer: init}
	if typ != "" {
		d.Type = &TypeRef{Name: typ}
	}
	return d
}

func Params(pairs ...string) []*Param {
	var out []*Param
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, &Param{Name: pairs[i], Type: &TypeRef{Name: pairs[i+1]}})
	}
	return out
}

func Name(n string) *NameExpr { return &NameExpr{Name: n} }

func Call(callee Expr, args ...Expr) *CallExpr {
	return &CallExpr{Callee: callee, Args: args}
}

func Member(recv Expr, name string) *MemberExpr {
	return &MemberExpr{Receiver: recv, Name: name}
}

func Int(v string) *LiteralExpr  { return &LiteralExpr{Kind: LitInt, Value: v} }
func Str(v string) *LiteralExpr  { return &LiteralExpr{Kind: LitString, Value: v} }
func Bool(v string) *LiteralExpr { return &LiteralExpr{Kind: LitBool, Value: v} }

func Return(e Expr) *ReturnStmt { return &ReturnStmt{Value: e} }

func Val(name, typ string, value Expr) *ValStmt {
	s := &ValStmt{Name: name, Value: value}
	if typ != "" {
		s.Type = &TypeRef{Name: typ}
	}
	return s
}

func Do(e Expr) *ExprStmt { return &ExprStmt{X: e} }

// FunExpr declares a function with an expression body, `fun name(...) = e`.
// An empty ret means the return type is inferred.
func FunExpr(name string, params []*Param, ret string, e Expr) *Declaration {
	d := Fun(name, params, ret, Return(e))
	d.ExprBody = true
	return d
}

func Double(v string) *LiteralExpr { return &LiteralExpr{Kind: LitDouble, Value: v} }

func Null() *LiteralExpr { return &LiteralExpr{Kind: LitNull, Value: "null"} }
