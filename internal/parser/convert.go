package parser

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/topdown/internal/syntax"
)

// converter lowers one Kotlin tree into a syntax.File.
type converter struct {
	src  []byte
	file *syntax.File
}

func (c *converter) pos(n *sitter.Node) syntax.Pos {
	p := n.StartPoint()
	return syntax.Pos{Line: int(p.Row) + 1, Col: int(p.Column) + 1}
}

func (c *converter) text(n *sitter.Node) string { return n.Content(c.src) }

func (c *converter) warn(n *sitter.Node, format string, args ...any) {
	c.file.Errors = append(c.file.Errors, syntax.ParseError{
		Pos:     c.pos(n),
		Message: fmt.Sprintf(format, args...),
	})
}

// collectErrors reports ERROR and missing nodes. Subtrees of an ERROR node
// are not searched further.
func (c *converter) collectErrors(n *sitter.Node) {
	switch {
	case n.Type() == "ERROR":
		c.warn(n, "syntax error near %q", snippet(c.text(n)))
		return
	case n.IsMissing():
		c.warn(n, "missing %s", n.Type())
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c.collectErrors(n.Child(i))
	}
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 24 {
		return s[:24] + "..."
	}
	return s
}

func named(n *sitter.Node) []*sitter.Node {
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}

// child returns the first named child of n with type typ.
func child(n *sitter.Node, typ string) *sitter.Node {
	for _, ch := range named(n) {
		if ch.Type() == typ {
			return ch
		}
	}
	return nil
}

func hasToken(n *sitter.Node, tok string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == tok {
			return true
		}
	}
	return false
}

// afterToken returns the child following the first tok child of n.
func afterToken(n *sitter.Node, tok string) *sitter.Node {
	count := int(n.ChildCount())
	for i := 0; i < count-1; i++ {
		if n.Child(i).Type() == tok {
			return n.Child(i + 1)
		}
	}
	return nil
}

// lastOperand returns the last child of n that can stand for an
// expression: a named node or the null keyword.
func lastOperand(n *sitter.Node) *sitter.Node {
	for i := int(n.ChildCount()) - 1; i >= 0; i-- {
		ch := n.Child(i)
		if ch.IsNamed() && !isComment(ch) || ch.Type() == "null" {
			return ch
		}
	}
	return nil
}

func isComment(n *sitter.Node) bool {
	switch n.Type() {
	case "line_comment", "multiline_comment", "comment":
		return true
	}
	return false
}

func compact(s string) string { return strings.Join(strings.Fields(s), "") }

func (c *converter) sourceFile(root *sitter.Node) {
	for _, n := range named(root) {
		switch n.Type() {
		case "package_header":
			if id := child(n, "identifier"); id != nil {
				c.file.Package = compact(c.text(id))
			}
		case "import_list":
			for _, h := range named(n) {
				if h.Type() == "import_header" {
					c.importHeader(h)
				}
			}
		case "import_header":
			c.importHeader(n)
		case "ERROR", "shebang_line", "file_annotation":
		default:
			if isComment(n) {
				continue
			}
			if d := c.declaration(n); d != nil {
				c.file.Declarations = append(c.file.Declarations, d)
			}
		}
	}
}

func (c *converter) importHeader(h *sitter.Node) {
	imp := &syntax.Import{Pos: c.pos(h)}
	if id := child(h, "identifier"); id != nil {
		imp.Path = compact(c.text(id))
	}
	if child(h, "wildcard_import") != nil || strings.HasSuffix(imp.Path, ".*") {
		imp.Star = true
		imp.Path = strings.TrimSuffix(imp.Path, ".*")
	}
	if a := child(h, "import_alias"); a != nil {
		if last := lastOperand(a); last != nil {
			imp.Alias = c.text(last)
		}
	}
	if imp.Path == "" {
		c.warn(h, "malformed import")
		return
	}
	c.file.Imports = append(c.file.Imports, imp)
}

// declaration lowers a class, interface, object, function or property.
// Anything else is reported and skipped.
func (c *converter) declaration(n *sitter.Node) *syntax.Declaration {
	switch n.Type() {
	case "class_declaration":
		kind := syntax.KindClass
		if hasToken(n, "interface") {
			kind = syntax.KindInterface
		}
		return c.classifier(n, kind, "")
	case "object_declaration":
		return c.classifier(n, syntax.KindObject, "")
	case "companion_object":
		return c.classifier(n, syntax.KindObject, "Companion")
	case "function_declaration":
		return c.function(n)
	case "property_declaration":
		return c.property(n)
	}
	c.warn(n, "unsupported declaration %s", n.Type())
	return nil
}

func (c *converter) classifier(n *sitter.Node, kind syntax.DeclKind, defaultName string) *syntax.Declaration {
	d := &syntax.Declaration{Kind: kind, Name: defaultName, Visibility: c.visibility(n), Pos: c.pos(n)}
	if id := child(n, "type_identifier"); id != nil {
		d.Name = c.text(id)
		d.Pos = c.pos(id)
	}
	if d.Name == "" {
		c.warn(n, "%s without a name", kind)
		return nil
	}

	for _, ch := range named(n) {
		switch ch.Type() {
		case "delegation_specifier":
			if ref := c.typeRef(ch); ref != nil {
				d.Supertypes = append(d.Supertypes, ref)
			}
		case "delegation_specifiers":
			for _, spec := range named(ch) {
				if ref := c.typeRef(spec); ref != nil {
					d.Supertypes = append(d.Supertypes, ref)
				}
			}
		case "primary_constructor":
			d.Members = append(d.Members, c.constructorProperties(ch)...)
		case "class_body":
			for _, m := range named(ch) {
				if isComment(m) || m.Type() == "anonymous_initializer" {
					continue
				}
				if md := c.declaration(m); md != nil {
					d.Members = append(d.Members, md)
				}
			}
		}
	}
	return d
}

// constructorProperties lowers `val`/`var` constructor parameters into
// member properties. Plain parameters declare nothing.
func (c *converter) constructorProperties(ctor *sitter.Node) []*syntax.Declaration {
	params := child(ctor, "class_parameters")
	if params == nil {
		return nil
	}
	var out []*syntax.Declaration
	for _, p := range named(params) {
		if p.Type() != "class_parameter" {
			continue
		}
		if child(p, "binding_pattern_kind") == nil && !hasToken(p, "val") && !hasToken(p, "var") {
			continue
		}
		id := child(p, "simple_identifier")
		if id == nil {
			continue
		}
		out = append(out, &syntax.Declaration{
			Kind:       syntax.KindProperty,
			Name:       c.text(id),
			Visibility: c.visibility(p),
			Type:       c.firstType(p),
			Pos:        c.pos(id),
		})
	}
	return out
}

func (c *converter) function(n *sitter.Node) *syntax.Declaration {
	id := child(n, "simple_identifier")
	if id == nil {
		c.warn(n, "function without a name")
		return nil
	}
	d := &syntax.Declaration{Kind: syntax.KindFunction, Name: c.text(id), Visibility: c.visibility(n), Pos: c.pos(id)}

	seenParams := false
	for _, ch := range named(n) {
		switch {
		case ch.Type() == "function_value_parameters":
			seenParams = true
			d.Params = c.params(ch)
		case isTypeNode(ch):
			if !seenParams {
				c.warn(ch, "extension receivers are not supported")
				return nil
			}
			d.ReturnType = c.typeRef(ch)
		case ch.Type() == "function_body":
			c.functionBody(d, ch)
		}
	}
	return d
}

func (c *converter) params(n *sitter.Node) []*syntax.Param {
	var out []*syntax.Param
	for _, p := range named(n) {
		if p.Type() != "parameter" {
			continue
		}
		id := child(p, "simple_identifier")
		if id == nil {
			continue
		}
		out = append(out, &syntax.Param{Name: c.text(id), Type: c.firstType(p), Pos: c.pos(id)})
	}
	return out
}

func (c *converter) functionBody(d *syntax.Declaration, body *sitter.Node) {
	if blk := child(body, "block"); blk != nil {
		d.Body = c.block(blk)
		return
	}
	if e := afterToken(body, "="); e != nil {
		if x := c.expr(e); x != nil {
			d.Body = &syntax.Block{
				Stmts: []syntax.Stmt{&syntax.ReturnStmt{Value: x, Pos: c.pos(e)}},
				Pos:   c.pos(body),
			}
			d.ExprBody = true
		}
		return
	}
	if hasToken(body, "{") {
		d.Body = c.block(body)
	}
}

func (c *converter) property(n *sitter.Node) *syntax.Declaration {
	v := child(n, "variable_declaration")
	if v == nil {
		c.warn(n, "destructuring declarations are not supported")
		return nil
	}
	id := child(v, "simple_identifier")
	if id == nil {
		c.warn(n, "property without a name")
		return nil
	}
	for _, ch := range named(n) {
		if isTypeNode(ch) {
			c.warn(ch, "extension receivers are not supported")
			return nil
		}
	}
	d := &syntax.Declaration{
		Kind:       syntax.KindProperty,
		Name:       c.text(id),
		Visibility: c.visibility(n),
		Type:       c.firstType(v),
		Pos:        c.pos(id),
	}
	if e := afterToken(n, "="); e != nil {
		d.Initializer = c.expr(e)
	}
	return d
}

func (c *converter) visibility(n *sitter.Node) string {
	mods := child(n, "modifiers")
	if mods == nil {
		mods = child(n, "class_parameter_modifiers")
	}
	if mods == nil {
		return ""
	}
	if vm := child(mods, "visibility_modifier"); vm != nil {
		return strings.TrimSpace(c.text(vm))
	}
	return ""
}

func isTypeNode(n *sitter.Node) bool {
	switch n.Type() {
	case "user_type", "nullable_type", "function_type", "parenthesized_type", "non_nullable_type":
		return true
	}
	return false
}

// firstType returns the first type among the named children of n.
func (c *converter) firstType(n *sitter.Node) *syntax.TypeRef {
	for _, ch := range named(n) {
		if isTypeNode(ch) {
			return c.typeRef(ch)
		}
	}
	return nil
}

// typeRef lowers a type or supertype specifier. Nullability and type
// arguments are dropped; function types are reported.
func (c *converter) typeRef(n *sitter.Node) *syntax.TypeRef {
	if ref := c.findType(n); ref != nil {
		return ref
	}
	c.warn(n, "unsupported type %q", snippet(c.text(n)))
	return nil
}

func (c *converter) findType(n *sitter.Node) *syntax.TypeRef {
	switch n.Type() {
	case "user_type":
		var parts []string
		for _, t := range named(n) {
			if t.Type() == "type_identifier" {
				parts = append(parts, c.text(t))
			}
		}
		if len(parts) == 0 {
			return nil
		}
		return &syntax.TypeRef{Name: strings.Join(parts, "."), Pos: c.pos(n)}
	case "type_identifier":
		return &syntax.TypeRef{Name: c.text(n), Pos: c.pos(n)}
	case "nullable_type", "non_nullable_type", "parenthesized_type", "delegation_specifier", "constructor_invocation", "explicit_delegation":
		for _, ch := range named(n) {
			if ref := c.findType(ch); ref != nil {
				return ref
			}
		}
	}
	return nil
}

func (c *converter) block(n *sitter.Node) *syntax.Block {
	b := &syntax.Block{Pos: c.pos(n)}
	for _, s := range statementNodes(n) {
		if st := c.stmt(s); st != nil {
			b.Stmts = append(b.Stmts, st)
		}
	}
	return b
}

func statementNodes(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for _, ch := range named(n) {
		switch {
		case ch.Type() == "statements":
			out = append(out, statementNodes(ch)...)
		case isComment(ch), ch.Type() == "ERROR":
		default:
			out = append(out, ch)
		}
	}
	return out
}

func (c *converter) stmt(n *sitter.Node) syntax.Stmt {
	switch n.Type() {
	case "property_declaration":
		v := child(n, "variable_declaration")
		if v == nil {
			c.warn(n, "destructuring declarations are not supported")
			return nil
		}
		id := child(v, "simple_identifier")
		if id == nil {
			return nil
		}
		s := &syntax.ValStmt{Name: c.text(id), Type: c.firstType(v), Pos: c.pos(id)}
		if e := afterToken(n, "="); e != nil {
			s.Value = c.expr(e)
		}
		if s.Value == nil {
			c.warn(n, "local %s needs an initializer", s.Name)
			return nil
		}
		return s
	case "jump_expression":
		if !strings.HasPrefix(c.text(n), "return") {
			c.warn(n, "unsupported jump %q", snippet(c.text(n)))
			return nil
		}
		r := &syntax.ReturnStmt{Pos: c.pos(n)}
		if operand := lastOperand(n); operand != nil {
			r.Value = c.expr(operand)
		}
		return r
	case "class_declaration", "object_declaration", "function_declaration":
		c.warn(n, "local declarations are not supported")
		return nil
	case "assignment":
		c.warn(n, "assignments are not supported")
		return nil
	}
	if x := c.expr(n); x != nil {
		return &syntax.ExprStmt{X: x}
	}
	return nil
}

var operators = map[string]string{
	"+": "plus",
	"-": "minus",
	"*": "times",
	"/": "div",
	"%": "rem",
}

// expr lowers an expression, or reports it and returns nil.
func (c *converter) expr(n *sitter.Node) syntax.Expr {
	switch n.Type() {
	case "simple_identifier":
		return &syntax.NameExpr{Name: c.text(n), Pos: c.pos(n)}
	case "integer_literal", "hex_literal", "bin_literal", "long_literal":
		return &syntax.LiteralExpr{Kind: syntax.LitInt, Value: c.text(n), Pos: c.pos(n)}
	case "real_literal":
		return &syntax.LiteralExpr{Kind: syntax.LitDouble, Value: c.text(n), Pos: c.pos(n)}
	case "boolean_literal":
		return &syntax.LiteralExpr{Kind: syntax.LitBool, Value: c.text(n), Pos: c.pos(n)}
	case "string_literal":
		return &syntax.LiteralExpr{Kind: syntax.LitString, Value: strings.Trim(c.text(n), `"`), Pos: c.pos(n)}
	case "null":
		return &syntax.LiteralExpr{Kind: syntax.LitNull, Value: "null", Pos: c.pos(n)}
	case "parenthesized_expression":
		if inner := lastOperand(n); inner != nil {
			return c.expr(inner)
		}
	case "call_expression":
		return c.call(n)
	case "navigation_expression":
		return c.navigation(n)
	case "additive_expression", "multiplicative_expression":
		return c.binary(n)
	}
	c.warn(n, "unsupported expression %s", n.Type())
	return nil
}

func (c *converter) call(n *sitter.Node) syntax.Expr {
	kids := named(n)
	suffix := child(n, "call_suffix")
	if len(kids) == 0 || suffix == nil {
		c.warn(n, "malformed call")
		return nil
	}
	if child(suffix, "annotated_lambda") != nil {
		c.warn(suffix, "trailing lambdas are not supported")
		return nil
	}
	callee := c.expr(kids[0])
	if callee == nil {
		return nil
	}
	call := &syntax.CallExpr{Callee: callee, Pos: c.pos(n)}
	if args := child(suffix, "value_arguments"); args != nil {
		for _, a := range named(args) {
			if a.Type() != "value_argument" {
				continue
			}
			operand := lastOperand(a)
			if operand == nil {
				return nil
			}
			x := c.expr(operand)
			if x == nil {
				return nil
			}
			call.Args = append(call.Args, x)
		}
	}
	return call
}

func (c *converter) navigation(n *sitter.Node) syntax.Expr {
	kids := named(n)
	suffix := child(n, "navigation_suffix")
	if len(kids) == 0 || suffix == nil {
		c.warn(n, "malformed member access")
		return nil
	}
	id := child(suffix, "simple_identifier")
	if id == nil {
		c.warn(suffix, "unsupported member access %q", snippet(c.text(suffix)))
		return nil
	}
	recv := c.expr(kids[0])
	if recv == nil {
		return nil
	}
	return &syntax.MemberExpr{Receiver: recv, Name: c.text(id), Pos: c.pos(id)}
}

// binary lowers `a op b` to the operator call `a.op(b)`.
func (c *converter) binary(n *sitter.Node) syntax.Expr {
	if n.ChildCount() != 3 {
		c.warn(n, "malformed operator expression")
		return nil
	}
	opNode := n.Child(1)
	op, ok := operators[c.text(opNode)]
	if !ok {
		c.warn(opNode, "unsupported operator %q", c.text(opNode))
		return nil
	}
	lhs := c.expr(n.Child(0))
	rhs := c.expr(n.Child(2))
	if lhs == nil || rhs == nil {
		return nil
	}
	return &syntax.CallExpr{
		Callee: &syntax.MemberExpr{Receiver: lhs, Name: op, Pos: c.pos(opNode)},
		Args:   []syntax.Expr{rhs},
		Pos:    c.pos(n),
	}
}
