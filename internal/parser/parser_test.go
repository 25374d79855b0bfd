package parser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/topdown"
	"github.com/jward/topdown/internal/resolve"
	"github.com/jward/topdown/internal/syntax"
)

const shapesSource = `package com.example.app

import com.example.base.Base
import com.example.util.*
import com.example.other.Thing as Alias

interface Shape {
    fun area(): Double
}

class Circle(val radius: Double) : Base(), Shape {
    private val label: String = "circle"
    override fun area(): Double = radius
}

object Registry

internal fun describe(s: Shape, n: Int): String {
    val a = s.area()
    println("shape")
    return "done"
}
`

func parse(t *testing.T, path, src string) *syntax.File {
	t.Helper()
	f, err := Parse(context.Background(), path, []byte(src))
	require.NoError(t, err)
	return f
}

func TestLanguageForFile(t *testing.T) {
	t.Parallel()
	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"main.kt", "kotlin", true},
		{"build.gradle.kts", "kotlin", true},
		{"a.src", "kotlin", true},
		{"Main.KT", "kotlin", true},
		{"main.go", "", false},
		{"README", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := LanguageForFile(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGrammarForLanguage(t *testing.T) {
	t.Parallel()
	lang, ok := GrammarForLanguage("kotlin")
	require.True(t, ok)
	assert.NotNil(t, lang)

	_, ok = GrammarForLanguage("cobol")
	assert.False(t, ok)
}

func TestExtensions(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{".kt", ".kts", ".src"}, Extensions())
}

func TestParse_FileHeader(t *testing.T) {
	t.Parallel()
	f := parse(t, "src/shapes.kt", shapesSource)
	assert.Empty(t, f.Errors)
	assert.Equal(t, "src/shapes.kt", f.Path)
	assert.Equal(t, "com.example.app", f.Package)

	require.Len(t, f.Imports, 3)
	assert.Equal(t, "com.example.base.Base", f.Imports[0].Path)
	assert.False(t, f.Imports[0].Star)
	assert.Equal(t, "com.example.util", f.Imports[1].Path)
	assert.True(t, f.Imports[1].Star)
	assert.Equal(t, "com.example.other.Thing", f.Imports[2].Path)
	assert.Equal(t, "Alias", f.Imports[2].Alias)
}

func TestParse_Declarations(t *testing.T) {
	t.Parallel()
	f := parse(t, "src/shapes.kt", shapesSource)
	require.Len(t, f.Declarations, 4)

	shape := f.Declarations[0]
	assert.Equal(t, syntax.KindInterface, shape.Kind)
	assert.Equal(t, "Shape", shape.Name)
	assert.Equal(t, syntax.Pos{Line: 7, Col: 11}, shape.Pos)
	require.Len(t, shape.Members, 1)
	assert.Equal(t, "area", shape.Members[0].Name)
	assert.Nil(t, shape.Members[0].Body)

	circle := f.Declarations[1]
	assert.Equal(t, syntax.KindClass, circle.Kind)
	require.Len(t, circle.Supertypes, 2)
	assert.Equal(t, "Base", circle.Supertypes[0].Name)
	assert.Equal(t, "Shape", circle.Supertypes[1].Name)
	require.Len(t, circle.Members, 3)

	radius := circle.Members[0]
	assert.Equal(t, syntax.KindProperty, radius.Kind)
	assert.Equal(t, "radius", radius.Name)
	require.NotNil(t, radius.Type)
	assert.Equal(t, "Double", radius.Type.Name)

	label := circle.Members[1]
	assert.Equal(t, "label", label.Name)
	assert.Equal(t, "private", label.Visibility)
	require.IsType(t, &syntax.LiteralExpr{}, label.Initializer)
	assert.Equal(t, "circle", label.Initializer.(*syntax.LiteralExpr).Value)

	area := circle.Members[2]
	assert.Equal(t, syntax.KindFunction, area.Kind)
	assert.True(t, area.ExprBody)
	require.NotNil(t, area.Body)
	require.Len(t, area.Body.Stmts, 1)
	ret := area.Body.Stmts[0].(*syntax.ReturnStmt)
	assert.Equal(t, "radius", ret.Value.(*syntax.NameExpr).Name)

	registry := f.Declarations[2]
	assert.Equal(t, syntax.KindObject, registry.Kind)
	assert.Equal(t, "Registry", registry.Name)
}

func TestParse_FunctionBody(t *testing.T) {
	t.Parallel()
	f := parse(t, "src/shapes.kt", shapesSource)
	describe := f.Declarations[3]
	assert.Equal(t, "describe", describe.Name)
	assert.Equal(t, "internal", describe.Visibility)
	assert.False(t, describe.ExprBody)
	require.Len(t, describe.Params, 2)
	assert.Equal(t, "s", describe.Params[0].Name)
	assert.Equal(t, "Shape", describe.Params[0].Type.Name)
	assert.Equal(t, "Int", describe.Params[1].Type.Name)
	require.NotNil(t, describe.ReturnType)
	assert.Equal(t, "String", describe.ReturnType.Name)

	require.NotNil(t, describe.Body)
	require.Len(t, describe.Body.Stmts, 3)

	val, ok := describe.Body.Stmts[0].(*syntax.ValStmt)
	require.True(t, ok)
	assert.Equal(t, "a", val.Name)
	call, ok := val.Value.(*syntax.CallExpr)
	require.True(t, ok)
	member, ok := call.Callee.(*syntax.MemberExpr)
	require.True(t, ok)
	assert.Equal(t, "area", member.Name)
	assert.Equal(t, "s", member.Receiver.(*syntax.NameExpr).Name)
	assert.Empty(t, call.Args)

	stmt, ok := describe.Body.Stmts[1].(*syntax.ExprStmt)
	require.True(t, ok)
	printCall := stmt.X.(*syntax.CallExpr)
	assert.Equal(t, "println", printCall.Callee.(*syntax.NameExpr).Name)
	require.Len(t, printCall.Args, 1)
	assert.Equal(t, syntax.LitString, printCall.Args[0].(*syntax.LiteralExpr).Kind)

	ret, ok := describe.Body.Stmts[2].(*syntax.ReturnStmt)
	require.True(t, ok)
	assert.Equal(t, "done", ret.Value.(*syntax.LiteralExpr).Value)
}

func TestParse_OperatorsBecomeCalls(t *testing.T) {
	t.Parallel()
	f := parse(t, "ops.kt", "package p\n\nfun sum(a: Int, b: Int) = a + b * 2\n")
	require.Empty(t, f.Errors)
	require.Len(t, f.Declarations, 1)

	ret := f.Declarations[0].Body.Stmts[0].(*syntax.ReturnStmt)
	plus := ret.Value.(*syntax.CallExpr)
	assert.Equal(t, "plus", plus.Callee.(*syntax.MemberExpr).Name)
	require.Len(t, plus.Args, 1)
	times := plus.Args[0].(*syntax.CallExpr)
	assert.Equal(t, "times", times.Callee.(*syntax.MemberExpr).Name)
	assert.Equal(t, "b", times.Callee.(*syntax.MemberExpr).Receiver.(*syntax.NameExpr).Name)
	assert.Equal(t, "2", times.Args[0].(*syntax.LiteralExpr).Value)
}

func TestParse_SyntaxErrorsAreRecorded(t *testing.T) {
	t.Parallel()
	f := parse(t, "broken.kt", "package p\n\nclass {\n")
	assert.NotEmpty(t, f.Errors)
	assert.Equal(t, "p", f.Package)
}

func TestParse_UnsupportedFileType(t *testing.T) {
	t.Parallel()
	_, err := Parse(context.Background(), "main.go", []byte("package main"))
	require.Error(t, err)
}

func TestParseFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "b.kt"), []byte("package p\n\nclass B : A()\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "a.kt"), []byte("package p\n\nopen class A\n"), 0o644))

	files, err := ParseFiles(context.Background(), dir, []string{"src/b.kt", "src/a.kt"})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "src/a.kt", files[0].Path)
	assert.Equal(t, "src/b.kt", files[1].Path)

	_, err = ParseFiles(context.Background(), dir, []string{"src/a.kt", "src/missing.kt"})
	require.Error(t, err)

	files, err = ParseFiles(context.Background(), dir, nil)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestParseFiles_Cancelled(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.kt"), []byte("package p\n"), 0o644))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ParseFiles(ctx, dir, []string{"a.kt"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestParsedSourcesAnalyze(t *testing.T) {
	t.Parallel()
	a := parse(t, "src/a.kt", "package p\n\nopen class A {\n    fun size(): Int = 1\n}\n")
	b := parse(t, "src/b.kt", "package p\n\nclass B : A() {\n    fun twice(): Int = size() + size()\n    fun broken(): Int = missing()\n}\n")
	require.Empty(t, a.Errors)
	require.Empty(t, b.Errors)

	res := topdown.Analyze(context.Background(), topdown.NewModuleContext("proj", "app"), []*topdown.File{b, a},
		topdown.Full, nil, nil, nil)
	require.False(t, res.IsError(), "%v", res.Err)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, resolve.UnresolvedReference, res.Diagnostics[0].Code)
	assert.Equal(t, "src/b.kt", res.Diagnostics[0].File)
	assert.Equal(t, 5, res.Diagnostics[0].Line)
}
