package scanner

import (
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

const scriptFilename = "scanner.star"

// fileOptions enables the dialect scanner bodies are written in: top-level
// if/for/while, set(), and reassignment of globals. Recursion stays off.
func fileOptions() *syntax.FileOptions {
	return &syntax.FileOptions{
		Set:             true,
		While:           true,
		TopLevelControl: true,
		GlobalReassign:  true,
	}
}

// resultSlots are the legacy and exploration names a script may read before
// assigning. They are bound at the top of every script with their defaults.
var resultSlots = []struct {
	name  string
	value func(pos syntax.Position) syntax.Expr
}{
	{"signal", func(pos syntax.Position) syntax.Expr { return &syntax.Ident{NamePos: pos, Name: "False"} }},
	{"signal_type", func(pos syntax.Position) syntax.Expr {
		return &syntax.Literal{TokenPos: pos, Token: syntax.STRING, Raw: `""`, Value: ""}
	}},
	{"metrics", func(pos syntax.Position) syntax.Expr { return &syntax.DictExpr{Lbrace: pos, Rbrace: pos} }},
	{"Filter", func(pos syntax.Position) syntax.Expr { return &syntax.Ident{NamePos: pos, Name: "False"} }},
}

func seedResultSlots(f *syntax.File) {
	pos := syntax.MakePosition(&f.Path, 1, 1)
	stmts := make([]syntax.Stmt, 0, len(resultSlots)+len(f.Stmts))
	for _, slot := range resultSlots {
		stmts = append(stmts, &syntax.AssignStmt{
			OpPos: pos,
			Op:    syntax.EQ,
			LHS:   &syntax.Ident{NamePos: pos, Name: slot.name},
			RHS:   slot.value(pos),
		})
	}
	f.Stmts = append(stmts, f.Stmts...)
}

func parseScript(source string) (*syntax.File, error) {
	return fileOptions().Parse(scriptFilename, source, 0)
}

// Program is a scanner body compiled once and shared read-only by every
// symbol of a batch.
type Program struct {
	prog *starlark.Program
}

// Compile parses and compiles a scanner body. Failures are *CompilationError.
func Compile(source string) (*Program, error) {
	f, err := parseScript(source)
	if err != nil {
		return nil, &CompilationError{Err: err}
	}
	seedResultSlots(f)

	prog, err := starlark.FileProgram(f, isPredeclared)
	if err != nil {
		return nil, &CompilationError{Err: err}
	}
	return &Program{prog: prog}, nil
}
