package scanner

import (
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// AllowedModules are the only modules a script may load().
var AllowedModules = map[string]bool{
	"math":  true,
	"time":  true,
	"ta":    true,
	"stats": true,
}

// deniedNames covers introspection, dynamic evaluation and process, network
// or file access. Any reference to one of these names is rejected.
var deniedNames = map[string]bool{
	"__import__": true,
	"eval":       true,
	"exec":       true,
	"compile":    true,
	"open":       true,
	"file":       true,
	"input":      true,
	"raw_input":  true,
	"globals":    true,
	"locals":     true,
	"vars":       true,
	"dir":        true,
	"getattr":    true,
	"setattr":    true,
	"delattr":    true,
	"hasattr":    true,
	"type":       true,
	"id":         true,
	"help":       true,
	"reload":     true,
	"os":         true,
	"sys":        true,
	"subprocess": true,
	"socket":     true,
	"requests":   true,
	"urllib":     true,
	"httpx":      true,
}

const (
	warnNoSignal     = "Scanner should set 'signal' variable to True/False"
	warnInfiniteLoop = "Potential infinite loop detected"
)

// ValidationResult is the outcome of static validation. Warnings never block.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Err returns a *ValidationError when the result is invalid, nil otherwise.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return &ValidationError{Errors: r.Errors}
}

type validator struct {
	errors   []string
	warnings []string
	flagged  map[string]bool
}

// Validate statically checks a scanner body. A parse failure yields a single
// error and stops; otherwise every violation in the file is reported.
func Validate(source string) ValidationResult {
	v := &validator{flagged: make(map[string]bool)}

	f, err := parseScript(source)
	if err != nil {
		v.errors = append(v.errors, fmt.Sprintf("Syntax error: %v", err))
		return v.result()
	}

	walk(f, v.visit)

	if !assignsName(f.Stmts, "signal") {
		v.warnings = append(v.warnings, warnNoSignal)
	}
	if hasUnboundedLoop(f) {
		v.warnings = append(v.warnings, warnInfiniteLoop)
	}

	seedResultSlots(f)
	if err := resolve.File(f, isPredeclared, starlark.Universe.Has); err != nil {
		v.addResolveErrors(err)
	}

	return v.result()
}

func (v *validator) result() ValidationResult {
	res := ValidationResult{
		Valid:    len(v.errors) == 0,
		Errors:   v.errors,
		Warnings: v.warnings,
	}
	if res.Errors == nil {
		res.Errors = []string{}
	}
	if res.Warnings == nil {
		res.Warnings = []string{}
	}
	return res
}

func (v *validator) visit(n syntax.Node) bool {
	switch n := n.(type) {
	case *syntax.LoadStmt:
		module, _ := n.Module.Value.(string)
		if !AllowedModules[module] {
			v.errors = append(v.errors, fmt.Sprintf("Import of '%s' is not allowed", module))
		}

	case *syntax.Ident:
		v.checkName(n.Name)

	case *syntax.DotExpr:
		if isDunder(n.Name.Name) {
			v.errors = append(v.errors, fmt.Sprintf("Access to '%s' is not allowed", n.Name.Name))
		}
		// The attribute name is not a variable reference.
		walk(n.X, v.visit)
		return false

	case *syntax.CallExpr:
		walk(n.Fn, v.visit)
		for _, arg := range n.Args {
			// Keyword argument names are not variable references.
			if kw, ok := arg.(*syntax.BinaryExpr); ok && kw.Op == syntax.EQ {
				walk(kw.Y, v.visit)
				continue
			}
			walk(arg, v.visit)
		}
		return false
	}
	return true
}

func (v *validator) checkName(name string) {
	switch {
	case name == "open" || name == "file":
		v.errors = append(v.errors, "File operations are not allowed")
	case deniedNames[name]:
		v.errors = append(v.errors, fmt.Sprintf("Use of '%s' is not allowed", name))
	case isDunder(name):
		v.errors = append(v.errors, fmt.Sprintf("Access to '%s' is not allowed", name))
	default:
		return
	}
	v.flagged[name] = true
}

// addResolveErrors reports undefined names and other resolver failures,
// skipping names already rejected above.
func (v *validator) addResolveErrors(err error) {
	var list resolve.ErrorList
	if !errors.As(err, &list) {
		v.errors = append(v.errors, err.Error())
		return
	}
	for _, e := range list {
		if name, ok := strings.CutPrefix(e.Msg, "undefined: "); ok && v.flagged[name] {
			continue
		}
		v.errors = append(v.errors, e.Error())
	}
}

// walk is syntax.Walk that also descends into while loops, which
// syntax.Walk has no case for.
func walk(n syntax.Node, f func(syntax.Node) bool) {
	syntax.Walk(n, func(n syntax.Node) bool {
		w, ok := n.(*syntax.WhileStmt)
		if !ok {
			return f(n)
		}
		if f(w) {
			walk(w.Cond, f)
			for _, stmt := range w.Body {
				walk(stmt, f)
			}
		}
		return false
	})
}

func isDunder(name string) bool {
	return len(name) > 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}

func assignsName(stmts []syntax.Stmt, name string) bool {
	found := false
	for _, stmt := range stmts {
		walk(stmt, func(n syntax.Node) bool {
			if found {
				return false
			}
			if assign, ok := n.(*syntax.AssignStmt); ok && bindsName(assign.LHS, name) {
				found = true
				return false
			}
			return true
		})
	}
	return found
}

func bindsName(lhs syntax.Expr, name string) bool {
	switch x := lhs.(type) {
	case *syntax.Ident:
		return x.Name == name
	case *syntax.ParenExpr:
		return bindsName(x.X, name)
	case *syntax.TupleExpr:
		for _, e := range x.List {
			if bindsName(e, name) {
				return true
			}
		}
	case *syntax.ListExpr:
		for _, e := range x.List {
			if bindsName(e, name) {
				return true
			}
		}
	}
	return false
}

// hasUnboundedLoop looks for `while True` (or a non-zero integer condition)
// whose body has no break at its own level and no return.
func hasUnboundedLoop(f *syntax.File) bool {
	found := false
	walk(f, func(n syntax.Node) bool {
		if found {
			return false
		}
		if w, ok := n.(*syntax.WhileStmt); ok && alwaysTrue(w.Cond) && !loopExits(w.Body) {
			found = true
			return false
		}
		return true
	})
	return found
}

func alwaysTrue(cond syntax.Expr) bool {
	switch c := cond.(type) {
	case *syntax.Ident:
		return c.Name == "True"
	case *syntax.Literal:
		if i, ok := c.Value.(int64); ok {
			return i != 0
		}
	case *syntax.ParenExpr:
		return alwaysTrue(c.X)
	}
	return false
}

func loopExits(body []syntax.Stmt) bool {
	for _, stmt := range body {
		switch s := stmt.(type) {
		case *syntax.BranchStmt:
			if s.Token == syntax.BREAK {
				return true
			}
		case *syntax.ReturnStmt:
			return true
		case *syntax.IfStmt:
			if loopExits(s.True) || loopExits(s.False) {
				return true
			}
		case *syntax.ForStmt:
			if containsReturn(s.Body) {
				return true
			}
		case *syntax.WhileStmt:
			if containsReturn(s.Body) {
				return true
			}
		}
	}
	return false
}

func containsReturn(body []syntax.Stmt) bool {
	for _, stmt := range body {
		switch s := stmt.(type) {
		case *syntax.ReturnStmt:
			return true
		case *syntax.IfStmt:
			if containsReturn(s.True) || containsReturn(s.False) {
				return true
			}
		case *syntax.ForStmt:
			if containsReturn(s.Body) {
				return true
			}
		case *syntax.WhileStmt:
			if containsReturn(s.Body) {
				return true
			}
		}
	}
	return false
}
