// Package check implements the two-pass semantic analyzer of spec.md §4.2:
// a preorder declaration-insertion pass followed by a postorder
// type-checking pass, both sharing a single long-lived analyzer value
// that threads an explicit scope/location context through the
// recursion — grounded on the teacher's compiler struct in
// internal/core/compile/compile.go, which threads a []frame stack
// through addDecls/expr in exactly this push-on-entry, pop-on-exit
// fashion (spec.md §9 DESIGN NOTES resolves "global mutable traversal
// state" the same way: "pass an explicit analyzer/generator context
// struct threaded through recursive calls").
package check

import (
	"io"
	"strconv"
	"strings"

	"github.com/tinyc-lang/tinyc/ast"
	"github.com/tinyc-lang/tinyc/errors"
	"github.com/tinyc-lang/tinyc/internal/core/symtab"
	"github.com/tinyc-lang/tinyc/token"
)

// context is the cursor described in spec.md §4.2: the current scope
// path and a location counter, reset to 0 on entry to each new scope and
// restored by the caller on exit (so recursion into a sibling scope
// never observes a prior sibling's counter).
type context struct {
	scope    string
	location int
}

// Analyzer runs both passes over a single AST and accumulates
// diagnostics. TraceAnalyze, when true, writes a symbol-table dump to
// Trace after analysis completes (spec.md §6 "Configuration flags").
type Analyzer struct {
	Table        *symtab.Table
	TraceAnalyze bool
	Trace        io.Writer

	// Decls is the top-level sibling chain actually analyzed, with the
	// input/output built-ins prepended; the generator walks this same
	// chain rather than the parser's original root so the two built-ins
	// get their stubs emitted too.
	Decls *ast.Node
	// GlobalSize is G, the final value of the top-level location
	// counter after pass 1 — the combined slot count of every global
	// variable, global array, and function declared at scope "~" (they
	// all share one counter; see spec.md §4.3 and codegen's use of G to
	// size the reserved function table).
	GlobalSize int

	errs  errors.List
	Error bool
}

// NewAnalyzer returns an Analyzer ready to run over one compilation.
func NewAnalyzer() *Analyzer {
	return &Analyzer{Table: symtab.New()}
}

func (a *Analyzer) errorf(lineno int, format string, args ...interface{}) {
	a.Error = true
	a.errs.AddNewf(token.Pos{Line: lineno}, format, args...)
}

func (a *Analyzer) typeErrorf(lineno int, format string, args ...interface{}) {
	a.Error = true
	a.errs.AddTypef(token.Pos{Line: lineno}, format, args...)
}

// builtins synthesizes the two built-in function declarations spec.md
// §4.2 requires be prepended to the top-level sibling chain before
// analysis: input: () -> Integer and output: (Integer) -> Void, the
// latter with a single SingleParam child named "arg".
func builtins() *ast.Node {
	input := ast.NewStmt(ast.FunctionK, 0)
	input.Name = "input"
	input.Type = ast.Integer

	output := ast.NewStmt(ast.FunctionK, 0)
	output.Name = "output"
	output.Type = ast.Void
	arg := ast.NewExp(ast.SingleParamK, 0)
	arg.Name = "arg"
	arg.Type = ast.Integer
	output.SetChild(0, arg)

	input.Sibling = output
	return input
}

// Analyze runs both passes over root (the top-level sibling chain of
// declarations produced by the parser) and returns the populated symbol
// table and accumulated diagnostics. It never panics on a malformed
// program; every problem is reported through the returned errors.List
// and a.Error is left set, per spec.md §7.
func (a *Analyzer) Analyze(root *ast.Node) (*symtab.Table, errors.List) {
	decls := builtins()
	decls.LastSibling().Sibling = root

	top := &context{scope: symtab.Root}
	a.insertList(top, decls)
	a.Decls = decls
	a.GlobalSize = top.location

	if a.Table.LookupLocal(symtab.Root, "main") == nil {
		a.Error = true
		a.errs.Add(errors.Fatalf("There is no main function"))
	}

	top2 := &context{scope: symtab.Root}
	a.checkList(top2, decls)

	if a.TraceAnalyze && a.Trace != nil {
		a.Table.PrintAll(a.Trace)
	}

	return a.Table, a.errs
}

// ---------------------------------------------------------------------
// Pass 1: declaration insertion (preorder)
// ---------------------------------------------------------------------

func (a *Analyzer) insertList(ctx *context, head *ast.Node) {
	head.Each(func(n *ast.Node) { a.insertNode(ctx, n) })
}

func (a *Analyzer) insertNode(ctx *context, n *ast.Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case ast.StmtK:
		a.insertStmt(ctx, n)
	case ast.ExpK:
		a.insertExp(ctx, n)
	}
}

func (a *Analyzer) insertStmt(ctx *context, n *ast.Node) {
	switch n.Stmt {
	case ast.FunctionK:
		if a.Table.LookupLocal(ctx.scope, n.Name) != nil {
			a.errorf(n.Lineno, "%s is already declared", n.Name)
		} else {
			a.Table.Insert(ctx.scope, n.Name, n.Type, n.Lineno, ctx.location, false)
			ctx.location++
		}
		fnCtx := &context{scope: ctx.scope + ":" + n.Name}
		a.insertList(fnCtx, n.Child(0)) // params
		a.insertNode(fnCtx, n.Child(1)) // body (a Compound node)

	case ast.CompoundK:
		blockCtx := &context{scope: ctx.scope + ":" + strconv.Itoa(n.Lineno)}
		a.insertList(blockCtx, n.Child(0)) // locals
		a.insertList(blockCtx, n.Child(1)) // statements

	case ast.IfK:
		a.insertNode(ctx, n.Child(0))
		a.insertNode(ctx, n.Child(1))
		a.insertNode(ctx, n.Child(2))

	case ast.WhileK:
		a.insertNode(ctx, n.Child(0))
		a.insertNode(ctx, n.Child(1))

	case ast.ReturnK:
		a.insertNode(ctx, n.Child(0))
	}
}

func (a *Analyzer) insertExp(ctx *context, n *ast.Node) {
	switch n.Exp {
	case ast.VarK:
		if a.Table.LookupLocal(ctx.scope, n.Name) != nil {
			a.errorf(n.Lineno, "%s is already declared", n.Name)
			return
		}
		a.Table.Insert(ctx.scope, n.Name, n.Type, n.Lineno, ctx.location, false)
		ctx.location++

	case ast.VarArrayK:
		size := 1
		if c := n.Child(0); c != nil {
			size = c.Val
		}
		if a.Table.LookupLocal(ctx.scope, n.Name) != nil {
			a.errorf(n.Lineno, "%s is already declared", n.Name)
			return
		}
		a.Table.Insert(ctx.scope, n.Name, n.Type, n.Lineno, ctx.location, true)
		ctx.location += size

	case ast.SingleParamK:
		if a.Table.LookupLocal(ctx.scope, n.Name) != nil {
			a.errorf(n.Lineno, "%s is already declared", n.Name)
			return
		}
		a.Table.Insert(ctx.scope, n.Name, n.Type, n.Lineno, ctx.location, false)
		ctx.location++

	case ast.ArrayParamK:
		if a.Table.LookupLocal(ctx.scope, n.Name) != nil {
			a.errorf(n.Lineno, "%s is already declared", n.Name)
			return
		}
		a.Table.Insert(ctx.scope, n.Name, n.Type, n.Lineno, ctx.location, true)
		ctx.location++

	case ast.IdK:
		e := a.Table.Lookup(ctx.scope, n.Name)
		if e == nil {
			a.errorf(n.Lineno, "%s is not declared", n.Name)
			return
		}
		a.Table.AddLine(ctx.scope, n.Name, n.Lineno)
		// A bare Id referring to an array-typed declaration is annotated
		// IsArray without rewriting Exp to IdArrayK, per the design note
		// on kind-promotion: the category lives in the annotation, not
		// in a mutated node tag. The generator distinguishes "bare array
		// name" (base address only, e.g. passed as an argument) from a
		// true subscripted IdArrayK node by checking for a present index
		// child.
		n.IsArray = e.IsArray

	case ast.IdArrayK:
		e := a.Table.Lookup(ctx.scope, n.Name)
		if e == nil {
			a.errorf(n.Lineno, "%s is not declared", n.Name)
		} else {
			a.Table.AddLine(ctx.scope, n.Name, n.Lineno)
			n.IsArray = true
		}
		a.insertNode(ctx, n.Child(0))

	case ast.CallK:
		e := a.Table.Lookup(ctx.scope, n.Name)
		if e == nil {
			a.errorf(n.Lineno, "%s is not declared", n.Name)
		} else {
			a.Table.AddLine(ctx.scope, n.Name, n.Lineno)
		}
		a.insertList(ctx, n.Child(0))

	case ast.AssignK:
		e := a.Table.Lookup(ctx.scope, n.Name)
		if e == nil {
			a.errorf(n.Lineno, "%s is not declared", n.Name)
		} else {
			a.Table.AddLine(ctx.scope, n.Name, n.Lineno)
			n.IsArray = e.IsArray
		}
		if n.IsArray {
			a.insertNode(ctx, n.Child(0))
		}
		a.insertNode(ctx, n.Child(1))

	case ast.OpK:
		a.insertNode(ctx, n.Child(0))
		a.insertNode(ctx, n.Child(1))
	}
}

// ---------------------------------------------------------------------
// Pass 2: type checking (postorder)
// ---------------------------------------------------------------------

func (a *Analyzer) checkList(ctx *context, head *ast.Node) {
	head.Each(func(n *ast.Node) { a.checkNode(ctx, n) })
}

func (a *Analyzer) checkNode(ctx *context, n *ast.Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case ast.StmtK:
		a.checkStmt(ctx, n)
	case ast.ExpK:
		a.checkExp(ctx, n)
	}
}

func (a *Analyzer) checkStmt(ctx *context, n *ast.Node) {
	switch n.Stmt {
	case ast.FunctionK:
		fnCtx := &context{scope: ctx.scope + ":" + n.Name}
		a.checkList(fnCtx, n.Child(0))
		a.checkNode(fnCtx, n.Child(1))

	case ast.CompoundK:
		blockCtx := &context{scope: ctx.scope + ":" + strconv.Itoa(n.Lineno)}
		a.checkList(blockCtx, n.Child(0))
		a.checkList(blockCtx, n.Child(1))

	case ast.IfK:
		a.checkNode(ctx, n.Child(0))
		a.checkNode(ctx, n.Child(1))
		a.checkNode(ctx, n.Child(2))

	case ast.WhileK:
		a.checkNode(ctx, n.Child(0))
		a.checkNode(ctx, n.Child(1))

	case ast.ReturnK:
		a.checkNode(ctx, n.Child(0))
		// postorder: the check itself runs after the (possibly absent)
		// return value has been checked.
		a.checkReturn(ctx, n)
	}
}

// checkReturn implements spec.md §4.2's Return rule: the enclosing
// function is found by splitting the current scope path on ':' and
// taking the first component after '~', then looking that function up
// at the root scope.
func (a *Analyzer) checkReturn(ctx *context, n *ast.Node) {
	parts := strings.Split(ctx.scope, ":")
	if len(parts) < 2 {
		a.typeErrorf(n.Lineno, "there is no enclosing function")
		return
	}
	fnName := parts[1]
	fn := a.Table.LookupLocal(symtab.Root, fnName)
	if fn == nil {
		a.typeErrorf(n.Lineno, "there is no %s", fnName)
		return
	}
	if fn.Type == ast.Void && n.Child(0) != nil {
		a.typeErrorf(n.Lineno, "Void function can not return a value")
	}
}

func (a *Analyzer) checkExp(ctx *context, n *ast.Node) {
	switch n.Exp {
	case ast.VarK, ast.VarArrayK:
		if n.Type == ast.Void {
			a.typeErrorf(n.Lineno, "variable can not be void type")
		}

	case ast.IdArrayK:
		a.checkNode(ctx, n.Child(0))

	case ast.CallK:
		a.checkList(ctx, n.Child(0))

	case ast.OpK:
		a.checkNode(ctx, n.Child(0))
		a.checkNode(ctx, n.Child(1))

	case ast.AssignK:
		if n.IsArray {
			a.checkNode(ctx, n.Child(0))
		}
		a.checkNode(ctx, n.Child(1))
		if !a.rvalueIsInteger(ctx, n.Child(1)) {
			a.typeErrorf(n.Lineno, "rvalue must be integer type")
		}
	}
}

// rvalueIsInteger implements spec.md §4.2's narrow Assign rvalue check:
// when the RHS is an identifier, call, or indexed access, the
// referent's declared type is consulted; otherwise only the node's own
// intrinsic Type field is checked. Per the Open Question in spec.md §9,
// this is deliberately NOT strengthened to recurse into, say, an Op
// node's operands — see DESIGN.md for the recorded rationale.
func (a *Analyzer) rvalueIsInteger(ctx *context, rhs *ast.Node) bool {
	if rhs == nil {
		return true
	}
	if rhs.Kind == ast.ExpK {
		switch rhs.Exp {
		case ast.IdK, ast.IdArrayK, ast.CallK:
			e := a.Table.Lookup(ctx.scope, rhs.Name)
			if e == nil {
				// Already reported as undeclared; do not cascade a
				// second, spurious type error.
				return true
			}
			return e.Type == ast.Integer
		}
	}
	return rhs.Type == ast.Integer
}
