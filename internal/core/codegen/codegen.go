// Package codegen translates a checked AST into TM assembly, per
// spec.md §4.3. It is grounded on the teacher's expression-dispatch
// switch in internal/core/compile/compile.go (one case per ast.Expr
// variant, evaluating into an accumulator and recursing into operands)
// combined with the reserve-then-backpatch two-pass discipline used by
// the assembler reference in the retrieval pack: every forward jump
// target is reserved with Skip and patched once its real address is
// known, rather than computed by a second full pass over the tree.
package codegen

import (
	"fmt"

	"github.com/tinyc-lang/tinyc/ast"
	"github.com/tinyc-lang/tinyc/internal/core/symtab"
	"github.com/tinyc-lang/tinyc/internal/tm"
)

// nameSlot is one entry on the local-name or parameter stack described
// in spec.md §4.3 "Name resolution at code-gen".
type nameSlot struct {
	name    string
	isArray bool
	offset  int // slot offset from mp (locals) or from fp (parameters)
}

// context is the generator's cursor: the current scope path (for
// resolving identifiers against the symbol table's global slots), the
// local-name and parameter stacks for the enclosing function, and the
// per-expression scratch offset. It is threaded explicitly through
// recursive calls and saved/restored at scope entry and exit, mirroring
// the analyzer's context and spec.md §9's resolution of "global mutable
// traversal state".
type context struct {
	scope     string
	locals    []nameSlot // innermost last
	params    []nameSlot
	tmpOffset int
}

func (c context) clone() context {
	cp := c
	cp.locals = append([]nameSlot(nil), c.locals...)
	cp.params = append([]nameSlot(nil), c.params...)
	return cp
}

// Generator emits TM assembly for a checked program.
type Generator struct {
	em    *tm.Emitter
	table *symtab.Table

	funcTableSlot map[string]int // function name -> reserved prelude address pair start
	globalSize    int            // G, per spec.md §4.3
	tableStart    int            // first address of the reserved function table
	locMain       int
	mainSeen      bool
}

// NewGenerator returns a Generator that will emit instructions through
// em, resolving global names against table. globalSize is G, computed
// by the analyzer as the final top-level location-counter value
// (symtab.Table alone cannot recover array sizes from declaration
// order, so the generator takes G directly rather than recomputing it).
func NewGenerator(em *tm.Emitter, table *symtab.Table, globalSize int) *Generator {
	return &Generator{
		em:            em,
		table:         table,
		globalSize:    globalSize,
		funcTableSlot: map[string]int{},
	}
}

// Generate emits the full program: prelude, reserved function table,
// every top-level declaration, the backpatched jump to main, and the
// final HALT, per spec.md §4.3 "Prelude and finalization". There is no
// jump around the function table: the reservation just advances the
// emitter's cursor, so the declarations generated next are written
// right after it, and runtime control falls straight through the
// table's patched address-publish pairs on its way to the final jump
// to main — exactly as the reference cgen.c's codeGen/insertFunction
// do, with no separate skip-ahead branch.
func (g *Generator) Generate(decls *ast.Node) {
	g.em.EmitComment("TM prelude")
	g.em.EmitRM("LD", tm.MP, 0, tm.AC, "load maxaddress from location 0")
	g.em.EmitRM("ST", tm.AC, 0, tm.AC, "clear location 0")

	g.em.EmitComment("function table")
	g.tableStart = g.em.Addr()
	g.em.Skip(2*g.globalSize + 1)

	ctx := &context{scope: symtab.Root}
	decls.Each(func(n *ast.Node) { g.genTopLevel(ctx, n) })

	// The jump-to-main patch lands wherever the table's running slot
	// cursor ended up after every function published its entry — right
	// after the last used pair, not at a fixed 2*G offset — so
	// straight-line execution reaches it with no gap of unpatched (and
	// therefore HALT-rendered) words in between.
	jumpToMainSlot := g.tableStart + len(g.funcTableSlot)*2
	g.em.Backup(jumpToMainSlot)
	g.em.EmitRM("LDC", tm.PC, g.locMain, "0", "jump to main")
	g.em.Restore()

	g.em.EmitRO("HALT", "0", "0", "0", "end of execution")
}

// genTopLevel dispatches a top-level declaration: global Var/VarArray
// need no code (their storage is just a gp-relative slot); Function
// declarations are fully generated.
func (g *Generator) genTopLevel(ctx *context, n *ast.Node) {
	if n.Kind == ast.StmtK && n.Stmt == ast.FunctionK {
		g.genFunction(ctx, n)
	}
}

// builtinBody reports whether fn is one of the two inline primitives
// (input/output) that carry no user-written Compound body.
func builtinBody(n *ast.Node) bool {
	return n.Child(1) == nil
}

func (g *Generator) genFunction(ctx *context, n *ast.Node) {
	entryAddr := g.em.Addr()
	slot, ok := g.funcTableSlot[n.Name]
	if !ok {
		slot = len(g.funcTableSlot) * 2
		g.funcTableSlot[n.Name] = slot
	}

	if n.Name == "main" {
		g.mainSeen = true
		g.locMain = entryAddr
	}

	// Publish the entry address into this function's reserved global
	// slot via a patched two-instruction pair in the function table
	// region, per spec.md §4.3 "function entries patch two
	// instructions here per function to publish their entry address".
	// LDC loads entryAddr as a literal, not a pc-relative displacement
	// (it ignores its base-register operand entirely), so the address
	// published is exactly entryAddr regardless of where this patch
	// lands in the table.
	loc := g.table.GetLocation(symtab.Root, n.Name)
	tableAddr := g.tableStart + slot
	g.em.Backup(tableAddr)
	g.em.EmitRM("LDC", tm.AC, entryAddr, "0", fmt.Sprintf("entry of %s", n.Name))
	g.em.EmitRM("ST", tm.AC, loc, tm.GP, fmt.Sprintf("publish %s into function table", n.Name))
	g.em.Restore()

	fnCtx := &context{scope: ctx.scope + ":" + n.Name}
	g.bindParams(fnCtx, n.Child(0))

	g.em.EmitComment(fmt.Sprintf("function %s", n.Name))
	if builtinBody(n) {
		g.genBuiltin(n)
		return
	}
	g.genFunctionBody(fnCtx, n.Child(1), n.Name != "main")
	g.genReturnSequence(n)
}

// genFunctionBody implements spec.md §4.3's callee frame protocol:
// every local declaration anywhere in the function's body — including
// ones nested inside an if/while's own compound block — is pushed onto
// one local-name stack and mp is decremented once, by their combined
// count, on entry; the deallocation mirrors it on exit. Nested compound
// statements recurse through genBlock without their own mp adjustment.
//
// reserveCallFrame is true for every function except main: genCall
// writes its three bookkeeping words (saved mp, return address, saved
// fp) at offsets [0]/[-1]/[-2] of the mp it hands the callee, so a
// callee with no locals of its own would otherwise spill its first
// temporary directly on top of the return address. Reserving the three
// words here, below any declared locals, keeps every mp-relative temp
// strictly clear of them. main has no caller frame (it's entered by a
// direct jump, not genCall) and so reserves nothing extra.
func (g *Generator) genFunctionBody(ctx *context, body *ast.Node, reserveCallFrame bool) {
	var locals []*ast.Node
	flattenLocals(body, &locals)

	localSlots := 0
	for _, l := range locals {
		isArray := l.Exp == ast.VarArrayK
		size := 1
		if isArray {
			size = l.Child(0).Val
		}
		ctx.locals = append(ctx.locals, nameSlot{name: l.Name, isArray: isArray, offset: localSlots})
		localSlots += size
	}
	total := localSlots
	if reserveCallFrame {
		total += 3
	}
	if total > 0 {
		g.em.EmitRM("LDA", tm.MP, -total, tm.MP, fmt.Sprintf("allocate %d local slot(s)", localSlots))
	}

	g.genBlock(ctx, body)

	if total > 0 {
		g.em.EmitRM("LDA", tm.MP, total, tm.MP, "deallocate locals")
	}
}

// flattenLocals walks every statement reachable from a compound body
// (without crossing into a nested function declaration, which this
// grammar does not allow) and appends each Var/VarArray local
// declaration node it finds, in declaration order.
func flattenLocals(n *ast.Node, out *[]*ast.Node) {
	if n == nil {
		return
	}
	switch n.Stmt {
	case ast.CompoundK:
		n.Child(0).Each(func(l *ast.Node) { *out = append(*out, l) })
		n.Child(1).Each(func(s *ast.Node) { flattenLocals(s, out) })
	case ast.IfK:
		flattenLocals(n.Child(1), out)
		flattenLocals(n.Child(2), out)
	case ast.WhileK:
		flattenLocals(n.Child(1), out)
	}
}

// genBlock emits a nested compound's statements in place, without
// allocating its own stack slots — every local within the enclosing
// function was already allocated once by genFunctionBody.
func (g *Generator) genBlock(ctx *context, n *ast.Node) {
	n.Child(1).Each(func(s *ast.Node) { g.genStmt(ctx, s) })
}

func (g *Generator) bindParams(ctx *context, head *ast.Node) {
	i := 0
	head.Each(func(p *ast.Node) {
		ctx.params = append(ctx.params, nameSlot{name: p.Name, isArray: p.Exp == ast.ArrayParamK, offset: i + 1})
		i++
	})
}

// genBuiltin emits the two-instruction stub for input/output described
// in spec.md §8's round-trip property: "a two-instruction stub for
// input and output". Both are called through the same genCall/
// genReturnSequence frame protocol as any other function — input takes
// its stub's single instruction, output loads its one parameter off fp
// the same way any function would.
func (g *Generator) genBuiltin(n *ast.Node) {
	switch n.Name {
	case "input":
		g.em.EmitRO("IN", tm.AC, "0", "0", "read integer value")
	case "output":
		g.em.EmitRM("LD", tm.AC, 1, tm.FP, "load output argument")
		g.em.EmitRO("OUT", tm.AC, "0", "0", "write integer value")
	}
	g.genReturnSequence(n)
}

// genReturnSequence emits the tail of a function activation: restore mp
// from the saved slot at [fp+0], load the saved return address from
// [fp-1] into ac1 (leaving any return value in ac untouched), reload the
// caller's fp from [fp-2], and jump to the return address — except main,
// which falls through to the final HALT, per spec.md §4.3.
func (g *Generator) genReturnSequence(n *ast.Node) {
	if n.Name == "main" {
		return
	}
	g.em.EmitRM("LD", tm.MP, 0, tm.FP, "restore mp from fp")
	g.em.EmitRM("LD", tm.AC1, -1, tm.FP, "load saved return address")
	g.em.EmitRM("LD", tm.FP, -2, tm.FP, "restore caller's fp")
	g.em.EmitRM("LDA", tm.PC, 0, tm.AC1, "return to caller")
}

// ---------------------------------------------------------------------
// Statement generation
// ---------------------------------------------------------------------

func collectLocals(head *ast.Node) []*ast.Node {
	var out []*ast.Node
	head.Each(func(n *ast.Node) { out = append(out, n) })
	return out
}

func (g *Generator) genStmt(ctx *context, n *ast.Node) {
	if n.Kind == ast.ExpK {
		// A bare assignment or call used as a statement (e.g. `x = 1;`,
		// `f();`): the parser hands these back as plain expression
		// nodes, with no statement wrapper of their own, so they are
		// generated for effect only, same as a `return <expr>`.
		g.genExp(ctx, n)
		return
	}
	switch n.Stmt {
	case ast.IfK:
		g.genIf(ctx, n)
	case ast.WhileK:
		g.genWhile(ctx, n)
	case ast.CompoundK:
		g.genBlock(ctx, n)
	case ast.ReturnK:
		g.genReturn(ctx, n)
	}
}

func (g *Generator) genIf(ctx *context, n *ast.Node) {
	g.genExp(ctx, n.Child(0))
	g.em.EmitComment("if: test")
	savedJEQ := g.em.Skip(1)
	g.genStmt(ctx, n.Child(1))
	savedJump := g.em.Skip(1)

	elseAddr := g.em.Addr()
	g.em.Backup(savedJEQ)
	g.em.EmitRMAbs("JEQ", tm.AC, elseAddr, "if: to else")
	g.em.Restore()

	if n.Child(2) != nil {
		g.genStmt(ctx, n.Child(2))
	}
	endAddr := g.em.Addr()
	g.em.Backup(savedJump)
	g.em.EmitRMAbs("LDA", tm.PC, endAddr, "if: jump to end")
	g.em.Restore()
}

func (g *Generator) genWhile(ctx *context, n *ast.Node) {
	top := g.em.Addr()
	g.genExp(ctx, n.Child(0))
	g.em.EmitComment("while: test")
	savedJEQ := g.em.Skip(1)
	g.genStmt(ctx, n.Child(1))
	g.em.EmitRMAbs("LDA", tm.PC, top, "while: jump to top")

	exitAddr := g.em.Addr()
	g.em.Backup(savedJEQ)
	g.em.EmitRMAbs("JEQ", tm.AC, exitAddr, "while: to exit")
	g.em.Restore()
}

func (g *Generator) genReturn(ctx *context, n *ast.Node) {
	if n.Child(0) != nil {
		g.genExp(ctx, n.Child(0))
	}
}

// ---------------------------------------------------------------------
// Expression generation
// ---------------------------------------------------------------------

// resolve implements spec.md §4.3's "Name resolution at code-gen":
// local-name stack, then parameter stack, then global.
type resolution struct {
	kind    int // 0 = local, 1 = param, 2 = global
	reg     string
	offset  int
	isArray bool
}

const (
	resLocal = iota
	resParam
	resGlobal
)

func (g *Generator) resolve(ctx *context, name string) resolution {
	for i := len(ctx.locals) - 1; i >= 0; i-- {
		if ctx.locals[i].name == name {
			return resolution{kind: resLocal, reg: tm.MP, offset: ctx.locals[i].offset, isArray: ctx.locals[i].isArray}
		}
	}
	for _, p := range ctx.params {
		if p.name == name {
			return resolution{kind: resParam, reg: tm.FP, offset: p.offset, isArray: p.isArray}
		}
	}
	loc := g.table.GetLocation(symtab.Root, name)
	isArray := g.table.CheckArray(symtab.Root, name)
	return resolution{kind: resGlobal, reg: tm.GP, offset: loc, isArray: isArray}
}

// loadBase loads an array's base address into ac. For a local or global
// array, the slot itself IS the contiguous storage, so the address is
// computed directly (LDA). For an array parameter, the slot instead
// holds the pointer value the caller already computed (arrays are
// passed by reference, per spec.md §9's array-parameter open question),
// so the base address must be loaded (LD), not recomputed.
func (r resolution) loadBase(g *Generator, comment string) {
	if r.kind == resParam && r.isArray {
		g.em.EmitRM("LD", tm.AC, r.offset, r.reg, comment)
		return
	}
	g.em.EmitRM("LDA", tm.AC, r.offset, r.reg, comment)
}

func (g *Generator) genExp(ctx *context, n *ast.Node) {
	if n == nil {
		return
	}
	switch n.Exp {
	case ast.ConstK:
		g.em.EmitRM("LDC", tm.AC, n.Val, "0", "load const")

	case ast.IdK:
		r := g.resolve(ctx, n.Name)
		if n.IsArray {
			// bare array name (e.g. passed as a call argument): load
			// its base address, not its contents.
			r.loadBase(g, fmt.Sprintf("load address of %s", n.Name))
			return
		}
		g.em.EmitRM("LD", tm.AC, r.offset, r.reg, fmt.Sprintf("load %s", n.Name))

	case ast.IdArrayK:
		g.genIdArray(ctx, n)

	case ast.OpK:
		g.genOp(ctx, n)

	case ast.CallK:
		g.genCall(ctx, n)

	case ast.AssignK:
		g.genAssign(ctx, n)
	}
}

// genIdArray implements spec.md §4.3's IdArray rule: compute base
// address into ac, spill it, evaluate the index into ac, reload the
// base into ac1, add, then load through the computed address.
func (g *Generator) genIdArray(ctx *context, n *ast.Node) {
	r := g.resolve(ctx, n.Name)
	r.loadBase(g, fmt.Sprintf("address of %s", n.Name))
	off := ctx.tmpOffset - 1
	ctx.tmpOffset--
	g.em.EmitRM("ST", tm.AC, off, tm.MP, "spill array base")
	g.genExp(ctx, n.Child(0))
	g.em.EmitRM("LD", tm.AC1, off, tm.MP, "reload array base")
	ctx.tmpOffset++
	g.em.EmitRO("ADD", tm.AC1, tm.AC1, tm.AC, "effective address")
	g.em.EmitRM("LD", tm.AC, 0, tm.AC1, fmt.Sprintf("load %s[idx]", n.Name))
}

func opName(op fmt.Stringer) string {
	switch op.String() {
	case "+":
		return "ADD"
	case "-":
		return "SUB"
	case "*":
		return "MUL"
	case "/":
		return "DIV"
	}
	return ""
}

// genOp implements spec.md §4.3's Op rule: evaluate left into ac, spill,
// evaluate right into ac, reload left into ac1; arithmetic ops map
// directly, relational ops subtract then jump-skip to materialize a
// 0/1 result.
func (g *Generator) genOp(ctx *context, n *ast.Node) {
	g.genExp(ctx, n.Child(0))
	off := ctx.tmpOffset - 1
	ctx.tmpOffset--
	g.em.EmitRM("ST", tm.AC, off, tm.MP, "spill left operand")
	g.genExp(ctx, n.Child(1))
	g.em.EmitRM("LD", tm.AC1, off, tm.MP, "reload left operand")
	ctx.tmpOffset++

	if n.Op.IsRelational() {
		g.genRelational(n)
		return
	}
	if mn := opName(n.Op); mn != "" {
		g.em.EmitRO(mn, tm.AC, tm.AC1, tm.AC, "op "+n.Op.String())
		return
	}
	g.em.EmitRO("ADD", tm.AC, tm.AC1, tm.AC, "op "+n.Op.String())
}

// genRelational materializes a 0/1 result in ac for the six relational
// operators: subtract (ac1 - ac), then a conditional jump-skip pattern
// that loads 1 or 0 depending on the sign of the difference.
func (g *Generator) genRelational(n *ast.Node) {
	g.em.EmitRO("SUB", tm.AC, tm.AC1, tm.AC, "relational: difference")
	var jumpOp string
	switch n.Op.String() {
	case "<":
		jumpOp = "JLT"
	case "<=":
		jumpOp = "JLE"
	case ">":
		jumpOp = "JGT"
	case ">=":
		jumpOp = "JGE"
	case "==":
		jumpOp = "JEQ"
	case "!=":
		jumpOp = "JNE"
	}
	trueJump := g.em.Skip(1)
	g.em.EmitRM("LDC", tm.AC, 0, "0", "relational: false")
	skipFalse := g.em.Skip(1)

	trueAddr := g.em.Addr()
	g.em.Backup(trueJump)
	g.em.EmitRMAbs(jumpOp, tm.AC, trueAddr, "relational: to true")
	g.em.Restore()

	g.em.EmitRM("LDC", tm.AC, 1, "0", "relational: true")

	endAddr := g.em.Addr()
	g.em.Backup(skipFalse)
	g.em.EmitRMAbs("LDA", tm.PC, endAddr, "relational: skip false branch")
	g.em.Restore()
}

// genCall implements spec.md §4.3's frame protocol at the call site.
// Arguments are evaluated in reverse order and spilled starting from the
// caller's current tmpOffset (so a call nested inside a larger
// expression never clobbers that expression's own spilled operands).
// mp is then advanced by exactly enough to make the n argument slots
// land at [fp+1..fp+n] in the callee (matching bindParams' offsets),
// with three more slots at [fp+0]/[fp-1]/[fp-2] for the caller's saved
// mp, the return address, and the caller's fp. Because [fp+0] holds the
// caller's mp from *before* any argument was pushed, genReturnSequence's
// own "restore mp from fp" already lands mp back at its pre-call value
// on the way out — the caller emits no matching pop here, since one
// would double-apply the adjustment. input and output are ordinary
// calls through this same path; their bodies are the two-instruction
// stubs genBuiltin emits.
func (g *Generator) genCall(ctx *context, n *ast.Node) {
	args := collectLocals(n.Child(0))
	nArgs := len(args)
	s := ctx.tmpOffset

	argCtx := ctx.clone()
	for i := nArgs - 1; i >= 0; i-- {
		g.genExp(&argCtx, args[i])
		off := argCtx.tmpOffset - 1
		argCtx.tmpOffset--
		g.em.EmitRM("ST", tm.AC, off, tm.MP, fmt.Sprintf("push argument %d", i+1))
	}

	// d is chosen so that argument i (0-based) — pushed at offset
	// s-(nArgs-i) relative to the caller's mp — lands at exactly
	// fp+(i+1) once mp becomes mp+d and fp is set to that new mp.
	d := s - nArgs - 1
	g.em.EmitRM("LDA", tm.AC, 0, tm.MP, "save caller mp")
	g.em.EmitRM("LDA", tm.MP, d, tm.MP, "advance mp for callee frame")
	g.em.EmitRM("ST", tm.AC, 0, tm.MP, "store saved mp in new frame")
	g.em.EmitRM("ST", tm.FP, -2, tm.MP, "save caller fp")
	g.em.EmitRM("LDA", tm.AC, 3, tm.PC, "compute return address")
	g.em.EmitRM("ST", tm.AC, -1, tm.MP, "save return address")
	g.em.EmitRM("LDA", tm.FP, 0, tm.MP, "set fp := mp")

	loc := g.table.GetLocation(symtab.Root, n.Name)
	g.em.EmitRM("LD", tm.PC, loc, tm.GP, fmt.Sprintf("call %s", n.Name))
}

// genAssign implements spec.md §4.3's Assign rule: generate the RHS
// into ac, then store it to the LHS location; for an array target,
// compute the effective address first.
func (g *Generator) genAssign(ctx *context, n *ast.Node) {
	if n.IsArray {
		r := g.resolve(ctx, n.Name)
		r.loadBase(g, fmt.Sprintf("address of %s", n.Name))
		off := ctx.tmpOffset - 1
		ctx.tmpOffset--
		g.em.EmitRM("ST", tm.AC, off, tm.MP, "spill array base")
		g.genExp(ctx, n.Child(0))
		g.em.EmitRM("LD", tm.AC1, off, tm.MP, "reload array base")
		ctx.tmpOffset++
		g.em.EmitRO("ADD", tm.AC1, tm.AC1, tm.AC, "effective address")
		addrOff := ctx.tmpOffset - 1
		ctx.tmpOffset--
		g.em.EmitRM("ST", tm.AC1, addrOff, tm.MP, "spill effective address")
		g.genExp(ctx, n.Child(1))
		g.em.EmitRM("LD", tm.AC1, addrOff, tm.MP, "reload effective address")
		ctx.tmpOffset++
		g.em.EmitRM("ST", tm.AC, 0, tm.AC1, fmt.Sprintf("store %s[idx]", n.Name))
		return
	}

	g.genExp(ctx, n.Child(1))
	r := g.resolve(ctx, n.Name)
	g.em.EmitRM("ST", tm.AC, r.offset, r.reg, fmt.Sprintf("store %s", n.Name))
}
