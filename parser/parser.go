// Package parser implements a recursive-descent parser for tinyc source
// text, producing the ast.Node tree described in spec.md §3 directly
// (there is no separate concrete syntax tree). The grammar is the classic
// small C-like grammar the spec's "TM machine" target is drawn from:
// a sequence of variable and function declarations at the top level,
// C-style statements and expressions inside function bodies.
package parser

import (
	"github.com/tinyc-lang/tinyc/ast"
	"github.com/tinyc-lang/tinyc/errors"
	"github.com/tinyc-lang/tinyc/scanner"
	"github.com/tinyc-lang/tinyc/token"
)

// Parser consumes a token stream from a scanner.Scanner and builds an
// ast.Node tree. It never aborts on a syntax error: it reports the
// problem through errs and tries to resynchronize at the next
// declaration boundary, per spec.md §7's "report and continue" policy.
type Parser struct {
	sc   scanner.Scanner
	errs *errors.List

	pos token.Pos
	tok token.Token
	lit string

	Error bool
}

// Parse lexes and parses the named source file's contents, returning the
// root of the top-level sibling chain of declarations and the
// accumulated diagnostics (which may be non-empty even when a partial
// AST is returned).
func Parse(filename string, src []byte) (*ast.Node, errors.List) {
	var errs errors.List
	p := &Parser{errs: &errs}
	p.sc.Init(filename, src, func(pos token.Pos, msg string) {
		p.Error = true
		errs.AddNewf(pos, "%s", msg)
	})
	p.next()
	root := p.declarationList()
	return root, errs
}

func (p *Parser) next() {
	p.pos, p.tok, p.lit = p.sc.Scan()
}

func (p *Parser) errorf(format string, args ...interface{}) {
	p.Error = true
	p.errs.AddNewf(p.pos, format, args...)
}

// expect consumes the current token if it matches tok, reporting a
// syntax error and continuing otherwise (the token is not consumed on
// mismatch, giving the caller a chance to resynchronize).
func (p *Parser) expect(tok token.Token) token.Pos {
	pos := p.pos
	if p.tok != tok {
		p.errorf("expected %s, found %s", tok, p.tok)
		return pos
	}
	p.next()
	return pos
}

// syncToDecl skips tokens until the start of a plausible declaration or
// EOF, so that one malformed declaration does not cascade into spurious
// errors for the rest of the file.
func (p *Parser) syncToDecl() {
	for p.tok != token.EOF && p.tok != token.INT && p.tok != token.VOID {
		p.next()
	}
}

func (p *Parser) declarationList() *ast.Node {
	var head, tail *ast.Node
	for p.tok == token.INT || p.tok == token.VOID {
		d := p.declaration()
		if d == nil {
			continue
		}
		if head == nil {
			head = d
		} else {
			tail.Sibling = d
		}
		tail = d
	}
	if p.tok != token.EOF {
		p.errorf("unexpected token %s at top level", p.tok)
	}
	return head
}

// declaration parses a var_declaration or fun_declaration: both start
// with a type specifier and an identifier; the token after the
// identifier (';', '[', or '(') disambiguates.
func (p *Parser) declaration() *ast.Node {
	typ := p.typeSpecifier()
	lineno := p.pos.Line
	if p.tok != token.IDENT {
		p.errorf("expected identifier, found %s", p.tok)
		p.syncToDecl()
		return nil
	}
	name := p.lit
	p.next()

	switch p.tok {
	case token.LPAREN:
		return p.funDeclaration(typ, name, lineno)
	case token.LBRACK:
		return p.arrayVarDeclaration(typ, name, lineno)
	default:
		p.expect(token.SEMI)
		if typ == ast.Void {
			p.errorf("variable %q declared void", name)
		}
		n := ast.NewExp(ast.VarK, lineno)
		n.Name = name
		n.Type = typ
		return n
	}
}

func (p *Parser) typeSpecifier() ast.Type {
	switch p.tok {
	case token.INT:
		p.next()
		return ast.Integer
	case token.VOID:
		p.next()
		return ast.Void
	default:
		p.errorf("expected type specifier, found %s", p.tok)
		return ast.Void
	}
}

func (p *Parser) arrayVarDeclaration(typ ast.Type, name string, lineno int) *ast.Node {
	p.expect(token.LBRACK)
	size := 0
	if p.tok == token.NUMBER {
		size = parseInt(p.lit)
		p.next()
	} else {
		p.errorf("expected array size, found %s", p.tok)
	}
	p.expect(token.RBRACK)
	p.expect(token.SEMI)

	n := ast.NewExp(ast.VarArrayK, lineno)
	n.Name = name
	n.Type = typ
	sizeNode := ast.NewExp(ast.ConstK, lineno)
	sizeNode.Val = size
	sizeNode.Type = ast.Integer
	n.SetChild(0, sizeNode)
	return n
}

func (p *Parser) funDeclaration(typ ast.Type, name string, lineno int) *ast.Node {
	p.expect(token.LPAREN)
	params := p.params()
	p.expect(token.RPAREN)
	body := p.compoundStmt()

	n := ast.NewStmt(ast.FunctionK, lineno)
	n.Name = name
	n.Type = typ
	n.SetChild(0, params)
	n.SetChild(1, body)
	return n
}

func (p *Parser) params() *ast.Node {
	if p.tok == token.VOID {
		// Could be "void)" (no params) or "void x)" (a void-typed,
		// necessarily erroneous, parameter) — peek the identifier case.
		save := p.saveState()
		p.next()
		if p.tok == token.RPAREN {
			return nil
		}
		p.restoreState(save)
	}

	var head, tail *ast.Node
	for {
		param := p.param()
		if head == nil {
			head = param
		} else {
			tail.Sibling = param
		}
		tail = param
		if p.tok != token.COMMA {
			break
		}
		p.next()
	}
	return head
}

type parserState struct {
	pos token.Pos
	tok token.Token
	lit string
}

func (p *Parser) saveState() parserState {
	return parserState{pos: p.pos, tok: p.tok, lit: p.lit}
}

func (p *Parser) restoreState(s parserState) {
	p.pos, p.tok, p.lit = s.pos, s.tok, s.lit
}

func (p *Parser) param() *ast.Node {
	typ := p.typeSpecifier()
	lineno := p.pos.Line
	name := ""
	if p.tok == token.IDENT {
		name = p.lit
		p.next()
	} else {
		p.errorf("expected parameter name, found %s", p.tok)
	}

	if p.tok == token.LBRACK {
		p.next()
		p.expect(token.RBRACK)
		n := ast.NewExp(ast.ArrayParamK, lineno)
		n.Name = name
		n.Type = typ
		return n
	}
	n := ast.NewExp(ast.SingleParamK, lineno)
	n.Name = name
	n.Type = typ
	return n
}

func (p *Parser) compoundStmt() *ast.Node {
	lineno := p.pos.Line
	p.expect(token.LBRACE)

	var localHead, localTail *ast.Node
	for p.tok == token.INT || p.tok == token.VOID {
		save := p.saveState()
		typ := p.typeSpecifier()
		if p.tok != token.IDENT {
			p.restoreState(save)
			break
		}
		declLine := p.pos.Line
		name := p.lit
		p.next()
		var d *ast.Node
		if p.tok == token.LBRACK {
			d = p.arrayVarDeclaration(typ, name, declLine)
		} else {
			p.expect(token.SEMI)
			d = ast.NewExp(ast.VarK, declLine)
			d.Name = name
			d.Type = typ
		}
		if localHead == nil {
			localHead = d
		} else {
			localTail.Sibling = d
		}
		localTail = d
	}

	var stmtHead, stmtTail *ast.Node
	for p.tok != token.RBRACE && p.tok != token.EOF {
		s := p.statement()
		if s == nil {
			continue
		}
		if stmtHead == nil {
			stmtHead = s
		} else {
			stmtTail.Sibling = s
		}
		stmtTail = s
	}
	p.expect(token.RBRACE)

	n := ast.NewStmt(ast.CompoundK, lineno)
	n.SetChild(0, localHead)
	n.SetChild(1, stmtHead)
	return n
}

func (p *Parser) statement() *ast.Node {
	switch p.tok {
	case token.LBRACE:
		return p.compoundStmt()
	case token.IF:
		return p.selectionStmt()
	case token.WHILE:
		return p.iterationStmt()
	case token.RETURN:
		return p.returnStmt()
	case token.SEMI:
		p.next()
		return nil
	default:
		return p.expressionStmt()
	}
}

func (p *Parser) expressionStmt() *ast.Node {
	e := p.expression()
	p.expect(token.SEMI)
	return e
}

func (p *Parser) selectionStmt() *ast.Node {
	lineno := p.pos.Line
	p.next() // if
	p.expect(token.LPAREN)
	cond := p.expression()
	p.expect(token.RPAREN)
	then := p.statement()

	n := ast.NewStmt(ast.IfK, lineno)
	n.SetChild(0, cond)
	n.SetChild(1, then)
	if p.tok == token.ELSE {
		p.next()
		n.SetChild(2, p.statement())
	}
	return n
}

func (p *Parser) iterationStmt() *ast.Node {
	lineno := p.pos.Line
	p.next() // while
	p.expect(token.LPAREN)
	cond := p.expression()
	p.expect(token.RPAREN)
	body := p.statement()

	n := ast.NewStmt(ast.WhileK, lineno)
	n.SetChild(0, cond)
	n.SetChild(1, body)
	return n
}

func (p *Parser) returnStmt() *ast.Node {
	lineno := p.pos.Line
	p.next() // return
	n := ast.NewStmt(ast.ReturnK, lineno)
	if p.tok != token.SEMI {
		n.SetChild(0, p.expression())
	}
	p.expect(token.SEMI)
	return n
}

// expression handles both plain expressions and assignment: the
// grammar is ambiguous between "var" and "simple_expression" until we
// see whether an '=' follows, so we parse a simple_expression first and
// reinterpret its head as an lvalue if '=' follows.
func (p *Parser) expression() *ast.Node {
	e := p.simpleExpression()
	if p.tok == token.ASSIGN {
		lineno := p.pos.Line
		lhs, ok := asLValue(e)
		if !ok {
			p.errorf("invalid assignment target")
		}
		p.next()
		rhs := p.expression()

		n := ast.NewExp(ast.AssignK, lineno)
		if lhs != nil {
			n.Name = lhs.Name
			n.IsArray = lhs.Exp == ast.IdArrayK
			if n.IsArray {
				n.SetChild(0, lhs.Child(0))
			}
		}
		n.SetChild(1, rhs)
		return n
	}
	return e
}

// asLValue reports whether e is a bare identifier or array-index
// reference, as required on the left of '='.
func asLValue(e *ast.Node) (*ast.Node, bool) {
	if e == nil || e.Kind != ast.ExpK {
		return nil, false
	}
	switch e.Exp {
	case ast.IdK, ast.IdArrayK:
		return e, true
	}
	return nil, false
}

func (p *Parser) simpleExpression() *ast.Node {
	left := p.additiveExpression()
	if p.tok.IsRelational() {
		lineno := p.pos.Line
		op := p.tok
		p.next()
		right := p.additiveExpression()
		n := ast.NewExp(ast.OpK, lineno)
		n.Op = op
		n.Type = ast.Integer
		n.SetChild(0, left)
		n.SetChild(1, right)
		return n
	}
	return left
}

func (p *Parser) additiveExpression() *ast.Node {
	left := p.term()
	for p.tok == token.ADD || p.tok == token.SUB {
		lineno := p.pos.Line
		op := p.tok
		p.next()
		right := p.term()
		n := ast.NewExp(ast.OpK, lineno)
		n.Op = op
		n.Type = ast.Integer
		n.SetChild(0, left)
		n.SetChild(1, right)
		left = n
	}
	return left
}

func (p *Parser) term() *ast.Node {
	left := p.factor()
	for p.tok == token.MUL || p.tok == token.QUO {
		lineno := p.pos.Line
		op := p.tok
		p.next()
		right := p.factor()
		n := ast.NewExp(ast.OpK, lineno)
		n.Op = op
		n.Type = ast.Integer
		n.SetChild(0, left)
		n.SetChild(1, right)
		left = n
	}
	return left
}

func (p *Parser) factor() *ast.Node {
	switch p.tok {
	case token.LPAREN:
		p.next()
		e := p.expression()
		p.expect(token.RPAREN)
		return e
	case token.NUMBER:
		lineno := p.pos.Line
		n := ast.NewExp(ast.ConstK, lineno)
		n.Val = parseInt(p.lit)
		n.Type = ast.Integer
		p.next()
		return n
	case token.IDENT:
		return p.identOrCall()
	default:
		p.errorf("unexpected token %s in expression", p.tok)
		n := ast.NewExp(ast.ConstK, p.pos.Line)
		n.Type = ast.Integer
		p.next()
		return n
	}
}

func (p *Parser) identOrCall() *ast.Node {
	lineno := p.pos.Line
	name := p.lit
	p.next()

	if p.tok == token.LPAREN {
		p.next()
		args := p.args()
		p.expect(token.RPAREN)
		n := ast.NewExp(ast.CallK, lineno)
		n.Name = name
		n.SetChild(0, args)
		return n
	}

	if p.tok == token.LBRACK {
		p.next()
		idx := p.expression()
		p.expect(token.RBRACK)
		n := ast.NewExp(ast.IdArrayK, lineno)
		n.Name = name
		n.SetChild(0, idx)
		return n
	}

	n := ast.NewExp(ast.IdK, lineno)
	n.Name = name
	return n
}

func (p *Parser) args() *ast.Node {
	if p.tok == token.RPAREN {
		return nil
	}
	var head, tail *ast.Node
	for {
		a := p.expression()
		if head == nil {
			head = a
		} else {
			tail.Sibling = a
		}
		tail = a
		if p.tok != token.COMMA {
			break
		}
		p.next()
	}
	return head
}

func parseInt(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
