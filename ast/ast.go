// Package ast declares the single node type used to represent the abstract
// syntax tree of a tinyc source file. Unlike a typical Go AST (one Go type
// per grammar production), the source language's AST is a single tagged
// variant, per spec.md §3: every node carries a NodeKind (statement or
// expression) refined by a kind-specific tag, up to MaxChildren ordered
// children, a sibling link, a declared Type, a source line, and a
// kind-specific attribute.
package ast

import "github.com/tinyc-lang/tinyc/token"

// MaxChildren bounds the number of ordered children any node may have.
// Three suffices for the richest production (the If statement: test,
// then-branch, else-branch).
const MaxChildren = 3

// NodeKind distinguishes the two node families.
type NodeKind int

const (
	StmtK NodeKind = iota
	ExpK
)

func (k NodeKind) String() string {
	if k == StmtK {
		return "StmtK"
	}
	return "ExpK"
}

// StmtKind refines a StmtK node.
type StmtKind int

const (
	IfK StmtKind = iota
	WhileK
	CompoundK
	ReturnK
	FunctionK
)

var stmtNames = [...]string{"If", "While", "Compound", "Return", "Function"}

func (k StmtKind) String() string { return stmtNames[k] }

// ExpKind refines an ExpK node.
type ExpKind int

const (
	OpK ExpKind = iota
	ConstK
	IdK
	IdArrayK
	CallK
	AssignK
	VarK
	VarArrayK
	SingleParamK
	ArrayParamK
)

var expNames = [...]string{
	"Op", "Const", "Id", "IdArray", "Call", "Assign",
	"Var", "VarArray", "SingleParam", "ArrayParam",
}

func (k ExpKind) String() string { return expNames[k] }

// Type is the source language's (tiny) type system: Integer or Void.
type Type int

const (
	Void Type = iota
	Integer
)

func (t Type) String() string {
	if t == Integer {
		return "Integer"
	}
	return "Void"
}

// Node is the single AST node variant described in spec.md §3.
//
// Exactly one of StmtKind/ExpKind is meaningful, selected by Kind. Attr
// fields are likewise kind-specific: Name is set for Id/IdArray/Call/
// Var/VarArray/SingleParam/ArrayParam/Function nodes; Val is set for
// Const nodes; Op is set for Op nodes (a token.Token drawn from the
// relational/arithmetic operator set).
//
// Children holds up to MaxChildren ordered subtrees; Sibling chains peer
// nodes — statement sequences inside a Compound, parameter lists,
// argument lists, and the top-level sequence of declarations are all
// sibling chains rather than list-valued fields, matching the classic
// shape spec.md describes.
type Node struct {
	Kind     NodeKind
	Stmt     StmtKind
	Exp      ExpKind
	Children [MaxChildren]*Node
	Sibling  *Node

	Type   Type
	Lineno int

	Name string
	Val  int
	Op   token.Token

	// IsArray is not set on declarations: an array declaration carries
	// its own kind, VarArrayK or ArrayParamK. Analysis sets it on a bare
	// Id reference node whose declaration is array-typed, without
	// rewriting Exp to IdArrayK (spec.md §9 "kind-promotion" design
	// note); a true subscripted reference is already tagged IdArrayK by
	// the parser and carries its index expression in Children[0]. On an
	// Assign node it marks an array-element target, whose index
	// expression is Children[0].
	IsArray bool
}

// Pos returns the node's source line as a token.Pos. The source language
// never needs column information (see GLOSSARY), so Pos carries only a
// line number.
func (n *Node) Pos() token.Pos { return token.Pos{Line: n.Lineno} }

// NewStmt creates a statement node of the given kind at the given line.
func NewStmt(kind StmtKind, lineno int) *Node {
	return &Node{Kind: StmtK, Stmt: kind, Lineno: lineno, Type: Void}
}

// NewExp creates an expression node of the given kind at the given line.
func NewExp(kind ExpKind, lineno int) *Node {
	return &Node{Kind: ExpK, Exp: kind, Lineno: lineno, Type: Void}
}

// SetChild installs child as n's i'th child, provided i is in range.
func (n *Node) SetChild(i int, child *Node) {
	if n != nil && 0 <= i && i < MaxChildren {
		n.Children[i] = child
	}
}

// Child returns n's i'th child, or nil if i is out of range or unset.
func (n *Node) Child(i int) *Node {
	if n == nil || i < 0 || i >= MaxChildren {
		return nil
	}
	return n.Children[i]
}

// LastSibling returns the last node in n's sibling chain (n itself if it
// has no siblings).
func (n *Node) LastSibling() *Node {
	if n == nil {
		return nil
	}
	cur := n
	for cur.Sibling != nil {
		cur = cur.Sibling
	}
	return cur
}

// AppendSibling attaches next at the end of n's sibling chain and
// returns n (the head of the chain), mirroring how the parser threads
// together statement sequences and declaration lists one production at
// a time.
func (n *Node) AppendSibling(next *Node) *Node {
	if n == nil {
		return next
	}
	n.LastSibling().Sibling = next
	return n
}

// Each calls f for n and every node in its sibling chain, in order.
func (n *Node) Each(f func(*Node)) {
	for cur := n; cur != nil; cur = cur.Sibling {
		f(cur)
	}
}
