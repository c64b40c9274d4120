// Package symtab implements the hierarchical, lexically-scoped symbol
// table described in spec.md §3/§4.1: a scope-name-keyed hash store with
// parent scopes derived by string surgery on the scope path rather than
// stored back-pointers (DESIGN NOTES §9 — "an arena of scope records with
// integer or indirect handles; parent resolution by path surgery keeps
// the structure a tree, not a graph").
package symtab

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tinyc-lang/tinyc/ast"
)

// Size is the bucket-array size used both for the global scope index and
// for each scope's own symbol bucket array: a prime near 211, per
// spec.md §3.
const Size = 211

// Root is the name of the outermost scope.
const Root = "~"

// Entry is one declared name within one scope (spec.md's "Bucket entry").
type Entry struct {
	Name    string
	Type    ast.Type
	Loc     int
	IsArray bool
	Lines   []int

	next *Entry // collision chain within a scope's bucket array
}

// scope is one lexical scope record (spec.md's "Scope record").
type scope struct {
	name    string
	buckets [Size]*Entry
	order   []*Entry // declaration order, for deterministic dumps

	next *scope // collision chain within the global index
}

// Table is the global symbol table: a hash index from scope name to
// scope record, per spec.md §3 "Global index".
type Table struct {
	index [Size]*scope
	order []*scope // scope-creation order, for deterministic dumps
}

// New returns an empty Table.
func New() *Table {
	return &Table{}
}

// hash is the shift-add accumulator modulo Size called out in spec.md
// §4.1's "Algorithmic notes".
func hash(s string) int {
	h := 0
	for _, r := range s {
		h = (h << 6) + int(r)
	}
	if h < 0 {
		h = -h
	}
	return h % Size
}

func (t *Table) findScope(name string) *scope {
	for s := t.index[hash(name)]; s != nil; s = s.next {
		if s.name == name {
			return s
		}
	}
	return nil
}

// ensureScope returns the scope record for name, creating it (and
// recording it in creation order) on first use — scope records are
// created lazily on first insertion, per spec.md §3 "Lifecycle".
func (t *Table) ensureScope(name string) *scope {
	if s := t.findScope(name); s != nil {
		return s
	}
	s := &scope{name: name}
	h := hash(name)
	s.next = t.index[h]
	t.index[h] = s
	t.order = append(t.order, s)
	return s
}

// ParentScope derives a scope's parent by stripping the last
// ':'-delimited component of its path, per spec.md §3: "a scope's
// parent is the scope record obtained by stripping the last
// ':'-suffix ... the root's parent is null." It returns ("", false) for
// the root scope.
func ParentScope(name string) (string, bool) {
	if name == Root {
		return "", false
	}
	idx := strings.LastIndex(name, ":")
	if idx < 0 {
		// Malformed scope path (should never happen for paths built by
		// the analyzer, which always prefixes with Root).
		return Root, name != Root
	}
	return name[:idx], true
}

func (s *scope) localEntry(name string) *Entry {
	for e := s.buckets[hash(name)]; e != nil; e = e.next {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// Insert records name's declaration in scope, per spec.md §4.1: the
// scope record is created if necessary; if name is new in that scope, a
// bucket is created with the given type and location, seeded with
// lineno; otherwise lineno is appended to name's existing line list.
// The analyzer records use-sites of Id/Call references through AddLine,
// not Insert.
func (t *Table) Insert(scopeName, name string, typ ast.Type, lineno, loc int, isArray bool) {
	s := t.ensureScope(scopeName)
	if e := s.localEntry(name); e != nil {
		e.Lines = append(e.Lines, lineno)
		return
	}
	e := &Entry{Name: name, Type: typ, Loc: loc, IsArray: isArray, Lines: []int{lineno}}
	h := hash(name)
	e.next = s.buckets[h]
	s.buckets[h] = e
	s.order = append(s.order, e)
}

// LookupLocal searches only scopeName's own bucket, for redeclaration
// checks (spec.md §4.1).
func (t *Table) LookupLocal(scopeName, name string) *Entry {
	s := t.findScope(scopeName)
	if s == nil {
		return nil
	}
	return s.localEntry(name)
}

// Lookup resolves name starting at scopeName and walking out through
// enclosing scopes (spec.md §4.1). Because scope records are created
// lazily, a scope path with no declarations of its own (e.g. an empty
// compound) has no record at all; ParentScope's pure string surgery lets
// Lookup walk straight through such gaps to the "longest declared
// ancestor prefix", exactly as spec.md specifies.
func (t *Table) Lookup(scopeName, name string) *Entry {
	cur := scopeName
	for {
		if s := t.findScope(cur); s != nil {
			if e := s.localEntry(name); e != nil {
				return e
			}
		}
		parent, ok := ParentScope(cur)
		if !ok {
			return nil
		}
		cur = parent
	}
}

// AddLine appends lineno to the line list of whichever enclosing scope
// defines name, per spec.md §4.1. This is the same walk Lookup performs;
// it is kept as a distinct entry point because the analyzer calls it
// specifically to record a use-site once a reference has already been
// resolved, separate from the resolution itself.
func (t *Table) AddLine(scopeName, name string, lineno int) {
	if e := t.Lookup(scopeName, name); e != nil {
		e.Lines = append(e.Lines, lineno)
	}
}

// GetLocation is shorthand for Lookup(scope, name).Loc.
func (t *Table) GetLocation(scopeName, name string) int {
	if e := t.Lookup(scopeName, name); e != nil {
		return e.Loc
	}
	return -1
}

// CheckArray reports whether name, resolved from scopeName, was declared
// as an array.
func (t *Table) CheckArray(scopeName, name string) bool {
	if e := t.Lookup(scopeName, name); e != nil {
		return e.IsArray
	}
	return false
}

// sortedScopes returns every scope record in a stable, deterministic
// order (lexicographic by scope name). The global index is a hash table
// with chained buckets, so creation order and bucket order are both
// insertion-hash-dependent; sorting here is what makes PrintAll
// idempotent across runs, satisfying spec.md §8's "two consecutive
// prints produce identical output".
func (t *Table) sortedScopes() []*scope {
	scopes := make([]*scope, len(t.order))
	copy(scopes, t.order)
	sort.Slice(scopes, func(i, j int) bool { return scopes[i].name < scopes[j].name })
	return scopes
}

// PrintAll writes a diagnostic dump of every scope and its buckets to w,
// per spec.md §4.1. Declaration order is used within a scope (not hash
// order), since that is what a reader debugging redeclaration or
// location-assignment issues wants to see.
func (t *Table) PrintAll(w interface{ Write([]byte) (int, error) }) {
	for _, s := range t.sortedScopes() {
		fmt.Fprintf(w, "scope %s\n", s.name)
		for _, e := range s.order {
			kind := "var"
			if e.IsArray {
				kind = "array"
			}
			fmt.Fprintf(w, "  %-12s %-6s %-5s loc=%-3d lines=%v\n",
				e.Name, e.Type, kind, e.Loc, e.Lines)
		}
	}
}

// Dump is a serialization-friendly snapshot of the table, used for the
// --trace-format=yaml CLI option (SPEC_FULL.md §4.6) and for structural
// test comparisons.
type Dump struct {
	Scopes []ScopeDump
}

// ScopeDump is one scope's worth of Dump.
type ScopeDump struct {
	Name    string
	Entries []EntryDump
}

// EntryDump is one entry's worth of Dump.
type EntryDump struct {
	Name    string
	Type    string
	Loc     int
	IsArray bool
	Lines   []int
}

// ToDump renders the table into the structured form Dump, in the same
// deterministic scope/declaration order PrintAll uses.
func (t *Table) ToDump() Dump {
	var d Dump
	for _, s := range t.sortedScopes() {
		sd := ScopeDump{Name: s.name}
		for _, e := range s.order {
			sd.Entries = append(sd.Entries, EntryDump{
				Name:    e.Name,
				Type:    e.Type.String(),
				Loc:     e.Loc,
				IsArray: e.IsArray,
				Lines:   e.Lines,
			})
		}
		d.Scopes = append(d.Scopes, sd)
	}
	return d
}
