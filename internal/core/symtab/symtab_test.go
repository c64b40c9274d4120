package symtab

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/kr/pretty"

	"github.com/tinyc-lang/tinyc/ast"
)

func TestInsertAndLookupLocal(t *testing.T) {
	tab := New()
	tab.Insert(Root, "x", ast.Integer, 1, 0, false)

	e := tab.LookupLocal(Root, "x")
	if e == nil {
		t.Fatalf("LookupLocal(Root, x) = nil, want an entry\n%# v", pretty.Formatter(tab.ToDump()))
	}
	if e.Type != ast.Integer || e.Loc != 0 || e.IsArray {
		t.Errorf("got %+v, want Type=Integer Loc=0 IsArray=false", e)
	}
}

func TestInsertDuplicateAppendsLine(t *testing.T) {
	tab := New()
	tab.Insert(Root, "x", ast.Integer, 1, 0, false)
	tab.Insert(Root, "x", ast.Integer, 5, 99, false)

	e := tab.LookupLocal(Root, "x")
	if diff := cmp.Diff([]int{1, 5}, e.Lines); diff != "" {
		t.Errorf("Lines mismatch (-want +got):\n%s", diff)
	}
	if e.Loc != 0 {
		t.Errorf("got Loc=%d, want the original declaration's Loc=0 preserved", e.Loc)
	}
}

func TestLookupWalksEnclosingScopes(t *testing.T) {
	tab := New()
	tab.Insert(Root, "g", ast.Integer, 1, 0, false)
	tab.Insert(Root+":main", "local", ast.Integer, 2, 0, false)

	if tab.LookupLocal(Root+":main", "g") != nil {
		t.Errorf("LookupLocal should not find g in main's own scope")
	}
	if e := tab.Lookup(Root+":main", "g"); e == nil {
		t.Errorf("Lookup(main, g) = nil, want to find g via the root scope")
	}
	if e := tab.Lookup(Root+":main", "nope"); e != nil {
		t.Errorf("Lookup(main, nope) = %+v, want nil", e)
	}
}

func TestLookupSkipsGapsInScopeChain(t *testing.T) {
	// "~:main:3" has no record of its own (no declarations in that
	// nested compound), so Lookup must walk straight past it to "~:main".
	tab := New()
	tab.Insert(Root+":main", "x", ast.Integer, 1, 0, false)

	if e := tab.Lookup(Root+":main:3", "x"); e == nil {
		t.Errorf("Lookup should walk through an undeclared intermediate scope to find x")
	}
}

func TestParentScope(t *testing.T) {
	cases := []struct {
		name   string
		parent string
		ok     bool
	}{
		{Root, "", false},
		{Root + ":main", Root, true},
		{Root + ":main:3", Root + ":main", true},
	}
	for _, c := range cases {
		parent, ok := ParentScope(c.name)
		if parent != c.parent || ok != c.ok {
			t.Errorf("ParentScope(%q) = (%q, %v), want (%q, %v)", c.name, parent, ok, c.parent, c.ok)
		}
	}
}

func TestAddLineAndGetLocation(t *testing.T) {
	tab := New()
	tab.Insert(Root, "x", ast.Integer, 1, 7, false)
	tab.AddLine(Root, "x", 42)

	e := tab.LookupLocal(Root, "x")
	if diff := cmp.Diff([]int{1, 42}, e.Lines); diff != "" {
		t.Errorf("Lines mismatch (-want +got):\n%s", diff)
	}
	if loc := tab.GetLocation(Root, "x"); loc != 7 {
		t.Errorf("GetLocation = %d, want 7", loc)
	}
	if loc := tab.GetLocation(Root, "missing"); loc != -1 {
		t.Errorf("GetLocation(missing) = %d, want -1", loc)
	}
}

func TestCheckArray(t *testing.T) {
	tab := New()
	tab.Insert(Root, "nums", ast.Integer, 1, 0, true)
	tab.Insert(Root, "x", ast.Integer, 1, 1, false)

	if !tab.CheckArray(Root, "nums") {
		t.Errorf("CheckArray(nums) = false, want true")
	}
	if tab.CheckArray(Root, "x") {
		t.Errorf("CheckArray(x) = true, want false")
	}
}

func TestToDumpIsDeterministicAcrossRuns(t *testing.T) {
	build := func() Dump {
		tab := New()
		tab.Insert(Root, "b", ast.Integer, 1, 0, false)
		tab.Insert(Root, "a", ast.Void, 2, 1, false)
		tab.Insert(Root+":a", "local", ast.Integer, 3, 0, false)
		return tab.ToDump()
	}
	first := build()
	second := build()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("ToDump is not deterministic across identical builds (-first +second):\n%s", diff)
	}
	if first.Scopes[0].Name != Root || first.Scopes[1].Name != Root+":a" {
		t.Errorf("got scopes %# v, want sorted by name", pretty.Formatter(first.Scopes))
	}
}
