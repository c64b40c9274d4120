package check

import (
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/tinyc-lang/tinyc/errors"
	"github.com/tinyc-lang/tinyc/parser"
)

func analyze(t *testing.T, src string) (*Analyzer, errors.List) {
	t.Helper()
	root, parseErrs := parser.Parse("test.c", []byte(src))
	qt.Assert(t, qt.HasLen(parseErrs, 0), qt.Commentf("parse errors: %s", errors.Details(parseErrs)))

	a := NewAnalyzer()
	_, errs := a.Analyze(root)
	return a, errs
}

func TestAnalyzeValidProgram(t *testing.T) {
	a, errs := analyze(t, `
		int x;
		void main(void) {
			x = 1;
		}
	`)
	qt.Assert(t, qt.HasLen(errs, 0), qt.Commentf("unexpected errors: %s", errors.Details(errs)))
	qt.Assert(t, qt.IsFalse(a.Error))
}

func TestAnalyzeMissingMainIsFatal(t *testing.T) {
	_, errs := analyze(t, `int x;`)
	qt.Assert(t, qt.Not(qt.HasLen(errs, 0)))
	found := false
	for _, e := range errs {
		if e.Error() == "There is no main function" {
			found = true
		}
	}
	qt.Assert(t, qt.IsTrue(found), qt.Commentf("errors: %s", errors.Details(errs)))
}

func TestAnalyzeRedeclarationInSameScope(t *testing.T) {
	_, errs := analyze(t, `
		int x;
		int x;
		void main(void) { }
	`)
	found := false
	for _, e := range errs {
		if e.Error() == "error:3: x is already declared" {
			found = true
		}
	}
	qt.Assert(t, qt.IsTrue(found), qt.Commentf("errors: %s", errors.Details(errs)))
}

func TestAnalyzeUndeclaredIdentifier(t *testing.T) {
	_, errs := analyze(t, `
		void main(void) {
			x = 1;
		}
	`)
	found := false
	for _, e := range errs {
		if e.Error() == "error:3: x is not declared" {
			found = true
		}
	}
	qt.Assert(t, qt.IsTrue(found), qt.Commentf("errors: %s", errors.Details(errs)))
}

func TestAnalyzeVoidFunctionReturningValueIsTypeError(t *testing.T) {
	_, errs := analyze(t, `
		void f(void) {
			return 1;
		}
		void main(void) { }
	`)
	found := false
	for _, e := range errs {
		if e.Error() == "Type error at line 3: Void function can not return a value" {
			found = true
		}
	}
	qt.Assert(t, qt.IsTrue(found), qt.Commentf("errors: %s", errors.Details(errs)))
}

func TestAnalyzeAssignVoidRvalueIsTypeError(t *testing.T) {
	_, errs := analyze(t, `
		void f(void) { }
		void main(void) {
			int x;
			x = f();
		}
	`)
	found := false
	for _, e := range errs {
		if e.Error() == "Type error at line 5: rvalue must be integer type" {
			found = true
		}
	}
	qt.Assert(t, qt.IsTrue(found), qt.Commentf("errors: %s", errors.Details(errs)))
}

func TestAnalyzeAssignRvalueCheckIsNarrow(t *testing.T) {
	// A nested void-typed subexpression inside arithmetic is NOT caught,
	// per spec.md §9's Open Question: rvalueIsInteger only consults the
	// referent's declared type for a bare Id/IdArray/Call RHS.
	a, _ := analyze(t, `
		void f(void) { }
		void main(void) {
			int x;
			x = 1 + f();
		}
	`)
	qt.Assert(t, qt.IsFalse(a.Error))
}

func TestAnalyzeBuiltinsAreDeclared(t *testing.T) {
	a, errs := analyze(t, `
		void main(void) {
			output(input());
		}
	`)
	qt.Assert(t, qt.HasLen(errs, 0), qt.Commentf("errors: %s", errors.Details(errs)))
	qt.Assert(t, qt.IsFalse(a.Error))
}

func TestAnalyzeGlobalSizeCountsGlobalsAndFunctions(t *testing.T) {
	a, _ := analyze(t, `
		int x;
		int nums[10];
		void main(void) { }
	`)
	// 2 (input, output) + x (1) + nums (10) + main (1) = 14
	qt.Assert(t, qt.Equals(a.GlobalSize, 14))
}

func TestAnalyzeArrayParameterIsArray(t *testing.T) {
	a, errs := analyze(t, `
		void sum(int a[]) {
			a[0] = 1;
		}
		void main(void) { }
	`)
	qt.Assert(t, qt.HasLen(errs, 0), qt.Commentf("errors: %s", errors.Details(errs)))
	e := a.Table.LookupLocal("~:sum", "a")
	qt.Assert(t, qt.IsNotNil(e))
	qt.Assert(t, qt.IsTrue(e.IsArray))
}

func TestAnalyzeLookupResolvesThroughNestedScopes(t *testing.T) {
	_, errs := analyze(t, `
		void main(void) {
			int x;
			if (1) {
				x = 2;
			}
		}
	`)
	qt.Assert(t, qt.HasLen(errs, 0), qt.Commentf("errors: %s", errors.Details(errs)))
}
