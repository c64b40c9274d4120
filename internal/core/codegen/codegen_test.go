package codegen

import (
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/go-quicktest/qt"

	"github.com/tinyc-lang/tinyc/errors"
	"github.com/tinyc-lang/tinyc/internal/core/check"
	"github.com/tinyc-lang/tinyc/internal/tm"
	"github.com/tinyc-lang/tinyc/parser"
)

func compile(t *testing.T, src string) []string {
	t.Helper()
	root, parseErrs := parser.Parse("test.c", []byte(src))
	qt.Assert(t, qt.HasLen(parseErrs, 0), qt.Commentf("parse errors: %s", errors.Details(parseErrs)))

	a := check.NewAnalyzer()
	table, checkErrs := a.Analyze(root)
	qt.Assert(t, qt.HasLen(checkErrs, 0), qt.Commentf("check errors: %s", errors.Details(checkErrs)))

	em := tm.NewEmitter()
	gen := NewGenerator(em, table, a.GlobalSize)
	gen.Generate(a.Decls)
	return em.Lines()
}

func TestGenerateEndsWithHALT(t *testing.T) {
	lines := compile(t, `void main(void) { }`)
	last := lines[len(lines)-1]
	qt.Assert(t, qt.IsTrue(strings.Contains(last, "HALT")), qt.Commentf("last line: %q", last))
}

func TestGenerateExactlyOneJumpToMain(t *testing.T) {
	lines := compile(t, `
		int x;
		void f(void) { x = 1; }
		void main(void) { f(); }
	`)
	count := 0
	for _, l := range lines {
		if strings.Contains(l, "jump to main") {
			count++
			qt.Assert(t, qt.IsTrue(strings.Contains(l, "LDC") && strings.Contains(l, tm.PC)))
		}
	}
	qt.Assert(t, qt.Equals(count, 1))
}

var lineRE = regexp.MustCompile(`^(\d+): (\w+) (\w+),(-?\d+)\((\w+)\)`)

// TestGenerateEmitRMAbsDisplacementInvariant checks spec.md §8's invariant
// that every LDA/LD/JEQ/.../PC-relative instruction emitted via
// EmitRMAbs satisfies target == (addr+1)+d, by re-deriving the jump
// target from every pc-relative instruction and confirming it is not
// negative and not beyond the length of the emitted listing.
func TestGenerateEmitRMAbsDisplacementInvariant(t *testing.T) {
	lines := compile(t, `
		int x;
		void f(void) {
			if (x) {
				x = 1;
			} else {
				x = 2;
			}
			while (x) {
				x = x - 1;
			}
		}
		void main(void) { f(); }
	`)
	for _, l := range lines {
		m := lineRE.FindStringSubmatch(l)
		if m == nil || m[5] != tm.PC {
			continue
		}
		addr, _ := strconv.Atoi(m[1])
		d, _ := strconv.Atoi(m[4])
		target := (addr + 1) + d
		qt.Assert(t, qt.IsTrue(target >= 0 && target <= len(lines)),
			qt.Commentf("line %q: computed target %d out of range", l, target))
	}
}

func TestGenerateBuiltinStubsArePresent(t *testing.T) {
	lines := compile(t, `void main(void) { output(input()); }`)
	var hasIn, hasOut bool
	for _, l := range lines {
		if strings.Contains(l, "IN ") {
			hasIn = true
		}
		if strings.Contains(l, "OUT ") {
			hasOut = true
		}
	}
	qt.Assert(t, qt.IsTrue(hasIn), qt.Commentf("lines: %v", lines))
	qt.Assert(t, qt.IsTrue(hasOut), qt.Commentf("lines: %v", lines))
}

func TestGenerateArrayAssignmentStoresThroughEffectiveAddress(t *testing.T) {
	lines := compile(t, `
		int nums[5];
		void main(void) { nums[0] = 9; }
	`)
	found := false
	for _, l := range lines {
		if strings.Contains(l, "store nums[idx]") {
			found = true
		}
	}
	qt.Assert(t, qt.IsTrue(found), qt.Commentf("lines: %v", lines))
}

// TestGenerateNoJumpAroundFunctionTable pins the startup sequence to fall
// straight through the reserved function table: a jump around it would
// skip every function's address-publish pair, leaving every global
// function slot unpopulated.
func TestGenerateNoJumpAroundFunctionTable(t *testing.T) {
	lines := compile(t, `void main(void) { }`)
	for _, l := range lines {
		qt.Assert(t, qt.IsFalse(strings.Contains(l, "jump around function table")), qt.Commentf("line: %q", l))
	}
}

// TestGenerateFunctionTablePublishUsesLiteralLDC pins the entry-address
// publish pair to a literal LDC load: LDA would add the runtime pc to
// entryAddr instead of loading it directly.
func TestGenerateFunctionTablePublishUsesLiteralLDC(t *testing.T) {
	lines := compile(t, `void main(void) { }`)
	var found bool
	for _, l := range lines {
		if !strings.Contains(l, "entry of main") {
			continue
		}
		found = true
		m := lineRE.FindStringSubmatch(l)
		qt.Assert(t, qt.IsNotNil(m), qt.Commentf("line: %q", l))
		qt.Assert(t, qt.Equals(m[2], "LDC"), qt.Commentf("line: %q", l))
		qt.Assert(t, qt.Equals(m[5], "0"), qt.Commentf("LDC's base register is a dummy operand: %q", l))
	}
	qt.Assert(t, qt.IsTrue(found), qt.Commentf("lines: %v", lines))
}

// TestGenerateJumpToMainIsLiteralAddress pins the final backpatch to a
// literal LDC load of locMain: routing it through EmitRMAbs would instead
// load locMain-(addr+1), landing every program's first jump on the wrong
// address.
func TestGenerateJumpToMainIsLiteralAddress(t *testing.T) {
	lines := compile(t, `void main(void) { }`)
	mainAddr := -1
	haltRE := regexp.MustCompile(`^(\d+): HALT`)
	for i, l := range lines {
		if strings.TrimSpace(l) != "* function main" {
			continue
		}
		next := lines[i+1]
		if m := lineRE.FindStringSubmatch(next); m != nil {
			mainAddr, _ = strconv.Atoi(m[1])
		} else if m := haltRE.FindStringSubmatch(next); m != nil {
			mainAddr, _ = strconv.Atoi(m[1])
		}
	}
	qt.Assert(t, qt.IsTrue(mainAddr >= 0), qt.Commentf("lines: %v", lines))

	var found bool
	for _, l := range lines {
		if !strings.Contains(l, "jump to main") {
			continue
		}
		found = true
		m := lineRE.FindStringSubmatch(l)
		qt.Assert(t, qt.IsNotNil(m), qt.Commentf("line: %q", l))
		qt.Assert(t, qt.Equals(m[2], "LDC"), qt.Commentf("line: %q", l))
		d, _ := strconv.Atoi(m[4])
		qt.Assert(t, qt.Equals(d, mainAddr), qt.Commentf("jump to main must load mainAddr %d literally, got d=%d: %q", mainAddr, d, l))
	}
	qt.Assert(t, qt.IsTrue(found), qt.Commentf("lines: %v", lines))
}

// TestGenerateCallReturnAddressSkipsToNextInstruction pins the
// return-address displacement in genCall: it must be 3, which relative
// to the already-advanced pc lands one past the call instruction (three
// lines after "compute return address"), exactly on whatever comes
// right after the call — genCall emits nothing of its own
// after the call instruction, since genReturnSequence already restores
// mp on the way out.
func TestGenerateCallReturnAddressSkipsToNextInstruction(t *testing.T) {
	lines := compile(t, `
		void f(void) { }
		void main(void) { f(); }
	`)
	for i, l := range lines {
		if !strings.Contains(l, "compute return address") {
			continue
		}
		m := lineRE.FindStringSubmatch(l)
		qt.Assert(t, qt.IsNotNil(m), qt.Commentf("line: %q", l))
		d, _ := strconv.Atoi(m[4])
		qt.Assert(t, qt.Equals(d, 3), qt.Commentf("line: %q", l))
		qt.Assert(t, qt.IsTrue(strings.Contains(lines[i+3], "call f")), qt.Commentf("lines[i+3]: %q", lines[i+3]))
		qt.Assert(t, qt.IsFalse(strings.Contains(lines[i+4], "restore caller mp")), qt.Commentf("lines[i+4]: %q", lines[i+4]))
	}
}

func TestGenerateTwoConsecutiveRunsProduceIdenticalOutput(t *testing.T) {
	src := `
		int x;
		void f(int a) { x = a + 1; }
		void main(void) { f(input()); }
	`
	first := compile(t, src)
	second := compile(t, src)
	qt.Assert(t, qt.DeepEquals(first, second))
}
