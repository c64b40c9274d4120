// Package tm implements the TM object format emitter: the "Code buffer"
// and moving instruction-write cursor described in spec.md §3 and §6.
// It is deliberately the thinnest possible collaborator — a line buffer
// indexed by absolute address plus Skip/Backup/Restore for backpatching
// — so the code generator can own all target-machine semantics.
package tm

import (
	"fmt"
	"io"
)

// Register names on the TM machine (spec.md §4.3).
const (
	AC  = "ac"
	AC1 = "ac1"
	GP  = "gp"
	MP  = "mp"
	FP  = "fp"
	PC  = "pc"
)

// Emitter is the linear array of TM instruction lines described in
// spec.md §3 "Code buffer", indexed by absolute address. highWater gives
// the next free address; cursor is where the next instruction is
// written, which Backup/Restore may temporarily relocate for
// backpatching forward branches.
type Emitter struct {
	lines           []string
	standaloneAfter map[int][]string // comments to render just before the line at this address
	cursor          int
	highWater       int
}

// NewEmitter returns a ready-to-use Emitter with an empty buffer.
func NewEmitter() *Emitter {
	return &Emitter{standaloneAfter: map[int][]string{}}
}

// Addr returns the address the next emitted instruction will occupy.
func (e *Emitter) Addr() int { return e.cursor }

func (e *Emitter) ensure(addr int) {
	for len(e.lines) <= addr {
		e.lines = append(e.lines, "")
	}
}

// EmitComment queues a standalone "* comment" line (spec.md §6) to be
// rendered immediately before whichever instruction is written next;
// standalone comments never occupy a numbered address themselves, since
// the final file must be dense with no address gaps.
func (e *Emitter) EmitComment(comment string) {
	e.standaloneAfter[e.cursor] = append(e.standaloneAfter[e.cursor], "* "+comment)
}

// EmitRO emits a register-register instruction: op r, s, t.
func (e *Emitter) EmitRO(op, r, s, t string, comment string) int {
	line := fmt.Sprintf("%d: %s %s,%s,%s", e.cursor, op, r, s, t)
	return e.emitLine(line, comment)
}

// EmitRM emits a register-memory instruction: op r, d(s).
func (e *Emitter) EmitRM(op, r string, d int, s string, comment string) int {
	line := fmt.Sprintf("%d: %s %s,%d(%s)", e.cursor, op, r, d, s)
	return e.emitLine(line, comment)
}

// EmitRMAbs emits a register-memory instruction whose displacement is
// computed from an absolute target address: d = target - (currentAddress
// + 1), per spec.md §4.3's emitRM_Abs and the §8 invariant
// "target = (addr+1) + d".
func (e *Emitter) EmitRMAbs(op, r string, target int, comment string) int {
	d := target - (e.cursor + 1)
	return e.EmitRM(op, r, d, PC, comment)
}

func (e *Emitter) emitLine(line, comment string) int {
	if comment != "" {
		line += " ;" + comment
	}
	addr := e.cursor
	e.ensure(addr)
	e.lines[addr] = line
	e.cursor++
	if e.cursor > e.highWater {
		e.highWater = e.cursor
	}
	return addr
}

// Skip reserves n addresses for later backpatching and returns the first
// reserved address, per spec.md §3 "skip(n) reserves n addresses and
// returns the first".
func (e *Emitter) Skip(n int) int {
	first := e.cursor
	e.cursor += n
	if e.cursor > e.highWater {
		e.highWater = e.cursor
	}
	return first
}

// Backup temporarily relocates the cursor to addr so the caller can
// overwrite a previously reserved instruction for backpatching.
func (e *Emitter) Backup(addr int) {
	e.cursor = addr
}

// Restore returns the cursor to the high-water mark, undoing a prior
// Backup.
func (e *Emitter) Restore() {
	e.cursor = e.highWater
}

// Lines returns the final dense instruction stream, one string per
// address (with any standalone comments interleaved immediately before
// the instruction they annotate), suitable for writing out as the ".tm"
// object file. Any address never explicitly written (for instance a
// reserved word that was never backpatched, such as the unused tail of
// the code generator's function table) is rendered as an explicit HALT
// rather than silently emitted as an empty line.
func (e *Emitter) Lines() []string {
	out := make([]string, 0, e.highWater)
	for addr := 0; addr < e.highWater; addr++ {
		out = append(out, e.standaloneAfter[addr]...)
		line := ""
		if addr < len(e.lines) {
			line = e.lines[addr]
		}
		if line == "" {
			line = fmt.Sprintf("%d: HALT", addr)
		}
		out = append(out, line)
	}
	out = append(out, e.standaloneAfter[e.highWater]...)
	return out
}

// WriteTo writes the final instruction stream to w, one instruction per
// line, per spec.md §6's TM object format.
func (e *Emitter) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, l := range e.Lines() {
		m, err := fmt.Fprintln(w, l)
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
