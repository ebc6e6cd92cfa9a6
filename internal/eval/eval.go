// Package eval runs the combinator state machine: an eager left-spine
// walk, a dispatch table over partial-application and value tags, and
// an explicit heap-allocated continuation spine that gives call/cc and
// lazy `d` well-defined, GC-transparent semantics.
package eval

import (
	"bufio"

	"github.com/irori/unlambda/internal/cell"
	"github.com/irori/unlambda/internal/diag"
)

// mode names the machine's current phase.
type mode int

const (
	modeEval mode = iota
	modeReturn
	modeApply
	modeDone
)

// Evaluator holds the four registers spec.md §4.3 names (val, op, task,
// task_val) plus the heap spine (next_cont) and the synchronous I/O
// state. task/task_val are kept outside the heap deliberately — they
// are the top of the continuation stack, cached in registers so
// dispatching on the top frame reads no cell; push allocates one cell
// for the previous top and pop reads one back.
type Evaluator struct {
	heap   youngAllocator
	shared *cell.Shared
	log    *diag.Logger
	io     *ioState

	val, op  *cell.Cell
	task     cell.Tag
	taskVal  *cell.Cell
	nextCont *cell.Cell

	curByte byte
	curOK   bool
}

// New builds an Evaluator. h supplies nursery allocation and the two
// GC safepoints; shared is the parser's nine deduplicated nullary
// combinators (needed so `@`/`?`/`|` can hand back shared I/V values
// instead of allocating fresh ones); logger and io may be nil-free
// zero values supplied by the caller.
func New(h youngAllocator, shared *cell.Shared, log *diag.Logger, in *bufio.Reader, out *bufio.Writer) *Evaluator {
	return &Evaluator{heap: h, shared: shared, log: log, io: newIOState(in, out)}
}

// roots reports the evaluator's live register addresses for a GC
// safepoint. op is included even though it is briefly stale going into
// a pop — a stale-but-reachable pointer only wastes a copy, it never
// loses one.
func (e *Evaluator) roots() []**cell.Cell {
	return []**cell.Cell{&e.val, &e.op, &e.taskVal, &e.nextCont}
}

// push grows the continuation stack by one frame, moving the current
// (task, task_val) down onto the heap spine and installing newTask/
// newTaskVal as the new top. nextCont is left alone by design other
// than gaining this one new head cell — the rest of the chain is
// immutable once built (spec.md §3 invariant 1).
func (e *Evaluator) push(newTask cell.Tag, newTaskVal *cell.Cell) {
	frame := e.heap.AllocYoung(e.task)
	frame.L = e.nextCont
	frame.R = e.taskVal
	e.nextCont = frame
	e.task = newTask
	e.taskVal = newTaskVal
}

// pop discards the current top frame, revealing the one beneath it.
// Only ever called when nextCont is known non-nil: every non-EXIT task
// was installed by a push (which always leaves nextCont non-nil) or by
// a prior pop along an already-non-nil chain.
func (e *Evaluator) pop() {
	if e.nextCont == nil {
		panic(diag.Fatalf(diag.InvariantError, "continuation underflow"))
	}
	e.task = e.nextCont.T
	e.taskVal = e.nextCont.R
	e.nextCont = e.nextCont.L
}

// Run evaluates expr to completion, returning the final val register
// once task == EXIT is reached, or a *diag.FatalError on any fatal
// condition (including one surfaced through recover, so an unexpected
// tag anywhere in the dispatch tables becomes an InvariantError instead
// of a Go panic escaping this package).
func (e *Evaluator) Run(expr *cell.Cell) (result *cell.Cell, err error) {
	defer func() {
		if r := recover(); r != nil {
			if fe, ok := r.(*diag.FatalError); ok {
				err = fe
				return
			}
			err = diag.Fatalf(diag.InvariantError, "%v", r)
		}
	}()

	e.val = expr
	e.task = cell.Exit
	e.taskVal = nil
	e.nextCont = nil

	m := modeEval
	for {
		switch m {
		case modeEval:
			for e.val.T == cell.AP {
				if err := e.heap.EnsureYoung(1, e.roots); err != nil {
					return nil, err
				}
				rand := e.val.R
				e.push(cell.EvalRight, rand)
				e.val = e.val.L
			}
			m = modeReturn

		case modeReturn:
			if err := e.heap.EnsureYoung(1, e.roots); err != nil {
				return nil, err
			}
			next, err := e.returnStep()
			if err != nil {
				return nil, err
			}
			m = next

		case modeApply:
			if err := e.heap.EnsureYoung(2, e.roots); err != nil {
				return nil, err
			}
			next, err := e.applyStep()
			if err != nil {
				return nil, err
			}
			m = next

		case modeDone:
			return e.val, nil
		}
	}
}

// returnStep processes the current top-of-spine frame against the
// value just produced by eval (or by the previous apply step). Every
// case except Exit pops the current frame before acting on it, and
// none re-pushes the frame it is currently consuming.
func (e *Evaluator) returnStep() (mode, error) {
	switch e.task {
	case cell.Exit:
		return modeDone, nil

	case cell.EvalRight:
		rand := e.taskVal
		e.pop()
		if e.val.T == cell.D {
			// `d`-freeze: the operator forced to D means the whole
			// application is lazy (spec.md §9); rand is never evaluated.
			e.val = mkD1(e.heap, rand)
			return modeReturn, nil
		}
		f := e.val
		e.push(cell.Apply, f)
		e.val = rand
		return modeEval, nil

	case cell.EvalRightS:
		pair := e.taskVal
		e.pop()
		prev := e.val
		e.push(cell.Apply, prev)
		e.op = pair.L
		e.val = pair.R
		return modeApply, nil

	case cell.Apply:
		f := e.taskVal
		e.pop()
		e.op = f
		return modeApply, nil

	case cell.ApplyT:
		saved := e.taskVal
		e.pop()
		e.op = e.val
		e.val = saved
		return modeApply, nil

	default:
		return modeDone, diag.Fatalf(diag.InvariantError, "unexpected continuation frame tag %s", e.task)
	}
}

// applyStep dispatches on op.t against val, per spec.md §4.3's table.
// It is entered with op/val already populated by the most recent
// returnStep and with the continuation stack already advanced past
// whatever frame produced this op — so a terminal branch here needs no
// further pop; it just returns to modeReturn and the already-current
// frame takes over.
func (e *Evaluator) applyStep() (mode, error) {
	switch e.op.T {
	case cell.I:
		return modeReturn, nil

	case cell.DOT:
		if err := e.io.writeByte(e.op.Ch); err != nil {
			return modeDone, diag.Fatal(diag.IOError, err)
		}
		return modeReturn, nil

	case cell.K:
		e.val = mkK1(e.heap, e.val)
		return modeReturn, nil

	case cell.K1:
		e.val = e.op.L
		return modeReturn, nil

	case cell.S:
		if e.val.T == cell.K1 {
			e.val = mkB1(e.heap, e.val.L)
		} else {
			e.val = mkS1(e.heap, e.val)
		}
		return modeReturn, nil

	case cell.S1:
		if e.val.T == cell.K1 {
			switch {
			case e.op.L.T == cell.I:
				e.val = mkT1(e.heap, e.val.L)
			case e.op.L.T == cell.T1:
				e.val = mkV2(e.heap, e.op.L.L, e.val.L)
			default:
				e.val = mkC2(e.heap, e.op.L, e.val.L)
			}
		} else {
			e.val = mkS2(e.heap, e.op.L, e.val)
		}
		return modeReturn, nil

	case cell.B1:
		e.val = mkB2(e.heap, e.op.L, e.val)
		return modeReturn, nil

	case cell.T1:
		// T x y = y x: swap in place, no frame needed.
		e.op, e.val = e.val, e.op.L
		return modeApply, nil

	case cell.S2:
		node := mkAP(e.heap, e.op.R, e.val)
		e.push(cell.EvalRightS, node)
		e.op = e.op.L
		return modeApply, nil

	case cell.B2:
		if e.op.L.T == cell.D {
			e.val = mkD1(e.heap, mkAP(e.heap, e.op.R, e.val))
			return modeReturn, nil
		}
		opR := e.op.R
		e.push(cell.Apply, e.op.L)
		e.op = opR
		return modeApply, nil

	case cell.C2:
		opR := e.op.R
		e.push(cell.ApplyT, opR)
		e.op = e.op.L
		return modeApply, nil

	case cell.V2:
		newOp, newVal := e.val, e.op.L
		e.push(cell.ApplyT, e.op.R)
		e.op, e.val = newOp, newVal
		return modeApply, nil

	case cell.V:
		e.val = e.op
		return modeReturn, nil

	case cell.D:
		e.val = mkD1(e.heap, e.val)
		return modeReturn, nil

	case cell.D1:
		saved := e.val
		expr := e.op.L
		e.push(cell.ApplyT, saved)
		e.val = expr
		return modeEval, nil

	case cell.C:
		f := e.val
		e.push(cell.Apply, f)
		e.val = mkCont(e.heap, e.nextCont)
		return modeReturn, nil

	case cell.CONT:
		e.nextCont = e.op.L
		e.pop()
		return modeReturn, nil

	case cell.E:
		e.task = cell.Exit
		e.taskVal = nil
		e.nextCont = nil
		return modeReturn, nil

	case cell.AT:
		b, ok, err := e.io.readByte()
		if err != nil {
			return modeDone, diag.Fatal(diag.IOError, err)
		}
		e.curByte, e.curOK = b, ok
		f := e.val
		e.push(cell.Apply, f)
		if ok {
			e.val = e.shared.I
		} else {
			e.val = e.shared.V
		}
		return modeReturn, nil

	case cell.QUES:
		f := e.val
		e.push(cell.Apply, f)
		if e.curOK && e.curByte == e.op.Ch {
			e.val = e.shared.I
		} else {
			e.val = e.shared.V
		}
		return modeReturn, nil

	case cell.PIPE:
		f := e.val
		e.push(cell.Apply, f)
		if !e.curOK {
			e.val = e.shared.V
		} else {
			e.val = mkDot(e.heap, e.curByte)
		}
		return modeReturn, nil

	default:
		return modeDone, diag.Fatalf(diag.InvariantError, "unexpected operator tag %s in apply", e.op.T)
	}
}

// Flush flushes any buffered stdout so callers see output promptly
// after Run returns, mirroring the teacher's bufio.Writer discipline of
// an explicit flush at the point of last use rather than relying on
// finalizers.
func (e *Evaluator) Flush() error {
	return e.io.flush()
}
