package eval_test

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/irori/unlambda/internal/cell"
	"github.com/irori/unlambda/internal/diag"
	"github.com/irori/unlambda/internal/eval"
	"github.com/irori/unlambda/internal/heap"
	"github.com/irori/unlambda/internal/parse"
)

// run parses src, evaluates it against stdin, and returns everything
// written to stdout. limits lets tests drive the heap small enough to
// force GC mid-run (for the GC-transparency property).
func run(t *testing.T, src, stdin string, limits heap.Limits) string {
	t.Helper()

	h, err := heap.New(limits, diag.NewLogger(0))
	require.NoError(t, err)

	// Root the shared cells already allocated, so a major collection
	// triggered by a later one (tiny chunks) cannot free them.
	var allocated []*cell.Cell
	shared := cell.NewShared(func(tag cell.Tag) *cell.Cell {
		c, err := h.NewOld(tag, allocated)
		require.NoError(t, err)
		allocated = append(allocated, c)
		return c
	})

	in := bufio.NewReader(strings.NewReader(src))
	expr, err := parse.New(in, h, shared).Parse()
	require.NoError(t, err)

	stdinR := bufio.NewReader(strings.NewReader(stdin))
	var out bytes.Buffer
	stdoutW := bufio.NewWriter(&out)

	ev := eval.New(h, shared, diag.NewLogger(0), stdinR, stdoutW)
	_, err = ev.Run(expr)
	require.NoError(t, err)
	require.NoError(t, ev.Flush())

	return out.String()
}

func defaultLimits() heap.Limits {
	return heap.Limits{YoungSize: 4096, ChunkSize: 4096, MaxChunks: 0}
}

// tinyLimits forces minor and major collections on nearly every
// allocation, for the GC-transparency property.
func tinyLimits() heap.Limits {
	return heap.Limits{YoungSize: 4, ChunkSize: 4, MaxChunks: 0}
}

func TestEndToEndLiteralH(t *testing.T) {
	require.Equal(t, "H", run(t, "`.HI", "", defaultLimits()))
}

func TestEndToEndArgumentPrintsBeforeOperator(t *testing.T) {
	// `.A`.Bi : apply .A to (.B applied to i). The argument's own
	// application (`.Bi`) must run — and print — before .A's effect.
	require.Equal(t, "BA", run(t, "`.A`.Bi", "", defaultLimits()))
}

func TestEndToEndCallCCReifiedButNeverInvokedIsANoop(t *testing.T) {
	require.Equal(t, "", run(t, "`ci", "", defaultLimits()))
}

func TestEndToEndDelayNeverForcesUnlessApplied(t *testing.T) {
	require.Equal(t, "", run(t, "`d`.Xi", "", defaultLimits()))
}

func TestEndToEndReadsOneByteAndEchoesIt(t *testing.T) {
	require.Equal(t, "Q", run(t, "``@|i", "Q", defaultLimits()))
	require.Equal(t, "", run(t, "``@|i", "", defaultLimits()))
}

func TestSKILawKDiscardsSecondArgument(t *testing.T) {
	// ``K.Zi applied to i forces K to pick .Z, which is then applied to
	// the outer i and prints — proving K kept the first argument and
	// dropped the second rather than the reverse.
	require.Equal(t, "Z", run(t, "```k.Zii", "", defaultLimits()))
}

func TestGCTransparencyDoesNotChangeOutput(t *testing.T) {
	const src = "```k.Zii"
	want := run(t, src, "", defaultLimits())
	got := run(t, src, "", tinyLimits())
	require.Equal(t, want, got)

	const echoSrc = "``@|i"
	require.Equal(t, run(t, echoSrc, "Q", defaultLimits()), run(t, echoSrc, "Q", tinyLimits()))
}

func TestExitTerminatesWithoutFurtherSideEffects(t *testing.T) {
	// `.Y`e`.Xi : the argument `e`.Xi is evaluated first; its own
	// argument `.Xi runs (and prints X) before e is applied, then e
	// aborts the program, so the pending .Y is never applied.
	require.Equal(t, "X", run(t, "`.Y`e`.Xi", "", defaultLimits()))
}
