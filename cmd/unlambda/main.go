// Command unlambda runs one Unlambda program, read from a file named
// on the command line or from stdin when no file is given, and
// performs its I/O as a side effect.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/irori/unlambda/internal/cell"
	"github.com/irori/unlambda/internal/diag"
	"github.com/irori/unlambda/internal/eval"
	"github.com/irori/unlambda/internal/heap"
	"github.com/irori/unlambda/internal/parse"
)

const (
	stdinBufSize = 4096
	fileBufSize  = 4096
)

// options holds the flag values a run is configured with, separated
// from cobra's Command so run can be exercised directly in tests
// without going through flag parsing.
type options struct {
	verbose          int
	heapLimit        int
	unbufferedStdout bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:          "unlambda [flags] [program-file]",
		Short:        "Evaluate an Unlambda program",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var programPath string
			if len(args) == 1 {
				programPath = args[0]
			}
			return run(cmd.OutOrStdout(), cmd.InOrStdin(), programPath, *opts)
		},
	}

	cmd.Flags().CountVarP(&opts.verbose, "verbose", "v", "increase diagnostic verbosity (repeatable)")
	cmd.Flags().IntVar(&opts.heapLimit, "heap-limit", 0, "maximum old-generation chunks (0 = unlimited)")
	cmd.Flags().BoolVar(&opts.unbufferedStdout, "unbuffered-stdout", false, "write stdout one byte at a time")

	return cmd
}

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		var fatal *diag.FatalError
		if asFatalError(err, &fatal) {
			fmt.Fprintln(os.Stderr, fatal.Error())
			os.Exit(fatal.Category().ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// asFatalError walks err's Unwrap chain looking for a *diag.FatalError,
// the only error type internal/eval, internal/heap and internal/parse
// ever return — main is the sole place that inspects a Category to
// pick an exit code.
func asFatalError(err error, target **diag.FatalError) bool {
	for err != nil {
		if fe, ok := err.(*diag.FatalError); ok {
			*target = fe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// run opens the program source, parses it, evaluates it, and logs the
// run-end report, returning a *diag.FatalError on any failure
// (exit-code mapping stays main's job, not run's).
func run(stdout io.Writer, stdin io.Reader, programPath string, opts options) error {
	log := diag.NewLogger(opts.verbose)

	limits := heap.DefaultLimits()
	if opts.heapLimit > 0 {
		limits.MaxChunks = opts.heapLimit
	}

	h, err := heap.New(limits, log)
	if err != nil {
		return err
	}

	var sharedErr error
	shared := cell.NewShared(func(t cell.Tag) *cell.Cell {
		c, allocErr := h.NewOld(t, nil)
		if allocErr != nil && sharedErr == nil {
			sharedErr = allocErr
		}
		return c
	})
	if sharedErr != nil {
		return sharedErr
	}

	programReader, closeProgram, err := openProgram(programPath, stdin)
	if err != nil {
		return diag.Fatal(diag.IOError, err)
	}
	defer closeProgram()

	expr, err := parse.New(programReader, h, shared).Parse()
	if err != nil {
		return err
	}

	// When the program came from stdin, the same *bufio.Reader keeps
	// being read from for `@`/`?`/`|`. Parse leaves any bytes past the
	// program's last token unread, which for a program packed onto its
	// own line(s) includes the rest of that final line; discard through
	// the next newline (or EOF) so `@`/`?`/`|` see only the input that
	// follows it (spec.md §5).
	var stdinReader *bufio.Reader
	if programPath == "" {
		if err := discardRestOfLine(programReader); err != nil {
			return diag.Fatal(diag.IOError, err)
		}
		stdinReader = programReader
	} else {
		stdinReader = bufio.NewReaderSize(stdin, stdinBufSize)
	}

	stdoutSize := fileBufSize
	if opts.unbufferedStdout {
		stdoutSize = 1
	}
	stdoutW := bufio.NewWriterSize(stdout, stdoutSize)

	ev := eval.New(h, shared, log, stdinReader, stdoutW)
	_, runErr := ev.Run(expr)
	flushErr := stdoutW.Flush()

	log.RunStats(statsFields(h.Stats()))

	if runErr != nil {
		return runErr
	}
	if flushErr != nil {
		return diag.Fatal(diag.IOError, flushErr)
	}
	return nil
}

func statsFields(s heap.Stats) logrus.Fields {
	return logrus.Fields{
		"minor_gcs":       s.MinorGCs,
		"major_gcs":       s.MajorGCs,
		"promoted":        s.Promoted,
		"old_chunks":      s.OldChunks,
		"old_total_cells": s.OldTotalCells,
		"old_free_cells":  s.OldFreeCells,
	}
}

// discardRestOfLine consumes bytes up to and including the next
// newline, leaving r positioned at the start of the next line. EOF
// before a newline is not an error: a program with no trailing input
// at all is the common case.
func discardRestOfLine(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if b == '\n' {
			return nil
		}
	}
}

// openProgram returns a *bufio.Reader over the program's source
// (stdin when programPath is empty) and a closer to release the
// underlying file, if any.
func openProgram(programPath string, stdin io.Reader) (*bufio.Reader, func(), error) {
	if programPath == "" {
		return bufio.NewReaderSize(stdin, stdinBufSize), func() {}, nil
	}

	f, err := os.Open(programPath)
	if err != nil {
		return nil, nil, err
	}
	return bufio.NewReaderSize(f, fileBufSize), func() { f.Close() }, nil
}
