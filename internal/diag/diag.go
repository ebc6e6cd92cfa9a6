// Package diag carries the interpreter's ambient concerns: fatal-error
// categorization, verbosity-gated logging, and run-end statistics
// formatting. Nothing in cell, heap, parse or eval calls os.Exit or
// writes to stderr directly — they return a *FatalError or log through
// a *Logger, and only cmd/unlambda decides what that means for the
// process.
package diag

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Category distinguishes the fatal-error taxonomy from spec.md §7. It
// plays the role the teacher's runtime.Error interface gives its
// RuntimeError marker method: a way to tell categories of failure
// apart without inspecting message text.
type Category int

const (
	// ParseError: premature EOF inside a payload or mid-expression,
	// or an unrecognized source byte.
	ParseError Category = iota + 1
	// IOError: the named program file could not be opened, or reading
	// the program or stdin, or writing stdout, failed.
	IOError
	// OOMError: growing the old generation would exceed the
	// configured heap limit.
	OOMError
	// InvariantError: an unexpected tag reached a dispatch that
	// assumed the tag universe was already exhausted.
	InvariantError
)

func (c Category) String() string {
	switch c {
	case ParseError:
		return "parse error"
	case IOError:
		return "I/O error"
	case OOMError:
		return "out of memory"
	case InvariantError:
		return "internal error"
	default:
		return "error"
	}
}

// ExitCode maps a Category to the process exit code cmd/unlambda
// returns for it.
func (c Category) ExitCode() int {
	switch c {
	case ParseError:
		return 2
	case IOError:
		return 3
	case OOMError:
		return 4
	case InvariantError:
		return 5
	default:
		return 1
	}
}

// FatalError is the only error type that crosses a package boundary in
// this interpreter; everything is fatal, per spec.md §7.
type FatalError struct {
	category Category
	cause    error
}

// Fatal wraps cause (which may be nil) as a FatalError in category,
// attaching a stack trace to the cause via pkg/errors. Error() reports
// only the category and message; nothing in this module prints the
// trace.
func Fatal(category Category, cause error) *FatalError {
	if cause == nil {
		cause = errors.New(category.String())
	} else {
		cause = errors.WithStack(cause)
	}
	return &FatalError{category: category, cause: cause}
}

// Fatalf builds a FatalError from a formatted message.
func Fatalf(category Category, format string, args ...interface{}) *FatalError {
	return Fatal(category, errors.Errorf(format, args...))
}

func (e *FatalError) Error() string {
	return e.category.String() + ": " + e.cause.Error()
}

// Category reports which taxonomy bucket e belongs to.
func (e *FatalError) Category() Category { return e.category }

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *FatalError) Unwrap() error { return e.cause }

// Logger gates GC and run-end diagnostics behind the verbosity levels
// spec.md §6 names: 0 none, 1 run-end stats, 2 + major-GC logs, 3 + minor-GC logs.
type Logger struct {
	level int
	log   *logrus.Logger
}

// NewLogger builds a Logger writing text-formatted entries to stderr,
// so stdout is left exclusively to the interpreted program's own
// output (end-to-end scenarios in spec.md §8 depend on that
// separation).
func NewLogger(level int) *Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	// The level field above is the real verbosity gate (checked before
	// every call below); logrus's own level must merely be permissive
	// enough to let Debug-level minor-GC entries through once emitted.
	l.SetLevel(logrus.DebugLevel)
	return &Logger{level: level, log: l}
}

// Level reports the configured verbosity.
func (l *Logger) Level() int { return l.level }

// MinorGC logs a minor collection at verbosity >= 3.
func (l *Logger) MinorGC(fields logrus.Fields) {
	if l.level >= 3 {
		l.log.WithFields(fields).Debug("minor gc")
	}
}

// MajorGC logs a major collection at verbosity >= 2.
func (l *Logger) MajorGC(fields logrus.Fields) {
	if l.level >= 2 {
		l.log.WithFields(fields).Info("major gc")
	}
}

// RunStats logs the run-end summary at verbosity >= 1.
func (l *Logger) RunStats(fields logrus.Fields) {
	if l.level >= 1 {
		l.log.WithFields(fields).Info("run complete")
	}
}
