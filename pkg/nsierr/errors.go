// Package nsierr defines the error-kind taxonomy used across the image
// codec, builder, loader, and sandbox launcher (spec.md §7). It generalizes
// the teacher's ComplexError/xerrors.Frame pattern from
// pkg/commands/errors.go from a single error code to the full kind set.
package nsierr

import (
	"errors"
	"fmt"

	"golang.org/x/xerrors"
)

// Kind is one entry in the taxonomy from spec.md §7. Kinds are compared by
// value, not by wrapping chain, so callers can do nsierr.KindOf(err) ==
// nsierr.TarError without caring how deeply the error was wrapped.
type Kind int

const (
	_ Kind = iota
	ConfigError
	FormatError
	IntegrityError
	IOError
	CompressionError
	TarError
	NamespaceError
	MountError
	PivotError
	ExecError
	BuildCommandError
)

func (k Kind) String() string {
	switch k {
	case ConfigError:
		return "ConfigError"
	case FormatError:
		return "FormatError"
	case IntegrityError:
		return "IntegrityError"
	case IOError:
		return "IOError"
	case CompressionError:
		return "CompressionError"
	case TarError:
		return "TarError"
	case NamespaceError:
		return "NamespaceError"
	case MountError:
		return "MountError"
	case PivotError:
		return "PivotError"
	case ExecError:
		return "ExecError"
	case BuildCommandError:
		return "BuildCommandError"
	default:
		return "UnknownError"
	}
}

// Error is a kind-tagged error that carries what was attempted, what failed,
// and (for syscall failures) the wrapped kernel errno, per spec.md §7's
// "every error includes what was attempted, what failed, and the kernel's
// error code" requirement.
type Error struct {
	Kind    Kind
	Attempt string
	Cause   error
	frame   xerrors.Frame
}

// New builds an Error that captures its call site, the way the teacher's
// ComplexError captures an xerrors.Frame at construction.
func New(kind Kind, attempt string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Attempt: attempt,
		Cause:   cause,
		frame:   xerrors.Caller(1),
	}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Attempt, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Attempt)
}

func (e *Error) Unwrap() error { return e.Cause }

// FormatError implements xerrors.Formatter the same way the teacher's
// ComplexError does, so %+v on an error built from New prints a frame.
func (e *Error) FormatError(p xerrors.Printer) error {
	p.Printf("%s", e.Error())
	e.frame.Format(p)
	return nil
}

func (e *Error) Format(f fmt.State, c rune) {
	xerrors.FormatError(e, f, c)
}

// KindOf walks the error chain looking for an *Error and returns its Kind,
// or the zero Kind if none is found.
func KindOf(err error) Kind {
	var ne *Error
	if errors.As(err, &ne) {
		return ne.Kind
	}
	return 0
}

// Is reports whether err's chain contains an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
