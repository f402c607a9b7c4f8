// Package errs defines the error kinds raised while resolving a query.
package errs

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure by the pipeline step that produced it.
type Kind string

const (
	KindEmbedding      Kind = "embedding"
	KindStore          Kind = "store"
	KindGeneration     Kind = "generation"
	KindRetrieval      Kind = "retrieval"
	KindClassification Kind = "classification"
	KindInvalidInput   Kind = "invalid_input"
)

// Error is a kind-tagged error. Op names the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s error", e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so the sentinels
// below match any error of their kind anywhere in the chain.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is.
var (
	ErrEmbedding      = &Error{Kind: KindEmbedding}
	ErrStore          = &Error{Kind: KindStore}
	ErrGeneration     = &Error{Kind: KindGeneration}
	ErrRetrieval      = &Error{Kind: KindRetrieval}
	ErrClassification = &Error{Kind: KindClassification}
	ErrInvalidInput   = &Error{Kind: KindInvalidInput}
)

// E wraps err with kind and op. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Wrap is E for errors that may already carry kind: an err whose chain
// holds an *Error of the same kind is returned unchanged.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, &Error{Kind: kind}) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Invalid returns an invalid_input error with a formatted message.
func Invalid(op, format string, args ...any) error {
	return &Error{Kind: KindInvalidInput, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
