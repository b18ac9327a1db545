package schema

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures crossing a port boundary.
type ErrorKind int

const (
	KindEmbedding ErrorKind = iota + 1
	KindSearchBackend
	KindPermission
	KindPipelineStep
	KindLlmStream
)

// Sentinels for errors.Is checks; Error values match the sentinel of their kind.
var (
	ErrEmbedding     = errors.New("embedding error")
	ErrSearchBackend = errors.New("search backend error")
	ErrPermission    = errors.New("permission error")
	ErrPipelineStep  = errors.New("pipeline step error")
	ErrLlmStream     = errors.New("llm stream error")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindEmbedding:
		return ErrEmbedding
	case KindSearchBackend:
		return ErrSearchBackend
	case KindPermission:
		return ErrPermission
	case KindPipelineStep:
		return ErrPipelineStep
	case KindLlmStream:
		return ErrLlmStream
	default:
		return nil
	}
}

// Error carries the kind and the operation that failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	s := e.Kind.sentinel()
	msg := "error"
	if s != nil {
		msg = s.Error()
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinel so callers need not know about *Error.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// Wrap returns err wrapped with kind and op; nil stays nil.
// An error that already carries the same kind is returned unchanged.
func Wrap(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) && existing.Kind == kind {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// EmbeddingError wraps a failure of the embedding model.
func EmbeddingError(op string, err error) error { return Wrap(KindEmbedding, op, err) }

// SearchBackendError wraps a failure of the search index.
func SearchBackendError(op string, err error) error { return Wrap(KindSearchBackend, op, err) }

// PermissionError wraps a denied or unresolvable permission lookup.
func PermissionError(op string, err error) error { return Wrap(KindPermission, op, err) }

// PipelineStepError wraps a violated step precondition.
func PipelineStepError(op string, err error) error { return Wrap(KindPipelineStep, op, err) }

// LlmStreamError wraps a generation failure.
func LlmStreamError(op string, err error) error { return Wrap(KindLlmStream, op, err) }
