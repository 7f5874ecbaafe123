package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind classifies failures of the analysis pipeline.
type ErrorKind string

// Error kinds surfaced to callers.
const (
	KindInvalidInput         ErrorKind = "invalid_input"
	KindInvalidRequest       ErrorKind = "invalid_request"
	KindDataUnavailable      ErrorKind = "data_unavailable"
	KindShapeMismatch        ErrorKind = "shape_mismatch"
	KindUnknownFeature       ErrorKind = "unknown_feature"
	KindUnsupportedOperation ErrorKind = "unsupported_operation"
	KindDivisionByZero       ErrorKind = "division_by_zero"
	KindMissingFeature       ErrorKind = "missing_feature"
	KindEmptyClass           ErrorKind = "empty_class"
)

// Error is a classified pipeline failure. Fields carry the diagnostic context
// (bbox, shapes, feature names) needed to understand the failure without
// inspecting internals.
type Error struct {
	Kind   ErrorKind
	Msg    string
	Fields map[string]any
}

// Sentinels for errors.Is comparisons. Only the kind is compared.
var (
	ErrInvalidInput         = &Error{Kind: KindInvalidInput}
	ErrInvalidRequest       = &Error{Kind: KindInvalidRequest}
	ErrDataUnavailable      = &Error{Kind: KindDataUnavailable}
	ErrShapeMismatch        = &Error{Kind: KindShapeMismatch}
	ErrUnknownFeature       = &Error{Kind: KindUnknownFeature}
	ErrUnsupportedOperation = &Error{Kind: KindUnsupportedOperation}
	ErrDivisionByZero       = &Error{Kind: KindDivisionByZero}
	ErrMissingFeature       = &Error{Kind: KindMissingFeature}
	ErrEmptyClass           = &Error{Kind: KindEmptyClass}
)

// NewError builds an Error from a kind, a message and alternating key/value
// pairs of context.
func NewError(kind ErrorKind, msg string, kv ...any) *Error {
	e := &Error{Kind: kind, Msg: msg}
	if len(kv) > 0 {
		e.Fields = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			e.Fields[fmt.Sprint(kv[i])] = kv[i+1]
		}
	}
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Fields[k])
		}
		b.WriteString(")")
	}
	return b.String()
}

// Is reports whether target is a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.Fields == nil
}

// KindOf returns the kind of the first *Error in err's chain, or "" when err
// is not a classified pipeline error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
