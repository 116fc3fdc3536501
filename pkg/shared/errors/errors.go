// Package errors provides the structured error vocabulary used across forge:
// an OperationError carrying component/resource context, plus the Kind enum
// from the pipeline's error taxonomy (config, llm, parse, validation,
// compile, timeout, internal, cancelled).
package errors

import (
	"fmt"
	"strings"
)

// OperationError describes a failed operation with enough context to log
// and to decide retryability, without resorting to string-matching the
// underlying cause everywhere.
type OperationError struct {
	Operation string
	Component string
	Resource  string
	Cause     error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString("failed to ")
	b.WriteString(e.Operation)
	if e.Component != "" {
		b.WriteString(", component: ")
		b.WriteString(e.Component)
	}
	if e.Resource != "" {
		b.WriteString(", resource: ")
		b.WriteString(e.Resource)
	}
	if e.Cause != nil {
		b.WriteString(", cause: ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// Kind classifies a ForgeError per spec.md §7.
type Kind string

const (
	KindConfig     Kind = "config"
	KindLLM        Kind = "llm"
	KindParse      Kind = "parse"
	KindValidation Kind = "validation"
	KindCompile    Kind = "compile"
	KindTimeout    Kind = "timeout"
	KindInternal   Kind = "internal"
	KindCancelled  Kind = "cancelled"
)

// ForgeError is the error kind carried up to orchestrator callers so they
// can branch on category rather than parsing messages.
type ForgeError struct {
	Kind Kind
	*OperationError
}

func (e *ForgeError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.OperationError.Error())
}

func (e *ForgeError) Unwrap() error {
	return e.OperationError
}

// New builds a ForgeError of the given kind.
func New(kind Kind, operation string, cause error) *ForgeError {
	return &ForgeError{Kind: kind, OperationError: &OperationError{Operation: operation, Cause: cause}}
}

// FailedTo builds a minimal error: "failed to <action>[: <cause>]".
func FailedTo(action string, cause error) error {
	if cause == nil {
		return fmt.Errorf("failed to %s", action)
	}
	return fmt.Errorf("failed to %s: %w", action, cause)
}

// FailedToWithDetails builds a full OperationError.
func FailedToWithDetails(action, component, resource string, cause error) error {
	return &OperationError{Operation: action, Component: component, Resource: resource, Cause: cause}
}

// Wrapf wraps err with additional context, returning nil if err is nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func DatabaseError(operation string, cause error) error {
	return FailedToWithDetails(operation, "database", "", cause)
}

func NetworkError(operation, endpoint string, cause error) error {
	return FailedToWithDetails(operation, "network", endpoint, cause)
}

func ValidationError(field, reason string) error {
	return fmt.Errorf("validation failed for field %s: %s", field, reason)
}

func ConfigurationError(setting, reason string) error {
	return fmt.Errorf("configuration error for setting %s: %s", setting, reason)
}

func TimeoutError(operation, after string) error {
	return fmt.Errorf("timeout while %s after %s", operation, after)
}

func AuthenticationError(reason string) error {
	return fmt.Errorf("authentication failed: %s", reason)
}

func AuthorizationError(action, resource string) error {
	return fmt.Errorf("authorization failed: insufficient permissions to %s %s", action, resource)
}

func ParseError(resource, format string, cause error) error {
	return Wrapf(cause, "failed to parse %s as %s", resource, format)
}

// IsRetryable applies a conservative heuristic over the error message —
// used by callers that only have an opaque transport error to go on.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"timeout", "connection refused", "unavailable", "reset by peer", "temporary failure"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Chain joins a set of non-nil errors into one, or returns nil if none.
func Chain(errs ...error) error {
	var msgs []string
	for _, e := range errs {
		if e != nil {
			msgs = append(msgs, e.Error())
		}
	}
	switch len(msgs) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("%s", msgs[0])
	default:
		return fmt.Errorf("multiple errors: %s", strings.Join(msgs, "; "))
	}
}
