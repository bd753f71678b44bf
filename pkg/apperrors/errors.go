// Package apperrors defines the error taxonomy shared by every pipeline stage.
//
// Each failure carries a Kind. Whether a failure is retried is decided by
// Retryable from the kind alone, never from the concrete Go type of the cause.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindConfiguration      Kind = "configuration"
	KindEmbedding          Kind = "embedding"
	KindBackendUnavailable Kind = "backend_unavailable"
	KindGeneration         Kind = "generation"
	KindForbiddenStatement Kind = "forbidden_statement"
	KindForbiddenKeyword   Kind = "forbidden_keyword"
	KindMalformedSQL       Kind = "malformed_sql"
	KindQueryExecution     Kind = "query_execution"
	KindCancelled          Kind = "cancelled"
)

// Retryable reports whether a failure of the given kind is transient.
// connectivity only matters for KindQueryExecution.
func Retryable(kind Kind, connectivity bool) bool {
	switch kind {
	case KindEmbedding, KindBackendUnavailable:
		return true
	case KindQueryExecution:
		return connectivity
	default:
		return false
	}
}

// Error is a classified pipeline failure.
type Error struct {
	Kind    Kind
	Message string

	// SQL is the statement involved, when one exists.
	SQL string
	// RawOutput is the unparsed model text for generation failures.
	RawOutput string
	// Keyword is the denylisted keyword for forbidden keyword failures.
	Keyword string
	// Connectivity marks query execution failures that never reached the query.
	Connectivity bool
	// LeadingStatement marks a forbidden keyword that is also the statement type.
	LeadingStatement bool

	Cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Kind == KindQueryExecution {
		if e.Connectivity {
			b.WriteString(" (connectivity)")
		} else {
			b.WriteString(" (query)")
		}
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements retry.RetryableError.
func (e *Error) IsRetryable() bool {
	return Retryable(e.Kind, e.Connectivity)
}

// Is matches another *Error by kind so callers can use errors.Is with a
// kind-only template. A leading forbidden keyword also matches the
// forbidden statement kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Message != "" || t.Cause != nil {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindForbiddenStatement && e.Kind == KindForbiddenKeyword && e.LeadingStatement
}

// WithSQL returns a copy of e carrying the given statement.
func (e *Error) WithSQL(sql string) *Error {
	c := *e
	c.SQL = sql
	return &c
}

// ForKind returns a template usable with errors.Is.
func ForKind(kind Kind) error {
	return &Error{Kind: kind}
}

// IsKind reports whether err (or anything it wraps) is of the given kind.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	ok := errors.As(err, &appErr)
	return appErr, ok
}

// IsRetryable reports whether err is classified as transient.
func IsRetryable(err error) bool {
	appErr, ok := As(err)
	return ok && appErr.IsRetryable()
}

func Configuration(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

func Embedding(message string, cause error) *Error {
	return &Error{Kind: KindEmbedding, Message: message, Cause: cause}
}

func BackendUnavailable(message string, cause error) *Error {
	return &Error{Kind: KindBackendUnavailable, Message: message, Cause: cause}
}

func Generation(message, rawOutput string) *Error {
	return &Error{Kind: KindGeneration, Message: message, RawOutput: rawOutput}
}

func ForbiddenStatement(statementType, sql string) *Error {
	return &Error{
		Kind:    KindForbiddenStatement,
		Message: fmt.Sprintf("only read queries are allowed, got %s", statementType),
		SQL:     sql,
	}
}

func ForbiddenKeyword(keyword, sql string, leading bool) *Error {
	return &Error{
		Kind:             KindForbiddenKeyword,
		Message:          fmt.Sprintf("forbidden keyword %s", strings.ToUpper(keyword)),
		SQL:              sql,
		Keyword:          strings.ToUpper(keyword),
		LeadingStatement: leading,
	}
}

// ForbiddenPattern rejects a read query whose shape is not allowed.
func ForbiddenPattern(message, sql string) *Error {
	return &Error{Kind: KindForbiddenStatement, Message: message, SQL: sql}
}

func MalformedSQL(message, sql string) *Error {
	return &Error{Kind: KindMalformedSQL, Message: message, SQL: sql}
}

// QueryFailed is a terminal query-level failure (syntax, permission, timeout).
func QueryFailed(sql string, cause error) *Error {
	return &Error{Kind: KindQueryExecution, Message: "query failed", SQL: sql, Cause: cause}
}

// ConnectionFailed is a retryable failure to reach the target database.
func ConnectionFailed(sql string, cause error) *Error {
	return &Error{
		Kind:         KindQueryExecution,
		Message:      "could not reach target database",
		SQL:          sql,
		Connectivity: true,
		Cause:        cause,
	}
}

func Cancelled(message string) *Error {
	return &Error{Kind: KindCancelled, Message: message}
}
