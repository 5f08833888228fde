package domain

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes a domain error. Adapters translate codes to their
// surface-specific equivalents (HTTP status, gRPC code, CLI exit code).
type ErrorCode int

const (
	// CodeNotFound indicates the requested entity key does not exist.
	CodeNotFound ErrorCode = iota

	// CodeAlreadyExists indicates an entity with the key already exists.
	CodeAlreadyExists

	// CodeInvalidArgument indicates malformed caller input other than the
	// cases with their own code below.
	CodeInvalidArgument

	// CodeInvalidAccessLevel indicates an access level outside the four
	// recognized constants. Checked before any store work.
	CodeInvalidAccessLevel

	// CodeInvalidQuerySyntax indicates a malformed find-query clause
	// (unknown operator, unknown connector, whitespace in a property name).
	CodeInvalidQuerySyntax

	// CodeQueryCompile indicates a structurally broken clause sequence
	// (unbalanced parentheses, dangling connectors). Distinct from
	// InvalidQuerySyntax: these are the failures the query layer, not the
	// per-clause validation, detects.
	CodeQueryCompile

	// CodeCycleDetected indicates a hierarchy mutation that would make a
	// collection its own ancestor. Nothing is written.
	CodeCycleDetected

	// CodeRetentionActive indicates a file delete blocked by an unexpired
	// retention application. Callers may retry after expiry.
	CodeRetentionActive

	// CodeRetentionPeriodCannotDecrease indicates a policy update that
	// would shorten the retention period.
	CodeRetentionPeriodCannotDecrease

	// CodeForbidden indicates the access-control resolver denied the
	// operation. Never conflated with NotFound.
	CodeForbidden

	// CodeBackendUnavailable indicates the graph store or a storage/event
	// collaborator failed or is unreachable. Not retried by the core.
	CodeBackendUnavailable
)

func (c ErrorCode) String() string {
	switch c {
	case CodeNotFound:
		return "NotFound"
	case CodeAlreadyExists:
		return "AlreadyExists"
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodeInvalidAccessLevel:
		return "InvalidAccessLevel"
	case CodeInvalidQuerySyntax:
		return "InvalidQuerySyntax"
	case CodeQueryCompile:
		return "QueryCompile"
	case CodeCycleDetected:
		return "CycleDetected"
	case CodeRetentionActive:
		return "RetentionActive"
	case CodeRetentionPeriodCannotDecrease:
		return "RetentionPeriodCannotDecrease"
	case CodeForbidden:
		return "Forbidden"
	case CodeBackendUnavailable:
		return "BackendUnavailable"
	default:
		return "Unknown"
	}
}

// Error is the domain error type carried across every package boundary.
type Error struct {
	Code    ErrorCode
	Message string

	// Key is the entity key the error relates to, if any.
	Key string

	// Cause is the wrapped underlying error, if any.
	Cause error
}

func (e *Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s (key=%s)", e.Code, e.Message, e.Key)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// CodeOf extracts the domain error code, or -1 for non-domain errors.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return -1
}

// IsCode reports whether err is a domain error with the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// NotFound reports a missing entity of the given kind.
func NotFound(kind, key string) *Error {
	return &Error{Code: CodeNotFound, Message: kind + " not found", Key: key}
}

// AlreadyExists reports a key collision for the given kind.
func AlreadyExists(kind, key string) *Error {
	return &Error{Code: CodeAlreadyExists, Message: kind + " already exists", Key: key}
}

// InvalidArgument reports malformed caller input.
func InvalidArgument(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// InvalidAccessLevel reports an unrecognized access level string.
func InvalidAccessLevel(level string) *Error {
	return &Error{
		Code:    CodeInvalidAccessLevel,
		Message: fmt.Sprintf("%q is not a valid access level (did you use all uppercase?)", level),
	}
}

// InvalidQuerySyntax reports a malformed find-query clause.
func InvalidQuerySyntax(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidQuerySyntax, Message: fmt.Sprintf(format, args...)}
}

// QueryCompile reports a structurally broken clause sequence.
func QueryCompile(format string, args ...any) *Error {
	return &Error{Code: CodeQueryCompile, Message: fmt.Sprintf(format, args...)}
}

// CycleDetected reports a hierarchy mutation that would introduce a cycle.
func CycleDetected(parentKey, childKey string) *Error {
	return &Error{
		Code:    CodeCycleDetected,
		Message: fmt.Sprintf("adding collection %q as child of %q would create a cycle", childKey, parentKey),
	}
}

// RetentionActive reports a delete blocked by an unexpired retention
// application.
func RetentionActive(fileKey string) *Error {
	return &Error{
		Code:    CodeRetentionActive,
		Message: "file has an active retention policy",
		Key:     fileKey,
	}
}

// RetentionPeriodCannotDecrease reports a policy update that would shorten
// the retention period.
func RetentionPeriodCannotDecrease(key string, current, requested uint64) *Error {
	return &Error{
		Code:    CodeRetentionPeriodCannotDecrease,
		Message: fmt.Sprintf("requested retention period of %d seconds is less than the existing period of %d seconds", requested, current),
		Key:     key,
	}
}

// Forbidden reports an authorization denial.
func Forbidden(format string, args ...any) *Error {
	return &Error{Code: CodeForbidden, Message: fmt.Sprintf(format, args...)}
}

// BackendUnavailable wraps a collaborator failure.
func BackendUnavailable(cause error, format string, args ...any) *Error {
	return &Error{Code: CodeBackendUnavailable, Message: fmt.Sprintf(format, args...), Cause: cause}
}
