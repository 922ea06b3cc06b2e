// Package reacherr provides the strict error taxonomy shared by every
// subsystem of the core. Every error value that crosses a component
// boundary (Journal, Permission, Tool Runtime, Kernel) is a *reacherr.Error
// with one of the codes defined here — handlers never let raw errors
// escape past the runtime boundary unclassified.
package reacherr

import "fmt"

// Code is a stable, machine-readable error classifier propagated in
// journal events and returned to callers.
type Code string

const (
	// Integrity
	CodeJournalHashMismatch Code = "JOURNAL_HASH_MISMATCH"
	CodeJournalIOError      Code = "JOURNAL_IO_ERROR"
	CodeJournalFull         Code = "JOURNAL_FULL"

	// Validation
	CodeInputValidationFailed  Code = "INPUT_VALIDATION_FAILED"
	CodeOutputValidationFailed Code = "OUTPUT_VALIDATION_FAILED"
	CodeInvalidEvent           Code = "INVALID_EVENT"
	CodeInvalidManifest        Code = "INVALID_MANIFEST"

	// Authorization
	CodePermissionDenied       Code = "PERMISSION_DENIED"
	CodeDelegationOutOfBounds  Code = "DELEGATION_OUT_OF_BOUNDS"
	CodeSignatureInvalid       Code = "SIGNATURE_INVALID"

	// Policy
	CodePolicyPathDenied     Code = "POLICY_PATH_DENIED"
	CodePolicyCommandDenied  Code = "POLICY_COMMAND_DENIED"
	CodePolicyEndpointDenied Code = "POLICY_ENDPOINT_DENIED"
	CodeSSRF                 Code = "SSRF"
	CodeSensitiveFileDenied  Code = "SENSITIVE_FILE_DENIED"
	CodeDryRunPolicyViolation Code = "DRY_RUN_POLICY_VIOLATION"

	// Execution
	CodeToolNotFound   Code = "TOOL_NOT_FOUND"
	CodeCircuitOpen    Code = "CIRCUIT_OPEN"
	CodeTimeout        Code = "TIMEOUT"
	CodeExecutionError Code = "EXECUTION_ERROR"

	// Budget
	CodeLimitExceeded Code = "LIMIT_EXCEEDED"

	// Plan
	CodePlannerEmptyInitial  Code = "PLANNER_EMPTY_INITIAL"
	CodePlannerEmptyContinue Code = "PLANNER_EMPTY_CONTINUE"
	CodePlannerError         Code = "PLANNER_ERROR"

	// General
	CodeUnknown  Code = "UNKNOWN_ERROR"
	CodeInternal Code = "INTERNAL_ERROR"
)

// Category returns the subsystem grouping for a code, used to decide
// whether a failure is session-fatal (see Code.SessionFatal).
func (c Code) Category() string {
	switch c {
	case CodeJournalHashMismatch, CodeJournalIOError, CodeJournalFull:
		return "integrity"
	case CodeInputValidationFailed, CodeOutputValidationFailed, CodeInvalidEvent, CodeInvalidManifest:
		return "validation"
	case CodePermissionDenied, CodeDelegationOutOfBounds, CodeSignatureInvalid:
		return "authorization"
	case CodePolicyPathDenied, CodePolicyCommandDenied, CodePolicyEndpointDenied, CodeSSRF, CodeSensitiveFileDenied, CodeDryRunPolicyViolation:
		return "policy"
	case CodeToolNotFound, CodeCircuitOpen, CodeTimeout, CodeExecutionError:
		return "execution"
	case CodeLimitExceeded:
		return "budget"
	case CodePlannerEmptyInitial, CodePlannerEmptyContinue, CodePlannerError:
		return "plan"
	default:
		return "general"
	}
}

// IsRetryable reports whether a step carrying this code is a reasonable
// candidate for the step's retry failure policy.
func (c Code) IsRetryable() bool {
	switch c {
	case CodeTimeout, CodeCircuitOpen, CodeExecutionError:
		return true
	default:
		return false
	}
}

// SessionFatal reports whether this code always terminates the owning
// session regardless of the step's failure_policy (spec.md §7:
// "Session-fatal classes: JOURNAL_*, LIMIT_EXCEEDED, PLANNER_EMPTY_INITIAL").
func (c Code) SessionFatal() bool {
	switch c.Category() {
	case "integrity":
		return true
	}
	switch c {
	case CodeLimitExceeded, CodePlannerEmptyInitial:
		return true
	}
	return false
}

// AllCodes returns every defined code, for documentation/validation use.
func AllCodes() []Code {
	return []Code{
		CodeJournalHashMismatch, CodeJournalIOError, CodeJournalFull,
		CodeInputValidationFailed, CodeOutputValidationFailed, CodeInvalidEvent, CodeInvalidManifest,
		CodePermissionDenied, CodeDelegationOutOfBounds, CodeSignatureInvalid,
		CodePolicyPathDenied, CodePolicyCommandDenied, CodePolicyEndpointDenied, CodeSSRF, CodeSensitiveFileDenied, CodeDryRunPolicyViolation,
		CodeToolNotFound, CodeCircuitOpen, CodeTimeout, CodeExecutionError,
		CodeLimitExceeded,
		CodePlannerEmptyInitial, CodePlannerEmptyContinue, CodePlannerError,
		CodeUnknown, CodeInternal,
	}
}

// Error is the error type every subsystem boundary returns.
type Error struct {
	Code    Code
	Message string
	Cause   error
	// Details carries structured context (schema error strings, the
	// denied scope names, the limit dimension that fired) without
	// forcing every caller to parse Message.
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error with no cause or details.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an Error carrying an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithDetails returns a copy of e with Details set.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// Is supports errors.Is by comparing codes — two *Error values with the
// same Code are considered equal regardless of Message/Cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// CodeOf extracts the Code from err if it is (or wraps) a *Error,
// otherwise returns CodeUnknown.
func CodeOf(err error) Code {
	var re *Error
	if as(err, &re) {
		return re.Code
	}
	return CodeUnknown
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
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
