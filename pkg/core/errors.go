package core

import (
	"errors"
	"fmt"
)

// ErrorClass classifies a failure so drivers can tell authoring bugs apart from
// rejected values.
type ErrorClass string

const (
	// ErrorClassContract indicates a programmer error in search-space or
	// combinator authoring: double assignment, malformed rewrite functions,
	// connecting an input twice, non-positive counts.
	ErrorClassContract ErrorClass = "contract"

	// ErrorClassDomain indicates a hyperparameter value outside its domain.
	ErrorClassDomain ErrorClass = "domain"

	// ErrorClassTraversal indicates a graph that cannot be finalized or run,
	// e.g. one that still contains pending substitution modules.
	ErrorClassTraversal ErrorClass = "traversal"
)

// Error is a classified failure raised by the graph model.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Module is the name of the module involved, if any.
	Module string `json:"module,omitempty"`

	// Hyperparameter is the name of the hyperparameter involved, if any.
	Hyperparameter string `json:"hyperparameter,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Module != "" && e.Hyperparameter != "" {
		msg = fmt.Sprintf("%s (module=%s, hyperparameter=%s)", msg, e.Module, e.Hyperparameter)
	} else if e.Module != "" {
		msg = fmt.Sprintf("%s (module=%s)", msg, e.Module)
	} else if e.Hyperparameter != "" {
		msg = fmt.Sprintf("%s (hyperparameter=%s)", msg, e.Hyperparameter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewContractError creates a new contract violation.
func NewContractError(message string, err error) *Error {
	return &Error{Class: ErrorClassContract, Message: message, Err: err}
}

// NewDomainError creates a new domain violation.
func NewDomainError(message string, err error) *Error {
	return &Error{Class: ErrorClassDomain, Message: message, Err: err}
}

// NewTraversalError creates a new traversal error.
func NewTraversalError(message string, err error) *Error {
	return &Error{Class: ErrorClassTraversal, Message: message, Err: err}
}

// WithModule adds module context to an error.
func (e *Error) WithModule(name string) *Error {
	e.Module = name
	return e
}

// WithHyperparameter adds hyperparameter context to an error.
func (e *Error) WithHyperparameter(name string) *Error {
	e.Hyperparameter = name
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsContract returns true if the error is classified as a contract violation.
func IsContract(err error) bool {
	return hasClass(err, ErrorClassContract)
}

// IsDomain returns true if the error is classified as a domain violation.
func IsDomain(err error) bool {
	return hasClass(err, ErrorClassDomain)
}

// IsTraversal returns true if the error is classified as a traversal error.
func IsTraversal(err error) bool {
	return hasClass(err, ErrorClassTraversal)
}

// CodeOf returns the code of the first classified error in the chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func hasClass(err error, class ErrorClass) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// Error codes.
const (
	ErrCodeInvalidPort            = "INVALID_PORT"
	ErrCodeScopeMismatch          = "SCOPE_MISMATCH"
	ErrCodeStaleScope             = "STALE_SCOPE"
	ErrCodeAlreadyConnected       = "ALREADY_CONNECTED"
	ErrCodeNotConnected           = "NOT_CONNECTED"
	ErrCodeAlreadyAssigned        = "ALREADY_ASSIGNED"
	ErrCodeDependentAssign        = "DEPENDENT_ASSIGN"
	ErrCodeOutOfDomain            = "OUT_OF_DOMAIN"
	ErrCodeDuplicatePort          = "DUPLICATE_PORT"
	ErrCodePortMismatch           = "PORT_MISMATCH"
	ErrCodeSubstitutionUnresolved = "SUBSTITUTION_NOT_RESOLVED"
	ErrCodeNonPositiveCount       = "NON_POSITIVE_COUNT"
	ErrCodeIndexOutOfRange        = "INDEX_OUT_OF_RANGE"
	ErrCodeBadValue               = "BAD_VALUE"
	ErrCodeUnresolvedSubstitution = "UNRESOLVED_SUBSTITUTION"
	ErrCodeUnassigned             = "UNASSIGNED"
	ErrCodeUnresolvedInput        = "UNRESOLVED_INPUT"
	ErrCodeCycle                  = "CYCLE"
	ErrCodeNotCompiled            = "NOT_COMPILED"
	ErrCodeInternal               = "INTERNAL_ERROR"
)
