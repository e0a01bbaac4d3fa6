// Package services implements the document workflow engine: the approval
// chain, the execution fan-out and the audit mode guard.
package services

import (
	"errors"
	"fmt"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest   = errors.New("invalid request")
	ErrEmptyStages      = errors.New("document must have at least one stage")
	ErrEmptyAssignments = errors.New("assignment list cannot be empty")
	ErrInvalidAction    = errors.New("invalid task action")
	ErrInvalidDecision  = errors.New("invalid task decision")
	ErrInvalidStatus    = errors.New("invalid status value")
	ErrInvalidAuditType = errors.New("invalid audit type")
	ErrCommentRequired  = errors.New("a comment is required for this decision")
	ErrCannotSkip       = errors.New("this step does not allow skipping")
	ErrUnknownUsers     = errors.New("referenced users do not exist")
	ErrChainNotResolved = errors.New("approval chain is not resolved yet")
	ErrInvalidImport    = errors.New("import payload failed schema validation")
	ErrInvalidSortField = errors.New("invalid sort field")
	ErrInvalidSortOrder = errors.New("invalid sort order")

	// Authorization errors (403 Forbidden).
	ErrNotAssignee   = errors.New("caller is not the assignee")
	ErrNotAuthorized = errors.New("caller is not authorized for this operation")

	// Transition errors (400, named states).
	ErrTaskNotActionable = errors.New("task is not actionable at the current step")
	ErrDocumentFrozen    = errors.New("document accepts no further decisions")

	// Audit guard (423 Locked).
	ErrAuditLocked = errors.New("operation rejected: audit mode is active")

	// Conflicts (409).
	ErrAuditAlreadyActive = errors.New("an audit session is already active")
)

// IllegalTransitionError names the current and requested states of a
// rejected state change, as surfaced to the caller.
type IllegalTransitionError struct {
	Entity    string
	Current   string
	Requested string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal %s transition: %s -> %s", e.Entity, e.Current, e.Requested)
}

// NewIllegalTransition creates an illegal transition error.
func NewIllegalTransition(entity, current, requested string) *IllegalTransitionError {
	return &IllegalTransitionError{Entity: entity, Current: current, Requested: requested}
}

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrEmptyStages) ||
		errors.Is(err, ErrEmptyAssignments) ||
		errors.Is(err, ErrInvalidAction) ||
		errors.Is(err, ErrInvalidDecision) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidAuditType) ||
		errors.Is(err, ErrCommentRequired) ||
		errors.Is(err, ErrCannotSkip) ||
		errors.Is(err, ErrUnknownUsers) ||
		errors.Is(err, ErrChainNotResolved) ||
		errors.Is(err, ErrInvalidImport) ||
		errors.Is(err, ErrInvalidSortField) ||
		errors.Is(err, ErrInvalidSortOrder)
}

// IsAuthorizationError checks if an error should return HTTP 403.
func IsAuthorizationError(err error) bool {
	return errors.Is(err, ErrNotAssignee) || errors.Is(err, ErrNotAuthorized)
}

// IsIllegalTransition checks if an error is a rejected state change.
func IsIllegalTransition(err error) bool {
	var transitionErr *IllegalTransitionError

	return errors.As(err, &transitionErr) ||
		errors.Is(err, ErrTaskNotActionable) ||
		errors.Is(err, ErrDocumentFrozen)
}

// IsAuditLocked checks if an error is an audit mode rejection.
func IsAuditLocked(err error) bool {
	return errors.Is(err, ErrAuditLocked)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrAuditAlreadyActive)
}
