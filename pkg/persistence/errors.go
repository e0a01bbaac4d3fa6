// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrDocumentNotFound indicates a document was not found by the given identifier.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrTaskNotFound indicates a task was not found by the given identifier.
	ErrTaskNotFound = errors.New("task not found")

	// ErrAssignmentNotFound indicates an execution assignment was not found.
	ErrAssignmentNotFound = errors.New("execution assignment not found")

	// ErrUserNotFound indicates a user was not found by the given identifier.
	ErrUserNotFound = errors.New("user not found")

	// ErrAuditSessionNotFound indicates an audit session was not found.
	ErrAuditSessionNotFound = errors.New("audit session not found")

	// ErrAuditSessionActive indicates an audit session is already active.
	ErrAuditSessionActive = errors.New("audit session already active")

	// ErrInvalidSortField indicates an unsupported sort field was requested.
	ErrInvalidSortField = errors.New("invalid sort field")
)

// DocumentError wraps document-related errors with operation context.
type DocumentError struct {
	Op         string // Operation being performed (e.g., "Create", "Update")
	DocumentID int64  // Document ID if applicable
	Err        error  // Underlying error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("%s operation failed for document %d: %v", e.Op, e.DocumentID, e.Err)
}

func (e *DocumentError) Unwrap() error {
	return e.Err
}

func (e *DocumentError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewDocumentError creates a new document error with context.
func NewDocumentError(op string, documentID int64, err error) *DocumentError {
	return &DocumentError{
		Op:         op,
		DocumentID: documentID,
		Err:        err,
	}
}

// IsDocumentNotFound checks if an error indicates a document was not found.
func IsDocumentNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound)
}

// IsTaskNotFound checks if an error indicates a task was not found.
func IsTaskNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}

// IsAssignmentNotFound checks if an error indicates an assignment was not found.
func IsAssignmentNotFound(err error) bool {
	return errors.Is(err, ErrAssignmentNotFound)
}

// IsUserNotFound checks if an error indicates a user was not found.
func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// IsAuditSessionNotFound checks if an error indicates an audit session was not found.
func IsAuditSessionNotFound(err error) bool {
	return errors.Is(err, ErrAuditSessionNotFound)
}

// IsAuditSessionActive checks if an error indicates a session is already active.
func IsAuditSessionActive(err error) bool {
	return errors.Is(err, ErrAuditSessionActive)
}

// IsInvalidSortField checks if an error indicates an unsupported sort field.
func IsInvalidSortField(err error) bool {
	return errors.Is(err, ErrInvalidSortField)
}
