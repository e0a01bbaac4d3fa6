package models

import "time"

// ExecutionStatus is the state of one post-approval execution assignment.
type ExecutionStatus string

const (
	ExecutionStatusPending    ExecutionStatus = "pending"
	ExecutionStatusViewed     ExecutionStatus = "viewed"
	ExecutionStatusInProgress ExecutionStatus = "in_progress"
	ExecutionStatusCompleted  ExecutionStatus = "completed"
)

// executionTransitions is the allowed-next table. Transitions are
// strictly forward; completed is terminal.
var executionTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionStatusPending:    {ExecutionStatusViewed, ExecutionStatusInProgress, ExecutionStatusCompleted},
	ExecutionStatusViewed:     {ExecutionStatusInProgress, ExecutionStatusCompleted},
	ExecutionStatusInProgress: {ExecutionStatusCompleted},
	ExecutionStatusCompleted:  {},
}

// IsValid reports whether s is a known execution status.
func (s ExecutionStatus) IsValid() bool {
	_, ok := executionTransitions[s]
	return ok
}

// CanTransitionTo reports whether next is in the allowed-next set for s.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	for _, allowed := range executionTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// ExecutionAssignment tracks one executor's independent progress on an
// approved document. One row per (document, assignee).
type ExecutionAssignment struct {
	ID         int64           `json:"id"`
	DocumentID int64           `json:"document_id"`
	AssigneeID int64           `json:"assignee_id"`
	Status     ExecutionStatus `json:"status"`
	Deadline   *time.Time      `json:"deadline,omitempty"`
	Comment    string          `json:"comment,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
