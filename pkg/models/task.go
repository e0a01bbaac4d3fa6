package models

import "time"

// TaskAction is the nature of the decision a step expects from its assignee.
type TaskAction string

const (
	TaskActionApprove TaskAction = "approve"
	TaskActionSign    TaskAction = "sign"
	TaskActionReview  TaskAction = "review"
)

// IsValid reports whether a is a known task action.
func (a TaskAction) IsValid() bool {
	return a == TaskActionApprove || a == TaskActionSign || a == TaskActionReview
}

// TaskStatus is the per-step state. Every state other than pending is
// terminal: a decision is applied exactly once and is not revocable.
type TaskStatus string

const (
	TaskStatusPending  TaskStatus = "pending"
	TaskStatusApproved TaskStatus = "approved"
	TaskStatusRejected TaskStatus = "rejected"
	TaskStatusSkipped  TaskStatus = "skipped"
)

// IsTerminal reports whether s admits no further transition.
func (s TaskStatus) IsTerminal() bool {
	return s != TaskStatusPending
}

// Task is one ordered approval step of a document. Step 0 is the
// initiator's step and is created pre-approved; steps are assigned
// monotonically at creation and never change.
type Task struct {
	ID               int64      `json:"id"`
	DocumentID       int64      `json:"document_id"`
	Step             int        `json:"step"`
	AssigneeID       int64      `json:"assignee_id"`
	Action           TaskAction `json:"action"`
	Status           TaskStatus `json:"status"`
	Instruction      string     `json:"instruction,omitempty"`
	CanSkip          bool       `json:"can_skip"`
	CommentRequired  bool       `json:"comment_required"`
	VisibleAfterStep int        `json:"visible_after_step"`
	Comment          string     `json:"comment,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// ActionableAt reports whether the task can accept a decision when the
// document cursor sits at currentStep. Visibility is the authoritative
// gate: later steps stay invisible even to their own assignee.
func (t *Task) ActionableAt(currentStep int) bool {
	return t.Status == TaskStatusPending && currentStep >= t.VisibleAfterStep
}
