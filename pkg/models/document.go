// Package models defines the core domain types for document routing:
// documents, approval tasks, execution assignments and audit sessions.
package models

import (
	"slices"
	"time"
)

// DocumentStatus represents the lifecycle state of a routed document.
type DocumentStatus string

const (
	DocumentStatusDraft       DocumentStatus = "draft"        // Saved but not yet routed
	DocumentStatusInProgress  DocumentStatus = "in_progress"  // Approval chain running
	DocumentStatusInExecution DocumentStatus = "in_execution" // Chain resolved, executors working
	DocumentStatusExecuted    DocumentStatus = "executed"     // All execution assignments completed
	DocumentStatusApproved    DocumentStatus = "approved"     // Chain resolved, nothing to execute
	DocumentStatusRejected    DocumentStatus = "rejected"     // Some step rejected, chain frozen
)

// IsValid reports whether s is a known document status.
func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentStatusDraft, DocumentStatusInProgress, DocumentStatusInExecution,
		DocumentStatusExecuted, DocumentStatusApproved, DocumentStatusRejected:
		return true
	}

	return false
}

// IsTerminal reports whether no further workflow mutation can change s.
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusExecuted || s == DocumentStatusApproved || s == DocumentStatusRejected
}

// Document is the aggregate root of the workflow engine. It owns the
// ordered approval tasks, the optional execution fan-out and the watcher
// set, plus the current-step cursor that gates task visibility.
type Document struct {
	ID             int64                  `json:"id"`
	Title          string                 `json:"title"          validate:"required,min=3"`
	Body           string                 `json:"body"`
	AuthorID       int64                  `json:"author_id"      validate:"required"`
	RecipientID    int64                  `json:"recipient_id"   validate:"required"`
	ResponsibleID  *int64                 `json:"responsible_id,omitempty"`
	Status         DocumentStatus         `json:"status"`
	CurrentStep    int                    `json:"current_step"`
	ExecutionNotes string                 `json:"execution_notes,omitempty"`
	Tasks          []*Task                `json:"tasks"`
	Assignments    []*ExecutionAssignment `json:"assignments,omitempty"`
	Watchers       []int64                `json:"watchers,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// TaskByID returns the owned task with the given id, or nil.
func (d *Document) TaskByID(id int64) *Task {
	for _, t := range d.Tasks {
		if t.ID == id {
			return t
		}
	}

	return nil
}

// TaskAtStep returns the task at the given step, or nil.
func (d *Document) TaskAtStep(step int) *Task {
	for _, t := range d.Tasks {
		if t.Step == step {
			return t
		}
	}

	return nil
}

// LastStep returns the highest step number in the approval chain.
func (d *Document) LastStep() int {
	last := 0
	for _, t := range d.Tasks {
		if t.Step > last {
			last = t.Step
		}
	}

	return last
}

// ChainResolved reports whether every approval step past the initiator
// has reached a terminal state.
func (d *Document) ChainResolved() bool {
	for _, t := range d.Tasks {
		if t.Step > 0 && t.Status == TaskStatusPending {
			return false
		}
	}

	return true
}

// AssignmentByID returns the owned execution assignment with the given id, or nil.
func (d *Document) AssignmentByID(id int64) *ExecutionAssignment {
	for _, a := range d.Assignments {
		if a.ID == id {
			return a
		}
	}

	return nil
}

// AssignmentFor returns the execution assignment held by the given user, or nil.
func (d *Document) AssignmentFor(userID int64) *ExecutionAssignment {
	for _, a := range d.Assignments {
		if a.AssigneeID == userID {
			return a
		}
	}

	return nil
}

// IsParticipant reports whether the user manages this document: its
// author, recipient or responsible party.
func (d *Document) IsParticipant(userID int64) bool {
	if d.AuthorID == userID || d.RecipientID == userID {
		return true
	}

	return d.ResponsibleID != nil && *d.ResponsibleID == userID
}

// ReferencedUserIDs returns every user id the document points at,
// de-duplicated, for existence validation.
func (d *Document) ReferencedUserIDs() []int64 {
	ids := []int64{d.AuthorID, d.RecipientID}
	if d.ResponsibleID != nil {
		ids = append(ids, *d.ResponsibleID)
	}

	for _, t := range d.Tasks {
		ids = append(ids, t.AssigneeID)
	}

	for _, a := range d.Assignments {
		ids = append(ids, a.AssigneeID)
	}

	ids = append(ids, d.Watchers...)

	slices.Sort(ids)

	return slices.Compact(ids)
}
