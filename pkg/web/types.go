// Package web provides HTTP request and response types for the document
// workflow API.
package web

import (
	"time"

	"github.com/ebarkov/veriflow/pkg/models"
)

// StageRequest is one ordered approval step in a creation request.
type StageRequest struct {
	AssigneeID      int64  `json:"assignee_id"                validate:"required,min=1"`
	Action          string `json:"action"                     validate:"required,oneof=approve sign review"`
	Instruction     string `json:"instruction,omitempty"`
	CanSkip         bool   `json:"can_skip"`
	CommentRequired bool   `json:"comment_required"`
}

// CreateDocumentRequest represents the request body for routing a new document.
type CreateDocumentRequest struct {
	Title              string         `json:"title"                         validate:"required,min=3"`
	Body               string         `json:"body"`
	RecipientID        int64          `json:"recipient_id"                  validate:"required,min=1"`
	ResponsibleID      *int64         `json:"responsible_id,omitempty"      validate:"omitempty,min=1"`
	Stages             []StageRequest `json:"stages"                        validate:"required,min=1,dive"`
	Watchers           []int64        `json:"watchers,omitempty"            validate:"omitempty,dive,min=1"`
	ExecutionAssignees []int64        `json:"execution_assignees,omitempty" validate:"omitempty,dive,min=1"`
	ExecutionNotes     string         `json:"execution_notes,omitempty"`
}

// DecisionRequest represents the request body for deciding a task.
type DecisionRequest struct {
	Decision string `json:"decision"          validate:"required,oneof=complete skip reject"`
	Comment  string `json:"comment,omitempty"`
}

// AssignmentRequest is one requested executor in a bulk assignment.
type AssignmentRequest struct {
	AssigneeID int64      `json:"assignee_id"        validate:"required,min=1"`
	Deadline   *time.Time `json:"deadline,omitempty"`
	Comment    string     `json:"comment,omitempty"`
}

// SetAssignmentsRequest represents the request body for replacing a
// document's executor set.
type SetAssignmentsRequest struct {
	Assignments []AssignmentRequest `json:"assignments"     validate:"required,min=1,dive"`
	Notes       string              `json:"notes,omitempty"`
}

// AdvanceAssignmentRequest represents the request body for moving one
// assignment forward.
type AdvanceAssignmentRequest struct {
	AssignmentID int64  `json:"assignment_id"     validate:"required,min=1"`
	Status       string `json:"status"            validate:"required,oneof=viewed in_progress completed"`
	Comment      string `json:"comment,omitempty"`
}

// StartAuditRequest represents the request body for opening an audit session.
type StartAuditRequest struct {
	Type        string `json:"type"                   validate:"required,oneof=scheduled unscheduled internal supplier"`
	AuditorOrg  string `json:"auditor_org,omitempty"`
	AuditorName string `json:"auditor_name,omitempty"`
	Comment     string `json:"comment,omitempty"`
}

// CloseAuditRequest represents the request body for closing the active session.
type CloseAuditRequest struct {
	Comment string `json:"comment,omitempty"`
}

// TrailResponse wraps a session's tagged writes.
type TrailResponse struct {
	SessionID int64                     `json:"session_id"`
	Entries   []*models.AuditTrailEntry `json:"entries"`
}
