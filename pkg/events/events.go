// Package events defines the outbound notification payloads published
// when workflow state changes. Delivery (chat-bot messages, push) is an
// external collaborator consuming these from the bus.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/ebarkov/veriflow/pkg/models"
)

type EventType string

const Topic = "veriflow.notifications"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	DocumentCreatedEvent   EventType = "document.created"
	TaskAssignedEvent      EventType = "task.assigned"
	TaskDecidedEvent       EventType = "task.decided"
	DocumentRejectedEvent  EventType = "document.rejected"
	ExecutionAssignedEvent EventType = "execution.assigned"
	ExecutionAdvancedEvent EventType = "execution.advanced"
	DocumentExecutedEvent  EventType = "document.executed"
	AuditStartedEvent      EventType = "audit.started"
	AuditClosedEvent       EventType = "audit.closed"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	DocumentID int64     `json:"document_id,omitempty"`
}

func newBase(eventType EventType, documentID int64) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		DocumentID: documentID,
	}
}

type DocumentCreated struct {
	BaseEvent

	Title       string `json:"title"`
	AuthorID    int64  `json:"author_id"`
	RecipientID int64  `json:"recipient_id"`
}

func (e DocumentCreated) GetType() EventType {
	return DocumentCreatedEvent
}

func NewDocumentCreated(doc *models.Document) DocumentCreated {
	return DocumentCreated{
		BaseEvent:   newBase(DocumentCreatedEvent, doc.ID),
		Title:       doc.Title,
		AuthorID:    doc.AuthorID,
		RecipientID: doc.RecipientID,
	}
}

type TaskAssigned struct {
	BaseEvent

	TaskID     int64             `json:"task_id"`
	Step       int               `json:"step"`
	AssigneeID int64             `json:"assignee_id"`
	Action     models.TaskAction `json:"action"`
}

func (e TaskAssigned) GetType() EventType {
	return TaskAssignedEvent
}

func NewTaskAssigned(doc *models.Document, task *models.Task) TaskAssigned {
	return TaskAssigned{
		BaseEvent:  newBase(TaskAssignedEvent, doc.ID),
		TaskID:     task.ID,
		Step:       task.Step,
		AssigneeID: task.AssigneeID,
		Action:     task.Action,
	}
}

type TaskDecided struct {
	BaseEvent

	TaskID  int64             `json:"task_id"`
	Step    int               `json:"step"`
	Status  models.TaskStatus `json:"status"`
	ActorID int64             `json:"actor_id"`
}

func (e TaskDecided) GetType() EventType {
	return TaskDecidedEvent
}

func NewTaskDecided(doc *models.Document, task *models.Task, actorID int64) TaskDecided {
	return TaskDecided{
		BaseEvent: newBase(TaskDecidedEvent, doc.ID),
		TaskID:    task.ID,
		Step:      task.Step,
		Status:    task.Status,
		ActorID:   actorID,
	}
}

type DocumentRejected struct {
	BaseEvent

	Step    int   `json:"step"`
	ActorID int64 `json:"actor_id"`
}

func (e DocumentRejected) GetType() EventType {
	return DocumentRejectedEvent
}

func NewDocumentRejected(doc *models.Document, step int, actorID int64) DocumentRejected {
	return DocumentRejected{
		BaseEvent: newBase(DocumentRejectedEvent, doc.ID),
		Step:      step,
		ActorID:   actorID,
	}
}

type ExecutionAssigned struct {
	BaseEvent

	AssigneeIDs []int64 `json:"assignee_ids"`
}

func (e ExecutionAssigned) GetType() EventType {
	return ExecutionAssignedEvent
}

func NewExecutionAssigned(doc *models.Document) ExecutionAssigned {
	ids := make([]int64, 0, len(doc.Assignments))
	for _, assignment := range doc.Assignments {
		ids = append(ids, assignment.AssigneeID)
	}

	return ExecutionAssigned{
		BaseEvent:   newBase(ExecutionAssignedEvent, doc.ID),
		AssigneeIDs: ids,
	}
}

type ExecutionAdvanced struct {
	BaseEvent

	AssignmentID int64                  `json:"assignment_id"`
	AssigneeID   int64                  `json:"assignee_id"`
	Status       models.ExecutionStatus `json:"status"`
}

func (e ExecutionAdvanced) GetType() EventType {
	return ExecutionAdvancedEvent
}

func NewExecutionAdvanced(doc *models.Document, assignment *models.ExecutionAssignment) ExecutionAdvanced {
	return ExecutionAdvanced{
		BaseEvent:    newBase(ExecutionAdvancedEvent, doc.ID),
		AssignmentID: assignment.ID,
		AssigneeID:   assignment.AssigneeID,
		Status:       assignment.Status,
	}
}

type DocumentExecuted struct {
	BaseEvent
}

func (e DocumentExecuted) GetType() EventType {
	return DocumentExecutedEvent
}

func NewDocumentExecuted(doc *models.Document) DocumentExecuted {
	return DocumentExecuted{BaseEvent: newBase(DocumentExecutedEvent, doc.ID)}
}

type AuditStarted struct {
	BaseEvent

	SessionID int64            `json:"session_id"`
	AuditType models.AuditType `json:"audit_type"`
}

func (e AuditStarted) GetType() EventType {
	return AuditStartedEvent
}

func NewAuditStarted(session *models.AuditSession) AuditStarted {
	return AuditStarted{
		BaseEvent: newBase(AuditStartedEvent, 0),
		SessionID: session.ID,
		AuditType: session.Type,
	}
}

type AuditClosed struct {
	BaseEvent

	SessionID int64 `json:"session_id"`
}

func (e AuditClosed) GetType() EventType {
	return AuditClosedEvent
}

func NewAuditClosed(session *models.AuditSession) AuditClosed {
	return AuditClosed{
		BaseEvent: newBase(AuditClosedEvent, 0),
		SessionID: session.ID,
	}
}
