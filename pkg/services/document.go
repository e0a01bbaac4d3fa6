package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ebarkov/veriflow/pkg/eventbus"
	"github.com/ebarkov/veriflow/pkg/events"
	"github.com/ebarkov/veriflow/pkg/models"
	"github.com/ebarkov/veriflow/pkg/otelhelper"
	"github.com/ebarkov/veriflow/pkg/persistence"
)

// Document runs the approval chain: document creation with materialized
// tasks, and task decisions that move the current-step cursor.
type Document struct {
	persistence persistence.Persistence
	audit       *Audit
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewDocument creates a new document workflow service.
func NewDocument(
	persistence persistence.Persistence,
	audit *Audit,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	tracer trace.Tracer,
) *Document {
	return &Document{
		persistence: persistence,
		audit:       audit,
		publisher:   publisher,
		logger:      logger,
		tracer:      tracer,
	}
}

// HealthCheck checks the health of the persistence layer.
func (d *Document) HealthCheck(ctx context.Context) (string, bool) {
	if d.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := d.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// StageDefinition is one ordered approval step supplied at creation time.
type StageDefinition struct {
	AssigneeID      int64
	Action          models.TaskAction
	Instruction     string
	CanSkip         bool
	CommentRequired bool
}

// CreateDocumentRequest carries everything needed to route a document in
// one atomic operation.
type CreateDocumentRequest struct {
	ActorID            int64
	Title              string
	Body               string
	RecipientID        int64
	ResponsibleID      *int64
	Stages             []StageDefinition
	Watchers           []int64
	ExecutionAssignees []int64
	ExecutionNotes     string
}

// Create materializes the document with its full approval chain. Every
// referenced user is validated as one set before any write; the whole
// construction is one all-or-nothing persistence call.
func (d *Document) Create(ctx context.Context, req CreateDocumentRequest) (*models.Document, error) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "document.create",
		attribute.Int64(otelhelper.ActorIDKey, req.ActorID))
	defer span.End()

	if len(req.Stages) == 0 {
		return nil, ErrEmptyStages
	}

	for _, stage := range req.Stages {
		if !stage.Action.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAction, stage.Action)
		}
	}

	doc := d.buildDocument(req)

	err := d.validateReferences(ctx, doc)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	err = d.persistence.Documents().Create(ctx, doc)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	span.SetAttributes(attribute.Int64(otelhelper.DocumentIDKey, doc.ID))

	d.audit.Tag(ctx, req.ActorID, "document.create", "document", doc.ID)

	d.notify(ctx, doc.ID, events.NewDocumentCreated(doc))

	if first := doc.TaskAtStep(1); first != nil {
		d.notify(ctx, doc.ID, events.NewTaskAssigned(doc, first))
	}

	return doc, nil
}

// buildDocument assembles the aggregate: pre-approved step 0 for the
// author, one pending task per stage gated on the previous step,
// de-duplicated watchers without the author, and pending assignments.
func (d *Document) buildDocument(req CreateDocumentRequest) *models.Document {
	now := time.Now().UTC()

	doc := &models.Document{
		Title:          strings.TrimSpace(req.Title),
		Body:           req.Body,
		AuthorID:       req.ActorID,
		RecipientID:    req.RecipientID,
		ResponsibleID:  req.ResponsibleID,
		Status:         models.DocumentStatusInProgress,
		CurrentStep:    1,
		ExecutionNotes: req.ExecutionNotes,
	}

	doc.Tasks = append(doc.Tasks, &models.Task{
		Step:        0,
		AssigneeID:  req.ActorID,
		Action:      models.TaskActionApprove,
		Status:      models.TaskStatusApproved,
		CompletedAt: &now,
	})

	for i, stage := range req.Stages {
		doc.Tasks = append(doc.Tasks, &models.Task{
			Step:             i + 1,
			AssigneeID:       stage.AssigneeID,
			Action:           stage.Action,
			Status:           models.TaskStatusPending,
			Instruction:      stage.Instruction,
			CanSkip:          stage.CanSkip,
			CommentRequired:  stage.CommentRequired,
			VisibleAfterStep: i,
		})
	}

	watchers := make([]int64, 0, len(req.Watchers))
	for _, watcher := range req.Watchers {
		if watcher != req.ActorID && !slices.Contains(watchers, watcher) {
			watchers = append(watchers, watcher)
		}
	}

	doc.Watchers = watchers

	for _, assignee := range req.ExecutionAssignees {
		if doc.AssignmentFor(assignee) == nil {
			doc.Assignments = append(doc.Assignments, &models.ExecutionAssignment{
				AssigneeID: assignee,
				Status:     models.ExecutionStatusPending,
			})
		}
	}

	return doc
}

// validateReferences checks every referenced user id in one set-difference query.
func (d *Document) validateReferences(ctx context.Context, doc *models.Document) error {
	missing, err := d.persistence.Users().MissingIDs(ctx, doc.ReferencedUserIDs())
	if err != nil {
		return fmt.Errorf("failed to validate user references: %w", err)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrUnknownUsers, missing)
	}

	return nil
}

// TaskDecision is the outcome an assignee submits for their step.
type TaskDecision string

const (
	TaskDecisionComplete TaskDecision = "complete"
	TaskDecisionSkip     TaskDecision = "skip"
	TaskDecisionReject   TaskDecision = "reject"
)

// DecideTaskRequest applies one assignee decision to a task.
type DecideTaskRequest struct {
	ActorID  int64
	TaskID   int64
	Decision TaskDecision
	Comment  string
}

// Decide applies a task decision per the chain rules. The actionability
// check runs inside the same transaction that writes the outcome, so of
// two racing decisions the first commit wins and the second is rejected.
func (d *Document) Decide(ctx context.Context, req DecideTaskRequest) (*models.Document, error) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "document.decide",
		attribute.Int64(otelhelper.TaskIDKey, req.TaskID),
		attribute.Int64(otelhelper.ActorIDKey, req.ActorID))
	defer span.End()

	if req.Decision != TaskDecisionComplete && req.Decision != TaskDecisionSkip && req.Decision != TaskDecisionReject {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecision, req.Decision)
	}

	actor, err := d.persistence.Users().GetByID(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}

	located, err := d.persistence.Documents().FindByTaskID(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}

	var decided *models.Task

	var rejected bool

	doc, err := d.persistence.Documents().Update(ctx, located.ID, func(doc *models.Document) error {
		task := doc.TaskByID(req.TaskID)
		if task == nil {
			return fmt.Errorf("task %d: %w", req.TaskID, persistence.ErrTaskNotFound)
		}

		err := d.applyDecision(doc, task, actor, req)
		if err != nil {
			return err
		}

		decided = task
		rejected = task.Status == models.TaskStatusRejected

		return nil
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	d.audit.Tag(ctx, req.ActorID, "task.decide", "document", doc.ID)

	d.notify(ctx, doc.ID, events.NewTaskDecided(doc, decided, req.ActorID))

	if rejected {
		d.notify(ctx, doc.ID, events.NewDocumentRejected(doc, decided.Step, req.ActorID))
	} else if next := doc.TaskAtStep(doc.CurrentStep); next != nil && next.Status == models.TaskStatusPending {
		d.notify(ctx, doc.ID, events.NewTaskAssigned(doc, next))
	}

	return doc, nil
}

// applyDecision is the task state machine. It runs inside the document
// transaction against the committed state.
func (d *Document) applyDecision(
	doc *models.Document,
	task *models.Task,
	actor *models.User,
	req DecideTaskRequest,
) error {
	if task.AssigneeID != actor.ID && !actor.IsPrivileged() {
		return ErrNotAssignee
	}

	if doc.Status != models.DocumentStatusInProgress {
		return ErrDocumentFrozen
	}

	// Only the step at the cursor is actionable; later steps stay out of
	// reach even for their own assignee.
	if !task.ActionableAt(doc.CurrentStep) || task.Step != doc.CurrentStep {
		return fmt.Errorf("%w: step %d, cursor %d", ErrTaskNotActionable, task.Step, doc.CurrentStep)
	}

	comment := strings.TrimSpace(req.Comment)

	switch req.Decision {
	case TaskDecisionComplete:
		if task.CommentRequired && comment == "" {
			return ErrCommentRequired
		}

		task.Status = models.TaskStatusApproved
	case TaskDecisionSkip:
		if !task.CanSkip {
			return ErrCannotSkip
		}

		task.Status = models.TaskStatusSkipped
	case TaskDecisionReject:
		if task.CommentRequired && comment == "" {
			return ErrCommentRequired
		}

		task.Status = models.TaskStatusRejected
	}

	now := time.Now().UTC()
	task.Comment = comment
	task.CompletedAt = &now

	if task.Status == models.TaskStatusRejected {
		doc.Status = models.DocumentStatusRejected

		return nil
	}

	if task.Step == doc.LastStep() {
		// Chain resolved.
		if len(doc.Assignments) > 0 {
			doc.Status = models.DocumentStatusInExecution
		} else {
			doc.Status = models.DocumentStatusApproved
		}

		return nil
	}

	doc.CurrentStep = task.Step + 1

	return nil
}

// FetchByID retrieves a document by its id.
func (d *Document) FetchByID(ctx context.Context, id int64) (*models.Document, error) {
	return d.persistence.Documents().GetByID(ctx, id)
}

// ListDocumentsRequest contains options for listing documents.
type ListDocumentsRequest struct {
	Limit  int
	Offset int

	AuthorID      int64
	RecipientID   int64
	ParticipantID int64
	Status        *models.DocumentStatus

	SortBy    string
	SortOrder string
}

// List retrieves documents with filtering, sorting and pagination.
func (d *Document) List(ctx context.Context, req ListDocumentsRequest) (*persistence.DocumentListResult, error) {
	err := d.validateListRequest(&req)
	if err != nil {
		return nil, err
	}

	result, err := d.persistence.Documents().List(ctx, persistence.ListDocumentsOptions{
		Limit:         req.Limit,
		Offset:        req.Offset,
		AuthorID:      req.AuthorID,
		RecipientID:   req.RecipientID,
		ParticipantID: req.ParticipantID,
		Status:        req.Status,
		SortBy:        req.SortBy,
		SortOrder:     req.SortOrder,
	})
	if err != nil {
		if persistence.IsInvalidSortField(err) {
			return nil, ErrInvalidSortField
		}

		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	return result, nil
}

func (d *Document) validateListRequest(req *ListDocumentsRequest) error {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	allowedSorts := []string{"created_at", "updated_at", "title"}
	if !slices.Contains(allowedSorts, req.SortBy) {
		return NewValidationError(
			"validateListRequest",
			"INVALID_SORT_FIELD",
			fmt.Sprintf("invalid sort field '%s', allowed: %s", req.SortBy, strings.Join(allowedSorts, ", ")),
			ErrInvalidSortField,
		)
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return NewValidationError(
			"validateListRequest",
			"INVALID_SORT_ORDER",
			fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", req.SortOrder),
			ErrInvalidSortOrder,
		)
	}

	if req.Status != nil && !req.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, *req.Status)
	}

	return nil
}

// notify publishes a workflow event best-effort. Delivery failures are
// logged and swallowed; they never roll back a committed mutation.
func (d *Document) notify(ctx context.Context, documentID int64, event eventbus.Event) {
	if d.publisher == nil {
		return
	}

	err := d.publisher.Publish(ctx, fmt.Sprintf("document-%d", documentID), event)
	if err != nil {
		d.logger.WarnContext(ctx, "failed to publish notification",
			"event_type", event.GetType(), "document_id", documentID, "error", err)
	}
}
