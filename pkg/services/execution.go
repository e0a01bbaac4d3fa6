package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ebarkov/veriflow/pkg/eventbus"
	"github.com/ebarkov/veriflow/pkg/events"
	"github.com/ebarkov/veriflow/pkg/models"
	"github.com/ebarkov/veriflow/pkg/otelhelper"
	"github.com/ebarkov/veriflow/pkg/persistence"
)

// Execution runs the post-approval fan-out: bulk assignment of executors
// and their independent per-assignee state machines.
type Execution struct {
	persistence persistence.Persistence
	audit       *Audit
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewExecution creates a new execution sub-workflow service.
func NewExecution(
	persistence persistence.Persistence,
	audit *Audit,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	tracer trace.Tracer,
) *Execution {
	return &Execution{
		persistence: persistence,
		audit:       audit,
		publisher:   publisher,
		logger:      logger,
		tracer:      tracer,
	}
}

// AssignmentDefinition is one requested executor in a bulk assignment.
type AssignmentDefinition struct {
	AssigneeID int64
	Deadline   *time.Time
	Comment    string
}

// SetAssignmentsRequest replaces a document's executor set.
type SetAssignmentsRequest struct {
	ActorID     int64
	DocumentID  int64
	Assignments []AssignmentDefinition
	Notes       string
}

// SetAssignments upserts the requested executor set and prunes rows not
// in it, all in one transaction. Existing assignments keep their status;
// only deadline and comment are replaced.
func (e *Execution) SetAssignments(ctx context.Context, req SetAssignmentsRequest) (*models.Document, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "execution.set_assignments",
		attribute.Int64(otelhelper.DocumentIDKey, req.DocumentID),
		attribute.Int64(otelhelper.ActorIDKey, req.ActorID))
	defer span.End()

	if len(req.Assignments) == 0 {
		return nil, ErrEmptyAssignments
	}

	actor, err := e.persistence.Users().GetByID(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}

	assigneeIDs := make([]int64, 0, len(req.Assignments))
	for _, def := range req.Assignments {
		assigneeIDs = append(assigneeIDs, def.AssigneeID)
	}

	missing, err := e.persistence.Users().MissingIDs(ctx, assigneeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to validate assignees: %w", err)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrUnknownUsers, missing)
	}

	doc, err := e.persistence.Documents().Update(ctx, req.DocumentID, func(doc *models.Document) error {
		if !doc.IsParticipant(actor.ID) && !actor.IsPrivileged() {
			return ErrNotAuthorized
		}

		if doc.Status == models.DocumentStatusRejected {
			return ErrDocumentFrozen
		}

		if !doc.ChainResolved() {
			return ErrChainNotResolved
		}

		e.applyAssignments(doc, req)

		return nil
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	e.audit.Tag(ctx, req.ActorID, "execution.set_assignments", "document", doc.ID)

	e.notify(ctx, doc.ID, events.NewExecutionAssigned(doc))

	return doc, nil
}

// applyAssignments performs the upsert-and-prune against the aggregate.
func (e *Execution) applyAssignments(doc *models.Document, req SetAssignmentsRequest) {
	next := make([]*models.ExecutionAssignment, 0, len(req.Assignments))

	for _, def := range req.Assignments {
		if existing := doc.AssignmentFor(def.AssigneeID); existing != nil {
			existing.Deadline = def.Deadline
			existing.Comment = def.Comment
			next = append(next, existing)

			continue
		}

		next = append(next, &models.ExecutionAssignment{
			AssigneeID: def.AssigneeID,
			Status:     models.ExecutionStatusPending,
			Deadline:   def.Deadline,
			Comment:    def.Comment,
		})
	}

	doc.Assignments = next
	doc.Status = models.DocumentStatusInExecution

	if req.Notes != "" {
		doc.ExecutionNotes = req.Notes
	}
}

// AdvanceRequest moves one assignment to its next status. When
// DocumentID is set, the assignment must belong to that document.
type AdvanceRequest struct {
	ActorID      int64
	DocumentID   int64
	AssignmentID int64
	Next         models.ExecutionStatus
	Comment      string
}

// Advance applies one forward transition for an assignment. The
// allowed-next check reads the stored status inside the transaction, so
// concurrent advances on the same assignment serialize cleanly. When the
// last assignment completes, the document is promoted to executed.
func (e *Execution) Advance(ctx context.Context, req AdvanceRequest) (*models.Document, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "execution.advance",
		attribute.Int64(otelhelper.AssignmentIDKey, req.AssignmentID),
		attribute.Int64(otelhelper.ActorIDKey, req.ActorID))
	defer span.End()

	if !req.Next.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, req.Next)
	}

	located, err := e.persistence.Documents().FindByAssignmentID(ctx, req.AssignmentID)
	if err != nil {
		return nil, err
	}

	if req.DocumentID != 0 && located.ID != req.DocumentID {
		return nil, fmt.Errorf("assignment %d on document %d: %w",
			req.AssignmentID, req.DocumentID, persistence.ErrAssignmentNotFound)
	}

	var advanced *models.ExecutionAssignment

	var executed bool

	doc, err := e.persistence.Documents().Update(ctx, located.ID, func(doc *models.Document) error {
		assignment := doc.AssignmentByID(req.AssignmentID)
		if assignment == nil {
			return fmt.Errorf("assignment %d: %w", req.AssignmentID, persistence.ErrAssignmentNotFound)
		}

		// Only the assignee advances their own assignment, overrides included.
		if assignment.AssigneeID != req.ActorID {
			return ErrNotAssignee
		}

		if doc.Status == models.DocumentStatusRejected {
			return ErrDocumentFrozen
		}

		if !doc.ChainResolved() {
			return ErrChainNotResolved
		}

		if !assignment.Status.CanTransitionTo(req.Next) {
			return NewIllegalTransition("assignment", string(assignment.Status), string(req.Next))
		}

		assignment.Status = req.Next

		if req.Comment != "" {
			assignment.Comment = req.Comment
		}

		advanced = assignment

		if req.Next == models.ExecutionStatusCompleted {
			executed = e.allCompleted(doc)
			if executed {
				doc.Status = models.DocumentStatusExecuted
			}
		}

		return nil
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	e.audit.Tag(ctx, req.ActorID, "execution.advance", "document", doc.ID)

	e.notify(ctx, doc.ID, events.NewExecutionAdvanced(doc, advanced))

	if executed {
		e.notify(ctx, doc.ID, events.NewDocumentExecuted(doc))
	}

	return doc, nil
}

// allCompleted recounts the document's assignments; promotion to
// executed happens only when none remain incomplete.
func (e *Execution) allCompleted(doc *models.Document) bool {
	for _, assignment := range doc.Assignments {
		if assignment.Status != models.ExecutionStatusCompleted {
			return false
		}
	}

	return len(doc.Assignments) > 0
}

func (e *Execution) notify(ctx context.Context, documentID int64, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	err := e.publisher.Publish(ctx, fmt.Sprintf("document-%d", documentID), event)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to publish notification",
			"event_type", event.GetType(), "document_id", documentID, "error", err)
	}
}
