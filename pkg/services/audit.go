package services

import (
	"context"
	"fmt"
	"log/slog"
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

// Audit manages the process-wide inspection lock. While a session is
// active, Guard vetoes designated mutations and Tag records every other
// write to the trail.
type Audit struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewAudit creates a new audit mode service.
func NewAudit(
	persistence persistence.Persistence,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
	tracer trace.Tracer,
) *Audit {
	return &Audit{
		persistence: persistence,
		publisher:   publisher,
		logger:      logger,
		tracer:      tracer,
	}
}

// StartAuditRequest opens a new audit session.
type StartAuditRequest struct {
	ActorID     int64
	Type        models.AuditType
	AuditorOrg  string
	AuditorName string
	Comment     string
}

// Start opens an audit session. The storage layer enforces the
// single-active-session invariant atomically; a losing racer gets a
// conflict, never a second active session.
func (a *Audit) Start(ctx context.Context, req StartAuditRequest) (*models.AuditSession, error) {
	ctx, span := otelhelper.StartSpan(ctx, a.tracer, "audit.start",
		attribute.Int64(otelhelper.ActorIDKey, req.ActorID))
	defer span.End()

	if !req.Type.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAuditType, req.Type)
	}

	err := a.requirePrivileged(ctx, req.ActorID)
	if err != nil {
		return nil, err
	}

	session := &models.AuditSession{
		Type:        req.Type,
		Status:      models.AuditSessionActive,
		AuditorOrg:  strings.TrimSpace(req.AuditorOrg),
		AuditorName: strings.TrimSpace(req.AuditorName),
		Comment:     req.Comment,
		StartedAt:   time.Now().UTC(),
	}

	err = a.persistence.Audit().Start(ctx, session)
	if err != nil {
		otelhelper.SetError(span, err)

		if persistence.IsAuditSessionActive(err) {
			return nil, ErrAuditAlreadyActive
		}

		return nil, fmt.Errorf("failed to start audit session: %w", err)
	}

	span.SetAttributes(attribute.Int64(otelhelper.SessionIDKey, session.ID))

	a.notify(ctx, events.NewAuditStarted(session))

	a.logger.InfoContext(ctx, "audit session started",
		"session_id", session.ID, "type", session.Type, "actor_id", req.ActorID)

	return session, nil
}

// Close ends the active audit session.
func (a *Audit) Close(ctx context.Context, actorID int64, comment string) (*models.AuditSession, error) {
	ctx, span := otelhelper.StartSpan(ctx, a.tracer, "audit.close",
		attribute.Int64(otelhelper.ActorIDKey, actorID))
	defer span.End()

	err := a.requirePrivileged(ctx, actorID)
	if err != nil {
		return nil, err
	}

	active, err := a.persistence.Audit().Active(ctx)
	if err != nil {
		return nil, err
	}

	session, err := a.persistence.Audit().Close(ctx, active.ID, comment)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to close audit session: %w", err)
	}

	a.notify(ctx, events.NewAuditClosed(session))

	a.logger.InfoContext(ctx, "audit session closed",
		"session_id", session.ID, "actor_id", actorID)

	return session, nil
}

// Active returns the currently active session, or
// persistence.ErrAuditSessionNotFound when none is open.
func (a *Audit) Active(ctx context.Context) (*models.AuditSession, error) {
	return a.persistence.Audit().Active(ctx)
}

// GetByID retrieves a session, active or closed.
func (a *Audit) GetByID(ctx context.Context, id int64) (*models.AuditSession, error) {
	return a.persistence.Audit().GetByID(ctx, id)
}

// Guard vetoes an operation while audit mode is on. It must run before
// the operation takes any side effect.
func (a *Audit) Guard(ctx context.Context, operation string) error {
	_, err := a.persistence.Audit().Active(ctx)
	if err != nil {
		if persistence.IsAuditSessionNotFound(err) {
			return nil
		}

		return fmt.Errorf("failed to check audit mode: %w", err)
	}

	return fmt.Errorf("%w: %s", ErrAuditLocked, operation)
}

// Tag records a write to the trail of the active session. With no
// session open it is a no-op, and a failed append never fails the write
// it annotates: the trail is best-effort by contract.
func (a *Audit) Tag(ctx context.Context, actorID int64, operation, entityKind string, entityID int64) {
	session, err := a.persistence.Audit().Active(ctx)
	if err != nil {
		if !persistence.IsAuditSessionNotFound(err) {
			a.logger.WarnContext(ctx, "failed to check audit mode for trail tagging",
				"operation", operation, "error", err)
		}

		return
	}

	entry := &models.AuditTrailEntry{
		SessionID:  session.ID,
		ActorID:    actorID,
		Operation:  operation,
		EntityKind: entityKind,
		EntityID:   entityID,
		OccurredAt: time.Now().UTC(),
	}

	err = a.persistence.Audit().AppendTrail(ctx, entry)
	if err != nil {
		a.logger.WarnContext(ctx, "failed to append audit trail entry",
			"session_id", session.ID, "operation", operation, "error", err)
	}
}

// Trail returns the tagged writes of a session in occurrence order.
func (a *Audit) Trail(ctx context.Context, sessionID int64) ([]*models.AuditTrailEntry, error) {
	_, err := a.persistence.Audit().GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	return a.persistence.Audit().Trail(ctx, sessionID)
}

func (a *Audit) requirePrivileged(ctx context.Context, actorID int64) error {
	actor, err := a.persistence.Users().GetByID(ctx, actorID)
	if err != nil {
		return err
	}

	if !actor.IsPrivileged() {
		return ErrNotAuthorized
	}

	return nil
}

func (a *Audit) notify(ctx context.Context, event eventbus.Event) {
	if a.publisher == nil {
		return
	}

	err := a.publisher.Publish(ctx, "audit", event)
	if err != nil {
		a.logger.WarnContext(ctx, "failed to publish notification",
			"event_type", event.GetType(), "error", err)
	}
}
