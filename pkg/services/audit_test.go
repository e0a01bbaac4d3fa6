package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebarkov/veriflow/pkg/models"
	"github.com/ebarkov/veriflow/pkg/persistence"
)

func TestAuditStartRequiresAdmin(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.audit.Start(ctx, StartAuditRequest{
		ActorID: f.author.ID, Type: models.AuditTypeScheduled,
	})
	require.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.audit.Start(ctx, StartAuditRequest{
		ActorID: f.admin.ID, Type: "surprise",
	})
	require.ErrorIs(t, err, ErrInvalidAuditType)
}

func TestAuditSingleActiveSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	session, err := f.audit.Start(ctx, StartAuditRequest{
		ActorID:    f.admin.ID,
		Type:       models.AuditTypeSupplier,
		AuditorOrg: "Rospotrebnadzor",
	})
	require.NoError(t, err)
	assert.Equal(t, models.AuditSessionActive, session.Status)

	_, err = f.audit.Start(ctx, StartAuditRequest{
		ActorID: f.admin.ID, Type: models.AuditTypeInternal,
	})
	require.ErrorIs(t, err, ErrAuditAlreadyActive)
	assert.True(t, IsConflictError(err))

	closed, err := f.audit.Close(ctx, f.admin.ID, "inspection done")
	require.NoError(t, err)
	assert.Equal(t, models.AuditSessionClosed, closed.Status)
	assert.NotNil(t, closed.EndedAt)

	// A closed session clears the way for the next one.
	_, err = f.audit.Start(ctx, StartAuditRequest{
		ActorID: f.admin.ID, Type: models.AuditTypeInternal,
	})
	require.NoError(t, err)
}

func TestAuditCloseWithoutActiveSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.audit.Close(context.Background(), f.admin.ID, "")
	require.ErrorIs(t, err, persistence.ErrAuditSessionNotFound)
}

func TestAuditGuard(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.audit.Guard(ctx, "document.import"))

	_, err := f.audit.Start(ctx, StartAuditRequest{
		ActorID: f.admin.ID, Type: models.AuditTypeUnscheduled,
	})
	require.NoError(t, err)

	err = f.audit.Guard(ctx, "document.import")
	require.ErrorIs(t, err, ErrAuditLocked)
	assert.True(t, IsAuditLocked(err))

	_, err = f.audit.Close(ctx, f.admin.ID, "")
	require.NoError(t, err)

	require.NoError(t, f.audit.Guard(ctx, "document.import"))
}

func TestAuditTrailTagsWrites(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	// Writes before the session leave no trail.
	doc := f.createDocument(t, f.threeStageRequest())

	session, err := f.audit.Start(ctx, StartAuditRequest{
		ActorID: f.admin.ID, Type: models.AuditTypeScheduled,
	})
	require.NoError(t, err)

	_, err = f.documents.Decide(ctx, DecideTaskRequest{
		ActorID: f.approver.ID, TaskID: doc.TaskAtStep(1).ID, Decision: TaskDecisionComplete,
	})
	require.NoError(t, err)

	trail, err := f.audit.Trail(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "task.decide", trail[0].Operation)
	assert.Equal(t, f.approver.ID, trail[0].ActorID)
	assert.Equal(t, "document", trail[0].EntityKind)
	assert.Equal(t, doc.ID, trail[0].EntityID)

	// Post-close writes stop being tagged.
	_, err = f.audit.Close(ctx, f.admin.ID, "")
	require.NoError(t, err)

	_, err = f.documents.Decide(ctx, DecideTaskRequest{
		ActorID: f.reviewer.ID, TaskID: doc.TaskAtStep(2).ID, Decision: TaskDecisionSkip,
	})
	require.NoError(t, err)

	trail, err = f.audit.Trail(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, trail, 1)
}

func TestAuditTrailUnknownSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.audit.Trail(context.Background(), 404)
	require.ErrorIs(t, err, persistence.ErrAuditSessionNotFound)
}
