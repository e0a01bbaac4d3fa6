package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebarkov/veriflow/pkg/models"
	"github.com/ebarkov/veriflow/pkg/persistence"
)

func TestSetAssignmentsRequiresResolvedChain(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	doc := f.createDocument(t, f.threeStageRequest())

	_, err := f.execution.SetAssignments(ctx, SetAssignmentsRequest{
		ActorID:     f.author.ID,
		DocumentID:  doc.ID,
		Assignments: []AssignmentDefinition{{AssigneeID: f.executor.ID}},
	})
	require.ErrorIs(t, err, ErrChainNotResolved)
}

func TestSetAssignmentsValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	doc := f.createDocument(t, f.threeStageRequest())
	f.resolveChain(t, doc)

	_, err := f.execution.SetAssignments(ctx, SetAssignmentsRequest{
		ActorID:    f.author.ID,
		DocumentID: doc.ID,
	})
	require.ErrorIs(t, err, ErrEmptyAssignments)

	_, err = f.execution.SetAssignments(ctx, SetAssignmentsRequest{
		ActorID:     f.author.ID,
		DocumentID:  doc.ID,
		Assignments: []AssignmentDefinition{{AssigneeID: 9999}},
	})
	require.ErrorIs(t, err, ErrUnknownUsers)
}

func TestSetAssignmentsAuthorization(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	doc := f.createDocument(t, f.threeStageRequest())
	f.resolveChain(t, doc)

	_, err := f.execution.SetAssignments(ctx, SetAssignmentsRequest{
		ActorID:     f.outsider.ID,
		DocumentID:  doc.ID,
		Assignments: []AssignmentDefinition{{AssigneeID: f.executor.ID}},
	})
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestSetAssignmentsUpsertAndPrune(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	doc := f.createDocument(t, f.threeStageRequest())
	f.resolveChain(t, doc)

	deadline := time.Now().UTC().Add(72 * time.Hour)

	doc, err := f.execution.SetAssignments(ctx, SetAssignmentsRequest{
		ActorID:    f.author.ID,
		DocumentID: doc.ID,
		Assignments: []AssignmentDefinition{
			{AssigneeID: f.executor.ID, Deadline: &deadline},
			{AssigneeID: f.executor2.ID},
		},
	})
	require.NoError(t, err)
	require.Len(t, doc.Assignments, 2)
	assert.Equal(t, models.DocumentStatusInExecution, doc.Status)

	kept := doc.AssignmentFor(f.executor.ID)
	require.NotNil(t, kept)

	// The kept executor makes progress before the set is replaced.
	doc, err = f.execution.Advance(ctx, AdvanceRequest{
		ActorID: f.executor.ID, AssignmentID: kept.ID, Next: models.ExecutionStatusInProgress,
	})
	require.NoError(t, err)

	doc, err = f.execution.SetAssignments(ctx, SetAssignmentsRequest{
		ActorID:    f.author.ID,
		DocumentID: doc.ID,
		Assignments: []AssignmentDefinition{
			{AssigneeID: f.executor.ID, Comment: "extended"},
			{AssigneeID: f.outsider.ID},
		},
	})
	require.NoError(t, err)
	require.Len(t, doc.Assignments, 2)

	// Re-listed executor keeps their id and status; only the annotations change.
	resubmitted := doc.AssignmentFor(f.executor.ID)
	require.NotNil(t, resubmitted)
	assert.Equal(t, kept.ID, resubmitted.ID)
	assert.Equal(t, models.ExecutionStatusInProgress, resubmitted.Status)
	assert.Equal(t, "extended", resubmitted.Comment)
	assert.Nil(t, resubmitted.Deadline)

	assert.Nil(t, doc.AssignmentFor(f.executor2.ID))

	added := doc.AssignmentFor(f.outsider.ID)
	require.NotNil(t, added)
	assert.Equal(t, models.ExecutionStatusPending, added.Status)
}

func TestAdvanceLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	req := f.threeStageRequest()
	req.ExecutionAssignees = []int64{f.executor.ID, f.executor2.ID}
	doc := f.createDocument(t, req)
	doc = f.resolveChain(t, doc)
	require.Equal(t, models.DocumentStatusInExecution, doc.Status)

	first := doc.AssignmentFor(f.executor.ID)
	second := doc.AssignmentFor(f.executor2.ID)

	doc, err := f.execution.Advance(ctx, AdvanceRequest{
		ActorID: f.executor.ID, AssignmentID: first.ID, Next: models.ExecutionStatusViewed,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusViewed, doc.AssignmentFor(f.executor.ID).Status)

	doc, err = f.execution.Advance(ctx, AdvanceRequest{
		ActorID: f.executor.ID, AssignmentID: first.ID, Next: models.ExecutionStatusInProgress,
	})
	require.NoError(t, err)

	doc, err = f.execution.Advance(ctx, AdvanceRequest{
		ActorID: f.executor.ID, AssignmentID: first.ID,
		Next: models.ExecutionStatusCompleted, Comment: "done",
	})
	require.NoError(t, err)

	// One assignment still open: the document stays in execution.
	assert.Equal(t, models.DocumentStatusInExecution, doc.Status)

	// Skipping viewed and in_progress is allowed.
	doc, err = f.execution.Advance(ctx, AdvanceRequest{
		ActorID: f.executor2.ID, AssignmentID: second.ID, Next: models.ExecutionStatusCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusExecuted, doc.Status)
}

func TestAdvanceIllegalTransitions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	req := f.threeStageRequest()
	req.ExecutionAssignees = []int64{f.executor.ID}
	doc := f.createDocument(t, req)
	doc = f.resolveChain(t, doc)

	assignment := doc.AssignmentFor(f.executor.ID)

	doc, err := f.execution.Advance(ctx, AdvanceRequest{
		ActorID: f.executor.ID, AssignmentID: assignment.ID, Next: models.ExecutionStatusCompleted,
	})
	require.NoError(t, err)
	require.Equal(t, models.DocumentStatusExecuted, doc.Status)

	// Completed is terminal; nothing moves it backwards.
	_, err = f.execution.Advance(ctx, AdvanceRequest{
		ActorID: f.executor.ID, AssignmentID: assignment.ID, Next: models.ExecutionStatusInProgress,
	})
	require.Error(t, err)
	assert.True(t, IsIllegalTransition(err))

	var transitionErr *IllegalTransitionError

	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, string(models.ExecutionStatusCompleted), transitionErr.Current)
	assert.Equal(t, string(models.ExecutionStatusInProgress), transitionErr.Requested)
}

func TestAdvanceOnlyByAssignee(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	req := f.threeStageRequest()
	req.ExecutionAssignees = []int64{f.executor.ID}
	doc := f.createDocument(t, req)
	doc = f.resolveChain(t, doc)

	assignment := doc.AssignmentFor(f.executor.ID)

	_, err := f.execution.Advance(ctx, AdvanceRequest{
		ActorID: f.admin.ID, AssignmentID: assignment.ID, Next: models.ExecutionStatusViewed,
	})
	require.ErrorIs(t, err, ErrNotAssignee)
}

func TestAdvanceBlockedBeforeChainResolution(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	req := f.threeStageRequest()
	req.ExecutionAssignees = []int64{f.executor.ID}
	doc := f.createDocument(t, req)

	assignment := doc.AssignmentFor(f.executor.ID)

	// Assignments attached at creation stay parked until the chain resolves.
	_, err := f.execution.Advance(ctx, AdvanceRequest{
		ActorID: f.executor.ID, AssignmentID: assignment.ID, Next: models.ExecutionStatusCompleted,
	})
	require.ErrorIs(t, err, ErrChainNotResolved)

	got, err := f.documents.FetchByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusInProgress, got.Status)
	assert.Equal(t, models.ExecutionStatusPending, got.AssignmentFor(f.executor.ID).Status)
}

func TestAdvanceFrozenAfterRejection(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	req := f.threeStageRequest()
	req.ExecutionAssignees = []int64{f.executor.ID}
	doc := f.createDocument(t, req)

	doc, err := f.documents.Decide(ctx, DecideTaskRequest{
		ActorID: f.approver.ID, TaskID: doc.TaskAtStep(1).ID,
		Decision: TaskDecisionReject, Comment: "Procedure is out of date",
	})
	require.NoError(t, err)
	require.Equal(t, models.DocumentStatusRejected, doc.Status)

	assignment := doc.AssignmentFor(f.executor.ID)

	_, err = f.execution.Advance(ctx, AdvanceRequest{
		ActorID: f.executor.ID, AssignmentID: assignment.ID, Next: models.ExecutionStatusCompleted,
	})
	require.ErrorIs(t, err, ErrDocumentFrozen)

	got, err := f.documents.FetchByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusRejected, got.Status)
	assert.Equal(t, models.ExecutionStatusPending, got.AssignmentFor(f.executor.ID).Status)
}

func TestAdvanceScopedToDocument(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	first := f.createDocument(t, f.threeStageRequest())
	f.resolveChain(t, first)

	second := f.createDocument(t, f.threeStageRequest())
	second = f.resolveChain(t, second)

	second, err := f.execution.SetAssignments(ctx, SetAssignmentsRequest{
		ActorID:     f.author.ID,
		DocumentID:  second.ID,
		Assignments: []AssignmentDefinition{{AssigneeID: f.executor.ID}},
	})
	require.NoError(t, err)

	assignment := second.AssignmentFor(f.executor.ID)

	_, err = f.execution.Advance(ctx, AdvanceRequest{
		ActorID:      f.executor.ID,
		DocumentID:   first.ID,
		AssignmentID: assignment.ID,
		Next:         models.ExecutionStatusViewed,
	})
	require.ErrorIs(t, err, persistence.ErrAssignmentNotFound)

	got, err := f.documents.FetchByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPending, got.AssignmentFor(f.executor.ID).Status)
}
