package file

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebarkov/veriflow/pkg/models"
	"github.com/ebarkov/veriflow/pkg/persistence"
)

func newTestStore(t *testing.T) *Persistence {
	t.Helper()

	return NewPersistence(t.TempDir())
}

func seedUsers(t *testing.T, store *Persistence, count int) {
	t.Helper()

	ctx := context.Background()

	for range count {
		user := &models.User{Name: "user", Role: models.RoleEmployee}
		require.NoError(t, store.Users().Save(ctx, user))
	}
}

func sampleDocument() *models.Document {
	return &models.Document{
		Title:       "Sanitation procedure update",
		Body:        "Review the attached procedure",
		AuthorID:    1,
		RecipientID: 2,
		Status:      models.DocumentStatusInProgress,
		CurrentStep: 1,
		Tasks: []*models.Task{
			{Step: 0, AssigneeID: 1, Action: models.TaskActionApprove, Status: models.TaskStatusApproved},
			{Step: 1, AssigneeID: 2, Action: models.TaskActionApprove, Status: models.TaskStatusPending, VisibleAfterStep: 0},
		},
		Watchers: []int64{3},
	}
}

func TestDocumentRepository_CreateAndGet(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	doc := sampleDocument()
	require.NoError(t, store.Documents().Create(ctx, doc))
	assert.NotZero(t, doc.ID)
	assert.NotZero(t, doc.Tasks[0].ID)
	assert.NotZero(t, doc.Tasks[1].ID)

	loaded, err := store.Documents().GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Title, loaded.Title)
	assert.Len(t, loaded.Tasks, 2)
	assert.Equal(t, []int64{3}, loaded.Watchers)

	_, err = store.Documents().GetByID(ctx, 999)
	assert.True(t, persistence.IsDocumentNotFound(err))
}

func TestDocumentRepository_FindByTaskID(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	doc := sampleDocument()
	require.NoError(t, store.Documents().Create(ctx, doc))

	found, err := store.Documents().FindByTaskID(ctx, doc.Tasks[1].ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, found.ID)

	_, err = store.Documents().FindByTaskID(ctx, 999)
	assert.True(t, persistence.IsTaskNotFound(err))
}

func TestDocumentRepository_UpdateAbortsOnError(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	doc := sampleDocument()
	require.NoError(t, store.Documents().Create(ctx, doc))

	_, err := store.Documents().Update(ctx, doc.ID, func(d *models.Document) error {
		d.Status = models.DocumentStatusRejected

		return assert.AnError
	})
	require.Error(t, err)

	loaded, err := store.Documents().GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DocumentStatusInProgress, loaded.Status, "failed update must leave no changes")
}

func TestDocumentRepository_UpdateAssignsNewAssignmentIDs(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	doc := sampleDocument()
	require.NoError(t, store.Documents().Create(ctx, doc))

	updated, err := store.Documents().Update(ctx, doc.ID, func(d *models.Document) error {
		d.Assignments = append(d.Assignments, &models.ExecutionAssignment{
			AssigneeID: 4,
			Status:     models.ExecutionStatusPending,
		})

		return nil
	})
	require.NoError(t, err)
	require.Len(t, updated.Assignments, 1)
	assert.NotZero(t, updated.Assignments[0].ID)
	assert.Equal(t, doc.ID, updated.Assignments[0].DocumentID)
}

func TestDocumentRepository_List(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	first := sampleDocument()
	require.NoError(t, store.Documents().Create(ctx, first))

	second := sampleDocument()
	second.AuthorID = 5
	second.Status = models.DocumentStatusRejected
	require.NoError(t, store.Documents().Create(ctx, second))

	all, err := store.Documents().List(ctx, persistence.ListDocumentsOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.TotalCount)

	rejected := models.DocumentStatusRejected
	filtered, err := store.Documents().List(ctx, persistence.ListDocumentsOptions{Status: &rejected})
	require.NoError(t, err)
	require.Len(t, filtered.Documents, 1)
	assert.Equal(t, second.ID, filtered.Documents[0].ID)

	byAuthor, err := store.Documents().List(ctx, persistence.ListDocumentsOptions{AuthorID: 5})
	require.NoError(t, err)
	require.Len(t, byAuthor.Documents, 1)

	_, err = store.Documents().List(ctx, persistence.ListDocumentsOptions{SortBy: "body"})
	assert.ErrorIs(t, err, persistence.ErrInvalidSortField)
}

func TestUserRepository_MissingIDs(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	seedUsers(t, store, 3)

	missing, err := store.Users().MissingIDs(ctx, []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Empty(t, missing)

	missing, err = store.Users().MissingIDs(ctx, []int64{2, 9, 9, 12})
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 12}, missing)
}

func TestAuditRepository_SingleActiveSession(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	session := &models.AuditSession{Type: models.AuditTypeScheduled}
	require.NoError(t, store.Audit().Start(ctx, session))
	assert.NotZero(t, session.ID)
	assert.Equal(t, models.AuditSessionActive, session.Status)

	err := store.Audit().Start(ctx, &models.AuditSession{Type: models.AuditTypeInternal})
	assert.True(t, persistence.IsAuditSessionActive(err))

	active, err := store.Audit().Active(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, session.ID, active.ID)

	closed, err := store.Audit().Close(ctx, session.ID, "inspection done")
	require.NoError(t, err)
	assert.Equal(t, models.AuditSessionClosed, closed.Status)
	assert.NotNil(t, closed.EndedAt)
	assert.Equal(t, "inspection done", closed.Comment)

	_, err = store.Audit().Active(ctx)
	assert.True(t, persistence.IsAuditSessionNotFound(err))

	// A new session may open once the previous one is closed.
	require.NoError(t, store.Audit().Start(ctx, &models.AuditSession{Type: models.AuditTypeSupplier}))
}

func TestAuditRepository_Trail(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	session := &models.AuditSession{Type: models.AuditTypeScheduled}
	require.NoError(t, store.Audit().Start(ctx, session))

	entry := &models.AuditTrailEntry{
		SessionID:  session.ID,
		ActorID:    7,
		Operation:  "task.decide",
		EntityKind: "document",
		EntityID:   3,
	}
	require.NoError(t, store.Audit().AppendTrail(ctx, entry))
	assert.NotZero(t, entry.ID)
	assert.False(t, entry.OccurredAt.IsZero())

	trail, err := store.Audit().Trail(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "task.decide", trail[0].Operation)

	other, err := store.Audit().Trail(ctx, session.ID+1)
	require.NoError(t, err)
	assert.Empty(t, other)
}
