package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ebarkov/veriflow/pkg/models"
)

func TestImportBundle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	payload := fmt.Sprintf(`{
		"documents": [
			{
				"title": "Imported supplier contract",
				"body": "migrated from the legacy system",
				"recipient_id": %d,
				"stages": [
					{"assignee_id": %d, "action": "approve"},
					{"assignee_id": %d, "action": "sign", "comment_required": true}
				]
			},
			{
				"title": "Imported NDA",
				"recipient_id": %d,
				"watchers": [%d],
				"stages": [
					{"assignee_id": %d, "action": "review", "can_skip": true}
				]
			}
		]
	}`, f.approver.ID, f.approver.ID, f.signer.ID, f.approver.ID, f.outsider.ID, f.reviewer.ID)

	docs, err := f.documents.Import(ctx, ImportRequest{
		ActorID: f.admin.ID,
		Payload: []byte(payload),
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, models.DocumentStatusInProgress, docs[0].Status)
	assert.Len(t, docs[0].Tasks, 3)
	assert.Equal(t, []int64{f.outsider.ID}, docs[1].Watchers)
}

func TestImportRejectsInvalidPayload(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{"documents": [`},
		{"empty bundle", `{"documents": []}`},
		{"stage without action", `{"documents": [{"title": "x", "recipient_id": 2, "stages": [{"assignee_id": 2}]}]}`},
		{"unknown action", `{"documents": [{"title": "x", "recipient_id": 2, "stages": [{"assignee_id": 2, "action": "stamp"}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.documents.Import(ctx, ImportRequest{
				ActorID: f.admin.ID,
				Payload: []byte(tt.payload),
			})
			require.ErrorIs(t, err, ErrInvalidImport)
		})
	}
}

func TestImportAllOrNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	// The second entry names a user that does not exist. The whole bundle
	// must be refused with nothing persisted: documents are never
	// deleted, so a partial import could not be undone.
	payload := fmt.Sprintf(`{
		"documents": [
			{
				"title": "Imported supplier contract",
				"recipient_id": %d,
				"stages": [{"assignee_id": %d, "action": "approve"}]
			},
			{
				"title": "Imported NDA",
				"recipient_id": %d,
				"stages": [{"assignee_id": 9999, "action": "sign"}]
			}
		]
	}`, f.approver.ID, f.approver.ID, f.approver.ID)

	_, err := f.documents.Import(ctx, ImportRequest{
		ActorID: f.admin.ID,
		Payload: []byte(payload),
	})
	require.ErrorIs(t, err, ErrUnknownUsers)

	result, err := f.documents.List(ctx, ListDocumentsRequest{})
	require.NoError(t, err)
	assert.Zero(t, result.TotalCount)
	assert.Empty(t, result.Documents)
}

func TestImportRequiresAdmin(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.documents.Import(context.Background(), ImportRequest{
		ActorID: f.author.ID,
		Payload: []byte(`{"documents": []}`),
	})
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestImportVetoedDuringAudit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.audit.Start(ctx, StartAuditRequest{
		ActorID: f.admin.ID, Type: models.AuditTypeScheduled,
	})
	require.NoError(t, err)

	// The guard vetoes the import even for the role that opened the session.
	_, err = f.documents.Import(ctx, ImportRequest{
		ActorID: f.admin.ID,
		Payload: []byte(`{"documents": [{"title": "x", "recipient_id": 2, "stages": [{"assignee_id": 2, "action": "approve"}]}]}`),
	})
	require.ErrorIs(t, err, ErrAuditLocked)
}
