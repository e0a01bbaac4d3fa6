package services

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ebarkov/veriflow/pkg/models"
	"github.com/ebarkov/veriflow/pkg/otelhelper"
	"github.com/ebarkov/veriflow/pkg/persistence/file"
)

type fixture struct {
	documents *Document
	execution *Execution
	audit     *Audit

	author    *models.User
	approver  *models.User
	reviewer  *models.User
	signer    *models.User
	executor  *models.User
	executor2 *models.User
	admin     *models.User
	outsider  *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	logger := slog.Default()
	tracer := otelhelper.NoopTracer()

	f := &fixture{
		author:    &models.User{Name: "Anna", Role: models.RoleEmployee},
		approver:  &models.User{Name: "Boris", Role: models.RoleManager},
		reviewer:  &models.User{Name: "Clara", Role: models.RoleEmployee},
		signer:    &models.User{Name: "Dmitri", Role: models.RoleManager},
		executor:  &models.User{Name: "Elena", Role: models.RoleEmployee},
		executor2: &models.User{Name: "Felix", Role: models.RoleEmployee},
		admin:     &models.User{Name: "Greta", Role: models.RoleAdmin},
		outsider:  &models.User{Name: "Hugo", Role: models.RoleEmployee},
	}

	ctx := context.Background()
	for _, user := range []*models.User{
		f.author, f.approver, f.reviewer, f.signer,
		f.executor, f.executor2, f.admin, f.outsider,
	} {
		require.NoError(t, store.Users().Save(ctx, user))
	}

	f.audit = NewAudit(store, nil, logger, tracer)
	f.documents = NewDocument(store, f.audit, nil, logger, tracer)
	f.execution = NewExecution(store, f.audit, nil, logger, tracer)

	return f
}

// threeStageRequest is the canonical chain: plain approval, skippable
// review, then a signature that demands a comment.
func (f *fixture) threeStageRequest() CreateDocumentRequest {
	return CreateDocumentRequest{
		ActorID:     f.author.ID,
		Title:       "Updated HACCP sanitation procedure",
		Body:        "Please route for approval.",
		RecipientID: f.approver.ID,
		Stages: []StageDefinition{
			{AssigneeID: f.approver.ID, Action: models.TaskActionApprove},
			{AssigneeID: f.reviewer.ID, Action: models.TaskActionReview, CanSkip: true},
			{AssigneeID: f.signer.ID, Action: models.TaskActionSign, CommentRequired: true},
		},
	}
}

func (f *fixture) createDocument(t *testing.T, req CreateDocumentRequest) *models.Document {
	t.Helper()

	doc, err := f.documents.Create(context.Background(), req)
	require.NoError(t, err)

	return doc
}

// resolveChain drives the three-stage chain to its terminal state.
func (f *fixture) resolveChain(t *testing.T, doc *models.Document) *models.Document {
	t.Helper()

	ctx := context.Background()

	doc, err := f.documents.Decide(ctx, DecideTaskRequest{
		ActorID: f.approver.ID, TaskID: doc.TaskAtStep(1).ID, Decision: TaskDecisionComplete,
	})
	require.NoError(t, err)

	doc, err = f.documents.Decide(ctx, DecideTaskRequest{
		ActorID: f.reviewer.ID, TaskID: doc.TaskAtStep(2).ID, Decision: TaskDecisionSkip,
	})
	require.NoError(t, err)

	doc, err = f.documents.Decide(ctx, DecideTaskRequest{
		ActorID: f.signer.ID, TaskID: doc.TaskAtStep(3).ID,
		Decision: TaskDecisionComplete, Comment: "Signed off",
	})
	require.NoError(t, err)

	return doc
}
