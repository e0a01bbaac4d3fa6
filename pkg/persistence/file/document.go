package file

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/ebarkov/veriflow/pkg/models"
	"github.com/ebarkov/veriflow/pkg/persistence"
)

const documentsDir = "documents"

// DocumentRepository stores each document aggregate, tasks and
// assignments included, as one JSON file.
type DocumentRepository struct {
	store *Persistence
}

// Create persists the document with all owned rows. Writing one file
// makes the multi-entity creation naturally all-or-nothing.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	id, err := r.store.nextID("documents")
	if err != nil {
		return persistence.NewDocumentError("Create", 0, err)
	}

	doc.ID = id

	for _, task := range doc.Tasks {
		task.DocumentID = doc.ID

		taskID, err := r.store.nextID("tasks")
		if err != nil {
			return persistence.NewDocumentError("Create", doc.ID, err)
		}

		task.ID = taskID
	}

	for _, assignment := range doc.Assignments {
		assignment.DocumentID = doc.ID
		assignment.CreatedAt = now
		assignment.UpdatedAt = now

		assignmentID, err := r.store.nextID("assignments")
		if err != nil {
			return persistence.NewDocumentError("Create", doc.ID, err)
		}

		assignment.ID = assignmentID
	}

	err = r.store.writeJSON(documentsDir, doc.ID, doc)
	if err != nil {
		return persistence.NewDocumentError("Create", doc.ID, err)
	}

	return nil
}

// GetByID returns the document aggregate, or ErrDocumentNotFound.
func (r *DocumentRepository) GetByID(_ context.Context, id int64) (*models.Document, error) {
	var doc models.Document

	err := r.store.readJSON(documentsDir, id, &doc)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewDocumentError("GetByID", id, persistence.ErrDocumentNotFound)
		}

		return nil, persistence.NewDocumentError("GetByID", id, err)
	}

	return &doc, nil
}

// FindByTaskID resolves the document owning the given task.
func (r *DocumentRepository) FindByTaskID(ctx context.Context, taskID int64) (*models.Document, error) {
	docs, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	for _, doc := range docs {
		if doc.TaskByID(taskID) != nil {
			return doc, nil
		}
	}

	return nil, fmt.Errorf("task %d: %w", taskID, persistence.ErrTaskNotFound)
}

// FindByAssignmentID resolves the document owning the given assignment.
func (r *DocumentRepository) FindByAssignmentID(ctx context.Context, assignmentID int64) (*models.Document, error) {
	docs, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	for _, doc := range docs {
		if doc.AssignmentByID(assignmentID) != nil {
			return doc, nil
		}
	}

	return nil, fmt.Errorf("assignment %d: %w", assignmentID, persistence.ErrAssignmentNotFound)
}

// Update applies fn to the stored aggregate under the store mutex and
// persists the result only when fn returns nil.
func (r *DocumentRepository) Update(
	ctx context.Context,
	id int64,
	fn func(doc *models.Document) error,
) (*models.Document, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	doc, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	err = fn(doc)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc.UpdatedAt = now

	for _, assignment := range doc.Assignments {
		if assignment.ID == 0 {
			assignmentID, err := r.store.nextID("assignments")
			if err != nil {
				return nil, persistence.NewDocumentError("Update", id, err)
			}

			assignment.ID = assignmentID
			assignment.DocumentID = doc.ID
			assignment.CreatedAt = now
		}

		assignment.UpdatedAt = now
	}

	err = r.store.writeJSON(documentsDir, doc.ID, doc)
	if err != nil {
		return nil, persistence.NewDocumentError("Update", id, err)
	}

	return doc, nil
}

// List returns paginated and filtered documents with in-memory operations.
func (r *DocumentRepository) List(
	ctx context.Context,
	opts persistence.ListDocumentsOptions,
) (*persistence.DocumentListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	if opts.SortOrder == "" {
		opts.SortOrder = "desc"
	}

	allowedSorts := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"title":      true,
	}
	if !allowedSorts[opts.SortBy] {
		return nil, fmt.Errorf("%w: %s", persistence.ErrInvalidSortField, opts.SortBy)
	}

	all, err := r.loadAll(ctx)
	if err != nil {
		return nil, err
	}

	filtered := make([]*models.Document, 0, len(all))

	for _, doc := range all {
		if opts.AuthorID != 0 && doc.AuthorID != opts.AuthorID {
			continue
		}

		if opts.RecipientID != 0 && doc.RecipientID != opts.RecipientID {
			continue
		}

		if opts.ParticipantID != 0 && !doc.IsParticipant(opts.ParticipantID) {
			continue
		}

		if opts.Status != nil && doc.Status != *opts.Status {
			continue
		}

		filtered = append(filtered, doc)
	}

	r.sortDocuments(filtered, opts.SortBy, opts.SortOrder)

	totalCount := int64(len(filtered))
	start := opts.Offset

	if start >= len(filtered) {
		return &persistence.DocumentListResult{
			Documents:   make([]*models.Document, 0),
			TotalCount:  totalCount,
			HasNextPage: false,
		}, nil
	}

	end := min(start+opts.Limit, len(filtered))

	return &persistence.DocumentListResult{
		Documents:   filtered[start:end],
		TotalCount:  totalCount,
		HasNextPage: int64(end) < totalCount,
	}, nil
}

func (r *DocumentRepository) loadAll(ctx context.Context) ([]*models.Document, error) {
	ids, err := r.store.listIDs(documentsDir)
	if err != nil {
		return nil, err
	}

	slices.Sort(ids)

	docs := make([]*models.Document, 0, len(ids))

	for _, id := range ids {
		doc, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		docs = append(docs, doc)
	}

	return docs, nil
}

func (r *DocumentRepository) sortDocuments(docs []*models.Document, sortBy, sortOrder string) {
	slices.SortStableFunc(docs, func(a, b *models.Document) int {
		var cmp int

		switch sortBy {
		case "title":
			switch {
			case a.Title < b.Title:
				cmp = -1
			case a.Title > b.Title:
				cmp = 1
			}
		case "updated_at":
			cmp = a.UpdatedAt.Compare(b.UpdatedAt)
		default:
			cmp = a.CreatedAt.Compare(b.CreatedAt)
		}

		if cmp == 0 {
			switch {
			case a.ID < b.ID:
				cmp = -1
			case a.ID > b.ID:
				cmp = 1
			}
		}

		if sortOrder == "desc" {
			cmp = -cmp
		}

		return cmp
	})
}
