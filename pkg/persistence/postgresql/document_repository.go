package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ebarkov/veriflow/pkg/models"
	"github.com/ebarkov/veriflow/pkg/persistence"
)

// DocumentRepository handles document aggregate database operations.
type DocumentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDocumentRepository creates a new document repository.
func NewDocumentRepository(db *sql.DB, logger *slog.Logger) *DocumentRepository {
	return &DocumentRepository{db: db, logger: logger}
}

// querier abstracts *sql.DB and *sql.Tx so owned rows can be loaded
// both outside and inside a transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const documentColumns = `
			id
		  , title
		  , body
		  , author_id
		  , recipient_id
		  , responsible_id
		  , status
		  , current_step
		  , execution_notes
		  , created_at
		  , updated_at
`

// Create persists the document with all owned tasks, watchers and
// assignments in one transaction.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewDocumentError("Create", 0, fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `
		INSERT INTO documents
			(title, body, author_id, recipient_id, responsible_id, status,
			 current_step, execution_notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	err = tx.QueryRowContext(ctx, query,
		doc.Title,
		doc.Body,
		doc.AuthorID,
		doc.RecipientID,
		doc.ResponsibleID,
		doc.Status,
		doc.CurrentStep,
		doc.ExecutionNotes,
		doc.CreatedAt,
		doc.UpdatedAt,
	).Scan(&doc.ID)
	if err != nil {
		return persistence.NewDocumentError("Create", 0, fmt.Errorf("failed to insert document: %w", err))
	}

	for _, task := range doc.Tasks {
		task.DocumentID = doc.ID

		err = r.insertTask(ctx, tx, task)
		if err != nil {
			return persistence.NewDocumentError("Create", doc.ID, err)
		}
	}

	for _, watcher := range doc.Watchers {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO document_watchers (document_id, user_id) VALUES ($1, $2)",
			doc.ID, watcher)
		if err != nil {
			return persistence.NewDocumentError("Create", doc.ID, fmt.Errorf("failed to insert watcher: %w", err))
		}
	}

	for _, assignment := range doc.Assignments {
		assignment.DocumentID = doc.ID

		err = r.insertAssignment(ctx, tx, assignment, now)
		if err != nil {
			return persistence.NewDocumentError("Create", doc.ID, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return persistence.NewDocumentError("Create", doc.ID, fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

func (r *DocumentRepository) insertTask(ctx context.Context, q querier, task *models.Task) error {
	query := `
		INSERT INTO document_tasks
			(document_id, step, assignee_id, action, status, instruction,
			 can_skip, comment_required, visible_after_step, comment, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`

	err := q.QueryRowContext(ctx, query,
		task.DocumentID,
		task.Step,
		task.AssigneeID,
		task.Action,
		task.Status,
		task.Instruction,
		task.CanSkip,
		task.CommentRequired,
		task.VisibleAfterStep,
		task.Comment,
		task.CompletedAt,
	).Scan(&task.ID)
	if err != nil {
		return fmt.Errorf("failed to insert task at step %d: %w", task.Step, err)
	}

	return nil
}

func (r *DocumentRepository) insertAssignment(
	ctx context.Context,
	q querier,
	assignment *models.ExecutionAssignment,
	now time.Time,
) error {
	assignment.CreatedAt = now
	assignment.UpdatedAt = now

	query := `
		INSERT INTO execution_assignments
			(document_id, assignee_id, status, deadline, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := q.QueryRowContext(ctx, query,
		assignment.DocumentID,
		assignment.AssigneeID,
		assignment.Status,
		assignment.Deadline,
		assignment.Comment,
		assignment.CreatedAt,
		assignment.UpdatedAt,
	).Scan(&assignment.ID)
	if err != nil {
		return fmt.Errorf("failed to insert assignment for user %d: %w", assignment.AssigneeID, err)
	}

	return nil
}

// GetByID returns the full document aggregate, or ErrDocumentNotFound.
func (r *DocumentRepository) GetByID(ctx context.Context, id int64) (*models.Document, error) {
	return r.getByID(ctx, r.db, id, "")
}

func (r *DocumentRepository) getByID(ctx context.Context, q querier, id int64, suffix string) (*models.Document, error) {
	query := "SELECT " + documentColumns + " FROM documents WHERE id = $1" + suffix

	doc, err := scanDocument(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewDocumentError("GetByID", id, persistence.ErrDocumentNotFound)
		}

		return nil, persistence.NewDocumentError("GetByID", id, err)
	}

	err = r.loadOwned(ctx, q, doc)
	if err != nil {
		return nil, persistence.NewDocumentError("GetByID", id, err)
	}

	return doc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*models.Document, error) {
	var doc models.Document

	err := row.Scan(
		&doc.ID,
		&doc.Title,
		&doc.Body,
		&doc.AuthorID,
		&doc.RecipientID,
		&doc.ResponsibleID,
		&doc.Status,
		&doc.CurrentStep,
		&doc.ExecutionNotes,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &doc, nil
}

// loadOwned loads tasks, watchers and assignments for the document.
func (r *DocumentRepository) loadOwned(ctx context.Context, q querier, doc *models.Document) error {
	taskQuery := `
		SELECT
			id
		  , document_id
		  , step
		  , assignee_id
		  , action
		  , status
		  , instruction
		  , can_skip
		  , comment_required
		  , visible_after_step
		  , comment
		  , completed_at
		FROM document_tasks
		WHERE document_id = $1
		ORDER BY step
	`

	rows, err := q.QueryContext(ctx, taskQuery, doc.ID)
	if err != nil {
		return fmt.Errorf("failed to query tasks: %w", err)
	}

	defer r.closeRows(ctx, rows)

	doc.Tasks = make([]*models.Task, 0)

	for rows.Next() {
		var task models.Task

		err = rows.Scan(
			&task.ID,
			&task.DocumentID,
			&task.Step,
			&task.AssigneeID,
			&task.Action,
			&task.Status,
			&task.Instruction,
			&task.CanSkip,
			&task.CommentRequired,
			&task.VisibleAfterStep,
			&task.Comment,
			&task.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan task: %w", err)
		}

		doc.Tasks = append(doc.Tasks, &task)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating tasks: %w", err)
	}

	err = r.loadWatchers(ctx, q, doc)
	if err != nil {
		return err
	}

	return r.loadAssignments(ctx, q, doc)
}

func (r *DocumentRepository) loadWatchers(ctx context.Context, q querier, doc *models.Document) error {
	rows, err := q.QueryContext(ctx,
		"SELECT user_id FROM document_watchers WHERE document_id = $1 ORDER BY user_id", doc.ID)
	if err != nil {
		return fmt.Errorf("failed to query watchers: %w", err)
	}

	defer r.closeRows(ctx, rows)

	doc.Watchers = nil

	for rows.Next() {
		var userID int64

		err = rows.Scan(&userID)
		if err != nil {
			return fmt.Errorf("failed to scan watcher: %w", err)
		}

		doc.Watchers = append(doc.Watchers, userID)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating watchers: %w", err)
	}

	return nil
}

func (r *DocumentRepository) loadAssignments(ctx context.Context, q querier, doc *models.Document) error {
	query := `
		SELECT
			id
		  , document_id
		  , assignee_id
		  , status
		  , deadline
		  , comment
		  , created_at
		  , updated_at
		FROM execution_assignments
		WHERE document_id = $1
		ORDER BY id
	`

	rows, err := q.QueryContext(ctx, query, doc.ID)
	if err != nil {
		return fmt.Errorf("failed to query assignments: %w", err)
	}

	defer r.closeRows(ctx, rows)

	doc.Assignments = nil

	for rows.Next() {
		var assignment models.ExecutionAssignment

		err = rows.Scan(
			&assignment.ID,
			&assignment.DocumentID,
			&assignment.AssigneeID,
			&assignment.Status,
			&assignment.Deadline,
			&assignment.Comment,
			&assignment.CreatedAt,
			&assignment.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan assignment: %w", err)
		}

		doc.Assignments = append(doc.Assignments, &assignment)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating assignments: %w", err)
	}

	return nil
}

func (r *DocumentRepository) closeRows(ctx context.Context, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

// FindByTaskID resolves the document that owns the given task.
func (r *DocumentRepository) FindByTaskID(ctx context.Context, taskID int64) (*models.Document, error) {
	var documentID int64

	err := r.db.QueryRowContext(ctx,
		"SELECT document_id FROM document_tasks WHERE id = $1", taskID).Scan(&documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %d: %w", taskID, persistence.ErrTaskNotFound)
		}

		return nil, fmt.Errorf("failed to resolve task %d: %w", taskID, err)
	}

	return r.GetByID(ctx, documentID)
}

// FindByAssignmentID resolves the document that owns the given assignment.
func (r *DocumentRepository) FindByAssignmentID(ctx context.Context, assignmentID int64) (*models.Document, error) {
	var documentID int64

	err := r.db.QueryRowContext(ctx,
		"SELECT document_id FROM execution_assignments WHERE id = $1", assignmentID).Scan(&documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("assignment %d: %w", assignmentID, persistence.ErrAssignmentNotFound)
		}

		return nil, fmt.Errorf("failed to resolve assignment %d: %w", assignmentID, err)
	}

	return r.GetByID(ctx, documentID)
}

// Update loads the aggregate under FOR UPDATE, applies fn and persists
// the result. fn errors abort the transaction with no mutation, which
// makes state-machine checks first-committed-wins.
func (r *DocumentRepository) Update(
	ctx context.Context,
	id int64,
	fn func(doc *models.Document) error,
) (*models.Document, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistence.NewDocumentError("Update", id, fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	doc, err := r.getByID(ctx, tx, id, " FOR UPDATE")
	if err != nil {
		return nil, err
	}

	err = fn(doc)
	if err != nil {
		return nil, err
	}

	err = r.persistAggregate(ctx, tx, doc)
	if err != nil {
		return nil, persistence.NewDocumentError("Update", id, err)
	}

	err = tx.Commit()
	if err != nil {
		return nil, persistence.NewDocumentError("Update", id, fmt.Errorf("failed to commit transaction: %w", err))
	}

	return doc, nil
}

// persistAggregate writes the mutated aggregate back: document row,
// task rows, and the assignment set via upsert-and-prune.
func (r *DocumentRepository) persistAggregate(ctx context.Context, tx *sql.Tx, doc *models.Document) error {
	doc.UpdatedAt = time.Now().UTC()

	docQuery := `
		UPDATE documents SET
			status = $2,
			current_step = $3,
			execution_notes = $4,
			updated_at = $5
		WHERE id = $1
	`

	_, err := tx.ExecContext(ctx, docQuery,
		doc.ID, doc.Status, doc.CurrentStep, doc.ExecutionNotes, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	taskQuery := `
		UPDATE document_tasks SET
			status = $2,
			comment = $3,
			completed_at = $4
		WHERE id = $1
	`

	for _, task := range doc.Tasks {
		_, err = tx.ExecContext(ctx, taskQuery, task.ID, task.Status, task.Comment, task.CompletedAt)
		if err != nil {
			return fmt.Errorf("failed to update task at step %d: %w", task.Step, err)
		}
	}

	return r.persistAssignments(ctx, tx, doc)
}

func (r *DocumentRepository) persistAssignments(ctx context.Context, tx *sql.Tx, doc *models.Document) error {
	now := time.Now().UTC()
	kept := make([]string, 0, len(doc.Assignments))

	for _, assignment := range doc.Assignments {
		assignment.DocumentID = doc.ID

		if assignment.ID == 0 {
			err := r.insertAssignment(ctx, tx, assignment, now)
			if err != nil {
				return err
			}
		} else {
			assignment.UpdatedAt = now

			query := `
				UPDATE execution_assignments SET
					status = $2,
					deadline = $3,
					comment = $4,
					updated_at = $5
				WHERE id = $1
			`

			_, err := tx.ExecContext(ctx, query,
				assignment.ID, assignment.Status, assignment.Deadline, assignment.Comment, assignment.UpdatedAt)
			if err != nil {
				return fmt.Errorf("failed to update assignment %d: %w", assignment.ID, err)
			}
		}

		kept = append(kept, strconv.FormatInt(assignment.ID, 10))
	}

	// Prune rows dropped from the aggregate.
	pruneQuery := "DELETE FROM execution_assignments WHERE document_id = $1"
	args := []any{doc.ID}

	if len(kept) > 0 {
		pruneQuery += " AND id <> ALL (string_to_array($2, ',')::bigint[])"
		args = append(args, joinIDs(kept))
	}

	_, err := tx.ExecContext(ctx, pruneQuery, args...)
	if err != nil {
		return fmt.Errorf("failed to prune assignments: %w", err)
	}

	return nil
}

func joinIDs(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ","
		}

		out += id
	}

	return out
}

// List returns paginated and filtered documents without owned rows
// loaded for non-matching pages.
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

	order := "DESC"
	if opts.SortOrder == "asc" {
		order = "ASC"
	}

	where := "WHERE 1=1"
	args := make([]any, 0, 4)

	addArg := func(clause string, value any) {
		args = append(args, value)
		where += fmt.Sprintf(clause, len(args))
	}

	if opts.AuthorID != 0 {
		addArg(" AND author_id = $%d", opts.AuthorID)
	}

	if opts.RecipientID != 0 {
		addArg(" AND recipient_id = $%d", opts.RecipientID)
	}

	if opts.ParticipantID != 0 {
		addArg(" AND (author_id = $%[1]d OR recipient_id = $%[1]d OR responsible_id = $%[1]d)", opts.ParticipantID)
	}

	if opts.Status != nil {
		addArg(" AND status = $%d", *opts.Status)
	}

	var totalCount int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents "+where, args...).Scan(&totalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT %s FROM documents %s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		documentColumns, where, opts.SortBy, order, len(args)+1, len(args)+2,
	)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	defer r.closeRows(ctx, rows)

	documents := make([]*models.Document, 0)

	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}

		documents = append(documents, doc)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	for _, doc := range documents {
		err = r.loadOwned(ctx, r.db, doc)
		if err != nil {
			return nil, fmt.Errorf("failed to load owned rows for document %d: %w", doc.ID, err)
		}
	}

	return &persistence.DocumentListResult{
		Documents:   documents,
		TotalCount:  totalCount,
		HasNextPage: int64(opts.Offset+len(documents)) < totalCount,
	}, nil
}
