// Package persistence provides the data storage abstraction for documents,
// users and audit sessions.
package persistence

import (
	"context"

	"github.com/ebarkov/veriflow/pkg/models"
)

// Persistence bundles the repositories backing the workflow engine.
type Persistence interface {
	Documents() DocumentRepository
	Users() UserRepository
	Audit() AuditRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListDocumentsOptions filters, sorts and pages a document listing.
type ListDocumentsOptions struct {
	Limit  int
	Offset int

	AuthorID      int64
	RecipientID   int64
	ParticipantID int64
	Status        *models.DocumentStatus

	SortBy    string
	SortOrder string
}

// DocumentListResult carries one page of documents plus paging metadata.
type DocumentListResult struct {
	Documents   []*models.Document `json:"documents"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

// DocumentRepository stores document aggregates. Create persists the
// document with all owned tasks, watchers and assignments as one
// all-or-nothing unit. Update loads the aggregate, applies fn under the
// store's per-document serialization (row lock or mutex), and persists
// the result only when fn returns nil; any error from fn aborts the
// whole mutation. State-machine checks run inside fn, so they observe
// the committed state, not a stale read.
type DocumentRepository interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id int64) (*models.Document, error)
	List(ctx context.Context, opts ListDocumentsOptions) (*DocumentListResult, error)
	FindByTaskID(ctx context.Context, taskID int64) (*models.Document, error)
	FindByAssignmentID(ctx context.Context, assignmentID int64) (*models.Document, error)
	Update(ctx context.Context, id int64, fn func(doc *models.Document) error) (*models.Document, error)
}

// UserRepository resolves and validates user references.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	// MissingIDs returns, from the given set, the ids that do not exist.
	MissingIDs(ctx context.Context, ids []int64) ([]int64, error)
	Save(ctx context.Context, user *models.User) error
}

// AuditRepository stores audit sessions and the tagged-write trail.
// Start must enforce the single-active-session invariant atomically:
// a second active insert fails with ErrAuditSessionActive. Active
// returns ErrAuditSessionNotFound when no session is open.
type AuditRepository interface {
	Start(ctx context.Context, session *models.AuditSession) error
	Active(ctx context.Context) (*models.AuditSession, error)
	Close(ctx context.Context, id int64, comment string) (*models.AuditSession, error)
	GetByID(ctx context.Context, id int64) (*models.AuditSession, error)
	AppendTrail(ctx context.Context, entry *models.AuditTrailEntry) error
	Trail(ctx context.Context, sessionID int64) ([]*models.AuditTrailEntry, error)
}
