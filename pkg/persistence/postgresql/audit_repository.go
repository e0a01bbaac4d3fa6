package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ebarkov/veriflow/pkg/models"
	"github.com/ebarkov/veriflow/pkg/persistence"
)

// AuditRepository stores audit sessions and the tagged-write trail.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

const auditSessionColumns = `
			id
		  , type
		  , status
		  , auditor_org
		  , auditor_name
		  , comment
		  , started_at
		  , ended_at
`

// Start inserts an active session. The partial unique index on status
// makes a concurrent second start fail atomically.
func (r *AuditRepository) Start(ctx context.Context, session *models.AuditSession) error {
	session.Status = models.AuditSessionActive
	session.StartedAt = time.Now().UTC()

	query := `
		INSERT INTO audit_sessions (type, status, auditor_org, auditor_name, comment, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		session.Type,
		session.Status,
		session.AuditorOrg,
		session.AuditorName,
		session.Comment,
		session.StartedAt,
	).Scan(&session.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return persistence.ErrAuditSessionActive
		}

		return fmt.Errorf("failed to insert audit session: %w", err)
	}

	return nil
}

// Active returns the single active session, or ErrAuditSessionNotFound
// when none is open.
func (r *AuditRepository) Active(ctx context.Context) (*models.AuditSession, error) {
	query := "SELECT " + auditSessionColumns + " FROM audit_sessions WHERE status = $1"

	session, err := scanAuditSession(r.db.QueryRowContext(ctx, query, models.AuditSessionActive))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no active session: %w", persistence.ErrAuditSessionNotFound)
		}

		return nil, fmt.Errorf("failed to query active audit session: %w", err)
	}

	return session, nil
}

// Close marks the session closed and stamps its end time.
func (r *AuditRepository) Close(ctx context.Context, id int64, comment string) (*models.AuditSession, error) {
	query := `
		UPDATE audit_sessions SET
			status = $2,
			ended_at = $3,
			comment = CASE WHEN $4 <> '' THEN $4 ELSE comment END
		WHERE id = $1 AND status = $5
		RETURNING ` + auditSessionColumns

	session, err := scanAuditSession(r.db.QueryRowContext(ctx, query,
		id, models.AuditSessionClosed, time.Now().UTC(), comment, models.AuditSessionActive))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("audit session %d: %w", id, persistence.ErrAuditSessionNotFound)
		}

		return nil, fmt.Errorf("failed to close audit session %d: %w", id, err)
	}

	return session, nil
}

// GetByID returns a session by id, or ErrAuditSessionNotFound.
func (r *AuditRepository) GetByID(ctx context.Context, id int64) (*models.AuditSession, error) {
	query := "SELECT " + auditSessionColumns + " FROM audit_sessions WHERE id = $1"

	session, err := scanAuditSession(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("audit session %d: %w", id, persistence.ErrAuditSessionNotFound)
		}

		return nil, fmt.Errorf("failed to query audit session %d: %w", id, err)
	}

	return session, nil
}

func scanAuditSession(row *sql.Row) (*models.AuditSession, error) {
	var session models.AuditSession

	err := row.Scan(
		&session.ID,
		&session.Type,
		&session.Status,
		&session.AuditorOrg,
		&session.AuditorName,
		&session.Comment,
		&session.StartedAt,
		&session.EndedAt,
	)
	if err != nil {
		return nil, err
	}

	return &session, nil
}

// AppendTrail records a tagged write for the session.
func (r *AuditRepository) AppendTrail(ctx context.Context, entry *models.AuditTrailEntry) error {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_trail (session_id, actor_id, operation, entity_kind, entity_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := r.db.QueryRowContext(ctx, query,
		entry.SessionID,
		entry.ActorID,
		entry.Operation,
		entry.EntityKind,
		entry.EntityID,
		entry.OccurredAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to append audit trail entry: %w", err)
	}

	return nil
}

// Trail returns the tagged writes recorded for the session, oldest first.
func (r *AuditRepository) Trail(ctx context.Context, sessionID int64) ([]*models.AuditTrailEntry, error) {
	query := `
		SELECT
			id
		  , session_id
		  , actor_id
		  , operation
		  , entity_kind
		  , entity_id
		  , occurred_at
		FROM audit_trail
		WHERE session_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail: %w", err)
	}

	defer func() { _ = rows.Close() }()

	entries := make([]*models.AuditTrailEntry, 0)

	for rows.Next() {
		var entry models.AuditTrailEntry

		err = rows.Scan(
			&entry.ID,
			&entry.SessionID,
			&entry.ActorID,
			&entry.Operation,
			&entry.EntityKind,
			&entry.EntityID,
			&entry.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit trail entry: %w", err)
		}

		entries = append(entries, &entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating audit trail: %w", err)
	}

	return entries, nil
}
