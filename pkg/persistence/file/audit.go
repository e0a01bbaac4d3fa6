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

const (
	auditSessionsDir = "audit/sessions"
	auditTrailDir    = "audit/trail"
)

// AuditRepository stores audit sessions and trail entries as JSON files.
type AuditRepository struct {
	store *Persistence
}

// Start creates an active session. The check-then-insert runs under the
// store mutex, which enforces the single-active-session invariant.
func (r *AuditRepository) Start(ctx context.Context, session *models.AuditSession) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	active, err := r.active(ctx)
	if err != nil {
		return err
	}

	if active != nil {
		return persistence.ErrAuditSessionActive
	}

	id, err := r.store.nextID("audit_sessions")
	if err != nil {
		return err
	}

	session.ID = id
	session.Status = models.AuditSessionActive
	session.StartedAt = time.Now().UTC()

	return r.store.writeJSON(auditSessionsDir, session.ID, session)
}

// Active returns the active session, or ErrAuditSessionNotFound when
// none is open.
func (r *AuditRepository) Active(ctx context.Context) (*models.AuditSession, error) {
	session, err := r.active(ctx)
	if err != nil {
		return nil, err
	}

	if session == nil {
		return nil, fmt.Errorf("no active session: %w", persistence.ErrAuditSessionNotFound)
	}

	return session, nil
}

func (r *AuditRepository) active(ctx context.Context) (*models.AuditSession, error) {
	ids, err := r.store.listIDs(auditSessionsDir)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		session, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if session.Status == models.AuditSessionActive {
			return session, nil
		}
	}

	return nil, nil
}

// Close marks the session closed and stamps its end time.
func (r *AuditRepository) Close(ctx context.Context, id int64, comment string) (*models.AuditSession, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	session, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if session.Status != models.AuditSessionActive {
		return nil, fmt.Errorf("audit session %d: %w", id, persistence.ErrAuditSessionNotFound)
	}

	now := time.Now().UTC()
	session.Status = models.AuditSessionClosed
	session.EndedAt = &now

	if comment != "" {
		session.Comment = comment
	}

	err = r.store.writeJSON(auditSessionsDir, session.ID, session)
	if err != nil {
		return nil, err
	}

	return session, nil
}

// GetByID returns a session by id, or ErrAuditSessionNotFound.
func (r *AuditRepository) GetByID(_ context.Context, id int64) (*models.AuditSession, error) {
	var session models.AuditSession

	err := r.store.readJSON(auditSessionsDir, id, &session)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("audit session %d: %w", id, persistence.ErrAuditSessionNotFound)
		}

		return nil, fmt.Errorf("failed to read audit session %d: %w", id, err)
	}

	return &session, nil
}

// AppendTrail records a tagged write for the session.
func (r *AuditRepository) AppendTrail(_ context.Context, entry *models.AuditTrailEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	id, err := r.store.nextID("audit_trail")
	if err != nil {
		return err
	}

	entry.ID = id

	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}

	return r.store.writeJSON(auditTrailDir, entry.ID, entry)
}

// Trail returns the tagged writes recorded for the session, oldest first.
func (r *AuditRepository) Trail(_ context.Context, sessionID int64) ([]*models.AuditTrailEntry, error) {
	ids, err := r.store.listIDs(auditTrailDir)
	if err != nil {
		return nil, err
	}

	slices.Sort(ids)

	entries := make([]*models.AuditTrailEntry, 0)

	for _, id := range ids {
		var entry models.AuditTrailEntry

		err = r.store.readJSON(auditTrailDir, id, &entry)
		if err != nil {
			return nil, fmt.Errorf("failed to read audit trail entry %d: %w", id, err)
		}

		if entry.SessionID == sessionID {
			entries = append(entries, &entry)
		}
	}

	return entries, nil
}
