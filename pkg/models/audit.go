package models

import "time"

// AuditType categorizes the inspection that opened a session.
type AuditType string

const (
	AuditTypeScheduled   AuditType = "scheduled"
	AuditTypeUnscheduled AuditType = "unscheduled"
	AuditTypeInternal    AuditType = "internal"
	AuditTypeSupplier    AuditType = "supplier"
)

// IsValid reports whether t is a known audit type.
func (t AuditType) IsValid() bool {
	switch t {
	case AuditTypeScheduled, AuditTypeUnscheduled, AuditTypeInternal, AuditTypeSupplier:
		return true
	}

	return false
}

// AuditSessionStatus is the state of an audit session.
type AuditSessionStatus string

const (
	AuditSessionActive AuditSessionStatus = "active"
	AuditSessionClosed AuditSessionStatus = "closed"
)

// AuditSession is the process-wide inspection lock. At most one session
// is active at any time; while it is, designated mutations are vetoed
// and all other writes are tagged with the session id.
type AuditSession struct {
	ID          int64              `json:"id"`
	Type        AuditType          `json:"type"`
	Status      AuditSessionStatus `json:"status"`
	AuditorOrg  string             `json:"auditor_org,omitempty"`
	AuditorName string             `json:"auditor_name,omitempty"`
	Comment     string             `json:"comment,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	EndedAt     *time.Time         `json:"ended_at,omitempty"`
}

// AuditTrailEntry records a write that happened while a session was
// active, for later review by the inspector.
type AuditTrailEntry struct {
	ID         int64     `json:"id"`
	SessionID  int64     `json:"session_id"`
	ActorID    int64     `json:"actor_id"`
	Operation  string    `json:"operation"`
	EntityKind string    `json:"entity_kind"`
	EntityID   int64     `json:"entity_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
