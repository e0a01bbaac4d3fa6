package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE users (
				id BIGSERIAL PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				role VARCHAR(50) NOT NULL CHECK (role IN ('employee', 'manager', 'admin'))
			);

			CREATE TABLE documents (
				id BIGSERIAL PRIMARY KEY,
				title VARCHAR(255) NOT NULL,
				body TEXT NOT NULL DEFAULT '',
				author_id BIGINT NOT NULL REFERENCES users(id),
				recipient_id BIGINT NOT NULL REFERENCES users(id),
				responsible_id BIGINT REFERENCES users(id),
				status VARCHAR(50) NOT NULL CHECK (status IN
					('draft', 'in_progress', 'in_execution', 'executed', 'approved', 'rejected')),
				current_step INT NOT NULL DEFAULT 0 CHECK (current_step >= 0),
				execution_notes TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_documents_status ON documents(status);
			CREATE INDEX idx_documents_author ON documents(author_id);
			CREATE INDEX idx_documents_recipient ON documents(recipient_id);
			CREATE INDEX idx_documents_created_at ON documents(created_at);

			CREATE TABLE document_tasks (
				id BIGSERIAL PRIMARY KEY,
				document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
				step INT NOT NULL CHECK (step >= 0),
				assignee_id BIGINT NOT NULL REFERENCES users(id),
				action VARCHAR(50) NOT NULL CHECK (action IN ('approve', 'sign', 'review')),
				status VARCHAR(50) NOT NULL CHECK (status IN
					('pending', 'approved', 'rejected', 'skipped')),
				instruction TEXT NOT NULL DEFAULT '',
				can_skip BOOLEAN NOT NULL DEFAULT false,
				comment_required BOOLEAN NOT NULL DEFAULT false,
				visible_after_step INT NOT NULL DEFAULT 0,
				comment TEXT NOT NULL DEFAULT '',
				completed_at TIMESTAMP WITH TIME ZONE,
				UNIQUE (document_id, step)
			);

			CREATE INDEX idx_document_tasks_assignee ON document_tasks(assignee_id);

			CREATE TABLE document_watchers (
				document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
				user_id BIGINT NOT NULL REFERENCES users(id),
				PRIMARY KEY (document_id, user_id)
			);

			CREATE TABLE execution_assignments (
				id BIGSERIAL PRIMARY KEY,
				document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
				assignee_id BIGINT NOT NULL REFERENCES users(id),
				status VARCHAR(50) NOT NULL CHECK (status IN
					('pending', 'viewed', 'in_progress', 'completed')),
				deadline TIMESTAMP WITH TIME ZONE,
				comment TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				UNIQUE (document_id, assignee_id)
			);

			CREATE INDEX idx_execution_assignments_assignee ON execution_assignments(assignee_id);

			CREATE TABLE audit_sessions (
				id BIGSERIAL PRIMARY KEY,
				type VARCHAR(50) NOT NULL CHECK (type IN
					('scheduled', 'unscheduled', 'internal', 'supplier')),
				status VARCHAR(50) NOT NULL CHECK (status IN ('active', 'closed')),
				auditor_org VARCHAR(255) NOT NULL DEFAULT '',
				auditor_name VARCHAR(255) NOT NULL DEFAULT '',
				comment TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				ended_at TIMESTAMP WITH TIME ZONE
			);

			-- At most one active session process-wide.
			CREATE UNIQUE INDEX idx_audit_sessions_single_active
				ON audit_sessions(status) WHERE status = 'active';

			CREATE TABLE audit_trail (
				id BIGSERIAL PRIMARY KEY,
				session_id BIGINT NOT NULL REFERENCES audit_sessions(id) ON DELETE CASCADE,
				actor_id BIGINT NOT NULL,
				operation VARCHAR(255) NOT NULL,
				entity_kind VARCHAR(100) NOT NULL,
				entity_id BIGINT NOT NULL,
				occurred_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_audit_trail_session ON audit_trail(session_id);
		`,
	}
}
