// Package postgresql provides the PostgreSQL persistence implementation
// for documents, users and audit sessions.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"github.com/ebarkov/veriflow/pkg/persistence"
	"github.com/ebarkov/veriflow/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	documentRepo *DocumentRepository
	userRepo     *UserRepository
	auditRepo    *AuditRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs
// pending schema migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:           database,
		logger:       logger,
		documentRepo: NewDocumentRepository(database, logger),
		userRepo:     NewUserRepository(database),
		auditRepo:    NewAuditRepository(database),
	}, nil
}

// Documents returns the document repository.
func (p *Persistence) Documents() persistence.DocumentRepository {
	return p.documentRepo
}

// Users returns the user repository.
func (p *Persistence) Users() persistence.UserRepository {
	return p.userRepo
}

// Audit returns the audit repository.
func (p *Persistence) Audit() persistence.AuditRepository {
	return p.auditRepo
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
