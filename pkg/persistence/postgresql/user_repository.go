package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/ebarkov/veriflow/pkg/models"
	"github.com/ebarkov/veriflow/pkg/persistence"
)

// UserRepository handles user reference lookups.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID returns a user by id, or ErrUserNotFound.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User

	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, role FROM users WHERE id = $1", id).
		Scan(&user.ID, &user.Name, &user.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, persistence.ErrUserNotFound)
		}

		return nil, fmt.Errorf("failed to query user %d: %w", id, err)
	}

	return &user, nil
}

// MissingIDs returns which of the given ids have no user row. The whole
// reference set is validated in one query.
func (r *UserRepository) MissingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT id FROM users WHERE id = ANY($1)", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	defer func() { _ = rows.Close() }()

	existing := make(map[int64]bool, len(ids))

	for rows.Next() {
		var id int64

		err = rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}

		existing[id] = true
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	missing := make([]int64, 0)
	seen := make(map[int64]bool, len(ids))

	for _, id := range ids {
		if !existing[id] && !seen[id] {
			missing = append(missing, id)
			seen[id] = true
		}
	}

	return missing, nil
}

// Save inserts or updates a user row.
func (r *UserRepository) Save(ctx context.Context, user *models.User) error {
	if user.ID == 0 {
		err := r.db.QueryRowContext(ctx,
			"INSERT INTO users (name, role) VALUES ($1, $2) RETURNING id",
			user.Name, user.Role).Scan(&user.ID)
		if err != nil {
			return fmt.Errorf("failed to insert user: %w", err)
		}

		return nil
	}

	query := `
		INSERT INTO users (id, name, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role
	`

	_, err := r.db.ExecContext(ctx, query, user.ID, user.Name, user.Role)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	return nil
}
