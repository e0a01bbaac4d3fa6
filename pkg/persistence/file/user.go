package file

import (
	"context"
	"fmt"
	"os"

	"github.com/ebarkov/veriflow/pkg/models"
	"github.com/ebarkov/veriflow/pkg/persistence"
)

const usersDir = "users"

// UserRepository stores users as one JSON file each.
type UserRepository struct {
	store *Persistence
}

// GetByID returns a user by id, or ErrUserNotFound.
func (r *UserRepository) GetByID(_ context.Context, id int64) (*models.User, error) {
	var user models.User

	err := r.store.readJSON(usersDir, id, &user)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("user %d: %w", id, persistence.ErrUserNotFound)
		}

		return nil, fmt.Errorf("failed to read user %d: %w", id, err)
	}

	return &user, nil
}

// MissingIDs returns which of the given ids have no stored user.
func (r *UserRepository) MissingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	missing := make([]int64, 0)
	seen := make(map[int64]bool, len(ids))

	for _, id := range ids {
		if seen[id] {
			continue
		}

		seen[id] = true

		_, err := r.GetByID(ctx, id)
		if err != nil {
			if persistence.IsUserNotFound(err) {
				missing = append(missing, id)

				continue
			}

			return nil, err
		}
	}

	return missing, nil
}

// Save stores a user, assigning an id when absent.
func (r *UserRepository) Save(_ context.Context, user *models.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if user.ID == 0 {
		id, err := r.store.nextID("users")
		if err != nil {
			return err
		}

		user.ID = id
	}

	return r.store.writeJSON(usersDir, user.ID, user)
}
