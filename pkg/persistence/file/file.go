// Package file provides file-based persistence for documents, users and
// audit sessions. It is intended for tests and local development; every
// entity is one JSON file under the root directory.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ebarkov/veriflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the
// file system. A single store-wide mutex serializes mutations, which
// stands in for the row locks the SQL implementation takes.
type Persistence struct {
	root         string
	mu           sync.Mutex
	documentRepo *DocumentRepository
	userRepo     *UserRepository
	auditRepo    *AuditRepository
}

// NewPersistence creates a new instance rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.documentRepo = &DocumentRepository{store: p}
	p.userRepo = &UserRepository{store: p}
	p.auditRepo = &AuditRepository{store: p}

	return p
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

// Close performs any necessary cleanup. Nothing to do for files.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// nextID hands out monotonically increasing ids per entity kind,
// persisted so restarts never reuse an id. Callers hold p.mu.
func (p *Persistence) nextID(kind string) (int64, error) {
	counterPath := filepath.Join(p.root, kind+".seq")

	var current int64

	data, err := os.ReadFile(counterPath)
	if err == nil {
		current, err = strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("corrupt sequence file %s: %w", counterPath, err)
		}
	} else if !os.IsNotExist(err) {
		return 0, fmt.Errorf("failed to read sequence file: %w", err)
	}

	next := current + 1

	err = os.MkdirAll(p.root, 0o755)
	if err != nil {
		return 0, fmt.Errorf("failed to create root directory: %w", err)
	}

	err = os.WriteFile(counterPath, []byte(strconv.FormatInt(next, 10)), 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to write sequence file: %w", err)
	}

	return next, nil
}

// writeJSON marshals v into dir/<id>.json. Callers hold p.mu.
func (p *Persistence) writeJSON(dir string, id int64, v any) error {
	fullDir := filepath.Join(p.root, dir)

	err := os.MkdirAll(fullDir, 0o755)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", fullDir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	path := filepath.Join(fullDir, strconv.FormatInt(id, 10)+".json")

	err = os.WriteFile(path, data, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

// readJSON unmarshals dir/<id>.json into v; returns os.ErrNotExist when absent.
func (p *Persistence) readJSON(dir string, id int64, v any) error {
	path := filepath.Join(p.root, dir, strconv.FormatInt(id, 10)+".json")

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	err = json.Unmarshal(data, v)
	if err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", path, err)
	}

	return nil
}

// listIDs returns the entity ids present under dir, unsorted.
func (p *Persistence) listIDs(dir string) ([]int64, error) {
	entries, err := os.ReadDir(filepath.Join(p.root, dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	ids := make([]int64, 0, len(entries))

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}

		id, err := strconv.ParseInt(strings.TrimSuffix(name, ".json"), 10, 64)
		if err != nil {
			continue
		}

		ids = append(ids, id)
	}

	return ids, nil
}
