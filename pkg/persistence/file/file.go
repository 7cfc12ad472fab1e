// Package file provides a file-based persistence implementation, used for
// local development and tests.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/orchardhq/orchard/pkg/persistence"
)

// Persistence implements persistence.Persistence on the file system. A
// single mutex serializes the operations that must be atomic (execution
// numbering, queue appends); throughput is not a goal of this backend.
type Persistence struct {
	root string
	mu   sync.Mutex

	workflowRepo     *WorkflowRepository
	executionRepo    *ExecutionRepository
	queueRepo        *QueueRepository
	agentTriggerRepo *AgentTriggerRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
// Accepts a plain path or a file:// URL.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.workflowRepo = &WorkflowRepository{p: p}
	p.executionRepo = &ExecutionRepository{p: p}
	p.queueRepo = &QueueRepository{p: p}
	p.agentTriggerRepo = &AgentTriggerRepository{p: p}

	return p
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) QueueRepository() persistence.QueueRepository {
	return p.queueRepo
}

func (p *Persistence) AgentTriggerRepository() persistence.AgentTriggerRepository {
	return p.agentTriggerRepo
}

// HealthCheck verifies the root directory exists or can be created.
func (p *Persistence) HealthCheck(_ context.Context) error {
	return os.MkdirAll(p.root, 0o750)
}

// Close performs any necessary cleanup. Nothing to do for files.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) dir(entity string) string {
	return filepath.Join(p.root, entity)
}

func (p *Persistence) entityPath(entity, id string) string {
	return filepath.Join(p.root, entity, id+".json")
}

func (p *Persistence) write(entity, id string, value any) error {
	if err := os.MkdirAll(p.dir(entity), 0o750); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", entity, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s %s: %w", entity, id, err)
	}

	err = os.WriteFile(p.entityPath(entity, id), data, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write %s %s: %w", entity, id, err)
	}

	return nil
}

// read unmarshals one entity file into out. Returns os.ErrNotExist when the
// file is missing; callers map that to their sentinel error.
func (p *Persistence) read(entity, id string, out any) error {
	data, err := os.ReadFile(p.entityPath(entity, id))
	if err != nil {
		return err
	}

	err = json.Unmarshal(data, out)
	if err != nil {
		return fmt.Errorf("failed to unmarshal %s %s: %w", entity, id, err)
	}

	return nil
}

func (p *Persistence) remove(entity, id string) error {
	err := os.Remove(p.entityPath(entity, id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s %s: %w", entity, id, err)
	}

	return nil
}

// listIDs returns the ids of all stored entities of a kind.
func (p *Persistence) listIDs(entity string) ([]string, error) {
	root := os.DirFS(p.dir(entity))

	files, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", entity, err)
	}

	ids := make([]string, 0, len(files))
	for _, file := range files {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}
