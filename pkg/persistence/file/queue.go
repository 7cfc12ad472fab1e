package file

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/orchardhq/orchard/pkg/models"
	"github.com/orchardhq/orchard/pkg/persistence"
)

const queuesDir = "queues"

// queueState is the on-disk representation of one workspace queue: the
// queue row and its items in a single file, so append stays atomic.
type queueState struct {
	Queue models.WorkspaceExecutionQueue        `json:"queue"`
	Items []*models.WorkspaceExecutionQueueItem `json:"items"`
	Next  int64                                 `json:"next_position"`
}

// QueueRepository handles workspace queue file operations.
type QueueRepository struct {
	p *Persistence
}

func (r *QueueRepository) Append(ctx context.Context, workspaceID, executionID string) (*models.WorkspaceExecutionQueueItem, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	state, err := r.load(workspaceID)
	if err != nil {
		return nil, persistence.NewStoreError("Append", "queue", workspaceID, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, persistence.NewStoreError("Append", "queue", workspaceID, err)
	}

	state.Next++
	item := &models.WorkspaceExecutionQueueItem{
		ID:          id.String(),
		WorkspaceID: workspaceID,
		ExecutionID: executionID,
		Position:    state.Next,
		CreatedAt:   time.Now().UTC(),
	}
	state.Items = append(state.Items, item)

	err = r.p.write(queuesDir, workspaceID, state)
	if err != nil {
		return nil, persistence.NewStoreError("Append", "queue", workspaceID, err)
	}

	return item, nil
}

func (r *QueueRepository) PeekOldest(ctx context.Context, workspaceID string) (*models.WorkspaceExecutionQueueItem, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	state, err := r.load(workspaceID)
	if err != nil {
		return nil, persistence.NewStoreError("PeekOldest", "queue", workspaceID, err)
	}

	if len(state.Items) == 0 {
		return nil, nil
	}

	sort.Slice(state.Items, func(i, j int) bool {
		return state.Items[i].Position < state.Items[j].Position
	})

	return state.Items[0], nil
}

func (r *QueueRepository) DeleteItem(ctx context.Context, itemID string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	workspaces, err := r.p.listIDs(queuesDir)
	if err != nil {
		return persistence.NewStoreError("DeleteItem", "queue", itemID, err)
	}

	for _, workspaceID := range workspaces {
		state, err := r.load(workspaceID)
		if err != nil {
			return persistence.NewStoreError("DeleteItem", "queue", workspaceID, err)
		}

		for i, item := range state.Items {
			if item.ID != itemID {
				continue
			}

			state.Items = append(state.Items[:i], state.Items[i+1:]...)

			err = r.p.write(queuesDir, workspaceID, state)
			if err != nil {
				return persistence.NewStoreError("DeleteItem", "queue", workspaceID, err)
			}

			return nil
		}
	}

	return persistence.NewStoreError("DeleteItem", "queue", itemID, persistence.ErrQueueItemNotFound)
}

func (r *QueueRepository) NonEmptyWorkspaces(ctx context.Context) ([]string, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	workspaces, err := r.p.listIDs(queuesDir)
	if err != nil {
		return nil, persistence.NewStoreError("NonEmptyWorkspaces", "queue", "", err)
	}

	nonEmpty := make([]string, 0)

	for _, workspaceID := range workspaces {
		state, err := r.load(workspaceID)
		if err != nil {
			return nil, persistence.NewStoreError("NonEmptyWorkspaces", "queue", workspaceID, err)
		}

		if len(state.Items) > 0 {
			nonEmpty = append(nonEmpty, workspaceID)
		}
	}

	return nonEmpty, nil
}

// load reads the queue state, creating an empty one on first use.
func (r *QueueRepository) load(workspaceID string) (*queueState, error) {
	var state queueState

	err := r.p.read(queuesDir, workspaceID, &state)
	if err != nil {
		if os.IsNotExist(err) {
			return &queueState{
				Queue: models.WorkspaceExecutionQueue{
					WorkspaceID: workspaceID,
					CreatedAt:   time.Now().UTC(),
				},
			}, nil
		}

		return nil, err
	}

	return &state, nil
}
