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

const agentTriggersDir = "agent_triggers"

// AgentTriggerRepository handles agent trigger file operations.
type AgentTriggerRepository struct {
	p *Persistence
}

func (r *AgentTriggerRepository) GetByID(ctx context.Context, id string) (*models.AgentTrigger, error) {
	var trigger models.AgentTrigger

	err := r.p.read(agentTriggersDir, id, &trigger)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewStoreError("GetByID", "agent trigger", id, persistence.ErrAgentTriggerNotFound)
		}

		return nil, persistence.NewStoreError("GetByID", "agent trigger", id, err)
	}

	return &trigger, nil
}

func (r *AgentTriggerRepository) ListByAgent(ctx context.Context, agentID string) ([]*models.AgentTrigger, error) {
	ids, err := r.p.listIDs(agentTriggersDir)
	if err != nil {
		return nil, persistence.NewStoreError("ListByAgent", "agent trigger", agentID, err)
	}

	triggers := make([]*models.AgentTrigger, 0)

	for _, id := range ids {
		trigger, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}

		if trigger.AgentID == agentID {
			triggers = append(triggers, trigger)
		}
	}

	sort.Slice(triggers, func(i, j int) bool {
		return triggers[i].CreatedAt.Before(triggers[j].CreatedAt)
	})

	return triggers, nil
}

func (r *AgentTriggerRepository) Save(ctx context.Context, trigger *models.AgentTrigger) error {
	now := time.Now().UTC()

	if trigger.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return persistence.NewStoreError("Save", "agent trigger", "", err)
		}

		trigger.ID = id.String()
	}

	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = now
	}

	trigger.UpdatedAt = now

	err := r.p.write(agentTriggersDir, trigger.ID, trigger)
	if err != nil {
		return persistence.NewStoreError("Save", "agent trigger", trigger.ID, err)
	}

	return nil
}

func (r *AgentTriggerRepository) Delete(ctx context.Context, id string) error {
	err := r.p.remove(agentTriggersDir, id)
	if err != nil {
		return persistence.NewStoreError("Delete", "agent trigger", id, err)
	}

	return nil
}
