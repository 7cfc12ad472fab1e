package postgresql

// migrations returns the ordered schema migrations for the engine.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id UUID PRIMARY KEY,
				workspace_id TEXT NOT NULL,
				project_id TEXT NOT NULL,
				name TEXT NOT NULL,
				strategy TEXT NOT NULL,
				trigger_node_id TEXT NOT NULL DEFAULT '',
				is_active BOOLEAN NOT NULL DEFAULT FALSE,
				is_internal BOOLEAN NOT NULL DEFAULT FALSE,
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_workflows_strategy
				ON workflows (strategy) WHERE deleted_at IS NULL AND is_active;
			CREATE INDEX IF NOT EXISTS idx_workflows_workspace
				ON workflows (workspace_id) WHERE deleted_at IS NULL;
		`,
		2: `
			CREATE TABLE IF NOT EXISTS executions (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows (id),
				workspace_id TEXT NOT NULL,
				execution_number BIGINT NOT NULL,
				status TEXT NOT NULL,
				status_message TEXT NOT NULL DEFAULT '',
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				frontier JSONB NOT NULL DEFAULT '[]',
				input_data JSONB,
				output JSONB,
				continue_execution_at TIMESTAMP WITH TIME ZONE,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				stopped_at TIMESTAMP WITH TIME ZONE,
				UNIQUE (workflow_id, execution_number)
			);

			CREATE INDEX IF NOT EXISTS idx_executions_workspace
				ON executions (workspace_id, started_at DESC);
			CREATE INDEX IF NOT EXISTS idx_executions_waiting
				ON executions (continue_execution_at) WHERE status = 'WAITING';
		`,
		3: `
			CREATE TABLE IF NOT EXISTS workspace_execution_queues (
				workspace_id TEXT PRIMARY KEY,
				next_position BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE TABLE IF NOT EXISTS workspace_execution_queue_items (
				id UUID PRIMARY KEY,
				workspace_id TEXT NOT NULL REFERENCES workspace_execution_queues (workspace_id),
				execution_id UUID NOT NULL REFERENCES executions (id) ON DELETE CASCADE,
				position BIGINT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				UNIQUE (workspace_id, position)
			);

			CREATE INDEX IF NOT EXISTS idx_queue_items_workspace
				ON workspace_execution_queue_items (workspace_id, position);
		`,
		4: `
			CREATE TABLE IF NOT EXISTS agent_triggers (
				id UUID PRIMARY KEY,
				agent_id TEXT NOT NULL,
				trigger_id TEXT NOT NULL,
				node JSONB NOT NULL,
				workflow_id UUID,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_agent_triggers_agent
				ON agent_triggers (agent_id);
		`,
	}
}
