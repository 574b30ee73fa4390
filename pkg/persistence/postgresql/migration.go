package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create workflow_runs table
			CREATE TABLE workflow_runs (
				id UUID PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL,
				app_id VARCHAR(255) NOT NULL,
				sequence_number INTEGER NOT NULL,
				workflow_id VARCHAR(255) NOT NULL,
				type VARCHAR(50) NOT NULL,
				triggered_from VARCHAR(50) NOT NULL,
				version VARCHAR(255),
				graph JSONB,
				inputs JSONB,
				status VARCHAR(50) NOT NULL CHECK (status IN ('running', 'succeeded', 'failed', 'stopped')),
				outputs JSONB,
				error TEXT,
				elapsed_time DOUBLE PRECISION NOT NULL DEFAULT 0,
				total_tokens INTEGER NOT NULL DEFAULT 0,
				total_steps INTEGER NOT NULL DEFAULT 0,
				created_by VARCHAR(255),
				created_by_role VARCHAR(50),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			-- Sequence numbers are unique within a (tenant, app) scope; concurrent
			-- run creation relies on this index plus retry.
			CREATE UNIQUE INDEX uq_workflow_runs_sequence ON workflow_runs(tenant_id, app_id, sequence_number);
			CREATE INDEX idx_workflow_runs_app ON workflow_runs(tenant_id, app_id);
			CREATE INDEX idx_workflow_runs_status ON workflow_runs(status);
			CREATE INDEX idx_workflow_runs_created_at ON workflow_runs(created_at);

			-- Create workflow_node_executions table
			CREATE TABLE workflow_node_executions (
				id UUID PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL,
				app_id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL,
				workflow_run_id UUID NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
				predecessor_node_id VARCHAR(255),
				"index" INTEGER NOT NULL,
				node_id VARCHAR(255) NOT NULL,
				node_type VARCHAR(100) NOT NULL,
				title VARCHAR(255),
				status VARCHAR(50) NOT NULL CHECK (status IN ('running', 'succeeded', 'failed')),
				inputs JSONB,
				process_data JSONB,
				outputs JSONB,
				execution_metadata JSONB,
				error TEXT,
				elapsed_time DOUBLE PRECISION NOT NULL DEFAULT 0,
				created_by VARCHAR(255),
				created_by_role VARCHAR(50),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_node_executions_run ON workflow_node_executions(workflow_run_id);
			CREATE INDEX idx_workflow_node_executions_node ON workflow_node_executions(node_id);
			CREATE INDEX idx_workflow_node_executions_status ON workflow_node_executions(status);
		`,
	}
}
