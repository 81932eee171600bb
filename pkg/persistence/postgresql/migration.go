package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Generic record table backing the definitions, instances and tasks collections
			CREATE TABLE records (
				collection VARCHAR(64) NOT NULL,
				id VARCHAR(255) NOT NULL,
				revision BIGINT NOT NULL,
				data JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				PRIMARY KEY (collection, id)
			);

			CREATE INDEX idx_records_collection ON records(collection);
		`,
		2: `
			-- Lookups used by the task queue and entity views
			CREATE INDEX idx_records_task_assignee ON records ((data->>'assigned_to'))
				WHERE collection = 'tasks';
			CREATE INDEX idx_records_instance_entity ON records ((data->>'entity_type'), (data->>'entity_id'))
				WHERE collection = 'instances';
			CREATE INDEX idx_records_instance_status ON records ((data->>'status'))
				WHERE collection = 'instances';
		`,
	}
}
