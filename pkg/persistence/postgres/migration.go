package postgres

import (
	"context"
	"fmt"
)

// migrations are applied in order; each entry runs inside its own
// transaction and is recorded in schema_migrations.
var migrations = []string{
	`
		CREATE TABLE workflows (
			id VARCHAR(255) PRIMARY KEY,
			status VARCHAR(50) NOT NULL,
			definition JSONB NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE INDEX idx_workflows_status ON workflows(status);
	`,
	`
		CREATE TABLE executions (
			id VARCHAR(255) PRIMARY KEY,
			workflow_id VARCHAR(255) NOT NULL,
			user_id VARCHAR(255),
			status VARCHAR(50) NOT NULL,
			trigger_node_id VARCHAR(255),
			started_at TIMESTAMP WITH TIME ZONE NOT NULL,
			finished_at TIMESTAMP WITH TIME ZONE,
			error TEXT,
			nodes_executed INT NOT NULL DEFAULT 0
		);

		CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
		CREATE INDEX idx_executions_status ON executions(status);
		CREATE INDEX idx_executions_started_at ON executions(started_at);
	`,
}

func (p *Persistence) migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var current int

	err = p.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to query current schema version: %w", err)
	}

	for version := current; version < len(migrations); version++ {
		tx, err := p.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration transaction: %w", err)
		}

		_, err = tx.ExecContext(ctx, migrations[version])
		if err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("failed to apply migration %d: %w", version+1, err)
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version+1)
		if err != nil {
			_ = tx.Rollback()

			return fmt.Errorf("failed to record migration %d: %w", version+1, err)
		}

		err = tx.Commit()
		if err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version+1, err)
		}

		p.logger.InfoContext(ctx, "Applied database migration", "version", version+1)
	}

	return nil
}
