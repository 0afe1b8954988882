// Package postgres provides PostgreSQL persistence for workflows and
// execution records.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/persistence"
)

// Persistence implements the persistence layer on PostgreSQL. Workflow graphs
// are stored as JSONB documents; execution records are flat rows queried by
// workflow.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &Persistence{
		db:     database,
		logger: logger.With("module", "postgres_persistence"),
	}

	err = p.migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return p, nil
}

func (p *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT definition FROM workflows ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*models.Workflow

	for rows.Next() {
		var definition []byte

		err = rows.Scan(&definition)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow row: %w", err)
		}

		var workflow models.Workflow

		err = json.Unmarshal(definition, &workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to decode workflow definition: %w", err)
		}

		workflows = append(workflows, &workflow)
	}

	return workflows, rows.Err()
}

func (p *Persistence) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	var definition []byte

	err := p.db.QueryRowContext(ctx, `SELECT definition FROM workflows WHERE id = $1`, id).Scan(&definition)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &persistence.WorkflowError{Op: "WorkflowByID", WorkflowID: id, Err: persistence.ErrWorkflowNotFound}
	}

	if err != nil {
		return nil, &persistence.WorkflowError{Op: "WorkflowByID", WorkflowID: id, Err: err}
	}

	var workflow models.Workflow

	err = json.Unmarshal(definition, &workflow)
	if err != nil {
		return nil, &persistence.WorkflowError{Op: "WorkflowByID", WorkflowID: id, Err: err}
	}

	return &workflow, nil
}

func (p *Persistence) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	definition, err := json.Marshal(workflow)
	if err != nil {
		return &persistence.WorkflowError{Op: "SaveWorkflow", WorkflowID: workflow.ID, Err: err}
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO workflows (id, status, definition, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			definition = EXCLUDED.definition,
			updated_at = NOW()
	`, workflow.ID, workflow.Status, definition)
	if err != nil {
		return &persistence.WorkflowError{Op: "SaveWorkflow", WorkflowID: workflow.ID, Err: err}
	}

	return nil
}

func (p *Persistence) DeleteWorkflow(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return &persistence.WorkflowError{Op: "DeleteWorkflow", WorkflowID: id, Err: err}
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return &persistence.WorkflowError{Op: "DeleteWorkflow", WorkflowID: id, Err: persistence.ErrWorkflowNotFound}
	}

	return nil
}

func (p *Persistence) SaveExecution(ctx context.Context, record *models.ExecutionRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, user_id, status, trigger_node_id, started_at, finished_at, error, nodes_executed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			error = EXCLUDED.error,
			nodes_executed = EXCLUDED.nodes_executed
	`, record.ID, record.WorkflowID, record.UserID, record.Status, record.TriggerNodeID,
		record.StartedAt, record.FinishedAt, record.Error, record.NodesExecuted)
	if err != nil {
		return fmt.Errorf("failed to save execution record %s: %w", record.ID, err)
	}

	return nil
}

func (p *Persistence) ExecutionByID(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	record, err := scanExecution(p.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, user_id, status, trigger_node_id, started_at, finished_at, error, nodes_executed
		FROM executions WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrExecutionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load execution record %s: %w", id, err)
	}

	return record, nil
}

func (p *Persistence) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.ExecutionRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, workflow_id, user_id, status, trigger_node_id, started_at, finished_at, error, nodes_executed
		FROM executions WHERE workflow_id = $1 ORDER BY started_at
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions for workflow %s: %w", workflowID, err)
	}
	defer rows.Close()

	var records []*models.ExecutionRecord

	for rows.Next() {
		record, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*models.ExecutionRecord, error) {
	var (
		record     models.ExecutionRecord
		finishedAt sql.NullTime
		errText    sql.NullString
	)

	err := row.Scan(&record.ID, &record.WorkflowID, &record.UserID, &record.Status,
		&record.TriggerNodeID, &record.StartedAt, &finishedAt, &errText, &record.NodesExecuted)
	if err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		finished := finishedAt.Time.UTC()
		record.FinishedAt = &finished
	}

	record.Error = errText.String
	record.StartedAt = record.StartedAt.UTC()

	return &record, nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	err := p.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}
