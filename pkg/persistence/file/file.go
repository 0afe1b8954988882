// Package file provides file-based persistence for workflows and execution
// records. Intended for development and single-node setups.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/persistence"
)

// Persistence stores workflows and execution records as JSON files under a
// root directory.
type Persistence struct {
	root string
	mu   sync.RWMutex
}

func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, dir := range []string{"workflows", "executions"} {
		err := os.MkdirAll(path.Join(cleanRoot, dir), 0o755)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare persistence directory: %w", err)
		}
	}

	return &Persistence{root: cleanRoot}, nil
}

func (p *Persistence) workflowPath(id string) string {
	return path.Join(p.root, "workflows", id+".json")
}

func (p *Persistence) executionPath(id string) string {
	return path.Join(p.root, "executions", id+".json")
}

func (p *Persistence) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	root := os.DirFS(path.Join(p.root, "workflows"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		workflow, err := p.readWorkflow(file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool { return workflows[i].ID < workflows[j].ID })

	return workflows, nil
}

func (p *Persistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.readWorkflow(id)
}

func (p *Persistence) readWorkflow(id string) (*models.Workflow, error) {
	data, err := os.ReadFile(p.workflowPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &persistence.WorkflowError{Op: "WorkflowByID", WorkflowID: id, Err: persistence.ErrWorkflowNotFound}
		}

		return nil, &persistence.WorkflowError{Op: "WorkflowByID", WorkflowID: id, Err: err}
	}

	var workflow models.Workflow

	err = json.Unmarshal(data, &workflow)
	if err != nil {
		return nil, &persistence.WorkflowError{Op: "WorkflowByID", WorkflowID: id, Err: err}
	}

	return &workflow, nil
}

func (p *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return &persistence.WorkflowError{Op: "SaveWorkflow", WorkflowID: workflow.ID, Err: err}
	}

	err = os.WriteFile(p.workflowPath(workflow.ID), data, 0o644)
	if err != nil {
		return &persistence.WorkflowError{Op: "SaveWorkflow", WorkflowID: workflow.ID, Err: err}
	}

	return nil
}

func (p *Persistence) DeleteWorkflow(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := os.Remove(p.workflowPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return &persistence.WorkflowError{Op: "DeleteWorkflow", WorkflowID: id, Err: persistence.ErrWorkflowNotFound}
	}

	return err
}

func (p *Persistence) SaveExecution(_ context.Context, record *models.ExecutionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution record %s: %w", record.ID, err)
	}

	err = os.WriteFile(p.executionPath(record.ID), data, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write execution record %s: %w", record.ID, err)
	}

	return nil
}

func (p *Persistence) ExecutionByID(_ context.Context, id string) (*models.ExecutionRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	data, err := os.ReadFile(p.executionPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, fmt.Errorf("failed to read execution record %s: %w", id, err)
	}

	var record models.ExecutionRecord

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to decode execution record %s: %w", id, err)
	}

	return &record, nil
}

func (p *Persistence) ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.ExecutionRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	root := os.DirFS(path.Join(p.root, "executions"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution records: %w", err)
	}

	records := make([]*models.ExecutionRecord, 0)

	for _, file := range jsonFiles {
		data, err := os.ReadFile(path.Join(p.root, "executions", file))
		if err != nil {
			return nil, fmt.Errorf("failed to read execution record %s: %w", file, err)
		}

		var record models.ExecutionRecord

		err = json.Unmarshal(data, &record)
		if err != nil {
			return nil, fmt.Errorf("failed to decode execution record %s: %w", file, err)
		}

		if record.WorkflowID == workflowID {
			records = append(records, &record)
		}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].StartedAt.Before(records[j].StartedAt) })

	return records, nil
}

// HealthCheck verifies the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file-based persistence, there is
// nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}
