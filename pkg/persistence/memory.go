package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/flowlinehq/flowline/pkg/models"
)

// MemoryPersistence keeps workflows and execution records in process memory.
// Used by tests and single-process development setups.
type MemoryPersistence struct {
	mu         sync.RWMutex
	workflows  map[string]*models.Workflow
	executions map[string]*models.ExecutionRecord
}

func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		workflows:  make(map[string]*models.Workflow),
		executions: make(map[string]*models.ExecutionRecord),
	}
}

func (p *MemoryPersistence) Workflows(_ context.Context) ([]*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(p.workflows))
	for _, workflow := range p.workflows {
		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool { return workflows[i].ID < workflows[j].ID })

	return workflows, nil
}

func (p *MemoryPersistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflow, ok := p.workflows[id]
	if !ok {
		return nil, &WorkflowError{Op: "WorkflowByID", WorkflowID: id, Err: ErrWorkflowNotFound}
	}

	return workflow, nil
}

func (p *MemoryPersistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.workflows[workflow.ID] = workflow

	return nil
}

func (p *MemoryPersistence) DeleteWorkflow(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.workflows[id]; !ok {
		return &WorkflowError{Op: "DeleteWorkflow", WorkflowID: id, Err: ErrWorkflowNotFound}
	}

	delete(p.workflows, id)

	return nil
}

func (p *MemoryPersistence) SaveExecution(_ context.Context, record *models.ExecutionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.executions[record.ID] = record

	return nil
}

func (p *MemoryPersistence) ExecutionByID(_ context.Context, id string) (*models.ExecutionRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	record, ok := p.executions[id]
	if !ok {
		return nil, ErrExecutionNotFound
	}

	return record, nil
}

func (p *MemoryPersistence) ExecutionsByWorkflow(_ context.Context, workflowID string) ([]*models.ExecutionRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var records []*models.ExecutionRecord

	for _, record := range p.executions {
		if record.WorkflowID == workflowID {
			records = append(records, record)
		}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].StartedAt.Before(records[j].StartedAt) })

	return records, nil
}

func (p *MemoryPersistence) HealthCheck(_ context.Context) error { return nil }

func (p *MemoryPersistence) Close(_ context.Context) error { return nil }
