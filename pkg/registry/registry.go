// Package registry maps stable node type strings to compiled node factories.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flowlinehq/flowline/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

// Registry is the registration table for node types. Entries are loaded once
// at startup; Reload atomically swaps a single entry so that hot-swapping a
// node implementation never touches the executor's hot path.
type Registry struct {
	logger *slog.Logger

	mu            sync.RWMutex
	nodeFactories map[string]protocol.NodeFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:        log,
		nodeFactories: make(map[string]protocol.NodeFactory),
	}
}

// RegisterNode adds a node factory under its type id.
func (r *Registry) RegisterNode(factory protocol.NodeFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nodeFactories[factory.ID()] = factory
}

// Reload atomically replaces the factory for an already registered node type.
func (r *Registry) Reload(factory protocol.NodeFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nodeFactories[factory.ID()]; !ok {
		return fmt.Errorf("node type '%s' not registered", factory.ID())
	}

	r.nodeFactories[factory.ID()] = factory
	r.logger.Info("Reloaded node factory", "node_type", factory.ID())

	return nil
}

// CreateNode validates the configuration against the factory's schema and
// instantiates the node.
func (r *Registry) CreateNode(ctx context.Context, nodeType, id string, config map[string]any) (protocol.Node, error) {
	r.mu.RLock()
	factory, ok := r.nodeFactories[nodeType]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("node type '%s' not registered", nodeType)
	}

	err := validateConfig(factory.Schema(), config)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration for node type '%s': %w", nodeType, err)
	}

	return factory.Create(ctx, id, config)
}

// NodeTypes returns all registered node type ids.
func (r *Registry) NodeTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.nodeFactories))
	for nodeType := range r.nodeFactories {
		types = append(types, nodeType)
	}

	return types
}

func validateConfig(schema map[string]any, config map[string]any) error {
	if schema == nil {
		return nil
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		messages := ""
		for _, desc := range result.Errors() {
			if messages != "" {
				messages += "; "
			}

			messages += desc.String()
		}

		return fmt.Errorf("config does not match schema: %s", messages)
	}

	return nil
}
