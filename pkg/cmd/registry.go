// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/flowlinehq/flowline/pkg/registry"
)

// NewRegistry builds the node registry with the built-in node library
// installed.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)
	registry.RegisterDefaultNodes(reg)

	return reg
}
