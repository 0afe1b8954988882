package protocol

import (
	"errors"

	"github.com/flowlinehq/flowline/pkg/models"
)

// InterventionNeeded is returned as the error of Node.Execute when a node
// requires human input before it can produce output. The executor creates the
// manual intervention, pauses the execution, and checkpoints; the node is
// completed later by the intervention response.
type InterventionNeeded struct {
	Type         models.InterventionType
	Prompt       string
	Choices      []string
	RequiredRole string
	TimeoutMs    int64
}

func (e *InterventionNeeded) Error() string {
	return "node requires manual intervention: " + e.Prompt
}

// AsInterventionNeeded unwraps err into an InterventionNeeded, if it is one.
func AsInterventionNeeded(err error) (*InterventionNeeded, bool) {
	var needed *InterventionNeeded
	if errors.As(err, &needed) {
		return needed, true
	}

	return nil, false
}
