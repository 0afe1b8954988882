package protocol

import "context"

// TriggerCallback is invoked by a trigger source when it fires. The payload is
// the trigger data handed to the new execution.
type TriggerCallback func(ctx context.Context, workflowID, triggerNodeID string, data map[string]any) error

// TriggerSource is an external signal source (cron schedule, webhook listener,
// queue consumer) that starts executions via its callback.
type TriggerSource interface {
	Start(ctx context.Context, callback TriggerCallback) error
	Stop(ctx context.Context) error
	Validate(ctx context.Context) error
}
