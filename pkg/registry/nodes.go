package registry

import (
	"github.com/flowlinehq/flowline/pkg/nodes/approval"
	"github.com/flowlinehq/flowline/pkg/nodes/conditional"
	"github.com/flowlinehq/flowline/pkg/nodes/httprequest"
	"github.com/flowlinehq/flowline/pkg/nodes/log"
	"github.com/flowlinehq/flowline/pkg/nodes/loop"
	"github.com/flowlinehq/flowline/pkg/nodes/merge"
	switchnode "github.com/flowlinehq/flowline/pkg/nodes/switch"
	"github.com/flowlinehq/flowline/pkg/nodes/transform"
	"github.com/flowlinehq/flowline/pkg/nodes/trigger"
)

// RegisterDefaultNodes installs the built-in node types. Callers can register
// additional factories on top.
func RegisterDefaultNodes(r *Registry) {
	r.RegisterNode(trigger.NewManualTriggerNodeFactory())
	r.RegisterNode(trigger.NewWebhookTriggerNodeFactory())
	r.RegisterNode(trigger.NewScheduleTriggerNodeFactory())
	r.RegisterNode(conditional.NewConditionalNodeFactory())
	r.RegisterNode(switchnode.NewSwitchNodeFactory())
	r.RegisterNode(merge.NewMergeNodeFactory())
	r.RegisterNode(transform.NewTransformNodeFactory())
	r.RegisterNode(httprequest.NewHTTPRequestNodeFactory())
	r.RegisterNode(log.NewLogNodeFactory())
	r.RegisterNode(loop.NewLoopNodeFactory())
	r.RegisterNode(approval.NewApprovalNodeFactory())
}
