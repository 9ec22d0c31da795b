package registry

import (
	"github.com/dukex/crmflow/pkg/actions/approval"
	"github.com/dukex/crmflow/pkg/actions/createtask"
	"github.com/dukex/crmflow/pkg/actions/echo"
	"github.com/dukex/crmflow/pkg/actions/leadscore"
	"github.com/dukex/crmflow/pkg/actions/notification"
	"github.com/dukex/crmflow/pkg/actions/sendmessage"
	"github.com/dukex/crmflow/pkg/actions/updatecontact"
	"github.com/dukex/crmflow/pkg/conditions"
	"github.com/dukex/crmflow/pkg/nodes/action"
	"github.com/dukex/crmflow/pkg/nodes/ai"
	"github.com/dukex/crmflow/pkg/nodes/conditional"
	"github.com/dukex/crmflow/pkg/nodes/delay"
	"github.com/dukex/crmflow/pkg/nodes/trigger"
	"github.com/dukex/crmflow/pkg/protocol"
)

// Collaborators are the external systems the built-in nodes act through. Any
// of them may be nil; nodes needing a missing collaborator fail their result.
type Collaborators struct {
	Messages protocol.MessageGateway
	Contacts protocol.ContactStore
	AI       protocol.AIProvider
	Notifier protocol.Notifier
}

// RegisterDefaultNodes registers the built-in node executors and the action
// catalog.
func (r *Registry) RegisterDefaultNodes(c Collaborators) {
	r.RegisterDefaultActions(c)

	r.Register(trigger.NewExecutor())
	r.Register(action.NewExecutor(r, echo.NewEchoAction(echo.DefaultProcessingDelay)))
	r.Register(conditional.NewExecutor(conditions.NewEvaluator(r.logger)))
	r.Register(delay.NewExecutor())
	r.Register(ai.NewExecutor(c.AI))
}

// RegisterDefaultActions registers the built-in action handlers.
func (r *Registry) RegisterDefaultActions(c Collaborators) {
	r.RegisterAction(sendmessage.NewSendMessageAction(c.Messages))
	r.RegisterAction(updatecontact.NewUpdateContactAction(c.Contacts))
	r.RegisterAction(createtask.NewCreateTaskAction(c.Contacts))
	r.RegisterAction(notification.NewSendNotificationAction(c.Notifier))
	r.RegisterAction(leadscore.NewUpdateLeadScoreAction(c.Contacts))
	r.RegisterAction(approval.NewRequestApprovalAction(c.Notifier))
}
