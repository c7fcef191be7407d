package eventbus

import "time"

// Event types.
const (
	TemplateSent    = "dispatch.template_sent"
	SessionSent     = "dispatch.session_sent"
	DispatchSkipped = "dispatch.skipped"
	DispatchFailed  = "dispatch.failed"
	CommandApplied  = "command.applied"
	CommandIgnored  = "command.ignored"
	PushSent        = "push.sent"
	PushFailed      = "push.failed"
	PushDropped     = "push.dropped"
)

// Delivery is the payload of dispatch.* and push.* events.
type Delivery struct {
	Recipient string    `json:"recipient"`
	RunID     string    `json:"run_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	ImageRef  string    `json:"image_ref,omitempty"`
	At        time.Time `json:"at"`
	Attempts  int       `json:"attempts,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Command is the payload of command.* events.
type Command struct {
	Recipient string    `json:"recipient"`
	Command   string    `json:"command,omitempty"`
	Persisted bool      `json:"persisted"`
	At        time.Time `json:"at"`
	Error     string    `json:"error,omitempty"`
}
