package orchestrator

// Event is a sealed interface representing something the orchestrator
// told us over the WebSocket. Transport errors surface as
// EventDisconnected, not as a separate error channel.
// The unexported marker method prevents external implementations.
type Event interface {
	event()
}

// EventConnected signals that the socket is open (including after a
// successful reconnect).
type EventConnected struct {
	Reconnected bool
}

func (EventConnected) event() {}

// EventAssistantMessage is a complete AI reply.
type EventAssistantMessage struct {
	Content string
}

func (EventAssistantMessage) event() {}

// EventReasoning is an intermediate reasoning update. Stage carries the
// full frame type ("reasoning", "reasoning_delta", ...).
type EventReasoning struct {
	Stage   string
	Content string
}

func (EventReasoning) event() {}

// EventError is an error reported by the orchestrator itself.
type EventError struct {
	Message string
}

func (EventError) event() {}

// EventPageCreated signals that the server persisted a new page for
// this conversation.
type EventPageCreated struct {
	PageID string
	Title  string
}

func (EventPageCreated) event() {}

// EventSubscriptionUpdated signals a plan change for the current user.
type EventSubscriptionUpdated struct {
	Plan string
}

func (EventSubscriptionUpdated) event() {}

// EventDisconnected signals that the connection is gone and no further
// reconnect will be attempted for this close. Err is nil on a normal
// close.
type EventDisconnected struct {
	Err error
}

func (EventDisconnected) event() {}

// Interface compliance checks.
var (
	_ Event = EventConnected{}
	_ Event = EventAssistantMessage{}
	_ Event = EventReasoning{}
	_ Event = EventError{}
	_ Event = EventPageCreated{}
	_ Event = EventSubscriptionUpdated{}
	_ Event = EventDisconnected{}
)
