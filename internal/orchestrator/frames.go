package orchestrator

// Frame type tags used on the orchestrator WebSocket, both directions.
const (
	frameMessage             = "message"
	frameReasoningPrefix     = "reasoning"
	frameError               = "error"
	framePageCreated         = "page_created"
	frameSubscriptionUpdated = "subscription_updated"
	frameSwitchPage          = "switch_page"
	frameStopGeneration      = "stop_generation"
)

// frame is the JSON envelope for every WebSocket message.
// Inbound frames populate Content/Message/Plan depending on Type;
// outbound frames only ever set Type, Content, and PageID.
type frame struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Message string `json:"message,omitempty"`
	PageID  string `json:"page_id,omitempty"`
	Title   string `json:"title,omitempty"`
	Plan    string `json:"plan,omitempty"`
}
