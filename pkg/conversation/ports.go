package conversation

import "context"

// AIClient sends a conversation to the model and returns the assistant turn.
// A *ValidationError is returned when the model's function call does not
// match the offered schema; transient failures are retried inside the client.
type AIClient interface {
	Send(ctx context.Context, history []*MessageNode) (*MessageNode, error)
}

// EventCreator creates the EventNode for a raw event string.
type EventCreator interface {
	CreateEventNode(rawEventStr string) *EventNode
}

// EventManager knows which functions to offer and how to dispatch a call.
type EventManager interface {
	EventCreator
	GetFunctionCallSpec() ([]FunctionSpec, *FunctionCallMode)
	// TryCallFnAndSetEvent returns the created object and its string form.
	// Both are empty when the message carries no call.
	TryCallFnAndSetEvent(ctx context.Context, aiMessage *MessageNode) (any, string, error)
}

// InterrogationProtocol decides whether to extend a turn. It returns a
// user message or nil and must not modify the event.
type InterrogationProtocol interface {
	GetInterrogationMessage(ctx context.Context, event *EventNode) (*MessageNode, error)
}
