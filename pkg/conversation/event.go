package conversation

import "fmt"

// EventNode is one unit of work: a raw event string and the conversation that
// turned it into a structured object.
type EventNode struct {
	rawEventStr string
	history     []*MessageNode

	// EventObj is the structured result of the latest successful dispatch.
	EventObj any
	Metadata map[string]any
}

func NewEventNode(rawEventStr string) *EventNode {
	return &EventNode{
		rawEventStr: rawEventStr,
		Metadata:    map[string]any{},
	}
}

func (e *EventNode) RawEventStr() string {
	return e.rawEventStr
}

// History returns the turns in wire order. The slice is a copy, the nodes are shared.
func (e *EventNode) History() []*MessageNode {
	return append([]*MessageNode(nil), e.history...)
}

func (e *EventNode) Len() int {
	return len(e.history)
}

// Last returns the most recent turn or nil.
func (e *EventNode) Last() *MessageNode {
	if len(e.history) == 0 {
		return nil
	}
	return e.history[len(e.history)-1]
}

// Append adds turns to the history. The batch is checked against the
// function call pairing rules before anything is appended.
func (e *EventNode) Append(msgs ...*MessageNode) error {
	prev := e.Last()
	for i, m := range msgs {
		if m == nil {
			return fmt.Errorf("%w: nil message at %d", ErrStructural, len(e.history)+i)
		}
		if err := checkPair(prev, m, len(e.history)+i); err != nil {
			return err
		}
		prev = m
	}
	e.history = append(e.history, msgs...)
	return nil
}

// Validate checks the whole history, including that no call is left without a result.
func (e *EventNode) Validate() error {
	return ValidateHistory(e.history)
}

// Clone copies the event for handoff. EventObj is shared.
func (e *EventNode) Clone() *EventNode {
	c := &EventNode{
		rawEventStr: e.rawEventStr,
		EventObj:    e.EventObj,
		Metadata:    make(map[string]any, len(e.Metadata)),
	}
	for k, v := range e.Metadata {
		c.Metadata[k] = v
	}
	for _, m := range e.history {
		c.history = append(c.history, m.Clone())
	}
	return c
}

func ValidateHistory(history []*MessageNode) error {
	var prev *MessageNode
	for i, m := range history {
		if m == nil {
			return fmt.Errorf("%w: nil message at %d", ErrStructural, i)
		}
		if err := checkPair(prev, m, i); err != nil {
			return err
		}
		prev = m
	}
	if prev != nil && prev.HasFunctionCall() {
		return fmt.Errorf("%w: %s at %d", ErrUnpairedFunctionCall, prev.AIFunctionCall.Name, len(history)-1)
	}
	return nil
}

func checkPair(prev, next *MessageNode, index int) error {
	if prev == nil && next.Role == RoleAssistant {
		return ErrAssistantFirst
	}
	if prev != nil && prev.HasFunctionCall() {
		if next.Role != RoleFunction {
			return fmt.Errorf("%w: %s at %d followed by %s", ErrUnpairedFunctionCall, prev.AIFunctionCall.Name, index-1, next.Role)
		}
		if next.AIFunctionCallResultName != prev.AIFunctionCall.Name {
			return fmt.Errorf("%w: result %q at %d does not answer %q", ErrUnpairedFunctionCall, next.AIFunctionCallResultName, index, prev.AIFunctionCall.Name)
		}
		return nil
	}
	if next.Role == RoleFunction {
		return fmt.Errorf("%w: at %d", ErrOrphanFunctionResult, index)
	}
	return nil
}
