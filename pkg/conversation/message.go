// Package conversation models the turns of a function-calling chat and
// serializes them into the chat-completion wire format.
package conversation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
	RoleFunction  Role = "function"
)

func ParseRole(value string) (Role, error) {
	switch r := Role(value); r {
	case RoleSystem, RoleAssistant, RoleUser, RoleFunction:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", value)
}

// FunctionSpec describes a function the model may call. Parameters is a JSON schema object.
type FunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type CallModeKind int

const (
	CallAuto CallModeKind = iota
	CallNone
	CallExplicit
)

// FunctionCallMode tells the model whether and which function to call.
type FunctionCallMode struct {
	Kind CallModeKind
	Name string
}

func AutoCall() *FunctionCallMode { return &FunctionCallMode{Kind: CallAuto} }

func NoCall() *FunctionCallMode { return &FunctionCallMode{Kind: CallNone} }

func ExplicitCall(name string) *FunctionCallMode {
	return &FunctionCallMode{Kind: CallExplicit, Name: name}
}

// ParseFunctionCallMode accepts "auto", "none" or a function name.
func ParseFunctionCallMode(value string) (*FunctionCallMode, error) {
	switch v := strings.TrimSpace(value); v {
	case "":
		return nil, fmt.Errorf("empty function call mode")
	case "auto":
		return AutoCall(), nil
	case "none":
		return NoCall(), nil
	default:
		return ExplicitCall(v), nil
	}
}

func (m FunctionCallMode) String() string {
	switch m.Kind {
	case CallAuto:
		return "auto"
	case CallNone:
		return "none"
	default:
		return m.Name
	}
}

func (m FunctionCallMode) MarshalJSON() ([]byte, error) {
	switch m.Kind {
	case CallAuto, CallNone:
		return json.Marshal(m.String())
	case CallExplicit:
		if m.Name == "" {
			return nil, fmt.Errorf("explicit function call without name")
		}
		return json.Marshal(struct {
			Name string `json:"name"`
		}{m.Name})
	}
	return nil, fmt.Errorf("unknown function call mode %d", m.Kind)
}

func (m *FunctionCallMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		switch s {
		case "auto":
			*m = FunctionCallMode{Kind: CallAuto}
		case "none":
			*m = FunctionCallMode{Kind: CallNone}
		default:
			return fmt.Errorf("unknown function call mode %q", s)
		}
		return nil
	}

	var named struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &named); err != nil {
		return err
	}
	if named.Name == "" {
		return fmt.Errorf("explicit function call without name")
	}
	*m = FunctionCallMode{Kind: CallExplicit, Name: named.Name}
	return nil
}

// AIFunctionCall is the call requested by the model. Arguments is the raw JSON text.
type AIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// MessageNode is one turn of a conversation.
type MessageNode struct {
	Role Role
	// Time ordered, used for audit and replay ordering only.
	ID uuid.UUID

	MessageContent string

	// Set on a user turn offering functions to the model.
	Functions      []FunctionSpec
	ExplicitFnCall *FunctionCallMode

	// Set on an assistant turn when the model called a function.
	AIFunctionCall *AIFunctionCall

	// Set on a function turn.
	AIFunctionCallResultName string
	AIFunctionCallResult     string

	Metadata     map[string]any
	TemplateVars map[string]string
}

func NewMessageNode(role Role, content string) *MessageNode {
	return &MessageNode{
		Role:           role,
		ID:             newID(),
		MessageContent: content,
		Metadata:       map[string]any{},
		TemplateVars:   map[string]string{},
	}
}

func SystemMessage(content string) *MessageNode {
	return NewMessageNode(RoleSystem, content)
}

func UserMessage(content string) *MessageNode {
	return NewMessageNode(RoleUser, content)
}

func AssistantMessage(content string) *MessageNode {
	return NewMessageNode(RoleAssistant, content)
}

// FunctionResultMessage is the function turn answering a call to name.
func FunctionResultMessage(name, result string) *MessageNode {
	m := NewMessageNode(RoleFunction, "")
	m.AIFunctionCallResultName = name
	m.AIFunctionCallResult = result
	return m
}

func (m *MessageNode) HasFunctionCall() bool {
	return m.AIFunctionCall != nil
}

// Clone returns a deep copy that shares no maps or slices with m.
func (m *MessageNode) Clone() *MessageNode {
	if m == nil {
		return nil
	}
	c := *m
	if m.Functions != nil {
		c.Functions = append([]FunctionSpec(nil), m.Functions...)
	}
	if m.ExplicitFnCall != nil {
		mode := *m.ExplicitFnCall
		c.ExplicitFnCall = &mode
	}
	if m.AIFunctionCall != nil {
		call := *m.AIFunctionCall
		c.AIFunctionCall = &call
	}
	if m.Metadata != nil {
		c.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			c.Metadata[k] = v
		}
	}
	if m.TemplateVars != nil {
		c.TemplateVars = make(map[string]string, len(m.TemplateVars))
		for k, v := range m.TemplateVars {
			c.TemplateVars[k] = v
		}
	}
	return &c
}

// Fork is a Clone under a new ID, for a turn reused across events.
func (m *MessageNode) Fork() *MessageNode {
	c := m.Clone()
	if c != nil {
		c.ID = newID()
	}
	return c
}

func newID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
