package conversation

import (
	"fmt"

	"github.com/sealor/ai-extractor/pkg/logging"
)

// WireMessage is one message in the chat-completion request body.
// Functions and ExplicitFnCall are only set on the terminal user message;
// the AI client moves them to the request level before sending.
type WireMessage struct {
	Role           string            `json:"role"`
	Name           string            `json:"name,omitempty"`
	Content        string            `json:"content"`
	FunctionCall   *WireFunctionCall `json:"function_call,omitempty"`
	Functions      []FunctionSpec    `json:"functions,omitempty"`
	ExplicitFnCall *FunctionCallMode `json:"explicit_fn_call,omitempty"`
}

type WireFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Serialize converts history into wire order. A function call is always
// followed by its result, and only the last user message offers functions.
func Serialize(history []*MessageNode) ([]WireMessage, error) {
	if len(history) == 0 {
		return nil, ErrEmptyHistory
	}
	for i, m := range history {
		if m == nil {
			return nil, fmt.Errorf("%w: nil message at %d", ErrStructural, i)
		}
	}
	if history[0].Role == RoleAssistant {
		return nil, ErrAssistantFirst
	}
	if len(history) == 1 {
		return serializeLast(nil, history[0], false)
	}

	var wire []WireMessage
	consumed := false
	for i := 0; i < len(history)-1; i++ {
		curr, next := history[i], history[i+1]
		if consumed {
			// function result already written right after its call
			consumed = false
			continue
		}

		switch curr.Role {
		case RoleSystem, RoleUser:
			wire = append(wire, passthrough(curr))
		case RoleAssistant:
			if !curr.HasFunctionCall() {
				wire = append(wire, passthrough(curr))
				continue
			}
			if next.Role == RoleFunction {
				if next.AIFunctionCallResultName != curr.AIFunctionCall.Name {
					logging.Logger().Warn("function result name does not match call",
						"index", i+1, "call", curr.AIFunctionCall.Name, "result", next.AIFunctionCallResultName)
				}
				wire = append(wire, assistantCall(curr), functionResult(next.AIFunctionCallResultName, next.AIFunctionCallResult))
				consumed = true
				continue
			}
			logging.Logger().Warn("function call not followed by its result",
				"index", i, "function", curr.AIFunctionCall.Name, "next_role", next.Role)
			wire = append(wire, unpairedCall(curr)...)
		case RoleFunction:
			logging.Logger().Warn("skipping function result without preceding call", "index", i)
		default:
			return nil, fmt.Errorf("%w: unknown role %q at %d", ErrStructural, curr.Role, i)
		}
	}

	return serializeLast(wire, history[len(history)-1], consumed)
}

func serializeLast(wire []WireMessage, last *MessageNode, consumed bool) ([]WireMessage, error) {
	switch last.Role {
	case RoleSystem:
		wire = append(wire, passthrough(last))
	case RoleUser:
		msg := passthrough(last)
		if last.Functions != nil {
			msg.Functions = last.Functions
			msg.ExplicitFnCall = last.ExplicitFnCall
			if msg.ExplicitFnCall == nil {
				msg.ExplicitFnCall = AutoCall()
			}
		}
		wire = append(wire, msg)
	case RoleAssistant:
		if !last.HasFunctionCall() {
			wire = append(wire, passthrough(last))
			break
		}
		wire = append(wire, assistantCall(last))
		if last.AIFunctionCallResultName != "" {
			wire = append(wire, functionResult(last.AIFunctionCallResultName, last.AIFunctionCallResult))
		}
	case RoleFunction:
		if consumed {
			break
		}
		if len(wire) == 0 {
			return nil, ErrOrphanFunctionResult
		}
		logging.Logger().Warn("skipping trailing function result without preceding call")
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrStructural, last.Role)
	}
	return wire, nil
}

func passthrough(m *MessageNode) WireMessage {
	return WireMessage{Role: string(m.Role), Content: m.MessageContent}
}

func assistantCall(m *MessageNode) WireMessage {
	return WireMessage{
		Role:    string(RoleAssistant),
		Content: m.MessageContent,
		FunctionCall: &WireFunctionCall{
			Name:      m.AIFunctionCall.Name,
			Arguments: m.AIFunctionCall.Arguments,
		},
	}
}

func functionResult(name, content string) WireMessage {
	return WireMessage{Role: string(RoleFunction), Name: name, Content: content}
}

// unpairedCall never puts a call on the wire without a result: the result is
// taken from the node itself or the call is dropped.
func unpairedCall(m *MessageNode) []WireMessage {
	if m.AIFunctionCallResultName != "" {
		return []WireMessage{assistantCall(m), functionResult(m.AIFunctionCallResultName, m.AIFunctionCallResult)}
	}
	return []WireMessage{passthrough(m)}
}
