package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sealor/ai-extractor/pkg/conversation"
)

// NewRecordFromEvent maps a processed event. failure is stored as the
// failure reason when the event could not be parsed.
func NewRecordFromEvent(event *conversation.EventNode, failure error, filename, version string) (*Record, error) {
	rec := &Record{
		OriginalEvent: event.RawEventStr(),
		Filename:      filename,
		Version:       version,
		ReplayHistory: NewMessagesFromEvent(event),
	}
	if failure != nil {
		rec.FailureReason = failure.Error()
	}

	if event.EventObj != nil {
		data, err := json.Marshal(event.EventObj)
		if err != nil {
			return nil, fmt.Errorf("marshal event object: %w", err)
		}
		if err := json.Unmarshal(data, &rec.EventJSON); err != nil {
			return nil, fmt.Errorf("event object is not a JSON object: %w", err)
		}
		rec.Name, _ = rec.EventJSON["name"].(string)
		rec.Description, _ = rec.EventJSON["description"].(string)
	} else if rec.FailureReason == "" {
		rec.FailureReason = "no event parsed"
	}
	return rec, nil
}

func NewMessagesFromEvent(event *conversation.EventNode) []Message {
	var messages []Message
	for _, node := range event.History() {
		messages = append(messages, *NewMessageFromNode(node))
	}
	return messages
}

// NewMessageFromNode copies node, the message shares no maps or slices with it.
func NewMessageFromNode(node *conversation.MessageNode) *Message {
	node = node.Clone()
	msg := &Message{
		ID:             node.ID.String(),
		Role:           string(node.Role),
		Content:        node.MessageContent,
		Functions:      node.Functions,
		FunctionName:   node.AIFunctionCallResultName,
		FunctionResult: node.AIFunctionCallResult,
		Metadata:       node.Metadata,
		TemplateVars:   node.TemplateVars,
	}
	if node.ExplicitFnCall != nil {
		msg.ExplicitFnCall = node.ExplicitFnCall.String()
	}
	if call := node.AIFunctionCall; call != nil {
		msg.FunctionCall = &FunctionCall{call.Name, call.Arguments}
	}
	return msg
}

// NewEventFromRecord rebuilds the event so its history can be replayed.
// The history is appended turn by turn, so broken pairings are rejected.
func NewEventFromRecord(rec *Record) (*conversation.EventNode, error) {
	event := conversation.NewEventNode(rec.OriginalEvent)
	for i := range rec.ReplayHistory {
		node, err := NewNodeFromMessage(&rec.ReplayHistory[i])
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		if err := event.Append(node); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
	}
	if rec.EventJSON != nil {
		event.EventObj = rec.EventJSON
	}
	return event, nil
}

func NewNodeFromMessage(msg *Message) (*conversation.MessageNode, error) {
	role, err := conversation.ParseRole(msg.Role)
	if err != nil {
		return nil, err
	}
	node := conversation.NewMessageNode(role, msg.Content)
	if msg.ID != "" {
		if node.ID, err = uuid.Parse(msg.ID); err != nil {
			return nil, fmt.Errorf("message id: %w", err)
		}
	}
	node.Functions = msg.Functions
	if msg.ExplicitFnCall != "" {
		if node.ExplicitFnCall, err = conversation.ParseFunctionCallMode(msg.ExplicitFnCall); err != nil {
			return nil, err
		}
	}
	if msg.FunctionCall != nil {
		node.AIFunctionCall = &conversation.AIFunctionCall{Name: msg.FunctionCall.Name, Arguments: msg.FunctionCall.Arguments}
	}
	node.AIFunctionCallResultName = msg.FunctionName
	node.AIFunctionCallResult = msg.FunctionResult
	for k, v := range msg.Metadata {
		node.Metadata[k] = v
	}
	for k, v := range msg.TemplateVars {
		node.TemplateVars[k] = v
	}
	return node, nil
}
