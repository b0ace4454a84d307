// Package interrogation decides whether the model gets a follow-up question
// after it replied to an event.
package interrogation

import (
	"context"
	"fmt"

	"github.com/sealor/ai-extractor/pkg/conversation"
	"github.com/sealor/ai-extractor/pkg/orchestrator"
)

const (
	MetaInterrogation = "is_interrogation"
	MetaRetry         = "retry"
)

func newMessage(content string) *conversation.MessageNode {
	msg := conversation.UserMessage(content)
	msg.Metadata[MetaInterrogation] = true
	return msg
}

// Scripted hands out fixed corrections in order, then stops.
type Scripted struct {
	corrections []string
	next        int
}

func NewScripted(corrections ...string) *Scripted {
	return &Scripted{corrections: corrections}
}

func (s *Scripted) GetInterrogationMessage(_ context.Context, _ *conversation.EventNode) (*conversation.MessageNode, error) {
	if s.next >= len(s.corrections) {
		return nil, nil
	}
	s.next++
	return newMessage(s.corrections[s.next-1]), nil
}

// RetryOnDispatchError asks the model to fix a function call that could not
// be dispatched, at most max times per event.
type RetryOnDispatchError struct {
	max int
}

func NewRetryOnDispatchError(max int) *RetryOnDispatchError {
	return &RetryOnDispatchError{max: max}
}

func (r *RetryOnDispatchError) GetInterrogationMessage(_ context.Context, event *conversation.EventNode) (*conversation.MessageNode, error) {
	last := event.Last()
	if last == nil || last.Role != conversation.RoleFunction || last.Metadata[orchestrator.MetaDispatchError] != true {
		return nil, nil
	}

	retries := 0
	for _, msg := range event.History() {
		if msg.Metadata[MetaRetry] == true {
			retries++
		}
	}
	if retries >= r.max {
		return nil, nil
	}

	msg := newMessage(fmt.Sprintf("%s\nFix the arguments and call %s again.",
		last.AIFunctionCallResult, last.AIFunctionCallResultName))
	msg.Metadata[MetaRetry] = true
	return msg, nil
}

// Chain asks the protocols in order and returns the first message.
type Chain []conversation.InterrogationProtocol

func (c Chain) GetInterrogationMessage(ctx context.Context, event *conversation.EventNode) (*conversation.MessageNode, error) {
	for _, p := range c {
		msg, err := p.GetInterrogationMessage(ctx, event)
		if err != nil || msg != nil {
			return msg, err
		}
	}
	return nil, nil
}
