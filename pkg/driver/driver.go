// Package driver steps through a batch of raw events and keeps the
// per-event context sent to the model.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sealor/ai-extractor/pkg/conversation"
	"github.com/sealor/ai-extractor/pkg/logging"
)

type OutputKind int

const (
	// NeedMoreEvent carries a new event waiting for its first messages.
	NeedMoreEvent OutputKind = iota
	// GotReply carries the assistant reply for the current event.
	GotReply
	// GotFailure carries a validation failure; the event has been abandoned.
	GotFailure
	// Done means every event was handed out.
	Done
)

func (k OutputKind) String() string {
	switch k {
	case NeedMoreEvent:
		return "need-more-event"
	case GotReply:
		return "got-reply"
	case GotFailure:
		return "got-failure"
	case Done:
		return "done"
	}
	return fmt.Sprintf("OutputKind(%d)", int(k))
}

type Output struct {
	Kind    OutputKind
	Event   *conversation.EventNode
	Reply   *conversation.MessageNode
	Failure error
}

type state int

const (
	stateIdle state = iota
	stateAwaitingMessages
	stateAwaitingFollowUp
	stateDone
)

// Driver is a resumable state machine over a list of events. Only one
// event is in flight at a time and it is not safe for concurrent use.
type Driver struct {
	events  []string
	next    int
	ai      conversation.AIClient
	creator conversation.EventCreator
	logger  *slog.Logger

	state   state
	context []*conversation.MessageNode
}

type Option func(*Driver)

func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

func New(events []string, ai conversation.AIClient, creator conversation.EventCreator, opts ...Option) *Driver {
	d := &Driver{
		events:  events,
		ai:      ai,
		creator: creator,
		logger:  logging.Logger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Advance resumes the driver.
//
// Without input it moves to the next event (NeedMoreEvent or Done). After
// NeedMoreEvent it expects the outbound turns of the event; after GotReply
// it accepts exactly one user message to extend the turn, or no input to
// move on. Errors other than validation failures are returned and the
// current event is abandoned.
func (d *Driver) Advance(ctx context.Context, input []*conversation.MessageNode) (Output, error) {
	switch d.state {
	case stateDone:
		return Output{Kind: Done}, nil

	case stateIdle:
		if len(input) > 0 {
			panic("driver: messages sent before an event was started")
		}
		return d.nextEvent(), nil

	case stateAwaitingMessages:
		if len(input) == 0 {
			panic("driver: an event needs at least one outbound message")
		}
		return d.send(ctx, input)

	case stateAwaitingFollowUp:
		if len(input) == 0 {
			return d.nextEvent(), nil
		}
		if len(input) != 1 || input[0] == nil || input[0].Role != conversation.RoleUser {
			panic("driver: an interrogation must be a single user message")
		}
		return d.send(ctx, input)
	}
	panic(fmt.Sprintf("driver: unknown state %d", d.state))
}

// RecordDispatch adds the function result for the last reply to the
// context, so that further turns are sent with the call paired.
func (d *Driver) RecordDispatch(result *conversation.MessageNode) error {
	if d.state != stateAwaitingFollowUp {
		return fmt.Errorf("%w: no reply to record a dispatch for", conversation.ErrStructural)
	}
	last := d.context[len(d.context)-1]
	if !last.HasFunctionCall() {
		return fmt.Errorf("%w: last reply did not call a function", conversation.ErrOrphanFunctionResult)
	}
	if result.Role != conversation.RoleFunction || result.AIFunctionCallResultName != last.AIFunctionCall.Name {
		return fmt.Errorf("%w: %s expected", conversation.ErrUnpairedFunctionCall, last.AIFunctionCall.Name)
	}
	d.context = append(d.context, result)
	return nil
}

// Context returns the turns sent for the current event so far.
func (d *Driver) Context() []*conversation.MessageNode {
	return append([]*conversation.MessageNode(nil), d.context...)
}

func (d *Driver) nextEvent() Output {
	d.context = nil
	if d.next >= len(d.events) {
		d.state = stateDone
		return Output{Kind: Done}
	}
	raw := d.events[d.next]
	d.next++
	d.state = stateAwaitingMessages
	return Output{Kind: NeedMoreEvent, Event: d.creator.CreateEventNode(raw)}
}

func (d *Driver) send(ctx context.Context, input []*conversation.MessageNode) (Output, error) {
	d.context = append(d.context, input...)

	reply, err := d.ai.Send(ctx, d.context)
	if err != nil {
		d.state = stateIdle
		var verr *conversation.ValidationError
		if errors.As(err, &verr) {
			d.logger.Warn("abandoning event after validation failure", "event", d.next-1, "error", err)
			return Output{Kind: GotFailure, Failure: err}, nil
		}
		return Output{}, fmt.Errorf("send event %d: %w", d.next-1, err)
	}
	if reply == nil || reply.Role != conversation.RoleAssistant {
		d.state = stateIdle
		return Output{}, fmt.Errorf("%w: AI client returned a non assistant reply", conversation.ErrStructural)
	}

	d.context = append(d.context, reply)
	d.state = stateAwaitingFollowUp
	return Output{Kind: GotReply, Reply: reply}, nil
}
