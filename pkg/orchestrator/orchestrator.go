// Package orchestrator drives each event from raw text to a populated
// EventNode: prompt, send, dispatch and interrogation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sealor/ai-extractor/pkg/conversation"
	"github.com/sealor/ai-extractor/pkg/driver"
	"github.com/sealor/ai-extractor/pkg/logging"
)

var ErrDone = errors.New("orchestrator: no more events")

// MetaDispatchError marks a function turn whose dispatch failed.
const MetaDispatchError = "dispatch_error"

// PromptFunc renders the user message content for an event.
type PromptFunc func(event *conversation.EventNode) string

// Result is the outcome for one event. Failure is nil when the event was resolved.
type Result struct {
	Event   *conversation.EventNode
	Failure error
}

type Orchestrator struct {
	driver        *driver.Driver
	system        *conversation.MessageNode
	manager       conversation.EventManager
	prompt        PromptFunc
	interrogation conversation.InterrogationProtocol
	logger        *slog.Logger
}

type Option func(*Orchestrator)

func WithInterrogation(p conversation.InterrogationProtocol) Option {
	return func(o *Orchestrator) { o.interrogation = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New wires an orchestrator. Every event starts with its own copy of the
// system message. manager may be nil when no functions are offered.
func New(d *driver.Driver, system *conversation.MessageNode, manager conversation.EventManager, prompt PromptFunc, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		driver:  d,
		system:  system,
		manager: manager,
		prompt:  prompt,
		logger:  logging.Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Next processes one event. It returns ErrDone when all events are
// processed. When the AI client fails hard, the failed event is returned in
// the Result along with the error and the caller decides whether to go on.
func (o *Orchestrator) Next(ctx context.Context) (Result, error) {
	out, err := o.driver.Advance(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	if out.Kind == driver.Done {
		return Result{}, ErrDone
	}
	if out.Kind != driver.NeedMoreEvent {
		return Result{}, fmt.Errorf("%w: driver returned %s instead of an event", conversation.ErrStructural, out.Kind)
	}
	event := out.Event
	log := o.logger.With("event", truncate(event.RawEventStr(), 40))

	var functions []conversation.FunctionSpec
	var mode *conversation.FunctionCallMode
	if o.manager != nil {
		functions, mode = o.manager.GetFunctionCallSpec()
	}
	user := conversation.UserMessage(o.prompt(event))
	user.TemplateVars["event"] = event.RawEventStr()
	if len(functions) > 0 {
		user.Functions = functions
		user.ExplicitFnCall = mode
	}
	system := o.system.Fork()
	if err := event.Append(system, user); err != nil {
		return Result{Event: event}, err
	}

	out, err = o.driver.Advance(ctx, []*conversation.MessageNode{system, user})
	if err != nil {
		return Result{Event: event, Failure: err}, err
	}
	if out.Kind == driver.GotFailure {
		log.Warn("model reply failed validation", "error", out.Failure)
		return Result{Event: event, Failure: out.Failure}, nil
	}

	dispatchErr, err := o.handleReply(ctx, event, out.Reply)
	if err != nil {
		return Result{Event: event, Failure: err}, err
	}

	if o.interrogation != nil {
		for {
			msg, err := o.interrogation.GetInterrogationMessage(ctx, event)
			if err != nil {
				return Result{Event: event, Failure: err}, fmt.Errorf("interrogation: %w", err)
			}
			if msg == nil {
				break
			}
			if msg.Role != conversation.RoleUser {
				panic("orchestrator: interrogation protocol returned a non user message")
			}
			// the interrogation is the terminal user turn now, so it carries the offer
			msg = msg.Clone()
			if msg.Functions == nil && len(functions) > 0 {
				msg.Functions = functions
				msg.ExplicitFnCall = mode
			}
			log.Debug("interrogating model", "message", msg.MessageContent)

			out, err = o.driver.Advance(ctx, []*conversation.MessageNode{msg})
			if err != nil {
				return Result{Event: event, Failure: err}, err
			}
			if err := event.Append(msg); err != nil {
				return Result{Event: event}, err
			}
			if out.Kind == driver.GotFailure {
				log.Warn("interrogation reply failed validation", "error", out.Failure)
				return Result{Event: event, Failure: out.Failure}, nil
			}
			if dispatchErr, err = o.handleReply(ctx, event, out.Reply); err != nil {
				return Result{Event: event, Failure: err}, err
			}
		}
	}

	if dispatchErr != nil && event.EventObj == nil {
		return Result{Event: event, Failure: dispatchErr}, nil
	}
	log.Info("event processed", "turns", event.Len(), "parsed", event.EventObj != nil)
	return Result{Event: event}, nil
}

// Run calls fn for every processed event. Hard errors stop the run after fn
// has seen the failed event.
func (o *Orchestrator) Run(ctx context.Context, fn func(Result) error) error {
	for {
		res, err := o.Next(ctx)
		if errors.Is(err, ErrDone) {
			return nil
		}
		if res.Event != nil {
			if ferr := fn(res); ferr != nil {
				return ferr
			}
		}
		if err != nil {
			return err
		}
	}
}

// handleReply appends the reply and dispatches its function call. A failed
// dispatch is reported to the model through the function turn and returned
// as the first value; the second value is a structural error.
func (o *Orchestrator) handleReply(ctx context.Context, event *conversation.EventNode, reply *conversation.MessageNode) (dispatchErr error, err error) {
	if !reply.HasFunctionCall() {
		return nil, event.Append(reply)
	}
	if o.manager == nil {
		panic("orchestrator: model called " + reply.AIFunctionCall.Name + " but no event manager is configured")
	}

	name := reply.AIFunctionCall.Name
	obj, resultStr, dispatchErr := o.manager.TryCallFnAndSetEvent(ctx, reply)
	if dispatchErr != nil && errors.Is(dispatchErr, conversation.ErrStructural) {
		return nil, dispatchErr
	}

	result := conversation.FunctionResultMessage(name, resultStr)
	if dispatchErr != nil {
		result.AIFunctionCallResult = fmt.Sprint("Error calling function ", name, ": ", dispatchErr)
		result.Metadata[MetaDispatchError] = true
		o.logger.Warn("function dispatch failed", "function", name, "error", dispatchErr)
	}
	if err := event.Append(reply, result); err != nil {
		return nil, err
	}
	if err := o.driver.RecordDispatch(result); err != nil {
		return nil, err
	}
	if dispatchErr == nil && obj != nil {
		event.EventObj = obj
	}
	return dispatchErr, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
