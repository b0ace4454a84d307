// Package openaiclient sends conversations to an OpenAI compatible
// chat-completion endpoint using the function-calling wire shape.
package openaiclient

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"
	"github.com/sealor/ai-extractor/pkg/conversation"
	"github.com/sealor/ai-extractor/pkg/logging"
	"github.com/sealor/ai-extractor/pkg/tooling"
)

const DefaultMaxRetries = 10

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	// Temperature is left to the server when nil.
	Temperature    *float64
	MaxRetries     int
	RequestTimeout time.Duration
	Debug          bool
	Logger         *slog.Logger
}

type Client struct {
	client      openai.Client
	model       string
	temperature *float64
	logger      *slog.Logger
}

// New builds a client. Retries with backoff and the per attempt timeout are
// handled by the SDK. Extra request options are applied to every request.
func New(cfg Config, opts ...option.RequestOption) *Client {
	options := []option.RequestOption{
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		options = append(options, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.RequestTimeout > 0 {
		options = append(options, option.WithRequestTimeout(cfg.RequestTimeout))
	}
	if cfg.Debug {
		options = append(options, option.WithDebugLog(nil))
	}
	options = append(options, opts...)

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Logger()
	}
	return &Client{
		client:      openai.NewClient(options...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

// Send serializes history, streams the completion and returns the assistant
// turn. A function call whose arguments do not match the offered schema is
// returned as *conversation.ValidationError.
func (c *Client) Send(ctx context.Context, history []*conversation.MessageNode) (*conversation.MessageNode, error) {
	wire, err := conversation.Serialize(history)
	if err != nil {
		return nil, err
	}
	last := &wire[len(wire)-1]
	if last.Role != string(conversation.RoleUser) {
		return nil, conversation.ErrLastMessageNotUser
	}
	functions, mode := last.Functions, last.ExplicitFnCall
	last.Functions, last.ExplicitFnCall = nil, nil

	params := openai.ChatCompletionNewParams{Model: c.model}
	if c.temperature != nil {
		params.Temperature = openai.Float(*c.temperature)
	}
	opts := []option.RequestOption{option.WithJSONSet("messages", wire)}
	if len(functions) > 0 {
		opts = append(opts, option.WithJSONSet("functions", functions))
		if mode != nil {
			opts = append(opts, option.WithJSONSet("function_call", mode))
		}
	}

	c.logger.Debug("sending conversation", "messages", len(wire), "functions", len(functions))
	stream := c.client.Chat.Completions.NewStreaming(ctx, params, opts...)
	reply, err := c.accumulate(stream)
	if closeErr := stream.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if reply.HasFunctionCall() {
		if err := validateCall(reply.AIFunctionCall, functions); err != nil {
			return nil, err
		}
	}
	return reply, nil
}

func (c *Client) accumulate(stream *ssestream.Stream[openai.ChatCompletionChunk]) (*conversation.MessageNode, error) {
	var content, fnName, fnArgs strings.Builder

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		content.WriteString(delta.Content)
		fnName.WriteString(delta.FunctionCall.Name)
		fnArgs.WriteString(delta.FunctionCall.Arguments)
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}

	reply := conversation.AssistantMessage(content.String())
	if fnName.Len() > 0 {
		reply.AIFunctionCall = &conversation.AIFunctionCall{Name: fnName.String(), Arguments: fnArgs.String()}
		c.logger.Debug("model called function", "function", fnName.String(), "arguments", fnArgs.String())
	} else {
		c.logger.Debug("model replied", "content", content.String())
	}
	return reply, nil
}

func validateCall(call *conversation.AIFunctionCall, functions []conversation.FunctionSpec) error {
	fn, ok := tooling.Lookup(functions, call.Name)
	if !ok {
		return &conversation.ValidationError{
			Function:  call.Name,
			Arguments: call.Arguments,
			Reason:    fmt.Errorf("function %s was not offered", call.Name),
		}
	}
	if err := tooling.ValidateArguments(call.Arguments, fn.Parameters); err != nil {
		return &conversation.ValidationError{Function: call.Name, Arguments: call.Arguments, Reason: err}
	}
	return nil
}
