// Package events turns raw event strings into EventNodes and dispatches the
// function calls of the model to the creators of structured event objects.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sealor/ai-extractor/pkg/conversation"
	"github.com/sealor/ai-extractor/pkg/logging"
	"github.com/sealor/ai-extractor/pkg/tooling"
	"github.com/tidwall/gjson"
)

var ErrUnknownFunction = fmt.Errorf("%w: unknown function", conversation.ErrStructural)

// Creator builds a structured object from the JSON arguments of a call.
type Creator func(arguments string) (any, error)

// MapCreator keeps the arguments as a generic JSON object. It serves
// function specs loaded from files that have no Go type.
func MapCreator(arguments string) (any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(arguments), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("arguments must be a JSON object")
	}
	return obj, nil
}

// Creators returns MapCreator for every function of spec.
func Creators(spec *tooling.Spec) map[string]Creator {
	creators := map[string]Creator{}
	for _, f := range spec.Functions {
		creators[f.Name] = MapCreator
	}
	return creators
}

// Manager offers the functions of a spec and dispatches calls to creators by name.
type Manager struct {
	functions []conversation.FunctionSpec
	mode      *conversation.FunctionCallMode
	creators  map[string]Creator
	logger    *slog.Logger
}

type Option func(*Manager)

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager needs a creator for every function in spec. A nil spec offers no functions.
func NewManager(spec *tooling.Spec, creators map[string]Creator, opts ...Option) (*Manager, error) {
	m := &Manager{creators: creators, logger: logging.Logger()}
	for _, opt := range opts {
		opt(m)
	}
	if spec == nil {
		return m, nil
	}

	mode, err := spec.CallMode()
	if err != nil {
		return nil, err
	}
	m.mode = mode
	m.functions = spec.FunctionSpecs()
	for _, f := range m.functions {
		if _, ok := creators[f.Name]; !ok {
			return nil, fmt.Errorf("no creator for function %s", f.Name)
		}
	}
	return m, nil
}

func (m *Manager) CreateEventNode(rawEventStr string) *conversation.EventNode {
	return conversation.NewEventNode(rawEventStr)
}

func (m *Manager) GetFunctionCallSpec() ([]conversation.FunctionSpec, *conversation.FunctionCallMode) {
	return m.functions, m.mode
}

// TryCallFnAndSetEvent calls the creator named by the model and returns the
// object with its call string `name(key=value, ...)`.
func (m *Manager) TryCallFnAndSetEvent(_ context.Context, aiMessage *conversation.MessageNode) (any, string, error) {
	if aiMessage == nil || !aiMessage.HasFunctionCall() {
		m.logger.Debug("no function call requested")
		return nil, "", nil
	}
	call := aiMessage.AIFunctionCall

	creator, ok := m.creators[call.Name]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownFunction, call.Name)
	}

	obj, err := creator(call.Arguments)
	if err != nil {
		if errors.Is(err, conversation.ErrStructural) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("%s: %w", call.Name, err)
	}
	m.logger.Debug("parsed event", "function", call.Name, "object", obj)
	return obj, FormatCall(call.Name, call.Arguments), nil
}

// FormatCall renders a call with its arguments in the order the model sent them.
func FormatCall(name, arguments string) string {
	var kv []string
	gjson.Parse(arguments).ForEach(func(key, value gjson.Result) bool {
		kv = append(kv, key.String()+"="+value.Raw)
		return true
	})
	return name + "(" + strings.Join(kv, ", ") + ")"
}
