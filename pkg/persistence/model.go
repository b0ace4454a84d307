// Package persistence handles mapping and storage of parsed events
package persistence

import (
	"context"
	"time"

	"github.com/sealor/ai-extractor/pkg/conversation"
)

// Record is a processed event with the history needed to replay it.
type Record struct {
	ID            int64          `yaml:"id" json:"id"`
	Name          string         `yaml:"name,omitempty" json:"name,omitempty"`
	Description   string         `yaml:"description,omitempty" json:"description,omitempty"`
	EventJSON     map[string]any `yaml:"event_json,omitempty" json:"event_json,omitempty"`
	OriginalEvent string         `yaml:"original_event" json:"original_event"`
	FailureReason string         `yaml:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	Filename      string         `yaml:"filename" json:"filename"`
	Version       string         `yaml:"version" json:"version"`
	ReplayHistory []Message      `yaml:"replay_history" json:"replay_history"`
	CreatedAt     time.Time      `yaml:"created_at,omitempty" json:"created_at"`
}

type Message struct {
	ID             string                      `yaml:"id" json:"id"`
	Role           string                      `yaml:"role" json:"role"`
	Content        string                      `yaml:"content,omitempty" json:"content,omitempty"`
	Functions      []conversation.FunctionSpec `yaml:"functions,omitempty" json:"functions,omitempty"`
	ExplicitFnCall string                      `yaml:"explicit_fn_call,omitempty" json:"explicit_fn_call,omitempty"`
	FunctionCall   *FunctionCall               `yaml:"function_call,omitempty" json:"function_call,omitempty"`
	FunctionName   string                      `yaml:"function_name,omitempty" json:"function_name,omitempty"`
	FunctionResult string                      `yaml:"function_result,omitempty" json:"function_result,omitempty"`
	Metadata       map[string]any              `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	TemplateVars   map[string]string           `yaml:"template_vars,omitempty" json:"template_vars,omitempty"`
}

type FunctionCall struct {
	Name      string `yaml:"name" json:"name"`
	Arguments string `yaml:"arguments" json:"arguments"`
}

// Filter narrows ListEvents. Empty fields match everything.
type Filter struct {
	Version  string
	Filename string
	Limit    int
	Offset   int
}

// Store persists records of processed events.
type Store interface {
	AddEvent(ctx context.Context, rec *Record) (int64, error)
	// GetEvent returns nil, nil if the record does not exist.
	GetEvent(ctx context.Context, id int64) (*Record, error)
	ListEvents(ctx context.Context, filter Filter) ([]Record, error)
	CountEvents(ctx context.Context, version, filename string) (int, error)
}
