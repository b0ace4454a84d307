package conversation

import (
	"errors"
	"testing"
)

func TestEventNodeAppendEnforcesPairing(t *testing.T) {
	tests := []struct {
		name    string
		msgs    []*MessageNode
		wantErr error
	}{
		{
			name: "paired call",
			msgs: []*MessageNode{
				SystemMessage("S"),
				UserMessage("U"),
				callingAssistant("f", `{}`),
				FunctionResultMessage("f", "ok"),
			},
		},
		{
			name:    "assistant first",
			msgs:    []*MessageNode{AssistantMessage("R")},
			wantErr: ErrAssistantFirst,
		},
		{
			name: "call followed by user",
			msgs: []*MessageNode{
				UserMessage("U"),
				callingAssistant("f", `{}`),
				UserMessage("again"),
			},
			wantErr: ErrUnpairedFunctionCall,
		},
		{
			name: "result for another function",
			msgs: []*MessageNode{
				UserMessage("U"),
				callingAssistant("f", `{}`),
				FunctionResultMessage("g", "ok"),
			},
			wantErr: ErrUnpairedFunctionCall,
		},
		{
			name: "orphan result",
			msgs: []*MessageNode{
				UserMessage("U"),
				FunctionResultMessage("f", "ok"),
			},
			wantErr: ErrOrphanFunctionResult,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := NewEventNode("raw")
			err := event.Append(tt.msgs...)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("append: %v", err)
				}
				if event.Len() != len(tt.msgs) {
					t.Fatalf("len = %d", event.Len())
				}
				return
			}
			if !errors.Is(err, tt.wantErr) || !errors.Is(err, ErrStructural) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if event.Len() != 0 {
				t.Fatalf("rejected batch was partially appended: %d", event.Len())
			}
		})
	}
}

func TestEventNodeValidateRejectsTrailingCall(t *testing.T) {
	event := NewEventNode("raw")
	if err := event.Append(UserMessage("U"), callingAssistant("f", `{}`)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := event.Validate(); !errors.Is(err, ErrUnpairedFunctionCall) {
		t.Fatalf("validate = %v", err)
	}
	if err := event.Append(FunctionResultMessage("f", "ok")); err != nil {
		t.Fatalf("append result: %v", err)
	}
	if err := event.Validate(); err != nil {
		t.Fatalf("validate after result: %v", err)
	}
}

func TestEventNodeCloneIsIndependent(t *testing.T) {
	event := NewEventNode("raw")
	user := UserMessage("U")
	user.Metadata["k"] = "v"
	if err := event.Append(SystemMessage("S"), user); err != nil {
		t.Fatalf("append: %v", err)
	}

	clone := event.Clone()
	clone.History()[1].Metadata["k"] = "changed"
	if err := clone.Append(AssistantMessage("R")); err != nil {
		t.Fatalf("append to clone: %v", err)
	}

	if event.Len() != 2 {
		t.Fatalf("original len = %d", event.Len())
	}
	if event.History()[1].Metadata["k"] != "v" {
		t.Fatalf("original metadata changed")
	}
	if clone.RawEventStr() != "raw" {
		t.Fatalf("raw = %q", clone.RawEventStr())
	}
}

func TestMessageIDsAreTimeOrdered(t *testing.T) {
	a := UserMessage("a")
	b := UserMessage("b")
	if a.ID.String() >= b.ID.String() {
		t.Fatalf("ids not ordered: %s >= %s", a.ID, b.ID)
	}
}
