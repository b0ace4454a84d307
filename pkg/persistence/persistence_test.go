package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sealor/ai-extractor/pkg/conversation"
)

type weather struct {
	Location string `json:"location"`
	Unit     string `json:"unit"`
}

func processedEvent(t *testing.T) *conversation.EventNode {
	t.Helper()
	event := conversation.NewEventNode("Boston is at 72F")

	user := conversation.UserMessage("Parse: Boston is at 72F")
	user.TemplateVars["event"] = "Boston is at 72F"
	user.Functions = []conversation.FunctionSpec{{
		Name: "get_current_weather",
		Parameters: map[string]any{
			"type":     "object",
			"required": []any{"location"},
		},
	}}
	user.ExplicitFnCall = conversation.ExplicitCall("get_current_weather")

	call := conversation.AssistantMessage("")
	call.AIFunctionCall = &conversation.AIFunctionCall{Name: "get_current_weather", Arguments: `{"location":"Boston","unit":"fahrenheit"}`}
	result := conversation.FunctionResultMessage("get_current_weather", `get_current_weather(location="Boston", unit="fahrenheit")`)
	result.Metadata["dispatch_error"] = false

	if err := event.Append(conversation.SystemMessage("S"), user, call, result); err != nil {
		t.Fatalf("append: %v", err)
	}
	event.EventObj = &weather{Location: "Boston", Unit: "fahrenheit"}
	return event
}

func wireJSON(t *testing.T, history []*conversation.MessageNode) string {
	t.Helper()
	wire, err := conversation.Serialize(history)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	data, err := json.Marshal(wire)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "events.yaml"))
	event := processedEvent(t)

	rec, err := NewRecordFromEvent(event, nil, "news.txt", "v1")
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if rec.FailureReason != "" || rec.EventJSON["location"] != "Boston" {
		t.Fatalf("record = %+v", rec)
	}

	id, err := store.AddEvent(ctx, rec)
	if err != nil || id != 1 {
		t.Fatalf("add = %d, %v", id, err)
	}

	loaded, err := store.GetEvent(ctx, id)
	if err != nil || loaded == nil {
		t.Fatalf("get = %+v, %v", loaded, err)
	}
	rebuilt, err := NewEventFromRecord(loaded)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	if rebuilt.RawEventStr() != event.RawEventStr() || rebuilt.Len() != event.Len() {
		t.Fatalf("rebuilt = %q with %d turns", rebuilt.RawEventStr(), rebuilt.Len())
	}
	for i, node := range rebuilt.History() {
		orig := event.History()[i]
		if node.ID != orig.ID || node.Role != orig.Role {
			t.Fatalf("turn %d = %s/%s, want %s/%s", i, node.ID, node.Role, orig.ID, orig.Role)
		}
	}
	if got := rebuilt.History()[1].TemplateVars["event"]; got != "Boston is at 72F" {
		t.Fatalf("template vars = %v", rebuilt.History()[1].TemplateVars)
	}
	if got, want := wireJSON(t, rebuilt.History()), wireJSON(t, event.History()); got != want {
		t.Fatalf("replay differs:\n got %s\nwant %s", got, want)
	}
}

func TestFileStoreQueries(t *testing.T) {
	ctx := context.Background()
	store := NewFileStore(filepath.Join(t.TempDir(), "events.yaml"))

	if records, err := store.Load(); err != nil || records != nil {
		t.Fatalf("missing file = %v, %v", records, err)
	}
	if rec, err := store.GetEvent(ctx, 7); err != nil || rec != nil {
		t.Fatalf("get missing = %+v, %v", rec, err)
	}

	for _, f := range []struct{ filename, version string }{
		{"a.txt", "v1"}, {"a.txt", "v1"}, {"b.txt", "v1"}, {"a.txt", "v2"},
	} {
		rec, err := NewRecordFromEvent(conversation.NewEventNode("raw"), errors.New("model gave up"), f.filename, f.version)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := store.AddEvent(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	if n, err := store.CountEvents(ctx, "v1", "a.txt"); err != nil || n != 2 {
		t.Fatalf("count = %d, %v", n, err)
	}
	if n, _ := store.CountEvents(ctx, "", ""); n != 4 {
		t.Fatalf("count all = %d", n)
	}

	tests := []struct {
		name    string
		filter  Filter
		wantIDs []int64
	}{
		{"all", Filter{}, []int64{1, 2, 3, 4}},
		{"version", Filter{Version: "v1"}, []int64{1, 2, 3}},
		{"filename", Filter{Filename: "a.txt"}, []int64{1, 2, 4}},
		{"page", Filter{Limit: 2, Offset: 1}, []int64{2, 3}},
		{"past end", Filter{Offset: 9}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := store.ListEvents(ctx, tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(records) != len(tt.wantIDs) {
				t.Fatalf("got %d records, want %v", len(records), tt.wantIDs)
			}
			for i, r := range records {
				if r.ID != tt.wantIDs[i] {
					t.Fatalf("record %d has id %d, want %d", i, r.ID, tt.wantIDs[i])
				}
			}
		})
	}

	rec, _ := store.GetEvent(ctx, 3)
	if rec.FailureReason != "model gave up" || rec.EventJSON != nil {
		t.Fatalf("failed record = %+v", rec)
	}
}

func TestRecordDoesNotAliasEvent(t *testing.T) {
	event := processedEvent(t)
	rec, err := NewRecordFromEvent(event, nil, "news.txt", "v1")
	if err != nil {
		t.Fatal(err)
	}

	rec.ReplayHistory[1].TemplateVars["event"] = "changed"
	rec.ReplayHistory[1].Functions[0].Name = "changed"
	rec.ReplayHistory[3].Metadata["dispatch_error"] = true

	history := event.History()
	if history[1].TemplateVars["event"] != "Boston is at 72F" || history[1].Functions[0].Name != "get_current_weather" {
		t.Fatalf("user turn changed through the record: %+v", history[1])
	}
	if history[3].Metadata["dispatch_error"] != false {
		t.Fatalf("function turn changed through the record: %+v", history[3].Metadata)
	}
}

func TestNewEventFromRecordRejectsBrokenHistory(t *testing.T) {
	tests := []struct {
		name    string
		history []Message
		wantErr error
	}{
		{"assistant first", []Message{{Role: "assistant", Content: "hi"}}, conversation.ErrAssistantFirst},
		{"orphan result", []Message{{Role: "user", Content: "u"}, {Role: "function", FunctionName: "f"}}, conversation.ErrOrphanFunctionResult},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEventFromRecord(&Record{OriginalEvent: "raw", ReplayHistory: tt.history})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	_, err := NewEventFromRecord(&Record{ReplayHistory: []Message{{Role: "robot"}}})
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
}
