package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sealor/ai-extractor/pkg/conversation"
	"github.com/sealor/ai-extractor/pkg/logging"
	"github.com/sealor/ai-extractor/pkg/persistence"
	"github.com/tidwall/gjson"
)

func seededStore(t *testing.T) *persistence.FileStore {
	t.Helper()
	ctx := context.Background()
	store := persistence.NewFileStore(filepath.Join(t.TempDir(), "events.yaml"))

	event := conversation.NewEventNode("Jazz at the pier")
	user := conversation.UserMessage("Parse: Jazz at the pier")
	user.Functions = []conversation.FunctionSpec{{Name: "create_event", Parameters: map[string]any{"type": "object"}}}
	user.ExplicitFnCall = conversation.AutoCall()
	call := conversation.AssistantMessage("")
	call.AIFunctionCall = &conversation.AIFunctionCall{Name: "create_event", Arguments: `{"name":"Jazz"}`}
	if err := event.Append(conversation.SystemMessage("S"), user, call,
		conversation.FunctionResultMessage("create_event", `create_event(name="Jazz")`)); err != nil {
		t.Fatal(err)
	}
	event.EventObj = map[string]any{"name": "Jazz"}

	for _, version := range []string{"v1", "v2"} {
		rec, err := persistence.NewRecordFromEvent(event, nil, "news.txt", version)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := store.AddEvent(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	broken := &persistence.Record{
		OriginalEvent: "broken",
		Filename:      "news.txt",
		Version:       "v1",
		ReplayHistory: []persistence.Message{{Role: "assistant", Content: "hi"}},
	}
	if _, err := store.AddEvent(ctx, broken); err != nil {
		t.Fatal(err)
	}
	return store
}

func get(t *testing.T, store persistence.Store, target string) (int, string) {
	t.Helper()
	app := New(store, logging.Discard())
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	if err != nil {
		t.Fatalf("GET %s: %v", target, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(body)
}

func TestListEvents(t *testing.T) {
	store := seededStore(t)

	tests := []struct {
		target string
		status int
		count  int64
	}{
		{"/events", 200, 3},
		{"/events?version=v1", 200, 2},
		{"/events?filename=other.txt", 200, 0},
		{"/events?limit=1&offset=1", 200, 1},
		{"/events?limit=-1", 400, 0},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			status, body := get(t, store, tt.target)
			if status != tt.status {
				t.Fatalf("status = %d, body = %s", status, body)
			}
			if status == 200 && gjson.Get(body, "#").Int() != tt.count {
				t.Fatalf("body = %s", body)
			}
		})
	}
}

func TestGetEvent(t *testing.T) {
	store := seededStore(t)

	status, body := get(t, store, "/events/1")
	if status != 200 {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	if gjson.Get(body, "name").String() != "Jazz" || gjson.Get(body, "replay_history.#").Int() != 4 {
		t.Fatalf("body = %s", body)
	}

	if status, _ := get(t, store, "/events/99"); status != 404 {
		t.Fatalf("missing status = %d", status)
	}
	if status, _ := get(t, store, "/events/abc"); status != 400 {
		t.Fatalf("invalid id status = %d", status)
	}
}

func TestReplayEvent(t *testing.T) {
	store := seededStore(t)

	status, body := get(t, store, "/events/1/replay")
	if status != 200 {
		t.Fatalf("status = %d, body = %s", status, body)
	}

	var replay struct {
		ID       int64                      `json:"id"`
		Messages []conversation.WireMessage `json:"messages"`
	}
	if err := json.Unmarshal([]byte(body), &replay); err != nil {
		t.Fatal(err)
	}
	roles := []string{}
	for _, m := range replay.Messages {
		roles = append(roles, m.Role)
	}
	if len(roles) != 4 || roles[2] != "assistant" || roles[3] != "function" {
		t.Fatalf("roles = %v", roles)
	}
	if replay.Messages[1].Functions != nil || replay.Messages[3].Name != "create_event" {
		t.Fatalf("messages = %+v", replay.Messages)
	}

	if status, body := get(t, store, "/events/3/replay"); status != 422 {
		t.Fatalf("broken replay = %d, %s", status, body)
	}
}

func TestHealth(t *testing.T) {
	if status, body := get(t, seededStore(t), "/health"); status != 200 || gjson.Get(body, "status").String() != "ok" {
		t.Fatalf("health = %d, %s", status, body)
	}
}
