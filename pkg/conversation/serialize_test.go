package conversation

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func weatherFunctions() []FunctionSpec {
	return []FunctionSpec{{
		Name:        "get_current_weather",
		Description: "Parse the data into a WeatherEvent object",
		Parameters: map[string]any{
			"type":     "object",
			"required": []any{"location"},
			"properties": map[string]any{
				"location": map[string]any{"type": "string"},
			},
		},
	}}
}

func callingAssistant(name, args string) *MessageNode {
	m := AssistantMessage("")
	m.AIFunctionCall = &AIFunctionCall{Name: name, Arguments: args}
	return m
}

func mustMarshal(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func TestSerializeSingleMessage(t *testing.T) {
	wire, err := Serialize([]*MessageNode{SystemMessage("S")})
	if err != nil {
		t.Fatalf("serialize system: %v", err)
	}
	if got := mustMarshal(t, wire); got != `[{"role":"system","content":"S"}]` {
		t.Fatalf("system wire = %s", got)
	}

	user := UserMessage("U")
	user.Functions = weatherFunctions()
	user.ExplicitFnCall = ExplicitCall("get_current_weather")
	wire, err = Serialize([]*MessageNode{user})
	if err != nil {
		t.Fatalf("serialize user: %v", err)
	}
	got := mustMarshal(t, wire)
	for _, key := range []string{`"functions"`, `"explicit_fn_call":{"name":"get_current_weather"}`} {
		if !strings.Contains(got, key) {
			t.Fatalf("user wire %s misses %s", got, key)
		}
	}

	if _, err := Serialize([]*MessageNode{AssistantMessage("R")}); !errors.Is(err, ErrAssistantFirst) {
		t.Fatalf("assistant first err = %v", err)
	}
	if _, err := Serialize(nil); !errors.Is(err, ErrEmptyHistory) {
		t.Fatalf("empty history err = %v", err)
	}
}

func TestSerializePairsFunctionCallWithResult(t *testing.T) {
	user := UserMessage("parse it")
	user.Functions = weatherFunctions()
	user.ExplicitFnCall = AutoCall()

	history := []*MessageNode{
		SystemMessage("S"),
		user,
		callingAssistant("get_current_weather", `{"location":"Boston"}`),
		FunctionResultMessage("get_current_weather", "get_current_weather(location='Boston')"),
		UserMessage("use celsius"),
	}

	wire, err := Serialize(history)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	want := `[{"role":"system","content":"S"},` +
		`{"role":"user","content":"parse it"},` +
		`{"role":"assistant","content":"","function_call":{"name":"get_current_weather","arguments":"{\"location\":\"Boston\"}"}},` +
		`{"role":"function","name":"get_current_weather","content":"get_current_weather(location='Boston')"},` +
		`{"role":"user","content":"use celsius"}]`
	if got := mustMarshal(t, wire); got != want {
		t.Fatalf("wire =\n%s\nwant\n%s", got, want)
	}
}

func TestSerializeOnlyLastUserOffersFunctions(t *testing.T) {
	first := UserMessage("first")
	first.Functions = weatherFunctions()
	first.ExplicitFnCall = AutoCall()
	last := UserMessage("last")
	last.Functions = weatherFunctions()
	last.ExplicitFnCall = NoCall()

	wire, err := Serialize([]*MessageNode{SystemMessage("S"), first, AssistantMessage("R"), last})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if wire[1].Functions != nil || wire[1].ExplicitFnCall != nil {
		t.Fatalf("non terminal user kept its function offer: %+v", wire[1])
	}
	if wire[3].Functions == nil || wire[3].ExplicitFnCall.Kind != CallNone {
		t.Fatalf("terminal user lost its function offer: %+v", wire[3])
	}
}

func TestSerializeOfferWithoutModeDefaultsToAuto(t *testing.T) {
	user := UserMessage("U")
	user.Functions = weatherFunctions()

	wire, err := Serialize([]*MessageNode{SystemMessage("S"), user})
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	got := mustMarshal(t, wire)
	for _, key := range []string{`"functions"`, `"explicit_fn_call":"auto"`} {
		if !strings.Contains(got, key) {
			t.Fatalf("user wire %s misses %s", got, key)
		}
	}
	if user.ExplicitFnCall != nil {
		t.Fatalf("serialize changed the message: %+v", user.ExplicitFnCall)
	}
}

func TestSerializeTrailingCall(t *testing.T) {
	tests := []struct {
		name   string
		tail   *MessageNode
		wantN  int
		result bool
	}{
		{
			name:  "dangling call",
			tail:  callingAssistant("f", `{}`),
			wantN: 3,
		},
		{
			name: "call carrying its own result",
			tail: func() *MessageNode {
				m := callingAssistant("f", `{}`)
				m.AIFunctionCallResultName = "f"
				m.AIFunctionCallResult = "f()"
				return m
			}(),
			wantN:  4,
			result: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, err := Serialize([]*MessageNode{SystemMessage("S"), UserMessage("U"), tt.tail})
			if err != nil {
				t.Fatalf("serialize: %v", err)
			}
			if len(wire) != tt.wantN {
				t.Fatalf("len(wire) = %d, want %d", len(wire), tt.wantN)
			}
			if wire[2].FunctionCall == nil || wire[2].FunctionCall.Name != "f" {
				t.Fatalf("assistant call missing: %+v", wire[2])
			}
			if tt.result && (wire[3].Role != "function" || wire[3].Content != "f()") {
				t.Fatalf("synthesized result = %+v", wire[3])
			}
		})
	}
}

func TestSerializeUnpairedCallIsNotSentAsCall(t *testing.T) {
	history := []*MessageNode{
		SystemMessage("S"),
		UserMessage("U"),
		callingAssistant("f", `{}`),
		UserMessage("again"),
	}
	wire, err := Serialize(history)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if len(wire) != 4 {
		t.Fatalf("len(wire) = %d", len(wire))
	}
	if wire[2].FunctionCall != nil {
		t.Fatalf("unpaired call on the wire: %+v", wire[2])
	}
}

func TestSerializeIsIdempotent(t *testing.T) {
	user := UserMessage("U")
	user.Functions = weatherFunctions()
	user.ExplicitFnCall = ExplicitCall("get_current_weather")
	history := []*MessageNode{
		SystemMessage("S"),
		user,
		callingAssistant("get_current_weather", `{"location":"Boston"}`),
		FunctionResultMessage("get_current_weather", "ok"),
	}

	first, err := Serialize(history)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	second, err := Serialize(history)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Fatalf("serialization differs:\n%s\n%s", a, b)
	}
}

func TestFunctionCallModeJSON(t *testing.T) {
	tests := []struct {
		mode *FunctionCallMode
		want string
	}{
		{AutoCall(), `"auto"`},
		{NoCall(), `"none"`},
		{ExplicitCall("create_event"), `{"name":"create_event"}`},
	}
	for _, tt := range tests {
		data, err := json.Marshal(tt.mode)
		if err != nil {
			t.Fatalf("marshal %v: %v", tt.mode, err)
		}
		if string(data) != tt.want {
			t.Fatalf("marshal %v = %s, want %s", tt.mode, data, tt.want)
		}
		var back FunctionCallMode
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if back != *tt.mode {
			t.Fatalf("unmarshal %s = %+v", data, back)
		}
	}
}
