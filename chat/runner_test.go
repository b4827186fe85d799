package chat_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/petasbytes/go-openrouter/chat"
	"github.com/petasbytes/go-openrouter/internal/telemetry"
	"github.com/petasbytes/go-openrouter/tools"
	"github.com/petasbytes/go-openrouter/transport"
)

// scriptedTransport replies with bodies in order, repeating the last one.
type scriptedTransport struct {
	bodies []string
	errs   map[int]error

	sent        []chat.Request
	plainCalls  int
	backoffCall int
}

func (s *scriptedTransport) reply(req chat.Request) (*chat.Response, error) {
	i := len(s.sent)
	s.sent = append(s.sent, req)
	if err, ok := s.errs[i]; ok {
		return nil, err
	}
	body := s.bodies[min(i, len(s.bodies)-1)]
	return chat.ParseResponse([]byte(body))
}

func (s *scriptedTransport) Send(_ context.Context, req chat.Request) (*chat.Response, error) {
	s.plainCalls++
	return s.reply(req)
}

func (s *scriptedTransport) SendWithBackoff(_ context.Context, req chat.Request) (*chat.Response, error) {
	s.backoffCall++
	return s.reply(req)
}

type call struct{ id, name, args string }

func toolCallsBody(calls ...call) string {
	var parts []string
	for _, c := range calls {
		args, _ := json.Marshal(c.args)
		parts = append(parts, fmt.Sprintf(`{"id":%q,"type":"function","function":{"name":%q,"arguments":%s}}`, c.id, c.name, args))
	}
	return `{"id":"gen-tc","model":"m","choices":[{"finish_reason":"tool_calls","message":{"role":"assistant","content":null,"tool_calls":[` +
		strings.Join(parts, ",") + `]}}]}`
}

func stopBody(text string) string {
	return fmt.Sprintf(`{"id":"gen-stop","model":"m","choices":[{"finish_reason":"stop","message":{"role":"assistant","content":%q}}]}`, text)
}

type weather struct {
	City     string `json:"city"`
	Forecast string `json:"forecast"`
}

func weatherTool(seen *[]string) tools.Definition {
	return tools.Definition{
		Name:        "get_weather",
		Description: "Current weather for a city",
		Parameters:  tools.Object(tools.RequiredField("location", tools.String("City name"))),
		Function: func(_ context.Context, args tools.Arguments) (any, error) {
			loc, _ := args.String("location")
			if seen != nil {
				*seen = append(*seen, loc)
			}
			return weather{City: loc, Forecast: "Sunny, 20C"}, nil
		},
	}
}

func TestRun_WeatherScenario_LedgerOrder(t *testing.T) {
	st := &scriptedTransport{bodies: []string{
		toolCallsBody(call{"call_1", "get_weather", `{"location":"Paris"}`}),
		stopBody("It is sunny in Paris."),
	}}
	var seen []string
	req := chat.NewRequest(chat.SystemMessage("be brief"), chat.UserMessage("Weather in Paris?"))
	req.Tools = []tools.Definition{weatherTool(&seen)}

	res, err := chat.NewRunner(st).Run(context.Background(), req, false)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Response.Text() != "It is sunny in Paris." {
		t.Fatalf("final text: got %q", res.Response.Text())
	}
	if len(st.sent) != 2 || res.Turns != 2 || res.ToolCalls != 1 {
		t.Fatalf("want 2 sends, 2 turns, 1 tool call; got %d, %d, %d", len(st.sent), res.Turns, res.ToolCalls)
	}
	if len(seen) != 1 || seen[0] != "Paris" {
		t.Fatalf("handler args: %v", seen)
	}

	msgs := st.sent[1].Messages
	if len(msgs) != 4 {
		t.Fatalf("second request: want 4 messages, got %d", len(msgs))
	}
	if msgs[0].Role != chat.RoleSystem || msgs[1].Role != chat.RoleUser {
		t.Fatalf("original messages not first: %+v", msgs[:2])
	}
	if msgs[2].Role != chat.RoleAssistant || len(msgs[2].ToolCalls) != 1 || msgs[2].ToolCalls[0].ID != "call_1" {
		t.Fatalf("assistant tool-call turn missing: %+v", msgs[2])
	}
	if msgs[3].Role != chat.RoleTool || msgs[3].ToolCallID != "call_1" {
		t.Fatalf("tool result not keyed by call id: %+v", msgs[3])
	}
	if want := `{"city":"Paris","forecast":"Sunny, 20C"}`; msgs[3].Content != want {
		t.Fatalf("tool content: want %s, got %s", want, msgs[3].Content)
	}
	// The first request is untouched by the loop.
	if len(st.sent[0].Messages) != 2 {
		t.Fatalf("first request mutated: %d messages", len(st.sent[0].Messages))
	}
}

func TestRun_AssistantTurnReplayedVerbatim(t *testing.T) {
	first := toolCallsBody(call{"call_1", "get_weather", `{"location":"Paris"}`})
	// Provider-specific fields must survive the round trip.
	first = strings.Replace(first, `"role":"assistant",`, `"role":"assistant","reasoning":"think","x_vendor":{"k":1},`, 1)
	st := &scriptedTransport{bodies: []string{first, stopBody("ok")}}
	req := chat.NewRequest(chat.UserMessage("hi"))
	req.Tools = []tools.Definition{weatherTool(nil)}

	if _, err := chat.NewRunner(st).Run(context.Background(), req, false); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	body, err := st.sent[1].Body()
	if err != nil {
		t.Fatalf("body: %v", err)
	}
	var decoded struct {
		Messages []map[string]any `json:"messages"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	asst := decoded.Messages[1]
	if asst["reasoning"] != "think" || asst["x_vendor"] == nil {
		t.Fatalf("provider fields dropped: %v", asst)
	}
}

func TestRun_StopWithoutToolCalls_OneSend(t *testing.T) {
	st := &scriptedTransport{bodies: []string{stopBody("hello")}}
	req := chat.NewRequest(chat.UserMessage("hi"))
	req.Tools = []tools.Definition{weatherTool(nil)}

	res, err := chat.NewRunner(st).Run(context.Background(), req, false)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(st.sent) != 1 {
		t.Fatalf("want exactly one send, got %d", len(st.sent))
	}
	if res.Response.Text() != "hello" || res.Response.FinishReason != chat.FinishStop {
		t.Fatalf("response altered: %+v", res.Response)
	}
	if len(res.Messages) != 1 {
		t.Fatalf("ledger grew: %d", len(res.Messages))
	}
	if tr := res.Transcript(); len(tr) != 2 || tr[1].Text() != "hello" {
		t.Fatalf("transcript: %+v", tr)
	}
}

func TestRun_ToolCallsFinishWithoutCalls_Stops(t *testing.T) {
	body := `{"choices":[{"finish_reason":"tool_calls","message":{"role":"assistant","content":"done"}}]}`
	st := &scriptedTransport{bodies: []string{body}}
	res, err := chat.NewRunner(st).Run(context.Background(), chat.NewRequest(chat.UserMessage("x")), false)
	if err != nil || len(st.sent) != 1 || res.ToolCalls != 0 {
		t.Fatalf("want a single terminal send, got sends=%d err=%v", len(st.sent), err)
	}
}

func TestRun_CallsWithOtherFinishReason_Stops(t *testing.T) {
	body := strings.Replace(toolCallsBody(call{"c1", "get_weather", `{}`}), `"finish_reason":"tool_calls"`, `"finish_reason":"length"`, 1)
	st := &scriptedTransport{bodies: []string{body}}
	req := chat.NewRequest(chat.UserMessage("x"))
	req.Tools = []tools.Definition{weatherTool(nil)}

	res, err := chat.NewRunner(st).Run(context.Background(), req, false)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.ToolCalls != 0 || len(st.sent) != 1 {
		t.Fatalf("tools dispatched on non tool_calls finish: %+v", res)
	}
}

func TestRun_RefusalAtTurnOne_NoDispatch(t *testing.T) {
	body := `{"choices":[{"finish_reason":"stop","message":{"role":"assistant","content":null,"refusal":"I can't help with that."}}]}`
	st := &scriptedTransport{bodies: []string{body}}
	dispatched := 0
	req := chat.NewRequest(chat.UserMessage("x"))
	req.Tools = []tools.Definition{{Name: "t", Function: func(context.Context, tools.Arguments) (any, error) {
		dispatched++
		return "x", nil
	}}}

	res, err := chat.NewRunner(st).Run(context.Background(), req, false)
	if err != nil {
		t.Fatalf("refusal is not an error: %v", err)
	}
	if !res.Refused || res.Response.Refusal() != "I can't help with that." {
		t.Fatalf("want refusal result, got %+v", res)
	}
	if dispatched != 0 || len(st.sent) != 1 {
		t.Fatalf("want 0 dispatches and 1 send, got %d and %d", dispatched, len(st.sent))
	}
}

func TestRun_RefusalDominatesToolCalls(t *testing.T) {
	body := strings.Replace(toolCallsBody(call{"c1", "t", `{}`}), `"content":null,`, `"content":null,"refusal":"no",`, 1)
	st := &scriptedTransport{bodies: []string{body}}
	dispatched := 0
	req := chat.NewRequest(chat.UserMessage("x"))
	req.Tools = []tools.Definition{{Name: "t", Function: func(context.Context, tools.Arguments) (any, error) {
		dispatched++
		return "x", nil
	}}}

	res, err := chat.NewRunner(st).Run(context.Background(), req, false)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !res.Refused || dispatched != 0 || len(res.Messages) != 1 {
		t.Fatalf("refusal must stop before dispatch: refused=%v dispatched=%d ledger=%d", res.Refused, dispatched, len(res.Messages))
	}
}

func TestRun_UpstreamErrorPayload(t *testing.T) {
	body := `{"error":{"code":502,"message":"provider returned error"}}`
	st := &scriptedTransport{bodies: []string{body}}

	res, err := chat.NewRunner(st).Run(context.Background(), chat.NewRequest(chat.UserMessage("x")), false)
	var upErr *chat.UpstreamProtocolError
	if !errors.As(err, &upErr) {
		t.Fatalf("want UpstreamProtocolError, got %v", err)
	}
	if upErr.Turn != 1 || !strings.Contains(upErr.Error(), "provider returned error") {
		t.Fatalf("unexpected error detail: %v", upErr)
	}
	if res == nil || res.Turns != 1 {
		t.Fatalf("partial result missing: %+v", res)
	}
}

func TestRun_UnknownTool(t *testing.T) {
	st := &scriptedTransport{bodies: []string{toolCallsBody(call{"call_9", "nonexistent_tool", `{}`})}}
	req := chat.NewRequest(chat.UserMessage("x"))
	req.Tools = []tools.Definition{weatherTool(nil)}

	res, err := chat.NewRunner(st).Run(context.Background(), req, false)
	var unknown *chat.UnknownToolError
	if !errors.As(err, &unknown) {
		t.Fatalf("want UnknownToolError, got %v", err)
	}
	if unknown.Name != "nonexistent_tool" || unknown.CallID != "call_9" || unknown.Turn != 1 {
		t.Fatalf("unexpected error detail: %+v", unknown)
	}
	// Ledger holds the assistant turn but no result for the failed call.
	if len(res.Messages) != 2 || res.Messages[1].Role != chat.RoleAssistant {
		t.Fatalf("unexpected ledger: %+v", res.Messages)
	}
	for _, m := range res.Messages {
		if m.Role == chat.RoleTool {
			t.Fatalf("tool result recorded for unknown tool: %+v", m)
		}
	}
	if len(st.sent) != 1 {
		t.Fatalf("no further sends expected, got %d", len(st.sent))
	}
}

func TestRun_DuplicateCallIDs_NoToolRuns(t *testing.T) {
	st := &scriptedTransport{bodies: []string{toolCallsBody(
		call{"c1", "get_weather", `{"location":"Paris"}`},
		call{"c1", "get_weather", `{"location":"Rome"}`},
	)}}
	req := chat.NewRequest(chat.UserMessage("x"))
	var seen []string
	req.Tools = []tools.Definition{weatherTool(&seen)}

	res, err := chat.NewRunner(st).Run(context.Background(), req, false)
	var dupErr *chat.DuplicateToolCallError
	if !errors.As(err, &dupErr) {
		t.Fatalf("want DuplicateToolCallError, got %v", err)
	}
	if dupErr.CallID != "c1" || dupErr.Turn != 1 {
		t.Fatalf("unexpected detail: %+v", dupErr)
	}
	if len(seen) != 0 || res.ToolCalls != 0 {
		t.Fatalf("no handler may run: seen=%v toolCalls=%d", seen, res.ToolCalls)
	}
	if len(res.Messages) != 1 || len(st.sent) != 1 {
		t.Fatalf("want untouched ledger after one send: messages=%+v sends=%d", res.Messages, len(st.sent))
	}
	if chat.ErrorKind(err) != "duplicate_call_id" {
		t.Fatalf("kind: %q", chat.ErrorKind(err))
	}
}

func TestRun_ArgumentDecodeError(t *testing.T) {
	st := &scriptedTransport{bodies: []string{toolCallsBody(call{"c1", "get_weather", `{"location":`})}}
	req := chat.NewRequest(chat.UserMessage("x"))
	req.Tools = []tools.Definition{weatherTool(nil)}

	_, err := chat.NewRunner(st).Run(context.Background(), req, false)
	var decErr *chat.ToolArgumentDecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("want ToolArgumentDecodeError, got %v", err)
	}
	if decErr.Name != "get_weather" || decErr.Arguments != `{"location":` || decErr.CallID != "c1" {
		t.Fatalf("missing context: %+v", decErr)
	}
	if decErr.Unwrap() == nil {
		t.Fatal("decode cause not preserved")
	}
}

func TestRun_ToolExecutionError_KeepsEarlierResults(t *testing.T) {
	st := &scriptedTransport{bodies: []string{toolCallsBody(
		call{"c1", "get_weather", `{"location":"Paris"}`},
		call{"c2", "fail", `{}`},
		call{"c3", "get_weather", `{"location":"Rome"}`},
	)}}
	cause := errors.New("backend down")
	req := chat.NewRequest(chat.UserMessage("x"))
	var seen []string
	req.Tools = []tools.Definition{
		weatherTool(&seen),
		{Name: "fail", Function: func(context.Context, tools.Arguments) (any, error) { return nil, cause }},
	}

	res, err := chat.NewRunner(st).Run(context.Background(), req, false)
	var execErr *chat.ToolExecutionError
	if !errors.As(err, &execErr) || !errors.Is(err, cause) {
		t.Fatalf("want ToolExecutionError wrapping cause, got %v", err)
	}
	if execErr.Name != "fail" || execErr.CallID != "c2" {
		t.Fatalf("unexpected detail: %+v", execErr)
	}
	// user, assistant, tool(c1); c3 never ran.
	if len(res.Messages) != 3 || res.Messages[2].ToolCallID != "c1" {
		t.Fatalf("unexpected ledger: %+v", res.Messages)
	}
	if len(seen) != 1 || res.ToolCalls != 1 {
		t.Fatalf("calls after the failure must not run: seen=%v toolCalls=%d", seen, res.ToolCalls)
	}
}

func TestRun_ToolPanicBecomesExecutionError(t *testing.T) {
	st := &scriptedTransport{bodies: []string{toolCallsBody(call{"c1", "boom", ``})}}
	req := chat.NewRequest(chat.UserMessage("x"))
	req.Tools = []tools.Definition{{Name: "boom", Function: func(context.Context, tools.Arguments) (any, error) { panic("kaboom") }}}

	_, err := chat.NewRunner(st).Run(context.Background(), req, false)
	var execErr *chat.ToolExecutionError
	if !errors.As(err, &execErr) || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("want ToolExecutionError from panic, got %v", err)
	}
}

func TestRun_IterationLimit(t *testing.T) {
	st := &scriptedTransport{bodies: []string{toolCallsBody(call{"c", "get_weather", `{"location":"Paris"}`})}}
	req := chat.NewRequest(chat.UserMessage("loop"))
	req.Tools = []tools.Definition{weatherTool(nil)}

	res, err := chat.NewRunner(st).Run(context.Background(), req, false)
	var limitErr *chat.IterationLimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("want IterationLimitExceededError, got %v", err)
	}
	if limitErr.Turns != chat.MaxTurns+1 || limitErr.Limit != chat.MaxTurns {
		t.Fatalf("want failure on turn %d, got %+v", chat.MaxTurns+1, limitErr)
	}
	if len(st.sent) != chat.MaxTurns || res.Turns != chat.MaxTurns {
		t.Fatalf("want %d sends, got %d (turns=%d)", chat.MaxTurns, len(st.sent), res.Turns)
	}
	// Turn count grows by one per iteration: each request carries two more messages.
	for i, r := range st.sent {
		if want := 1 + 2*i; len(r.Messages) != want {
			t.Fatalf("request %d: want %d messages, got %d", i, want, len(r.Messages))
		}
	}
}

func TestRun_ResultCountMatchesCallCount(t *testing.T) {
	st := &scriptedTransport{bodies: []string{
		toolCallsBody(call{"a", "get_weather", `{"location":"A"}`}, call{"b", "get_weather", `{"location":"B"}`}),
		toolCallsBody(call{"c", "get_weather", `{"location":"C"}`}),
		stopBody("done"),
	}}
	req := chat.NewRequest(chat.UserMessage("x"))
	req.Tools = []tools.Definition{weatherTool(nil)}

	res, err := chat.NewRunner(st).Run(context.Background(), req, false)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	requested, answered := map[string]int{}, map[string]int{}
	for _, m := range res.Messages {
		for _, c := range m.ToolCalls {
			requested[c.ID]++
		}
		if m.Role == chat.RoleTool {
			answered[m.ToolCallID]++
		}
	}
	if len(requested) != 3 || res.ToolCalls != 3 {
		t.Fatalf("want 3 requested calls, got %v (%d)", requested, res.ToolCalls)
	}
	for id := range requested {
		if answered[id] != 1 {
			t.Fatalf("call %s answered %d times", id, answered[id])
		}
	}
	if err := chat.NewLedger(res.Messages).Validate(); err != nil {
		t.Fatalf("final ledger invalid: %v", err)
	}
}

func TestRun_TransportErrorPassesThrough(t *testing.T) {
	sentinel := transport.NewStatusError(403, []byte(`{"error":{"message":"no"}}`))
	st := &scriptedTransport{
		bodies: []string{toolCallsBody(call{"c1", "get_weather", `{"location":"Paris"}`})},
		errs:   map[int]error{1: sentinel},
	}
	req := chat.NewRequest(chat.UserMessage("x"))
	req.Tools = []tools.Definition{weatherTool(nil)}

	res, err := chat.NewRunner(st).Run(context.Background(), req, false)
	if err != error(sentinel) {
		t.Fatalf("transport error must be returned unchanged, got %v", err)
	}
	if !errors.Is(err, transport.ErrPermissionDenied) {
		t.Fatalf("kind lost: %v", err)
	}
	if res.Turns != 2 || len(res.Messages) != 3 {
		t.Fatalf("partial result: turns=%d messages=%d", res.Turns, len(res.Messages))
	}
}

func TestRun_BackoffSelectsTransportVariant(t *testing.T) {
	for _, useBackoff := range []bool{false, true} {
		t.Run(fmt.Sprint(useBackoff), func(t *testing.T) {
			st := &scriptedTransport{bodies: []string{
				toolCallsBody(call{"c1", "get_weather", `{"location":"Paris"}`}),
				stopBody("ok"),
			}}
			req := chat.NewRequest(chat.UserMessage("x"))
			req.Tools = []tools.Definition{weatherTool(nil)}
			if _, err := chat.NewRunner(st).Run(context.Background(), req, useBackoff); err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			plain, backoff := 2, 0
			if useBackoff {
				plain, backoff = 0, 2
			}
			if st.plainCalls != plain || st.backoffCall != backoff {
				t.Fatalf("want plain=%d backoff=%d, got %d/%d", plain, backoff, st.plainCalls, st.backoffCall)
			}
		})
	}
}

func TestRun_ConfigurationPreservedAcrossTurns(t *testing.T) {
	st := &scriptedTransport{bodies: []string{
		toolCallsBody(call{"c1", "get_weather", `{"location":"Paris"}`}),
		stopBody("ok"),
	}}
	req := chat.NewRequest(chat.UserMessage("x"))
	req.Model = "openai/gpt-4o"
	req.Tools = []tools.Definition{weatherTool(nil)}
	req.Temperature = chat.Float(0.3)
	req.Providers = []string{"openai", "azure"}
	req.ParallelToolCalls = chat.Bool(false)

	if _, err := chat.NewRunner(st).Run(context.Background(), req, false); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	a, _ := st.sent[0].Body()
	b, _ := st.sent[1].Body()
	var first, second map[string]any
	_ = json.Unmarshal(a, &first)
	_ = json.Unmarshal(b, &second)
	delete(first, "messages")
	delete(second, "messages")
	fa, _ := json.Marshal(first)
	sa, _ := json.Marshal(second)
	if string(fa) != string(sa) {
		t.Fatalf("configuration drifted:\nturn 1: %s\nturn 2: %s", fa, sa)
	}
}

func TestRun_DuplicateToolNamesRejected(t *testing.T) {
	st := &scriptedTransport{bodies: []string{stopBody("x")}}
	req := chat.NewRequest(chat.UserMessage("x"))
	req.Tools = []tools.Definition{weatherTool(nil), weatherTool(nil)}

	if _, err := chat.NewRunner(st).Run(context.Background(), req, false); err == nil {
		t.Fatal("want registry error for duplicate tool names")
	}
	if len(st.sent) != 0 {
		t.Fatal("nothing should be sent")
	}
}

type recordingObserver struct {
	turns []chat.TurnInfo
	tools []chat.ToolInfo
	runs  []chat.RunInfo
}

func (o *recordingObserver) TurnCompleted(i chat.TurnInfo) { o.turns = append(o.turns, i) }
func (o *recordingObserver) ToolCompleted(i chat.ToolInfo) { o.tools = append(o.tools, i) }
func (o *recordingObserver) RunCompleted(i chat.RunInfo)   { o.runs = append(o.runs, i) }

func TestRun_ObserversNotified(t *testing.T) {
	st := &scriptedTransport{bodies: []string{
		toolCallsBody(call{"c1", "get_weather", `{"location":"Paris"}`}, call{"c2", "missing", `{}`}),
	}}
	req := chat.NewRequest(chat.UserMessage("x"))
	req.Tools = []tools.Definition{weatherTool(nil)}
	obs := &recordingObserver{}

	_, err := chat.NewRunner(st, obs).Run(context.Background(), req, false)
	if err == nil {
		t.Fatal("expected unknown tool error")
	}
	if len(obs.turns) != 1 || obs.turns[0].FinishReason != chat.FinishToolCalls || obs.turns[0].ToolCalls != 2 {
		t.Fatalf("turns: %+v", obs.turns)
	}
	if len(obs.tools) != 2 || obs.tools[0].Status != chat.ToolStatusOK || obs.tools[1].Status != chat.ToolStatusUnknown {
		t.Fatalf("tools: %+v", obs.tools)
	}
	if len(obs.runs) != 1 || obs.runs[0].Outcome != chat.OutcomeFailed || obs.runs[0].Err == nil {
		t.Fatalf("runs: %+v", obs.runs)
	}
}

func TestRun_TelemetryEvents(t *testing.T) {
	base := t.TempDir()
	t.Setenv("ORT_OBSERVE_JSON", "1")
	t.Setenv("ORT_ARTIFACTS_DIR", base)

	st := &scriptedTransport{bodies: []string{
		toolCallsBody(call{"c1", "get_weather", `{"location":"Secretville"}`}),
		stopBody("ok"),
	}}
	req := chat.NewRequest(chat.UserMessage("x"))
	req.Tools = []tools.Definition{weatherTool(nil)}
	ctx := telemetry.WithConversationID(context.Background(), "conv-test")

	res, err := chat.NewRunner(st).Run(ctx, req, false)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.ConversationID != "conv-test" {
		t.Fatalf("conversation id: %q", res.ConversationID)
	}

	f, err := os.Open(filepath.Join(base, "events.jsonl"))
	if err != nil {
		t.Fatalf("open events: %v", err)
	}
	defer f.Close()
	var names []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := s.Text()
		if strings.Contains(line, "Secretville") {
			t.Fatalf("raw tool payload leaked into telemetry: %q", line)
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("bad line %q: %v", line, err)
		}
		if ev["conversation_id"] != "conv-test" {
			t.Fatalf("event without conversation id: %v", ev)
		}
		names = append(names, ev["event"].(string))
	}
	want := "turn_sent,turn_received,tool_exec,turn_sent,turn_received,run_completed"
	if got := strings.Join(names, ","); got != want {
		t.Fatalf("events:\nwant %s\ngot  %s", want, got)
	}
}

func TestRun_GeneratesConversationID(t *testing.T) {
	st := &scriptedTransport{bodies: []string{stopBody("ok")}}
	res, err := chat.NewRunner(st).Run(context.Background(), chat.NewRequest(chat.UserMessage("x")), false)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !strings.HasPrefix(res.ConversationID, "conv-") || len(res.ConversationID) <= len("conv-") {
		t.Fatalf("unexpected conversation id %q", res.ConversationID)
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&chat.UpstreamProtocolError{}, "upstream_protocol"},
		{&chat.DuplicateToolCallError{CallID: "c1", Turn: 1}, "duplicate_call_id"},
		{&chat.UnknownToolError{Name: "x"}, "unknown_tool"},
		{&chat.ToolArgumentDecodeError{Err: errors.New("x")}, "tool_argument_decode"},
		{&chat.ToolExecutionError{Err: errors.New("x")}, "tool_execution"},
		{&chat.IterationLimitExceededError{Limit: 10, Turns: 11}, "iteration_limit"},
		{fmt.Errorf("x: %w", context.Canceled), "canceled"},
		{transport.NewStatusError(500, nil), "transport"},
	}
	for _, tt := range tests {
		if got := chat.ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v): want %q, got %q", tt.err, tt.want, got)
		}
	}
}
