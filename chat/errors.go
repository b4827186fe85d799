package chat

import (
	"encoding/json"
	"fmt"

	"github.com/petasbytes/go-openrouter/tools"
	"github.com/tidwall/gjson"
)

// UnknownToolError is returned when the model calls an undeclared tool.
type UnknownToolError = tools.UnknownToolError

// UpstreamProtocolError reports an error payload inside an otherwise
// successful response body.
type UpstreamProtocolError struct {
	Turn    int
	Payload json.RawMessage
}

func (e *UpstreamProtocolError) Error() string {
	msg := gjson.GetBytes(e.Payload, "message").String()
	if msg == "" {
		msg = string(e.Payload)
	}
	if code := gjson.GetBytes(e.Payload, "code"); code.Exists() {
		return fmt.Sprintf("upstream error at turn %d (code %s): %s", e.Turn, code.String(), msg)
	}
	return fmt.Sprintf("upstream error at turn %d: %s", e.Turn, msg)
}

// ToolArgumentDecodeError reports an argument payload that is not a JSON object.
type ToolArgumentDecodeError struct {
	Name      string
	CallID    string
	Arguments string
	Turn      int
	Err       error
}

func (e *ToolArgumentDecodeError) Error() string {
	return fmt.Sprintf("decode arguments for tool %s (call_id=%s, turn=%d): %v; payload: %q",
		e.Name, e.CallID, e.Turn, e.Err, e.Arguments)
}

func (e *ToolArgumentDecodeError) Unwrap() error { return e.Err }

// ToolExecutionError wraps a failure returned (or panicked) by a tool handler.
type ToolExecutionError struct {
	Name   string
	CallID string
	Turn   int
	Err    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed (call_id=%s, turn=%d): %v", e.Name, e.CallID, e.Turn, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// DuplicateToolCallError reports an assistant turn that reuses a call id.
// No tool of that turn is executed.
type DuplicateToolCallError struct {
	CallID string
	Turn   int
}

func (e *DuplicateToolCallError) Error() string {
	return fmt.Sprintf("duplicate tool call id %q at turn %d", e.CallID, e.Turn)
}

// IterationLimitExceededError is returned when the model keeps requesting
// tools past the turn limit.
type IterationLimitExceededError struct {
	Limit int
	Turns int
}

func (e *IterationLimitExceededError) Error() string {
	return fmt.Sprintf("tool-call loop exceeded %d turns", e.Limit)
}
