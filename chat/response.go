package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Finish indicators. Provider-specific values pass through as opaque strings.
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishToolCalls     = "tool_calls"
	FinishContentFilter = "content_filter"
)

var ErrNoContent = errors.New("response has no content")

// Response is a parsed chat-completions reply. Only the fields the loop
// needs are decoded; everything else stays in Raw and is reachable through
// Field.
type Response struct {
	ID           string
	Model        string
	FinishReason string
	// Message is choices[0].message, nil when the reply has no choices.
	Message *Message
	Usage   *Usage
	Raw     json.RawMessage
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type wireResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      *Message `json:"message"`
		FinishReason *string  `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// ParseResponse decodes a chat-completions body.
func ParseResponse(body []byte) (*Response, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("parse response: invalid JSON body")
	}
	var w wireResponse
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	resp := &Response{
		ID:    w.ID,
		Model: w.Model,
		Usage: w.Usage,
		Raw:   append(json.RawMessage(nil), body...),
	}
	if len(w.Choices) > 0 {
		resp.Message = w.Choices[0].Message
		if fr := w.Choices[0].FinishReason; fr != nil {
			resp.FinishReason = *fr
		}
	}
	return resp, nil
}

// HasError reports whether the body carries an upstream error payload.
func (r *Response) HasError() bool {
	return r.Field("error").Exists()
}

// Error returns the upstream error payload, if any.
func (r *Response) Error() json.RawMessage {
	e := r.Field("error")
	if !e.Exists() {
		return nil
	}
	return json.RawMessage(e.Raw)
}

// Field returns the value at path in the raw body (gjson syntax).
func (r *Response) Field(path string) gjson.Result {
	return gjson.GetBytes(r.Raw, path)
}

// Text returns the assistant's text content.
func (r *Response) Text() string {
	if r.Message == nil {
		return ""
	}
	return r.Message.Text()
}

// HasRefusal reports whether the model refused. An empty refusal string still
// counts; only an absent or null refusal does not.
func (r *Response) HasRefusal() bool {
	return r.Message != nil && r.Message.Refusal != nil
}

func (r *Response) Refusal() string {
	if !r.HasRefusal() {
		return ""
	}
	return *r.Message.Refusal
}

func (r *Response) ToolCalls() []ToolCall {
	if r.Message == nil {
		return nil
	}
	return r.Message.ToolCalls
}

// Decode unmarshals JSON assistant content into v, for structured output.
func (r *Response) Decode(v any) error {
	text := r.Text()
	if strings.TrimSpace(text) == "" {
		return ErrNoContent
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("decode structured content: %w", err)
	}
	return nil
}
