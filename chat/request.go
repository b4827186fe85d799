package chat

import (
	"slices"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/petasbytes/go-openrouter/tools"
)

const DefaultModel = "google/gemini-2.5-flash"

// ToolChoice controls how the model uses declared tools.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceRequired ToolChoice = "required"
	ToolChoiceNone     ToolChoice = "none"
)

// Request is the configuration of one conversation plus its current message
// list. Treat it as a value: the Runner never mutates it and each turn works
// on a rebuilt copy (see Rebuild).
type Request struct {
	Model    string
	Messages []Message

	Temperature   *float64
	TopK          *int
	TopP          *float64
	MaxTokens     *int
	StopSequences []string

	Tools             []tools.Definition
	ToolChoice        ToolChoice
	ParallelToolCalls *bool

	// ResponseSchema requests strict structured output; ResponseMimeType is
	// used only when no schema is set.
	ResponseSchema   *jsonschema.Schema
	ResponseMimeType string

	// Providers is the preferred upstream provider order.
	Providers      []string
	ThinkingBudget *int
	Stream         bool

	// Timeout bounds each individual send; IsCanceled is polled by the
	// transport while a send is in flight.
	Timeout    time.Duration
	IsCanceled func() bool

	CaptureOnSuccess CaptureFunc
	CaptureOnError   CaptureFunc

	// Extra sets additional body fields. Keys are sjson paths, so
	// "provider.allow_fallbacks" nests under the provider object. Nested
	// map[string]any and []any values are copied on rebuild; other reference
	// values are shared and must not be mutated.
	Extra map[string]any
}

// NewRequest returns a request for DefaultModel holding msgs.
func NewRequest(msgs ...Message) Request {
	return Request{Model: DefaultModel, Messages: msgs}
}

// WithSystemInstruction returns a copy whose only system message is text,
// placed first.
func (r Request) WithSystemInstruction(text string) Request {
	msgs := make([]Message, 0, len(r.Messages)+1)
	msgs = append(msgs, SystemMessage(text))
	for _, m := range r.Messages {
		if m.Role != RoleSystem {
			msgs = append(msgs, m)
		}
	}
	out := r.clone()
	out.Messages = msgs
	return out
}

// WithMessages returns a copy with msgs appended.
func (r Request) WithMessages(msgs ...Message) Request {
	out := r.clone()
	out.Messages = append(out.Messages, msgs...)
	return out
}

// clone copies r so that no slice, map or pointer is shared with the original.
func (r Request) clone() Request {
	out := r
	out.Messages = slices.Clone(r.Messages)
	out.Temperature = clonePtr(r.Temperature)
	out.TopK = clonePtr(r.TopK)
	out.TopP = clonePtr(r.TopP)
	out.MaxTokens = clonePtr(r.MaxTokens)
	out.StopSequences = slices.Clone(r.StopSequences)
	out.Tools = slices.Clone(r.Tools)
	out.ParallelToolCalls = clonePtr(r.ParallelToolCalls)
	out.Providers = slices.Clone(r.Providers)
	out.ThinkingBudget = clonePtr(r.ThinkingBudget)
	if r.Extra != nil {
		out.Extra = cloneValue(r.Extra).(map[string]any)
	}
	return out
}

// cloneValue deep-copies the JSON-shaped maps and slices of an Extra value.
// Other values are shared as is.
func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func Float(v float64) *float64 { return &v }
func Int(v int) *int           { return &v }
func Bool(v bool) *bool        { return &v }
