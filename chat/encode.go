package chat

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/tidwall/sjson"
)

type wireRequest struct {
	Model             string          `json:"model"`
	Messages          []Message       `json:"messages"`
	Temperature       *float64        `json:"temperature,omitempty"`
	TopK              *int            `json:"top_k,omitempty"`
	TopP              *float64        `json:"top_p,omitempty"`
	MaxTokens         *int            `json:"max_tokens,omitempty"`
	Stop              []string        `json:"stop,omitempty"`
	Tools             []wireTool      `json:"tools,omitempty"`
	ToolChoice        ToolChoice      `json:"tool_choice,omitempty"`
	ParallelToolCalls *bool           `json:"parallel_tool_calls,omitempty"`
	ResponseFormat    *responseFormat `json:"response_format,omitempty"`
	Provider          *providerPrefs  `json:"provider,omitempty"`
	Reasoning         *reasoning      `json:"reasoning,omitempty"`
	Stream            bool            `json:"stream,omitempty"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type jsonSchemaFormat struct {
	Name   string             `json:"name"`
	Strict bool               `json:"strict"`
	Schema *jsonschema.Schema `json:"schema"`
}

type providerPrefs struct {
	Order []string `json:"order"`
}

type reasoning struct {
	Type   string `json:"type"`
	Budget int    `json:"budget"`
}

// Body encodes the chat-completions request body.
func (r Request) Body() ([]byte, error) {
	w := wireRequest{
		Model:       r.Model,
		Messages:    r.Messages,
		Temperature: r.Temperature,
		TopK:        r.TopK,
		TopP:        r.TopP,
		MaxTokens:   r.MaxTokens,
		Stop:        r.StopSequences,
		Stream:      r.Stream,
	}
	if w.Messages == nil {
		w.Messages = []Message{}
	}
	// tool_choice and parallel_tool_calls only mean something with tools.
	if len(r.Tools) > 0 {
		for _, t := range r.Tools {
			params := t.Parameters
			if params == nil {
				params = &jsonschema.Schema{Type: "object"}
			}
			w.Tools = append(w.Tools, wireTool{
				Type: "function",
				Function: wireFunction{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  params,
				},
			})
		}
		w.ToolChoice = r.ToolChoice
		w.ParallelToolCalls = r.ParallelToolCalls
	}
	switch {
	case r.ResponseSchema != nil:
		w.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaFormat{
				Name:   "response_schema",
				Strict: true,
				Schema: r.ResponseSchema,
			},
		}
	case r.ResponseMimeType != "":
		typ := "text"
		if strings.Contains(r.ResponseMimeType, "json") {
			typ = "json_object"
		}
		w.ResponseFormat = &responseFormat{Type: typ}
	}
	if len(r.Providers) > 0 {
		w.Provider = &providerPrefs{Order: r.Providers}
	}
	if r.ThinkingBudget != nil {
		w.Reasoning = &reasoning{Type: "enabled", Budget: *r.ThinkingBudget}
	}

	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if len(r.Extra) == 0 {
		return b, nil
	}
	// Apply in key order so the body is deterministic.
	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b, err = sjson.SetBytes(b, k, r.Extra[k])
		if err != nil {
			return nil, fmt.Errorf("set extra field %q: %w", k, err)
		}
	}
	return b, nil
}
