package anthropic

import (
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/petasbytes/go-openrouter/chat"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// nativeKey carries the untouched Anthropic message inside a converted
// assistant message so thinking and tool_use blocks replay verbatim.
const nativeKey = "anthropic_message"

// model maps an OpenRouter-style model id to an Anthropic one:
// "anthropic/claude-x" becomes "claude-x" and ids of other vendors fall back
// to c.Model.
func (c *Client) model(name string) sdk.Model {
	if rest, ok := strings.CutPrefix(name, "anthropic/"); ok {
		return sdk.Model(rest)
	}
	if name == "" || strings.Contains(name, "/") {
		return c.Model
	}
	return sdk.Model(name)
}

func (c *Client) params(req chat.Request) (sdk.MessageNewParams, error) {
	p := sdk.MessageNewParams{
		Model:         c.model(req.Model),
		MaxTokens:     c.MaxTokens,
		StopSequences: req.StopSequences,
	}
	if req.MaxTokens != nil {
		p.MaxTokens = int64(*req.MaxTokens)
	}
	if req.Temperature != nil {
		p.Temperature = sdk.Float(*req.Temperature)
	}
	if req.TopK != nil {
		p.TopK = sdk.Int(int64(*req.TopK))
	}
	if req.TopP != nil {
		p.TopP = sdk.Float(*req.TopP)
	}
	if req.ThinkingBudget != nil {
		p.Thinking = sdk.ThinkingConfigParamOfEnabled(int64(*req.ThinkingBudget))
	}
	// The Messages API has no "none" choice that keeps tools declared, so
	// "none" sends no tools at all.
	if len(req.Tools) > 0 && req.ToolChoice != chat.ToolChoiceNone {
		p.Tools = toolParams(req)
		p.ToolChoice = toolChoice(req)
	}

	var pending []sdk.ContentBlockParamUnion
	flush := func() {
		if len(pending) > 0 {
			p.Messages = append(p.Messages, sdk.NewUserMessage(pending...))
			pending = nil
		}
	}
	for i, m := range req.Messages {
		if m.Role == chat.RoleTool {
			// Consecutive tool results travel in one user message.
			pending = append(pending, sdk.NewToolResultBlock(m.ToolCallID, m.Text(), false))
			continue
		}
		flush()
		switch m.Role {
		case chat.RoleSystem:
			p.System = append(p.System, sdk.TextBlockParam{Text: m.Text()})
		case chat.RoleUser:
			blocks, err := userBlocks(m)
			if err != nil {
				return p, fmt.Errorf("anthropic: message %d: %w", i, err)
			}
			p.Messages = append(p.Messages, sdk.NewUserMessage(blocks...))
		case chat.RoleAssistant:
			mp, err := assistantParam(m)
			if err != nil {
				return p, fmt.Errorf("anthropic: message %d: %w", i, err)
			}
			p.Messages = append(p.Messages, mp)
		default:
			return p, fmt.Errorf("anthropic: message %d: unsupported role %q", i, m.Role)
		}
	}
	flush()
	return p, nil
}

func toolParams(req chat.Request) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(req.Tools))
	for _, t := range req.Tools {
		schema := sdk.ToolInputSchemaParam{Properties: map[string]any{}}
		if t.Parameters != nil {
			if t.Parameters.Properties != nil {
				schema.Properties = t.Parameters.Properties
			}
			schema.Required = t.Parameters.Required
		}
		tp := &sdk.ToolParam{Name: t.Name, InputSchema: schema}
		if t.Description != "" {
			tp.Description = sdk.String(t.Description)
		}
		out = append(out, sdk.ToolUnionParam{OfTool: tp})
	}
	return out
}

func toolChoice(req chat.Request) sdk.ToolChoiceUnionParam {
	serial := req.ParallelToolCalls != nil && !*req.ParallelToolCalls
	if req.ToolChoice == chat.ToolChoiceRequired {
		choice := &sdk.ToolChoiceAnyParam{}
		if serial {
			choice.DisableParallelToolUse = sdk.Bool(true)
		}
		return sdk.ToolChoiceUnionParam{OfAny: choice}
	}
	if !serial {
		return sdk.ToolChoiceUnionParam{}
	}
	return sdk.ToolChoiceUnionParam{OfAuto: &sdk.ToolChoiceAutoParam{DisableParallelToolUse: sdk.Bool(true)}}
}

func userBlocks(m chat.Message) ([]sdk.ContentBlockParamUnion, error) {
	if len(m.Parts) == 0 {
		return []sdk.ContentBlockParamUnion{sdk.NewTextBlock(m.Content)}, nil
	}
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(m.Parts))
	for _, part := range m.Parts {
		switch {
		case part.Type == "text":
			blocks = append(blocks, sdk.NewTextBlock(part.Text))
		case part.ImageURL != nil:
			blocks = append(blocks, imageBlock(part.ImageURL.URL))
		default:
			return nil, fmt.Errorf("unsupported content part %q", part.Type)
		}
	}
	return blocks, nil
}

// imageBlock turns a data URL into an inline base64 image and anything else
// into a URL image source.
func imageBlock(url string) sdk.ContentBlockParamUnion {
	if rest, ok := strings.CutPrefix(url, "data:"); ok {
		if mediaType, data, ok := strings.Cut(rest, ";base64,"); ok {
			return sdk.NewImageBlockBase64(mediaType, data)
		}
	}
	return sdk.NewImageBlock(sdk.URLImageSourceParam{URL: url})
}

func assistantParam(m chat.Message) (sdk.MessageParam, error) {
	if native := gjson.GetBytes(m.Raw(), nativeKey); native.Exists() {
		var msg sdk.Message
		if err := json.Unmarshal([]byte(native.Raw), &msg); err != nil {
			return sdk.MessageParam{}, fmt.Errorf("decode native assistant message: %w", err)
		}
		return msg.ToParam(), nil
	}
	var blocks []sdk.ContentBlockParamUnion
	if text := m.Text(); text != "" {
		blocks = append(blocks, sdk.NewTextBlock(text))
	}
	for _, call := range m.ToolCalls {
		args := call.Function.Arguments
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		blocks = append(blocks, sdk.NewToolUseBlock(call.ID, json.RawMessage(args), call.Function.Name))
	}
	return sdk.NewAssistantMessage(blocks...), nil
}

// finishReason maps Anthropic stop reasons onto chat-completions ones.
// Unknown values pass through.
func finishReason(r sdk.StopReason) string {
	switch string(r) {
	case "end_turn", "stop_sequence":
		return chat.FinishStop
	case "max_tokens":
		return chat.FinishLength
	case "tool_use":
		return chat.FinishToolCalls
	case "refusal":
		return chat.FinishContentFilter
	default:
		return string(r)
	}
}

type completionMessage struct {
	Role      chat.Role       `json:"role"`
	Content   *string         `json:"content"`
	ToolCalls []chat.ToolCall `json:"tool_calls,omitempty"`
	Refusal   *string         `json:"refusal,omitempty"`
}

type completionChoice struct {
	Index        int               `json:"index"`
	FinishReason string            `json:"finish_reason"`
	Message      completionMessage `json:"message"`
}

type completion struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Model   string             `json:"model"`
	Choices []completionChoice `json:"choices"`
	Usage   chat.Usage         `json:"usage"`
}

// completionBody renders msg as a chat-completions response body.
func completionBody(msg *sdk.Message) ([]byte, error) {
	var text strings.Builder
	var calls []chat.ToolCall
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case sdk.TextBlock:
			text.WriteString(v.Text)
		case sdk.ToolUseBlock:
			args := v.JSON.Input.Raw()
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			calls = append(calls, chat.ToolCall{
				ID:       v.ID,
				Type:     "function",
				Function: chat.FunctionCall{Name: v.Name, Arguments: args},
			})
		}
	}

	cm := completionMessage{Role: chat.RoleAssistant, ToolCalls: calls}
	if s := text.String(); s != "" {
		cm.Content = &s
	}
	if string(msg.StopReason) == "refusal" {
		s := text.String()
		cm.Refusal = &s
	}
	out := completion{
		ID:     msg.ID,
		Object: "chat.completion",
		Model:  string(msg.Model),
		Choices: []completionChoice{{
			FinishReason: finishReason(msg.StopReason),
			Message:      cm,
		}},
		Usage: chat.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("anthropic: encode completion: %w", err)
	}
	if raw := msg.RawJSON(); raw != "" {
		body, err = sjson.SetRawBytes(body, "choices.0.message."+nativeKey, []byte(raw))
		if err != nil {
			return nil, fmt.Errorf("anthropic: attach native message: %w", err)
		}
	}
	return body, nil
}
