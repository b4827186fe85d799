package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

// Handler executes a tool with decoded arguments and returns arbitrary
// structured content. Strings and json.RawMessage are sent back verbatim;
// anything else is JSON encoded.
type Handler func(ctx context.Context, args Arguments) (any, error)

// Definition describes a tool the model may call. The caller owns it; the
// conversation loop only reads it.
type Definition struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
	Function    Handler
}

// Arguments holds the decoded argument object of a single tool call.
type Arguments map[string]any

// DecodeArguments parses the raw argument payload the model produced.
// An empty payload decodes to an empty object; anything that is not a JSON
// object is an error.
func DecodeArguments(raw string) (Arguments, error) {
	if strings.TrimSpace(raw) == "" {
		return Arguments{}, nil
	}
	var args Arguments
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		// literal null
		return nil, fmt.Errorf("arguments must be a JSON object, got null")
	}
	return args, nil
}

// String returns the string value stored under key.
func (a Arguments) String(key string) (string, bool) {
	v, ok := a[key].(string)
	return v, ok
}

// Float returns the numeric value stored under key.
func (a Arguments) Float(key string) (float64, bool) {
	v, ok := a[key].(float64)
	return v, ok
}

// Bool returns the boolean value stored under key.
func (a Arguments) Bool(key string) (bool, bool) {
	v, ok := a[key].(bool)
	return v, ok
}

// Decode re-encodes the arguments into v, typically a struct whose schema was
// produced by GenerateSchema.
func (a Arguments) Decode(v any) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// EncodeResult turns a handler result into tool message content.
func EncodeResult(v any) (string, error) {
	switch r := v.(type) {
	case string:
		return r, nil
	case json.RawMessage:
		return string(r), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(b), nil
}

// Typed adapts a handler taking a concrete input struct into a Handler.
// Decoding failures are reported as handler errors.
func Typed[T any](fn func(ctx context.Context, in T) (any, error)) Handler {
	return func(ctx context.Context, args Arguments) (any, error) {
		var in T
		if err := args.Decode(&in); err != nil {
			return nil, fmt.Errorf("decode input: %w", err)
		}
		return fn(ctx, in)
	}
}
