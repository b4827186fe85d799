// Package tools defines tool contracts for model-invoked function calls.
//
// Includes:
//   - Definition: name, description, JSON parameter schema, handler.
//   - GenerateSchema[T](): derive JSON Schema from Go structs.
//   - Schema helpers (Object, String, Enum, ...) for hand-built parameter schemas.
//   - Registry: name -> Definition lookup, built fresh per conversation.
//   - Invariants: tool names are unique within a registry; an unknown name is an
//     error, never a silent skip.
package tools
