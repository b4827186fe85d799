// Package chat drives chat-completion conversations that use model-invoked
// tool calls.
//
// A Runner sends a Request through a Transport, dispatches any requested tool
// calls to the caller's tools.Definition handlers, appends the assistant turn
// and the tool results to the conversation Ledger, rebuilds the request from
// the original configuration plus the grown ledger, and repeats until the
// model stops, refuses, or MaxTurns is exceeded.
//
// Invariants:
//   - the ledger is append-only; prior messages are never dropped or reordered.
//   - every tool call of an assistant turn is answered by exactly one tool
//     message carrying the same call id before the next request goes out.
//   - every request of one conversation carries the original configuration;
//     only the message list changes between turns.
//
// Flow:
//
//	user(text) -> assistant(tool_calls) -> tool(result)... -> assistant(text)
package chat
