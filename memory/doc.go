// Package memory persists conversation transcripts.
//
// Persistence model:
//   - The full message list is stored as a JSON array in chat-completions shape.
//   - Assistant messages keep their upstream bytes, so a reloaded transcript
//     replays provider-specific fields unchanged.
package memory
