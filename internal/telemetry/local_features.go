package telemetry

import (
	"context"
	"strings"
	"unicode/utf8"
)

// Features holds basic local text features derived from an input string.
type Features struct {
	Bytes int
	Runes int
	Words int
	Lines int
}

// CountFeatures computes byte, rune, word, and line counts for s.
func CountFeatures(s string) Features {
	return Features{
		Bytes: len(s),
		Runes: utf8.RuneCountInString(s),
		Words: len(strings.Fields(s)),
		Lines: countLines(s),
	}
}

// countLines returns 0 for empty strings; otherwise 1 plus the number of '\n' runes.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	return 1 + strings.Count(s, "\n")
}

// EmitUserInput records size features of a user prompt in debug mode. The
// text itself is never written.
func EmitUserInput(ctx context.Context, user string) {
	if !(DebugModeEnabled() && ObserveEnabled()) {
		return
	}
	convID, _ := ConversationIDFromContext(ctx)
	f := CountFeatures(user)
	Emit("user_input", map[string]any{
		"conversation_id":  convID,
		"features_version": "1",
		"user": map[string]any{
			"bytes": f.Bytes,
			"runes": f.Runes,
			"words": f.Words,
			"lines": f.Lines,
		},
	})
}
