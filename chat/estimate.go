package chat

import "unicode/utf8"

// Fixed per-block overhead for deterministic counts; changing this requires
// updating TestEstimateTokens.
const blockOverhead = 4

// EstimateTokens returns a deterministic, provider-independent size estimate
// for msgs. Rules:
//   - text content and text parts: rune count plus overhead
//   - image parts: overhead only
//   - tool calls: rune count of name and arguments plus overhead
func EstimateTokens(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += estimateMessage(m)
	}
	return total
}

func estimateMessage(m Message) int {
	total := 0
	if len(m.Parts) == 0 {
		if m.Content != "" {
			total += utf8.RuneCountInString(m.Content) + blockOverhead
		}
	} else {
		for _, p := range m.Parts {
			total += utf8.RuneCountInString(p.Text) + blockOverhead
		}
	}
	for _, c := range m.ToolCalls {
		total += utf8.RuneCountInString(c.Function.Name) + utf8.RuneCountInString(c.Function.Arguments) + blockOverhead
	}
	if total == 0 {
		return blockOverhead
	}
	return total
}
