// Package windowing trims conversation history to a token budget without
// splitting tool exchanges.
package windowing

import (
	"fmt"
	"os"

	"github.com/petasbytes/go-openrouter/chat"
	"github.com/petasbytes/go-openrouter/internal/telemetry"
)

// Stats summarizes the result of window preparation.
//
// Fields:
// - Total: estimated tokens for pinned messages and included groups.
// - Budget: the input token budget used.
// - Pinned: leading system messages, always kept.
// - IncludedGroups: number of groups included.
// - SkippedGroups: total groups minus IncludedGroups.
// - OverBudgetNewest: true when the newest single group alone does not fit.
type Stats struct {
	Total            int
	Budget           int
	Pinned           int
	IncludedGroups   int
	SkippedGroups    int
	OverBudgetNewest bool
}

// Prepare returns the suffix of msgs (oldest to newest) that fits within
// budget, measured with chat.EstimateTokens, preceded by any leading system
// messages.
//
// Rules:
// - Include whole groups (see chat.Ledger.Groups) scanning newest to oldest while total <= budget.
// - Stop at the first group that does not fit; older groups are dropped even if smaller.
// - If the newest group does not fit, return only the pinned prefix and set OverBudgetNewest.
// - A budget <= 0 disables windowing and returns msgs unchanged.
func Prepare(msgs []chat.Message, budget int) ([]chat.Message, Stats) {
	if budget <= 0 {
		return msgs, Stats{Budget: budget, Total: chat.EstimateTokens(msgs)}
	}
	if len(msgs) == 0 {
		return nil, Stats{Budget: budget}
	}

	pinned := 0
	for pinned < len(msgs) && msgs[pinned].Role == chat.RoleSystem {
		pinned++
	}
	head, rest := msgs[:pinned], msgs[pinned:]
	total := chat.EstimateTokens(head)
	groups := chat.NewLedger(rest).Groups()

	included := 0
	start := len(rest)
	for gi := len(groups) - 1; gi >= 0; gi-- {
		g := groups[gi]
		cost := chat.EstimateTokens(rest[g.Start:g.End])
		if total+cost > budget {
			if included == 0 {
				vlogf("reason=over_budget_newest_group budget=%d cost=%d", budget, cost)
				return head, Stats{
					Total:            total,
					Budget:           budget,
					Pinned:           pinned,
					SkippedGroups:    len(groups),
					OverBudgetNewest: true,
				}
			}
			break
		}
		total += cost
		included++
		start = g.Start
	}

	window := make([]chat.Message, 0, pinned+len(rest)-start)
	window = append(window, head...)
	window = append(window, rest[start:]...)
	return window, Stats{
		Total:          total,
		Budget:         budget,
		Pinned:         pinned,
		IncludedGroups: included,
		SkippedGroups:  len(groups) - included,
	}
}

func vlogf(format string, args ...any) {
	if telemetry.VerboseEnabled() {
		fmt.Fprintf(os.Stderr, "[windowing] "+format+"\n", args...)
	}
}
