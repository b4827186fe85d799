package chat

import (
	"fmt"
	"slices"
)

// Ledger is the append-only message history of one conversation. It is owned
// by a single Runner.Run call and is not safe for concurrent use.
type Ledger struct {
	msgs []Message
}

// NewLedger starts a ledger from the caller's initial messages.
func NewLedger(initial []Message) *Ledger {
	return &Ledger{msgs: slices.Clone(initial)}
}

func (l *Ledger) Append(msgs ...Message) {
	l.msgs = append(l.msgs, msgs...)
}

// Messages returns a copy of the history in order.
func (l *Ledger) Messages() []Message {
	return slices.Clone(l.msgs)
}

func (l *Ledger) Len() int { return len(l.msgs) }

// Reasons reported by LedgerError.
const (
	ReasonMissingResults  = "missing_results"
	ReasonExtraResults    = "extra_results"
	ReasonDuplicateResult = "duplicate_result"
	ReasonDuplicateCall   = "duplicate_call"
	ReasonOrphanResult    = "orphan_result"
)

// LedgerError reports a tool exchange that breaks call/result pairing.
type LedgerError struct {
	Index  int
	Reason string
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger: %s at message %d", e.Reason, e.Index)
}

// GroupKind denotes the atomic unit a message belongs to.
type GroupKind int

const (
	GroupSingleton GroupKind = iota
	// GroupExchange is an assistant message with tool calls followed by
	// exactly one tool message per call.
	GroupExchange
)

// Group describes a contiguous span [Start, End) of the ledger.
type Group struct {
	Kind  GroupKind
	Start int
	End   int
}

// Groups splits the history into singletons and complete tool exchanges.
// Incomplete exchanges fall back to singletons.
func (l *Ledger) Groups() []Group {
	groups := make([]Group, 0, len(l.msgs))
	for i := 0; i < len(l.msgs); {
		if len(l.msgs[i].ToolCalls) > 0 && l.msgs[i].Role == RoleAssistant {
			if end, err := exchangeEnd(l.msgs, i); err == nil {
				groups = append(groups, Group{Kind: GroupExchange, Start: i, End: end})
				i = end
				continue
			}
		}
		groups = append(groups, Group{Kind: GroupSingleton, Start: i, End: i + 1})
		i++
	}
	return groups
}

// Validate checks every tool exchange in the ledger.
func (l *Ledger) Validate() error {
	return l.ValidateFrom(0)
}

// ValidateFrom checks the tool exchanges starting at index start: each
// assistant tool call must be answered by exactly one of the tool messages
// that immediately follow it, and no tool message may appear elsewhere.
func (l *Ledger) ValidateFrom(start int) error {
	for i := max(start, 0); i < len(l.msgs); {
		m := l.msgs[i]
		switch {
		case m.Role == RoleAssistant && len(m.ToolCalls) > 0:
			end, err := exchangeEnd(l.msgs, i)
			if err != nil {
				return err
			}
			i = end
		case m.Role == RoleTool:
			return &LedgerError{Index: i, Reason: ReasonOrphanResult}
		default:
			i++
		}
	}
	return nil
}

// exchangeEnd returns the exclusive end of the exchange opened at msgs[i].
func exchangeEnd(msgs []Message, i int) (int, error) {
	if _, dup := duplicateCallID(msgs[i].ToolCalls); dup {
		return 0, &LedgerError{Index: i, Reason: ReasonDuplicateCall}
	}
	want := make(map[string]bool, len(msgs[i].ToolCalls))
	for _, c := range msgs[i].ToolCalls {
		want[c.ID] = false
	}
	j := i + 1
	for ; j < len(msgs) && msgs[j].Role == RoleTool; j++ {
		answered, ok := want[msgs[j].ToolCallID]
		if !ok {
			return 0, &LedgerError{Index: j, Reason: ReasonExtraResults}
		}
		if answered {
			return 0, &LedgerError{Index: j, Reason: ReasonDuplicateResult}
		}
		want[msgs[j].ToolCallID] = true
	}
	if j-(i+1) < len(want) {
		return 0, &LedgerError{Index: i, Reason: ReasonMissingResults}
	}
	return j, nil
}

// duplicateCallID reports the first call id that appears twice in calls.
func duplicateCallID(calls []ToolCall) (string, bool) {
	seen := make(map[string]struct{}, len(calls))
	for _, c := range calls {
		if _, ok := seen[c.ID]; ok {
			return c.ID, true
		}
		seen[c.ID] = struct{}{}
	}
	return "", false
}
