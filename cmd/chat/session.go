package main

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/petasbytes/go-openrouter/chat"
	"github.com/petasbytes/go-openrouter/internal/config"
	"github.com/petasbytes/go-openrouter/internal/telemetry"
	"github.com/petasbytes/go-openrouter/internal/windowing"
	"github.com/petasbytes/go-openrouter/tools"
)

// session carries the REPL history across user turns.
type session struct {
	cfg     *config.Config
	runner  *chat.Runner
	tools   []tools.Definition
	history []chat.Message
}

// turn runs one user input through the tool-call loop. History only grows on
// success, so a failed turn never leaves a half-finished tool exchange behind.
func (s *session) turn(ctx context.Context, user string) (*chat.Result, error) {
	telemetry.EmitUserInput(ctx, user)

	req := s.cfg.Request(append(slices.Clone(s.history), chat.UserMessage(user))...)
	window, stats := windowing.Prepare(req.Messages, s.cfg.TokenBudget)
	convID, _ := telemetry.ConversationIDFromContext(ctx)
	telemetry.Emit("window_prepared", map[string]any{
		"conversation_id":    convID,
		"model":              req.Model,
		"budget":             stats.Budget,
		"total_estimated":    stats.Total,
		"pinned":             stats.Pinned,
		"included_groups":    stats.IncludedGroups,
		"skipped_groups":     stats.SkippedGroups,
		"over_budget_newest": stats.OverBudgetNewest,
	})
	if stats.OverBudgetNewest {
		return nil, fmt.Errorf("windowing: newest message exceeds token budget %d; raise token_budget", stats.Budget)
	}
	req.Messages = window
	req.Tools = s.tools
	req.CaptureOnSuccess = persistCapture("ok")
	req.CaptureOnError = persistCapture("error")

	res, err := s.runner.Run(ctx, req, s.cfg.Backoff)
	if err != nil {
		return res, err
	}
	// Everything past the window is new: the user message, tool exchanges
	// and the final answer.
	transcript := res.Transcript()
	s.history = append(s.history, transcript[len(window)-1:]...)
	return res, nil
}

func persistCapture(label string) chat.CaptureFunc {
	return func(c chat.Capture) {
		if _, err := telemetry.PersistExchange(label, c.Request, c.Response); err != nil {
			fmt.Fprintf(os.Stderr, "warning: persist payload: %v\n", err)
		}
	}
}
