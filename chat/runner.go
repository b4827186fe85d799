package chat

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/petasbytes/go-openrouter/internal/telemetry"
	"github.com/petasbytes/go-openrouter/tools"
)

// MaxTurns caps the number of round-trips in one conversation.
const MaxTurns = 10

// Run outcomes reported to observers and telemetry.
const (
	OutcomeCompleted = "completed"
	OutcomeRefused   = "refused"
	OutcomeFailed    = "failed"
)

// Observer is notified as a conversation progresses. Calls happen on the
// goroutine running the conversation.
type Observer interface {
	TurnCompleted(TurnInfo)
	ToolCompleted(ToolInfo)
	RunCompleted(RunInfo)
}

type TurnInfo struct {
	Turn         int
	Model        string
	FinishReason string
	ToolCalls    int
	Refused      bool
	Duration     time.Duration
}

type ToolInfo struct {
	Turn     int
	Name     string
	CallID   string
	Status   string
	Duration time.Duration
}

// Tool dispatch statuses.
const (
	ToolStatusOK      = "ok"
	ToolStatusUnknown = "unknown_tool"
	ToolStatusBadArgs = "bad_arguments"
	ToolStatusFailed  = "error"
)

type RunInfo struct {
	ConversationID string
	Turns          int
	ToolCalls      int
	Outcome        string
	Err            error
}

// Result is what a conversation produced. On error it holds everything up to
// the failure point.
type Result struct {
	ConversationID string
	// Response is the last response received, the terminal one on success.
	Response *Response
	// Messages is the ledger as last sent or about to be sent.
	Messages  []Message
	Turns     int
	ToolCalls int
	Refused   bool
}

// Transcript returns Messages followed by the terminal assistant message, if any.
func (r *Result) Transcript() []Message {
	out := append([]Message(nil), r.Messages...)
	if r.Response != nil && r.Response.Message != nil {
		out = append(out, *r.Response.Message)
	}
	return out
}

// Runner drives the tool-call loop over a Transport. A Runner holds no
// per-conversation state, so one value may serve concurrent conversations.
type Runner struct {
	Transport Transport
	Observers []Observer
}

func NewRunner(t Transport, observers ...Observer) *Runner {
	return &Runner{Transport: t, Observers: observers}
}

// Run sends req and keeps executing requested tools until the model stops,
// refuses, or MaxTurns is exceeded. useBackoff selects the transport's retry
// variant for every send of the conversation.
//
// Transport errors are returned unchanged. Loop failures are one of
// *UpstreamProtocolError, *DuplicateToolCallError, *UnknownToolError,
// *ToolArgumentDecodeError, *ToolExecutionError or
// *IterationLimitExceededError. A refusal is not an
// error: check Result.Refused.
func (r *Runner) Run(ctx context.Context, req Request, useBackoff bool) (res *Result, err error) {
	if r.Transport == nil {
		return nil, errors.New("chat: runner has no transport")
	}
	registry, err := tools.NewRegistry(req.Tools)
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}

	convID, ok := telemetry.ConversationIDFromContext(ctx)
	if !ok {
		convID = "conv-" + uuid.NewString()
		ctx = telemetry.WithConversationID(ctx, convID)
	}

	send := r.Transport.Send
	if useBackoff {
		send = r.Transport.SendWithBackoff
	}

	ledger := NewLedger(req.Messages)
	res = &Result{ConversationID: convID}
	defer func() {
		res.Messages = ledger.Messages()
		r.finish(res, err)
	}()

	current := req.clone()
	for turn := 1; ; turn++ {
		if turn > MaxTurns {
			return res, &IterationLimitExceededError{Limit: MaxTurns, Turns: turn}
		}
		res.Turns = turn

		telemetry.Emit("turn_sent", map[string]any{
			"conversation_id":  convID,
			"turn":             turn,
			"model":            current.Model,
			"messages":         len(current.Messages),
			"estimated_tokens": EstimateTokens(current.Messages),
			"backoff":          useBackoff,
		})

		start := time.Now()
		resp, err := send(ctx, current)
		if err != nil {
			return res, err
		}
		if resp == nil {
			return res, fmt.Errorf("turn %d: transport returned no response", turn)
		}
		res.Response = resp
		r.turnCompleted(convID, TurnInfo{
			Turn:         turn,
			Model:        current.Model,
			FinishReason: resp.FinishReason,
			ToolCalls:    len(resp.ToolCalls()),
			Refused:      resp.HasRefusal(),
			Duration:     time.Since(start),
		})

		if resp.HasError() {
			return res, &UpstreamProtocolError{Turn: turn, Payload: resp.Error()}
		}
		// A refusal ends the conversation even when tool calls came with it.
		if resp.HasRefusal() {
			res.Refused = true
			return res, nil
		}
		calls := resp.ToolCalls()
		if resp.FinishReason != FinishToolCalls || len(calls) == 0 {
			return res, nil
		}

		if id, dup := duplicateCallID(calls); dup {
			return res, &DuplicateToolCallError{CallID: id, Turn: turn}
		}

		exchangeStart := ledger.Len()
		ledger.Append(*resp.Message)
		for _, call := range calls {
			content, err := r.dispatch(ctx, registry, turn, call)
			if err != nil {
				return res, err
			}
			ledger.Append(ToolMessage(call.ID, content))
			res.ToolCalls++
		}
		if err := ledger.ValidateFrom(exchangeStart); err != nil {
			return res, fmt.Errorf("turn %d: %w", turn, err)
		}

		current = Rebuild(req, ledger)
	}
}

// dispatch resolves, decodes and executes one tool call and returns the
// tool message content.
func (r *Runner) dispatch(ctx context.Context, registry *tools.Registry, turn int, call ToolCall) (string, error) {
	name := call.Function.Name
	start := time.Now()
	done := func(status string, outSize int, cause error) {
		fields := map[string]any{
			"turn":        turn,
			"tool_name":   name,
			"call_id":     call.ID,
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
			"input_size":  len(call.Function.Arguments),
			"output_size": outSize,
			"error":       nil,
		}
		if cid, ok := telemetry.ConversationIDFromContext(ctx); ok {
			fields["conversation_id"] = cid
		}
		// Only the status goes to telemetry so tool payloads never leak.
		if cause != nil {
			fields["error"] = status
		}
		telemetry.Emit("tool_exec", fields)
		info := ToolInfo{Turn: turn, Name: name, CallID: call.ID, Status: status, Duration: time.Since(start)}
		for _, o := range r.Observers {
			o.ToolCompleted(info)
		}
	}

	def, err := registry.Lookup(name)
	if err != nil {
		done(ToolStatusUnknown, 0, err)
		return "", &UnknownToolError{Name: name, CallID: call.ID, Turn: turn}
	}
	args, err := tools.DecodeArguments(call.Function.Arguments)
	if err != nil {
		done(ToolStatusBadArgs, 0, err)
		return "", &ToolArgumentDecodeError{
			Name:      name,
			CallID:    call.ID,
			Arguments: call.Function.Arguments,
			Turn:      turn,
			Err:       err,
		}
	}
	out, err := invoke(ctx, def.Function, args)
	if err == nil {
		var content string
		content, err = tools.EncodeResult(out)
		if err == nil {
			done(ToolStatusOK, len(content), nil)
			return content, nil
		}
	}
	done(ToolStatusFailed, 0, err)
	return "", &ToolExecutionError{Name: name, CallID: call.ID, Turn: turn, Err: err}
}

// invoke runs a handler, turning a panic into an error.
func invoke(ctx context.Context, fn tools.Handler, args tools.Arguments) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn(ctx, args)
}

func (r *Runner) turnCompleted(convID string, info TurnInfo) {
	telemetry.Emit("turn_received", map[string]any{
		"conversation_id": convID,
		"turn":            info.Turn,
		"finish_reason":   info.FinishReason,
		"tool_calls":      info.ToolCalls,
		"refusal":         info.Refused,
		"duration_ms":     info.Duration.Milliseconds(),
	})
	vlogf("turn %d: finish=%s tool_calls=%d refusal=%t", info.Turn, info.FinishReason, info.ToolCalls, info.Refused)
	for _, o := range r.Observers {
		o.TurnCompleted(info)
	}
}

func (r *Runner) finish(res *Result, err error) {
	outcome := OutcomeCompleted
	switch {
	case err != nil:
		outcome = OutcomeFailed
	case res.Refused:
		outcome = OutcomeRefused
	}
	fields := map[string]any{
		"conversation_id": res.ConversationID,
		"turns":           res.Turns,
		"tool_calls":      res.ToolCalls,
		"outcome":         outcome,
		"error":           nil,
	}
	if err != nil {
		fields["error"] = ErrorKind(err)
	}
	telemetry.Emit("run_completed", fields)
	info := RunInfo{
		ConversationID: res.ConversationID,
		Turns:          res.Turns,
		ToolCalls:      res.ToolCalls,
		Outcome:        outcome,
		Err:            err,
	}
	for _, o := range r.Observers {
		o.RunCompleted(info)
	}
}

// ErrorKind names the class of a Run error for logs and metrics.
func ErrorKind(err error) string {
	var (
		upstream *UpstreamProtocolError
		dup      *DuplicateToolCallError
		unknown  *UnknownToolError
		decode   *ToolArgumentDecodeError
		exec     *ToolExecutionError
		limit    *IterationLimitExceededError
		ledger   *LedgerError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &upstream):
		return "upstream_protocol"
	case errors.As(err, &dup):
		return "duplicate_call_id"
	case errors.As(err, &unknown):
		return "unknown_tool"
	case errors.As(err, &decode):
		return "tool_argument_decode"
	case errors.As(err, &exec):
		return "tool_execution"
	case errors.As(err, &limit):
		return "iteration_limit"
	case errors.As(err, &ledger):
		return "ledger"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "transport"
	}
}

func vlogf(format string, args ...any) {
	if telemetry.VerboseEnabled() {
		fmt.Fprintf(os.Stderr, "[chat] "+format+"\n", args...)
	}
}
