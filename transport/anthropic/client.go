// Package anthropic implements chat.Transport over the Anthropic Messages
// API. Requests and replies are converted to and from the chat-completions
// shape, so the conversation loop works unchanged on either backend.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/petasbytes/go-openrouter/chat"
	"github.com/petasbytes/go-openrouter/transport"
)

const (
	DefaultModel      = sdk.ModelClaude3_7SonnetLatest
	DefaultMaxTokens  = 1024
	DefaultMaxRetries = 5
)

var (
	ErrStreamingUnsupported = errors.New("anthropic: streamed responses are not supported; unset Stream")
	ErrCanceled             = fmt.Errorf("anthropic: request canceled by caller: %w", context.Canceled)
)

// Client sends chat requests through the Anthropic SDK.
type Client struct {
	client sdk.Client

	// Model is used when a request names a non-Anthropic model.
	Model     sdk.Model
	MaxTokens int64
	// MaxRetries is the SDK retry budget for SendWithBackoff. Send never retries.
	MaxRetries int
}

// New returns a client. Without options the SDK reads ANTHROPIC_API_KEY from
// the environment.
func New(opts ...option.RequestOption) *Client {
	return &Client{
		client:     sdk.NewClient(opts...),
		Model:      DefaultModel,
		MaxTokens:  DefaultMaxTokens,
		MaxRetries: DefaultMaxRetries,
	}
}

var _ chat.Transport = (*Client)(nil)

func (c *Client) Send(ctx context.Context, req chat.Request) (*chat.Response, error) {
	return c.send(ctx, req, 0)
}

// SendWithBackoff delegates retries to the SDK's exponential backoff.
func (c *Client) SendWithBackoff(ctx context.Context, req chat.Request) (*chat.Response, error) {
	return c.send(ctx, req, c.MaxRetries)
}

func (c *Client) send(ctx context.Context, req chat.Request, retries int) (*chat.Response, error) {
	if req.Stream {
		return nil, ErrStreamingUnsupported
	}
	params, err := c.params(req)
	if err != nil {
		return nil, err
	}

	ctx, canceledByCaller, stop := transport.WithCancelPredicate(ctx, req.IsCanceled)
	defer stop()
	opts := []option.RequestOption{option.WithMaxRetries(retries)}
	if req.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(req.Timeout))
	}

	// The SDK encodes params itself; this copy only feeds the capture hooks.
	// A body that cannot be encoded here would fail inside the SDK as well.
	reqBody, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: encode request: %w", err)
	}
	capture := chat.Capture{Request: reqBody}
	start := time.Now()
	msg, err := c.client.Messages.New(ctx, params, opts...)
	capture.Duration = time.Since(start)
	if err != nil {
		var apiErr *sdk.Error
		switch {
		case errors.As(err, &apiErr):
			capture.StatusCode = apiErr.StatusCode
			capture.Response = []byte(apiErr.RawJSON())
			err = transport.NewStatusError(apiErr.StatusCode, capture.Response)
		case canceledByCaller():
			err = ErrCanceled
		default:
			err = fmt.Errorf("anthropic: send: %w", err)
		}
		capture.Err = err
		if req.CaptureOnError != nil {
			req.CaptureOnError(capture)
		}
		return nil, err
	}

	capture.StatusCode = 200
	capture.Response = []byte(msg.RawJSON())
	body, err := completionBody(msg)
	if err != nil {
		return nil, err
	}
	resp, err := chat.ParseResponse(body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	if req.CaptureOnSuccess != nil {
		req.CaptureOnSuccess(capture)
	}
	return resp, nil
}
