// Package openrouter implements chat.Transport over the OpenRouter
// chat-completions HTTP API.
package openrouter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/petasbytes/go-openrouter/chat"
	"github.com/petasbytes/go-openrouter/transport"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	APIKeyEnv      = "OPENROUTER_API_KEY"
)

var (
	ErrMissingAPIKey        = errors.New("openrouter: API key not set; export " + APIKeyEnv)
	ErrStreamingUnsupported = errors.New("openrouter: streamed responses are not supported; unset Stream")
	ErrCanceled             = fmt.Errorf("openrouter: request canceled by caller: %w", context.Canceled)
)

// Client sends chat requests to OpenRouter. The zero value is not usable;
// construct with New.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Backoff    transport.Backoff
	// Referer and Title populate OpenRouter's app attribution headers.
	Referer string
	Title   string
}

type Option func(*Client)

func WithBaseURL(u string) Option { return func(c *Client) { c.BaseURL = u } }

func WithAPIKey(k string) Option { return func(c *Client) { c.APIKey = k } }

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.HTTPClient = h } }

func WithBackoff(b transport.Backoff) Option { return func(c *Client) { c.Backoff = b } }

// WithAppInfo sets the HTTP-Referer and X-Title headers.
func WithAppInfo(referer, title string) Option {
	return func(c *Client) { c.Referer, c.Title = referer, title }
}

// New returns a client for DefaultBaseURL using the API key from the
// environment unless overridden by opts.
func New(opts ...Option) *Client {
	c := &Client{
		BaseURL:    DefaultBaseURL,
		APIKey:     os.Getenv(APIKeyEnv),
		HTTPClient: http.DefaultClient,
		Backoff:    transport.DefaultBackoff,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ chat.Transport = (*Client)(nil)

// Send performs one POST to /chat/completions. Unsuccessful statuses are
// returned as *transport.StatusError.
func (c *Client) Send(ctx context.Context, req chat.Request) (*chat.Response, error) {
	if req.Stream {
		return nil, ErrStreamingUnsupported
	}
	if c.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	body, err := req.Body()
	if err != nil {
		return nil, err
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	ctx, canceledByCaller, stop := transport.WithCancelPredicate(ctx, req.IsCanceled)
	defer stop()

	url := strings.TrimRight(c.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openrouter: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.Referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.Referer)
	}
	if c.Title != "" {
		httpReq.Header.Set("X-Title", c.Title)
	}

	start := time.Now()
	capture := chat.Capture{Request: body}
	fail := func(err error) (*chat.Response, error) {
		capture.Err = err
		capture.Duration = time.Since(start)
		if req.CaptureOnError != nil {
			req.CaptureOnError(capture)
		}
		return nil, err
	}

	httpResp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		if canceledByCaller() {
			return fail(ErrCanceled)
		}
		return fail(fmt.Errorf("openrouter: send: %w", err))
	}
	defer httpResp.Body.Close()

	capture.StatusCode = httpResp.StatusCode
	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if canceledByCaller() {
			return fail(ErrCanceled)
		}
		return fail(fmt.Errorf("openrouter: read response: %w", err))
	}
	capture.Response = respBody

	if httpResp.StatusCode != http.StatusOK {
		return fail(transport.NewStatusError(httpResp.StatusCode, respBody))
	}
	resp, err := chat.ParseResponse(respBody)
	if err != nil {
		return fail(fmt.Errorf("openrouter: %w", err))
	}
	capture.Duration = time.Since(start)
	if req.CaptureOnSuccess != nil {
		req.CaptureOnSuccess(capture)
	}
	return resp, nil
}

// SendWithBackoff is Send retried with c.Backoff on retryable statuses.
func (c *Client) SendWithBackoff(ctx context.Context, req chat.Request) (*chat.Response, error) {
	var resp *chat.Response
	err := c.Backoff.Do(ctx, func() error {
		var err error
		resp, err = c.Send(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
