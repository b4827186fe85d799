package chat

import (
	"context"
	"time"
)

// Transport sends one request and returns the parsed reply. Failures are
// reported as errors and are passed through the Runner unchanged.
type Transport interface {
	Send(ctx context.Context, req Request) (*Response, error)
	// SendWithBackoff is Send with the transport's retry policy applied.
	SendWithBackoff(ctx context.Context, req Request) (*Response, error)
}

// Capture is the record handed to a request's capture hooks after a send.
type Capture struct {
	Request    []byte
	Response   []byte
	StatusCode int
	Err        error
	Duration   time.Duration
}

type CaptureFunc func(Capture)
