// Package transport holds the failure kinds shared by chat transports.
package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind classifies an unsuccessful upstream HTTP status.
type Kind int

const (
	KindUnexpected Kind = iota
	KindRequestRejected
	KindPermissionDenied
	KindNotFound
	KindRateLimited
	KindServerError
	KindServiceUnavailable
	KindGatewayTimeout
)

var (
	ErrRequestRejected    = errors.New("request rejected")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrServerError        = errors.New("server error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrGatewayTimeout     = errors.New("gateway timeout")
	ErrUnexpectedStatus   = errors.New("unexpected status")
)

var kindInfo = map[Kind]struct {
	name      string
	sentinel  error
	retryable bool
}{
	KindUnexpected:         {"unexpected", ErrUnexpectedStatus, false},
	KindRequestRejected:    {"request_rejected", ErrRequestRejected, false},
	KindPermissionDenied:   {"permission_denied", ErrPermissionDenied, false},
	KindNotFound:           {"not_found", ErrNotFound, false},
	KindRateLimited:        {"rate_limited", ErrRateLimited, true},
	KindServerError:        {"server_error", ErrServerError, true},
	KindServiceUnavailable: {"service_unavailable", ErrServiceUnavailable, true},
	KindGatewayTimeout:     {"gateway_timeout", ErrGatewayTimeout, false},
}

func (k Kind) String() string { return kindInfo[k].name }

// Retryable reports whether a send failing with k may be repeated.
func (k Kind) Retryable() bool { return kindInfo[k].retryable }

// Classify maps an HTTP status code to a Kind.
func Classify(status int) Kind {
	switch status {
	case http.StatusBadRequest:
		return KindRequestRejected
	case http.StatusForbidden:
		return KindPermissionDenied
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusInternalServerError:
		return KindServerError
	case http.StatusServiceUnavailable:
		return KindServiceUnavailable
	case http.StatusGatewayTimeout:
		return KindGatewayTimeout
	default:
		return KindUnexpected
	}
}

// StatusError is an unsuccessful upstream reply. It matches the sentinel of
// its Kind with errors.Is.
type StatusError struct {
	Kind       Kind
	StatusCode int
	Message    string
	Body       []byte
}

// NewStatusError classifies status and extracts the upstream error message
// from body when it has one.
func NewStatusError(status int, body []byte) *StatusError {
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	return &StatusError{Kind: Classify(status), StatusCode: status, Message: msg, Body: body}
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (HTTP %d)", kindInfo[e.Kind].sentinel, e.StatusCode)
	}
	return fmt.Sprintf("%s (HTTP %d): %s", kindInfo[e.Kind].sentinel, e.StatusCode, e.Message)
}

func (e *StatusError) Is(target error) bool {
	return target == kindInfo[e.Kind].sentinel
}

// Retryable reports whether err is a StatusError of a retryable kind.
func Retryable(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Kind.Retryable()
}
