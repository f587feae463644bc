package llm

import (
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// ErrInvalidRequest is returned when the message list is empty or does not
// start with the system turn.
var ErrInvalidRequest = errors.New("completion request must start with a system message")

// ClientInitError reports a client that could not be constructed from its configuration.
type ClientInitError struct {
	BaseURL string
	Err     error
}

func (e *ClientInitError) Error() string {
	return fmt.Sprintf("failed to initialize completion client for %q: %v", e.BaseURL, e.Err)
}

func (e *ClientInitError) Unwrap() error { return e.Err }

// CompletionError wraps a provider-reported or transport failure. Its message
// is the cause's message, unaltered.
type CompletionError struct {
	Err error
}

func (e *CompletionError) Error() string { return e.Err.Error() }

func (e *CompletionError) Unwrap() error { return e.Err }

// Provider reports whether the failure was returned by the provider as an API
// error, as opposed to a transport or decoding failure.
func (e *CompletionError) Provider() bool {
	var apiErr *openai.APIError
	return errors.As(e.Err, &apiErr)
}

// StatusCode returns the HTTP status the provider answered with, or 0 when the
// request never got a response.
func (e *CompletionError) StatusCode() int {
	var apiErr *openai.APIError
	if errors.As(e.Err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(e.Err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// EmptyResponseError is returned when the provider answered successfully but
// without usable content.
type EmptyResponseError struct {
	Reason string
}

func (e *EmptyResponseError) Error() string {
	return "empty response from provider: " + e.Reason
}
