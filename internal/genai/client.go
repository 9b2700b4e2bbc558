package genai

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for common error conditions
var (
	// ErrGenerationTimeout indicates the backend did not answer within the
	// request timeout.
	ErrGenerationTimeout = errors.New("generation timed out")

	// ErrGenerationUnavailable indicates the backend could not be reached or
	// refused the request.
	ErrGenerationUnavailable = errors.New("generation backend unavailable")
)

// Options controls a single generation call.
type Options struct {
	// MaxTokens limits the number of tokens generated. Default: 300
	MaxTokens int

	// Temperature controls sampling randomness. Default: 0.7
	Temperature float64

	// Timeout bounds a blocking Complete call. Default: 60s
	Timeout time.Duration
}

// ApplyDefaults applies default values to unset option fields.
func (o *Options) ApplyDefaults() {
	if o.MaxTokens == 0 {
		o.MaxTokens = 300
	}
	if o.Temperature == 0 {
		o.Temperature = 0.7
	}
	if o.Timeout == 0 {
		o.Timeout = 60 * time.Second
	}
}

// TokenStream is a finite, non-restartable sequence of generated tokens.
// Recv returns io.EOF once the backend sends its terminal marker. Close is
// idempotent and releases the underlying connection; callers must close the
// stream on every exit path so the backend is free to accept the next request.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// Client is the port to the text generation backend.
//
// Exclusivity contract: the backend accepts only one in-flight call per
// logical conversation. Issuing a Complete or a second Stream while a stream
// is open aborts the first mid-flight, so callers must never overlap calls -
// canned text exists for the moments where the stream still holds the
// connection.
type Client interface {
	// Complete performs a blocking call and returns the full response text.
	Complete(ctx context.Context, prompt string, opts Options) (string, error)

	// Stream opens an exclusive connection and returns the live token
	// sequence.
	Stream(ctx context.Context, prompt string, opts Options) (TokenStream, error)
}
