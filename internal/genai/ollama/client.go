package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/roundtable/internal/genai"
)

// Client implements genai.Client against an Ollama server's /api/generate
// endpoint.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates an Ollama client for the given base URL (e.g.
// http://localhost:11434) and model name.
func New(baseURL, model string) *Client {
	return &Client{
		baseURL: baseURL,
		model:   model,
		// No client-level timeout: blocking calls use a per-request context
		// deadline and streams stay open until the terminal marker.
		httpClient: &http.Client{},
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	NumPredict  int     `json:"num_predict"`
	Temperature float64 `json:"temperature"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Complete performs a blocking generate call and returns the full response
// string. Transient failures are retried with exponential backoff inside the
// request timeout; streams are never retried because they are not
// restartable.
func (c *Client) Complete(ctx context.Context, prompt string, opts genai.Options) (string, error) {
	opts.ApplyDefaults()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	operation := func() (string, error) {
		resp, err := c.post(ctx, prompt, opts, false)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("%w: status %d", genai.ErrGenerationUnavailable, resp.StatusCode)
			if resp.StatusCode >= 500 {
				return "", err // retryable
			}
			return "", backoff.Permanent(err)
		}

		var chunk generateChunk
		if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil {
			return "", backoff.Permanent(fmt.Errorf("%w: decoding response: %w", genai.ErrGenerationUnavailable, err))
		}

		return chunk.Response, nil
	}

	text, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
	)
	if err != nil {
		return "", c.mapError(ctx, err)
	}

	return text, nil
}

// Stream opens a streaming generate call. The returned TokenStream owns the
// HTTP response body and closes it the moment the terminal marker arrives or
// the consumer stops pulling - not when the GC gets around to it. Leaving the
// connection open past the last token blocks the backend's next request.
func (c *Client) Stream(ctx context.Context, prompt string, opts genai.Options) (genai.TokenStream, error) {
	opts.ApplyDefaults()

	resp, err := c.post(ctx, prompt, opts, true)
	if err != nil {
		return nil, c.mapError(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: status %d", genai.ErrGenerationUnavailable, resp.StatusCode)
	}

	return &tokenStream{
		body: resp.Body,
		dec:  json.NewDecoder(resp.Body),
	}, nil
}

func (c *Client) post(ctx context.Context, prompt string, opts genai.Options, stream bool) (*http.Response, error) {
	payload := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: stream,
		Options: generateOptions{
			NumPredict:  opts.MaxTokens,
			Temperature: opts.Temperature,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", genai.ErrGenerationUnavailable, err)
	}

	log.Debug().
		Str("model", c.model).
		Bool("stream", stream).
		Dur("duration", time.Since(started)).
		Int("status", resp.StatusCode).
		Msg("ollama generate request")

	return resp, nil
}

// mapError converts context expiry into ErrGenerationTimeout so callers can
// distinguish slow backends from unreachable ones.
func (c *Client) mapError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", genai.ErrGenerationTimeout, err)
	}
	if errors.Is(err, genai.ErrGenerationUnavailable) || errors.Is(err, genai.ErrGenerationTimeout) {
		return err
	}
	return fmt.Errorf("%w: %w", genai.ErrGenerationUnavailable, err)
}

// tokenStream decodes NDJSON chunks from an open generate response. A
// json.Decoder rather than a line scanner: the done chunk carries the model's
// full context array, which grows with the transcript and has no bounded line
// length.
type tokenStream struct {
	body      io.ReadCloser
	dec       *json.Decoder
	closeOnce sync.Once
	done      bool
}

// Recv returns the next non-empty token. It returns io.EOF - and releases the
// connection - as soon as the done marker is seen.
func (s *tokenStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for {
		var chunk generateChunk
		if err := s.dec.Decode(&chunk); err != nil {
			s.done = true
			_ = s.Close()
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", fmt.Errorf("%w: decoding chunk: %w", genai.ErrGenerationUnavailable, err)
		}

		if chunk.Done {
			// Close immediately so the backend is free for the next caller
			// (moderator transition or the next speak request) before control
			// returns to the pipeline.
			s.done = true
			_ = s.Close()
			if chunk.Response != "" {
				return chunk.Response, nil
			}
			return "", io.EOF
		}

		if chunk.Response != "" {
			return chunk.Response, nil
		}
	}
}

// Close releases the underlying connection. Safe to call multiple times.
func (s *tokenStream) Close() error {
	s.closeOnce.Do(func() {
		_ = s.body.Close()
	})
	return nil
}
