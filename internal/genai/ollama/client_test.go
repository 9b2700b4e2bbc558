package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/roundtable/internal/genai"
)

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/generate", r.URL.Path)

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "testmodel", req.Model)
		require.False(t, req.Stream)
		require.Equal(t, 300, req.Options.NumPredict)

		_ = json.NewEncoder(w).Encode(generateChunk{Response: "full response", Done: true})
	}))
	defer srv.Close()

	client := New(srv.URL, "testmodel")

	text, err := client.Complete(context.Background(), "say something", genai.Options{})
	require.NoError(t, err)
	require.Equal(t, "full response", text)
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(generateChunk{Response: "eventually", Done: true})
	}))
	defer srv.Close()

	client := New(srv.URL, "testmodel")

	text, err := client.Complete(context.Background(), "prompt", genai.Options{})
	require.NoError(t, err)
	require.Equal(t, "eventually", text)
	require.Equal(t, int32(3), calls.Load())
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := New(srv.URL, "testmodel")

	_, err := client.Complete(context.Background(), "prompt", genai.Options{})
	require.ErrorIs(t, err, genai.ErrGenerationUnavailable)
	require.Equal(t, int32(1), calls.Load())
}

func TestCompleteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server detects the client disconnect and
		// cancels the request context; otherwise srv.Close deadlocks.
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := New(srv.URL, "testmodel")

	_, err := client.Complete(context.Background(), "prompt", genai.Options{Timeout: 50 * time.Millisecond})
	require.ErrorIs(t, err, genai.ErrGenerationTimeout)
}

func TestCompleteUnreachableBackend(t *testing.T) {
	client := New("http://127.0.0.1:1", "testmodel")

	_, err := client.Complete(context.Background(), "prompt", genai.Options{Timeout: 2 * time.Second})
	require.ErrorIs(t, err, genai.ErrGenerationUnavailable)
}

func TestStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.True(t, req.Stream)

		for _, tok := range []string{"Hello", " ", "world"} {
			fmt.Fprintf(w, `{"response":%q,"done":false}`+"\n", tok)
		}
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer srv.Close()

	client := New(srv.URL, "testmodel")

	ts, err := client.Stream(context.Background(), "prompt", genai.Options{})
	require.NoError(t, err)
	defer ts.Close() //nolint:errcheck

	var tokens []string
	for {
		tok, err := ts.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		tokens = append(tokens, tok)
	}

	require.Equal(t, []string{"Hello", " ", "world"}, tokens)
}

func TestStreamDoneMarkerWithText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"first","done":false}`)
		fmt.Fprintln(w, `{"response":"last","done":true}`)
	}))
	defer srv.Close()

	client := New(srv.URL, "testmodel")

	ts, err := client.Stream(context.Background(), "prompt", genai.Options{})
	require.NoError(t, err)

	tok, err := ts.Recv()
	require.NoError(t, err)
	require.Equal(t, "first", tok)

	// The done marker's text is delivered, then the stream is exhausted.
	tok, err = ts.Recv()
	require.NoError(t, err)
	require.Equal(t, "last", tok)

	_, err = ts.Recv()
	require.ErrorIs(t, err, io.EOF)

	// Recv after EOF stays terminal.
	_, err = ts.Recv()
	require.ErrorIs(t, err, io.EOF)
}

func TestStreamLargeDoneChunk(t *testing.T) {
	// The terminal chunk carries the model's full context token array, which
	// grows with the transcript. A completed stream must not fail on its size.
	contextTokens := make([]int, 30000)
	for i := range contextTokens {
		contextTokens[i] = 100000 + i
	}
	doneLine, err := json.Marshal(map[string]any{
		"response": "",
		"done":     true,
		"context":  contextTokens,
	})
	require.NoError(t, err)
	require.Greater(t, len(doneLine), 64*1024)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"token","done":false}`)
		_, _ = w.Write(doneLine)
		_, _ = w.Write([]byte("\n"))
	}))
	defer srv.Close()

	client := New(srv.URL, "testmodel")

	ts, err := client.Stream(context.Background(), "prompt", genai.Options{})
	require.NoError(t, err)

	tok, err := ts.Recv()
	require.NoError(t, err)
	require.Equal(t, "token", tok)

	_, err = ts.Recv()
	require.ErrorIs(t, err, io.EOF)
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer srv.Close()

	client := New(srv.URL, "testmodel")

	ts, err := client.Stream(context.Background(), "prompt", genai.Options{})
	require.NoError(t, err)

	_, err = ts.Recv()
	require.ErrorIs(t, err, io.EOF)

	require.NoError(t, ts.Close())
	require.NoError(t, ts.Close())
}

func TestStreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := New(srv.URL, "testmodel")

	_, err := client.Stream(context.Background(), "prompt", genai.Options{})
	require.ErrorIs(t, err, genai.ErrGenerationUnavailable)
}

func TestStreamMalformedChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"ok","done":false}`)
		fmt.Fprintln(w, `not json`)
	}))
	defer srv.Close()

	client := New(srv.URL, "testmodel")

	ts, err := client.Stream(context.Background(), "prompt", genai.Options{})
	require.NoError(t, err)
	defer ts.Close() //nolint:errcheck

	tok, err := ts.Recv()
	require.NoError(t, err)
	require.Equal(t, "ok", tok)

	_, err = ts.Recv()
	require.ErrorIs(t, err, genai.ErrGenerationUnavailable)
}
