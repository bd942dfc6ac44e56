package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnthropicCompleter_MissingKey(t *testing.T) {
	_, err := NewAnthropicCompleter("", "", "")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNewOpenAICompleter_MissingKey(t *testing.T) {
	_, err := NewOpenAICompleter("", "", "")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "carrier-pigeon", APIKey: "k"})
	assert.Error(t, err)
}

func TestNew_DefaultModels(t *testing.T) {
	c, err := NewAnthropicCompleter("k", "", "")
	require.NoError(t, err)
	assert.Equal(t, ModelHaiku, c.Model())

	o, err := NewOpenAICompleter("k", "", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultOpenAIModel, o.Model())
}

func TestAnthropicCompleter_ConcatenatesTextBlocks(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-20241022",
			"content": [
				{"type": "text", "text": "{\"question\":"},
				{"type": "text", "text": "\"Proceed?\"}"}
			],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`)
	}))
	defer srv.Close()

	c, err := NewAnthropicCompleter("test-key", srv.URL, "")
	require.NoError(t, err)

	text, err := c.Complete(context.Background(), Request{Prompt: "hi", System: "be terse", MaxTokens: 64})
	require.NoError(t, err)
	assert.Equal(t, `{"question":"Proceed?"}`, text)

	require.NotNil(t, gotBody)
	assert.EqualValues(t, 64, gotBody["max_tokens"])
	assert.NotNil(t, gotBody["system"])
}

func TestOpenAICompleter_ReturnsFirstChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [
				{"index": 0, "message": {"role": "assistant", "content": "ok"}, "finish_reason": "stop"}
			]
		}`)
	}))
	defer srv.Close()

	c, err := NewOpenAICompleter("test-key", srv.URL, "")
	require.NoError(t, err)

	text, err := c.Complete(context.Background(), Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestGuarded_OpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"api_error","message":"boom"}}`)
	}))
	defer srv.Close()

	g, err := New(Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Guard: GuardConfig{
			CircuitBreakerEnabled: true,
			FailureThreshold:      2,
			SuccessThreshold:      1,
			OpenTimeout:           time.Hour,
		},
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = g.Complete(context.Background(), Request{Prompt: "hi"})
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), hits.Load(), "one request per call, no retries")
	assert.Equal(t, CircuitOpen, g.Breaker().State())

	_, err = g.Complete(context.Background(), Request{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load(), "open circuit fails fast")
}

func TestGuarded_ClientErrorsDoNotTrip(t *testing.T) {
	calls := 0
	next := CompleterFunc(func(ctx context.Context, req Request) (string, error) {
		calls++
		return "", errors.New("invalid request: bad prompt")
	})
	g := NewGuarded(next, GuardConfig{CircuitBreakerEnabled: true, FailureThreshold: 1, OpenTimeout: time.Hour}, nil)

	for i := 0; i < 3; i++ {
		_, err := g.Complete(context.Background(), Request{})
		require.Error(t, err)
	}
	assert.Equal(t, 3, calls)
	assert.Equal(t, CircuitClosed, g.Breaker().State())
}

func TestGuarded_ConcurrencyLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	next := CompleterFunc(func(ctx context.Context, req Request) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return "ok", nil
	})
	g := NewGuarded(next, GuardConfig{MaxConcurrentCalls: 2}, nil)
	assert.Nil(t, g.Breaker())

	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func() {
			_, _ = g.Complete(context.Background(), Request{})
			done <- struct{}{}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	for i := 0; i < 5; i++ {
		<-done
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestGuarded_AcquireHonorsContext(t *testing.T) {
	block := make(chan struct{})
	next := CompleterFunc(func(ctx context.Context, req Request) (string, error) {
		<-block
		return "", nil
	})
	g := NewGuarded(next, GuardConfig{MaxConcurrentCalls: 1}, nil)

	go func() { _, _ = g.Complete(context.Background(), Request{}) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := g.Complete(ctx, Request{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(block)
}

func TestIsTransientError(t *testing.T) {
	assert.False(t, isTransientError(nil))
	assert.True(t, isTransientError(context.DeadlineExceeded))
	assert.True(t, isTransientError(errors.New("dial tcp: connection refused")))
	assert.True(t, isTransientError(errors.New("429 rate limit exceeded")))
	assert.False(t, isTransientError(errors.New("401 unauthorized")))
}
