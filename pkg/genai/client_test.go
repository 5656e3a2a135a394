package genai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(&Config{
		BaseURL:    url,
		APIKey:     "test-key",
		Model:      "gemini-pro",
		Timeout:    5 * time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}, nil)
}

func TestGenerate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-pro:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req GenerateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if !assert.Len(t, req.Contents, 3) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, RoleUser, req.Contents[2].Role)
		assert.Equal(t, "how do I reset?", req.Contents[2].Text())
		assert.Len(t, req.SafetySettings, 4)

		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Use the "},{"text":"reset link."}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	history := []Content{UserTurn("hi"), ModelTurn("hello")}
	text, err := c.Generate(context.Background(), "how do I reset?", history)
	require.NoError(t, err)
	assert.Equal(t, "Use the reset link.", text)
}

func TestGenerate_NotConfigured(t *testing.T) {
	c := NewClient(&Config{BaseURL: "http://127.0.0.1:0"}, nil)
	assert.False(t, c.Configured())
	_, err := c.Generate(context.Background(), "x", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)

	c.SetAPIKey("  ")
	assert.False(t, c.Configured())
	c.SetAPIKey("abcdefgh")
	assert.True(t, c.Configured())
	assert.Equal(t, "****efgh", c.MaskedKey())
}

func TestGenerate_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"ok"}]}}]}`))
	}))
	defer srv.Close()

	text, err := newTestClient(srv.URL).Generate(context.Background(), "x", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGenerate_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Generate(context.Background(), "x", nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.StatusCode)
	assert.Equal(t, "API key not valid", apiErr.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGenerate_Blocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Generate(context.Background(), "x", nil)
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestGenerate_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"  "}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Generate(context.Background(), "x", nil)
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
