package genclient

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldloom/worldloom/internal/store"
)

func newTestClient(t *testing.T, srv *httptest.Server, usage *Recorder) *Client {
	t.Helper()
	c := New(Config{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "loom-large",
		Retry:   RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond},
	}, usage, slog.New(slog.DiscardHandler))
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestGenerate_Success(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		_ = json.NewEncoder(w).Encode(Response{
			Content: json.RawMessage(`{"lore":"The granary fire still smolders."}`),
			Usage:   Usage{PromptTokens: 1200, CompletionTokens: 300},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	resp, err := c.Generate(context.Background(), &Request{
		Entity:   "burg:12",
		Messages: []Message{{Role: "user", Content: "describe burg 12"}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"lore":"The granary fire still smolders."}`, string(resp.Content))
	assert.Equal(t, 1200, resp.Usage.PromptTokens)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Contains(t, gotBody, `"model":"loom-large"`) // config default filled in
	assert.NotContains(t, gotBody, "burg:12")           // entity label stays local
}

func TestGenerate_RetriesThrottleThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.Header().Set("retry-after-ms", "5")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(Response{Content: json.RawMessage(`{}`)})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	_, err := c.Generate(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGenerate_ThrottleExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	_, err := c.Generate(context.Background(), &Request{})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGenerate_NonThrottleErrorPropagatesImmediately(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	_, err := c.Generate(context.Background(), &Request{})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerate_RecordsUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(Response{
			Content: json.RawMessage(`{}`),
			Usage:   Usage{PromptTokens: 1000000, CompletionTokens: 500000},
		})
	}))
	defer srv.Close()

	st, err := store.OpenMemory()
	require.NoError(t, err)
	defer st.Close()

	rec := NewRecorder(st, map[string]Price{
		"loom-large": {PromptUSD: 3, CompletionUSD: 15},
	})
	rec.now = func() time.Time { return time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC) }

	c := newTestClient(t, srv, rec)
	_, err = c.Generate(context.Background(), &Request{Entity: "burg:12"})
	require.NoError(t, err)

	ctx := context.Background()
	body, err := st.Get(ctx, store.KeyUsageLog("2026-08-15"))
	require.NoError(t, err)

	var entry Entry
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(body))), &entry))
	assert.Equal(t, "loom-large", entry.Model)
	assert.Equal(t, "burg:12", entry.Entity)
	assert.InDelta(t, 3.0+7.5, entry.EstCostUSD, 1e-9)
}

func TestResponseSchema_InlinesStruct(t *testing.T) {
	type loreDoc struct {
		Title string `json:"title" jsonschema:"required"`
		Body  string `json:"body" jsonschema:"required"`
	}
	raw, err := ResponseSchema(&loreDoc{})
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(raw, &schema))
	assert.Equal(t, "object", schema["type"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "title")
	assert.Contains(t, props, "body")
}
