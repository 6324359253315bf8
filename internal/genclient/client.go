package genclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Message is one chat message in a generation request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the provider call contract: a model, a message list, and the
// schema the structured response must match.
type Request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	ResponseSchema json.RawMessage `json:"response_schema,omitempty"`

	// Entity labels the usage-log entry; not sent to the provider.
	Entity string `json:"-"`
}

// Usage is the provider-reported token accounting for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Response is a successful generation result.
type Response struct {
	Content json.RawMessage `json:"content"`
	Usage   Usage           `json:"usage"`
}

// Config configures the provider client.
type Config struct {
	BaseURL          string
	APIKey           string
	Model            string
	TokensPerMinute  int
	AvgTokensPerCall int
	Retry            RetryPolicy
}

// Client is the rate-limited generation client. One instance is shared by
// all regeneration workers; the gate serializes call starts across them.
type Client struct {
	cfg   Config
	http  *http.Client
	gate  *Gate
	usage *Recorder
	log   *slog.Logger
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Client. usage may be nil to skip usage logging.
func New(cfg Config, usage *Recorder, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &Client{
		cfg:   cfg,
		http:  &http.Client{},
		gate:  NewGate(cfg.TokensPerMinute, cfg.AvgTokensPerCall),
		usage: usage,
		log:   log,
		sleep: sleepCtx,
	}
}

// Gate exposes the shared pacing gate, mainly for tests and diagnostics.
func (c *Client) Gate() *Gate { return c.gate }

// Generate performs one paced, throttle-retried provider call. On 429/503 it
// waits per the provider's hints (or backs off with jitter) and tries again
// up to the attempt cap; the final throttle error then propagates unmodified.
// Any other error propagates immediately.
func (c *Client) Generate(ctx context.Context, req *Request) (*Response, error) {
	if req.Model == "" {
		req.Model = c.cfg.Model
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.Retry.MaxAttempts; attempt++ {
		if err := c.gate.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := c.call(ctx, req)
		if err == nil {
			c.recordUsage(ctx, req, resp)
			return resp, nil
		}

		var se *StatusError
		if !errors.As(err, &se) || !se.Throttled() {
			return nil, err
		}
		lastErr = err

		if attempt == c.cfg.Retry.MaxAttempts-1 {
			break
		}
		delay := c.cfg.Retry.Delay(attempt, se.Header)
		c.log.Warn("provider throttled, retrying",
			"status", se.StatusCode,
			"attempt", attempt+1,
			"delay", delay.String(),
			"entity", req.Entity)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) call(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generation call: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<22))
	if err != nil {
		return nil, fmt.Errorf("read generation response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, &StatusError{
			StatusCode: httpResp.StatusCode,
			Header:     httpResp.Header.Clone(),
			Body:       string(raw),
		}
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode generation response: %w", err)
	}
	return &resp, nil
}

func (c *Client) recordUsage(ctx context.Context, req *Request, resp *Response) {
	if c.usage == nil {
		return
	}
	if err := c.usage.Record(ctx, Entry{
		Model:            req.Model,
		Entity:           req.Entity,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}); err != nil {
		c.log.Warn("usage log write failed", "error", err)
	}
}
