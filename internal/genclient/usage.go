package genclient

import (
	"context"
	"encoding/json"
	"time"

	"github.com/worldloom/worldloom/internal/store"
)

// Price is the per-million-token cost of a model.
type Price struct {
	PromptUSD     float64 `yaml:"prompt_usd" json:"prompt_usd"`
	CompletionUSD float64 `yaml:"completion_usd" json:"completion_usd"`
}

// Entry is one ndjson usage-log line.
type Entry struct {
	Timestamp        string  `json:"ts"`
	Model            string  `json:"model"`
	Entity           string  `json:"entity,omitempty"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	EstCostUSD       float64 `json:"est_cost_usd"`
}

// Recorder appends usage entries to a per-day ndjson log.
type Recorder struct {
	st     *store.Store
	prices map[string]Price
	now    func() time.Time
}

// NewRecorder creates a Recorder with the configured per-model prices.
func NewRecorder(st *store.Store, prices map[string]Price) *Recorder {
	return &Recorder{st: st, prices: prices, now: time.Now}
}

// Record stamps, prices, and appends one entry.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	now := r.now().UTC()
	e.Timestamp = now.Format(time.RFC3339)
	if p, ok := r.prices[e.Model]; ok {
		e.EstCostUSD = float64(e.PromptTokens)/1e6*p.PromptUSD +
			float64(e.CompletionTokens)/1e6*p.CompletionUSD
	}

	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	return r.st.Append(ctx, store.KeyUsageLog(now.Format("2006-01-02")), line)
}
