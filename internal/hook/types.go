// Package hook manages quest-lead (hook) instances: their forward-only
// lifecycle, acceptance of placement suggestions, spawning from quest-graph
// ops, and the chain activation transaction.
package hook

import (
	"fmt"
	"hash/fnv"
)

// Status is the closed hook-instance lifecycle state.
//
// Transitions are forward-only: available → active (the chain entry chosen),
// available → withdrawn (a sibling was chosen), active → consumed (quest
// completed, driven externally). There is no instance deletion.
type Status string

const (
	StatusAvailable Status = "available"
	StatusWithdrawn Status = "withdrawn"
	StatusActive    Status = "active"
	StatusConsumed  Status = "consumed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusWithdrawn, StatusActive, StatusConsumed:
		return true
	}
	return false
}

// Instance is one materialized hook tied to a chain and a burg.
type Instance struct {
	HookInstanceID     string `json:"hook_instance_id"`
	ChainID            string `json:"chain_id"`
	HookTemplateID     string `json:"hook_template_id"`
	BurgID             int    `json:"burg_id"`
	StateID            int    `json:"state_id"`
	Status             Status `json:"status"`
	CreatedAt          string `json:"created_at"`
	Rationale          string `json:"rationale"`
	SourceSuggestionID string `json:"source_suggestion_id"`
}

// Template is an authored hook template document.
type Template struct {
	HookTemplateID string `json:"hook_template_id"`
	ChainID        string `json:"chain_id"`
	Title          string `json:"title,omitempty"`
	Summary        string `json:"summary,omitempty"`
}

// IndexDoc is the aggregate index of all hook instances
// (state/hooks_available).
type IndexDoc struct {
	Items     []Instance `json:"items"`
	UpdatedAt string     `json:"updated_at"`
}

// ChainRecord tracks one chain in the active-quests document. Activation
// fills EntryHook/ActivatedAt; quest-graph ops accumulate in Ops.
type ChainRecord struct {
	Active      bool      `json:"active"`
	EntryHook   string    `json:"entry_hook,omitempty"`
	ActivatedAt string    `json:"activated_at,omitempty"`
	Step        string    `json:"step,omitempty"`
	Ops         []ChainOp `json:"ops,omitempty"`
	UpdatedAt   string    `json:"updated_at,omitempty"`
}

// ChainOp is a logged quest-graph operation against a chain.
type ChainOp struct {
	Op             string `json:"op"`
	HookTemplateID string `json:"hook_template_id,omitempty"`
	BurgID         *int   `json:"burg_id,omitempty"`
	Rationale      string `json:"rationale,omitempty"`
}

// ChainsDoc is the active-quests document (state/quests_active).
type ChainsDoc struct {
	Chains    map[string]ChainRecord `json:"chains"`
	UpdatedAt string                 `json:"updated_at"`
}

// Suggestion is one hook placement proposed by the link suggester.
type Suggestion struct {
	SuggID         string   `json:"sugg_id"`
	HookTemplateID string   `json:"hook_template_id"`
	BurgID         int      `json:"burg_id"`
	StateID        int      `json:"state_id,omitempty"`
	Score          *float64 `json:"score,omitempty"`
	Rationale      string   `json:"rationale,omitempty"`
}

// SuggestionsDoc is the link-suggestions index document.
type SuggestionsDoc struct {
	HookPlacements []Suggestion `json:"hook_placements"`
}

// InstanceID derives the deterministic id of a hook instance from its chain,
// template, burg and a discriminator (the suggestion id for accepted
// placements, the rationale for event-spawned hooks). Re-applying the same
// suggestion or spawn therefore never double-creates an instance.
func InstanceID(chainID, templateID string, burgID int, discriminator string) string {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s:%s:%d:%s", chainID, templateID, burgID, discriminator)
	return fmt.Sprintf("hookinst_%x", h.Sum32())
}
