package hook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/worldloom/worldloom/internal/graph"
	"github.com/worldloom/worldloom/internal/store"
)

// ErrHookNotFound is returned when the named hook instance does not exist.
var ErrHookNotFound = errors.New("hook instance not found")

// ChainMismatchError is returned when a hook instance belongs to a different
// chain than the one being activated. This is a hard validation error, never
// silently corrected.
type ChainMismatchError struct {
	HookInstanceID string
	WantChain      string
	GotChain       string
}

func (e *ChainMismatchError) Error() string {
	return fmt.Sprintf("chain mismatch: hook %s belongs to %s, not %s",
		e.HookInstanceID, e.GotChain, e.WantChain)
}

// Manager owns the hook-instance index and the active-chains document.
// All mutations go through store batches so multi-document transitions
// (activation, acceptance) land atomically.
type Manager struct {
	st    *store.Store
	dirty *graph.Tracker
	log   *slog.Logger
}

// NewManager creates a Manager over the given store.
func NewManager(st *store.Store, dirty *graph.Tracker, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{st: st, dirty: dirty, log: log}
}

func (m *Manager) loadIndex(ctx context.Context) (*IndexDoc, error) {
	doc := &IndexDoc{Items: []Instance{}}
	if _, err := m.st.GetJSON(ctx, store.KeyHooksAvailable, doc); err != nil {
		return nil, fmt.Errorf("load hook index: %w", err)
	}
	return doc, nil
}

func (m *Manager) loadChains(ctx context.Context) (*ChainsDoc, error) {
	doc := &ChainsDoc{Chains: map[string]ChainRecord{}}
	if _, err := m.st.GetJSON(ctx, store.KeyQuestsActive, doc); err != nil {
		return nil, fmt.Errorf("load active chains: %w", err)
	}
	if doc.Chains == nil {
		doc.Chains = map[string]ChainRecord{}
	}
	return doc, nil
}

// Templates loads every authored hook template, keyed by template id.
// Templates failing boundary validation are skipped with a warning.
func (m *Manager) Templates(ctx context.Context) (map[string]Template, error) {
	keys, err := m.st.List(ctx, store.PrefixHookTemplates)
	if err != nil {
		return nil, fmt.Errorf("list hook templates: %w", err)
	}

	templates := make(map[string]Template, len(keys))
	for _, key := range keys {
		body, err := m.st.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if err := ValidateTemplate(body); err != nil {
			m.log.Warn("invalid hook template, skipped", "key", key, "error", err)
			continue
		}
		var tpl Template
		if _, err := m.st.GetJSON(ctx, key, &tpl); err != nil {
			return nil, err
		}
		if tpl.HookTemplateID == "" {
			continue
		}
		if tpl.ChainID == "" {
			tpl.ChainID = "chain_generic"
		}
		templates[tpl.HookTemplateID] = tpl
	}
	return templates, nil
}

// ActivationResult reports what a chain activation changed.
type ActivationResult struct {
	Activated Instance
	Withdrawn []Instance
	// AffectedBurgs is the activated instance's burg plus every withdrawn
	// sibling's burg; all are marked dirty.
	AffectedBurgs []int
}

// activationAudit is the persisted audit record for an activation.
type activationAudit struct {
	Type           string `json:"type"`
	ChainID        string `json:"chain_id"`
	HookInstanceID string `json:"hook_instance_id"`
	ActivatedAt    string `json:"activated_at"`
	Affects        struct {
		Burgs []int `json:"burgs"`
	} `json:"affects"`
}

// ActivateChain activates the given hook as the entry of its chain and
// withdraws every other available instance in the same chain. Siblings
// already active, withdrawn or consumed are untouched; only same-state
// (available) siblings transition. Steps 2-4 of the activation - the status
// flips, the chain record, the audit record and the dirty marks - commit as
// one transaction; a half-applied activation is an invariant violation.
func (m *Manager) ActivateChain(ctx context.Context, chainID, hookInstanceID string) (*ActivationResult, error) {
	index, err := m.loadIndex(ctx)
	if err != nil {
		return nil, err
	}

	targetIdx := -1
	for i := range index.Items {
		if index.Items[i].HookInstanceID == hookInstanceID {
			targetIdx = i
			break
		}
	}
	if targetIdx == -1 {
		return nil, fmt.Errorf("activate chain %s: %w: %s", chainID, ErrHookNotFound, hookInstanceID)
	}
	if index.Items[targetIdx].ChainID != chainID {
		return nil, &ChainMismatchError{
			HookInstanceID: hookInstanceID,
			WantChain:      chainID,
			GotChain:       index.Items[targetIdx].ChainID,
		}
	}

	now := nowISO()
	result := &ActivationResult{}
	affected := map[int]bool{}

	index.Items[targetIdx].Status = StatusActive
	result.Activated = index.Items[targetIdx]
	affected[index.Items[targetIdx].BurgID] = true

	for i := range index.Items {
		if i == targetIdx {
			continue
		}
		sibling := &index.Items[i]
		if sibling.ChainID == chainID && sibling.Status == StatusAvailable {
			sibling.Status = StatusWithdrawn
			result.Withdrawn = append(result.Withdrawn, *sibling)
			affected[sibling.BurgID] = true
		}
	}

	chains, err := m.loadChains(ctx)
	if err != nil {
		return nil, err
	}
	rec := chains.Chains[chainID]
	rec.Active = true
	rec.EntryHook = hookInstanceID
	rec.ActivatedAt = now
	if rec.Step == "" {
		rec.Step = "entry"
	}
	rec.UpdatedAt = now
	chains.Chains[chainID] = rec
	chains.UpdatedAt = now
	index.UpdatedAt = now

	result.AffectedBurgs = sortedKeys(affected)

	audit := activationAudit{
		Type:           "quest_chain_activate",
		ChainID:        chainID,
		HookInstanceID: hookInstanceID,
		ActivatedAt:    now,
	}
	audit.Affects.Burgs = result.AffectedBurgs

	var b store.Batch
	b.PutJSON(store.KeyHooksAvailable, index)
	b.PutJSON(store.KeyQuestsActive, chains)
	b.PutJSON(store.KeyActivationAudit(chainID, hookInstanceID), audit)
	if err := m.dirty.MarkInBatch(ctx, &b, result.AffectedBurgs, nil); err != nil {
		return nil, err
	}
	if err := m.st.Commit(ctx, &b); err != nil {
		return nil, fmt.Errorf("activate chain %s: %w", chainID, err)
	}

	m.log.Info("chain activated",
		"chain", chainID,
		"hook", hookInstanceID,
		"withdrawn", len(result.Withdrawn),
		"dirty_burgs", len(result.AffectedBurgs))
	return result, nil
}

func sortedKeys(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
