package hook

import (
	"context"
	"fmt"

	"github.com/worldloom/worldloom/internal/effect"
	"github.com/worldloom/worldloom/internal/ref"
	"github.com/worldloom/worldloom/internal/store"
)

// OpSession applies quest-graph ops from an effect bundle against the hook
// index and the active-chains document, deferring the writes until Flush so
// they land in the same transaction as the world-state update.
type OpSession struct {
	m       *Manager
	index   *IndexDoc
	chains  *ChainsDoc
	spawned []Instance
	touched bool
}

// NewOpSession starts a session for one apply transaction.
func (m *Manager) NewOpSession() *OpSession {
	return &OpSession{m: m}
}

func (s *OpSession) load(ctx context.Context) error {
	if s.index != nil {
		return nil
	}
	index, err := s.m.loadIndex(ctx)
	if err != nil {
		return err
	}
	chains, err := s.m.loadChains(ctx)
	if err != nil {
		return err
	}
	s.index, s.chains = index, chains
	return nil
}

// ApplyOps executes the given quest-graph ops and returns the burg ids they
// touched. spawn_hook creates a new available instance; every other op is
// appended to its chain's op log. Nothing is persisted until Flush.
func (s *OpSession) ApplyOps(ctx context.Context, ops []effect.QuestOp) ([]int, error) {
	if len(ops) == 0 {
		return nil, nil
	}
	if err := s.load(ctx); err != nil {
		return nil, err
	}

	templates, err := s.m.Templates(ctx)
	if err != nil {
		return nil, err
	}

	affected := map[int]bool{}
	now := nowISO()
	for _, op := range ops {
		if op.Op == "spawn_hook" {
			burg, err := s.spawn(ctx, op, templates, now)
			if err != nil {
				return nil, err
			}
			if burg != nil {
				affected[*burg] = true
			}
			continue
		}

		chainID := op.ChainID
		if chainID == "" {
			chainID = "chain_generic"
		}
		rec := s.chains.Chains[chainID]
		rec.Ops = append(rec.Ops, ChainOp{
			Op:             op.Op,
			HookTemplateID: op.HookTemplateID,
			BurgID:         op.BurgID,
			Rationale:      op.Rationale,
		})
		rec.UpdatedAt = now
		s.chains.Chains[chainID] = rec
		s.chains.UpdatedAt = now
		s.touched = true
		if op.BurgID != nil {
			affected[*op.BurgID] = true
		}
	}

	return sortedKeys(affected), nil
}

func (s *OpSession) spawn(ctx context.Context, op effect.QuestOp, templates map[string]Template, now string) (*int, error) {
	if op.HookTemplateID == "" || op.BurgID == nil {
		s.m.log.Warn("spawn_hook op missing template or burg, skipped",
			"template", op.HookTemplateID, "rationale", op.Rationale)
		return nil, nil
	}

	chainID := op.ChainID
	if chainID == "" {
		if tpl, ok := templates[op.HookTemplateID]; ok {
			chainID = tpl.ChainID
		} else {
			chainID = "chain_generic"
		}
	}

	id := InstanceID(chainID, op.HookTemplateID, *op.BurgID, op.Rationale)
	for _, item := range s.index.Items {
		if item.HookInstanceID == id {
			return op.BurgID, nil
		}
	}

	stateID, err := s.burgState(ctx, *op.BurgID)
	if err != nil {
		return nil, err
	}

	inst := Instance{
		HookInstanceID: id,
		ChainID:        chainID,
		HookTemplateID: op.HookTemplateID,
		BurgID:         *op.BurgID,
		StateID:        stateID,
		Status:         StatusAvailable,
		CreatedAt:      now,
		Rationale:      op.Rationale,
	}
	s.index.Items = append(s.index.Items, inst)
	s.index.UpdatedAt = now
	s.spawned = append(s.spawned, inst)
	s.touched = true
	return op.BurgID, nil
}

func (s *OpSession) burgState(ctx context.Context, burgID int) (int, error) {
	var outline struct {
		StateID int `json:"state_id"`
	}
	if _, err := s.m.st.GetJSON(ctx, store.KeyCanonOutline(ref.Burg(burgID)), &outline); err != nil {
		return 0, fmt.Errorf("look up state of burg %d: %w", burgID, err)
	}
	return outline.StateID, nil
}

// Flush stages the session's changes into the caller's batch. A session with
// no effective ops stages nothing.
func (s *OpSession) Flush(b *store.Batch) error {
	if !s.touched {
		return nil
	}
	b.PutJSON(store.KeyHooksAvailable, s.index)
	b.PutJSON(store.KeyQuestsActive, s.chains)
	for _, inst := range s.spawned {
		b.PutJSON(store.KeyMaterializedHook(inst.BurgID, inst.HookInstanceID), inst)
	}
	return nil
}
