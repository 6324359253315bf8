// Package planner turns a GM/player action into a proposed effect bundle.
// The provider drafts the bundle against the structured-output schema; the
// draft is boundary-validated before it is persisted for apply.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/worldloom/worldloom/internal/effect"
	"github.com/worldloom/worldloom/internal/genclient"
	"github.com/worldloom/worldloom/internal/ref"
	"github.com/worldloom/worldloom/internal/store"
)

// Generator is the slice of the generation client the planner needs.
type Generator interface {
	Generate(ctx context.Context, req *genclient.Request) (*genclient.Response, error)
}

// Action is the submitted player/GM event document.
type Action struct {
	ActionID    string `json:"action_id"`
	Description string `json:"description"`
	Targets     struct {
		Burgs  []int `json:"burgs,omitempty"`
		States []int `json:"states,omitempty"`
	} `json:"targets"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Planner drafts effect bundles from player actions.
type Planner struct {
	st  *store.Store
	gen Generator
	log *slog.Logger
	now func() time.Time
}

// New creates a Planner.
func New(st *store.Store, gen Generator, log *slog.Logger) *Planner {
	if log == nil {
		log = slog.Default()
	}
	return &Planner{st: st, gen: gen, log: log, now: time.Now}
}

// Plan loads the action, asks the provider for an effect bundle constrained
// by the bundle schema, validates the draft at the boundary, and persists it
// as the proposed bundle for this action. Nothing touches the ledger here;
// apply is a separate step.
func (p *Planner) Plan(ctx context.Context, actionID string) (*effect.Bundle, error) {
	var action Action
	found, err := p.st.GetJSON(ctx, store.KeyPlayerAction(actionID), &action)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("player action %s not found", actionID)
	}

	prompt, err := p.buildPrompt(ctx, &action)
	if err != nil {
		return nil, err
	}
	schema, err := genclient.ResponseSchema(&effect.Bundle{})
	if err != nil {
		return nil, err
	}

	resp, err := p.gen.Generate(ctx, &genclient.Request{
		Entity:         "action:" + actionID,
		Messages:       prompt,
		ResponseSchema: schema,
	})
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", actionID, err)
	}

	if err := effect.ValidateBundle(resp.Content); err != nil {
		return nil, fmt.Errorf("plan %s: %w", actionID, err)
	}

	var bundle effect.Bundle
	if err := json.Unmarshal(resp.Content, &bundle); err != nil {
		return nil, fmt.Errorf("plan %s: decode bundle: %w", actionID, err)
	}
	bundle.ActionID = actionID
	bundle.GeneratedAt = p.now().UTC().Format(time.RFC3339)

	if err := p.st.PutJSON(ctx, store.KeyProposedEffects(actionID), &bundle); err != nil {
		return nil, err
	}

	p.log.Info("effects planned",
		"action", actionID,
		"effects", len(bundle.Effects))
	return &bundle, nil
}

// buildPrompt assembles the planning context: the action itself plus the
// canonical outlines of every targeted entity.
func (p *Planner) buildPrompt(ctx context.Context, action *Action) ([]genclient.Message, error) {
	var sb strings.Builder
	addOutline := func(r ref.Ref) {
		if body, err := p.st.Get(ctx, store.KeyCanonOutline(r)); err == nil {
			fmt.Fprintf(&sb, "\nOutline of %s:\n%s\n", r.Node(), body)
		}
	}
	for _, id := range action.Targets.States {
		addOutline(ref.State(id))
	}
	for _, id := range action.Targets.Burgs {
		addOutline(ref.Burg(id))
	}

	user := fmt.Sprintf("Event: %s\n%s\nPropose the effect bundle for this event.",
		action.Description, sb.String())
	return []genclient.Message{
		{Role: "system", Content: "You translate campaign events into bounded, typed world-state effects. Stay within the documented delta bounds and only touch the targeted entities."},
		{Role: "user", Content: user},
	}, nil
}
