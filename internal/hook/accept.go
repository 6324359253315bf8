package hook

import (
	"context"
	"errors"
	"fmt"

	"github.com/worldloom/worldloom/internal/store"
)

// ErrNoSuggestions is returned when the link-suggestions index has no hook
// placements to accept.
var ErrNoSuggestions = errors.New("no hook placements found")

// ErrNoTemplates is returned when no authored hook templates exist.
var ErrNoTemplates = errors.New("no hook templates found")

// Selection picks which suggestions to accept: an explicit id list, or all
// placements at or above MinScore, capped at Limit.
type Selection struct {
	SuggestionIDs []string
	All           bool
	MinScore      float64
	Limit         int
}

// AcceptResult reports what acceptance created.
type AcceptResult struct {
	Created         []Instance
	SkippedExisting int
	MissingIDs      []string
}

// AcceptSuggestions materializes hook instances for the selected placements.
//
// Instance ids are deterministic, so accepting the same suggestion twice is a
// no-op rather than a duplicate. Each new instance is written both as its own
// per-burg document and into the aggregate index, in one transaction.
func (m *Manager) AcceptSuggestions(ctx context.Context, sel Selection) (*AcceptResult, error) {
	var suggestions SuggestionsDoc
	found, err := m.st.GetJSON(ctx, store.KeyLinkSuggestions, &suggestions)
	if err != nil {
		return nil, err
	}
	if !found || len(suggestions.HookPlacements) == 0 {
		return nil, ErrNoSuggestions
	}

	templates, err := m.Templates(ctx)
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return nil, ErrNoTemplates
	}

	result := &AcceptResult{}
	selected := m.selectPlacements(&suggestions, sel, result)
	if len(selected) == 0 {
		return nil, fmt.Errorf("no suggestions selected")
	}

	index, err := m.loadIndex(ctx)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]bool, len(index.Items))
	for _, item := range index.Items {
		existing[item.HookInstanceID] = true
	}

	now := nowISO()
	var b store.Batch
	for _, s := range selected {
		tpl, ok := templates[s.HookTemplateID]
		if !ok {
			m.log.Warn("template not found for suggestion",
				"suggestion", s.SuggID, "template", s.HookTemplateID)
			continue
		}

		id := InstanceID(tpl.ChainID, s.HookTemplateID, s.BurgID, s.SuggID)
		if existing[id] {
			result.SkippedExisting++
			continue
		}

		inst := Instance{
			HookInstanceID:     id,
			ChainID:            tpl.ChainID,
			HookTemplateID:     s.HookTemplateID,
			BurgID:             s.BurgID,
			StateID:            s.StateID,
			Status:             StatusAvailable,
			CreatedAt:          now,
			Rationale:          s.Rationale,
			SourceSuggestionID: s.SuggID,
		}
		index.Items = append(index.Items, inst)
		existing[id] = true
		result.Created = append(result.Created, inst)
		b.PutJSON(store.KeyMaterializedHook(inst.BurgID, id), inst)
	}

	if len(result.Created) == 0 {
		m.log.Info("acceptance created nothing new",
			"skipped_existing", result.SkippedExisting)
		return result, nil
	}

	index.UpdatedAt = now
	b.PutJSON(store.KeyHooksAvailable, index)
	if err := m.st.Commit(ctx, &b); err != nil {
		return nil, fmt.Errorf("accept suggestions: %w", err)
	}

	m.log.Info("hook suggestions accepted",
		"created", len(result.Created),
		"skipped_existing", result.SkippedExisting)
	return result, nil
}

func (m *Manager) selectPlacements(doc *SuggestionsDoc, sel Selection, result *AcceptResult) []Suggestion {
	byID := make(map[string]Suggestion, len(doc.HookPlacements))
	for _, s := range doc.HookPlacements {
		byID[s.SuggID] = s
	}

	var selected []Suggestion
	switch {
	case len(sel.SuggestionIDs) > 0:
		for _, id := range sel.SuggestionIDs {
			s, ok := byID[id]
			if !ok {
				m.log.Warn("suggestion not found", "suggestion", id)
				result.MissingIDs = append(result.MissingIDs, id)
				continue
			}
			selected = append(selected, s)
		}
	case sel.All:
		limit := sel.Limit
		if limit <= 0 {
			limit = len(doc.HookPlacements)
		}
		for _, s := range doc.HookPlacements {
			if s.Score != nil && *s.Score < sel.MinScore {
				continue
			}
			selected = append(selected, s)
			if len(selected) >= limit {
				break
			}
		}
	}
	return selected
}
