package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// GetJSON unmarshals the document under key into v.
// Returns (false, nil) when the document does not exist, leaving v untouched,
// so callers can lazily initialize state documents on first use.
func (s *Store) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	body, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// PutJSON writes the JSON encoding of v under key.
func (s *Store) PutJSON(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return s.Put(ctx, key, body)
}
