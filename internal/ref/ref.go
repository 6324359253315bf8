// Package ref defines entity references for the world content corpus.
//
// Every piece of generated content belongs to exactly one entity: the world
// itself, a state, or a burg. Burgs belong to exactly one state; states belong
// to the world. References serialize as "kind:id" node strings, which is the
// form the dependency graph and dirty tracker store.
package ref

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the entity class a reference points at.
type Kind string

const (
	KindWorld Kind = "world"
	KindState Kind = "state"
	KindBurg  Kind = "burg"
)

// Valid reports whether k is one of the three known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindWorld, KindState, KindBurg:
		return true
	}
	return false
}

// Ref identifies a single entity. The world uses ID 0; there is only one.
type Ref struct {
	Kind Kind
	ID   int
}

// World is the singleton world reference.
var World = Ref{Kind: KindWorld}

// State returns a reference to the state with the given id.
func State(id int) Ref { return Ref{Kind: KindState, ID: id} }

// Burg returns a reference to the burg with the given id.
func Burg(id int) Ref { return Ref{Kind: KindBurg, ID: id} }

// Node returns the "kind:id" node string used by the dependency graph.
// The world node is "world:world" to match the graph document format.
func (r Ref) Node() string {
	if r.Kind == KindWorld {
		return "world:world"
	}
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

func (r Ref) String() string { return r.Node() }

// Parse converts a "kind:id" node string back into a Ref.
func Parse(node string) (Ref, error) {
	kindStr, idStr, ok := strings.Cut(node, ":")
	if !ok {
		return Ref{}, fmt.Errorf("malformed node %q: want kind:id", node)
	}

	kind := Kind(kindStr)
	if !kind.Valid() {
		return Ref{}, fmt.Errorf("unknown entity kind %q in node %q", kindStr, node)
	}

	if kind == KindWorld {
		return World, nil
	}

	id, err := strconv.Atoi(idStr)
	if err != nil {
		return Ref{}, fmt.Errorf("malformed id in node %q: %w", node, err)
	}
	return Ref{Kind: kind, ID: id}, nil
}
