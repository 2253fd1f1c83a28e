// Package state defines the finite-state machines of the progress engine.
//
// Each machine is a fixed set of named states, a transition table and a
// default state. Per-state behaviour (labels, colors and the predicates that
// policy code consults) is data in a lookup table keyed by the state value.
package state

import "github.com/satriyop/enteraksi/internal/domain/shared"

// Machine is a transition table over a string-backed state type.
type Machine[S ~string] struct {
	entity  string
	initial S
	states  []S
	edges   map[S][]S
	reverts map[S][]S
}

// NewMachine builds a machine. Every state referenced by an edge must be in states.
func NewMachine[S ~string](entity string, initial S, states []S, edges, reverts map[S][]S) Machine[S] {
	return Machine[S]{
		entity:  entity,
		initial: initial,
		states:  states,
		edges:   edges,
		reverts: reverts,
	}
}

// Entity returns the entity type name used in errors.
func (m Machine[S]) Entity() string { return m.entity }

// Default returns the initial state for new entities.
func (m Machine[S]) Default() S { return m.initial }

// States returns all states in declaration order.
func (m Machine[S]) States() []S {
	out := make([]S, len(m.states))
	copy(out, m.states)
	return out
}

// IsValid reports whether s is a declared state.
func (m Machine[S]) IsValid(s S) bool {
	for _, st := range m.states {
		if st == s {
			return true
		}
	}
	return false
}

// AllowedFrom lists the forward transitions available from s.
func (m Machine[S]) AllowedFrom(s S) []S {
	out := make([]S, len(m.edges[s]))
	copy(out, m.edges[s])
	return out
}

// CanTransition reports whether from→to is a forward edge.
func (m Machine[S]) CanTransition(from, to S) bool {
	return contains(m.edges[from], to)
}

// Transition validates from→to and returns the new state.
func (m Machine[S]) Transition(from, to S, entityID string) (S, error) {
	if !m.CanTransition(from, to) {
		return from, m.invalid(from, to, entityID, "transition not allowed")
	}
	return to, nil
}

// CanRevert reports whether from→to is a declared revert edge.
func (m Machine[S]) CanRevert(from, to S) bool {
	return contains(m.reverts[from], to)
}

// Revert validates a compensating edge. Reverts are only taken by cascades
// that undo a completion.
func (m Machine[S]) Revert(from, to S, entityID string) (S, error) {
	if !m.CanRevert(from, to) {
		return from, m.invalid(from, to, entityID, "revert not allowed")
	}
	return to, nil
}

func (m Machine[S]) invalid(from, to S, entityID, reason string) *shared.InvalidTransitionError {
	if !m.IsValid(to) {
		reason = "unknown target state"
	}
	return &shared.InvalidTransitionError{
		From:       string(from),
		To:         string(to),
		EntityType: m.entity,
		EntityID:   entityID,
		Reason:     reason,
	}
}

func contains[S comparable](list []S, v S) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
