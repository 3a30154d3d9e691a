// Package spec holds the validated output of the Validator: FSMSpec, the
// diagnostic types it can report, and the small opaque identifier types
// (StateID, EventID) the runtime dispatches on.
package spec

import (
	"fmt"
	"time"
)

// StateID is an opaque, dense identifier for a state, assigned in
// discovery order.
type StateID int

// EventID is an opaque, dense identifier for an event, assigned in
// discovery order. The synthetic Timeout event always receives the
// lowest EventID unused by any user-declared event in this FSM, and is
// exposed as FSMSpec.TimeoutEvent.
type EventID int

// BindingKey is the (state, event) pair a HandlerBinding answers.
type BindingKey struct {
	State StateID
	Event EventID
}

// HandlerBinding is the validator's resolved answer to "who handles
// (state, event)".
type HandlerBinding struct {
	Method           string
	BoundStates      []StateID
	IsTimeoutHandler bool
}

// TimeoutRule is the resolved per-state timeout: how long to wait in
// SourceState before synthesizing the Timeout event.
type TimeoutRule struct {
	SourceState StateID
	Duration    time.Duration
}

// FSMSpec is the immutable, validated description of one FSM, ready to be
// handed to runtime.New.
type FSMSpec struct {
	Name string

	// States and Events are in stable discovery order: the order their
	// names were first encountered while scanning the Model. Diagnostics
	// and generated dispatch tables both depend on this order being
	// stable across runs for the same Model.
	States []string
	Events []string

	StateIndex map[string]StateID
	EventIndex map[string]EventID

	Initial      StateID
	TimeoutEvent EventID

	// ChannelSize is the bounded inbox capacity runtime.Machine.Spawn
	// allocates for each instance of this FSM.
	ChannelSize int

	// Handlers maps every bound (state, event) pair, including
	// (state, TimeoutEvent) pairs contributed by a TimeoutRule, to its
	// resolved HandlerBinding.
	Handlers map[BindingKey]HandlerBinding

	// Timeouts maps a state with a timeout rule to that rule. At most
	// one entry per state.
	Timeouts map[StateID]TimeoutRule

	// Graph is the adjacency list built from every declared transition
	// target of every bound handler: Graph[s] lists every state a
	// handler bound at s may transition to.
	Graph map[StateID][]StateID
}

// StateName returns the human-readable name for id, or "?" if out of
// range.
func (s *FSMSpec) StateName(id StateID) string {
	if int(id) < 0 || int(id) >= len(s.States) {
		return "?"
	}
	return s.States[id]
}

// EventName returns the human-readable name for id, or "?" if out of
// range, with the synthetic Timeout event named explicitly.
func (s *FSMSpec) EventName(id EventID) string {
	if id == s.TimeoutEvent {
		return "Timeout"
	}
	if int(id) < 0 || int(id) >= len(s.Events) {
		return "?"
	}
	return s.Events[id]
}

// DiagKind classifies a Diagnostic by which validation rule it violates.
type DiagKind string

const (
	DuplicateBinding         DiagKind = "DuplicateBinding"
	DuplicateTimeout         DiagKind = "DuplicateTimeout"
	UnreachableState         DiagKind = "UnreachableState"
	UnknownState             DiagKind = "UnknownState"
	UnknownInitial           DiagKind = "UnknownInitial"
	InconsistentEventPayload DiagKind = "InconsistentEventPayload"
	NoInitialState           DiagKind = "NoInitialState"
	ReservedEventName        DiagKind = "ReservedEventName"
)

// DeclSite names where a diagnostic-triggering declaration lives in the
// source Model, when one is known.
type DeclSite struct {
	Method    string
	DeclIndex int
}

// Diagnostic is a single validation problem: a stable Kind, a
// human-readable Message, the offending Names, and the declaration site
// when one could be determined.
type Diagnostic struct {
	Kind    DiagKind
	Message string
	Names   []string
	Site    *DeclSite
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s", d.Kind, d.Message)
}

// Diagnostics is an ordered collection of validation problems. A
// non-empty Diagnostics means validation failed and no FSMSpec was
// produced.
type Diagnostics []Diagnostic

func (ds Diagnostics) Error() string {
	if len(ds) == 0 {
		return "no diagnostics"
	}
	if len(ds) == 1 {
		return ds[0].Error()
	}
	return fmt.Sprintf("%d validation problems, first: %s", len(ds), ds[0].Error())
}
