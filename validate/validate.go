// Package validate implements the Validator: a pure function from a
// semantic.Model to either a validated spec.FSMSpec or a list of
// diagnostics. Diagnostics are collected across the whole pass rather
// than returned on the first problem, so one call reports as many
// issues as it can find.
package validate

import (
	"fmt"
	"sort"

	"github.com/fla/fsmtask/semantic"
	"github.com/fla/fsmtask/spec"
)

// TimeoutHandlerPayload flags a timeout handler declared with a payload
// type; timeout handlers take none.
const TimeoutHandlerPayload spec.DiagKind = "TimeoutHandlerPayload"

type builder struct {
	model *semantic.Model
	diags spec.Diagnostics

	stateOrder []string
	stateIndex map[string]spec.StateID

	eventOrder []string
	eventIndex map[string]spec.EventID

	timeoutEvent spec.EventID
}

// Validate discovers the state/event alphabets of m, binds handlers,
// builds the transition graph, and checks every structural invariant:
// duplicate bindings, duplicate timeouts, unreachable states, unknown
// transition targets, inconsistent event payloads, and a missing initial
// state. It never panics on a malformed Model; malformed input is always
// reported as a Diagnostic.
func Validate(m *semantic.Model) (*spec.FSMSpec, spec.Diagnostics) {
	b := &builder{
		model:      m,
		stateIndex: make(map[string]spec.StateID),
		eventIndex: make(map[string]spec.EventID),
	}

	if m.InitialState == "" {
		b.diags = append(b.diags, spec.Diagnostic{
			Kind:    spec.NoInitialState,
			Message: "no initial state declared",
		})
	}

	b.discoverStates()
	b.discoverEvents()

	handlers, timeouts := b.bindHandlers()
	b.checkPayloadConsistency()

	graph := b.buildGraph(handlers)

	initial, haveInitial := b.stateIndex[m.InitialState]
	if m.InitialState != "" && !haveInitial {
		b.diags = append(b.diags, spec.Diagnostic{
			Kind:    spec.UnknownInitial,
			Message: fmt.Sprintf("initial state %q is not a member of the discovered state set", m.InitialState),
			Names:   []string{m.InitialState},
		})
	}

	if haveInitial {
		b.checkReachability(graph, initial)
	}

	if len(b.diags) > 0 {
		return nil, b.diags
	}

	return &spec.FSMSpec{
		Name:         m.FSMName,
		States:       b.stateOrder,
		Events:       b.eventOrder,
		StateIndex:   b.stateIndex,
		EventIndex:   b.eventIndex,
		Initial:      initial,
		TimeoutEvent: b.timeoutEvent,
		ChannelSize:  channelSize(m),
		Handlers:     handlers,
		Timeouts:     timeouts,
		Graph:        graph,
	}, nil
}

// channelSize resolves the Model's configured inbox capacity, defaulting
// to semantic.DefaultChannelSize when the Model left it unset (Builder's
// Build already applies this default, but a hand-built Model bypassing
// Build could still leave it at zero).
func channelSize(m *semantic.Model) int {
	if m.ChannelSize > 0 {
		return m.ChannelSize
	}
	return semantic.DefaultChannelSize
}

func (b *builder) internState(name string) spec.StateID {
	if id, ok := b.stateIndex[name]; ok {
		return id
	}
	id := spec.StateID(len(b.stateOrder))
	b.stateIndex[name] = id
	b.stateOrder = append(b.stateOrder, name)
	return id
}

func (b *builder) internEvent(name string) spec.EventID {
	if id, ok := b.eventIndex[name]; ok {
		return id
	}
	id := spec.EventID(len(b.eventOrder))
	b.eventIndex[name] = id
	b.eventOrder = append(b.eventOrder, name)
	return id
}

// discoverStates unions: the initial state name; every state named in a
// handler binding; every transition target named in a handler's return
// shape; every source state of a TimeoutDecl.
func (b *builder) discoverStates() {
	if b.model.InitialState != "" {
		b.internState(b.model.InitialState)
	}
	for _, h := range b.model.Handlers {
		for _, bind := range h.Bindings {
			b.internState(bind.State)
		}
		for _, target := range h.TargetStates {
			b.internState(target)
		}
	}
	for _, t := range b.model.Timeouts {
		b.internState(t.SourceState)
	}
}

// discoverEvents unions every event named in a handler binding, then
// appends the synthetic Timeout event if any TimeoutDecl exists. "Timeout"
// is reserved for that synthetic event the moment any TimeoutDecl exists:
// a user binding already named "Timeout" would otherwise alias the two, so
// dispatching a real inbound "Timeout" send would be indistinguishable
// from the timer firing.
func (b *builder) discoverEvents() {
	for _, h := range b.model.Handlers {
		for _, bind := range h.Bindings {
			b.internEvent(bind.Event)
		}
	}
	if len(b.model.Timeouts) > 0 {
		if _, collides := b.eventIndex["Timeout"]; collides {
			b.diags = append(b.diags, spec.Diagnostic{
				Kind:    spec.ReservedEventName,
				Message: `event name "Timeout" is reserved for the synthetic timeout event once the model declares any Timeout rule, and cannot also be used as a regular handler binding`,
				Names:   []string{"Timeout"},
			})
		}
		b.timeoutEvent = b.internEvent("Timeout")
	} else {
		// Reserve an EventID even when unused so TimeoutEvent never
		// collides with a real, later-discovered event id.
		b.timeoutEvent = spec.EventID(len(b.eventOrder))
	}
}

// bindHandlers builds the (state, event) -> handler map and the per-state
// timeout rule map, reporting DuplicateBinding / DuplicateTimeout.
func (b *builder) bindHandlers() (map[spec.BindingKey]spec.HandlerBinding, map[spec.StateID]spec.TimeoutRule) {
	handlers := make(map[spec.BindingKey]spec.HandlerBinding)
	keysByMethod := make(map[string][]spec.BindingKey)
	boundStates := make(map[string][]spec.StateID)

	for _, h := range b.model.Handlers {
		for _, bind := range h.Bindings {
			s := b.stateIndex[bind.State]
			e := b.eventIndex[bind.Event]
			key := spec.BindingKey{State: s, Event: e}

			if existing, ok := handlers[key]; ok && existing.Method != h.Method {
				b.diags = append(b.diags, spec.Diagnostic{
					Kind: spec.DuplicateBinding,
					Message: fmt.Sprintf("state %q event %q is bound to both %q and %q",
						bind.State, bind.Event, existing.Method, h.Method),
					Names: []string{bind.State, bind.Event},
					Site:  &spec.DeclSite{Method: h.Method, DeclIndex: h.DeclIndex},
				})
				continue
			}

			handlers[key] = spec.HandlerBinding{
				Method:           h.Method,
				IsTimeoutHandler: h.IsTimeoutHandler,
			}
			keysByMethod[h.Method] = append(keysByMethod[h.Method], key)
			boundStates[h.Method] = append(boundStates[h.Method], s)
		}
	}

	// Every key sharing the same handler method gets the same complete
	// BoundStates list: assigning it incrementally, one append per key,
	// left earlier keys holding whatever (shorter) slice existed at the
	// time they were assigned instead of the method's full state set.
	for method, states := range boundStates {
		for _, key := range keysByMethod[method] {
			binding := handlers[key]
			binding.BoundStates = states
			handlers[key] = binding
		}
	}

	timeouts := make(map[spec.StateID]spec.TimeoutRule)
	seenTimeoutState := make(map[spec.StateID]string)

	for _, t := range b.model.Timeouts {
		s := b.stateIndex[t.SourceState]
		if prevMethod, dup := seenTimeoutState[s]; dup {
			b.diags = append(b.diags, spec.Diagnostic{
				Kind: spec.DuplicateTimeout,
				Message: fmt.Sprintf("state %q already has a timeout rule (handler %q), cannot also bind %q",
					t.SourceState, prevMethod, t.HandlerMethod),
				Names: []string{t.SourceState},
				Site:  &spec.DeclSite{Method: t.HandlerMethod, DeclIndex: t.DeclIndex},
			})
			continue
		}
		seenTimeoutState[s] = t.HandlerMethod

		timeouts[s] = spec.TimeoutRule{SourceState: s, Duration: t.Duration}
		key := spec.BindingKey{State: s, Event: b.timeoutEvent}
		handlers[key] = spec.HandlerBinding{
			Method:           t.HandlerMethod,
			BoundStates:      []spec.StateID{s},
			IsTimeoutHandler: true,
		}

		// Rule 13: timeout handlers take no event payload.
		for _, h := range b.model.Handlers {
			if h.Method == t.HandlerMethod && h.IsTimeoutHandler && h.PayloadType != "" {
				b.diags = append(b.diags, spec.Diagnostic{
					Kind:    TimeoutHandlerPayload,
					Message: fmt.Sprintf("timeout handler %q declares payload type %q, timeout handlers take none", h.Method, h.PayloadType),
					Names:   []string{h.Method},
					Site:    &spec.DeclSite{Method: h.Method, DeclIndex: h.DeclIndex},
				})
			}
		}
	}

	return handlers, timeouts
}

// checkPayloadConsistency enforces rule 6: all handlers bound to the same
// event must declare the same payload type, or none.
func (b *builder) checkPayloadConsistency() {
	declared := make(map[string]map[string]bool) // event name -> set of payload types seen
	siteFor := make(map[string]*spec.DeclSite)

	for _, h := range b.model.Handlers {
		if h.PayloadType == "" {
			continue
		}
		for _, bind := range h.Bindings {
			if declared[bind.Event] == nil {
				declared[bind.Event] = make(map[string]bool)
			}
			declared[bind.Event][h.PayloadType] = true
			if _, ok := siteFor[bind.Event]; !ok {
				siteFor[bind.Event] = &spec.DeclSite{Method: h.Method, DeclIndex: h.DeclIndex}
			}
		}
	}

	events := make([]string, 0, len(declared))
	for e := range declared {
		events = append(events, e)
	}
	sort.Strings(events)

	for _, event := range events {
		types := declared[event]
		if len(types) <= 1 {
			continue
		}
		names := make([]string, 0, len(types))
		for t := range types {
			names = append(names, t)
		}
		sort.Strings(names)
		b.diags = append(b.diags, spec.Diagnostic{
			Kind:    spec.InconsistentEventPayload,
			Message: fmt.Sprintf("event %q declares inconsistent payload types: %v", event, names),
			Names:   append([]string{event}, names...),
			Site:    siteFor[event],
		})
	}
}

// buildGraph builds the adjacency list from every declared transition
// target of every bound handler, and re-checks (rule 9) that every edge
// target is a member of the discovered state set. A handler reached only
// through a TimeoutDecl (no regular Bindings of its own) still
// contributes its SourceState -> TargetStates edges, since rule 5 binds
// (SourceState, Timeout) to it same as any other binding.
func (b *builder) buildGraph(handlers map[spec.BindingKey]spec.HandlerBinding) map[spec.StateID][]spec.StateID {
	graph := make(map[spec.StateID][]spec.StateID)
	seen := make(map[[2]spec.StateID]bool)

	addEdges := func(h semantic.HandlerDecl, from spec.StateID) {
		for _, targetName := range h.TargetStates {
			to, ok := b.stateIndex[targetName]
			if !ok {
				b.diags = append(b.diags, spec.Diagnostic{
					Kind:    spec.UnknownState,
					Message: fmt.Sprintf("handler %q declares transition target %q, which is not a known state", h.Method, targetName),
					Names:   []string{targetName},
					Site:    &spec.DeclSite{Method: h.Method, DeclIndex: h.DeclIndex},
				})
				continue
			}
			pair := [2]spec.StateID{from, to}
			if seen[pair] {
				continue
			}
			seen[pair] = true
			graph[from] = append(graph[from], to)
		}
	}

	byMethod := make(map[string]semantic.HandlerDecl, len(b.model.Handlers))
	for _, h := range b.model.Handlers {
		byMethod[h.Method] = h
		for _, bindState := range h.Bindings {
			from, ok := b.stateIndex[bindState.State]
			if !ok {
				continue
			}
			addEdges(h, from)
		}
	}

	for _, t := range b.model.Timeouts {
		from, ok := b.stateIndex[t.SourceState]
		if !ok {
			continue
		}
		if h, ok := byMethod[t.HandlerMethod]; ok {
			addEdges(h, from)
		}
	}

	return graph
}

// checkReachability walks graph from initial and reports every
// discovered state that was never reached (rule 8). Terminal states with
// no outgoing edges are reachable targets and therefore fine; any state
// with no path to it from the initial state is UnreachableState, even if
// some other unreachable state transitions into it.
func (b *builder) checkReachability(graph map[spec.StateID][]spec.StateID, initial spec.StateID) {
	visited := make(map[spec.StateID]bool)
	queue := []spec.StateID{initial}
	visited[initial] = true

	for len(queue) > 0 {
		s := queue[0]
		queue = queue[1:]
		for _, next := range graph[s] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	for i, name := range b.stateOrder {
		id := spec.StateID(i)
		if !visited[id] {
			b.diags = append(b.diags, spec.Diagnostic{
				Kind:    spec.UnreachableState,
				Message: fmt.Sprintf("state %q is never reached from the initial state %q", name, b.model.InitialState),
				Names:   []string{name},
			})
		}
	}
}
