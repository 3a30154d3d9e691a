package semantic

import "time"

// Builder provides a fluent, chainable way to assemble a Model, the
// Go-native equivalent of the annotation-driven declaration block this
// library's spec describes in the abstract. Re-architecting for a source
// language with build-time annotations swaps this file for a code
// generator; the Model it produces, and everything downstream of it, is
// unchanged.
type Builder struct {
	model Model
}

// NewModel starts building a Model for the named FSM.
func NewModel(fsmName string) *Builder {
	return &Builder{model: Model{FSMName: fsmName}}
}

// Context records the descriptive name of the context type this FSM
// carries. Purely informational at the semantic-model layer; the actual
// Go type is supplied as a type parameter when the runtime Machine is
// constructed.
func (b *Builder) Context(typeName string) *Builder {
	b.model.ContextType = typeName
	return b
}

// ErrorType records the descriptive name of the error type handlers may
// return.
func (b *Builder) ErrorType(typeName string) *Builder {
	b.model.ErrorType = typeName
	return b
}

// Initial sets the FSM's initial state by name.
func (b *Builder) Initial(state string) *Builder {
	b.model.InitialState = state
	return b
}

// ChannelSize sets the bounded inbox capacity for spawned instances.
func (b *Builder) ChannelSize(n int) *Builder {
	b.model.ChannelSize = n
	return b
}

// Handler starts declaring a handler method. Chain On calls to bind it to
// one or more (state, event) pairs, then Returns to declare its possible
// transition targets, then Add to register it on the Builder.
func (b *Builder) Handler(method string) *HandlerBuilder {
	return &HandlerBuilder{
		parent: b,
		decl: HandlerDecl{
			Method:    method,
			DeclIndex: len(b.model.Handlers) + len(b.model.Timeouts),
		},
	}
}

// Timeout declares a per-state timeout rule: after spending duration d in
// sourceState without another transition, the Timeout event is
// synthesized and dispatched to handlerMethod.
func (b *Builder) Timeout(sourceState string, d time.Duration, handlerMethod string) *Builder {
	b.model.Timeouts = append(b.model.Timeouts, TimeoutDecl{
		SourceState:   sourceState,
		Duration:      d,
		HandlerMethod: handlerMethod,
		DeclIndex:     len(b.model.Handlers) + len(b.model.Timeouts),
	})
	return b
}

// Build returns the assembled Model, defaulting ChannelSize when unset.
func (b *Builder) Build() *Model {
	if b.model.ChannelSize == 0 {
		b.model.ChannelSize = DefaultChannelSize
	}
	m := b.model
	m.Handlers = append([]HandlerDecl(nil), b.model.Handlers...)
	m.Timeouts = append([]TimeoutDecl(nil), b.model.Timeouts...)
	return &m
}

// HandlerBuilder assembles a single HandlerDecl and its bindings before
// it is registered on the parent Builder.
type HandlerBuilder struct {
	parent *Builder
	decl   HandlerDecl
}

// On binds this handler to an additional (state, event) pair.
func (hb *HandlerBuilder) On(state, event string) *HandlerBuilder {
	hb.decl.Bindings = append(hb.decl.Bindings, Binding{State: state, Event: event})
	return hb
}

// Payload declares the payload type carried by the event(s) this handler
// is bound to.
func (hb *HandlerBuilder) Payload(typeName string) *HandlerBuilder {
	hb.decl.PayloadType = typeName
	return hb
}

// Returns declares the set of states this handler may transition to.
func (hb *HandlerBuilder) Returns(states ...string) *HandlerBuilder {
	hb.decl.TargetStates = append(hb.decl.TargetStates, states...)
	return hb
}

// Async marks the handler as a suspending/async callable.
func (hb *HandlerBuilder) Async() *HandlerBuilder {
	hb.decl.IsAsync = true
	return hb
}

// TimeoutHandler marks this method as the handler a Timeout declaration
// names, so the validator's payload-consistency check (rule 13) applies
// to it. The handler's actual (state, Timeout) binding still comes from
// the Builder's Timeout call, not from On.
func (hb *HandlerBuilder) TimeoutHandler() *HandlerBuilder {
	hb.decl.IsTimeoutHandler = true
	return hb
}

// Add registers the handler on the parent Builder and returns it for
// further chaining.
func (hb *HandlerBuilder) Add() *Builder {
	hb.parent.model.Handlers = append(hb.parent.model.Handlers, hb.decl)
	return hb.parent
}
