package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fla/fsmtask/spec"
)

// inboxEvent is one accepted (event, payload) pair waiting to be
// dispatched.
type inboxEvent struct {
	event   string
	payload any
}

// shared is the state a Handle and all its Clones reference in common:
// the bounded inbox, the three one-shot signals (forced shutdown, graceful
// shutdown, every handle dropped), the refcount that drives the last one,
// and the lock-free "last observed state" cell CurrentState reads from.
type shared struct {
	events     chan inboxEvent
	forced     chan struct{}
	graceful   chan struct{}
	allDropped chan struct{}

	forcedOnce     sync.Once
	gracefulOnce   sync.Once
	allDroppedOnce sync.Once

	refcount int32 // atomic

	current atomic.Value // holds spec.StateID
}

// Handle is a producer-side reference to a running Instance: it can send
// events and controls, and read a best-effort snapshot of the current
// state. Cloning a Handle yields an additional producer; Close represents
// dropping one, refcounted since Go has no destructors to hook. A Handle
// must not be used (Send/TrySend/Clone/shutdown) after Close has been
// called on it.
type Handle[C any] struct {
	s    *shared
	spec *spec.FSMSpec
}

// closed reports whether either shutdown signal, or the every-handle-dropped
// signal, has fired. Checked in its own select, never alongside the events
// send case: put in the same select as the send, a closed signal only
// competes for selection against an always-ready buffered channel instead
// of taking priority over it.
func (h *Handle[C]) closed() bool {
	select {
	case <-h.s.forced:
		return true
	case <-h.s.graceful:
		return true
	case <-h.s.allDropped:
		return true
	default:
		return false
	}
}

// Send awaits inbox capacity and accepts event, or returns an error if
// ctx is cancelled first or the inbox has been closed (forced shutdown,
// graceful shutdown, or every handle dropped).
func (h *Handle[C]) Send(ctx context.Context, event string, payload any) error {
	if h.closed() {
		return &SendError{Kind: ClosedKind}
	}
	select {
	case h.s.events <- inboxEvent{event: event, payload: payload}:
		return nil
	case <-h.s.forced:
		return &SendError{Kind: ClosedKind}
	case <-h.s.graceful:
		return &SendError{Kind: ClosedKind}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend accepts event immediately or returns Full/Closed without
// waiting.
func (h *Handle[C]) TrySend(event string, payload any) error {
	if h.closed() {
		return &SendError{Kind: ClosedKind}
	}
	select {
	case h.s.events <- inboxEvent{event: event, payload: payload}:
		return nil
	default:
		return &SendError{Kind: Full}
	}
}

// CurrentState returns a best-effort snapshot of the last state the
// dispatch loop observed; it may lag reality by one transition if a
// handler is in flight.
func (h *Handle[C]) CurrentState() string {
	v := h.s.current.Load()
	if v == nil {
		return ""
	}
	return h.spec.StateName(v.(spec.StateID))
}

// ShutdownGraceful closes the inbox to new acceptance without forcing
// drainage priority: events already enqueued still run. Idempotent.
func (h *Handle[C]) ShutdownGraceful() {
	h.s.gracefulOnce.Do(func() { close(h.s.graceful) })
}

// ShutdownForced terminates the loop as soon as the current handler
// yields, without draining the inbox. Idempotent.
func (h *Handle[C]) ShutdownForced() {
	h.s.forcedOnce.Do(func() { close(h.s.forced) })
}

// Clone returns an additional producer-side Handle referencing the same
// Instance. The dispatch loop keeps running until every clone (including
// the original) has been Closed.
func (h *Handle[C]) Clone() *Handle[C] {
	atomic.AddInt32(&h.s.refcount, 1)
	return &Handle[C]{s: h.s, spec: h.spec}
}

// Close drops this Handle reference. When the last reference is closed,
// the dispatch loop is signalled to drain and terminate, the same as a
// graceful shutdown request. This never closes the events channel itself:
// a sibling clone's Send could still be in flight against it, and closing
// a channel out from under a concurrent send panics the sender rather
// than returning a ClosedKind error.
func (h *Handle[C]) Close() {
	if atomic.AddInt32(&h.s.refcount, -1) == 0 {
		h.s.allDroppedOnce.Do(func() { close(h.s.allDropped) })
	}
}

// JoinFuture is the sole owner of the eventual context: Wait blocks until
// the instance terminates, then returns the final context on clean
// termination or a *TaskError otherwise. Context is never returned
// alongside a TaskError: on every error path the context is considered
// lost.
type JoinFuture[C any] struct {
	done chan struct{}
	ok   bool
	ctx  C
	err  *TaskError
}

// Wait blocks until the instance terminates or ctx is cancelled.
func (j *JoinFuture[C]) Wait(ctx context.Context) (C, error) {
	select {
	case <-j.done:
		if j.ok {
			return j.ctx, nil
		}
		var zero C
		return zero, j.err
	case <-ctx.Done():
		var zero C
		return zero, ctx.Err()
	}
}

// instance hosts one running FSM: its current state, its context, and
// the collaborating inbox/timer/control the dispatch loop drives.
type instance[C any] struct {
	m     *Machine[C]
	s     *shared
	state spec.StateID
	ctx   C

	timer      *time.Timer
	timerArmed bool

	closing bool // ShutdownGraceful seen: stop accepting new logical work once the inbox drains

	join *JoinFuture[C]
}

// Spawn constructs the inbox, initializes state to the FSMSpec's initial
// state, arms the initial state's timeout if any, and starts the
// dispatch loop goroutine. It returns an error instead of spawning if not
// every referenced handler method was Bind-ed.
func (m *Machine[C]) Spawn(ctx context.Context, initialContext C) (*Handle[C], *JoinFuture[C], error) {
	if err := m.Ready(); err != nil {
		return nil, nil, err
	}

	channelSize := m.spec.ChannelSize
	if channelSize <= 0 {
		channelSize = 64
	}
	sh := &shared{
		events:     make(chan inboxEvent, channelSize),
		forced:     make(chan struct{}),
		graceful:   make(chan struct{}),
		allDropped: make(chan struct{}),
	}
	sh.refcount = 1
	sh.current.Store(m.spec.Initial)

	join := &JoinFuture[C]{done: make(chan struct{})}

	inst := &instance[C]{
		m:     m,
		s:     sh,
		state: m.spec.Initial,
		ctx:   initialContext,
		timer: time.NewTimer(time.Hour),
		join:  join,
	}
	if !inst.timer.Stop() {
		<-inst.timer.C
	}

	handle := &Handle[C]{s: sh, spec: m.spec}

	go inst.run(ctx)

	return handle, join, nil
}

// run is the dispatch loop: a non-blocking priority poll (control, then
// timer, then inbox) ahead of the blocking multi-way select so that
// "control > timer > inbox" actually holds whenever more than one is
// simultaneously ready.
func (inst *instance[C]) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			inst.terminate(&TaskError{Kind: RuntimePanicKind})
		}
	}()

	inst.enterState(inst.state, true)
	if inst.dueNow(inst.state) {
		if done := inst.invoke(inst.m.spec.TimeoutEvent, "Timeout", nil); done {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			inst.terminate(&TaskError{Kind: CancelledKind})
			return
		default:
		}

		select {
		case <-inst.s.forced:
			inst.finishOK()
			return
		default:
		}

		select {
		case <-inst.s.graceful:
			inst.closing = true
		default:
		}

		select {
		case <-inst.s.allDropped:
			inst.closing = true
		default:
		}

		if inst.timerArmed {
			select {
			case <-inst.timer.C:
				inst.timerArmed = false
				if done := inst.dispatchTimeout(); done {
					return
				}
				continue
			default:
			}
		}

		select {
		case ev := <-inst.s.events:
			if done := inst.dispatchEvent(ev); done {
				return
			}
			continue
		default:
			if inst.closing {
				inst.finishOK()
				return
			}
		}

		// Nothing ready: block until something is, re-applying the same
		// priority once we wake.
		var timerC <-chan time.Time
		if inst.timerArmed {
			timerC = inst.timer.C
		}
		select {
		case <-ctx.Done():
			inst.terminate(&TaskError{Kind: CancelledKind})
			return
		case <-inst.s.forced:
			inst.finishOK()
			return
		case <-inst.s.graceful:
			inst.closing = true
		case <-inst.s.allDropped:
			inst.closing = true
		case <-timerC:
			inst.timerArmed = false
			if done := inst.dispatchTimeout(); done {
				return
			}
		case ev := <-inst.s.events:
			if inst.timerArmed {
				select {
				case <-inst.timer.C:
					inst.timerArmed = false
					if done := inst.dispatchTimeout(); done {
						return
					}
				default:
				}
			}
			if done := inst.dispatchEvent(ev); done {
				return
			}
		}
	}
}

// dispatchEvent resolves (state, event) to a bound handler, invokes it,
// and applies its result. Returns true if the instance has terminated.
func (inst *instance[C]) dispatchEvent(ev inboxEvent) bool {
	eventID, ok := inst.m.spec.EventIndex[ev.event]
	if !ok {
		inst.m.observer.OnUnexpectedEvent(inst.m.spec.StateName(inst.state), ev.event)
		return false
	}
	return inst.invoke(eventID, ev.event, ev.payload)
}

// dispatchTimeout synthesizes the Timeout event for the current state.
// Returns true if the instance has terminated.
func (inst *instance[C]) dispatchTimeout() bool {
	return inst.invoke(inst.m.spec.TimeoutEvent, "Timeout", nil)
}

// invoke resolves (state, event) to a bound handler and runs it, then
// loops in place — rather than recursing — for as long as the state just
// entered has a zero-duration timeout rule: that rule fires before the
// loop can consume any other event, and a handler returning to a state
// with another zero-duration rule (including its own) must not grow the
// call stack one frame per hop, since nothing bounds how many hops a
// cycle of such states can take.
func (inst *instance[C]) invoke(eventID spec.EventID, eventName string, payload any) bool {
	for {
		key := spec.BindingKey{State: inst.state, Event: eventID}
		binding, ok := inst.m.spec.Handlers[key]
		if !ok {
			inst.m.observer.OnUnexpectedEvent(inst.m.spec.StateName(inst.state), eventName)
			inst.m.logger.Debug("unexpected event",
				zap.String("state", inst.m.spec.StateName(inst.state)),
				zap.String("event", eventName))
			return false
		}

		fn := inst.m.handlers[binding.Method]

		result, err := fn(context.Background(), &inst.ctx, eventName, payload)
		if err != nil {
			inst.terminate(&TaskError{Kind: FsmErrorKind, Err: err})
			return true
		}

		fromName := inst.m.spec.StateName(inst.state)
		to, ok := inst.m.spec.StateIndex[result.To]
		if !ok {
			// The bound handler returned a state name the validator never
			// saw; this can only happen if the Machine was built from a
			// spec that disagrees with the handler code wired to it.
			inst.terminate(&TaskError{Kind: RuntimePanicKind})
			return true
		}

		inst.enterState(to, false)
		inst.m.observer.OnTransition(fromName, result.To, eventName)

		if result.Terminal {
			inst.finishOK()
			return true
		}

		if !inst.dueNow(inst.state) {
			return false
		}

		eventID, eventName, payload = inst.m.spec.TimeoutEvent, "Timeout", nil
	}
}

// dueNow reports whether s has a timeout rule whose duration is zero or
// negative, meaning it must fire immediately rather than wait on a timer.
func (inst *instance[C]) dueNow(s spec.StateID) bool {
	rule, hasTimeout := inst.m.spec.Timeouts[s]
	return hasTimeout && rule.Duration <= 0
}

// enterState disarms the previous timer, updates the observable current
// state cell, and arms to's timeout rule if any. It never dispatches a
// timeout itself — invoke's loop checks dueNow after every transition, so
// the zero-duration boundary case is handled there, iteratively.
func (inst *instance[C]) enterState(to spec.StateID, first bool) {
	if !first && inst.timerArmed {
		if !inst.timer.Stop() {
			select {
			case <-inst.timer.C:
			default:
			}
		}
		inst.timerArmed = false
	}

	inst.state = to
	inst.s.current.Store(to)

	rule, hasTimeout := inst.m.spec.Timeouts[to]
	if !hasTimeout || rule.Duration <= 0 {
		return
	}

	inst.timer.Reset(rule.Duration)
	inst.timerArmed = true
}

func (inst *instance[C]) finishOK() {
	inst.join.ok = true
	inst.join.ctx = inst.ctx
	inst.m.observer.OnTerminate(nil)
	close(inst.join.done)
}

func (inst *instance[C]) terminate(te *TaskError) {
	inst.join.ok = false
	inst.join.err = te
	inst.m.observer.OnTerminate(te)
	close(inst.join.done)
}
