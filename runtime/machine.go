package runtime

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fla/fsmtask/spec"
)

// Machine is the runtime template for one validated FSM: it binds actual
// Go handler functions to the method names spec.FSMSpec's handler map
// names, then spawns one Instance per call to Spawn. This is the
// interpreted dispatch style: a two-dimensional table of function values
// indexed by (StateID, EventID), built once here rather than generated
// per declaration.
type Machine[C any] struct {
	spec     *spec.FSMSpec
	handlers map[string]HandlerFunc[C]
	logger   *zap.Logger
	observer Observer
}

// Option configures a Machine at construction time.
type Option[C any] func(*Machine[C])

// WithLogger attaches a structured logger; nil (the default) uses a
// no-op logger.
func WithLogger[C any](l *zap.Logger) Option[C] {
	return func(m *Machine[C]) {
		if l == nil {
			l = zap.NewNop()
		}
		m.logger = l
	}
}

// WithObserver attaches a lifecycle observer; the default is NopObserver.
func WithObserver[C any](o Observer) Option[C] {
	return func(m *Machine[C]) { m.observer = o }
}

// New constructs a Machine from a validated FSMSpec. s must have come
// from validate.Validate; New does not re-validate it.
func New[C any](s *spec.FSMSpec, opts ...Option[C]) *Machine[C] {
	m := &Machine[C]{
		spec:     s,
		handlers: make(map[string]HandlerFunc[C]),
		logger:   zap.NewNop(),
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Bind registers the Go function implementing the handler named method
// in the FSMSpec. Returns the Machine so calls can be chained.
func (m *Machine[C]) Bind(method string, fn HandlerFunc[C]) *Machine[C] {
	m.handlers[method] = fn
	return m
}

// Ready reports whether every handler method the FSMSpec references has
// been Bind-ed. Spawn calls this itself; exported so callers can check
// construction-time wiring without spawning an instance.
func (m *Machine[C]) Ready() error {
	missing := map[string]bool{}
	for _, binding := range m.spec.Handlers {
		if _, ok := m.handlers[binding.Method]; !ok {
			missing[binding.Method] = true
		}
	}
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	return fmt.Errorf("fsm %q: %d handler method(s) referenced by the spec were never bound: %v", m.spec.Name, len(missing), names)
}

// Spec returns the validated FSMSpec this Machine was built from.
func (m *Machine[C]) Spec() *spec.FSMSpec { return m.spec }
