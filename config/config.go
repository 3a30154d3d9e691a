// Package config loads an FSM declaration from a YAML or JSON file into a
// semantic.Model. It never builds a runtime Machine directly: a loaded
// Declaration still has to pass through validate.Validate like any other
// Model, so a malformed file is reported as Diagnostics rather than
// panicking deep inside a machine builder.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/fla/fsmtask/semantic"
)

// BindingDecl is one (state, event) pair a handler answers for.
type BindingDecl struct {
	State string `json:"state" yaml:"state"`
	Event string `json:"event" yaml:"event"`
}

// HandlerDecl is the file representation of semantic.HandlerDecl.
type HandlerDecl struct {
	Method   string        `json:"method" yaml:"method"`
	Bindings []BindingDecl `json:"bindings" yaml:"bindings"`
	Payload  string        `json:"payload,omitempty" yaml:"payload,omitempty"`
	Targets  []string      `json:"targets" yaml:"targets"`
	Timeout  bool          `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Async    bool          `json:"async,omitempty" yaml:"async,omitempty"`
}

// TimeoutDecl is the file representation of semantic.TimeoutDecl. After is
// a time.ParseDuration string ("0s", "30s", "5m"); an empty After means an
// immediate, zero-duration timeout.
type TimeoutDecl struct {
	State   string `json:"state" yaml:"state"`
	After   string `json:"after" yaml:"after"`
	Handler string `json:"handler" yaml:"handler"`
}

// Declaration is the top-level shape of an FSM declaration file.
type Declaration struct {
	Name         string        `json:"name" yaml:"name"`
	ContextType  string        `json:"context_type,omitempty" yaml:"context_type,omitempty"`
	ErrorType    string        `json:"error_type,omitempty" yaml:"error_type,omitempty"`
	InitialState string        `json:"initial_state" yaml:"initial_state"`
	ChannelSize  int           `json:"channel_size,omitempty" yaml:"channel_size,omitempty"`
	Handlers     []HandlerDecl `json:"handlers" yaml:"handlers"`
	Timeouts     []TimeoutDecl `json:"timeouts,omitempty" yaml:"timeouts,omitempty"`
}

// Loader reads Declaration files and turns them into semantic.Model
// values. It carries no state of its own; it exists (rather than package
// functions) to match the construction-then-use shape the rest of this
// module's entry points use.
type Loader struct{}

// NewLoader returns a ready-to-use Loader.
func NewLoader() *Loader { return &Loader{} }

// LoadYAML reads and parses a YAML declaration file.
func (l *Loader) LoadYAML(path string) (*Declaration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read yaml declaration: %w", err)
	}
	var d Declaration
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse yaml declaration: %w", err)
	}
	return &d, nil
}

// LoadJSON reads and parses a JSON declaration file.
func (l *Loader) LoadJSON(path string) (*Declaration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read json declaration: %w", err)
	}
	var d Declaration
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse json declaration: %w", err)
	}
	return &d, nil
}

// Load dispatches to LoadYAML or LoadJSON by file extension.
func (l *Loader) Load(path string) (*Declaration, error) {
	switch {
	case strings.HasSuffix(path, ".json"):
		return l.LoadJSON(path)
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return l.LoadYAML(path)
	default:
		return nil, fmt.Errorf("unsupported declaration file extension: %s", path)
	}
}

// ToModel converts a parsed Declaration into a semantic.Model, ready for
// validate.Validate. Duration strings that fail to parse surface as a Go
// error here rather than as a validation Diagnostic, since a malformed
// duration is a file-format problem, not an FSM-shape problem.
func (l *Loader) ToModel(d *Declaration) (*semantic.Model, error) {
	b := semantic.NewModel(d.Name).Initial(d.InitialState)
	if d.ContextType != "" {
		b = b.Context(d.ContextType)
	}
	if d.ErrorType != "" {
		b = b.ErrorType(d.ErrorType)
	}
	if d.ChannelSize > 0 {
		b = b.ChannelSize(d.ChannelSize)
	}

	for _, h := range d.Handlers {
		hb := b.Handler(h.Method)
		for _, bind := range h.Bindings {
			hb = hb.On(bind.State, bind.Event)
		}
		if h.Payload != "" {
			hb = hb.Payload(h.Payload)
		}
		if h.Async {
			hb = hb.Async()
		}
		if h.Timeout {
			hb = hb.TimeoutHandler()
		}
		hb = hb.Returns(h.Targets...)
		b = hb.Add()
	}

	for _, t := range d.Timeouts {
		dur := time.Duration(0)
		if t.After != "" {
			parsed, err := time.ParseDuration(t.After)
			if err != nil {
				return nil, fmt.Errorf("timeout on state %q: %w", t.State, err)
			}
			dur = parsed
		}
		b = b.Timeout(t.State, dur, t.Handler)
	}

	return b.Build(), nil
}

// LoadModel is the common-case convenience: Load then ToModel in one call.
func (l *Loader) LoadModel(path string) (*semantic.Model, error) {
	d, err := l.Load(path)
	if err != nil {
		return nil, err
	}
	return l.ToModel(d)
}
