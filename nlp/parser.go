// Package nlp turns a loose, English-language description of a state
// machine into a semantic.Model, for quickly sketching an FSM shape
// before writing real handler code. It understands three shapes of
// sentence: an explicit "States: a, b, c" or "Events: x, y, z" list, and
// a transition of the form "From A to B when E". When no transition of
// that form is found, any "A to B" or "A -> B" phrase is read as a
// transition on an event named "trigger". Anything else in the
// description is ignored.
package nlp

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fla/fsmtask/semantic"
)

// Parser converts natural-language descriptions into a Model. Its
// pattern set is fixed at construction; callers needing a different
// vocabulary build their own Parser rather than mutating a shared one.
type Parser struct {
	statePatterns      map[string]*regexp.Regexp
	eventPatterns      map[string]*regexp.Regexp
	transitionPatterns map[string]*regexp.Regexp
}

// New returns a Parser with the default pattern set.
func New() *Parser {
	return &Parser{
		statePatterns: map[string]*regexp.Regexp{
			"list": regexp.MustCompile(`(?i)states?:?[ \t]*([a-zA-Z0-9_][a-zA-Z0-9_, \t]*)`),
		},
		eventPatterns: map[string]*regexp.Regexp{
			"list": regexp.MustCompile(`(?i)events?:?[ \t]*([a-zA-Z0-9_][a-zA-Z0-9_, \t]*)`),
		},
		transitionPatterns: map[string]*regexp.Regexp{
			"full":   regexp.MustCompile(`(?i)from\s+([a-zA-Z0-9_]+)\s+(?:to|→)\s+([a-zA-Z0-9_]+)\s+(?:when|on)\s+([a-zA-Z0-9_]+)`),
			"simple": regexp.MustCompile(`(?i)([a-zA-Z0-9_]+)\s+(?:→|->|to)\s+([a-zA-Z0-9_]+)`),
		},
	}
}

// transition is an intermediate (from, event, to) triple extracted from
// the description, before it is folded into per-event HandlerDecls.
type transition struct {
	from  string
	event string
	to    string
}

// Parse converts description into a Model named fsmName. The first
// state mentioned (explicitly or inferred from the first transition)
// becomes the initial state. Handlers are synthesized one per distinct
// event name, named "On<Event>"; every (from, event) binding that
// shares an event folds into that one handler, and its Returns list
// collects every target that handler's bindings were ever seen to
// reach. The synthesized handlers carry no real logic: Parse produces a
// Model for validate.Validate and inspection, not a runnable Machine;
// callers that want a working instance still Bind real HandlerFuncs to
// the method names it generates.
func (p *Parser) Parse(fsmName, description string) (*semantic.Model, error) {
	transitions := p.extractTransitions(description)

	states := p.extractNames(description, p.statePatterns)
	if len(states) == 0 {
		states = statesFromTransitions(transitions)
	}
	if len(states) == 0 {
		return nil, fmt.Errorf("nlp: could not find any state in description")
	}

	events := p.extractNames(description, p.eventPatterns)
	if len(events) == 0 {
		events = eventsFromTransitions(transitions)
	}

	b := semantic.NewModel(fsmName).Initial(states[0])

	byEvent := make(map[string][]transition)
	var eventOrder []string
	for _, t := range transitions {
		if _, seen := byEvent[t.event]; !seen {
			eventOrder = append(eventOrder, t.event)
		}
		byEvent[t.event] = append(byEvent[t.event], t)
	}

	for _, event := range eventOrder {
		hb := b.Handler(handlerMethodName(event))
		targets := make(map[string]bool)
		var targetOrder []string
		for _, t := range byEvent[event] {
			hb = hb.On(t.from, t.event)
			if !targets[t.to] {
				targets[t.to] = true
				targetOrder = append(targetOrder, t.to)
			}
		}
		b = hb.Returns(targetOrder...).Add()
	}

	return b.Build(), nil
}

func handlerMethodName(event string) string {
	if event == "" {
		return "OnEvent"
	}
	return "On" + strings.ToUpper(event[:1]) + event[1:]
}

func (p *Parser) extractNames(description string, patterns map[string]*regexp.Regexp) []string {
	seen := make(map[string]bool)
	var names []string
	for _, pattern := range patterns {
		for _, match := range pattern.FindAllStringSubmatch(description, -1) {
			if len(match) < 2 {
				continue
			}
			for _, raw := range strings.Split(match[1], ",") {
				name := strings.TrimSpace(raw)
				if name != "" && !seen[name] {
					seen[name] = true
					names = append(names, name)
				}
			}
		}
	}
	return names
}

func (p *Parser) extractTransitions(description string) []transition {
	var result []transition
	for _, match := range p.transitionPatterns["full"].FindAllStringSubmatch(description, -1) {
		result = append(result, transition{from: match[1], event: match[3], to: match[2]})
	}
	if len(result) > 0 {
		return result
	}
	for _, match := range p.transitionPatterns["simple"].FindAllStringSubmatch(description, -1) {
		result = append(result, transition{from: match[1], to: match[2], event: "trigger"})
	}
	return result
}

func statesFromTransitions(ts []transition) []string {
	seen := make(map[string]bool)
	var states []string
	for _, t := range ts {
		if !seen[t.from] {
			seen[t.from] = true
			states = append(states, t.from)
		}
		if !seen[t.to] {
			seen[t.to] = true
			states = append(states, t.to)
		}
	}
	return states
}

func eventsFromTransitions(ts []transition) []string {
	seen := make(map[string]bool)
	var events []string
	for _, t := range ts {
		if !seen[t.event] {
			seen[t.event] = true
			events = append(events, t.event)
		}
	}
	return events
}
