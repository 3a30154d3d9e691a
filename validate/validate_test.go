package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fla/fsmtask/semantic"
	"github.com/fla/fsmtask/spec"
)

func TestValidate_OrderFlow(t *testing.T) {
	m := semantic.NewModel("order").
		Initial("Created").
		Handler("OnValidate").On("Created", "Validate").Returns("Validated").Add().
		Handler("OnCharge").On("Validated", "Charge").Returns("Charged").Add().
		Handler("OnShip").On("Charged", "Ship").Returns("Shipped").Add().
		Build()

	fsmSpec, diags := Validate(m)
	require.Nil(t, diags)
	require.NotNil(t, fsmSpec)

	assert.Equal(t, []string{"Created", "Validated", "Charged", "Shipped"}, fsmSpec.States)
	assert.Equal(t, []string{"Validate", "Charge", "Ship"}, fsmSpec.Events)
	assert.Equal(t, spec.StateID(0), fsmSpec.Initial)
}

func TestValidate_DuplicateBinding(t *testing.T) {
	m := semantic.NewModel("dup").
		Initial("Idle").
		Handler("First").On("Idle", "Start").Returns("Running").Add().
		Handler("Second").On("Idle", "Start").Returns("Other").Add().
		Build()

	fsmSpec, diags := Validate(m)
	assert.Nil(t, fsmSpec)
	require.NotNil(t, diags)
	assertHasDiag(t, diags, spec.DuplicateBinding)
}

func TestValidate_UnreachableState(t *testing.T) {
	m := semantic.NewModel("ghost").
		Initial("Idle").
		Handler("Start").On("Idle", "Start").Returns("Running").Add().
		Timeout("Ghost", time.Second, "GhostTimeout").
		Build()

	fsmSpec, diags := Validate(m)
	assert.Nil(t, fsmSpec)
	require.NotNil(t, diags)
	assertHasDiag(t, diags, spec.UnreachableState)
}

func TestValidate_InconsistentEventPayload(t *testing.T) {
	m := semantic.NewModel("payload").
		Initial("Idle").
		Handler("FromIdle").On("Idle", "Go").Payload("IntPayload").Returns("Running").Add().
		Handler("FromOther").On("Other", "Go").Payload("StringPayload").Returns("Running").Add().
		Build()

	_, diags := Validate(m)
	require.NotNil(t, diags)
	assertHasDiag(t, diags, spec.InconsistentEventPayload)
}

func TestValidate_TimeoutHandlerPayloadRejected(t *testing.T) {
	m := semantic.NewModel("badtimeout").
		Initial("Idle").
		Handler("OnTimeout").Payload("Unexpected").TimeoutHandler().Returns("Idle").Add().
		Timeout("Idle", time.Second, "OnTimeout").
		Build()

	_, diags := Validate(m)
	require.NotNil(t, diags)
	assertHasDiag(t, diags, TimeoutHandlerPayload)
}

func TestValidate_ReservedEventNameCollision(t *testing.T) {
	m := semantic.NewModel("timeoutcollision").
		Initial("Idle").
		Handler("OnManualTimeout").On("Idle", "Timeout").Returns("Running").Add().
		Handler("OnTimeout").TimeoutHandler().Returns("Idle").Add().
		Timeout("Idle", time.Second, "OnTimeout").
		Build()

	_, diags := Validate(m)
	require.NotNil(t, diags)
	assertHasDiag(t, diags, spec.ReservedEventName)
}

func TestValidate_BoundStatesConsistentAcrossKeys(t *testing.T) {
	m := semantic.NewModel("multistate").
		Initial("A").
		Handler("Shared").On("A", "e1").On("B", "e2").Returns("A", "B").Add().
		Build()

	fsmSpec, diags := Validate(m)
	require.Nil(t, diags)

	keyA := spec.BindingKey{State: fsmSpec.StateIndex["A"], Event: fsmSpec.EventIndex["e1"]}
	keyB := spec.BindingKey{State: fsmSpec.StateIndex["B"], Event: fsmSpec.EventIndex["e2"]}

	wantStates := []spec.StateID{fsmSpec.StateIndex["A"], fsmSpec.StateIndex["B"]}
	assert.Equal(t, wantStates, fsmSpec.Handlers[keyA].BoundStates)
	assert.Equal(t, wantStates, fsmSpec.Handlers[keyB].BoundStates)
}

func TestValidate_NoInitialState(t *testing.T) {
	m := semantic.NewModel("noinitial").
		Handler("Start").On("Idle", "Go").Returns("Running").Add().
		Build()

	_, diags := Validate(m)
	require.NotNil(t, diags)
	assertHasDiag(t, diags, spec.NoInitialState)
}

func assertHasDiag(t *testing.T, diags spec.Diagnostics, kind spec.DiagKind) {
	t.Helper()
	for _, d := range diags {
		if d.Kind == kind {
			return
		}
	}
	t.Fatalf("expected a %s diagnostic, got %v", kind, diags)
}
