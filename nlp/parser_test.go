package nlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fla/fsmtask/validate"
)

func TestParse_TrafficLight(t *testing.T) {
	model, err := New().Parse("traffic_light", `
		States: red, yellow, green
		From red to green when timer
		From green to yellow when timer
		From yellow to red when timer
	`)
	require.NoError(t, err)
	assert.Equal(t, "red", model.InitialState)

	fsmSpec, diags := validate.Validate(model)
	require.Nil(t, diags)
	assert.ElementsMatch(t, []string{"red", "yellow", "green"}, fsmSpec.States)
}

func TestParse_StatesAndEventsOnSeparateLines(t *testing.T) {
	model, err := New().Parse("traffic_light", "States: red, yellow, green\nEvents: timer, stop\nFrom red to green when timer")
	require.NoError(t, err)

	fsmSpec, diags := validate.Validate(model)
	require.Nil(t, diags)
	assert.ElementsMatch(t, []string{"red", "yellow", "green"}, fsmSpec.States)
	assert.NotContains(t, fsmSpec.States, "Events")
}

func TestParse_NoStatesFound(t *testing.T) {
	_, err := New().Parse("empty", "nothing to see here")
	assert.Error(t, err)
}

func TestParse_InfersStatesFromTransitionsOnly(t *testing.T) {
	model, err := New().Parse("inferred", "From pending to shipped when ship")
	require.NoError(t, err)
	assert.Equal(t, "pending", model.InitialState)
	assert.Len(t, model.Handlers, 1)
	assert.Equal(t, []string{"shipped"}, model.Handlers[0].TargetStates)
}
