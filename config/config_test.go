package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fla/fsmtask/validate"
)

const orderYAML = `
name: order
initial_state: Created
handlers:
  - method: OnValidate
    bindings:
      - state: Created
        event: Validate
    targets: [Validated]
  - method: OnCharge
    bindings:
      - state: Validated
        event: Charge
    targets: [Charged]
  - method: OnShip
    bindings:
      - state: Charged
        event: Ship
    targets: [Shipped]
`

func TestLoadYAML_ProducesValidModel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "order.yaml")
	require.NoError(t, os.WriteFile(path, []byte(orderYAML), 0o644))

	model, err := NewLoader().LoadModel(path)
	require.NoError(t, err)

	fsmSpec, diags := validate.Validate(model)
	require.Nil(t, diags)
	assert.Equal(t, "order", fsmSpec.Name)
	assert.Equal(t, []string{"Created", "Validated", "Charged", "Shipped"}, fsmSpec.States)
}

func TestLoadJSON_ProducesValidModel(t *testing.T) {
	const orderJSON = `{
		"name": "order",
		"initial_state": "Created",
		"handlers": [
			{"method": "OnValidate", "bindings": [{"state": "Created", "event": "Validate"}], "targets": ["Validated"]},
			{"method": "OnCharge", "bindings": [{"state": "Validated", "event": "Charge"}], "targets": ["Charged"]},
			{"method": "OnShip", "bindings": [{"state": "Charged", "event": "Ship"}], "targets": ["Shipped"]}
		]
	}`

	dir := t.TempDir()
	path := filepath.Join(dir, "order.json")
	require.NoError(t, os.WriteFile(path, []byte(orderJSON), 0o644))

	model, err := NewLoader().LoadModel(path)
	require.NoError(t, err)

	fsmSpec, diags := validate.Validate(model)
	require.Nil(t, diags)
	assert.Equal(t, "order", fsmSpec.Name)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "order.txt")
	require.NoError(t, os.WriteFile(path, []byte("not a declaration"), 0o644))

	_, err := NewLoader().Load(path)
	assert.Error(t, err)
}

func TestToModel_InvalidTimeoutDuration(t *testing.T) {
	d := &Declaration{
		Name:         "bad",
		InitialState: "Idle",
		Handlers: []HandlerDecl{
			{Method: "OnTimeout", Timeout: true, Targets: []string{"Idle"}},
		},
		Timeouts: []TimeoutDecl{
			{State: "Idle", After: "not-a-duration", Handler: "OnTimeout"},
		},
	}

	_, err := NewLoader().ToModel(d)
	assert.Error(t, err)
}
