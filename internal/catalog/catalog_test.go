package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinLookup(t *testing.T) {
	cat := Builtin()

	shape, err := cat.Lookup("tpu-v5litepod-16")
	require.NoError(t, err)
	assert.Equal(t, "ct5lp-hightpu-4t", shape.MachineType)
	assert.Equal(t, int32(4), shape.NodesPerPool)
	assert.Equal(t, "4x4", shape.Topology)

	shape, err = cat.Lookup("gpu-h100-8")
	require.NoError(t, err)
	assert.Equal(t, "a3-highgpu-8g", shape.MachineType)
	assert.Empty(t, shape.Topology)
}

func TestLookupUnknownType(t *testing.T) {
	_, err := Builtin().Lookup("tpu-v99")
	assert.ErrorIs(t, err, ErrUnknownAcceleratorType)
	assert.Contains(t, err.Error(), "tpu-v99")
}

func TestLoadOverlaysBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := `
- acceleratorType: tpu-v6e-16
  nodesPerPool: 4
  machineType: ct6e-standard-4t
  topology: 4x4
- acceleratorType: tpu-v5litepod-16
  nodesPerPool: 8
  machineType: ct5lp-hightpu-4t
  topology: 8x4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cat, err := Load(path)
	require.NoError(t, err)

	// New entry is visible.
	shape, err := cat.Lookup("tpu-v6e-16")
	require.NoError(t, err)
	assert.Equal(t, "ct6e-standard-4t", shape.MachineType)

	// Overlay entries win over builtin ones.
	shape, err = cat.Lookup("tpu-v5litepod-16")
	require.NoError(t, err)
	assert.Equal(t, int32(8), shape.NodesPerPool)

	// Builtin entries not overridden stay available.
	_, err = cat.Lookup("tpu-v4-8")
	assert.NoError(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
