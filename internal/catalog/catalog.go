package catalog

import (
	"errors"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// ErrUnknownAcceleratorType is returned when a lookup misses. This is the
// only place an unrecognized accelerator type is detected, and it is a fatal
// configuration error for the episode.
var ErrUnknownAcceleratorType = errors.New("unknown accelerator type")

// CapacityShape is the physical shape of one node pool for an accelerator
// type: how many nodes a pool has, which machine type backs them, and the
// interconnect topology of the pool.
type CapacityShape struct {
	AcceleratorType string `json:"acceleratorType"`
	NodesPerPool    int32  `json:"nodesPerPool"`
	MachineType     string `json:"machineType"`
	// Topology is empty for accelerators without an explicit topology
	// constraint (e.g. GPU machine shapes).
	Topology string `json:"topology,omitempty"`
}

// Catalog maps accelerator type identifiers to capacity shapes. Lookups are
// pure and side-effect free; the catalog is immutable after construction.
type Catalog struct {
	shapes map[string]CapacityShape
}

// Builtin returns the catalog of well-known accelerator types.
func Builtin() *Catalog {
	return newCatalog(builtinShapes)
}

// Load reads shapes from a YAML file and merges them over the builtin table,
// so deployments can add or override entries without a code change.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read capacity catalog %q: %w", path, err)
	}
	var shapes []CapacityShape
	if err := yaml.Unmarshal(data, &shapes); err != nil {
		return nil, fmt.Errorf("failed to parse capacity catalog %q: %w", path, err)
	}
	for _, s := range shapes {
		if s.AcceleratorType == "" || s.NodesPerPool <= 0 || s.MachineType == "" {
			return nil, fmt.Errorf("invalid catalog entry %+v in %q", s, path)
		}
	}
	return newCatalog(append(append([]CapacityShape{}, builtinShapes...), shapes...)), nil
}

func newCatalog(shapes []CapacityShape) *Catalog {
	c := &Catalog{shapes: make(map[string]CapacityShape, len(shapes))}
	for _, s := range shapes {
		c.shapes[s.AcceleratorType] = s
	}
	return c
}

// Lookup resolves an accelerator type identifier to its shape.
func (c *Catalog) Lookup(acceleratorType string) (*CapacityShape, error) {
	shape, ok := c.shapes[acceleratorType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAcceleratorType, acceleratorType)
	}
	return &shape, nil
}

// builtinShapes mirrors the published machine shapes of the supported
// accelerator generations. Later entries win, so Load can override them.
var builtinShapes = []CapacityShape{
	{AcceleratorType: "tpu-v4-8", NodesPerPool: 1, MachineType: "ct4p-hightpu-4t", Topology: "2x2x1"},
	{AcceleratorType: "tpu-v4-16", NodesPerPool: 2, MachineType: "ct4p-hightpu-4t", Topology: "2x2x2"},
	{AcceleratorType: "tpu-v4-32", NodesPerPool: 4, MachineType: "ct4p-hightpu-4t", Topology: "2x2x4"},
	{AcceleratorType: "tpu-v4-64", NodesPerPool: 8, MachineType: "ct4p-hightpu-4t", Topology: "2x4x4"},

	{AcceleratorType: "tpu-v5litepod-4", NodesPerPool: 1, MachineType: "ct5lp-hightpu-4t", Topology: "2x2"},
	{AcceleratorType: "tpu-v5litepod-16", NodesPerPool: 4, MachineType: "ct5lp-hightpu-4t", Topology: "4x4"},
	{AcceleratorType: "tpu-v5litepod-32", NodesPerPool: 8, MachineType: "ct5lp-hightpu-4t", Topology: "4x8"},
	{AcceleratorType: "tpu-v5litepod-256", NodesPerPool: 64, MachineType: "ct5lp-hightpu-4t", Topology: "16x16"},

	{AcceleratorType: "tpu-v5p-8", NodesPerPool: 1, MachineType: "ct5p-hightpu-4t", Topology: "2x2x1"},
	{AcceleratorType: "tpu-v5p-16", NodesPerPool: 2, MachineType: "ct5p-hightpu-4t", Topology: "2x2x2"},
	{AcceleratorType: "tpu-v5p-32", NodesPerPool: 4, MachineType: "ct5p-hightpu-4t", Topology: "2x2x4"},

	{AcceleratorType: "gpu-h100-8", NodesPerPool: 1, MachineType: "a3-highgpu-8g"},
	{AcceleratorType: "gpu-a100-8", NodesPerPool: 1, MachineType: "a2-highgpu-8g"},
}
