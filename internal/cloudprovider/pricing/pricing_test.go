package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/accelstack/pool-provisioner/internal/cloudprovider/types"
)

func TestHourlyCost(t *testing.T) {
	onDemand, found := HourlyCost("ct5lp-hightpu-4t", types.CapacityTypeOnDemand, 4)
	assert.True(t, found)
	assert.InDelta(t, 19.20, onDemand, 0.01)

	spot, found := HourlyCost("ct5lp-hightpu-4t", types.CapacityTypeSpot, 4)
	assert.True(t, found)
	assert.Less(t, spot, onDemand, "spot must be cheaper than on-demand")

	// Reserved capacity is billed at the on-demand list price.
	reserved, found := HourlyCost("ct5lp-hightpu-4t", types.CapacityTypeReserved, 4)
	assert.True(t, found)
	assert.Equal(t, onDemand, reserved)
}

func TestHourlyCostUnknownMachineType(t *testing.T) {
	cost, found := HourlyCost("n1-standard-1", types.CapacityTypeOnDemand, 1)
	assert.False(t, found)
	assert.Zero(t, cost)
}
