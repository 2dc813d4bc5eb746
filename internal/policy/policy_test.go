package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	v1 "github.com/accelstack/pool-provisioner/api/v1"
	"github.com/accelstack/pool-provisioner/internal/catalog"
	"github.com/accelstack/pool-provisioner/internal/cloudprovider/types"
)

func TestEffectiveTier(t *testing.T) {
	assert.Equal(t, TierDefault, Signals{}.EffectiveTier())
	assert.Equal(t, "0", Signals{Tier: "0"}.EffectiveTier())
	assert.Equal(t, "2", Signals{Tier: "2"}.EffectiveTier())
}

func TestResolveCapacity(t *testing.T) {
	shape := &catalog.CapacityShape{
		AcceleratorType: "tpu-v5litepod-16",
		NodesPerPool:    4,
		MachineType:     "ct5lp-hightpu-4t",
		Topology:        "4x4",
	}

	tests := []struct {
		name            string
		tier            string
		reservation     string
		wantSpot        bool
		wantReservation string
		wantCapacity    types.CapacityTypeEnum
	}{
		{
			name:            "top tier with reservation uses reserved capacity",
			tier:            "0",
			reservation:     "res-1",
			wantSpot:        false,
			wantReservation: "res-1",
			wantCapacity:    types.CapacityTypeReserved,
		},
		{
			name:            "absent tier counts as top tier",
			tier:            "",
			reservation:     "res-1",
			wantSpot:        false,
			wantReservation: "res-1",
			wantCapacity:    types.CapacityTypeReserved,
		},
		{
			name:         "lower tier discards the reservation",
			tier:         "1",
			reservation:  "res-1",
			wantSpot:     true,
			wantCapacity: types.CapacityTypeSpot,
		},
		{
			name:         "top tier without reservation falls back to spot",
			tier:         "0",
			wantSpot:     true,
			wantCapacity: types.CapacityTypeSpot,
		},
		{
			name:         "lower tier without reservation uses spot",
			tier:         "3",
			wantSpot:     true,
			wantCapacity: types.CapacityTypeSpot,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &v1.JobRequest{
				Namespace:       "ns1",
				Name:            "job1",
				AcceleratorType: shape.AcceleratorType,
				NumNodePools:    1,
				Reservation:     tt.reservation,
				Category:        v1.JobCategoryTraining,
			}
			decision := Resolve(t.Context(), job, shape, Signals{Tier: tt.tier})
			assert.Equal(t, tt.wantSpot, decision.UseSpot)
			assert.Equal(t, tt.wantReservation, decision.Reservation)
			assert.Equal(t, tt.wantCapacity, decision.CapacityType())
		})
	}
}

func TestResolveTopology(t *testing.T) {
	shape := &catalog.CapacityShape{
		AcceleratorType: "tpu-v4-32",
		NodesPerPool:    4,
		MachineType:     "ct4p-hightpu-4t",
		Topology:        "2x2x4",
	}

	training := &v1.JobRequest{
		Namespace: "ns1", Name: "job1",
		AcceleratorType: shape.AcceleratorType, NumNodePools: 1,
		Category: v1.JobCategoryTraining,
	}
	inference := &v1.JobRequest{
		Namespace: "ns1", Name: "job1",
		AcceleratorType: shape.AcceleratorType, NumNodePools: 1,
		Category: v1.JobCategoryInference,
	}

	assert.Equal(t, "2x2x4", Resolve(t.Context(), training, shape, Signals{}).Topology)
	assert.Empty(t, Resolve(t.Context(), inference, shape, Signals{}).Topology)
}
