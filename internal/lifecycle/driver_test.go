package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accelstack/pool-provisioner/internal/cloudprovider/mock"
	"github.com/accelstack/pool-provisioner/internal/cloudprovider/types"
)

func poolSpec(name string) *types.NodePoolSpec {
	return &types.NodePoolSpec{
		Name:         name,
		NodeCount:    2,
		MachineType:  "ct5lp-hightpu-4t",
		CapacityType: types.CapacityTypeSpot,
	}
}

func TestCreatePools(t *testing.T) {
	client := mock.NewClient()
	driver := NewDriver(client, 10*time.Millisecond, 2*time.Second)

	batch, err := driver.CreatePools(t.Context(), []*types.NodePoolSpec{
		poolSpec("pool-a"), poolSpec("pool-b"),
	})
	require.NoError(t, err)
	require.Len(t, batch.Pools, 2)
	for _, result := range batch.Pools {
		assert.NoError(t, result.Err)
		assert.Equal(t, types.PoolPhaseReady, result.Phase)
	}
	assert.Empty(t, batch.Failed())
	assert.NotNil(t, client.Pool("pool-a"))
	assert.NotNil(t, client.Pool("pool-b"))
}

func TestCreatePoolsIsIdempotent(t *testing.T) {
	client := mock.NewClient()
	driver := NewDriver(client, 10*time.Millisecond, 2*time.Second)
	specs := []*types.NodePoolSpec{poolSpec("pool-a")}

	_, err := driver.CreatePools(t.Context(), specs)
	require.NoError(t, err)
	created := client.Pool("pool-a")

	_, err = driver.CreatePools(t.Context(), specs)
	require.NoError(t, err)
	assert.Equal(t, created, client.Pool("pool-a"), "second run must not replace the pool")
}

func TestCreatePoolsRetriesTransientFailures(t *testing.T) {
	client := mock.NewClient(mock.WithTransientCreateFailures(1))
	driver := NewDriver(client, 10*time.Millisecond, 2*time.Second)

	batch, err := driver.CreatePools(t.Context(), []*types.NodePoolSpec{poolSpec("pool-a")})
	require.NoError(t, err)
	assert.Equal(t, types.PoolPhaseReady, batch.Pools[0].Phase)
	assert.GreaterOrEqual(t, client.CreateCalls(), 2)
}

func TestCreatePoolsWaitsForProvisioning(t *testing.T) {
	client := mock.NewClient(mock.WithReadyAfter(50 * time.Millisecond))
	driver := NewDriver(client, 10*time.Millisecond, 2*time.Second)

	batch, err := driver.CreatePools(t.Context(), []*types.NodePoolSpec{poolSpec("pool-a")})
	require.NoError(t, err)
	assert.Equal(t, types.PoolPhaseReady, batch.Pools[0].Phase)
	assert.GreaterOrEqual(t, batch.Elapsed, 50*time.Millisecond)
}

func TestCreatePoolsTimeoutReportsStuckPool(t *testing.T) {
	client := mock.NewClient(mock.WithStuckPools("pool-b"))
	driver := NewDriver(client, 20*time.Millisecond, 200*time.Millisecond)

	start := time.Now()
	batch, err := driver.CreatePools(t.Context(), []*types.NodePoolSpec{
		poolSpec("pool-a"), poolSpec("pool-b"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Contains(t, err.Error(), "pool-b")
	// The healthy pool completed; no rollback happened.
	assert.NotNil(t, client.Pool("pool-a"))
	assert.Equal(t, []string{"pool-b"}, batch.Failed())
	// The episode is bounded by the wait timeout, not open-ended.
	assert.Less(t, time.Since(start), 2*time.Second)

	for _, result := range batch.Pools {
		if result.Name == "pool-b" {
			assert.Error(t, result.Err)
			assert.Equal(t, types.PoolPhaseProvisioning, result.Phase)
		} else {
			assert.NoError(t, result.Err)
		}
	}
}

func TestDeletePools(t *testing.T) {
	client := mock.NewClient()
	driver := NewDriver(client, 10*time.Millisecond, 2*time.Second)

	_, err := driver.CreatePools(t.Context(), []*types.NodePoolSpec{poolSpec("pool-a")})
	require.NoError(t, err)

	batch, err := driver.DeletePools(t.Context(), []string{"pool-a"})
	require.NoError(t, err)
	assert.Equal(t, types.PoolPhaseAbsent, batch.Pools[0].Phase)
	assert.Nil(t, client.Pool("pool-a"))
}

func TestDeletePoolsMissingPoolIsNoop(t *testing.T) {
	client := mock.NewClient()
	driver := NewDriver(client, 10*time.Millisecond, 2*time.Second)

	batch, err := driver.DeletePools(t.Context(), []string{"never-existed"})
	require.NoError(t, err)
	assert.Equal(t, types.PoolPhaseAbsent, batch.Pools[0].Phase)
	assert.Empty(t, batch.Failed())
}
