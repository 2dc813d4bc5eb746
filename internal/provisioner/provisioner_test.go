package provisioner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	v1 "github.com/accelstack/pool-provisioner/api/v1"
	"github.com/accelstack/pool-provisioner/internal/catalog"
	"github.com/accelstack/pool-provisioner/internal/cloudprovider/mock"
	"github.com/accelstack/pool-provisioner/internal/cloudprovider/types"
	"github.com/accelstack/pool-provisioner/internal/config"
	"github.com/accelstack/pool-provisioner/internal/constants"
	"github.com/accelstack/pool-provisioner/internal/naming"
	"github.com/accelstack/pool-provisioner/internal/policy"
)

func testConfig() *config.Config {
	return &config.Config{
		Name:                "prov-test",
		Backend:             "mock",
		ServiceAccountEmail: "pools@example.iam.gserviceaccount.com",
		RetryInterval:       metav1.Duration{Duration: 10 * time.Millisecond},
		WaitTimeout:         metav1.Duration{Duration: 2 * time.Second},
	}
}

func trainingJob() *v1.JobRequest {
	return &v1.JobRequest{
		Namespace:       "ns1",
		Name:            "job1",
		AcceleratorType: "tpu-v5litepod-16",
		NumNodePools:    2,
		Reservation:     "res-1",
		AutoRepair:      true,
		Category:        v1.JobCategoryTraining,
	}
}

func TestCreateFor(t *testing.T) {
	client := mock.NewClient()
	prov := New(testConfig(), catalog.Builtin(), client)
	priority := int32(3)

	err := prov.CreateFor(t.Context(), trainingJob(), policy.Signals{Tier: "0", Priority: &priority})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		name := naming.PoolName("ns1", "job1", i)
		spec := client.Pool(name)
		require.NotNil(t, spec, "pool %d must exist", i)

		assert.Equal(t, int32(4), spec.NodeCount)
		assert.Equal(t, "ct5lp-hightpu-4t", spec.MachineType)
		assert.Equal(t, "4x4", spec.Topology)
		assert.Equal(t, types.CapacityTypeReserved, spec.CapacityType)
		assert.Equal(t, "res-1", spec.Reservation)
		assert.Equal(t, "pools@example.iam.gserviceaccount.com", spec.ServiceAccount)

		assert.Equal(t, naming.JobKey("ns1", "job1", i), spec.Labels[constants.LabelJobKey])
		assert.Equal(t, "prov-test", spec.Labels[constants.LabelPreProvisionerID])
		assert.Equal(t, "3", spec.Labels[constants.LabelJobPriority])
		assert.Equal(t, constants.TrueStringValue, spec.Labels[constants.LabelTPUAutoRestart])
	}
}

func TestCreateForLowerTierUsesSpot(t *testing.T) {
	client := mock.NewClient()
	prov := New(testConfig(), catalog.Builtin(), client)

	err := prov.CreateFor(t.Context(), trainingJob(), policy.Signals{Tier: "1"})
	require.NoError(t, err)

	spec := client.Pool(naming.PoolName("ns1", "job1", 0))
	require.NotNil(t, spec)
	assert.Equal(t, types.CapacityTypeSpot, spec.CapacityType)
	assert.Empty(t, spec.Reservation, "reservation must be discarded on lower tiers")
}

func TestCreateForIsIdempotent(t *testing.T) {
	client := mock.NewClient()
	prov := New(testConfig(), catalog.Builtin(), client)
	job := trainingJob()

	require.NoError(t, prov.CreateFor(t.Context(), job, policy.Signals{}))
	first := client.Pool(naming.PoolName("ns1", "job1", 0))

	require.NoError(t, prov.CreateFor(t.Context(), job, policy.Signals{}))
	assert.Equal(t, first, client.Pool(naming.PoolName("ns1", "job1", 0)))
}

func TestCreateForInferenceOmitsTopology(t *testing.T) {
	client := mock.NewClient()
	prov := New(testConfig(), catalog.Builtin(), client)
	job := trainingJob()
	job.Category = v1.JobCategoryInference

	require.NoError(t, prov.CreateFor(t.Context(), job, policy.Signals{}))

	spec := client.Pool(naming.PoolName("ns1", "job1", 0))
	require.NotNil(t, spec)
	assert.Empty(t, spec.Topology)
}

func TestCreateForRejectsBadJobs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*v1.JobRequest)
		errIs  error
	}{
		{
			name:   "unsupported category",
			mutate: func(j *v1.JobRequest) { j.Category = "batch" },
			errIs:  ErrUnsupportedJob,
		},
		{
			name:   "unknown accelerator type",
			mutate: func(j *v1.JobRequest) { j.AcceleratorType = "tpu-v99" },
			errIs:  catalog.ErrUnknownAcceleratorType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := mock.NewClient()
			prov := New(testConfig(), catalog.Builtin(), client)
			job := trainingJob()
			tt.mutate(job)

			err := prov.CreateFor(t.Context(), job, policy.Signals{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.errIs)
			// Validation failures must not reach the backend.
			assert.Zero(t, client.CreateCalls())
		})
	}
}

func TestCreateForInvalidRequest(t *testing.T) {
	client := mock.NewClient()
	prov := New(testConfig(), catalog.Builtin(), client)
	job := trainingJob()
	job.NumNodePools = 0

	err := prov.CreateFor(t.Context(), job, policy.Signals{})
	assert.Error(t, err)
	assert.Zero(t, client.CreateCalls())
}

func TestDeleteFor(t *testing.T) {
	client := mock.NewClient()
	prov := New(testConfig(), catalog.Builtin(), client)
	job := trainingJob()

	require.NoError(t, prov.CreateFor(t.Context(), job, policy.Signals{}))
	require.NoError(t, prov.DeleteFor(t.Context(), job))

	assert.Nil(t, client.Pool(naming.PoolName("ns1", "job1", 0)))
	assert.Nil(t, client.Pool(naming.PoolName("ns1", "job1", 1)))
}

func TestDeleteForNeverCreated(t *testing.T) {
	client := mock.NewClient()
	prov := New(testConfig(), catalog.Builtin(), client)

	assert.NoError(t, prov.DeleteFor(t.Context(), trainingJob()))
}
