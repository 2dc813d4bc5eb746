package jobspec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"

	"github.com/accelstack/pool-provisioner/internal/constants"
	"github.com/accelstack/pool-provisioner/internal/policy"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name         string
		data         string
		wantPriority *int32
		wantErr      bool
	}{
		{
			name:         "yaml with priority",
			data:         "metadata:\n  priority: 3\n  user: alice\n",
			wantPriority: ptr.To(int32(3)),
		},
		{
			name:         "json with priority",
			data:         `{"metadata": {"priority": 7}}`,
			wantPriority: ptr.To(int32(7)),
		},
		{
			name: "descriptor without priority",
			data: "metadata:\n  user: bob\n",
		},
		{
			name:    "malformed descriptor",
			data:    "metadata: [not a map",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := Decode([]byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPriority, spec.Metadata.Priority)
		})
	}
}

func TestSignalsFromEnv(t *testing.T) {
	t.Run("empty environment", func(t *testing.T) {
		t.Setenv(constants.SchedulingTierEnv, "")
		t.Setenv(constants.SerializedJobSpecEnv, "")

		sig, err := SignalsFromEnv()
		require.NoError(t, err)
		assert.Equal(t, policy.TierDefault, sig.EffectiveTier())
		assert.Nil(t, sig.Priority)
	})

	t.Run("tier and priority set", func(t *testing.T) {
		t.Setenv(constants.SchedulingTierEnv, "1")
		t.Setenv(constants.SerializedJobSpecEnv, `{"metadata": {"priority": 4}}`)

		sig, err := SignalsFromEnv()
		require.NoError(t, err)
		assert.Equal(t, "1", sig.Tier)
		require.NotNil(t, sig.Priority)
		assert.Equal(t, int32(4), *sig.Priority)
	})

	t.Run("invalid descriptor is an error", func(t *testing.T) {
		t.Setenv(constants.SchedulingTierEnv, "")
		t.Setenv(constants.SerializedJobSpecEnv, "{{")

		_, err := SignalsFromEnv()
		assert.Error(t, err)
	})
}

