// Package jobspec reads the out-of-band scheduling signals the job
// submission layer leaves in the process environment: the scheduling tier
// and the serialized job descriptor carrying a priority.
package jobspec

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/accelstack/pool-provisioner/internal/constants"
	"github.com/accelstack/pool-provisioner/internal/policy"
)

// JobSpec is the subset of the serialized job descriptor consumed here.
type JobSpec struct {
	Metadata Metadata `json:"metadata"`
}

type Metadata struct {
	Priority *int32 `json:"priority,omitempty"`
	User     string `json:"user,omitempty"`
}

// Decode parses a serialized job descriptor (JSON or YAML).
func Decode(data []byte) (*JobSpec, error) {
	spec := &JobSpec{}
	if err := yaml.Unmarshal(data, spec); err != nil {
		return nil, fmt.Errorf("failed to decode job descriptor: %w", err)
	}
	return spec, nil
}

// SignalsFromEnv assembles policy signals from the environment. This is the
// single place ambient process state is read; the policy itself only sees
// explicit parameters. An absent tier means the top tier, an absent or
// priority-less job descriptor means no priority label.
func SignalsFromEnv() (policy.Signals, error) {
	sig := policy.Signals{Tier: os.Getenv(constants.SchedulingTierEnv)}

	raw := os.Getenv(constants.SerializedJobSpecEnv)
	if raw == "" {
		return sig, nil
	}
	spec, err := Decode([]byte(raw))
	if err != nil {
		return sig, fmt.Errorf("invalid %s: %w", constants.SerializedJobSpecEnv, err)
	}
	sig.Priority = spec.Metadata.Priority
	return sig, nil
}
