/*
Copyright 2024.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1

import "fmt"

// JobCategory tells the provisioner what kind of workload a job carries.
// The provisioner matches on this value, never on concrete caller types.
type JobCategory string

const (
	JobCategoryTraining  JobCategory = "training"
	JobCategoryInference JobCategory = "inference"
)

// JobRequest is the declarative resource request of one batch job. It is
// immutable for the duration of one provisioning episode; the provisioner
// only reads it.
type JobRequest struct {
	// Namespace and Name identify the job; together they are the idempotency
	// key for every node pool name derived from this request.
	Namespace string `json:"namespace"`
	Name      string `json:"name"`

	// AcceleratorType is resolved against the capacity catalog,
	// e.g. "tpu-v5litepod-16".
	AcceleratorType string `json:"acceleratorType"`

	// NumNodePools is the number of replica node pools to provision,
	// one per replica index.
	NumNodePools int32 `json:"numNodePools"`

	// Reservation is an optional reserved-capacity identifier. Honored only
	// when the scheduling tier permits reserved capacity; otherwise the
	// episode falls back to spot and the reservation is discarded.
	Reservation string `json:"reservation,omitempty"`

	// LocationHint is an optional placement hint forwarded to the control
	// plane as a node label.
	LocationHint string `json:"locationHint,omitempty"`

	// ICIResiliency requests inter-chip-interconnect resilient pools.
	ICIResiliency bool `json:"iciResiliency,omitempty"`

	// AutoRepair requests the vendor auto-restart behavior for pool nodes.
	AutoRepair bool `json:"autoRepair,omitempty"`

	Category JobCategory `json:"category"`
}

func (j *JobRequest) Validate() error {
	if j.Namespace == "" {
		return fmt.Errorf("job namespace must not be empty")
	}
	if j.Name == "" {
		return fmt.Errorf("job name must not be empty")
	}
	if j.AcceleratorType == "" {
		return fmt.Errorf("job %s/%s: accelerator type must not be empty", j.Namespace, j.Name)
	}
	if j.NumNodePools <= 0 {
		return fmt.Errorf("job %s/%s: numNodePools must be positive, got %d", j.Namespace, j.Name, j.NumNodePools)
	}
	if j.Category == "" {
		return fmt.Errorf("job %s/%s: category must not be empty", j.Namespace, j.Name)
	}
	return nil
}
