package constants

// Scheduling signal envs, set by the job submission layer.
const (
	// SchedulingTierEnv carries the scheduling tier of the current job.
	// Absent or empty means the top tier ("0"), which is the only tier
	// allowed to consume reserved capacity.
	SchedulingTierEnv = "PROVISIONER_SCHEDULING_TIER"

	// SerializedJobSpecEnv carries the serialized job descriptor of the
	// current job, when the submission layer provides one. Only
	// metadata.priority is consumed here.
	SerializedJobSpecEnv = "PROVISIONER_SERIALIZED_JOBSPEC"
)
