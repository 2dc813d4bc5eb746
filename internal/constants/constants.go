package constants

import "time"

const (
	// Domain is the domain prefix used for all accelstack related labels and tags.
	Domain = "accelstack.io"

	LabelKeyOwner    = Domain + "/managed-by"
	LabelKeyNodePool = Domain + "/node-pool"
	OwnerValue       = "accelstack-pool-provisioner"

	TrueStringValue  = "true"
	FalseStringValue = "false"
)

// Cross-system label contract, convention v1. The cluster's jobset controller
// injects a node selector with exactly this key and a sha1 digest of
// "{namespace}/{jobName}-job-{index}" as value into every pod of the job;
// node pools must carry a matching label or pods never schedule. Do not
// change the key, the digest algorithm, or the input format without bumping
// the convention version everywhere.
const (
	LabelJobKey      = "job-key"
	LabelJobPriority = "job-priority"

	LabelPreProvisionerID = "pre-provisioner-id"
)

// GKE vendor labels carried on TPU node pools.
const (
	LabelTPUAutoRestart   = "cloud.google.com/gke-tpu-auto-restart"
	LabelTPUICIResiliency = "cloud.google.com/gke-tpu-ici-resiliency"
	LabelLocationHint     = "cloud.google.com/gke-location-hint"
)

const (
	// MaxNodePoolNameLength is the GKE node pool name limit.
	MaxNodePoolNameLength = 40

	DefaultRetryInterval = 30 * time.Second
	DefaultWaitTimeout   = 30 * time.Minute

	// Pools in one batch are created concurrently; pace the create RPCs so a
	// large episode does not trip control plane rate limits.
	CreateRequestsPerSecond = 2
	CreateRequestsBurst     = 4
)

const (
	AnnotationPoolNodeCount = Domain + "/pool-node-count"

	// LabelTopology carries the requested interconnect topology on backends
	// that have no native topology field.
	LabelTopology = Domain + "/tpu-topology"
)
