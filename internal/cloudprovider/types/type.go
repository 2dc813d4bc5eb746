package types

import (
	"context"
	"time"
)

type CapacityTypeEnum string

const (
	CapacityTypeOnDemand CapacityTypeEnum = "on-demand"

	CapacityTypeReserved CapacityTypeEnum = "Reserved"

	// Spot and Preemptive are aliases of each other, used by different providers
	CapacityTypeSpot CapacityTypeEnum = "Spot"
)

// NodePoolSpec is the fully derived request for one node pool. It is
// materialized before any control plane call and never mutated afterwards.
type NodePoolSpec struct {
	// Name is unique within a cluster and stable across retries of the same
	// episode; it is the idempotency key for create and delete.
	Name string

	NodeCount   int32
	MachineType string

	// Topology is the interconnect topology to request, empty when the pool
	// is requested without an explicit topology constraint.
	Topology string

	CapacityType CapacityTypeEnum
	// Reservation names the reserved capacity to consume. Set only when
	// CapacityType is CapacityTypeReserved.
	Reservation string

	LocationHint   string
	ICIResilient   bool
	ServiceAccount string

	Labels map[string]string
}

type PoolPhase string

const (
	PoolPhaseUnknown PoolPhase = "Unknown"
	// PoolPhaseAbsent means the control plane has no trace of the pool.
	PoolPhaseAbsent PoolPhase = "Absent"
	// PoolPhasePending means the pool exists but is incomplete and needs
	// another create pass (e.g. some of its nodes were never requested).
	PoolPhasePending PoolPhase = "Pending"
	// PoolPhaseProvisioning means the control plane accepted the full pool
	// and is still bringing nodes up.
	PoolPhaseProvisioning PoolPhase = "Provisioning"
	PoolPhaseReady        PoolPhase = "Ready"
	PoolPhaseStopping     PoolPhase = "Stopping"
	PoolPhaseError        PoolPhase = "Error"
)

// NodePoolStatus is the observed state of one pool.
type NodePoolStatus struct {
	Name  string
	Phase PoolPhase
	// Message carries the control plane's own wording for degraded phases.
	Message   string
	NodeCount int32
	CreatedAt time.Time
}

// NodePoolClient is a control-plane client for node pools. Implementations
// must be idempotent: creating a pool that already exists in the desired
// state succeeds, deleting an absent pool succeeds, and an absent pool is a
// status, not an error. Transient control plane failures are returned as
// errors; the lifecycle driver retries them until its deadline.
type NodePoolClient interface {
	TestConnection() error

	CreatePool(ctx context.Context, spec *NodePoolSpec) error
	DeletePool(ctx context.Context, name string) error
	PoolStatus(ctx context.Context, name string) (*NodePoolStatus, error)
}
