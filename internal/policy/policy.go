package policy

import (
	"context"

	"sigs.k8s.io/controller-runtime/pkg/log"

	v1 "github.com/accelstack/pool-provisioner/api/v1"
	"github.com/accelstack/pool-provisioner/internal/catalog"
	"github.com/accelstack/pool-provisioner/internal/cloudprovider/types"
)

// TierDefault is the top scheduling tier, the only tier allowed to consume
// reserved capacity. An absent tier signal means the top tier.
const TierDefault = "0"

// Signals are the out-of-band scheduling inputs of one episode. They are
// sourced by the caller (see the jobspec package) and passed in explicitly
// so the policy stays a pure function.
type Signals struct {
	Tier string
	// Priority is the job's scheduling priority when the job descriptor
	// supplied one. It does not influence the capacity decision; it only
	// surfaces as a node label.
	Priority *int32
}

// EffectiveTier normalizes the tier signal.
func (s Signals) EffectiveTier() string {
	if s.Tier == "" {
		return TierDefault
	}
	return s.Tier
}

// Decision is the resolved capacity class and topology of one episode.
// UseSpot and a non-empty Reservation are mutually exclusive.
type Decision struct {
	UseSpot     bool
	Reservation string
	// Topology is left empty for inference jobs, which are requested
	// without an explicit topology constraint.
	Topology string
}

// CapacityType maps the decision onto the provider capacity type enum.
func (d Decision) CapacityType() types.CapacityTypeEnum {
	if d.UseSpot {
		return types.CapacityTypeSpot
	}
	if d.Reservation != "" {
		return types.CapacityTypeReserved
	}
	return types.CapacityTypeOnDemand
}

// Resolve decides spot vs reserved capacity and the topology to request.
// Reserved capacity is used only on the top tier; on any other tier the
// request falls back to spot and a requested reservation is discarded. The
// discard is intentional policy, not an error, but it is surfaced in the
// logs so callers can see their reservation was overridden.
func Resolve(ctx context.Context, job *v1.JobRequest, shape *catalog.CapacityShape, sig Signals) Decision {
	logger := log.FromContext(ctx)
	tier := sig.EffectiveTier()

	decision := Decision{}
	if tier == TierDefault && job.Reservation != "" {
		logger.Info("Using reserved capacity", "tier", tier, "reservation", job.Reservation)
		decision.Reservation = job.Reservation
	} else {
		decision.UseSpot = true
		if job.Reservation != "" {
			logger.Info("Discarding requested reservation, tier does not permit reserved capacity",
				"tier", tier, "reservation", job.Reservation)
		} else {
			logger.Info("Using spot capacity", "tier", tier)
		}
	}

	if job.Category != v1.JobCategoryInference {
		decision.Topology = shape.Topology
	}
	return decision
}
