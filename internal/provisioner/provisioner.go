// Package provisioner turns a job request into node pools and back. It is
// the only package that composes the catalog, the capacity policy, the
// naming convention and the lifecycle driver; callers hand it a job and get
// a fully driven provisioning episode.
package provisioner

import (
	"context"
	"errors"
	"fmt"

	"github.com/lithammer/shortuuid/v4"
	"sigs.k8s.io/controller-runtime/pkg/log"

	v1 "github.com/accelstack/pool-provisioner/api/v1"
	"github.com/accelstack/pool-provisioner/internal/catalog"
	"github.com/accelstack/pool-provisioner/internal/cloudprovider/pricing"
	"github.com/accelstack/pool-provisioner/internal/cloudprovider/types"
	"github.com/accelstack/pool-provisioner/internal/config"
	"github.com/accelstack/pool-provisioner/internal/lifecycle"
	"github.com/accelstack/pool-provisioner/internal/naming"
	"github.com/accelstack/pool-provisioner/internal/policy"
)

// ErrUnsupportedJob reports a job category this provisioner does not handle.
var ErrUnsupportedJob = errors.New("unsupported job category")

type Provisioner struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	driver  *lifecycle.Driver
}

func New(cfg *config.Config, cat *catalog.Catalog, client types.NodePoolClient) *Provisioner {
	retryInterval, waitTimeout := cfg.PollSettings()
	return &Provisioner{
		cfg:     cfg,
		catalog: cat,
		driver:  lifecycle.NewDriver(client, retryInterval, waitTimeout),
	}
}

// CreateFor provisions every node pool the job asks for and waits until all
// of them are ready. Re-running it for the same job is safe: names are
// deterministic and existing pools are left untouched.
func (p *Provisioner) CreateFor(ctx context.Context, job *v1.JobRequest, sig policy.Signals) error {
	episode := shortuuid.New()
	logger := log.FromContext(ctx).WithValues(
		"episode", episode, "job", job.Namespace+"/"+job.Name, "provisioner", p.cfg.Name)
	ctx = log.IntoContext(ctx, logger)

	specs, decision, shape, err := p.poolSpecs(ctx, job, sig)
	if err != nil {
		return err
	}

	logger.Info("Creating node pools",
		"pools", len(specs),
		"acceleratorType", job.AcceleratorType,
		"capacityType", decision.CapacityType(),
		"nodesPerPool", shape.NodesPerPool)

	batch, err := p.driver.CreatePools(ctx, specs)
	if batch != nil {
		totalNodes := int32(len(specs)) * shape.NodesPerPool
		if cost, known := pricing.HourlyCost(shape.MachineType, decision.CapacityType(), totalNodes); known {
			logger.Info("Node pool creation finished",
				"elapsedSeconds", batch.Elapsed.Seconds(),
				"failedPools", batch.Failed(),
				"estimatedHourlyCostUSD", fmt.Sprintf("%.2f", cost))
		} else {
			logger.Info("Node pool creation finished",
				"elapsedSeconds", batch.Elapsed.Seconds(),
				"failedPools", batch.Failed())
		}
	}
	return err
}

// DeleteFor deletes every node pool that CreateFor would have created for
// this job. It needs only the job identity, so it works for jobs whose
// pools were created by an earlier run.
func (p *Provisioner) DeleteFor(ctx context.Context, job *v1.JobRequest) error {
	episode := shortuuid.New()
	logger := log.FromContext(ctx).WithValues(
		"episode", episode, "job", job.Namespace+"/"+job.Name, "provisioner", p.cfg.Name)
	ctx = log.IntoContext(ctx, logger)

	if err := job.Validate(); err != nil {
		return err
	}

	names := naming.PoolNames(job.Namespace, job.Name, job.NumNodePools)
	logger.Info("Deleting node pools", "pools", len(names))

	batch, err := p.driver.DeletePools(ctx, names)
	if batch != nil {
		logger.Info("Node pool deletion finished",
			"elapsedSeconds", batch.Elapsed.Seconds(),
			"failedPools", batch.Failed())
	}
	return err
}

// poolSpecs derives every pool spec of the job up front, before any provider
// call, so a malformed request fails fast and leaves nothing behind.
func (p *Provisioner) poolSpecs(ctx context.Context, job *v1.JobRequest, sig policy.Signals) ([]*types.NodePoolSpec, policy.Decision, *catalog.CapacityShape, error) {
	if err := job.Validate(); err != nil {
		return nil, policy.Decision{}, nil, err
	}
	switch job.Category {
	case v1.JobCategoryTraining, v1.JobCategoryInference:
	default:
		return nil, policy.Decision{}, nil, fmt.Errorf("%w: %s", ErrUnsupportedJob, job.Category)
	}

	shape, err := p.catalog.Lookup(job.AcceleratorType)
	if err != nil {
		return nil, policy.Decision{}, nil, err
	}

	decision := policy.Resolve(ctx, job, shape, sig)

	specs := make([]*types.NodePoolSpec, 0, job.NumNodePools)
	for i := 0; i < int(job.NumNodePools); i++ {
		labels := naming.PoolLabels(job.Namespace, job.Name, i, naming.LabelOptions{
			ProvisionerID: p.cfg.Name,
			Priority:      sig.Priority,
			AutoRepair:    job.AutoRepair,
		})
		specs = append(specs, &types.NodePoolSpec{
			Name:           naming.PoolName(job.Namespace, job.Name, i),
			NodeCount:      shape.NodesPerPool,
			MachineType:    shape.MachineType,
			Topology:       decision.Topology,
			CapacityType:   decision.CapacityType(),
			Reservation:    decision.Reservation,
			LocationHint:   job.LocationHint,
			ICIResilient:   job.ICIResiliency,
			ServiceAccount: p.cfg.ServiceAccountEmail,
			Labels:         labels,
		})
	}
	return specs, decision, shape, nil
}
