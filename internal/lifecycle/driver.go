// Package lifecycle drives node pool creation and deletion to completion.
// Backends expose idempotent one-shot primitives; this package owns the
// polling cadence, the episode timeout and the aggregation of per-pool
// outcomes, so every backend gets identical retry semantics.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/time/rate"
	"k8s.io/apimachinery/pkg/util/wait"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/accelstack/pool-provisioner/internal/cloudprovider/types"
	"github.com/accelstack/pool-provisioner/internal/constants"
)

// ErrIncomplete reports that at least one pool did not reach its target
// state within the episode timeout. Pools that did complete stay as they
// are; there is no rollback.
var ErrIncomplete = errors.New("node pool operation incomplete")

// PoolResult is the final state of one pool at the end of an episode.
type PoolResult struct {
	Name  string
	Phase types.PoolPhase
	Err   error
}

// BatchResult aggregates an episode across all pools of a job.
type BatchResult struct {
	Pools   []PoolResult
	Elapsed time.Duration
}

// Failed returns the names of pools that did not complete.
func (r *BatchResult) Failed() []string {
	return lo.FilterMap(r.Pools, func(p PoolResult, _ int) (string, bool) {
		return p.Name, p.Err != nil
	})
}

type Driver struct {
	client        types.NodePoolClient
	retryInterval time.Duration
	waitTimeout   time.Duration

	// limiter paces create calls across concurrent pool goroutines so a
	// wide job does not burst the provider's mutation quota.
	limiter *rate.Limiter
}

func NewDriver(client types.NodePoolClient, retryInterval, waitTimeout time.Duration) *Driver {
	if retryInterval <= 0 {
		retryInterval = constants.DefaultRetryInterval
	}
	if waitTimeout <= 0 {
		waitTimeout = constants.DefaultWaitTimeout
	}
	return &Driver{
		client:        client,
		retryInterval: retryInterval,
		waitTimeout:   waitTimeout,
		limiter:       rate.NewLimiter(rate.Limit(constants.CreateRequestsPerSecond), constants.CreateRequestsBurst),
	}
}

// CreatePools drives every spec to Ready, polling each pool independently.
// It returns the per-pool outcome plus ErrIncomplete if any pool failed or
// timed out. Completed pools are never rolled back.
func (d *Driver) CreatePools(ctx context.Context, specs []*types.NodePoolSpec) (*BatchResult, error) {
	start := time.Now()
	results := make([]PoolResult, len(specs))

	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec *types.NodePoolSpec) {
			defer wg.Done()
			results[i] = d.createOne(ctx, spec)
		}(i, spec)
	}
	wg.Wait()

	batch := &BatchResult{Pools: results, Elapsed: time.Since(start)}
	return batch, d.batchErr("create", batch)
}

// DeletePools drives every named pool to absence. Deleting a pool that does
// not exist is a no-op.
func (d *Driver) DeletePools(ctx context.Context, names []string) (*BatchResult, error) {
	start := time.Now()
	results := make([]PoolResult, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			results[i] = d.deleteOne(ctx, name)
		}(i, name)
	}
	wg.Wait()

	batch := &BatchResult{Pools: results, Elapsed: time.Since(start)}
	return batch, d.batchErr("delete", batch)
}

func (d *Driver) createOne(ctx context.Context, spec *types.NodePoolSpec) PoolResult {
	logger := log.FromContext(ctx).WithValues("pool", spec.Name)
	result := PoolResult{Name: spec.Name, Phase: types.PoolPhaseUnknown}

	if err := d.limiter.Wait(ctx); err != nil {
		result.Err = err
		return result
	}
	if err := d.client.CreatePool(ctx, spec); err != nil {
		// Transient create failures are retried on the poll cadence below.
		logger.Error(err, "Initial node pool create failed, will retry")
	}

	var lastMessage string
	err := wait.PollUntilContextTimeout(ctx, d.retryInterval, d.waitTimeout, true,
		func(ctx context.Context) (bool, error) {
			status, err := d.client.PoolStatus(ctx, spec.Name)
			if err != nil {
				logger.Error(err, "Failed to poll node pool status")
				return false, nil
			}
			result.Phase = status.Phase
			lastMessage = status.Message

			switch status.Phase {
			case types.PoolPhaseReady:
				return true, nil
			case types.PoolPhaseAbsent, types.PoolPhasePending:
				// The pool is missing or short of nodes. CreatePool is
				// idempotent so another pass only fills the gap.
				if err := d.client.CreatePool(ctx, spec); err != nil {
					logger.Error(err, "Node pool create retry failed")
				}
			case types.PoolPhaseError:
				logger.Info("Node pool reported an error, waiting for recovery", "message", status.Message)
			}
			return false, nil
		})
	if err != nil {
		if lastMessage != "" {
			result.Err = fmt.Errorf("pool %q stuck in phase %s (%s): %w", spec.Name, result.Phase, lastMessage, err)
		} else {
			result.Err = fmt.Errorf("pool %q stuck in phase %s: %w", spec.Name, result.Phase, err)
		}
		return result
	}

	logger.Info("Node pool ready", "nodes", spec.NodeCount)
	return result
}

func (d *Driver) deleteOne(ctx context.Context, name string) PoolResult {
	logger := log.FromContext(ctx).WithValues("pool", name)
	result := PoolResult{Name: name, Phase: types.PoolPhaseUnknown}

	if err := d.client.DeletePool(ctx, name); err != nil {
		logger.Error(err, "Initial node pool delete failed, will retry")
	}

	err := wait.PollUntilContextTimeout(ctx, d.retryInterval, d.waitTimeout, true,
		func(ctx context.Context) (bool, error) {
			status, err := d.client.PoolStatus(ctx, name)
			if err != nil {
				logger.Error(err, "Failed to poll node pool status")
				return false, nil
			}
			result.Phase = status.Phase

			switch status.Phase {
			case types.PoolPhaseAbsent:
				return true, nil
			case types.PoolPhaseStopping:
				// Deletion in flight, keep waiting.
			default:
				if err := d.client.DeletePool(ctx, name); err != nil {
					logger.Error(err, "Node pool delete retry failed")
				}
			}
			return false, nil
		})
	if err != nil {
		result.Err = fmt.Errorf("pool %q still present in phase %s: %w", name, result.Phase, err)
		return result
	}

	logger.Info("Node pool deleted")
	return result
}

func (d *Driver) batchErr(op string, batch *BatchResult) error {
	failed := batch.Failed()
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%s of %d/%d pools failed (%s): %w",
		op, len(failed), len(batch.Pools), strings.Join(failed, ", "), ErrIncomplete)
}
