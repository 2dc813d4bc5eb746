// Package gke manages GKE node pools through the container API. This is the
// reference control plane: one NodePoolSpec maps to one GKE node pool, with
// spot capacity, specific-reservation affinity and TPU placement topology
// expressed in the pool's config.
package gke

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/container/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/accelstack/pool-provisioner/internal/cloudprovider/types"
	"github.com/accelstack/pool-provisioner/internal/constants"
)

const (
	// reservationNameKey is the affinity key GKE expects for consuming a
	// specific reservation.
	reservationNameKey = "compute.googleapis.com/reservation-name"

	consumeSpecificReservation = "SPECIFIC_RESERVATION"
	placementTypeCompact       = "COMPACT"
)

type Client struct {
	svc      *container.Service
	project  string
	location string
	cluster  string
}

var _ types.NodePoolClient = (*Client)(nil)

func NewClient(ctx context.Context, project, location, cluster string, opts ...option.ClientOption) (*Client, error) {
	if project == "" || location == "" || cluster == "" {
		return nil, fmt.Errorf("gke client requires project, location and cluster")
	}
	svc, err := container.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create container service: %w", err)
	}
	return &Client{svc: svc, project: project, location: location, cluster: cluster}, nil
}

func (c *Client) TestConnection() error {
	_, err := c.svc.Projects.Locations.Clusters.Get(c.clusterName()).Do()
	if err != nil {
		return fmt.Errorf("cannot reach cluster %s: %w", c.clusterName(), err)
	}
	return nil
}

func (c *Client) CreatePool(ctx context.Context, spec *types.NodePoolSpec) error {
	req := &container.CreateNodePoolRequest{NodePool: c.buildNodePool(spec)}
	_, err := c.svc.Projects.Locations.Clusters.NodePools.Create(c.clusterName(), req).Context(ctx).Do()
	if isStatus(err, http.StatusConflict) {
		// Pool already exists: the create is satisfied, not in conflict.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create node pool %q: %w", spec.Name, err)
	}
	return nil
}

func (c *Client) DeletePool(ctx context.Context, name string) error {
	_, err := c.svc.Projects.Locations.Clusters.NodePools.Delete(c.poolName(name)).Context(ctx).Do()
	if isStatus(err, http.StatusNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete node pool %q: %w", name, err)
	}
	return nil
}

func (c *Client) PoolStatus(ctx context.Context, name string) (*types.NodePoolStatus, error) {
	pool, err := c.svc.Projects.Locations.Clusters.NodePools.Get(c.poolName(name)).Context(ctx).Do()
	if isStatus(err, http.StatusNotFound) {
		return &types.NodePoolStatus{Name: name, Phase: types.PoolPhaseAbsent}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node pool %q: %w", name, err)
	}

	status := &types.NodePoolStatus{
		Name:      name,
		NodeCount: int32(pool.InitialNodeCount),
		Message:   pool.StatusMessage,
	}
	switch pool.Status {
	case "PROVISIONING", "RECONCILING":
		status.Phase = types.PoolPhaseProvisioning
	case "RUNNING":
		status.Phase = types.PoolPhaseReady
	case "RUNNING_WITH_ERROR", "ERROR":
		status.Phase = types.PoolPhaseError
	case "STOPPING":
		status.Phase = types.PoolPhaseStopping
	default:
		status.Phase = types.PoolPhaseUnknown
	}
	return status, nil
}

func (c *Client) buildNodePool(spec *types.NodePoolSpec) *container.NodePool {
	labels := map[string]string{
		constants.LabelKeyOwner: constants.OwnerValue,
	}
	for k, v := range spec.Labels {
		labels[k] = v
	}
	if spec.LocationHint != "" {
		labels[constants.LabelLocationHint] = spec.LocationHint
	}
	if spec.ICIResilient {
		labels[constants.LabelTPUICIResiliency] = constants.TrueStringValue
	}

	cfg := &container.NodeConfig{
		MachineType:    spec.MachineType,
		Labels:         labels,
		ServiceAccount: spec.ServiceAccount,
		Spot:           spec.CapacityType == types.CapacityTypeSpot,
	}
	if spec.Reservation != "" {
		cfg.ReservationAffinity = &container.ReservationAffinity{
			ConsumeReservationType: consumeSpecificReservation,
			Key:                    reservationNameKey,
			Values:                 []string{spec.Reservation},
		}
	}

	pool := &container.NodePool{
		Name:             spec.Name,
		InitialNodeCount: int64(spec.NodeCount),
		Config:           cfg,
	}
	if spec.Topology != "" {
		pool.PlacementPolicy = &container.PlacementPolicy{
			Type:        placementTypeCompact,
			TpuTopology: spec.Topology,
		}
	}
	return pool
}

func (c *Client) clusterName() string {
	return fmt.Sprintf("projects/%s/locations/%s/clusters/%s", c.project, c.location, c.cluster)
}

func (c *Client) poolName(pool string) string {
	return c.clusterName() + "/nodePools/" + pool
}

func isStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}
