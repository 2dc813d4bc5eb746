// Package cloudprovider wires a configured backend name to the node pool
// client that implements it.
package cloudprovider

import (
	"context"
	"fmt"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/accelstack/pool-provisioner/internal/cloudprovider/alibaba"
	"github.com/accelstack/pool-provisioner/internal/cloudprovider/aws"
	"github.com/accelstack/pool-provisioner/internal/cloudprovider/common"
	"github.com/accelstack/pool-provisioner/internal/cloudprovider/gke"
	"github.com/accelstack/pool-provisioner/internal/cloudprovider/karpenter"
	"github.com/accelstack/pool-provisioner/internal/cloudprovider/mock"
	"github.com/accelstack/pool-provisioner/internal/cloudprovider/types"
	"github.com/accelstack/pool-provisioner/internal/config"
)

// NewNodePoolClient builds the backend named by cfg.Backend. kubeClient is
// only required by the karpenter backend and may be nil otherwise.
func NewNodePoolClient(ctx context.Context, cfg *config.Config, kubeClient client.Client) (types.NodePoolClient, error) {
	switch strings.ToLower(cfg.Backend) {
	case "gke":
		return gke.NewClient(ctx, cfg.Project, cfg.Zone, cfg.Cluster)
	case "karpenter":
		if kubeClient == nil {
			return nil, fmt.Errorf("karpenter backend requires a kubernetes client")
		}
		return karpenter.NewClient(ctx, kubeClient, cfg.ExtraParams)
	case "aws":
		return aws.NewClient(ctx, cfg.Zone, cfg.ExtraParams)
	case "alibaba":
		accessKey, err := common.GetAccessKeyOrSecretFromPath(cfg.ExtraParams["alibaba.accessKeyPath"])
		if err != nil {
			return nil, err
		}
		secretKey, err := common.GetAccessKeyOrSecretFromPath(cfg.ExtraParams["alibaba.secretKeyPath"])
		if err != nil {
			return nil, err
		}
		return alibaba.NewClient(ctx, cfg.Zone, accessKey, secretKey, cfg.ExtraParams)
	case "mock":
		return mock.NewClient(), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
}
