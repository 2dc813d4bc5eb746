// Package alibaba backs node pools with Aliyun ECS instances tagged with the
// pool name. The ECS RunInstances client token is keyed on the pool so that
// retried creates of the same pool never double-provision.
package alibaba

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aliyun/alibaba-cloud-sdk-go/sdk/requests"
	"github.com/aliyun/alibaba-cloud-sdk-go/services/ecs"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/accelstack/pool-provisioner/internal/cloudprovider/types"
	"github.com/accelstack/pool-provisioner/internal/constants"
)

type Client struct {
	ecsClient *ecs.Client
	region    string

	extraParams map[string]string
}

var _ types.NodePoolClient = (*Client)(nil)

func NewClient(ctx context.Context, region, accessKey, secretKey string, extraParams map[string]string) (*Client, error) {
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("empty access key or secret key, can not create alibaba client")
	}
	ecsClient, err := ecs.NewClientWithAccessKey(region, accessKey, secretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create ECS client: %w", err)
	}
	client := &Client{ecsClient: ecsClient, region: region, extraParams: extraParams}
	if err := client.TestConnection(); err != nil {
		return nil, err
	}
	log.FromContext(ctx).Info("Successfully connected to Aliyun ECS", "region", region)
	return client, nil
}

func (c *Client) TestConnection() error {
	request := ecs.CreateDescribeRegionsRequest()
	if _, err := c.ecsClient.DescribeRegions(request); err != nil {
		return fmt.Errorf("can not connect to Aliyun ECS API: %w", err)
	}
	return nil
}

func (c *Client) CreatePool(ctx context.Context, spec *types.NodePoolSpec) error {
	existing, err := c.poolInstances(spec.Name)
	if err != nil {
		return err
	}
	missing := int(spec.NodeCount) - len(existing)
	if missing <= 0 {
		return nil
	}

	request := ecs.CreateRunInstancesRequest()
	request.RegionId = c.region
	request.InstanceType = spec.MachineType
	request.InstanceName = spec.Name
	request.Amount = requests.NewInteger(missing)
	// The token is keyed on the observed pool size, so a blind retry of the
	// same gap is deduplicated by ECS while a later fill-in request is not.
	request.ClientToken = fmt.Sprintf("%s-%d", spec.Name, len(existing))

	tags := []ecs.RunInstancesTag{
		{Key: constants.LabelKeyOwner, Value: constants.OwnerValue},
		{Key: constants.LabelKeyNodePool, Value: spec.Name},
		{Key: constants.AnnotationPoolNodeCount, Value: strconv.Itoa(int(spec.NodeCount))},
	}
	for k, v := range spec.Labels {
		tags = append(tags, ecs.RunInstancesTag{Key: k, Value: v})
	}
	if spec.Topology != "" {
		tags = append(tags, ecs.RunInstancesTag{Key: constants.LabelTopology, Value: spec.Topology})
	}
	request.Tag = &tags

	if err := c.applyExtraParams(request, spec); err != nil {
		return err
	}

	response, err := c.ecsClient.RunInstances(request)
	if err != nil {
		return fmt.Errorf("failed to create %d instances for pool %q: %w", missing, spec.Name, err)
	}
	if !response.IsSuccess() {
		return fmt.Errorf("instance creation for pool %q failed: %s", spec.Name, response.String())
	}
	return nil
}

func (c *Client) DeletePool(ctx context.Context, name string) error {
	existing, err := c.poolInstances(name)
	if err != nil {
		return err
	}
	for _, instance := range existing {
		request := ecs.CreateDeleteInstanceRequest()
		request.RegionId = c.region
		request.InstanceId = instance.InstanceId
		request.Force = requests.NewBoolean(true)
		response, err := c.ecsClient.DeleteInstance(request)
		if err != nil {
			return fmt.Errorf("failed to terminate instance %s of pool %q: %w", instance.InstanceId, name, err)
		}
		if !response.IsSuccess() {
			return fmt.Errorf("termination of instance %s failed: %s", instance.InstanceId, response.String())
		}
	}
	return nil
}

func (c *Client) PoolStatus(ctx context.Context, name string) (*types.NodePoolStatus, error) {
	instances, err := c.poolInstances(name)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return &types.NodePoolStatus{Name: name, Phase: types.PoolPhaseAbsent}, nil
	}

	desired := len(instances)
	running, stopping := 0, 0
	var earliest time.Time
	for _, instance := range instances {
		for _, tag := range instance.Tags.Tag {
			if tag.TagKey == constants.AnnotationPoolNodeCount {
				if parsed, err := strconv.Atoi(tag.TagValue); err == nil {
					desired = parsed
				}
			}
		}
		switch instance.Status {
		case "Running":
			running++
		case "Stopping":
			stopping++
		}
		if createTime, err := time.Parse(time.RFC3339, instance.CreationTime); err == nil {
			if earliest.IsZero() || createTime.Before(earliest) {
				earliest = createTime
			}
		}
	}

	status := &types.NodePoolStatus{
		Name:      name,
		NodeCount: int32(running),
		CreatedAt: earliest,
	}
	switch {
	case stopping > 0:
		status.Phase = types.PoolPhaseStopping
	case len(instances) < desired:
		status.Phase = types.PoolPhasePending
		status.Message = fmt.Sprintf("%d of %d instances requested", len(instances), desired)
	case running < desired:
		status.Phase = types.PoolPhaseProvisioning
		status.Message = fmt.Sprintf("%d of %d instances running", running, desired)
	default:
		status.Phase = types.PoolPhaseReady
	}
	return status, nil
}

func (c *Client) poolInstances(name string) ([]ecs.Instance, error) {
	request := ecs.CreateDescribeInstancesRequest()
	request.RegionId = c.region
	request.PageSize = requests.NewInteger(100)
	request.Tag = &[]ecs.DescribeInstancesTag{
		{Key: constants.LabelKeyNodePool, Value: name},
	}
	response, err := c.ecsClient.DescribeInstances(request)
	if err != nil {
		return nil, fmt.Errorf("failed to describe instances of pool %q: %w", name, err)
	}
	return response.Instances.Instance, nil
}

func (c *Client) applyExtraParams(request *ecs.RunInstancesRequest, spec *types.NodePoolSpec) error {
	if c.extraParams["alibaba.vSwitchId"] != "" {
		request.VSwitchId = c.extraParams["alibaba.vSwitchId"]
	}
	if c.extraParams["alibaba.securityGroupId"] != "" {
		request.SecurityGroupId = c.extraParams["alibaba.securityGroupId"]
	}
	if c.extraParams["alibaba.imageId"] != "" {
		request.ImageId = c.extraParams["alibaba.imageId"]
	}
	if c.extraParams["alibaba.keyPairName"] != "" {
		request.KeyPairName = c.extraParams["alibaba.keyPairName"]
	}
	if c.extraParams["alibaba.systemDiskCategory"] != "" {
		request.SystemDiskCategory = c.extraParams["alibaba.systemDiskCategory"]
	} else {
		request.SystemDiskCategory = "cloud_essd"
	}
	if c.extraParams["alibaba.systemDiskSize"] != "" {
		request.SystemDiskSize = c.extraParams["alibaba.systemDiskSize"]
	} else {
		// 40G is enough for most cases
		request.SystemDiskSize = "40"
	}

	if spec.CapacityType == types.CapacityTypeSpot {
		if c.extraParams["alibaba.spotPriceLimit"] != "" {
			priceLimit, err := strconv.ParseFloat(c.extraParams["alibaba.spotPriceLimit"], 64)
			if err != nil {
				return fmt.Errorf("invalid alibaba.spotPriceLimit: %w", err)
			}
			request.SpotPriceLimit = requests.NewFloat(priceLimit)
			request.SpotStrategy = "SpotWithPriceLimit"
		} else {
			request.SpotStrategy = "SpotAsPriceGo"
		}
	}
	request.Description = "Accelerator pool node managed by " + constants.OwnerValue
	return nil
}
