// Package aws backs node pools with plain EC2 instances: a pool of N nodes
// is N instances tagged with the pool name. Spot capacity maps to the spot
// market, reserved capacity to a capacity reservation target.
package aws

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2Types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/accelstack/pool-provisioner/internal/cloudprovider/types"
	"github.com/accelstack/pool-provisioner/internal/constants"
)

type Client struct {
	ec2Client *ec2.Client

	// Backend-specific launch settings from the provisioner's extra params.
	imageID         string
	subnetID        string
	securityGroupID string
}

var _ types.NodePoolClient = (*Client)(nil)

func NewClient(_ context.Context, region string, extraParams map[string]string) (*Client, error) {
	if region == "" {
		return nil, fmt.Errorf("aws backend requires a region")
	}
	if extraParams["aws.imageId"] == "" {
		return nil, fmt.Errorf("aws backend requires extra param aws.imageId")
	}

	// IAM role credentials only for now, matching the in-cluster deployment.
	awsCfg := aws.Config{Region: region}
	return &Client{
		ec2Client:       ec2.NewFromConfig(awsCfg),
		imageID:         extraParams["aws.imageId"],
		subnetID:        extraParams["aws.subnetId"],
		securityGroupID: extraParams["aws.securityGroupId"],
	}, nil
}

func (c *Client) TestConnection() error {
	_, err := c.ec2Client.DescribeInstances(context.Background(), &ec2.DescribeInstancesInput{})
	return err
}

func (c *Client) CreatePool(ctx context.Context, spec *types.NodePoolSpec) error {
	existing, err := c.poolInstances(ctx, spec.Name, "pending", "running")
	if err != nil {
		return err
	}
	missing := int(spec.NodeCount) - len(existing)
	if missing <= 0 {
		return nil
	}

	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(c.imageID),
		InstanceType: ec2Types.InstanceType(spec.MachineType),
		MinCount:     aws.Int32(int32(missing)),
		MaxCount:     aws.Int32(int32(missing)),
		TagSpecifications: []ec2Types.TagSpecification{
			{
				ResourceType: ec2Types.ResourceTypeInstance,
				Tags:         c.poolTags(spec),
			},
		},
	}
	if c.subnetID != "" {
		input.SubnetId = aws.String(c.subnetID)
	}
	if c.securityGroupID != "" {
		input.SecurityGroupIds = []string{c.securityGroupID}
	}
	switch {
	case spec.CapacityType == types.CapacityTypeSpot:
		input.InstanceMarketOptions = &ec2Types.InstanceMarketOptionsRequest{
			MarketType: ec2Types.MarketTypeSpot,
		}
	case spec.Reservation != "":
		input.CapacityReservationSpecification = &ec2Types.CapacityReservationSpecification{
			CapacityReservationTarget: &ec2Types.CapacityReservationTarget{
				CapacityReservationId: aws.String(spec.Reservation),
			},
		}
	}

	if _, err := c.ec2Client.RunInstances(ctx, input); err != nil {
		return fmt.Errorf("failed to create %d instances for pool %q: %w", missing, spec.Name, err)
	}
	return nil
}

func (c *Client) DeletePool(ctx context.Context, name string) error {
	existing, err := c.poolInstances(ctx, name, "pending", "running", "stopping", "stopped")
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return nil
	}
	ids := make([]string, 0, len(existing))
	for _, inst := range existing {
		ids = append(ids, aws.ToString(inst.InstanceId))
	}
	if _, err := c.ec2Client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: ids}); err != nil {
		return fmt.Errorf("failed to terminate instances of pool %q: %w", name, err)
	}
	return nil
}

func (c *Client) PoolStatus(ctx context.Context, name string) (*types.NodePoolStatus, error) {
	instances, err := c.poolInstances(ctx, name, "pending", "running", "shutting-down", "stopping")
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return &types.NodePoolStatus{Name: name, Phase: types.PoolPhaseAbsent}, nil
	}

	desired := len(instances)
	running, terminating := 0, 0
	var earliest time.Time
	for _, inst := range instances {
		for _, tag := range inst.Tags {
			if aws.ToString(tag.Key) == constants.AnnotationPoolNodeCount {
				if parsed, err := strconv.Atoi(aws.ToString(tag.Value)); err == nil {
					desired = parsed
				}
			}
		}
		if inst.State != nil {
			switch inst.State.Name {
			case ec2Types.InstanceStateNameRunning:
				running++
			case ec2Types.InstanceStateNameShuttingDown, ec2Types.InstanceStateNameStopping:
				terminating++
			}
		}
		if inst.LaunchTime != nil && (earliest.IsZero() || inst.LaunchTime.Before(earliest)) {
			earliest = *inst.LaunchTime
		}
	}

	status := &types.NodePoolStatus{
		Name:      name,
		NodeCount: int32(running),
		CreatedAt: earliest,
	}
	switch {
	case terminating > 0:
		status.Phase = types.PoolPhaseStopping
	case len(instances)-terminating < desired:
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

func (c *Client) poolInstances(ctx context.Context, name string, states ...string) ([]ec2Types.Instance, error) {
	input := &ec2.DescribeInstancesInput{
		Filters: []ec2Types.Filter{
			{Name: aws.String("tag:" + constants.LabelKeyNodePool), Values: []string{name}},
			{Name: aws.String("instance-state-name"), Values: states},
		},
	}
	output, err := c.ec2Client.DescribeInstances(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to describe instances of pool %q: %w", name, err)
	}
	var instances []ec2Types.Instance
	for _, reservation := range output.Reservations {
		instances = append(instances, reservation.Instances...)
	}
	return instances, nil
}

func (c *Client) poolTags(spec *types.NodePoolSpec) []ec2Types.Tag {
	tags := []ec2Types.Tag{
		{Key: aws.String(constants.LabelKeyOwner), Value: aws.String(constants.OwnerValue)},
		{Key: aws.String(constants.LabelKeyNodePool), Value: aws.String(spec.Name)},
		{Key: aws.String(constants.AnnotationPoolNodeCount), Value: aws.String(strconv.Itoa(int(spec.NodeCount)))},
	}
	for k, v := range spec.Labels {
		tags = append(tags, ec2Types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	if spec.Topology != "" {
		tags = append(tags, ec2Types.Tag{
			Key:   aws.String(constants.LabelTopology),
			Value: aws.String(spec.Topology),
		})
	}
	return tags
}
