// Package karpenter backs node pools with Karpenter NodeClaims: a pool of N
// nodes is N NodeClaims labeled with the pool name. Karpenter owns the cloud
// side; readiness is the Registered condition on every claim.
package karpenter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/client"
	karpv1 "sigs.k8s.io/karpenter/pkg/apis/v1"

	"github.com/accelstack/pool-provisioner/internal/cloudprovider/types"
	"github.com/accelstack/pool-provisioner/internal/constants"
)

var (
	initSchemeOnce sync.Once

	karpenterGroup   = "karpenter.sh"
	karpenterVersion = "v1"
	kindNodeClaim    = "NodeClaim"

	instanceTypeKey  = "node.kubernetes.io/instance-type"
	capacityTypeKey  = "karpenter.sh/capacity-type"
	reservationIDKey = "karpenter.k8s.aws/capacity-reservation-id"

	// https://karpenter.sh/docs/concepts/scheduling/#well-known-labels
	capacityTypeValues = map[types.CapacityTypeEnum]string{
		types.CapacityTypeOnDemand: "on-demand",
		types.CapacityTypeSpot:     "spot",
		types.CapacityTypeReserved: "reserved",
	}
)

// ExtraConfig holds Karpenter-specific settings parsed from the provisioner's
// extra params (keys prefixed with "karpenter.").
type ExtraConfig struct {
	NodeClass struct {
		Group string `mapstructure:"group"`
		Kind  string `mapstructure:"kind"`
		Name  string `mapstructure:"name"`
	} `mapstructure:"nodeclass"`
}

type Client struct {
	client client.Client
	extra  *ExtraConfig
	ctx    context.Context
}

var _ types.NodePoolClient = (*Client)(nil)

func NewClient(ctx context.Context, kube client.Client, extraParams map[string]string) (*Client, error) {
	if kube == nil {
		return nil, fmt.Errorf("kubernetes client cannot be nil")
	}

	extra, err := parseExtraConfig(extraParams)
	if err != nil {
		return nil, err
	}
	if extra.NodeClass.Name == "" {
		return nil, fmt.Errorf("karpenter backend requires extra param karpenter.nodeclass.name")
	}
	if extra.NodeClass.Group == "" {
		extra.NodeClass.Group = "karpenter.k8s.aws"
	}
	if extra.NodeClass.Kind == "" {
		extra.NodeClass.Kind = "EC2NodeClass"
	}

	initSchemeOnce.Do(func() {
		scheme := kube.Scheme()
		gv := schema.GroupVersion{Group: karpenterGroup, Version: karpenterVersion}
		if !scheme.Recognizes(gv.WithKind(kindNodeClaim)) {
			scheme.AddKnownTypes(gv, &karpv1.NodeClaim{}, &karpv1.NodeClaimList{})
			metav1.AddToGroupVersion(scheme, gv)
		}
	})

	return &Client{client: kube, extra: extra, ctx: ctx}, nil
}

func (c *Client) TestConnection() error {
	if err := c.client.List(context.Background(), &karpv1.NodeClaimList{}); err != nil {
		return fmt.Errorf("karpenter NodeClaim CRD not found or not accessible: %w", err)
	}
	return nil
}

func (c *Client) CreatePool(ctx context.Context, spec *types.NodePoolSpec) error {
	for n := int32(0); n < spec.NodeCount; n++ {
		claim := c.buildNodeClaim(spec, n)
		if err := c.client.Create(ctx, claim); err != nil {
			if apierrors.IsAlreadyExists(err) {
				continue
			}
			return fmt.Errorf("failed to create NodeClaim %q: %w", claim.Name, err)
		}
	}
	return nil
}

func (c *Client) DeletePool(ctx context.Context, name string) error {
	err := c.client.DeleteAllOf(ctx, &karpv1.NodeClaim{},
		client.MatchingLabels{constants.LabelKeyNodePool: name})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete NodeClaims of pool %q: %w", name, err)
	}
	return nil
}

func (c *Client) PoolStatus(ctx context.Context, name string) (*types.NodePoolStatus, error) {
	list := &karpv1.NodeClaimList{}
	err := c.client.List(ctx, list, client.MatchingLabels{constants.LabelKeyNodePool: name})
	if err != nil {
		return nil, fmt.Errorf("failed to list NodeClaims of pool %q: %w", name, err)
	}
	if len(list.Items) == 0 {
		return &types.NodePoolStatus{Name: name, Phase: types.PoolPhaseAbsent}, nil
	}

	desired := len(list.Items)
	if v, ok := list.Items[0].Annotations[constants.AnnotationPoolNodeCount]; ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			desired = parsed
		}
	}

	registered, deleting := 0, 0
	var earliest metav1.Time
	for i := range list.Items {
		claim := &list.Items[i]
		if !claim.DeletionTimestamp.IsZero() {
			deleting++
			continue
		}
		if isConditionTrue(claim, karpv1.ConditionTypeRegistered) {
			registered++
		}
		if earliest.IsZero() || claim.CreationTimestamp.Before(&earliest) {
			earliest = claim.CreationTimestamp
		}
	}

	status := &types.NodePoolStatus{
		Name:      name,
		NodeCount: int32(registered),
		CreatedAt: earliest.Time,
	}
	switch {
	case deleting > 0:
		status.Phase = types.PoolPhaseStopping
	case len(list.Items) < desired:
		status.Phase = types.PoolPhasePending
		status.Message = fmt.Sprintf("%d of %d NodeClaims requested", len(list.Items), desired)
	case registered < desired:
		status.Phase = types.PoolPhaseProvisioning
		status.Message = fmt.Sprintf("%d of %d NodeClaims registered", registered, desired)
	default:
		status.Phase = types.PoolPhaseReady
	}
	return status, nil
}

func (c *Client) buildNodeClaim(spec *types.NodePoolSpec, index int32) *karpv1.NodeClaim {
	labels := map[string]string{
		constants.LabelKeyOwner:    constants.OwnerValue,
		constants.LabelKeyNodePool: spec.Name,
	}
	for k, v := range spec.Labels {
		labels[k] = v
	}
	if spec.Topology != "" {
		labels[constants.LabelTopology] = spec.Topology
	}

	requirements := []karpv1.NodeSelectorRequirementWithMinValues{
		requirementIn(instanceTypeKey, spec.MachineType),
		requirementIn(capacityTypeKey, capacityTypeValues[spec.CapacityType]),
	}
	if spec.Reservation != "" {
		requirements = append(requirements, requirementIn(reservationIDKey, spec.Reservation))
	}

	return &karpv1.NodeClaim{
		TypeMeta: metav1.TypeMeta{
			APIVersion: fmt.Sprintf("%s/%s", karpenterGroup, karpenterVersion),
			Kind:       kindNodeClaim,
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:   fmt.Sprintf("%s-%d", spec.Name, index),
			Labels: labels,
			Annotations: map[string]string{
				constants.AnnotationPoolNodeCount: strconv.Itoa(int(spec.NodeCount)),
				// Pool membership is managed here, not by Karpenter's
				// consolidation.
				"karpenter.sh/do-not-disrupt": constants.TrueStringValue,
			},
		},
		Spec: karpv1.NodeClaimSpec{
			NodeClassRef: &karpv1.NodeClassReference{
				Group: c.extra.NodeClass.Group,
				Kind:  c.extra.NodeClass.Kind,
				Name:  c.extra.NodeClass.Name,
			},
			Requirements: requirements,
		},
	}
}

func requirementIn(key string, values ...string) karpv1.NodeSelectorRequirementWithMinValues {
	return karpv1.NodeSelectorRequirementWithMinValues{
		NodeSelectorRequirement: corev1.NodeSelectorRequirement{
			Key:      key,
			Operator: corev1.NodeSelectorOpIn,
			Values:   values,
		},
	}
}

func isConditionTrue(claim *karpv1.NodeClaim, conditionType string) bool {
	for _, cond := range claim.Status.Conditions {
		if cond.Type == conditionType && cond.Status == metav1.ConditionTrue {
			return true
		}
	}
	return false
}

// parseExtraConfig extracts karpenter.* keys from the flat extra params map
// into the nested ExtraConfig structure.
func parseExtraConfig(extraParams map[string]string) (*ExtraConfig, error) {
	cfg := &ExtraConfig{}
	data := make(map[string]any)
	for key, value := range extraParams {
		if !strings.HasPrefix(key, "karpenter.") {
			continue
		}
		setNestedValue(data, strings.TrimPrefix(key, "karpenter."), value)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      cfg,
		TagName:     "mapstructure",
		ErrorUnused: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build extra param decoder: %w", err)
	}
	if err := decoder.Decode(data); err != nil {
		return nil, fmt.Errorf("invalid karpenter extra params: %w", err)
	}
	return cfg, nil
}

// setNestedValue sets a value in a nested map, following a dot-separated path.
func setNestedValue(data map[string]any, path string, value string) {
	parts := strings.Split(path, ".")
	current := data
	for i := 0; i < len(parts)-1; i++ {
		part := parts[i]
		if _, exists := current[part]; !exists {
			current[part] = make(map[string]any)
		}
		nextMap, ok := current[part].(map[string]any)
		if !ok {
			return
		}
		current = nextMap
	}
	current[parts[len(parts)-1]] = value
}
