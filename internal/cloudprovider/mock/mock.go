// Package mock is an in-memory node pool client for tests.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/accelstack/pool-provisioner/internal/cloudprovider/types"
)

type record struct {
	spec      types.NodePoolSpec
	createdAt time.Time
}

type Client struct {
	mu    sync.Mutex
	pools map[string]*record

	readyAfter  time.Duration
	stuck       map[string]bool
	failCreates int

	createCalls int
	deleteCalls int
}

var _ types.NodePoolClient = (*Client)(nil)

type Option func(*Client)

// WithReadyAfter keeps created pools in the provisioning phase for d.
func WithReadyAfter(d time.Duration) Option {
	return func(c *Client) { c.readyAfter = d }
}

// WithStuckPools marks pools that never leave the provisioning phase.
func WithStuckPools(names ...string) Option {
	return func(c *Client) {
		for _, n := range names {
			c.stuck[n] = true
		}
	}
}

// WithTransientCreateFailures fails the first n create calls.
func WithTransientCreateFailures(n int) Option {
	return func(c *Client) { c.failCreates = n }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		pools: make(map[string]*record),
		stuck: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) TestConnection() error { return nil }

func (c *Client) CreatePool(_ context.Context, spec *types.NodePoolSpec) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createCalls++
	if c.failCreates > 0 {
		c.failCreates--
		return fmt.Errorf("transient control plane error creating pool %q", spec.Name)
	}
	if _, exists := c.pools[spec.Name]; exists {
		return nil
	}
	c.pools[spec.Name] = &record{spec: *spec, createdAt: time.Now()}
	return nil
}

func (c *Client) DeletePool(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteCalls++
	delete(c.pools, name)
	return nil
}

func (c *Client) PoolStatus(_ context.Context, name string) (*types.NodePoolStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, exists := c.pools[name]
	if !exists {
		return &types.NodePoolStatus{Name: name, Phase: types.PoolPhaseAbsent}, nil
	}
	status := &types.NodePoolStatus{
		Name:      name,
		Phase:     types.PoolPhaseReady,
		NodeCount: rec.spec.NodeCount,
		CreatedAt: rec.createdAt,
	}
	if c.stuck[name] || time.Since(rec.createdAt) < c.readyAfter {
		status.Phase = types.PoolPhaseProvisioning
	}
	return status, nil
}

// CreateCalls reports how many create RPCs the client has seen.
func (c *Client) CreateCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createCalls
}

// DeleteCalls reports how many delete RPCs the client has seen.
func (c *Client) DeleteCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deleteCalls
}

// Pool returns the stored spec of a pool, or nil when absent.
func (c *Client) Pool(name string) *types.NodePoolSpec {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.pools[name]; ok {
		spec := rec.spec
		return &spec
	}
	return nil
}
