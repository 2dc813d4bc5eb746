// Package config loads provisioner settings from a YAML file and applies
// the defaults that keep polling behavior uniform across backends.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/accelstack/pool-provisioner/internal/constants"
)

// Config is the provisioner-level configuration. Per-job settings come from
// the job request, never from here.
type Config struct {
	// Name identifies this provisioner instance. It is stamped on every
	// node pool so concurrent provisioners never touch each other's pools.
	Name string `json:"name"`

	// Backend selects the node pool client: gke, karpenter, aws, alibaba
	// or mock.
	Backend string `json:"backend"`

	Project string `json:"project,omitempty"`
	// Zone or region, depending on backend.
	Zone    string `json:"zone,omitempty"`
	Cluster string `json:"cluster,omitempty"`

	ServiceAccountEmail string `json:"serviceAccountEmail,omitempty"`

	// RetryInterval is the pause between provisioning status polls.
	RetryInterval metav1.Duration `json:"retryInterval,omitempty"`
	// WaitTimeout bounds how long a single create or delete episode may run.
	WaitTimeout metav1.Duration `json:"waitTimeout,omitempty"`

	// CatalogPath optionally overlays extra capacity shapes on the builtin
	// accelerator catalog.
	CatalogPath string `json:"catalogPath,omitempty"`

	// ExtraParams carries backend-specific settings, keyed with a backend
	// prefix such as karpenter.nodeClassName or aws.imageId.
	ExtraParams map[string]string `json:"extraParams,omitempty"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RetryInterval.Duration <= 0 {
		c.RetryInterval = metav1.Duration{Duration: constants.DefaultRetryInterval}
	}
	if c.WaitTimeout.Duration <= 0 {
		c.WaitTimeout = metav1.Duration{Duration: constants.DefaultWaitTimeout}
	}
	if c.ExtraParams == nil {
		c.ExtraParams = map[string]string{}
	}
}

func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("provisioner name must not be empty")
	}
	switch strings.ToLower(c.Backend) {
	case "gke":
		if c.Project == "" || c.Zone == "" || c.Cluster == "" {
			return fmt.Errorf("gke backend requires project, zone and cluster")
		}
	case "aws", "alibaba":
		if c.Zone == "" {
			return fmt.Errorf("%s backend requires a region in the zone field", c.Backend)
		}
	case "karpenter", "mock":
	case "":
		return fmt.Errorf("backend must not be empty")
	default:
		return fmt.Errorf("unsupported backend: %s", c.Backend)
	}
	if c.RetryInterval.Duration > c.WaitTimeout.Duration {
		return fmt.Errorf("retryInterval %s exceeds waitTimeout %s",
			c.RetryInterval.Duration, c.WaitTimeout.Duration)
	}
	return nil
}

// PollSettings returns the effective polling cadence and bound.
func (c *Config) PollSettings() (retryInterval, waitTimeout time.Duration) {
	return c.RetryInterval.Duration, c.WaitTimeout.Duration
}
