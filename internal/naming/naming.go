// Package naming derives node pool names and labels from a job's identity.
// Names and labels are deterministic: re-deriving them for the same job
// yields the same values, which is what makes create and delete episodes
// idempotent against the control plane.
package naming

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/accelstack/pool-provisioner/internal/constants"
)

// pairDigestLen is the number of digest hex chars embedded in every pool
// name. The plain "namespace-name" join is ambiguous when either part
// contains hyphens, so the digest is what keeps names of distinct jobs from
// ever colliding.
const pairDigestLen = 6

// PoolName derives the node pool name for one replica index, convention v1:
//
//	<namespace-name, truncated>-<sha1(namespace/name)[:6]>-<index>
//
// bounded to the control plane's 40 character limit, lowercase alphanumeric
// and hyphens only, starting with a letter. Injective over
// (namespace, name, index) up to sha1 collisions.
func PoolName(namespace, jobName string, index int) string {
	suffix := "-" + pairDigest(namespace, jobName) + "-" + strconv.Itoa(index)

	base := sanitize(namespace) + "-" + sanitize(jobName)
	if base[0] == '-' || base[0] >= '0' && base[0] <= '9' {
		base = "p" + base
	}
	if max := constants.MaxNodePoolNameLength - len(suffix); len(base) > max {
		base = strings.TrimRight(base[:max], "-")
	}
	return base + suffix
}

// PoolNames derives the full ordered name set of one episode.
func PoolNames(namespace, jobName string, numPools int32) []string {
	names := make([]string, 0, numPools)
	for i := 0; i < int(numPools); i++ {
		names = append(names, PoolName(namespace, jobName, i))
	}
	return names
}

// JobKey derives the scheduling affinity digest for one replica index,
// convention v1: the sha1 hex digest of "{namespace}/{name}-job-{index}".
// The jobset controller injects a node selector with exactly this value
// under the job-key label, so the pool label must match byte for byte.
func JobKey(namespace, jobName string, index int) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s/%s-job-%d", namespace, jobName, index)))
	return hex.EncodeToString(sum[:])
}

// LabelOptions are the conditional label inputs of one episode. Labels are
// additive only; nothing removes a label once it is derived.
type LabelOptions struct {
	ProvisionerID string
	Priority      *int32
	AutoRepair    bool
}

// PoolLabels derives the label set of one pool.
func PoolLabels(namespace, jobName string, index int, opts LabelOptions) map[string]string {
	labels := map[string]string{
		constants.LabelJobKey: JobKey(namespace, jobName, index),
	}
	if opts.ProvisionerID != "" {
		labels[constants.LabelPreProvisionerID] = opts.ProvisionerID
	}
	if opts.Priority != nil {
		labels[constants.LabelJobPriority] = strconv.FormatInt(int64(*opts.Priority), 10)
	}
	if opts.AutoRepair {
		labels[constants.LabelTPUAutoRestart] = constants.TrueStringValue
	}
	return labels
}

func pairDigest(namespace, jobName string) string {
	sum := sha1.Sum([]byte(namespace + "/" + jobName))
	return hex.EncodeToString(sum[:])[:pairDigestLen]
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
