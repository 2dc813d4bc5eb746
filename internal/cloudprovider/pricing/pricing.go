/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package pricing holds list prices per machine type so that provisioning
// episodes can log an estimated hourly cost. Prices are indicative only and
// never gate a provisioning decision.
package pricing

import (
	"github.com/accelstack/pool-provisioner/internal/cloudprovider/types"
)

// MachinePricing is the hourly USD list price of a single machine.
type MachinePricing struct {
	OnDemandPerHour float64
	SpotPerHour     float64
}

// Prices from public list pricing, us-central1 / us-east-1, rounded.
var machinePrices = map[string]MachinePricing{
	// GKE TPU hosts
	"ct4p-hightpu-4t":  {OnDemandPerHour: 12.88, SpotPerHour: 3.86},
	"ct5lp-hightpu-4t": {OnDemandPerHour: 4.80, SpotPerHour: 1.44},
	"ct5p-hightpu-4t":  {OnDemandPerHour: 16.96, SpotPerHour: 5.09},
	// GPU hosts
	"a3-highgpu-8g":  {OnDemandPerHour: 88.25, SpotPerHour: 26.48},
	"a2-highgpu-8g":  {OnDemandPerHour: 29.38, SpotPerHour: 8.82},
	"p5.48xlarge":    {OnDemandPerHour: 98.32, SpotPerHour: 39.33},
	"p4d.24xlarge":   {OnDemandPerHour: 32.77, SpotPerHour: 13.11},
	"ecs.gn8is.8xl":  {OnDemandPerHour: 28.64, SpotPerHour: 11.46},
	"ecs.gn7e-c16g1": {OnDemandPerHour: 24.20, SpotPerHour: 9.68},
}

// HourlyCost estimates the hourly cost of count machines of the given type.
// Reserved capacity is billed at the on-demand list price. Unknown machine
// types report zero so callers can log "unknown" instead of guessing.
func HourlyCost(machineType string, capacityType types.CapacityTypeEnum, count int32) (float64, bool) {
	price, ok := machinePrices[machineType]
	if !ok {
		return 0, false
	}
	perHour := price.OnDemandPerHour
	if capacityType == types.CapacityTypeSpot {
		perHour = price.SpotPerHour
	}
	return perHour * float64(count), true
}
