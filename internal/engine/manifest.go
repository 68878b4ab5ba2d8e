package engine

import (
	"fmt"

	"tenantplane/internal/store"
)

const (
	defaultCPUCores = 2
	defaultRAMMb    = 2048
	defaultDiskGb   = 20
)

// BuildQuotaManifest renders the ResourceQuota and LimitRange applied to a
// tenant namespace. The schema is fixed and fully controlled here, so plain
// string templating is used instead of a YAML library. Per-container defaults
// are derived from the namespace quota: requests at a quarter, limits at
// half, with floors of 1 core / 256Mi and 1 core / 512Mi.
func BuildQuotaManifest(namespace string, res store.Resources) string {
	cpu := res.CPUCores
	if cpu <= 0 {
		cpu = defaultCPUCores
	}
	ram := res.RAMMb
	if ram <= 0 {
		ram = defaultRAMMb
	}
	disk := res.DiskGb
	if disk <= 0 {
		disk = defaultDiskGb
	}

	reqCPU := max(1, cpu/4)
	limCPU := max(1, cpu/2)
	reqMem := max(256, ram/4)
	limMem := max(512, ram/2)

	return fmt.Sprintf(`apiVersion: v1
kind: ResourceQuota
metadata:
  name: user-quota
  namespace: %[1]s
spec:
  hard:
    requests.cpu: "%[2]d"
    requests.memory: "%[3]dMi"
    requests.storage: "%[4]dGi"
    limits.cpu: "%[2]d"
    limits.memory: "%[3]dMi"
---
apiVersion: v1
kind: LimitRange
metadata:
  name: default-limits
  namespace: %[1]s
spec:
  limits:
  - type: Container
    defaultRequest:
      cpu: "%[5]d"
      memory: "%[6]dMi"
    default:
      cpu: "%[7]d"
      memory: "%[8]dMi"
`, namespace, cpu, ram, disk, reqCPU, reqMem, limCPU, limMem)
}
