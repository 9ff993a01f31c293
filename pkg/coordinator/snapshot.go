package coordinator

import (
	"time"

	"github.com/nasmon/unraid/pkg/types"
)

// Category names one entity collection tracked by the coordinator. The
// values double as bucket names in the persistent state store.
type Category string

const (
	CategoryDisks  Category = "disks"
	CategoryShares Category = "shares"
	CategoryUPS    Category = "ups_devices"
	CategoryDocker Category = "docker_containers"
	CategoryVMs    Category = "vms"
)

// Categories lists every tracked category.
var Categories = []Category{
	CategoryDisks,
	CategoryShares,
	CategoryUPS,
	CategoryDocker,
	CategoryVMs,
}

// Snapshot is the full set of entities produced by one completed poll
// cycle, plus the live values owned by push streams. Snapshots are
// immutable; push updates replace the snapshot wholesale with a patched
// copy, so a reader holding a snapshot never sees it change underneath.
type Snapshot struct {
	ServerInfo *types.ServerInfo
	Metrics    *types.MetricsArray

	Disks      map[string]types.Disk
	Shares     map[string]types.Share
	UPSDevices map[string]types.UPSDevice
	Containers map[string]types.DockerContainer
	VMs        map[string]types.VirtualMachine

	// Live values, patched eagerly from push messages between polls.
	CPUUsage     float64
	Memory       types.MemoryUsage
	CPUTelemetry *types.CPUTelemetry

	TakenAt time.Time
}

// count returns the entity count for a category.
func (s *Snapshot) count(cat Category) int {
	switch cat {
	case CategoryDisks:
		return len(s.Disks)
	case CategoryShares:
		return len(s.Shares)
	case CategoryUPS:
		return len(s.UPSDevices)
	case CategoryDocker:
		return len(s.Containers)
	case CategoryVMs:
		return len(s.VMs)
	}
	return 0
}
