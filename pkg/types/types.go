package types

import "time"

// DiskStatus represents the array status of a disk as reported by Unraid.
type DiskStatus string

const (
	DiskStatusNotPresent         DiskStatus = "DISK_NP"
	DiskStatusOK                 DiskStatus = "DISK_OK"
	DiskStatusMissing            DiskStatus = "DISK_NP_MISSING"
	DiskStatusInvalid            DiskStatus = "DISK_INVALID"
	DiskStatusWrong              DiskStatus = "DISK_WRONG"
	DiskStatusDisabled           DiskStatus = "DISK_DSBL"
	DiskStatusNotPresentDisabled DiskStatus = "DISK_NP_DSBL"
	DiskStatusDisabledNew        DiskStatus = "DISK_DSBL_NEW"
	DiskStatusNew                DiskStatus = "DISK_NEW"
)

// DiskType identifies the role of a disk within the array.
type DiskType string

const (
	DiskTypeData   DiskType = "DATA"
	DiskTypeParity DiskType = "PARITY"
	DiskTypeFlash  DiskType = "FLASH"
	DiskTypeCache  DiskType = "CACHE"
)

// ArrayState represents the state of the storage array.
type ArrayState string

const (
	ArrayStateStarted             ArrayState = "STARTED"
	ArrayStateStopped             ArrayState = "STOPPED"
	ArrayStateNewArray            ArrayState = "NEW_ARRAY"
	ArrayStateReconDisk           ArrayState = "RECON_DISK"
	ArrayStateDisableDisk         ArrayState = "DISABLE_DISK"
	ArrayStateSwapDisabled        ArrayState = "SWAP_DSBL"
	ArrayStateInvalidExpansion    ArrayState = "INVALID_EXPANSION"
	ArrayStateParityNotBiggest    ArrayState = "PARITY_NOT_BIGGEST"
	ArrayStateTooManyMissingDisks ArrayState = "TOO_MANY_MISSING_DISKS"
	ArrayStateNewDiskTooSmall     ArrayState = "NEW_DISK_TOO_SMALL"
	ArrayStateNoDataDisks         ArrayState = "NO_DATA_DISKS"
)

// ParityCheckStatus represents the state of the most recent parity check.
// The empty string means the server did not report parity-check detail.
type ParityCheckStatus string

const (
	ParityCheckNeverRun  ParityCheckStatus = "NEVER_RUN"
	ParityCheckRunning   ParityCheckStatus = "RUNNING"
	ParityCheckPaused    ParityCheckStatus = "PAUSED"
	ParityCheckCompleted ParityCheckStatus = "COMPLETED"
	ParityCheckCancelled ParityCheckStatus = "CANCELLED"
	ParityCheckFailed    ParityCheckStatus = "FAILED"
)

// ContainerState represents the runtime state of a Docker container.
type ContainerState string

const (
	ContainerStateRunning    ContainerState = "RUNNING"
	ContainerStateStopped    ContainerState = "STOPPED"
	ContainerStatePaused     ContainerState = "PAUSED"
	ContainerStateRestarting ContainerState = "RESTARTING"
	ContainerStateCreated    ContainerState = "CREATED"
	ContainerStateExited     ContainerState = "EXITED"
	ContainerStateDead       ContainerState = "DEAD"
)

// VMState represents the libvirt domain state of a virtual machine.
type VMState string

const (
	VMStateRunning      VMState = "RUNNING"
	VMStateStopped      VMState = "STOPPED"
	VMStatePaused       VMState = "PAUSED"
	VMStatePMSuspended  VMState = "PMSUSPENDED"
	VMStateShuttingDown VMState = "SHUTTING_DOWN"
	VMStateShutdown     VMState = "SHUTDOWN"
	VMStateCrashed      VMState = "CRASHED"
)

// ServerInfo holds static identity metadata for an Unraid server. It is
// queried once per session and does not change afterwards.
type ServerInfo struct {
	LocalURL      string
	Name          string
	UnraidVersion string
	// Uptime is the server boot timestamp string, empty when the server
	// omits the OS info block.
	Uptime string
}

// MetricsArray is the aggregate system metrics snapshot: memory and CPU
// counters plus array state and capacity. Parity-check detail and CPU
// package telemetry are only reported by newer API versions; those fields
// are nil when absent, never zero.
type MetricsArray struct {
	MemoryFree         int64
	MemoryTotal        int64
	MemoryActive       int64
	MemoryAvailable    int64
	MemoryPercentTotal float64

	CPUPercentTotal float64

	State           ArrayState
	CapacityFreeKB  int64
	CapacityUsedKB  int64
	CapacityTotalKB int64

	ParityCheckStatus   ParityCheckStatus
	ParityCheckDate     *time.Time
	ParityCheckDuration *int64
	ParityCheckSpeed    *float64
	ParityCheckErrors   *int64
	ParityCheckProgress *int64

	CPUTemp  *float64
	CPUPower *float64
}

// UsagePercent returns the array usage percentage. The second return value
// is false when the array is stopped (total capacity zero) and no
// percentage is defined.
func (m *MetricsArray) UsagePercent() (float64, bool) {
	if m.CapacityTotalKB == 0 {
		return 0, false
	}
	return float64(m.CapacityUsedKB) / float64(m.CapacityTotalKB) * 100, true
}

// Share is a user share on the array. Name is the unique key.
type Share struct {
	Name      string
	Free      int64
	Used      int64
	Size      int64
	Allocator string
	Floor     string
}

// Disk is a single disk of the array. Filesystem fields are jointly nil for
// parity disks, which carry no filesystem; Temp is nil when the disk is
// spun down or does not report a temperature.
type Disk struct {
	ID         string
	Name       string
	Status     DiskStatus
	Type       DiskType
	Temp       *int64
	FSSize     *int64
	FSFree     *int64
	FSUsed     *int64
	IsSpinning bool
}

// UsagePercent returns the filesystem usage percentage. The second return
// value is false when the disk has no filesystem or reports a zero size.
func (d *Disk) UsagePercent() (float64, bool) {
	if d.FSSize == nil || d.FSUsed == nil || *d.FSSize == 0 {
		return 0, false
	}
	return float64(*d.FSUsed) / float64(*d.FSSize) * 100, true
}

// UPSDevice is an uninterruptible power supply attached to the server.
type UPSDevice struct {
	ID             string
	Name           string
	Model          string
	Status         string
	BatteryCharge  int64
	BatteryRuntime int64
	BatteryHealth  string
	LoadPercentage float64
	InputVoltage   *float64
	OutputVoltage  *float64
}

// DockerContainer is a Docker container managed by the server. IDs may have
// a compound multi-segment form; Name is the primary container name with
// the leading slash stripped.
type DockerContainer struct {
	ID        string
	Name      string
	State     ContainerState
	Image     string
	AutoStart bool
}

// VirtualMachine is a libvirt domain hosted on the server.
type VirtualMachine struct {
	ID    string
	Name  string
	State VMState
}

// CPUTelemetry is the payload of a CPU telemetry push message: package
// temperature in degrees Celsius and package power draw in watts.
type CPUTelemetry struct {
	Temp  float64
	Power float64
}

// MemoryUsage is the payload of a memory push message.
type MemoryUsage struct {
	Free         int64
	Total        int64
	Active       int64
	Available    int64
	PercentTotal float64
}
