package api

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/nasmon/unraid/pkg/types"
)

// Adapters reshaping wire payloads into canonical entities. Enum values the
// client does not know degrade to a defined fallback instead of failing the
// whole snapshot.

var knownContainerStates = map[types.ContainerState]bool{
	types.ContainerStateRunning:    true,
	types.ContainerStateStopped:    true,
	types.ContainerStatePaused:     true,
	types.ContainerStateRestarting: true,
	types.ContainerStateCreated:    true,
	types.ContainerStateExited:     true,
	types.ContainerStateDead:       true,
}

var knownVMStates = map[types.VMState]bool{
	types.VMStateRunning:      true,
	types.VMStateStopped:      true,
	types.VMStatePaused:       true,
	types.VMStatePMSuspended:  true,
	types.VMStateShuttingDown: true,
	types.VMStateShutdown:     true,
	types.VMStateCrashed:      true,
}

func containerStateFromWire(s string) types.ContainerState {
	state := types.ContainerState(strings.ToUpper(s))
	if knownContainerStates[state] {
		return state
	}
	return types.ContainerStateExited
}

func vmStateFromWire(s string) types.VMState {
	state := types.VMState(strings.ToUpper(s))
	if knownVMStates[state] {
		return state
	}
	return types.VMStateShutdown
}

// diskFromWire maps a disk payload. Parity disks carry no filesystem, so
// their fs fields are forced absent regardless of what the wire carried.
func diskFromWire(d diskPayload, parity bool) types.Disk {
	disk := types.Disk{
		ID:         d.ID,
		Name:       d.Name,
		Status:     types.DiskStatus(d.Status),
		Type:       types.DiskType(d.Type),
		Temp:       d.Temp,
		IsSpinning: d.IsSpinning,
	}
	if !parity {
		disk.FSSize = d.FSSize
		disk.FSFree = d.FSFree
		disk.FSUsed = d.FSUsed
	}
	return disk
}

func shareFromWire(s sharePayload) types.Share {
	return types.Share{
		Name:      s.Name,
		Free:      s.Free,
		Used:      s.Used,
		Size:      s.Size,
		Allocator: s.Allocator,
		Floor:     s.Floor,
	}
}

func containerFromWire(c containerPayload) types.DockerContainer {
	name := c.ID
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	return types.DockerContainer{
		ID:        c.ID,
		Name:      name,
		State:     containerStateFromWire(c.State),
		Image:     c.Image,
		AutoStart: c.AutoStart,
	}
}

func vmFromWire(v vmPayload) types.VirtualMachine {
	return types.VirtualMachine{
		ID:    v.ID,
		Name:  v.Name,
		State: vmStateFromWire(v.State),
	}
}

func upsDeviceFromWire(u upsDevicePayload) types.UPSDevice {
	return types.UPSDevice{
		ID:             u.ID,
		Name:           u.Name,
		Model:          u.Model,
		Status:         u.Status,
		BatteryCharge:  u.Battery.ChargeLevel,
		BatteryRuntime: u.Battery.EstimatedRuntime,
		BatteryHealth:  u.Battery.Health,
		LoadPercentage: u.Power.LoadPercentage,
		InputVoltage:   u.Power.InputVoltage,
		OutputVoltage:  u.Power.OutputVoltage,
	}
}

// metricsArrayFromWire assembles the aggregate metrics entity. Parity-check
// detail and CPU package telemetry stay nil when the response omits them;
// consumers treat absence as unknown, never as zero.
func metricsArrayFromWire(p metricsArrayPayload) *types.MetricsArray {
	m := &types.MetricsArray{
		MemoryFree:         p.Metrics.Memory.Free,
		MemoryTotal:        p.Metrics.Memory.Total,
		MemoryActive:       p.Metrics.Memory.Active,
		MemoryAvailable:    p.Metrics.Memory.Available,
		MemoryPercentTotal: p.Metrics.Memory.PercentTotal,
		CPUPercentTotal:    p.Metrics.CPU.PercentTotal,
		State:              types.ArrayState(p.Array.State),
		CapacityFreeKB:     numberToInt64(p.Array.Capacity.Kilobytes.Free),
		CapacityUsedKB:     numberToInt64(p.Array.Capacity.Kilobytes.Used),
		CapacityTotalKB:    numberToInt64(p.Array.Capacity.Kilobytes.Total),
	}

	if pc := p.Array.ParityCheck; pc != nil {
		m.ParityCheckStatus = types.ParityCheckStatus(pc.Status)
		m.ParityCheckDuration = pc.Duration
		m.ParityCheckSpeed = pc.Speed
		m.ParityCheckErrors = pc.Errors
		m.ParityCheckProgress = pc.Progress
		if pc.Date != nil {
			if date, err := time.Parse(time.RFC3339, *pc.Date); err == nil {
				m.ParityCheckDate = &date
			}
		}
	}

	if p.Info != nil {
		if temps := p.Info.CPU.Packages.Temp; len(temps) > 0 {
			m.CPUTemp = &temps[0]
		}
		if power := p.Info.CPU.Packages.Power; len(power) > 0 {
			m.CPUPower = &power[0]
		}
	}

	return m
}

func serverInfoFromWire(p serverInfoPayload) *types.ServerInfo {
	info := &types.ServerInfo{
		LocalURL:      p.Server.LocalURL,
		Name:          p.Server.Name,
		UnraidVersion: p.Info.Versions.Core.Unraid,
	}
	if p.Info.OS != nil {
		info.Uptime = p.Info.OS.Uptime
	}
	return info
}

func numberToInt64(n json.Number) int64 {
	v, err := n.Int64()
	if err != nil {
		return 0
	}
	return v
}
