package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/rs/zerolog"

	"github.com/nasmon/unraid/pkg/graphql"
	"github.com/nasmon/unraid/pkg/types"
)

// Client is the contract every API variant implements in full. Operations
// only newer servers support are not part of this interface; they live on
// the capability interfaces below and callers discover them with a type
// assertion.
type Client interface {
	// Version returns the API version the server reported at resolve time.
	Version() *semver.Version

	ServerInfo(ctx context.Context) (*types.ServerInfo, error)
	MetricsArray(ctx context.Context) (*types.MetricsArray, error)
	Shares(ctx context.Context) ([]types.Share, error)
	Disks(ctx context.Context) ([]types.Disk, error)
	DockerContainers(ctx context.Context) ([]types.DockerContainer, error)
	VirtualMachines(ctx context.Context) ([]types.VirtualMachine, error)

	StartContainer(ctx context.Context, id string) (*types.DockerContainer, error)
	StopContainer(ctx context.Context, id string) (*types.DockerContainer, error)
	StartVM(ctx context.Context, id string) error
	StopVM(ctx context.Context, id string) error

	StartParityCheck(ctx context.Context) error
	PauseParityCheck(ctx context.Context) error
	ResumeParityCheck(ctx context.Context) error
	CancelParityCheck(ctx context.Context) error

	// StartStream opens the shared subscription channel. Subscribe calls
	// are only valid while the channel is connected.
	StartStream(ctx context.Context) error
	StopStream()
	StreamConnected() bool

	SubscribeCPUUsage(cb func(float64)) error
	SubscribeMemory(cb func(types.MemoryUsage)) error
}

// UPSQuerier is the capability of listing UPS devices, available from API
// 4.26 on.
type UPSQuerier interface {
	UPSDevices(ctx context.Context) ([]types.UPSDevice, error)
}

// CPUTelemetrySubscriber is the capability of streaming CPU package
// temperature and power telemetry, available from API 4.26 on.
type CPUTelemetrySubscriber interface {
	SubscribeCPUTelemetry(cb func(types.CPUTelemetry)) error
}

// baseClient carries the request and subscription mechanics shared by all
// variants.
type baseClient struct {
	transport *graphql.Transport
	stream    *graphql.Stream
	version   *semver.Version
	log       zerolog.Logger
}

func (c *baseClient) Version() *semver.Version { return c.version }

// do executes one operation and decodes the data payload into out. A data
// payload that does not match the expected wire shape is an invalid
// response, not a decoding quirk to paper over.
func (c *baseClient) do(ctx context.Context, op, query string, variables map[string]any, out any) error {
	data, err := c.transport.Call(ctx, op, query, variables)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &graphql.InvalidResponseError{Err: fmt.Errorf("operation %s: %w", op, err)}
	}
	return nil
}

func (c *baseClient) ServerInfo(ctx context.Context) (*types.ServerInfo, error) {
	var payload serverInfoPayload
	if err := c.do(ctx, opServerInfo, queryServerInfo, nil, &payload); err != nil {
		return nil, err
	}
	return serverInfoFromWire(payload), nil
}

func (c *baseClient) MetricsArray(ctx context.Context) (*types.MetricsArray, error) {
	var payload metricsArrayPayload
	if err := c.do(ctx, opMetricsArray, queryMetricsArrayV420, nil, &payload); err != nil {
		return nil, err
	}
	return metricsArrayFromWire(payload), nil
}

func (c *baseClient) Shares(ctx context.Context) ([]types.Share, error) {
	var payload sharesPayload
	if err := c.do(ctx, opShares, queryShares, nil, &payload); err != nil {
		return nil, err
	}
	shares := make([]types.Share, 0, len(payload.Shares))
	for _, s := range payload.Shares {
		shares = append(shares, shareFromWire(s))
	}
	return shares, nil
}

// Disks returns the full disk list: data disks and cache disks first, both
// carrying filesystem usage, then parity disks with filesystem fields
// forced absent. The order is fixed.
func (c *baseClient) Disks(ctx context.Context) ([]types.Disk, error) {
	var payload disksPayload
	if err := c.do(ctx, opDisks, queryDisks, nil, &payload); err != nil {
		return nil, err
	}
	disks := make([]types.Disk, 0,
		len(payload.Array.Disks)+len(payload.Array.Caches)+len(payload.Array.Parities))
	for _, d := range payload.Array.Disks {
		disks = append(disks, diskFromWire(d, false))
	}
	for _, d := range payload.Array.Caches {
		disks = append(disks, diskFromWire(d, false))
	}
	for _, d := range payload.Array.Parities {
		disks = append(disks, diskFromWire(d, true))
	}
	return disks, nil
}

func (c *baseClient) DockerContainers(ctx context.Context) ([]types.DockerContainer, error) {
	var payload dockerContainersPayload
	if err := c.do(ctx, opDockerContainers, queryDockerContainers, nil, &payload); err != nil {
		return nil, err
	}
	containers := make([]types.DockerContainer, 0, len(payload.Docker.Containers))
	for _, wire := range payload.Docker.Containers {
		containers = append(containers, containerFromWire(wire))
	}
	return containers, nil
}

func (c *baseClient) VirtualMachines(ctx context.Context) ([]types.VirtualMachine, error) {
	var payload vmsPayload
	if err := c.do(ctx, opVMs, queryVMs, nil, &payload); err != nil {
		return nil, err
	}
	vms := make([]types.VirtualMachine, 0, len(payload.VMs.Domain))
	for _, wire := range payload.VMs.Domain {
		vms = append(vms, vmFromWire(wire))
	}
	return vms, nil
}

func (c *baseClient) StartContainer(ctx context.Context, id string) (*types.DockerContainer, error) {
	var payload dockerMutationPayload
	if err := c.do(ctx, opDockerStart, mutationDockerStart, map[string]any{"id": id}, &payload); err != nil {
		return nil, err
	}
	if payload.Docker.Start == nil {
		return nil, &graphql.InvalidResponseError{Err: fmt.Errorf("start mutation returned no container")}
	}
	container := containerFromWire(*payload.Docker.Start)
	return &container, nil
}

func (c *baseClient) StopContainer(ctx context.Context, id string) (*types.DockerContainer, error) {
	var payload dockerMutationPayload
	if err := c.do(ctx, opDockerStop, mutationDockerStop, map[string]any{"id": id}, &payload); err != nil {
		return nil, err
	}
	if payload.Docker.Stop == nil {
		return nil, &graphql.InvalidResponseError{Err: fmt.Errorf("stop mutation returned no container")}
	}
	container := containerFromWire(*payload.Docker.Stop)
	return &container, nil
}

func (c *baseClient) StartVM(ctx context.Context, id string) error {
	var payload json.RawMessage
	return c.do(ctx, opVMStart, mutationVMStart, map[string]any{"id": id}, &payload)
}

func (c *baseClient) StopVM(ctx context.Context, id string) error {
	var payload json.RawMessage
	return c.do(ctx, opVMStop, mutationVMStop, map[string]any{"id": id}, &payload)
}

func (c *baseClient) StartParityCheck(ctx context.Context) error {
	var payload json.RawMessage
	return c.do(ctx, opParityStart, mutationParityStart, nil, &payload)
}

func (c *baseClient) PauseParityCheck(ctx context.Context) error {
	var payload json.RawMessage
	return c.do(ctx, opParityPause, mutationParityPause, nil, &payload)
}

func (c *baseClient) ResumeParityCheck(ctx context.Context) error {
	var payload json.RawMessage
	return c.do(ctx, opParityResume, mutationParityResume, nil, &payload)
}

func (c *baseClient) CancelParityCheck(ctx context.Context) error {
	var payload json.RawMessage
	return c.do(ctx, opParityCancel, mutationParityCancel, nil, &payload)
}

func (c *baseClient) StartStream(ctx context.Context) error {
	return c.stream.Start(ctx)
}

func (c *baseClient) StopStream() {
	c.stream.Stop()
}

func (c *baseClient) StreamConnected() bool {
	return c.stream.Connected()
}

func (c *baseClient) SubscribeCPUUsage(cb func(float64)) error {
	_, err := c.stream.Subscribe(subscriptionCPUUsage, opSubCPUUsage, func(data json.RawMessage) {
		var event cpuUsageEvent
		if err := json.Unmarshal(data, &event); err != nil {
			c.log.Debug().Err(err).Msg("undecodable cpu usage push")
			return
		}
		cb(event.MetricsCPU.PercentTotal)
	})
	return err
}

func (c *baseClient) SubscribeMemory(cb func(types.MemoryUsage)) error {
	_, err := c.stream.Subscribe(subscriptionMemory, opSubMemory, func(data json.RawMessage) {
		var event memoryEvent
		if err := json.Unmarshal(data, &event); err != nil {
			c.log.Debug().Err(err).Msg("undecodable memory push")
			return
		}
		cb(types.MemoryUsage{
			Free:         event.MetricsMemory.Free,
			Total:        event.MetricsMemory.Total,
			Active:       event.MetricsMemory.Active,
			Available:    event.MetricsMemory.Available,
			PercentTotal: event.MetricsMemory.PercentTotal,
		})
	})
	return err
}
