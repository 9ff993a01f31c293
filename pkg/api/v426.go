package api

import (
	"context"
	"encoding/json"

	"github.com/nasmon/unraid/pkg/types"
)

// clientV426 serves API versions 4.26 and newer. It inherits the 4.20
// request mechanics and overrides only what the newer schema adds: the
// MetricsArray query picks up parity-check detail and CPU package
// telemetry, and the UPS listing and CPU telemetry stream capabilities
// become available.
type clientV426 struct {
	clientV420
}

func newClientV426(base baseClient) Client {
	return &clientV426{clientV420: clientV420{baseClient: base}}
}

func (c *clientV426) MetricsArray(ctx context.Context) (*types.MetricsArray, error) {
	var payload metricsArrayPayload
	if err := c.do(ctx, opMetricsArray, queryMetricsArrayV426, nil, &payload); err != nil {
		return nil, err
	}
	return metricsArrayFromWire(payload), nil
}

// UPSDevices implements the UPSQuerier capability.
func (c *clientV426) UPSDevices(ctx context.Context) ([]types.UPSDevice, error) {
	var payload upsDevicesPayload
	if err := c.do(ctx, opUPSDevices, queryUPSDevices, nil, &payload); err != nil {
		return nil, err
	}
	devices := make([]types.UPSDevice, 0, len(payload.UPSDevices))
	for _, wire := range payload.UPSDevices {
		devices = append(devices, upsDeviceFromWire(wire))
	}
	return devices, nil
}

// SubscribeCPUTelemetry implements the CPUTelemetrySubscriber capability.
func (c *clientV426) SubscribeCPUTelemetry(cb func(types.CPUTelemetry)) error {
	_, err := c.stream.Subscribe(subscriptionCPUMetrics, opSubCPUMetrics, func(data json.RawMessage) {
		var event cpuMetricsEvent
		if err := json.Unmarshal(data, &event); err != nil {
			c.log.Debug().Err(err).Msg("undecodable cpu telemetry push")
			return
		}
		if len(event.CPUPackages.Temp) == 0 || len(event.CPUPackages.Power) == 0 {
			return
		}
		cb(types.CPUTelemetry{
			Temp:  event.CPUPackages.Temp[0],
			Power: event.CPUPackages.Power[0],
		})
	})
	return err
}
