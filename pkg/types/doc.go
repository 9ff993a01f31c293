// Package types defines the canonical entities produced by the Unraid API
// client: server identity, system metrics, array disks, shares, UPS devices,
// Docker containers and virtual machines. Values are immutable snapshots;
// each poll or push replaces them wholesale.
package types
