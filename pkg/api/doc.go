// Package api implements the versioned Unraid GraphQL client. Resolve
// probes the server's API version and returns the matching client variant.
// Variants form a capability lattice: each newer variant reads everything
// its predecessor reads plus additional optional telemetry, and operations
// a variant cannot serve do not exist on its type; callers discover them
// through the capability interfaces (UPSQuerier, CPUTelemetrySubscriber).
//
// The query catalog is fixed. This is not a general GraphQL client; query
// text lives in this package and payloads decode into per-version wire
// structs that the adapters reshape into pkg/types values.
package api
