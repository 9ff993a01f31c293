package api

// clientV420 serves API versions 4.20 up to (but excluding) 4.26. It is
// the baseline variant: no UPS listing, no parity-check detail and no CPU
// package telemetry.
type clientV420 struct {
	baseClient
}

func newClientV420(base baseClient) Client {
	return &clientV420{baseClient: base}
}
