package telemetry

import "errors"

// Domain-specific errors for telemetry operations.
var (
	// ErrDisabled is returned by Connect when telemetry is disabled in config.
	ErrDisabled = errors.New("telemetry: disabled in configuration")

	// ErrConnectionFailed is returned when the InfluxDB server is unreachable
	// or unhealthy.
	ErrConnectionFailed = errors.New("telemetry: connection failed")
)
