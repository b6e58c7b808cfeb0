package device

import (
	"context"

	"github.com/oakmere/conductor-core/internal/action"
)

// EmitFunc delivers a feedback update from a running action. Drivers
// call it zero or more times during Execute; the payload is copied
// before it leaves the driver, so reusing the map between calls is
// safe.
type EmitFunc func(payload map[string]any)

// Driver is the contract a device implementation fulfils.
//
// Execute runs one goal to completion and returns the final result
// payload. It must honor ctx: when ctx is cancelled the driver stops
// the physical operation as soon as it safely can and returns
// ErrCanceled (or ctx.Err()). A driver that returns after its context
// was cancelled has its result discarded.
//
// Execute is never called concurrently for the same device; the
// admission layer guarantees one active command per device.
type Driver interface {
	// Capabilities lists the action kind names this driver accepts.
	Capabilities() []string

	// Execute runs the goal, emitting feedback through emit.
	Execute(ctx context.Context, goal *action.Goal, emit EmitFunc) (map[string]any, error)
}

// Canceller is an optional driver extension for devices that need an
// out-of-band stop signal in addition to context cancellation, such as
// field-bus devices with a dedicated abort register.
type Canceller interface {
	OnCancel(requestID string)
}

// Device is one admitted instrument: a driver plus identity and
// availability state.
type Device struct {
	ID           string
	Name         string
	Driver       Driver
	Capabilities map[string]bool
	Available    bool
}

// Supports reports whether the device accepts the given action kind.
func (d *Device) Supports(kind string) bool {
	return d.Capabilities[kind]
}
