package admission

import "errors"

var (
	// ErrDeviceUnavailable indicates the target device is offline or
	// has been withdrawn from service.
	ErrDeviceUnavailable = errors.New("admission: device unavailable")

	// ErrUnsupportedAction indicates the device does not advertise the
	// requested action kind.
	ErrUnsupportedAction = errors.New("admission: unsupported action for device")

	// ErrQueueFull indicates the device's waiting queue is at capacity.
	ErrQueueFull = errors.New("admission: device queue full")

	// ErrDuplicateRequest indicates a request ID is already queued or
	// holding the device.
	ErrDuplicateRequest = errors.New("admission: duplicate request id")

	// ErrNotHolder indicates a release for a request that does not hold
	// the device.
	ErrNotHolder = errors.New("admission: request does not hold device")
)
