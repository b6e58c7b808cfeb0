package device

import "errors"

var (
	// ErrDuplicateDevice indicates a device ID is already registered.
	ErrDuplicateDevice = errors.New("device: duplicate device id")

	// ErrUnknownDevice indicates a lookup for an unregistered device ID.
	ErrUnknownDevice = errors.New("device: unknown device")

	// ErrCanceled is returned by drivers that stopped because the
	// execution was cancelled.
	ErrCanceled = errors.New("device: execution canceled")

	// ErrDriverFailure wraps faults raised by the device itself.
	ErrDriverFailure = errors.New("device: driver failure")
)
