package run

import "errors"

var (
	// ErrNoSteps indicates a run request with an empty step list.
	ErrNoSteps = errors.New("run: no steps")

	// ErrUnknownPolicy indicates an unrecognized failure policy.
	ErrUnknownPolicy = errors.New("run: unknown failure policy")

	// ErrInvalidDependency indicates a step depends on itself or on a
	// later step.
	ErrInvalidDependency = errors.New("run: invalid step dependency")

	// ErrDuplicateRun indicates a run ID is already in use.
	ErrDuplicateRun = errors.New("run: duplicate run id")

	// ErrUnknownRun indicates no run exists for the given ID.
	ErrUnknownRun = errors.New("run: unknown run")
)
