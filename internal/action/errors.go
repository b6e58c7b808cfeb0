package action

import "errors"

// Domain errors for the action package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, action.ErrUnknownKind) {
//	    // handle unknown kind
//	}
var (
	// ErrDuplicateKind is returned when registering a kind whose name
	// already exists in the catalog.
	ErrDuplicateKind = errors.New("action: duplicate kind")

	// ErrUnknownKind is returned when a kind name is not in the catalog.
	ErrUnknownKind = errors.New("action: unknown kind")

	// ErrInvalidKind is returned when a kind definition fails validation.
	ErrInvalidKind = errors.New("action: invalid kind")

	// ErrInvalidParameters is returned when parameter values violate the
	// kind's schema. Requests failing this check are rejected before
	// admission and never reach a device.
	ErrInvalidParameters = errors.New("action: invalid parameters")
)
