package registers

import "errors"

var (
	// ErrUnknownNode indicates a lookup for a name the table does not
	// contain.
	ErrUnknownNode = errors.New("registers: unknown node")

	// ErrMalformedTable indicates the register table failed load-time
	// validation.
	ErrMalformedTable = errors.New("registers: malformed table")
)
