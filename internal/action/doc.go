// Package action defines the action kind catalog and goal types.
//
// An action kind declares the contract of a long-running command: its
// parameter schema, the shape of its feedback updates, and the shape of
// its final result. Kinds are registered at startup in a Registry and
// are immutable afterwards.
//
// A Goal is one concrete request to run an action against a device. The
// execution engine validates a goal's parameters against the kind's
// schema before anything else happens; a goal that fails validation is
// rejected synchronously and leaves no trace.
//
// All registry lookups return deep copies so callers can never mutate
// the catalog through a returned kind.
package action
