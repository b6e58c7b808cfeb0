// Package execution runs the command lifecycle for admitted goals.
//
// The manager is the single writer of execution state. Every execution
// walks Pending -> Accepted -> Executing and then commits exactly one
// terminal state: Succeeded, Aborted, or Canceled. Competing outcomes,
// a cancel racing a completion, a timeout racing a driver result, are
// resolved by the first terminal commit; everything that arrives later
// is discarded.
//
// Timeouts count from submission, so time spent queued behind another
// command burns the same budget as time spent executing. Feedback fans
// out to per-subscriber channels that shed their oldest update under
// backpressure.
//
// Records are archived to SQLite on every state change and survive
// process restarts for result queries.
package execution
