// Package admission serializes command access to devices.
//
// The controller maintains one lock and one FIFO queue per device. A
// request either acquires the device immediately or waits its turn;
// releasing the device hands it to the oldest waiter. Marking a device
// unavailable drains its queue and blocks new submissions.
//
// The controller holds no execution state. Grants and evictions are
// reported through callbacks so the execution engine can drive state
// transitions, and callbacks always run outside the controller's
// locks.
package admission
