// Package device defines the driver contract and the device registry.
//
// A Driver executes one long-running action at a time, streaming
// feedback through an EmitFunc and honoring context cancellation. The
// Registry maps device IDs to drivers and tracks availability; the
// admission layer consults it when deciding whether a goal may queue.
package device
