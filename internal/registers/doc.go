// Package registers maps logical node names to physical field-bus
// addresses.
//
// The table loads once from CSV at startup and is immutable afterwards.
// Validation is all-or-nothing at load time, so a resolver handed to a
// driver never returns a half-parsed node. The Bus interface is the
// transport seam: drivers resolve names here and hand the nodes to
// whatever bus implementation the deployment wires in.
package registers
