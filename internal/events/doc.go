// Package events bridges engine lifecycle notifications to the outside
// world.
//
// The execution manager and run orchestrator stay broker-agnostic;
// this package is the one place that knows state changes become MQTT
// messages and feedback becomes telemetry points. The bridge decouples
// the engine from sink latency with a bounded queue, so a slow broker
// can never stall a running instrument.
package events
