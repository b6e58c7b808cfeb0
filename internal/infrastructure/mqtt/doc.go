// Package mqtt provides the MQTT event bridge for Conductor Core.
//
// Conductor publishes execution lifecycle events (state transitions,
// feedback snapshots, terminal results), run status changes and device
// health onto a conductor/... topic hierarchy so external observers can
// follow long-running actions without polling.
//
// The client wraps paho.mqtt.golang with automatic reconnection,
// subscription restoration, Last Will and Testament for crash detection,
// and panic-safe message handlers.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{}
//	client.Publish(topics.ExecutionState(id), payload, 1, false)
package mqtt
