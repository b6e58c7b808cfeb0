package mqtt

import "fmt"

// Topic prefixes for the Conductor MQTT hierarchy.
//
// Execution topics carry the goal/feedback/result protocol events so that
// external observers (bench displays, notebook clients, remote drivers)
// can follow action lifecycles without polling the HTTP API.
const (
	// TopicPrefix is the base for all Conductor topics.
	TopicPrefix = "conductor"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "conductor/system"
)

// Topics provides builders for Conductor MQTT topics.
// Using these helpers keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.ExecutionState("act-1b2d")
//	// Returns: "conductor/executions/act-1b2d/state"
type Topics struct{}

// ExecutionState returns the topic for execution state transitions.
//
// Example: conductor/executions/act-1b2d/state
func (Topics) ExecutionState(requestID string) string {
	return fmt.Sprintf("%s/executions/%s/state", TopicPrefix, requestID)
}

// ExecutionFeedback returns the topic for execution feedback payloads.
//
// Example: conductor/executions/act-1b2d/feedback
func (Topics) ExecutionFeedback(requestID string) string {
	return fmt.Sprintf("%s/executions/%s/feedback", TopicPrefix, requestID)
}

// ExecutionResult returns the topic for terminal execution results.
//
// Example: conductor/executions/act-1b2d/result
func (Topics) ExecutionResult(requestID string) string {
	return fmt.Sprintf("%s/executions/%s/result", TopicPrefix, requestID)
}

// AllExecutionStates returns a wildcard pattern matching every execution
// state topic.
//
// Example: conductor/executions/+/state
func (Topics) AllExecutionStates() string {
	return fmt.Sprintf("%s/executions/+/state", TopicPrefix)
}

// RunState returns the topic for run status changes.
//
// Example: conductor/runs/run-9f21/state
func (Topics) RunState(runID string) string {
	return fmt.Sprintf("%s/runs/%s/state", TopicPrefix, runID)
}

// DeviceHealth returns the topic for device availability changes.
//
// Example: conductor/devices/heater-01/health
func (Topics) DeviceHealth(deviceID string) string {
	return fmt.Sprintf("%s/devices/%s/health", TopicPrefix, deviceID)
}

// SystemStatus returns the core online/offline status topic.
//
// Retained so new subscribers immediately learn whether the core is up.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
