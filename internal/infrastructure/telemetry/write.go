package telemetry

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteFeedback records one feedback payload from an executing action.
//
// Only numeric and boolean fields of the payload are written; strings and
// nested structures carry no time-series value and are skipped. The write
// is non-blocking; points are batched and sent asynchronously.
//
// Example:
//
//	client.WriteFeedback("heater-01", "act-1b2d", "heat", 3,
//	    map[string]any{"temperature_c": 42.5})
func (c *Client) WriteFeedback(deviceID, requestID, actionKind string, seq uint64, payload map[string]any) {
	if !c.IsConnected() {
		return
	}

	fields := numericFields(payload)
	if len(fields) == 0 {
		return
	}
	// #nosec G115 -- sequence numbers stay far below int64 range
	fields["seq"] = int64(seq)

	point := write.NewPoint(
		"action_feedback",
		map[string]string{
			"device_id":   deviceID,
			"request_id":  requestID,
			"action_kind": actionKind,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteExecutionDuration records how long a terminal execution took.
func (c *Client) WriteExecutionDuration(deviceID, actionKind, terminalState string, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"execution_duration",
		map[string]string{
			"device_id":   deviceID,
			"action_kind": actionKind,
			"state":       terminalState,
		},
		map[string]any{
			"seconds": duration.Seconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// numericFields extracts the fields of a feedback payload that are worth
// plotting: numbers and booleans (stored as 0/1).
func numericFields(payload map[string]any) map[string]any {
	fields := make(map[string]any, len(payload))
	for k, v := range payload {
		switch val := v.(type) {
		case float64:
			fields[k] = val
		case float32:
			fields[k] = float64(val)
		case int:
			fields[k] = int64(val)
		case int64:
			fields[k] = val
		case bool:
			if val {
				fields[k] = int64(1)
			} else {
				fields[k] = int64(0)
			}
		}
	}
	return fields
}
