// Package telemetry writes action feedback time-series to InfluxDB.
//
// Instrument feedback is naturally a time-series: a heat/chill unit ramps
// temperature, a pump accumulates transferred volume, an AGV counts off
// waypoints. This package batches those samples into InfluxDB v2 so they
// can be charted after a run without burdening the execution hot path -
// writes are non-blocking and the whole sink is optional (disabled by
// default in config.yaml).
package telemetry
