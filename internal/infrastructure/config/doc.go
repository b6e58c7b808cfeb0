// Package config loads and validates Conductor Core configuration.
//
// Configuration is read from a YAML file, merged over hardcoded defaults,
// and finally overridden by CONDUCTOR_* environment variables. The loaded
// Config is treated as immutable after startup; no component mutates it.
//
// Sections map one-to-one onto subsystems: database (SQLite), mqtt (event
// bridge), api (HTTP surface), telemetry (InfluxDB feedback series),
// execution (action timeout and queue defaults) and registers (logical
// register address table).
package config
