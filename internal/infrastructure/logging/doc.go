// Package logging provides structured logging for Conductor Core.
//
// It wraps Go's standard log/slog package so every subsystem logs in the
// same shape: JSON for production, text for development, with the service
// name and version attached to every record.
//
// Logging is configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting service", "port", 8080)
//	logger.Error("driver fault", "device_id", id, "error", err)
//
// Never log secrets, tokens, or broker passwords.
package logging
