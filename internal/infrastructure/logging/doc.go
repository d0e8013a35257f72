// Package logging provides structured logging for Smart Watering Core.
//
// It wraps log/slog so every component emits the same shape of record:
// JSON in production, text when developing, always carrying the service
// name and build version.
//
// Configuration (config.yaml):
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("reading ingested", "device_id", id, "fired", n)
//
// Never log MQTT passwords, Kafka SASL secrets or InfluxDB tokens.
package logging
