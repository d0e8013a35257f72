// Package config handles loading and validating Smart Watering Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with SMARTWATERING_* environment variables
//   - Validation of required fields and cross-field rules
//
// Credentials (MQTT password, InfluxDB token) should be supplied through
// the environment rather than committed in the YAML file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Service.Name, cfg.Commands.Transport)
package config
