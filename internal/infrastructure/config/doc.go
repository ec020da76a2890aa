// Package config handles loading and validating netpulse configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (NETPULSE_*)
//   - Validation of required fields
//   - Default value handling
//
// Optional integrations (SQLite history, MQTT, InfluxDB) are disabled by
// default so the server runs with no external services.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.WebSocket.Path)
package config
