// Package config handles loading and validating bridge configuration.
//
// This package manages:
//   - Default values for every setting
//   - An optional YAML file (BHYVE_CONFIG)
//   - Overrides from environment variables
//   - Validation of required fields
//
// The environment is the primary configuration surface. The historical
// variable names are honoured unchanged:
//
//	MQTT_BROKER_ADDRESS   broker URL (default tcp://localhost:1883)
//	MQTT_USER             broker username
//	MQTT_PASSWORD         broker password
//	ORBIT_EMAIL           B-hyve account email (required)
//	ORBIT_PASSWORD        B-hyve account password (required)
//	MAX_RETRIES           reconnect attempts before giving up (default 10)
//	RECONNECT_PERIOD      milliseconds between reconnects (default 5000)
//
// Security Considerations:
//   - Credentials should be set via environment variables, not the file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load(os.Getenv("BHYVE_CONFIG"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Bridge.TopicPrefix)
package config
