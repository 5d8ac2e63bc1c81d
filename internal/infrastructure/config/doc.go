// Package config loads the runner's YAML configuration.
//
// Values are resolved in three layers: built-in defaults, then the YAML file,
// then YATORI_* environment variables. Validate reports every problem at once
// rather than stopping at the first.
//
// Secrets (YATORI_MQTT_PASSWORD, YATORI_INFLUXDB_TOKEN) are best supplied
// through the environment so the file can stay world-readable.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if errors.Is(err, config.ErrNotFound) {
//	    cfg, err = config.Default()
//	}
package config
