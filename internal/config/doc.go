// Package config loads application configuration.
//
// Values come from three layers, later layers winning:
//
//  1. Default()
//  2. a YAML file: $APP_CONFIG_FILE, config.yaml or configs/config.yaml
//  3. APP_* environment variables, e.g. APP_SERVER_PORT, APP_API_V1_STR,
//     APP_GCP_PROJECT, APP_LOG_LEVEL, APP_PREDICTIONS_BLOB
//
// The result is validated before it is returned. Paths resolves the local
// directories used by the filesystem backend and exporters.
package config
