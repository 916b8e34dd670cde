// Package config loads and validates the resilience middleware
// configuration from YAML files and environment variables.
package config
