// Package config loads the relay configuration from YAML, layers a few
// environment overrides on top and validates every section.
package config
