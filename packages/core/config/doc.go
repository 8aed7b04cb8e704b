// Package config handles runner configuration for hitrun.
//
// It provides functionality for:
//   - Loading configuration from hitrun.json, hitrun.yaml and their dotted variants
//   - Default configuration values
//   - Merging command line overrides on top of the file
//   - Converting the result into runner options
package config
