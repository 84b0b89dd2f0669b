// Package config provides centralized configuration for the cytolab
// binaries. Configuration is loaded from environment variables with the
// CYTOLAB_ prefix, with an optional cytolab.yaml file as a fallback for
// values not set in the environment.
//
// The package also owns path resolution: the SQLite database location, the
// data directory holding the source CSV, and the output directory where the
// analyzer writes exported tables and chart artifacts.
package config
