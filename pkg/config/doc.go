// Package config loads the unraidmon configuration: server host, API key,
// poll interval and collection toggles. Values come from a YAML file with
// environment fallback for the API key.
package config
