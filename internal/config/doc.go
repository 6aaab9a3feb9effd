// Package config loads the settings of the authcore service binary from
// defaults, an optional YAML file, a .env file, AWS Secrets Manager, and the
// process environment.
package config
