// Package config provides environment-driven application configuration
// with struct tag defaults, plus the YAML-backed decision policy.
package config
