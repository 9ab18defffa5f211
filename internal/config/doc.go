// Package config provides YAML configuration loading and validation for the
// quad mixer service, with defaults matching a stock trunk-recorder
// simpleStream setup.
package config
