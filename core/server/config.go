package server

import "fmt"

// Config holds configuration for the HTTP server.
type Config struct {
	// Port is the port the server listens on.
	Port string `mapstructure:"port" default:"8080"`
	// ApiKey is the secret required on every API request. Empty disables auth.
	ApiKey string `mapstructure:"api_key" default:""`
	// ShutdownSeconds bounds the graceful shutdown.
	ShutdownSeconds int `mapstructure:"shutdown_seconds" default:"15"`
}

// Validate checks the server configuration.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("server port must be set")
	}
	if c.ShutdownSeconds < 0 {
		return fmt.Errorf("shutdown_seconds must not be negative")
	}
	return nil
}
