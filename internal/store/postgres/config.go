package postgres

import "fmt"

// Config holds store configuration independent of the connection pool.
type Config struct {
	// QueryTimeoutSeconds bounds every statement issued outside a transaction.
	// Default: 10 seconds
	// Set to a negative value to rely on context deadlines only.
	QueryTimeoutSeconds int32
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.QueryTimeoutSeconds > 300 {
		return fmt.Errorf("query timeout must not exceed 300 seconds")
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.QueryTimeoutSeconds == 0 {
		c.QueryTimeoutSeconds = 10
	}
}
