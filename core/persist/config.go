package persist

import (
	"fmt"
	"time"
)

// Config holds configuration for the reconciler.
type Config struct {
	// MaxAttempts is the attempt count at which a retryable fault becomes fatal.
	MaxAttempts int `mapstructure:"max_attempts" default:"5"`
	// InsertWorkers is the number of goroutines draining the insert queue.
	InsertWorkers int `mapstructure:"insert_workers" default:"2"`
	// MergeWorkers is the number of goroutines draining the merge queue.
	MergeWorkers int `mapstructure:"merge_workers" default:"2"`
	// TxTimeoutSeconds bounds every store transaction.
	TxTimeoutSeconds int `mapstructure:"tx_timeout_seconds" default:"10"`
	// BackoffInitialMS is the first backoff delay in milliseconds.
	BackoffInitialMS int `mapstructure:"backoff_initial_ms" default:"100"`
	// BackoffMaxMS caps the backoff delay in milliseconds.
	BackoffMaxMS int `mapstructure:"backoff_max_ms" default:"5000"`
}

// Validate checks the configuration for values the reconciler cannot run with.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.InsertWorkers < 1 || c.MergeWorkers < 1 {
		return fmt.Errorf("worker counts must be positive, got insert=%d merge=%d", c.InsertWorkers, c.MergeWorkers)
	}
	if c.BackoffInitialMS < 0 || c.BackoffMaxMS < 0 {
		return fmt.Errorf("backoff intervals must not be negative")
	}
	return nil
}

// TxTimeout returns the transaction bound, defaulting to 10 seconds.
func (c Config) TxTimeout() time.Duration {
	if c.TxTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.TxTimeoutSeconds) * time.Second
}
