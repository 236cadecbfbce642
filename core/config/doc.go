// Package config loads the service configuration.
//
// Values come from environment variables, optionally seeded from a .env
// file, with defaults taken from the `default` struct tags of each
// section. Nested keys map to upper-case names joined by underscores
// (reconciler.max_attempts is RECONCILER_MAX_ATTEMPTS).
//
// # Sections
//
//   - Server: listen port, API key, shutdown bound
//   - Database: driver (mysql, sqlite) and connection details
//   - Storage: MinIO/S3 credentials, bucket and dead-letter prefix
//   - Log: level and format
//   - Reconciler: attempt ceiling, worker counts, transaction timeout, backoff
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
