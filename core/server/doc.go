// Package server holds the HTTP server configuration.
//
// The start command owns the Fiber app itself; this package only defines
// the listen port, the API key and the graceful shutdown bound.
package server
