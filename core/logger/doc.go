// Package logger builds the zap logger shared by every component.
//
// Level debug switches to zap's development preset; anything else uses
// the production preset at the given level. Format picks json or a
// coloured console encoder.
//
// WithRayID attaches the request's RayID (set by the rayid middleware) so
// all log lines for one HTTP request can be correlated.
//
// # Usage
//
//	log, err := logger.New(&cfg.Log)
//	log.Info("Server started")
//
//	// In a request handler:
//	logger.WithRayID(log, c).Error("Handler failed", zap.Error(err))
package logger
