// Package logger builds the application's zap logger.
//
// Level debug selects zap's development config with console output. Every other
// level uses the production config with the configured encoding.
//
// WithRayID attaches the request id set by the rayid middleware, so every log line
// of one HTTP request can be correlated.
//
//	log, err := logger.New(&cfg.Log)
//	l := logger.WithRayID(log, c)
//	l.Error("Preview failed", zap.Error(err))
package logger
