// Package logger provides structured logging for resilix components
// using zerolog.
//
// Library types default to a no-op logger; pass a configured *Logger to
// surface reconnects, statement refreshes and resolver activity.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.New(&cfg, "orders").WithComponent("database")
//	log.Info("connection reconnected", logger.Fields("round", 3))
package logger
