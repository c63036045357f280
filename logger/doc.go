// Package logger provides structured logging for relay pipelines
// using zerolog.
//
// It supports JSON and console output, log level configuration, and
// component-scoped loggers with structured fields. Console colours are
// disabled automatically when the output is not a terminal.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//
// # Usage
//
//	log := logger.Get("capture")
//	log.Info("stage completed", logger.Fields("items", 42))
package logger
