// Package handlers contains reusable HTTP building blocks for the engine API.
//
// This package provides:
//   - Health checks aggregated from named probes (postgres, redis)
//   - gin middleware: request ids, access logging, panic recovery, timeouts
//
// # Health Checks
//
// Probes run in parallel, each under its own timeout:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("postgres", handlers.NewPingCheck(conn))
//	checker.AddCheck("redis", handlers.NewPingCheck(cache))
//
//	router.GET("/health", handlers.Health(checker))
//
// # Middleware
//
// RequestID must run before RequestLogger so the access log carries the id:
//
//	router.Use(handlers.Recovery(log), handlers.RequestID(), handlers.RequestLogger(log))
//
// The request id doubles as the correlation id stamped on the domain events
// a command publishes.
package handlers
