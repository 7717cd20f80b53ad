// Package middleware provides HTTP middleware for the arena's Gin-based API.
//
// The chain the router applies, in order:
//
//	router := gin.New()
//	router.Use(middleware.RequestID())           // X-Request-ID in and out
//	router.Use(middleware.RequestLogger(logger)) // structured access log + X-Process-Time
//	router.Use(middleware.Recovery(logger))      // panic -> JSON error envelope
//	router.Use(middleware.CORS())                // permissive cross-origin defaults
//
// RequestID runs first so every later stage, including the panic handler,
// can tag its output with the id.
package middleware
