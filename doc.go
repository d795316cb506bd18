// Package backend provides the Orkut API server.

// This package contains the main application entry point. The actual API
// documentation is organized into subpackages:

// - internal/handlers: HTTP request handlers for all API endpoints
// - internal/models: Data models and database schemas
// - internal/auth: Authentication, JWT sessions and the administrator registry
// - internal/calls: Audio and video call lifecycle and the ring timeout sweeper
// - internal/ledger: Activity ledger mirrored to a GitHub repository
// - internal/websocket: WebSocket server for real-time updates and presence
// - internal/database: Database connection and migrations
// - internal/middleware: HTTP middleware (auth, rate limiting, tracing)
// - internal/search: Elasticsearch search with a database fallback
// - internal/seed: Demo catalogue and development seed data
// - internal/validation: Startup checks for required services

// See the individual package documentation for detailed API reference.
package backend
