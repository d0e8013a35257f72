// Package api implements the HTTP REST API and WebSocket server for Smart
// Watering Core.
//
// This package provides:
//   - The sensor ingest endpoint (POST /api/v1/sensor_data)
//   - REST endpoints for farms, devices, rules, reading history and the
//     triggered action log
//   - Manual device commands
//   - WebSocket hub for live reading, rule and device status events
//   - Middleware stack (request ID, logging, recovery, CORS, owner scoping)
//
// # Ownership
//
// There is no login. Every call under /api/v1 except health and metrics
// names its owner in the X-Owner-ID header, and every handler passes that
// owner to the registries and repositories explicitly. Records of another
// owner are reported as not found.
//
// # Graceful Degradation
//
// The server runs without a broker connection: reads, history and
// WebSocket keep working, only dispatches fail, and they fail per rule.
package api
