// Package reading stores sensor readings for Smart Watering Core.
//
// Readings are append-only. Each one carries up to three measurements
// (temperature, humidity, soil moisture); any of them may be absent. The
// owner id is copied from the device at ingest time so history queries
// never need to join against devices, and history survives device deletion.
//
// Times are stored as fixed-width UTC text, so lexical order in SQLite is
// chronological order.
package reading
