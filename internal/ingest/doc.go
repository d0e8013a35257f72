// Package ingest accepts sensor readings and runs the rule engine on them.
//
// Readings arrive over HTTP (POST /api/v1/sensor_data) or MQTT
// (smartwatering/sensor/{device_id}); both paths end in Service.Ingest:
//
//  1. resolve the device (unknown device: nothing is stored)
//  2. append the reading, stamped with the device's owner
//  3. list the device's enabled rules and evaluate them
//  4. dispatch every firing, collecting one result per rule
//
// Ingest is synchronous. The reading counts as ingested once step 2
// succeeds, whatever happens to individual dispatches.
package ingest
