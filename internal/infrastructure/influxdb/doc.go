// Package influxdb mirrors sensor readings and rule firings into InfluxDB.
//
// SQLite stays the system of record; this mirror exists for dashboards and
// long-range queries. Writes are batched and non-blocking, so a slow or
// unreachable InfluxDB never delays ingest. Asynchronous write errors are
// delivered to the SetOnError callback.
//
// Measurements:
//
//	sensor_readings  tags: device_id, owner_id           fields: temperature, humidity, moisture
//	rule_triggers    tags: device_id, owner_id, source,  fields: observed_value, threshold
//	                       action, condition_type
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // mirror off
//	}
//	defer client.Close()
package influxdb
