package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementReadings = "sensor_readings"
	MeasurementTriggers = "rule_triggers"
)

// Reading is one sensor sample to mirror. Nil measurements are omitted.
type Reading struct {
	DeviceID    string
	OwnerID     string
	Temperature *float64
	Humidity    *float64
	Moisture    *float64
	ObservedAt  time.Time
}

// Trigger is one dispatched command to mirror.
type Trigger struct {
	DeviceID      string
	OwnerID       string
	Source        string // condition | manual
	Action        string
	ConditionType string
	Threshold     *float64
	ObservedValue *float64
	FiredAt       time.Time
}

// WriteReading queues a sensor_readings point. A reading with no
// measurements is skipped since InfluxDB rejects points without fields.
func (c *Client) WriteReading(r Reading) {
	if !c.IsConnected() {
		return
	}
	if p := readingPoint(r); p != nil {
		c.writer.WritePoint(p)
	}
}

// WriteTrigger queues a rule_triggers point.
func (c *Client) WriteTrigger(t Trigger) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(triggerPoint(t))
}

func readingPoint(r Reading) *write.Point {
	fields := make(map[string]any, 3)
	addField(fields, "temperature", r.Temperature)
	addField(fields, "humidity", r.Humidity)
	addField(fields, "moisture", r.Moisture)
	if len(fields) == 0 {
		return nil
	}

	return write.NewPoint(MeasurementReadings,
		map[string]string{"device_id": r.DeviceID, "owner_id": r.OwnerID},
		fields, timestamp(r.ObservedAt))
}

func triggerPoint(t Trigger) *write.Point {
	tags := map[string]string{
		"device_id": t.DeviceID,
		"owner_id":  t.OwnerID,
		"source":    t.Source,
		"action":    t.Action,
	}
	if t.ConditionType != "" {
		tags["condition_type"] = t.ConditionType
	}

	// Manual commands carry no numbers; count them with a constant field.
	fields := map[string]any{"fired": 1}
	addField(fields, "observed_value", t.ObservedValue)
	addField(fields, "threshold", t.Threshold)

	return write.NewPoint(MeasurementTriggers, tags, fields, timestamp(t.FiredAt))
}

func addField(fields map[string]any, key string, v *float64) {
	if v != nil {
		fields[key] = *v
	}
}

func timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
