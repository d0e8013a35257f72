package main

import (
	"context"

	"github.com/nerrad567/smart-watering-core/internal/automation"
	"github.com/nerrad567/smart-watering-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/smart-watering-core/internal/reading"
)

// mqttPublishClient is the part of mqtt.Client the command publisher uses.
type mqttPublishClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	QoS() byte
}

// mqttPublisher adapts the MQTT client to automation.Publisher. Commands
// are never retained so a reconnecting actuator does not replay a stale one.
type mqttPublisher struct {
	client mqttPublishClient
}

func (p *mqttPublisher) Publish(_ context.Context, topic, _ string, payload []byte) error {
	return p.client.Publish(topic, payload, p.client.QoS(), false)
}

// influxWriter is the part of influxdb.Client the mirror uses.
type influxWriter interface {
	WriteReading(r influxdb.Reading)
	WriteTrigger(t influxdb.Trigger)
}

// influxMirror copies stored readings and recorded actions to InfluxDB.
type influxMirror struct {
	client influxWriter
}

func (m *influxMirror) MirrorReading(r reading.Reading) {
	m.client.WriteReading(influxdb.Reading{
		DeviceID:    r.DeviceID,
		OwnerID:     r.OwnerID,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
		Moisture:    r.Moisture,
		ObservedAt:  r.ObservedAt,
	})
}

func (m *influxMirror) MirrorTrigger(a automation.TriggeredAction) {
	m.client.WriteTrigger(influxdb.Trigger{
		DeviceID:      a.DeviceID,
		OwnerID:       a.OwnerID,
		Source:        string(a.Source),
		Action:        a.Action,
		ConditionType: string(a.ConditionType),
		Threshold:     a.Threshold,
		ObservedValue: a.ObservedValue,
		FiredAt:       a.FiredAt,
	})
}
