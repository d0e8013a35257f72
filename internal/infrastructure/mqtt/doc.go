// Package mqtt provides the broker connection for Smart Watering Core.
//
// The service uses MQTT in two directions:
//
//	sensor ──► smartwatering/sensor/{device_id} ──► Core (ingest)
//	Core   ──► {device.topic}                   ──► actuator (command)
//
// Command topics are whatever the operator configured on the device; the
// client only checks that they are publishable (non-empty, no wildcards).
// A retained status message on smartwatering/system/status, backed by a Last
// Will, tells other consumers whether Core is online.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllSensorReadings(), 1,
//	    func(topic string, payload []byte) error {
//	        id, _ := mqtt.Topics{}.SensorDeviceID(topic)
//	        return ingestReading(id, payload)
//	    })
//
//	client.Publish("farm/pump-1/cmd", []byte(`{"command":"on"}`), 1, false)
//
// Connection loss is handled by paho's auto-reconnect; tracked
// subscriptions are restored on every reconnect.
package mqtt
