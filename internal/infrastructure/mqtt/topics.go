package mqtt

import "strings"

// Topic roots owned by Core. Device command topics are operator-defined and
// live outside this tree.
const (
	TopicPrefix       = "smartwatering"
	TopicPrefixSensor = TopicPrefix + "/sensor"
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Topics builds and parses Core's MQTT topics.
type Topics struct{}

// SystemStatus is the retained online/offline topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// SensorReading is where a sensor device publishes its readings.
//
// Example: smartwatering/sensor/dev-3f2a
func (Topics) SensorReading(deviceID string) string {
	return TopicPrefixSensor + "/" + deviceID
}

// AllSensorReadings matches SensorReading for every device.
func (Topics) AllSensorReadings() string {
	return TopicPrefixSensor + "/+"
}

// SensorDeviceID extracts the device id from a SensorReading topic.
func (Topics) SensorDeviceID(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, TopicPrefixSensor+"/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

// validatePublishTopic rejects topics a broker would refuse on PUBLISH.
func validatePublishTopic(topic string) error {
	if topic == "" || strings.ContainsAny(topic, "+#\x00") {
		return ErrInvalidTopic
	}
	return nil
}
