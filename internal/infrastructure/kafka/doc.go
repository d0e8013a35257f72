// Package kafka publishes device commands to Kafka when
// commands.transport is "kafka".
//
// Each device's configured topic becomes the Kafka topic, with "/" mapped to
// "." since Kafka topic names cannot contain slashes. The device id is the
// message key, so every command for one device lands on the same partition
// and keeps its order.
package kafka
