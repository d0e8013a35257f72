package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/smart-watering-core/internal/infrastructure/mqtt"
)

// messageTimeout bounds one MQTT-delivered ingest.
const messageTimeout = 10 * time.Second

// MessageSource is the part of the MQTT client the subscriber needs.
type MessageSource interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Ingester runs one reading through the pipeline.
type Ingester interface {
	Ingest(ctx context.Context, req Request) (*Result, error)
}

// Subscriber feeds readings published on smartwatering/sensor/{device_id}
// into the ingest pipeline.
//
// The device id is taken from the topic. A payload that also names a
// device must name the same one.
type Subscriber struct {
	source   MessageSource
	ingester Ingester
	qos      byte
	logger   Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSubscriber creates a subscriber. Call Start to begin receiving.
func NewSubscriber(source MessageSource, ingester Ingester, qos byte, logger Logger) *Subscriber {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Subscriber{source: source, ingester: ingester, qos: qos, logger: logger}
}

// Start subscribes to all sensor topics. Messages are processed until
// Stop is called or ctx is cancelled.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	topic := mqtt.Topics{}.AllSensorReadings()
	if err := s.source.Subscribe(topic, s.qos, s.handle); err != nil {
		s.cancel()
		s.ctx, s.cancel = nil, nil
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	s.logger.Info("sensor subscriber started", "topic", topic)
	return nil
}

// Stop unsubscribes and cancels in-flight ingests.
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}
	s.cancel()
	s.ctx, s.cancel = nil, nil

	if err := s.source.Unsubscribe(mqtt.Topics{}.AllSensorReadings()); err != nil {
		return fmt.Errorf("unsubscribing sensor topics: %w", err)
	}
	s.logger.Info("sensor subscriber stopped")
	return nil
}

func (s *Subscriber) baseContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// handle is the MQTT message handler. Errors are returned to the MQTT
// client, which logs them.
func (s *Subscriber) handle(topic string, payload []byte) error {
	deviceID, ok := mqtt.Topics{}.SensorDeviceID(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %q", ErrInvalidReading, topic)
	}

	req, err := decodeSensorPayload(deviceID, payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(s.baseContext(), messageTimeout)
	defer cancel()

	result, err := s.ingester.Ingest(ctx, req)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			s.logger.Warn("reading for unknown device dropped", "device_id", deviceID)
			return nil
		}
		return fmt.Errorf("ingesting reading from %s: %w", topic, err)
	}

	s.logger.Debug("mqtt reading ingested",
		"device_id", deviceID,
		"reading_id", result.Reading.ID,
		"dispatches", len(result.Dispatches),
	)
	return nil
}

// decodeSensorPayload parses {"temperature":..,"humidity":..,"moisture":..}.
func decodeSensorPayload(deviceID string, payload []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return Request{}, fmt.Errorf("%w: payload is not JSON: %w", ErrInvalidReading, err)
	}
	if req.DeviceID != "" && req.DeviceID != deviceID {
		return Request{}, fmt.Errorf("%w: payload device %q does not match topic device %q",
			ErrInvalidReading, req.DeviceID, deviceID)
	}
	req.DeviceID = deviceID
	return req, nil
}
