package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/smart-watering-core/internal/automation"
	"github.com/nerrad567/smart-watering-core/internal/reading"
)

// Logger defines the logging interface used by the ingest package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ReadingStore appends readings.
type ReadingStore interface {
	Append(ctx context.Context, r *reading.Reading) error
}

// RuleStore lists the enabled rules of a device.
type RuleStore interface {
	ListEnabledRules(ctx context.Context, deviceID string) ([]automation.Rule, error)
}

// Dispatcher dispatches firings for one reading.
type Dispatcher interface {
	Dispatch(ctx context.Context, dev automation.DeviceInfo, rd *reading.Reading, firings []automation.Firing) []automation.DispatchResult
}

// Mirror receives a copy of every stored reading. It must not block.
type Mirror interface {
	MirrorReading(r reading.Reading)
}

// ChannelReadingReceived is the WebSocket channel for stored readings.
const ChannelReadingReceived = "reading.received"

// Request is one incoming sensor observation.
type Request struct {
	DeviceID    string   `json:"device_id"`
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Moisture    *float64 `json:"moisture,omitempty"`
}

// Result is the outcome of an ingest that stored its reading.
type Result struct {
	Reading    reading.Reading             `json:"reading"`
	Dispatches []automation.DispatchResult `json:"dispatches"`
}

// persistenceErr returns the first dispatch error from recording a
// triggered action.
func (r *Result) persistenceErr() error {
	for _, d := range r.Dispatches {
		if errors.Is(d.Err, automation.ErrPersistence) {
			return d.Err
		}
	}
	return nil
}

// Failed returns how many dispatches failed.
func (r *Result) Failed() int {
	n := 0
	for _, d := range r.Dispatches {
		if !d.Success {
			n++
		}
	}
	return n
}

// Deps holds the collaborators of a Service. Hub, Mirror and Logger are
// optional.
type Deps struct {
	Devices    automation.DeviceDirectory
	Readings   ReadingStore
	Rules      RuleStore
	Dispatcher Dispatcher
	Hub        automation.WSHub
	Mirror     Mirror
	Logger     Logger
}

// Service runs the ingest pipeline.
//
// Thread Safety: Ingest is safe for concurrent use.
type Service struct {
	devices    automation.DeviceDirectory
	readings   ReadingStore
	rules      RuleStore
	dispatcher Dispatcher
	hub        automation.WSHub
	mirror     Mirror
	logger     Logger
}

// NewService creates an ingest service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Service{
		devices:    deps.Devices,
		readings:   deps.Readings,
		rules:      deps.Rules,
		dispatcher: deps.Dispatcher,
		hub:        deps.Hub,
		mirror:     deps.Mirror,
		logger:     logger,
	}
}

// Ingest stores one reading and dispatches every rule it fires.
//
// Returns:
//   - ErrInvalidReading or ErrDeviceNotFound: nothing was stored
//   - ErrPersistence: the reading could not be stored, or a fired rule's
//     triggered action could not be recorded; in the second case every
//     firing was still dispatched and the full Result is returned alongside
//   - ErrRuleStore: the reading was stored but rules were not evaluated;
//     the partial Result is returned alongside
//
// Publish and status failures are reported in Result.Dispatches only.
func (s *Service) Ingest(ctx context.Context, req Request) (*Result, error) {
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", ErrInvalidReading)
	}

	dev, err := s.devices.Lookup(ctx, deviceID)
	if err != nil {
		if errors.Is(err, automation.ErrDeviceNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		return nil, fmt.Errorf("resolving device %s: %w", deviceID, err)
	}

	rd := &reading.Reading{
		DeviceID:    dev.ID,
		OwnerID:     dev.OwnerID,
		Temperature: req.Temperature,
		Humidity:    req.Humidity,
		Moisture:    req.Moisture,
	}
	if err := s.readings.Append(ctx, rd); err != nil {
		if errors.Is(err, reading.ErrInvalidReading) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidReading, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.logger.Debug("reading stored", "reading_id", rd.ID, "device_id", rd.DeviceID)
	if s.hub != nil {
		s.hub.Broadcast(rd.OwnerID, ChannelReadingReceived, rd)
	}
	if s.mirror != nil {
		s.mirror.MirrorReading(*rd)
	}

	result := &Result{Reading: *rd, Dispatches: []automation.DispatchResult{}}

	rules, err := s.rules.ListEnabledRules(ctx, dev.ID)
	if err != nil {
		s.logger.Error("listing rules failed", "device_id", dev.ID, "error", err)
		return result, fmt.Errorf("%w: %w", ErrRuleStore, err)
	}

	firings := automation.Evaluate(rd, rules)
	if len(firings) > 0 {
		result.Dispatches = s.dispatcher.Dispatch(ctx, dev, rd, firings)
	}

	if err := result.persistenceErr(); err != nil {
		s.logger.Error("recording triggered action failed",
			"reading_id", rd.ID, "device_id", dev.ID, "error", err)
		return result, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	if failed := result.Failed(); failed > 0 {
		s.logger.Warn("reading ingested with dispatch failures",
			"reading_id", rd.ID, "device_id", dev.ID, "fired", len(firings), "failed", failed)
	} else {
		s.logger.Debug("reading ingested", "reading_id", rd.ID, "device_id", dev.ID, "fired", len(firings))
	}
	return result, nil
}
