package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/smart-watering-core/internal/reading"
)

// DeviceDirectory resolves devices for the engine.
type DeviceDirectory interface {
	// Lookup returns the device, or an error wrapping ErrDeviceNotFound.
	Lookup(ctx context.Context, deviceID string) (DeviceInfo, error)
}

// Publisher sends a command payload to a device topic. The device id is
// passed separately for transports that key messages by device.
type Publisher interface {
	Publish(ctx context.Context, topic, deviceID string, payload []byte) error
}

// StateSink records the last command issued to a device.
type StateSink interface {
	SetDeviceStatus(ctx context.Context, deviceID, status string) error
}

// ActionSink appends triggered action audit records.
type ActionSink interface {
	Append(ctx context.Context, a *TriggeredAction) error
}

// WSHub pushes events to WebSocket clients of one owner.
type WSHub interface {
	Broadcast(ownerID, channel string, payload any)
}

// Mirror receives a copy of every recorded action, e.g. for a time-series
// store. It must not block.
type Mirror interface {
	MirrorTrigger(a TriggeredAction)
}

// WebSocket channels published by the dispatcher.
const (
	ChannelRuleTriggered       = "rule.triggered"
	ChannelDeviceStatusChanged = "device.status_changed"
)

const maxCommandLength = 64

// DispatcherDeps holds the collaborators of a Dispatcher. Hub, Mirror and
// Logger are optional.
type DispatcherDeps struct {
	Devices   DeviceDirectory
	Publisher Publisher
	State     StateSink
	Actions   ActionSink
	Hub       WSHub
	Mirror    Mirror
	Logger    Logger
}

// Dispatcher turns firings and manual commands into published commands,
// device status updates and audit records.
//
// Thread Safety: Dispatch and Command are safe for concurrent use. Two
// dispatches to the same device race on its status; the last write wins.
type Dispatcher struct {
	devices   DeviceDirectory
	publisher Publisher
	state     StateSink
	actions   ActionSink
	hub       WSHub
	mirror    Mirror
	logger    Logger
	now       func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{
		devices:   deps.Devices,
		publisher: deps.Publisher,
		state:     deps.State,
		actions:   deps.Actions,
		hub:       deps.Hub,
		mirror:    deps.Mirror,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// commandMessage is the JSON body published to a device topic.
type commandMessage struct {
	DeviceID       string        `json:"device_id"`
	Command        string        `json:"command"`
	Timestamp      string        `json:"timestamp"`
	TriggeredBy    Source        `json:"triggered_by"`
	ConditionType  ConditionType `json:"condition_type,omitempty"`
	ConditionValue *float64      `json:"condition_value,omitempty"`
	CurrentValue   *float64      `json:"current_value,omitempty"`
}

// Dispatch handles every firing for reading rd on device dev, in order.
//
// For each firing it:
//  1. publishes the command to dev.Topic (failure aborts this firing only)
//  2. sets the device status to the rule's action
//  3. appends a TriggeredAction with source "condition"
//
// A status failure is reported but the audit record is still written,
// since the command has already left. Results are returned one per firing,
// in the same order.
func (d *Dispatcher) Dispatch(ctx context.Context, dev DeviceInfo, rd *reading.Reading, firings []Firing) []DispatchResult {
	results := make([]DispatchResult, 0, len(firings))
	for _, f := range firings {
		threshold, observed := f.Rule.Threshold, f.Observed
		action := &TriggeredAction{
			ID:            GenerateActionID(),
			OwnerID:       dev.OwnerID,
			DeviceID:      dev.ID,
			Source:        SourceCondition,
			Action:        f.Rule.Action,
			RuleID:        f.Rule.ID,
			ReadingID:     rd.ID,
			ConditionType: f.Rule.ConditionType,
			Threshold:     &threshold,
			ObservedValue: &observed,
		}

		err := d.execute(ctx, dev, action)
		result := DispatchResult{
			RuleID:  f.Rule.ID,
			Action:  f.Rule.Action,
			Success: err == nil,
			Err:     err,
		}
		if err != nil {
			result.Error = err.Error()
			d.logger.Warn("rule dispatch failed",
				"rule_id", f.Rule.ID,
				"device_id", dev.ID,
				"action", f.Rule.Action,
				"error", err,
			)
		}
		if recorded(action, err) {
			result.ActionID = action.ID
		}
		results = append(results, result)

		if err == nil {
			d.logger.Info("rule fired",
				"rule_id", f.Rule.ID,
				"device_id", dev.ID,
				"condition_type", f.Rule.ConditionType,
				"threshold", f.Rule.Threshold,
				"observed", f.Observed,
				"action", f.Rule.Action,
			)
		}
	}
	return results
}

// Command issues a manual command to one of the owner's devices, using the
// same publish, status, audit sequence as a fired rule.
//
// Returns:
//   - the recorded action, also on a status or audit failure after the
//     command was published
//   - ErrInvalidCommand, ErrDeviceNotFound, or an error wrapping
//     ErrDispatch or ErrPersistence
func (d *Dispatcher) Command(ctx context.Context, ownerID, deviceID, command string) (*TriggeredAction, error) {
	if err := ValidateCommand(command); err != nil {
		return nil, err
	}

	dev, err := d.devices.Lookup(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if dev.OwnerID != ownerID {
		return nil, ErrDeviceNotFound
	}

	action := &TriggeredAction{
		ID:       GenerateActionID(),
		OwnerID:  dev.OwnerID,
		DeviceID: dev.ID,
		Source:   SourceManual,
		Action:   command,
	}
	if err := d.execute(ctx, dev, action); err != nil {
		d.logger.Warn("manual command failed", "device_id", dev.ID, "command", command, "error", err)
		if action.FiredAt.IsZero() {
			return nil, err
		}
		return action, err
	}

	d.logger.Info("manual command sent", "device_id", dev.ID, "command", command)
	return action, nil
}

// execute runs publish, status, audit for one action. FiredAt is set once
// the command has been published.
func (d *Dispatcher) execute(ctx context.Context, dev DeviceInfo, action *TriggeredAction) error {
	firedAt := d.now()

	payload, err := json.Marshal(newCommandMessage(action, firedAt))
	if err != nil {
		return fmt.Errorf("%w: marshalling command: %w", ErrDispatch, err)
	}

	if dev.Topic == "" {
		return fmt.Errorf("%w: device %s has no command topic", ErrDispatch, dev.ID)
	}
	if err := d.publisher.Publish(ctx, dev.Topic, dev.ID, payload); err != nil {
		return fmt.Errorf("%w: publishing to %q: %w", ErrDispatch, dev.Topic, err)
	}
	action.FiredAt = firedAt

	var statusErr error
	if err := d.state.SetDeviceStatus(ctx, dev.ID, action.Action); err != nil {
		statusErr = fmt.Errorf("%w: updating device status: %w", ErrDispatch, err)
	} else {
		d.broadcast(action.OwnerID, ChannelDeviceStatusChanged, map[string]any{
			"device_id": dev.ID,
			"status":    action.Action,
			"source":    action.Source,
		})
	}

	if err := d.actions.Append(ctx, action); err != nil {
		return errors.Join(statusErr, fmt.Errorf("%w: recording action: %w", ErrPersistence, err))
	}

	if action.Source == SourceCondition {
		d.broadcast(action.OwnerID, ChannelRuleTriggered, action)
	}
	if d.mirror != nil {
		d.mirror.MirrorTrigger(*action)
	}
	return statusErr
}

// recorded reports whether execute got as far as writing the audit record.
func recorded(a *TriggeredAction, err error) bool {
	return !a.FiredAt.IsZero() && !errors.Is(err, ErrPersistence)
}

func (d *Dispatcher) broadcast(ownerID, channel string, payload any) {
	if d.hub != nil {
		d.hub.Broadcast(ownerID, channel, payload)
	}
}

func newCommandMessage(a *TriggeredAction, at time.Time) commandMessage {
	return commandMessage{
		DeviceID:       a.DeviceID,
		Command:        a.Action,
		Timestamp:      at.Format(time.RFC3339Nano),
		TriggeredBy:    a.Source,
		ConditionType:  a.ConditionType,
		ConditionValue: a.Threshold,
		CurrentValue:   a.ObservedValue,
	}
}

// ValidateCommand checks a manual command or rule action word.
func ValidateCommand(command string) error {
	if command == "" {
		return fmt.Errorf("%w: command is required", ErrInvalidCommand)
	}
	if len(command) > maxCommandLength {
		return fmt.Errorf("%w: exceeds %d characters", ErrInvalidCommand, maxCommandLength)
	}
	if strings.TrimSpace(command) != command || strings.ContainsAny(command, "/+#\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidCommand, command)
	}
	return nil
}
