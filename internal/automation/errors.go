package automation

import "errors"

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, automation.ErrDispatch) {
//	    // the command did not reach the device
//	}
var (
	// ErrRuleNotFound is returned when a rule ID does not exist or belongs
	// to another owner.
	ErrRuleNotFound = errors.New("automation: rule not found")

	// ErrRuleExists is returned when creating a rule with a taken ID.
	ErrRuleExists = errors.New("automation: rule already exists")

	// ErrInvalidRule is returned when rule validation fails.
	ErrInvalidRule = errors.New("automation: invalid rule")

	// ErrInvalidCommand is returned for an empty or malformed command.
	ErrInvalidCommand = errors.New("automation: invalid command")

	// ErrDeviceNotFound is returned when a device does not resolve in the
	// device directory, or belongs to another owner.
	ErrDeviceNotFound = errors.New("automation: device not found")

	// ErrDispatch is returned when publishing a command or recording the
	// device status fails. It is isolated to one rule.
	ErrDispatch = errors.New("automation: dispatch failed")

	// ErrPersistence is returned when an audit record cannot be written.
	ErrPersistence = errors.New("automation: persistence failed")

	// ErrDuplicateAction is returned when a rule already has an audit
	// record for the same reading.
	ErrDuplicateAction = errors.New("automation: action already recorded for reading")
)
