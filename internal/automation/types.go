package automation

import (
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/smart-watering-core/internal/reading"
)

// ConditionType names the measurement a rule watches.
type ConditionType string

const (
	// ConditionNone marks a rule with no condition. It never fires
	// automatically.
	ConditionNone ConditionType = ""

	// ConditionTemperature fires when temperature >= threshold.
	ConditionTemperature ConditionType = "temperature"

	// ConditionHumidity fires when humidity <= threshold.
	ConditionHumidity ConditionType = "humidity"

	// ConditionMoisture fires when soil moisture <= threshold.
	ConditionMoisture ConditionType = "moisture"
)

// Known reports whether c is one of the three measurement kinds.
func (c ConditionType) Known() bool {
	switch c {
	case ConditionTemperature, ConditionHumidity, ConditionMoisture:
		return true
	default:
		return false
	}
}

// Observed returns the measurement of r that c watches, or nil when the
// measurement is absent or c is not a known kind.
func (c ConditionType) Observed(r *reading.Reading) *float64 {
	switch c {
	case ConditionTemperature:
		return r.Temperature
	case ConditionHumidity:
		return r.Humidity
	case ConditionMoisture:
		return r.Moisture
	default:
		return nil
	}
}

// Holds reports whether value satisfies c against threshold. Heat is bad
// above the threshold; dryness is bad below it.
func (c ConditionType) Holds(value, threshold float64) bool {
	switch c {
	case ConditionTemperature:
		return value >= threshold
	case ConditionHumidity, ConditionMoisture:
		return value <= threshold
	default:
		return false
	}
}

// Source records what issued a command.
type Source string

const (
	// SourceCondition marks commands issued by a fired rule.
	SourceCondition Source = "condition"

	// SourceManual marks commands issued directly by a user.
	SourceManual Source = "manual"
)

// Rule is a stored condition-to-command binding for one device.
type Rule struct {
	ID            string        `json:"id"`
	OwnerID       string        `json:"owner_id"`
	DeviceID      string        `json:"device_id"`
	ConditionType ConditionType `json:"condition_type,omitempty"`
	Threshold     float64       `json:"threshold"`
	Action        string        `json:"action"`
	Enabled       bool          `json:"enabled"`

	// TimeOfDay ("HH:MM") and Days are schedule metadata kept with the
	// rule. Nothing acts on them.
	TimeOfDay string   `json:"time,omitempty"`
	Days      []string `json:"days,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeepCopy returns an independent copy safe to hand out of the cache.
func (r *Rule) DeepCopy() *Rule {
	if r == nil {
		return nil
	}
	cpy := *r
	if r.Days != nil {
		cpy.Days = append([]string(nil), r.Days...)
	}
	return &cpy
}

// TriggeredAction is the audit record of one dispatched command.
// It is written once and never changed.
type TriggeredAction struct {
	ID       string `json:"id"`
	OwnerID  string `json:"owner_id"`
	DeviceID string `json:"device_id"`
	Source   Source `json:"source"`
	Action   string `json:"action"`

	// Set for SourceCondition only.
	RuleID        string        `json:"rule_id,omitempty"`
	ReadingID     string        `json:"reading_id,omitempty"`
	ConditionType ConditionType `json:"condition_type,omitempty"`
	Threshold     *float64      `json:"threshold,omitempty"`
	ObservedValue *float64      `json:"observed_value,omitempty"`

	FiredAt time.Time `json:"fired_at"`
}

// Firing is one rule whose condition held for a reading.
type Firing struct {
	Rule     Rule
	Observed float64
}

// DispatchResult reports the outcome of dispatching one firing.
type DispatchResult struct {
	RuleID   string `json:"rule_id"`
	Action   string `json:"action"`
	Success  bool   `json:"success"`
	ActionID string `json:"action_id,omitempty"`
	Error    string `json:"error,omitempty"`

	// Err is the underlying error; it wraps ErrDispatch or ErrPersistence.
	Err error `json:"-"`
}

// DeviceInfo is what the engine needs to know about a device.
type DeviceInfo struct {
	ID      string
	OwnerID string
	Topic   string
}

// GenerateRuleID returns a new rule id.
func GenerateRuleID() string {
	return "rule-" + uuid.NewString()[:8]
}

// GenerateActionID returns a new triggered action id.
func GenerateActionID() string {
	return "act-" + uuid.NewString()
}
