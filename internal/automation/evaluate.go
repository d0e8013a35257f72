package automation

import "github.com/nerrad567/smart-watering-core/internal/reading"

// Evaluate returns the rules that fire for r, in the order given.
//
// A rule fires when it is enabled, has a known condition, the watched
// measurement is present in r, and the measurement holds against the
// threshold. Each rule fires at most once. Rules for other devices are
// ignored.
func Evaluate(r *reading.Reading, rules []Rule) []Firing {
	var firings []Firing
	for i := range rules {
		rule := &rules[i]
		if !rule.Enabled || rule.DeviceID != r.DeviceID || !rule.ConditionType.Known() {
			continue
		}
		observed := rule.ConditionType.Observed(r)
		if observed == nil {
			continue
		}
		if rule.ConditionType.Holds(*observed, rule.Threshold) {
			firings = append(firings, Firing{Rule: *rule.DeepCopy(), Observed: *observed})
		}
	}
	return firings
}
