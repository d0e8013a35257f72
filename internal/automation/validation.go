package automation

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
)

// Validation constants.
const (
	maxThreshold = 1e6
	maxDays      = 7
)

var timeOfDayRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// validDays uses the lowercase three-letter weekday names.
var validDays = map[string]int{
	"mon": 0, "tue": 1, "wed": 2, "thu": 3, "fri": 4, "sat": 5, "sun": 6,
}

// ValidateRule checks a rule's own fields. Device ownership is checked by
// the Registry, which can see the device directory.
func ValidateRule(r *Rule) error {
	if r == nil {
		return ErrInvalidRule
	}
	if strings.TrimSpace(r.OwnerID) == "" {
		return fmt.Errorf("%w: owner_id is required", ErrInvalidRule)
	}
	if strings.TrimSpace(r.DeviceID) == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidRule)
	}

	if err := ValidateCommand(r.Action); err != nil {
		return fmt.Errorf("%w: action: %w", ErrInvalidRule, err)
	}

	if r.ConditionType != ConditionNone && !r.ConditionType.Known() {
		return fmt.Errorf("%w: unknown condition_type %q (must be temperature, humidity or moisture)",
			ErrInvalidRule, r.ConditionType)
	}
	if math.IsNaN(r.Threshold) || math.IsInf(r.Threshold, 0) {
		return fmt.Errorf("%w: threshold must be a finite number", ErrInvalidRule)
	}
	if math.Abs(r.Threshold) > maxThreshold {
		return fmt.Errorf("%w: threshold out of range", ErrInvalidRule)
	}

	if r.TimeOfDay != "" && !timeOfDayRegex.MatchString(r.TimeOfDay) {
		return fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidRule, r.TimeOfDay)
	}
	if len(r.Days) > maxDays {
		return fmt.Errorf("%w: at most %d days", ErrInvalidRule, maxDays)
	}
	seen := make(map[string]bool, len(r.Days))
	for _, day := range r.Days {
		if _, ok := validDays[day]; !ok {
			return fmt.Errorf("%w: unknown day %q", ErrInvalidRule, day)
		}
		if seen[day] {
			return fmt.Errorf("%w: day %q listed twice", ErrInvalidRule, day)
		}
		seen[day] = true
	}
	return nil
}

// normaliseDays lowercases day names and orders them Monday first.
func normaliseDays(days []string) []string {
	if len(days) == 0 {
		return nil
	}
	out := make([]string, 0, len(days))
	for _, d := range days {
		out = append(out, strings.ToLower(strings.TrimSpace(d)))
	}
	slices.SortStableFunc(out, func(a, b string) int { return dayIndex(a) - dayIndex(b) })
	return out
}

func dayIndex(d string) int {
	if i, ok := validDays[d]; ok {
		return i
	}
	return len(validDays)
}
