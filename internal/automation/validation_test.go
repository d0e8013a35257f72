package automation

import (
	"errors"
	"math"
	"testing"
)

func TestValidateRule(t *testing.T) {
	valid := func() *Rule {
		return &Rule{OwnerID: "owner-1", DeviceID: "dev-1", ConditionType: ConditionMoisture, Threshold: 30, Action: "on"}
	}

	tests := []struct {
		name    string
		mutate  func(r *Rule)
		wantErr bool
	}{
		{"valid", func(*Rule) {}, false},
		{"no condition", func(r *Rule) { r.ConditionType = ConditionNone }, false},
		{"schedule metadata", func(r *Rule) { r.TimeOfDay = "23:59"; r.Days = []string{"mon", "sun"} }, false},
		{"missing owner", func(r *Rule) { r.OwnerID = "" }, true},
		{"missing device", func(r *Rule) { r.DeviceID = "" }, true},
		{"missing action", func(r *Rule) { r.Action = "" }, true},
		{"unknown condition", func(r *Rule) { r.ConditionType = "light" }, true},
		{"NaN threshold", func(r *Rule) { r.Threshold = math.NaN() }, true},
		{"infinite threshold", func(r *Rule) { r.Threshold = math.Inf(-1) }, true},
		{"huge threshold", func(r *Rule) { r.Threshold = 2e6 }, true},
		{"bad time", func(r *Rule) { r.TimeOfDay = "24:00" }, true},
		{"unpadded time", func(r *Rule) { r.TimeOfDay = "6:30" }, true},
		{"unknown day", func(r *Rule) { r.Days = []string{"funday"} }, true},
		{"repeated day", func(r *Rule) { r.Days = []string{"mon", "mon"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid()
			tt.mutate(r)
			err := ValidateRule(r)
			if tt.wantErr && !errors.Is(err, ErrInvalidRule) {
				t.Errorf("ValidateRule() error = %v, want ErrInvalidRule", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateRule() error = %v, want nil", err)
			}
		})
	}

	if err := ValidateRule(nil); !errors.Is(err, ErrInvalidRule) {
		t.Errorf("ValidateRule(nil) = %v, want ErrInvalidRule", err)
	}
}

func TestNormaliseDays(t *testing.T) {
	got := normaliseDays([]string{" SUN", "wed", "Mon"})
	if want := []string{"mon", "wed", "sun"}; !equalIDs(got, want) {
		t.Errorf("normaliseDays() = %v, want %v", got, want)
	}
	week := normaliseDays([]string{"sun", "sat", "fri", "thu", "wed", "tue", "mon"})
	if want := []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}; !equalIDs(week, want) {
		t.Errorf("normaliseDays(week) = %v, want %v", week, want)
	}
	if normaliseDays(nil) != nil {
		t.Error("normaliseDays(nil) should be nil")
	}
}
