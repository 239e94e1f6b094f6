package ruleset

import (
	"errors"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default ruleset invalid: %v", err)
	}
}

func TestApplyProducesNewInstance(t *testing.T) {
	base := Default()
	next, err := base.Apply(map[string]any{"three_point_value": 5})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if next.ThreePointValue != 5 {
		t.Fatalf("expected 5, got %d", next.ThreePointValue)
	}
	if base.ThreePointValue != 3 {
		t.Fatalf("base mutated: %d", base.ThreePointValue)
	}
}

func TestApplyRejectsAtomically(t *testing.T) {
	base := Default()
	_, err := base.Apply(map[string]any{
		"three_point_value": 5,
		"elam_margin":       999,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	var invalid *InvalidRuleError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *InvalidRuleError, got %T", err)
	}
	if invalid.Parameter != "elam_margin" {
		t.Fatalf("expected offending parameter elam_margin, got %q", invalid.Parameter)
	}
}

func TestApplyRejectsUnknownParameter(t *testing.T) {
	_, err := Default().Apply(map[string]any{"gravity": 2})
	var invalid *InvalidRuleError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected *InvalidRuleError, got %v", err)
	}
	if invalid.Parameter != "gravity" {
		t.Fatalf("unexpected parameter %q", invalid.Parameter)
	}
}

func TestApplyRejectsNonIntegerForIntField(t *testing.T) {
	_, err := Default().Apply(map[string]any{"three_point_value": 2.5})
	if err == nil {
		t.Fatal("expected error for fractional int parameter")
	}
}

func TestDiffEnumeratesChanges(t *testing.T) {
	base := Default()
	next, err := base.Apply(map[string]any{
		"three_point_value": 5,
		"elam_margin":       13,
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	changes := base.Diff(next)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d: %+v", len(changes), changes)
	}
	byName := make(map[string]Change)
	for _, c := range changes {
		byName[c.Parameter] = c
	}
	if c := byName["three_point_value"]; c.From != 3 || c.To != 5 {
		t.Fatalf("unexpected change %+v", c)
	}
	if c := byName["elam_margin"]; c.From != 11 || c.To != 13 {
		t.Fatalf("unexpected change %+v", c)
	}
	if diff := base.Diff(base); diff != nil {
		t.Fatalf("expected empty diff, got %+v", diff)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	base, err := Default().Apply(map[string]any{"quarter_possessions": 7})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	data, err := base.MarshalSnapshot()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	restored, err := UnmarshalSnapshot(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if restored != base {
		t.Fatalf("round trip mismatch:\n%+v\n%+v", base, restored)
	}
}

func TestParameterTier(t *testing.T) {
	tests := []struct {
		parameter string
		want      int
	}{
		{"three_point_value", 1},
		{"quarter_possessions", 2},
		{"base_foul_rate", 3},
		{"governance_window_seconds", 4},
		{"unknown", 0},
	}
	for _, tt := range tests {
		if got := ParameterTier(tt.parameter); got != tt.want {
			t.Errorf("ParameterTier(%q) = %d, want %d", tt.parameter, got, tt.want)
		}
	}
}

func TestFromMapValidatesEveryField(t *testing.T) {
	_, err := FromMap(map[string]any{"quarter_minutes": 0.5})
	if err == nil {
		t.Fatal("expected out-of-range error")
	}

	r, err := FromMap(map[string]any{"quarter_minutes": 12})
	if err != nil {
		t.Fatalf("from map: %v", err)
	}
	if r.QuarterMinutes != 12 {
		t.Fatalf("expected 12, got %g", r.QuarterMinutes)
	}
}
