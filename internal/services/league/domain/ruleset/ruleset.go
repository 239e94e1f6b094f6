// Package ruleset defines the validated bundle of numeric and boolean
// parameters bounding both simulation and governance.
//
// Rule sets are immutable after construction: Apply returns a new instance
// or rejects the whole change atomically.
package ruleset

import (
	"encoding/json"
	"fmt"
	"math"
)

// InvalidRuleError names the parameter that failed validation.
type InvalidRuleError struct {
	Parameter string
	Value     any
	Reason    string
}

func (e *InvalidRuleError) Error() string {
	return fmt.Sprintf("invalid rule %s=%v: %s", e.Parameter, e.Value, e.Reason)
}

// RuleSet bundles every tunable league parameter.
type RuleSet struct {
	// Game shape
	QuarterPossessions   int     `json:"quarter_possessions"`
	QuarterMinutes       float64 `json:"quarter_minutes"`
	ShotClockSeconds     int     `json:"shot_clock_seconds"`
	TwoPointValue        int     `json:"two_point_value"`
	ThreePointValue      int     `json:"three_point_value"`
	FreeThrowValue       int     `json:"free_throw_value"`
	ValuePerBonusPass    int     `json:"value_per_bonus_pass"`
	ElamTriggerQuarter   int     `json:"elam_trigger_quarter"`
	ElamMargin           int     `json:"elam_margin"`
	SafetyCapPossessions int     `json:"safety_cap_possessions"`

	// Fouls and free throws
	PersonalFoulLimit int     `json:"personal_foul_limit"`
	BaseFoulRate      float64 `json:"base_foul_rate"`
	FreeThrowCount    int     `json:"free_throw_count"`
	FreeThrowBasePct  float64 `json:"free_throw_base_pct"`

	// Shot model
	ShotMidpointAtRim     float64 `json:"shot_midpoint_at_rim"`
	ShotMidpointMidRange  float64 `json:"shot_midpoint_mid_range"`
	ShotMidpointThree     float64 `json:"shot_midpoint_three"`
	ShotSteepness         float64 `json:"shot_steepness"`
	ContestFactor         float64 `json:"contest_factor"`
	BaseTurnoverRate      float64 `json:"base_turnover_rate"`
	OffensiveReboundBase  float64 `json:"offensive_rebound_base"`
	DefensiveIntensityMax float64 `json:"defensive_intensity_max"`

	// Stamina
	StaminaDrainBase             float64 `json:"stamina_drain_base"`
	StaminaPaceDrain             float64 `json:"stamina_pace_drain"`
	BenchRecoveryPerPossession   float64 `json:"bench_recovery_per_possession"`
	QuarterBreakStaminaRecovery  float64 `json:"quarter_break_stamina_recovery"`
	HalftimeStaminaRecovery      float64 `json:"halftime_stamina_recovery"`
	SubstitutionStaminaThreshold float64 `json:"substitution_stamina_threshold"`

	// Governance
	GovernanceWindowSeconds  int `json:"governance_window_seconds"`
	GovernanceIntervalRounds int `json:"governance_interval_rounds"`
	TokensProposePerWindow   int `json:"tokens_propose_per_window"`
	TokensAmendPerWindow     int `json:"tokens_amend_per_window"`
	TokensBoostPerWindow     int `json:"tokens_boost_per_window"`
	AmendmentCap             int `json:"amendment_cap"`
}

// StaminaFloor is the hard lower bound on in-game stamina. Not governable.
const StaminaFloor = 0.15

// Default returns the league's starting rule set.
func Default() RuleSet {
	return RuleSet{
		QuarterPossessions:   5,
		QuarterMinutes:       10,
		ShotClockSeconds:     24,
		TwoPointValue:        2,
		ThreePointValue:      3,
		FreeThrowValue:       1,
		ValuePerBonusPass:    1,
		ElamTriggerQuarter:   3,
		ElamMargin:           11,
		SafetyCapPossessions: 120,

		PersonalFoulLimit: 5,
		BaseFoulRate:      0.12,
		FreeThrowCount:    2,
		FreeThrowBasePct:  0.72,

		ShotMidpointAtRim:     45,
		ShotMidpointMidRange:  55,
		ShotMidpointThree:     65,
		ShotSteepness:         0.08,
		ContestFactor:         0.25,
		BaseTurnoverRate:      0.11,
		OffensiveReboundBase:  0.28,
		DefensiveIntensityMax: 2,

		StaminaDrainBase:             0.03,
		StaminaPaceDrain:             0.01,
		BenchRecoveryPerPossession:   0.04,
		QuarterBreakStaminaRecovery:  0.10,
		HalftimeStaminaRecovery:      0.30,
		SubstitutionStaminaThreshold: 0.40,

		GovernanceWindowSeconds:  900,
		GovernanceIntervalRounds: 1,
		TokensProposePerWindow:   1,
		TokensAmendPerWindow:     1,
		TokensBoostPerWindow:     1,
		AmendmentCap:             3,
	}
}

// field describes one governable parameter: its bounds and accessors.
type field struct {
	name    string
	kind    string // "int" or "float"
	min     float64
	max     float64
	get     func(*RuleSet) float64
	set     func(*RuleSet, float64)
	govTier int
}

var fields = []field{
	{"quarter_possessions", "int", 1, 50, func(r *RuleSet) float64 { return float64(r.QuarterPossessions) }, func(r *RuleSet, v float64) { r.QuarterPossessions = int(v) }, 2},
	{"quarter_minutes", "float", 1, 48, func(r *RuleSet) float64 { return r.QuarterMinutes }, func(r *RuleSet, v float64) { r.QuarterMinutes = v }, 2},
	{"shot_clock_seconds", "int", 4, 60, func(r *RuleSet) float64 { return float64(r.ShotClockSeconds) }, func(r *RuleSet, v float64) { r.ShotClockSeconds = int(v) }, 2},
	{"two_point_value", "int", 0, 10, func(r *RuleSet) float64 { return float64(r.TwoPointValue) }, func(r *RuleSet, v float64) { r.TwoPointValue = int(v) }, 1},
	{"three_point_value", "int", 0, 10, func(r *RuleSet) float64 { return float64(r.ThreePointValue) }, func(r *RuleSet, v float64) { r.ThreePointValue = int(v) }, 1},
	{"free_throw_value", "int", 0, 5, func(r *RuleSet) float64 { return float64(r.FreeThrowValue) }, func(r *RuleSet, v float64) { r.FreeThrowValue = int(v) }, 1},
	{"value_per_bonus_pass", "int", 0, 3, func(r *RuleSet) float64 { return float64(r.ValuePerBonusPass) }, func(r *RuleSet, v float64) { r.ValuePerBonusPass = int(v) }, 2},
	{"elam_trigger_quarter", "int", 1, 4, func(r *RuleSet) float64 { return float64(r.ElamTriggerQuarter) }, func(r *RuleSet, v float64) { r.ElamTriggerQuarter = int(v) }, 3},
	{"elam_margin", "int", 1, 50, func(r *RuleSet) float64 { return float64(r.ElamMargin) }, func(r *RuleSet, v float64) { r.ElamMargin = int(v) }, 2},
	{"safety_cap_possessions", "int", 20, 500, func(r *RuleSet) float64 { return float64(r.SafetyCapPossessions) }, func(r *RuleSet, v float64) { r.SafetyCapPossessions = int(v) }, 4},
	{"personal_foul_limit", "int", 1, 10, func(r *RuleSet) float64 { return float64(r.PersonalFoulLimit) }, func(r *RuleSet, v float64) { r.PersonalFoulLimit = int(v) }, 2},
	{"base_foul_rate", "float", 0, 0.5, func(r *RuleSet) float64 { return r.BaseFoulRate }, func(r *RuleSet, v float64) { r.BaseFoulRate = v }, 3},
	{"free_throw_count", "int", 0, 5, func(r *RuleSet) float64 { return float64(r.FreeThrowCount) }, func(r *RuleSet, v float64) { r.FreeThrowCount = int(v) }, 2},
	{"free_throw_base_pct", "float", 0.1, 1, func(r *RuleSet) float64 { return r.FreeThrowBasePct }, func(r *RuleSet, v float64) { r.FreeThrowBasePct = v }, 3},
	{"shot_midpoint_at_rim", "float", 10, 90, func(r *RuleSet) float64 { return r.ShotMidpointAtRim }, func(r *RuleSet, v float64) { r.ShotMidpointAtRim = v }, 4},
	{"shot_midpoint_mid_range", "float", 10, 90, func(r *RuleSet) float64 { return r.ShotMidpointMidRange }, func(r *RuleSet, v float64) { r.ShotMidpointMidRange = v }, 4},
	{"shot_midpoint_three", "float", 10, 90, func(r *RuleSet) float64 { return r.ShotMidpointThree }, func(r *RuleSet, v float64) { r.ShotMidpointThree = v }, 4},
	{"shot_steepness", "float", 0.01, 0.5, func(r *RuleSet) float64 { return r.ShotSteepness }, func(r *RuleSet, v float64) { r.ShotSteepness = v }, 4},
	{"contest_factor", "float", 0, 1, func(r *RuleSet) float64 { return r.ContestFactor }, func(r *RuleSet, v float64) { r.ContestFactor = v }, 3},
	{"base_turnover_rate", "float", 0, 0.5, func(r *RuleSet) float64 { return r.BaseTurnoverRate }, func(r *RuleSet, v float64) { r.BaseTurnoverRate = v }, 3},
	{"offensive_rebound_base", "float", 0, 1, func(r *RuleSet) float64 { return r.OffensiveReboundBase }, func(r *RuleSet, v float64) { r.OffensiveReboundBase = v }, 3},
	{"defensive_intensity_max", "float", 0, 5, func(r *RuleSet) float64 { return r.DefensiveIntensityMax }, func(r *RuleSet, v float64) { r.DefensiveIntensityMax = v }, 3},
	{"stamina_drain_base", "float", 0, 0.2, func(r *RuleSet) float64 { return r.StaminaDrainBase }, func(r *RuleSet, v float64) { r.StaminaDrainBase = v }, 3},
	{"stamina_pace_drain", "float", 0, 0.2, func(r *RuleSet) float64 { return r.StaminaPaceDrain }, func(r *RuleSet, v float64) { r.StaminaPaceDrain = v }, 3},
	{"bench_recovery_per_possession", "float", 0, 0.5, func(r *RuleSet) float64 { return r.BenchRecoveryPerPossession }, func(r *RuleSet, v float64) { r.BenchRecoveryPerPossession = v }, 3},
	{"quarter_break_stamina_recovery", "float", 0, 1, func(r *RuleSet) float64 { return r.QuarterBreakStaminaRecovery }, func(r *RuleSet, v float64) { r.QuarterBreakStaminaRecovery = v }, 3},
	{"halftime_stamina_recovery", "float", 0, 1, func(r *RuleSet) float64 { return r.HalftimeStaminaRecovery }, func(r *RuleSet, v float64) { r.HalftimeStaminaRecovery = v }, 3},
	{"substitution_stamina_threshold", "float", StaminaFloor, 1, func(r *RuleSet) float64 { return r.SubstitutionStaminaThreshold }, func(r *RuleSet, v float64) { r.SubstitutionStaminaThreshold = v }, 3},
	{"governance_window_seconds", "int", 60, 86400, func(r *RuleSet) float64 { return float64(r.GovernanceWindowSeconds) }, func(r *RuleSet, v float64) { r.GovernanceWindowSeconds = int(v) }, 4},
	{"governance_interval_rounds", "int", 1, 10, func(r *RuleSet) float64 { return float64(r.GovernanceIntervalRounds) }, func(r *RuleSet, v float64) { r.GovernanceIntervalRounds = int(v) }, 4},
	{"tokens_propose_per_window", "int", 0, 10, func(r *RuleSet) float64 { return float64(r.TokensProposePerWindow) }, func(r *RuleSet, v float64) { r.TokensProposePerWindow = int(v) }, 4},
	{"tokens_amend_per_window", "int", 0, 10, func(r *RuleSet) float64 { return float64(r.TokensAmendPerWindow) }, func(r *RuleSet, v float64) { r.TokensAmendPerWindow = int(v) }, 4},
	{"tokens_boost_per_window", "int", 0, 10, func(r *RuleSet) float64 { return float64(r.TokensBoostPerWindow) }, func(r *RuleSet, v float64) { r.TokensBoostPerWindow = int(v) }, 4},
	{"amendment_cap", "int", 0, 10, func(r *RuleSet) float64 { return float64(r.AmendmentCap) }, func(r *RuleSet, v float64) { r.AmendmentCap = int(v) }, 4},
}

var fieldIndex = func() map[string]*field {
	index := make(map[string]*field, len(fields))
	for i := range fields {
		index[fields[i].name] = &fields[i]
	}
	return index
}()

// Parameters returns every governable parameter name.
func Parameters() []string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.name)
	}
	return names
}

// IsParameter reports whether name is a governable parameter.
func IsParameter(name string) bool {
	_, ok := fieldIndex[name]
	return ok
}

// ParameterTier returns the governance tier for a parameter change.
// Unknown parameters report tier 0.
func ParameterTier(name string) int {
	f, ok := fieldIndex[name]
	if !ok {
		return 0
	}
	return f.govTier
}

// Validate checks every parameter against its declared bounds.
func (r RuleSet) Validate() error {
	for _, f := range fields {
		value := f.get(&r)
		if value < f.min || value > f.max {
			return &InvalidRuleError{
				Parameter: f.name,
				Value:     value,
				Reason:    fmt.Sprintf("must be in [%g, %g]", f.min, f.max),
			}
		}
		if f.kind == "int" && value != math.Trunc(value) {
			return &InvalidRuleError{Parameter: f.name, Value: value, Reason: "must be an integer"}
		}
	}
	return nil
}

// FromMap constructs a validated rule set from a structured map, starting
// from defaults. Unknown keys fail construction.
func FromMap(values map[string]any) (RuleSet, error) {
	r := Default()
	applied, err := r.Apply(values)
	if err != nil {
		return RuleSet{}, err
	}
	return applied, nil
}

// Apply returns a new rule set with the given parameter changes. The whole
// change set is rejected atomically when any value is unknown, mistyped, or
// out of range.
func (r RuleSet) Apply(changes map[string]any) (RuleSet, error) {
	next := r
	for name, raw := range changes {
		f, ok := fieldIndex[name]
		if !ok {
			return RuleSet{}, &InvalidRuleError{Parameter: name, Value: raw, Reason: "unknown parameter"}
		}
		value, ok := toFloat(raw)
		if !ok {
			return RuleSet{}, &InvalidRuleError{Parameter: name, Value: raw, Reason: "must be numeric"}
		}
		f.set(&next, value)
	}
	if err := next.Validate(); err != nil {
		return RuleSet{}, err
	}
	return next, nil
}

// Get returns a parameter's current value by name.
func (r RuleSet) Get(name string) (float64, bool) {
	f, ok := fieldIndex[name]
	if !ok {
		return 0, false
	}
	return f.get(&r), true
}

// Change records one parameter difference between two rule sets.
type Change struct {
	Parameter string
	From      float64
	To        float64
}

// Diff enumerates parameters whose values differ between r and other.
func (r RuleSet) Diff(other RuleSet) []Change {
	var changes []Change
	for _, f := range fields {
		from := f.get(&r)
		to := f.get(&other)
		if from != to {
			changes = append(changes, Change{Parameter: f.name, From: from, To: to})
		}
	}
	return changes
}

// MarshalSnapshot encodes the rule set for embedding in a game result.
func (r RuleSet) MarshalSnapshot() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal ruleset: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot decodes and validates a stored rule set.
func UnmarshalSnapshot(data []byte) (RuleSet, error) {
	var r RuleSet
	if err := json.Unmarshal(data, &r); err != nil {
		return RuleSet{}, fmt.Errorf("unmarshal ruleset: %w", err)
	}
	if err := r.Validate(); err != nil {
		return RuleSet{}, err
	}
	return r, nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		parsed, err := v.Float64()
		return parsed, err == nil
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
