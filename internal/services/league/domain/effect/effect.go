// Package effect implements the runtime effect registry: rules installed by
// passed proposals that intercept named hook points during simulation and
// report generation. Effects carry a condition tree and a small enumerated
// set of mutation actions; expressions inside action arguments evaluate
// against the unified context with a restricted grammar, never arbitrary
// code.
package effect

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Hook point names the engine fires. Effects subscribe with exact names or
// wildcards at any depth ("sim.*", "sim.possession.*", "*").
const (
	HookGamePre          = "sim.game.pre"
	HookQuarterPre       = "sim.quarter.pre"
	HookQuarterPost      = "sim.quarter.post"
	HookPossessionPre    = "sim.possession.pre"
	HookPossessionPost   = "sim.possession.post"
	HookShotResolved     = "sim.shot.resolved"
	HookFoulCommitted    = "sim.foul.committed"
	HookReboundContested = "sim.rebound.contested"
	HookStaminaDrain     = "sim.stamina.drain"
	HookMoveTriggered    = "sim.move.triggered"
	HookReportSimPre     = "report.simulation.pre"
	HookReportCommPre    = "report.commentary.pre"
	HookGovPre           = "gov.pre"
	HookGovPost          = "gov.post"
)

// Kind classifies what a registered effect does.
type Kind string

const (
	// KindParameterChange mutates the season rule set when the proposal passes.
	KindParameterChange Kind = "parameter_change"
	// KindHookCallback installs conditional actions on simulation hook points.
	KindHookCallback Kind = "hook_callback"
	// KindMetaMutation writes to team or player meta buckets.
	KindMetaMutation Kind = "meta_mutation"
	// KindMoveGrant grants a player a new move.
	KindMoveGrant Kind = "move_grant"
	// KindNarrative injects flavor text into reports and commentary.
	KindNarrative Kind = "narrative"
	// KindCustomMechanic runs a sandboxed script against a fixed host API.
	KindCustomMechanic Kind = "custom_mechanic"
)

// DurationKind bounds how long an effect stays active.
type DurationKind string

const (
	DurationPermanent     DurationKind = "permanent"
	DurationNRounds       DurationKind = "n_rounds"
	DurationOneGame       DurationKind = "one_game"
	DurationUntilRepealed DurationKind = "until_repealed"
)

// Duration is the lifetime of a registered effect.
type Duration struct {
	Kind   DurationKind `json:"kind"`
	Rounds int          `json:"rounds,omitempty"`
}

// ErrInvalidSpec indicates a malformed effect specification.
var ErrInvalidSpec = errors.New("invalid effect spec")

// Spec is the structured effect specification produced by the AI interpreter
// (or hand-authored). It is the payload stored in effect.registered events.
type Spec struct {
	Kind       Kind       `json:"kind"`
	HookPoints []string   `json:"hook_points,omitempty"`
	Condition  *Condition `json:"condition,omitempty"`
	Actions    []Action   `json:"actions,omitempty"`
	// Scope targets the effect: "all", "team:{id}", "player:{id}".
	Scope    string   `json:"scope,omitempty"`
	Duration Duration `json:"duration"`
	// Priority orders firing within a hook point, higher first.
	Priority int `json:"priority,omitempty"`

	// Parameter and Value carry a parameter_change.
	Parameter string `json:"parameter,omitempty"`
	Value     any    `json:"value,omitempty"`

	// Narrative carries a narrative kind's text.
	Narrative string `json:"narrative,omitempty"`

	// PlayerID and Move carry a move_grant. Move is the player package's
	// JSON encoding of the granted move.
	PlayerID string          `json:"player_id,omitempty"`
	Move     json.RawMessage `json:"move,omitempty"`

	// Script carries a custom_mechanic's sandboxed program.
	Script string `json:"script,omitempty"`
}

// Validate checks the spec is structurally usable for its kind.
func (s Spec) Validate() error {
	switch s.Kind {
	case KindParameterChange:
		if strings.TrimSpace(s.Parameter) == "" {
			return fmt.Errorf("%w: parameter_change needs a parameter name", ErrInvalidSpec)
		}
	case KindHookCallback, KindMetaMutation:
		if len(s.HookPoints) == 0 {
			return fmt.Errorf("%w: %s needs at least one hook point", ErrInvalidSpec, s.Kind)
		}
		if len(s.Actions) == 0 {
			return fmt.Errorf("%w: %s needs at least one action", ErrInvalidSpec, s.Kind)
		}
	case KindMoveGrant:
		if strings.TrimSpace(s.PlayerID) == "" || len(s.Move) == 0 {
			return fmt.Errorf("%w: move_grant needs player_id and move", ErrInvalidSpec)
		}
	case KindNarrative:
		if strings.TrimSpace(s.Narrative) == "" {
			return fmt.Errorf("%w: narrative needs text", ErrInvalidSpec)
		}
	case KindCustomMechanic:
		if strings.TrimSpace(s.Script) == "" {
			return fmt.Errorf("%w: custom_mechanic needs a script", ErrInvalidSpec)
		}
		if len(s.HookPoints) == 0 {
			return fmt.Errorf("%w: custom_mechanic needs at least one hook point", ErrInvalidSpec)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, s.Kind)
	}
	switch s.Duration.Kind {
	case DurationPermanent, DurationOneGame, DurationUntilRepealed:
	case DurationNRounds:
		if s.Duration.Rounds <= 0 {
			return fmt.Errorf("%w: n_rounds duration needs rounds > 0", ErrInvalidSpec)
		}
	default:
		return fmt.Errorf("%w: unknown duration %q", ErrInvalidSpec, s.Duration.Kind)
	}
	return nil
}

// Effect is a registered effect: a spec bound to its source proposal and
// activation window. ExpirationRound zero means no scheduled expiration.
type Effect struct {
	ID              string `json:"id"`
	ProposalID      string `json:"proposal_id"`
	Spec            Spec   `json:"spec"`
	ActivationRound int    `json:"activation_round"`
	ExpirationRound int    `json:"expiration_round,omitempty"`
}

// ActiveAt reports whether the effect applies during round.
func (e Effect) ActiveAt(round int) bool {
	if round < e.ActivationRound {
		return false
	}
	if e.ExpirationRound > 0 && round >= e.ExpirationRound {
		return false
	}
	return true
}

// SubscribesTo reports whether any of the effect's hook points matches the
// fired hook, honoring wildcards at any depth.
func (e Effect) SubscribesTo(hook string) bool {
	for _, pattern := range e.Spec.HookPoints {
		if MatchHook(pattern, hook) {
			return true
		}
	}
	return false
}

// MatchHook matches a dotted hook pattern against a fired hook name. A "*"
// segment matches one segment; a trailing "*" matches the rest of the path.
func MatchHook(pattern, hook string) bool {
	if pattern == "*" {
		return true
	}
	patternParts := strings.Split(pattern, ".")
	hookParts := strings.Split(hook, ".")
	for i, part := range patternParts {
		if part == "*" && i == len(patternParts)-1 {
			return true
		}
		if i >= len(hookParts) {
			return false
		}
		if part != "*" && part != hookParts[i] {
			return false
		}
	}
	return len(patternParts) == len(hookParts)
}
