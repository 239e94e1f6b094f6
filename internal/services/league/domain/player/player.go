// Package player defines player value types: the immutable attribute vector,
// archetypes, and the named conditional moves the engine evaluates during
// simulation.
package player

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyID indicates a player id is required.
	ErrEmptyID = errors.New("player id is required")
	// ErrEmptyName indicates a player name is required.
	ErrEmptyName = errors.New("player name is required")
)

// Archetype tags a player's play style. It biases action selection.
type Archetype string

const (
	// ArchetypeSlasher favors drives and rim attacks.
	ArchetypeSlasher Archetype = "slasher"
	// ArchetypeSniper favors three-point shots.
	ArchetypeSniper Archetype = "sniper"
	// ArchetypePlaymaker favors passing and mid-range.
	ArchetypePlaymaker Archetype = "playmaker"
	// ArchetypeEnforcer favors post-ups and defense.
	ArchetypeEnforcer Archetype = "enforcer"
	// ArchetypeWildcard has no dominant bias.
	ArchetypeWildcard Archetype = "wildcard"
)

// Attributes is the immutable 1-100 attribute vector assigned at creation.
type Attributes struct {
	Scoring          int `json:"scoring"`
	Passing          int `json:"passing"`
	Defense          int `json:"defense"`
	Speed            int `json:"speed"`
	Stamina          int `json:"stamina"`
	IQ               int `json:"iq"`
	Ego              int `json:"ego"`
	ChaoticAlignment int `json:"chaotic_alignment"`
	Fate             int `json:"fate"`
}

// Validate checks every attribute is in [1, 100].
func (a Attributes) Validate() error {
	checks := []struct {
		name  string
		value int
	}{
		{"scoring", a.Scoring},
		{"passing", a.Passing},
		{"defense", a.Defense},
		{"speed", a.Speed},
		{"stamina", a.Stamina},
		{"iq", a.IQ},
		{"ego", a.Ego},
		{"chaotic_alignment", a.ChaoticAlignment},
		{"fate", a.Fate},
	}
	for _, check := range checks {
		if check.value < 1 || check.value > 100 {
			return fmt.Errorf("attribute %s=%d out of range [1, 100]", check.name, check.value)
		}
	}
	return nil
}

// MoveTrigger matches the possession context a move fires in. Empty fields
// match anything.
type MoveTrigger struct {
	// Action matches the possession action (at_rim, mid_range, three_point,
	// drive, post_up) or "any".
	Action string `json:"action,omitempty"`
	// Result matches the possession outcome (make, miss, turnover, foul) or "any".
	Result string `json:"result,omitempty"`
	// Chance gates the trigger with a probability drawn from the game RNG.
	// Zero means always.
	Chance float64 `json:"chance,omitempty"`
}

// MoveEffect is the modifier applied when a move triggers.
type MoveEffect struct {
	// Stat names the in-game value to adjust: one of scoring, defense,
	// stamina, shot_probability.
	Stat string `json:"stat"`
	// Amount is the adjustment, additive.
	Amount float64 `json:"amount"`
	// Duration is "possession" or "game".
	Duration string `json:"duration"`
	// Narration is appended to play-by-play when the move fires.
	Narration string `json:"narration,omitempty"`
}

// Move is a named conditional modifier owned by a player.
type Move struct {
	Name    string      `json:"name"`
	Trigger MoveTrigger `json:"trigger"`
	Effect  MoveEffect  `json:"effect"`
}

// Player owns an immutable attribute vector, an ordered set of moves, an
// archetype, and a backstory. Current in-game attributes are derived by the
// engine, never stored here.
type Player struct {
	ID        string
	TeamID    string
	Name      string
	Archetype Archetype
	Backstory string
	Base      Attributes
	Moves     []Move
}

// Validate checks structural invariants.
func (p Player) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if err := p.Base.Validate(); err != nil {
		return fmt.Errorf("player %s: %w", p.Name, err)
	}
	return nil
}
