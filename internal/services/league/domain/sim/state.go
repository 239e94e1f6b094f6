package sim

import (
	"fmt"
	"math/rand"

	"github.com/louisbranch/longshot/internal/services/league/domain/effect"
	"github.com/louisbranch/longshot/internal/services/league/domain/meta"
	"github.com/louisbranch/longshot/internal/services/league/domain/player"
	"github.com/louisbranch/longshot/internal/services/league/domain/ruleset"
	"github.com/louisbranch/longshot/internal/services/league/domain/team"
)

// Strategy is the governance-provided team directive the engine consumes.
// DefensiveIntensity runs from -1 (passive) to the rule set's maximum.
type Strategy struct {
	Pace               string  `json:"pace"`
	DefensiveIntensity float64 `json:"defensive_intensity"`
	ThreePointBias     float64 `json:"three_point_bias"`
	RimBias            float64 `json:"rim_bias"`
}

// paceMultiplier scales possession length. Faster pace means shorter
// possessions and more stamina drain.
func (s Strategy) paceMultiplier() float64 {
	switch s.Pace {
	case "fast":
		return 0.8
	case "slow":
		return 1.2
	}
	return 1.0
}

// playerState is the ephemeral in-game view of a player. Base attributes are
// immutable; the floats here are the current values mutated by venue,
// stamina, moves, and effects.
type playerState struct {
	p player.Player

	scoring float64
	passing float64
	defense float64
	speed   float64
	iq      float64

	stamina float64
	fouls   int
	onCourt bool
	ejected bool

	// possessionShotMod is a one-possession shot probability adjustment
	// granted by a triggered move. Consumed on the next shot.
	possessionShotMod float64

	possessionsPlayed int
	plusMinus         int
	box               BoxScoreLine
}

func newPlayerState(p player.Player, onCourt bool, homeBoost float64) *playerState {
	return &playerState{
		p:       p,
		scoring: float64(p.Base.Scoring) + homeBoost,
		passing: float64(p.Base.Passing),
		defense: float64(p.Base.Defense),
		speed:   float64(p.Base.Speed),
		iq:      float64(p.Base.IQ),
		stamina: 1.0,
		onCourt: onCourt,
		box:     BoxScoreLine{PlayerID: p.ID, TeamID: p.TeamID, Name: p.Name},
	}
}

// effectiveScoring folds stamina into the scoring attribute.
func (ps *playerState) effectiveScoring() float64 {
	return ps.scoring * (0.7 + 0.3*ps.stamina)
}

func (ps *playerState) drainStamina(amount float64) {
	ps.stamina -= amount
	if ps.stamina < ruleset.StaminaFloor {
		ps.stamina = ruleset.StaminaFloor
	}
}

func (ps *playerState) recoverStamina(amount float64) {
	ps.stamina += amount
	if ps.stamina > 1.0 {
		ps.stamina = 1.0
	}
}

// teamState is the ephemeral in-game view of a team.
type teamState struct {
	t        team.Team
	players  []*playerState
	score    int
	fouls    int
	strategy Strategy
}

func newTeamState(t team.Team, strategy Strategy, homeBoost float64) *teamState {
	ts := &teamState{t: t, strategy: strategy}
	for i, p := range t.Roster {
		ts.players = append(ts.players, newPlayerState(p, i < team.ActiveRosterSize, homeBoost))
	}
	return ts
}

func (ts *teamState) onCourt() []*playerState {
	var out []*playerState
	for _, ps := range ts.players {
		if ps.onCourt {
			out = append(out, ps)
		}
	}
	return out
}

func (ts *teamState) bench() []*playerState {
	var out []*playerState
	for _, ps := range ts.players {
		if !ps.onCourt && !ps.ejected {
			out = append(out, ps)
		}
	}
	return out
}

func (ts *teamState) byID(id string) *playerState {
	for _, ps := range ts.players {
		if ps.p.ID == id {
			return ps
		}
	}
	return nil
}

// replaceEjected swaps out a player who fouled out with the highest-stamina
// bench player. Plays short-handed when the bench is empty.
func (ts *teamState) replaceEjected(out *playerState) {
	out.onCourt = false
	out.ejected = true
	best := ts.bestBench()
	if best != nil {
		best.onCourt = true
	}
}

func (ts *teamState) bestBench() *playerState {
	var best *playerState
	for _, ps := range ts.bench() {
		if best == nil || ps.stamina > best.stamina {
			best = ps
		}
	}
	return best
}

// game is the whole ephemeral simulation state. Never persisted; rebuilt
// from seed plus inputs.
type game struct {
	rules ruleset.RuleSet
	rng   *rand.Rand
	meta  *meta.Store

	home *teamState
	away *teamState

	active []effect.Effect

	quarter          int
	possession       int
	quarterClock     float64 // minutes remaining in the quarter
	homeHasBall      bool
	retainPossession bool

	elamActive bool
	elamTarget int

	lastAction        string
	lastResult        string
	consecutiveMakes  int
	consecutiveMisses int
	leadSign          int
	leadChanges       int

	quarterScores []QuarterScore
	playByPlay    []PlayByPlayEntry
	narration     []string
}

func (g *game) offense() *teamState {
	if g.homeHasBall {
		return g.home
	}
	return g.away
}

func (g *game) defense() *teamState {
	if g.homeHasBall {
		return g.away
	}
	return g.home
}

// buildContext assembles the unified evaluation context for a hook fire.
func (g *game) buildContext(eventPayload map[string]any, handler *playerState) *effect.Context {
	players := make(map[string]map[string]any)
	teams := make(map[string]map[string]any)
	for _, ts := range []*teamState{g.home, g.away} {
		teams[ts.t.ID] = map[string]any{
			"score": float64(ts.score),
			"fouls": float64(ts.fouls),
		}
		for _, ps := range ts.players {
			players[ps.p.ID] = map[string]any{
				"scoring":         ps.scoring,
				"passing":         ps.passing,
				"defense":         ps.defense,
				"speed":           ps.speed,
				"iq":              ps.iq,
				"current_stamina": ps.stamina,
				"fouls":           float64(ps.fouls),
				"on_court":        ps.onCourt,
			}
		}
	}

	ctx := &effect.Context{
		Event: eventPayload,
		Game: map[string]any{
			"quarter":            float64(g.quarter),
			"possession":         float64(g.possession),
			"home_score":         float64(g.home.score),
			"away_score":         float64(g.away.score),
			"elam_active":        g.elamActive,
			"elam_target":        float64(g.elamTarget),
			"last_action":        g.lastAction,
			"last_result":        g.lastResult,
			"consecutive_makes":  float64(g.consecutiveMakes),
			"consecutive_misses": float64(g.consecutiveMisses),
		},
		Players: players,
		Teams:   teams,
		TeamID:  g.offense().t.ID,
		Meta:    g.meta,
		Rand:    g.rng,
	}
	if handler != nil {
		ctx.Player = players[handler.p.ID]
		ctx.PlayerID = handler.p.ID
	}
	return ctx
}

// fire runs the active effects at a hook point and folds the sandboxed
// mutations back into game state.
func (g *game) fire(hook string, eventPayload map[string]any, handler *playerState) (*effect.Context, error) {
	ctx := g.buildContext(eventPayload, handler)
	if err := effect.Fire(g.active, hook, ctx); err != nil {
		return nil, fmt.Errorf("hook %s: %w", hook, err)
	}
	g.absorbContext(ctx)
	return ctx, nil
}

// absorbContext writes the mutable slice of the context back into the
// engine: player stamina and attributes, score credits, and narration.
func (g *game) absorbContext(ctx *effect.Context) {
	for _, ts := range []*teamState{g.home, g.away} {
		for _, ps := range ts.players {
			bucket := ctx.Players[ps.p.ID]
			if bucket == nil {
				continue
			}
			if v, ok := numberField(bucket, "current_stamina"); ok {
				ps.stamina = clamp(v, ruleset.StaminaFloor, 1.0)
			}
			if v, ok := numberField(bucket, "scoring"); ok {
				ps.scoring = clamp(v, 1, 200)
			}
			if v, ok := numberField(bucket, "defense"); ok {
				ps.defense = clamp(v, 1, 200)
			}
		}
	}
	for _, credit := range ctx.Scores {
		if credit.Points <= 0 {
			continue
		}
		switch credit.TeamID {
		case g.home.t.ID:
			g.home.score += credit.Points
		case g.away.t.ID:
			g.away.score += credit.Points
		}
	}
	ctx.Scores = nil
	g.narration = append(g.narration, ctx.Narration...)
	ctx.Narration = nil
}

func numberField(bucket map[string]any, key string) (float64, bool) {
	v, ok := bucket[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
