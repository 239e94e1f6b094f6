// Package sim implements the deterministic game engine. Simulate is a pure
// total function: identical inputs produce byte-identical results, including
// play-by-play, box scores, and the final RNG fingerprint. The engine does
// no I/O, reads no clock, and draws every probabilistic decision from one
// seeded PRNG in canonical order.
package sim

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/louisbranch/longshot/internal/services/league/domain/effect"
	"github.com/louisbranch/longshot/internal/services/league/domain/meta"
	"github.com/louisbranch/longshot/internal/services/league/domain/ruleset"
	"github.com/louisbranch/longshot/internal/services/league/domain/team"
)

const quarters = 4

// homeCourtScoringBoost is the flat home advantage on current scoring.
const homeCourtScoringBoost = 2

// altitudeDrainThreshold is the venue altitude in meters above which the
// visiting team drains extra stamina.
const altitudeDrainThreshold = 1500

// ErrInvariant indicates the engine detected a broken game invariant. The
// round aborts; this is never a recoverable condition.
var ErrInvariant = errors.New("simulation invariant violated")

// Input is everything a game depends on. All values are owned by the caller;
// the engine never reaches for a repository, bus, or clock.
type Input struct {
	GameID     string
	Home       team.Team
	Away       team.Team
	Rules      ruleset.RuleSet
	Seed       int64
	Effects    []effect.Effect
	Strategies map[string]Strategy
	Meta       *meta.Store
	Round      int
}

// PlayByPlayEntry is one line of the ordered possession log.
type PlayByPlayEntry struct {
	Quarter    int    `json:"quarter"`
	Clock      string `json:"clock"`
	Possession int    `json:"possession"`
	TeamID     string `json:"team_id"`
	PlayerID   string `json:"player_id,omitempty"`
	PlayerName string `json:"player_name,omitempty"`
	Action     string `json:"action"`
	Outcome    string `json:"outcome"`
	Points     int    `json:"points"`
	HomeScore  int    `json:"home_score"`
	AwayScore  int    `json:"away_score"`
	Narration  string `json:"narration,omitempty"`
}

// BoxScoreLine is one player's durable stat line.
type BoxScoreLine struct {
	PlayerID            string  `json:"player_id"`
	TeamID              string  `json:"team_id"`
	Name                string  `json:"name"`
	Points              int     `json:"points"`
	FieldGoalsMade      int     `json:"fgm"`
	FieldGoalsAttempted int     `json:"fga"`
	ThreesMade          int     `json:"tpm"`
	ThreesAttempted     int     `json:"tpa"`
	FreeThrowsMade      int     `json:"ftm"`
	FreeThrowsAttempted int     `json:"fta"`
	Rebounds            int     `json:"rebounds"`
	Steals              int     `json:"steals"`
	Turnovers           int     `json:"turnovers"`
	Fouls               int     `json:"fouls"`
	Minutes             float64 `json:"minutes"`
	PlusMinus           int     `json:"plus_minus"`
}

// QuarterScore is one quarter's scoring split.
type QuarterScore struct {
	Quarter int `json:"quarter"`
	Home    int `json:"home"`
	Away    int `json:"away"`
}

// Result is the durable outcome of one simulated game.
type Result struct {
	GameID           string            `json:"game_id"`
	HomeTeamID       string            `json:"home_team_id"`
	AwayTeamID       string            `json:"away_team_id"`
	HomeScore        int               `json:"home_score"`
	AwayScore        int               `json:"away_score"`
	QuarterScores    []QuarterScore    `json:"quarter_scores"`
	PlayByPlay       []PlayByPlayEntry `json:"play_by_play"`
	BoxScores        []BoxScoreLine    `json:"box_scores"`
	ElamActivated    bool              `json:"elam_activated"`
	ElamTarget       int               `json:"elam_target"`
	SafetyCapReached bool              `json:"safety_cap_reached"`
	TotalPossessions int               `json:"total_possessions"`
	LeadChanges      int               `json:"lead_changes"`
	Seed             int64             `json:"seed"`
	RNGFingerprint   uint64            `json:"rng_fingerprint"`
	Rules            ruleset.RuleSet   `json:"rules"`
}

// Simulate runs one full game. Same inputs, same output, bit for bit.
func Simulate(in Input) (Result, error) {
	if err := in.Home.Validate(); err != nil {
		return Result{}, fmt.Errorf("home team: %w", err)
	}
	if err := in.Away.Validate(); err != nil {
		return Result{}, fmt.Errorf("away team: %w", err)
	}
	if err := in.Rules.Validate(); err != nil {
		return Result{}, fmt.Errorf("rules: %w", err)
	}

	g := &game{
		rules:       in.Rules,
		rng:         rand.New(rand.NewSource(in.Seed)),
		meta:        in.Meta,
		home:        newTeamState(in.Home, in.Strategies[in.Home.ID], homeCourtScoringBoost),
		away:        newTeamState(in.Away, in.Strategies[in.Away.ID], 0),
		active:      in.Effects,
		homeHasBall: true,
	}

	if _, err := g.fire(effect.HookGamePre, map[string]any{"game_id": in.GameID}, nil); err != nil {
		return Result{}, err
	}

	prevHome, prevAway := 0, 0
	for g.quarter = 1; g.quarter <= quarters; g.quarter++ {
		if g.quarter > in.Rules.ElamTriggerQuarter && !g.elamActive {
			g.activateElam()
		}
		if err := g.runQuarter(in); err != nil {
			return Result{}, err
		}
		g.quarterScores = append(g.quarterScores, QuarterScore{
			Quarter: g.quarter,
			Home:    g.home.score - prevHome,
			Away:    g.away.score - prevAway,
		})
		prevHome, prevAway = g.home.score, g.away.score

		if g.elamActive && g.elamReached() {
			break
		}
		if g.possession >= in.Rules.SafetyCapPossessions {
			break
		}
		if g.quarter < quarters {
			g.quarterBreak()
		}
	}

	result := Result{
		GameID:           in.GameID,
		HomeTeamID:       in.Home.ID,
		AwayTeamID:       in.Away.ID,
		HomeScore:        g.home.score,
		AwayScore:        g.away.score,
		QuarterScores:    g.quarterScores,
		PlayByPlay:       g.playByPlay,
		BoxScores:        g.boxScores(),
		ElamActivated:    g.elamActive,
		ElamTarget:       g.elamTarget,
		SafetyCapReached: g.possession >= in.Rules.SafetyCapPossessions,
		TotalPossessions: g.possession,
		LeadChanges:      g.leadChanges,
		Seed:             in.Seed,
		RNGFingerprint:   g.rng.Uint64(),
		Rules:            in.Rules,
	}
	return result, nil
}

// runQuarter plays possessions until the possession budget or the quarter
// clock runs out. Elam quarters ignore the clock and play to target.
func (g *game) runQuarter(in Input) error {
	g.quarterClock = g.rules.QuarterMinutes
	if _, err := g.fire(effect.HookQuarterPre, map[string]any{"quarter": float64(g.quarter)}, nil); err != nil {
		return err
	}

	quarterPossessions := 0
	for {
		if g.possession >= g.rules.SafetyCapPossessions {
			break
		}
		if g.elamActive {
			if g.elamReached() {
				break
			}
		} else {
			if quarterPossessions >= g.rules.QuarterPossessions {
				break
			}
			if g.quarterClock <= 0 {
				break
			}
		}

		if err := g.runPossession(); err != nil {
			return err
		}
		quarterPossessions++

		if err := g.checkInvariants(); err != nil {
			return err
		}
		g.substituteFouledOut()
	}

	if _, err := g.fire(effect.HookQuarterPost, map[string]any{"quarter": float64(g.quarter)}, nil); err != nil {
		return err
	}
	return nil
}

func (g *game) activateElam() {
	leader := g.home.score
	if g.away.score > leader {
		leader = g.away.score
	}
	g.elamActive = true
	g.elamTarget = leader + g.rules.ElamMargin
	g.logEntry(PlayByPlayEntry{
		Quarter:    g.quarter,
		Clock:      "ELAM",
		Possession: g.possession,
		Action:     "elam_activated",
		Outcome:    fmt.Sprintf("target %d", g.elamTarget),
		HomeScore:  g.home.score,
		AwayScore:  g.away.score,
	})
}

func (g *game) elamReached() bool {
	return g.home.score >= g.elamTarget || g.away.score >= g.elamTarget
}

// quarterBreak applies stamina recovery and threshold substitutions between
// quarters. Team fouls reset at the half.
func (g *game) quarterBreak() {
	recovery := g.rules.QuarterBreakStaminaRecovery
	if g.quarter == 2 {
		recovery = g.rules.HalftimeStaminaRecovery
		g.home.fouls = 0
		g.away.fouls = 0
	}
	for _, ts := range []*teamState{g.home, g.away} {
		for _, ps := range ts.players {
			ps.recoverStamina(recovery)
		}
		g.thresholdSubstitutions(ts)
	}
}

// thresholdSubstitutions swaps tired on-court players for fresher bench
// players at quarter breaks.
func (g *game) thresholdSubstitutions(ts *teamState) {
	for _, ps := range ts.onCourt() {
		if ps.stamina >= g.rules.SubstitutionStaminaThreshold {
			continue
		}
		best := ts.bestBench()
		if best == nil || best.stamina <= ps.stamina {
			continue
		}
		ps.onCourt = false
		best.onCourt = true
	}
}

// substituteFouledOut replaces players at the personal foul limit.
func (g *game) substituteFouledOut() {
	for _, ts := range []*teamState{g.home, g.away} {
		for _, ps := range ts.onCourt() {
			if ps.fouls >= g.rules.PersonalFoulLimit {
				ts.replaceEjected(ps)
			}
		}
	}
}

// checkInvariants verifies the hard game invariants after every possession.
func (g *game) checkInvariants() error {
	if g.home.score < 0 || g.away.score < 0 {
		return fmt.Errorf("%w: negative score %d-%d", ErrInvariant, g.home.score, g.away.score)
	}
	for _, ts := range []*teamState{g.home, g.away} {
		onCourt := len(ts.onCourt())
		if onCourt > team.ActiveRosterSize {
			return fmt.Errorf("%w: team %s has %d players on court", ErrInvariant, ts.t.ID, onCourt)
		}
		if onCourt < team.ActiveRosterSize && len(ts.bench()) > 0 {
			return fmt.Errorf("%w: team %s short-handed with bench available", ErrInvariant, ts.t.ID)
		}
		for _, ps := range ts.players {
			if ps.stamina < ruleset.StaminaFloor || ps.stamina > 1.0 {
				return fmt.Errorf("%w: player %s stamina %.3f out of bounds", ErrInvariant, ps.p.ID, ps.stamina)
			}
		}
	}
	return nil
}

// boxScores finalizes per-player lines. Minutes split the regulation clock
// across possessions actually played.
func (g *game) boxScores() []BoxScoreLine {
	totalMinutes := g.rules.QuarterMinutes * quarters
	var lines []BoxScoreLine
	for _, ts := range []*teamState{g.home, g.away} {
		for _, ps := range ts.players {
			line := ps.box
			line.Fouls = ps.fouls
			line.PlusMinus = ps.plusMinus
			if g.possession > 0 {
				line.Minutes = totalMinutes * float64(ps.possessionsPlayed) / float64(g.possession)
			}
			lines = append(lines, line)
		}
	}
	return lines
}

func (g *game) logEntry(entry PlayByPlayEntry) {
	if len(g.narration) > 0 {
		for i, line := range g.narration {
			if i == 0 && entry.Narration == "" {
				entry.Narration = line
				continue
			}
			entry.Narration += " " + line
		}
		g.narration = nil
	}
	g.playByPlay = append(g.playByPlay, entry)
}

// trackLead counts lead changes after each scoring update.
func (g *game) trackLead() {
	diff := g.home.score - g.away.score
	sign := 0
	if diff > 0 {
		sign = 1
	} else if diff < 0 {
		sign = -1
	}
	if sign != 0 && g.leadSign != 0 && sign != g.leadSign {
		g.leadChanges++
	}
	if sign != 0 {
		g.leadSign = sign
	}
}
