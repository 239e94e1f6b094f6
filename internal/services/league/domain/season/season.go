// Package season models the season aggregate: lifecycle phases with a fixed
// transition graph, the schedule, and the lifecycle config blob.
package season

import (
	"errors"
	"fmt"
	"time"
)

// Phase is a season lifecycle stage.
type Phase string

const (
	PhaseSetup          Phase = "SETUP"
	PhaseActive         Phase = "ACTIVE"
	PhaseTiebreakerCheck Phase = "TIEBREAKER_CHECK"
	PhaseTiebreakers    Phase = "TIEBREAKERS"
	PhasePlayoffs       Phase = "PLAYOFFS"
	PhaseChampionship   Phase = "CHAMPIONSHIP"
	PhaseOffseason      Phase = "OFFSEASON"
	PhaseComplete       Phase = "COMPLETE"
)

// ErrIllegalTransition indicates a phase change not in the transition graph.
var ErrIllegalTransition = errors.New("illegal season phase transition")

// transitions is the fixed directed graph of legal phase changes.
var transitions = map[Phase][]Phase{
	PhaseSetup:           {PhaseActive},
	PhaseActive:          {PhaseTiebreakerCheck},
	PhaseTiebreakerCheck: {PhaseTiebreakers, PhasePlayoffs},
	PhaseTiebreakers:     {PhasePlayoffs},
	PhasePlayoffs:        {PhaseChampionship},
	PhaseChampionship:    {PhaseOffseason},
	PhaseOffseason:       {PhaseComplete},
	PhaseComplete:        nil,
}

// IsValid reports whether p is a known phase.
func (p Phase) IsValid() bool {
	_, ok := transitions[p]
	return ok
}

// CanTransitionTo reports whether the graph permits moving to next.
func (p Phase) CanTransitionTo(next Phase) bool {
	for _, allowed := range transitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}

// LifecycleConfig is the free-form structured attribute carried on the season
// row: deadlines, champion, and the offseason window.
type LifecycleConfig struct {
	RegularSeasonRounds int        `json:"regular_season_rounds"`
	PlayoffRounds       int        `json:"playoff_rounds"`
	ChampionTeamID      string     `json:"champion_team_id,omitempty"`
	OffseasonOpenedAt   *time.Time `json:"offseason_opened_at,omitempty"`
	OffseasonClosesAt   *time.Time `json:"offseason_closes_at,omitempty"`
	CarryRulesForward   bool       `json:"carry_rules_forward"`
}

// Season is the aggregate root for a league year.
type Season struct {
	ID           string
	LeagueID     string
	Number       int
	Name         string
	Phase        Phase
	CurrentRound int
	Lifecycle    LifecycleConfig
	CreatedAt    time.Time
}

// Transition moves the season to next, enforcing the graph.
func (s *Season) Transition(next Phase) error {
	if !s.Phase.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.Phase, next)
	}
	s.Phase = next
	return nil
}

// ScheduledGame is one fixture in the season schedule.
type ScheduledGame struct {
	ID         string
	SeasonID   string
	Round      int
	HomeTeamID string
	AwayTeamID string
}

// RoundRobin builds a double round-robin schedule over the given team ids
// using the circle method. With an odd team count a bye is inserted. Each
// pairing appears twice with home and away swapped in the second half.
func RoundRobin(seasonID string, teamIDs []string, newID func() string) []ScheduledGame {
	ids := append([]string(nil), teamIDs...)
	if len(ids)%2 == 1 {
		ids = append(ids, "") // bye
	}
	n := len(ids)
	if n < 2 {
		return nil
	}
	roundsPerHalf := n - 1
	perRound := n / 2

	var schedule []ScheduledGame
	for half := 0; half < 2; half++ {
		rotation := append([]string(nil), ids...)
		for r := 0; r < roundsPerHalf; r++ {
			round := half*roundsPerHalf + r + 1
			for i := 0; i < perRound; i++ {
				home, away := rotation[i], rotation[n-1-i]
				if home == "" || away == "" {
					continue
				}
				if half == 1 {
					home, away = away, home
				}
				schedule = append(schedule, ScheduledGame{
					ID:         newID(),
					SeasonID:   seasonID,
					Round:      round,
					HomeTeamID: home,
					AwayTeamID: away,
				})
			}
			// Circle rotation: fix the first slot, rotate the rest.
			last := rotation[n-1]
			copy(rotation[2:], rotation[1:n-1])
			rotation[1] = last
		}
	}
	return schedule
}

// GamesForRound filters a schedule down to one round, preserving order.
func GamesForRound(schedule []ScheduledGame, round int) []ScheduledGame {
	var games []ScheduledGame
	for _, g := range schedule {
		if g.Round == round {
			games = append(games, g)
		}
	}
	return games
}
