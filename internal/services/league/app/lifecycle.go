package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/louisbranch/longshot/internal/services/league/domain/ruleset"
	"github.com/louisbranch/longshot/internal/services/league/domain/season"
	"github.com/louisbranch/longshot/internal/services/league/storage"
)

// Standing is one team's win/loss line, ordered by wins then point
// differential.
type Standing struct {
	TeamID    string
	Wins      int
	Losses    int
	PointDiff int
}

// Standings computes the season table from every persisted game result.
func (a *App) Standings(ctx context.Context, seasonID string) ([]Standing, error) {
	games, err := a.store.ListGameResults(ctx, seasonID, -1)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	byTeam := make(map[string]*Standing)
	line := func(teamID string) *Standing {
		s, ok := byTeam[teamID]
		if !ok {
			s = &Standing{TeamID: teamID}
			byTeam[teamID] = s
		}
		return s
	}
	for _, g := range games {
		home, away := line(g.HomeTeamID), line(g.AwayTeamID)
		diff := g.HomeScore - g.AwayScore
		home.PointDiff += diff
		away.PointDiff -= diff
		if diff >= 0 {
			home.Wins++
			away.Losses++
		} else {
			away.Wins++
			home.Losses++
		}
	}
	table := make([]Standing, 0, len(byTeam))
	for _, s := range byTeam {
		table = append(table, *s)
	}
	sort.Slice(table, func(i, j int) bool {
		if table[i].Wins != table[j].Wins {
			return table[i].Wins > table[j].Wins
		}
		if table[i].PointDiff != table[j].PointDiff {
			return table[i].PointDiff > table[j].PointDiff
		}
		return table[i].TeamID < table[j].TeamID
	})
	return table, nil
}

// advanceLifecycle checks phase C transitions after a round's games have
// been persisted. Every phase change publishes on the bus; scheduled
// postseason fixtures land on the next round number.
func (a *App) advanceLifecycle(ctx context.Context, s *season.Season, rules ruleset.RuleSet, round int) error {
	switch s.Phase {
	case season.PhaseActive:
		if s.Lifecycle.RegularSeasonRounds > 0 && round >= s.Lifecycle.RegularSeasonRounds {
			if err := s.Transition(season.PhaseTiebreakerCheck); err != nil {
				return err
			}
			a.publishPhaseChange(*s, season.PhaseActive)
			a.bus.Publish("season.regular_season_complete", RoundCompleted{SeasonID: s.ID, Round: round, Phase: string(s.Phase)})
			return a.resolveTiebreakerCheck(ctx, s, round)
		}
		return nil

	case season.PhaseTiebreakers:
		// The tiebreaker round just played; seeds are now unambiguous.
		if err := s.Transition(season.PhasePlayoffs); err != nil {
			return err
		}
		a.publishPhaseChange(*s, season.PhaseTiebreakers)
		return a.schedulePlayoffs(ctx, s, round)

	case season.PhasePlayoffs:
		a.bus.Publish("season.semifinals_complete", RoundCompleted{SeasonID: s.ID, Round: round, Phase: string(s.Phase)})
		if err := s.Transition(season.PhaseChampionship); err != nil {
			return err
		}
		a.publishPhaseChange(*s, season.PhasePlayoffs)
		a.bus.Publish("season.championship_started", RoundCompleted{SeasonID: s.ID, Round: round, Phase: string(s.Phase)})
		return a.scheduleChampionship(ctx, s, round)

	case season.PhaseChampionship:
		if err := a.crownChampion(ctx, s, round); err != nil {
			return err
		}
		a.bus.Publish("season.playoffs_complete", RoundCompleted{SeasonID: s.ID, Round: round, Phase: string(s.Phase)})
		if err := s.Transition(season.PhaseOffseason); err != nil {
			return err
		}
		opened := a.now().UTC()
		closes := opened.Add(time.Duration(rules.GovernanceWindowSeconds) * time.Second)
		s.Lifecycle.OffseasonOpenedAt = &opened
		s.Lifecycle.OffseasonClosesAt = &closes
		a.publishPhaseChange(*s, season.PhaseChampionship)
		a.bus.Publish("season.offseason_started", RoundCompleted{SeasonID: s.ID, Round: round, Phase: string(s.Phase)})
		return nil

	case season.PhaseOffseason:
		if s.Lifecycle.OffseasonClosesAt != nil && a.now().After(*s.Lifecycle.OffseasonClosesAt) {
			if err := s.Transition(season.PhaseComplete); err != nil {
				return err
			}
			a.publishPhaseChange(*s, season.PhaseOffseason)
			a.bus.Publish("season.offseason_closed", RoundCompleted{SeasonID: s.ID, Round: round, Phase: string(s.Phase)})
			return a.archiveSeason(ctx, *s)
		}
		return nil
	}
	return nil
}

// resolveTiebreakerCheck inspects the playoff cut line. A wins tie across
// the boundary schedules head-to-head tiebreaker games; otherwise the
// bracket is seeded directly.
func (a *App) resolveTiebreakerCheck(ctx context.Context, s *season.Season, round int) error {
	table, err := a.Standings(ctx, s.ID)
	if err != nil {
		return err
	}
	cut := playoffCut(len(table))

	if cut > 0 && cut < len(table) && table[cut-1].Wins == table[cut].Wins {
		games := []storage.ScheduledGameRecord{{
			ID:         a.newID(),
			SeasonID:   s.ID,
			Round:      round + 1,
			HomeTeamID: table[cut-1].TeamID,
			AwayTeamID: table[cut].TeamID,
		}}
		if err := a.store.PutScheduledGames(ctx, games); err != nil {
			return fmt.Errorf("schedule tiebreakers: %w", err)
		}
		if err := s.Transition(season.PhaseTiebreakers); err != nil {
			return err
		}
		a.publishPhaseChange(*s, season.PhaseTiebreakerCheck)
		a.bus.Publish("season.tiebreaker_games_generated", RoundCompleted{SeasonID: s.ID, Round: round + 1, Games: len(games), Phase: string(s.Phase)})
		return nil
	}

	if err := s.Transition(season.PhasePlayoffs); err != nil {
		return err
	}
	a.publishPhaseChange(*s, season.PhaseTiebreakerCheck)
	return a.schedulePlayoffs(ctx, s, round)
}

// schedulePlayoffs seeds the semifinal round: 1v4 and 2v3 with four or more
// teams, a single 1v2 game otherwise.
func (a *App) schedulePlayoffs(ctx context.Context, s *season.Season, round int) error {
	table, err := a.Standings(ctx, s.ID)
	if err != nil {
		return err
	}
	if len(table) < 2 {
		return fmt.Errorf("season %s: not enough teams for playoffs", s.ID)
	}
	var games []storage.ScheduledGameRecord
	if len(table) >= 4 {
		games = []storage.ScheduledGameRecord{
			{ID: a.newID(), SeasonID: s.ID, Round: round + 1, HomeTeamID: table[0].TeamID, AwayTeamID: table[3].TeamID},
			{ID: a.newID(), SeasonID: s.ID, Round: round + 1, HomeTeamID: table[1].TeamID, AwayTeamID: table[2].TeamID},
		}
	} else {
		games = []storage.ScheduledGameRecord{
			{ID: a.newID(), SeasonID: s.ID, Round: round + 1, HomeTeamID: table[0].TeamID, AwayTeamID: table[1].TeamID},
		}
	}
	if err := a.store.PutScheduledGames(ctx, games); err != nil {
		return fmt.Errorf("schedule playoffs: %w", err)
	}
	log.Printf("season %s: playoffs seeded, %d games in round %d", s.ID, len(games), round+1)
	return nil
}

// scheduleChampionship pairs the winners of the round just played.
func (a *App) scheduleChampionship(ctx context.Context, s *season.Season, round int) error {
	games, err := a.store.ListGameResults(ctx, s.ID, round)
	if err != nil {
		return fmt.Errorf("list semifinal results: %w", err)
	}
	var winners []string
	for _, g := range games {
		winners = append(winners, winnerOf(g))
	}
	if len(winners) < 2 {
		// Single-game playoff: the final is a rematch of the semifinal pair.
		table, err := a.Standings(ctx, s.ID)
		if err != nil {
			return err
		}
		if len(table) < 2 {
			return fmt.Errorf("season %s: not enough teams for a final", s.ID)
		}
		winners = []string{table[0].TeamID, table[1].TeamID}
	}
	final := []storage.ScheduledGameRecord{{
		ID:         a.newID(),
		SeasonID:   s.ID,
		Round:      round + 1,
		HomeTeamID: winners[0],
		AwayTeamID: winners[1],
	}}
	if err := a.store.PutScheduledGames(ctx, final); err != nil {
		return fmt.Errorf("schedule championship: %w", err)
	}
	return nil
}

// crownChampion records the final's winner on the lifecycle blob.
func (a *App) crownChampion(ctx context.Context, s *season.Season, round int) error {
	games, err := a.store.ListGameResults(ctx, s.ID, round)
	if err != nil {
		return fmt.Errorf("list final results: %w", err)
	}
	if len(games) == 0 {
		return fmt.Errorf("season %s: championship round %d has no result", s.ID, round)
	}
	s.Lifecycle.ChampionTeamID = winnerOf(games[len(games)-1])
	log.Printf("season %s: champion %s", s.ID, s.Lifecycle.ChampionTeamID)
	return nil
}

// archiveSeason snapshots the final table onto the archive row.
func (a *App) archiveSeason(ctx context.Context, s season.Season) error {
	table, err := a.Standings(ctx, s.ID)
	if err != nil {
		return err
	}
	summary, err := archiveSummary(s, table)
	if err != nil {
		return err
	}
	if err := a.store.ArchiveSeason(ctx, storage.SeasonArchiveRecord{
		SeasonID:    s.ID,
		SummaryJSON: summary,
		ArchivedAt:  a.now().UTC(),
	}); err != nil {
		return fmt.Errorf("archive season %s: %w", s.ID, err)
	}
	return nil
}

// archiveSummary encodes the snapshot stored on the season_archives row.
func archiveSummary(s season.Season, table []Standing) ([]byte, error) {
	out, err := json.Marshal(struct {
		SeasonID  string     `json:"season_id"`
		Number    int        `json:"number"`
		Champion  string     `json:"champion_team_id"`
		Rounds    int        `json:"rounds_played"`
		Standings []Standing `json:"standings"`
	}{
		SeasonID:  s.ID,
		Number:    s.Number,
		Champion:  s.Lifecycle.ChampionTeamID,
		Rounds:    s.CurrentRound,
		Standings: table,
	})
	if err != nil {
		return nil, fmt.Errorf("encode season summary: %w", err)
	}
	return out, nil
}

// playoffCut is the number of teams that advance: four when the league can
// field two semifinals, otherwise two.
func playoffCut(teams int) int {
	if teams >= 4 {
		return 4
	}
	if teams >= 2 {
		return 2
	}
	return 0
}

func winnerOf(g storage.GameResultRecord) string {
	if g.AwayScore > g.HomeScore {
		return g.AwayTeamID
	}
	return g.HomeTeamID
}
