package app

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/louisbranch/longshot/internal/services/league/domain/event"
	"github.com/louisbranch/longshot/internal/services/league/domain/meta"
	"github.com/louisbranch/longshot/internal/services/league/domain/player"
	"github.com/louisbranch/longshot/internal/services/league/domain/ruleset"
	"github.com/louisbranch/longshot/internal/services/league/domain/season"
	"github.com/louisbranch/longshot/internal/services/league/domain/sim"
	"github.com/louisbranch/longshot/internal/services/league/domain/team"
	"github.com/louisbranch/longshot/internal/services/league/storage"
)

// seasonFromRecord decodes the season row into the domain aggregate.
func seasonFromRecord(rec storage.SeasonRecord) (season.Season, error) {
	s := season.Season{
		ID:           rec.ID,
		LeagueID:     rec.LeagueID,
		Number:       rec.Number,
		Name:         rec.Name,
		Phase:        season.Phase(rec.Phase),
		CurrentRound: rec.CurrentRound,
		CreatedAt:    rec.CreatedAt,
	}
	if len(rec.LifecycleJSON) > 0 {
		if err := json.Unmarshal(rec.LifecycleJSON, &s.Lifecycle); err != nil {
			return season.Season{}, fmt.Errorf("decode season %s lifecycle: %w", rec.ID, err)
		}
	}
	return s, nil
}

// seasonToRecord re-encodes the mutable season fields onto its row.
func seasonToRecord(s season.Season, rec storage.SeasonRecord, rules ruleset.RuleSet) (storage.SeasonRecord, error) {
	lifecycle, err := json.Marshal(s.Lifecycle)
	if err != nil {
		return storage.SeasonRecord{}, fmt.Errorf("encode season %s lifecycle: %w", s.ID, err)
	}
	current, err := rules.MarshalSnapshot()
	if err != nil {
		return storage.SeasonRecord{}, err
	}
	rec.Phase = string(s.Phase)
	rec.CurrentRound = s.CurrentRound
	rec.LifecycleJSON = lifecycle
	rec.CurrentRulesJSON = current
	return rec, nil
}

// currentRules decodes the season's mutable rule set, falling back to the
// starting copy and then defaults for legacy rows.
func currentRules(rec storage.SeasonRecord) (ruleset.RuleSet, error) {
	if len(rec.CurrentRulesJSON) > 0 {
		return ruleset.UnmarshalSnapshot(rec.CurrentRulesJSON)
	}
	if len(rec.StartingRulesJSON) > 0 {
		return ruleset.UnmarshalSnapshot(rec.StartingRulesJSON)
	}
	return ruleset.Default(), nil
}

// loadTeams builds the full domain team set for a season, rosters included,
// and loads every meta bucket into the store.
func (a *App) loadTeams(ctx context.Context, seasonID string, metaStore *meta.Store) (map[string]team.Team, error) {
	records, err := a.store.ListTeams(ctx, seasonID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	teams := make(map[string]team.Team, len(records))
	for _, rec := range records {
		t := team.Team{
			ID:       rec.ID,
			SeasonID: rec.SeasonID,
			Name:     rec.Name,
			Emoji:    rec.Emoji,
		}
		if len(rec.VenueJSON) > 0 {
			if err := json.Unmarshal(rec.VenueJSON, &t.Venue); err != nil {
				return nil, fmt.Errorf("decode team %s venue: %w", rec.ID, err)
			}
		}
		if metaStore != nil {
			if err := metaStore.Load(meta.KindTeam, rec.ID, rec.MetaJSON); err != nil {
				return nil, err
			}
		}

		players, err := a.store.ListPlayers(ctx, rec.ID)
		if err != nil {
			return nil, fmt.Errorf("list players for team %s: %w", rec.ID, err)
		}
		for _, pr := range players {
			p, err := playerFromRecord(pr)
			if err != nil {
				return nil, err
			}
			if metaStore != nil {
				if err := metaStore.Load(meta.KindPlayer, pr.ID, pr.MetaJSON); err != nil {
					return nil, err
				}
			}
			t.Roster = append(t.Roster, p)
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
		teams[rec.ID] = t
	}
	return teams, nil
}

func playerFromRecord(rec storage.PlayerRecord) (player.Player, error) {
	p := player.Player{
		ID:        rec.ID,
		TeamID:    rec.TeamID,
		Name:      rec.Name,
		Archetype: player.Archetype(rec.Archetype),
		Backstory: rec.Backstory,
	}
	if len(rec.AttributesJSON) > 0 {
		if err := json.Unmarshal(rec.AttributesJSON, &p.Base); err != nil {
			return player.Player{}, fmt.Errorf("decode player %s attributes: %w", rec.ID, err)
		}
	}
	if len(rec.MovesJSON) > 0 {
		if err := json.Unmarshal(rec.MovesJSON, &p.Moves); err != nil {
			return player.Player{}, fmt.Errorf("decode player %s moves: %w", rec.ID, err)
		}
	}
	return p, nil
}

// loadStrategies replays strategy.interpreted events into the per-team
// directive map. The latest interpretation per team wins.
func (a *App) loadStrategies(ctx context.Context, seasonID string) (map[string]sim.Strategy, error) {
	events, err := a.store.ListEventsByType(ctx, seasonID, event.TypeStrategyInterpreted)
	if err != nil {
		return nil, fmt.Errorf("list strategy events: %w", err)
	}
	strategies := make(map[string]sim.Strategy)
	for _, e := range events {
		var payload event.StrategyInterpretedPayload
		if err := json.Unmarshal(e.PayloadJSON, &payload); err != nil {
			return nil, fmt.Errorf("decode strategy event %s: %w", e.ID, err)
		}
		strategies[payload.TeamID] = sim.Strategy{
			Pace:               payload.Pace,
			DefensiveIntensity: payload.DefensiveIntensity,
			ThreePointBias:     payload.ThreePointBias,
			RimBias:            payload.RimBias,
		}
	}
	return strategies, nil
}

// flushMeta writes every dirty bucket back onto its durable row.
func (a *App) flushMeta(ctx context.Context, metaStore *meta.Store) error {
	for _, key := range metaStore.Dirty() {
		data, err := metaStore.Marshal(key.Kind, key.ID)
		if err != nil {
			return err
		}
		switch key.Kind {
		case meta.KindTeam:
			err = a.store.UpdateTeamMeta(ctx, key.ID, data)
		case meta.KindPlayer:
			err = a.store.UpdatePlayerMeta(ctx, key.ID, data)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("flush meta %s/%s: %w", key.Kind, key.ID, err)
		}
	}
	return nil
}

// gameSeed derives the deterministic seed for one fixture. Reruns of the
// same game in the same season and round reproduce the result exactly.
func gameSeed(seasonID, gameID string, round int) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%d", seasonID, gameID, round)
	return int64(h.Sum64() &^ (1 << 63))
}
