package app

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"math/rand"

	"github.com/louisbranch/longshot/internal/services/league/domain/player"
	"github.com/louisbranch/longshot/internal/services/league/domain/ruleset"
	"github.com/louisbranch/longshot/internal/services/league/domain/season"
	"github.com/louisbranch/longshot/internal/services/league/domain/team"
	"github.com/louisbranch/longshot/internal/services/league/storage"
)

// SeedParams configures league bootstrap.
type SeedParams struct {
	LeagueName string
	Teams      int
	// RegularSeasonRounds of zero derives the round count from the double
	// round-robin schedule.
	RegularSeasonRounds int
}

// seedTeams is the curated identity pool. Seeding is deterministic per
// league name so a reseeded database reproduces the same league.
var seedTeams = []struct {
	name    string
	emoji   string
	venue   string
	surface string
	alt     float64
}{
	{"Moonshot Pilots", "\U0001F680", "Launchpad Arena", "hardwood", 12},
	{"Gravity Wells", "\U0001F30C", "The Singularity", "hardwood", 1608},
	{"Static Cats", "⚡", "Voltage Garden", "parquet", 230},
	{"Iron Herons", "\U0001F9A9", "Rustbelt Fieldhouse", "hardwood", 185},
	{"Neon Drifters", "\U0001F3B0", "Jackpot Pavilion", "synthetic", 610},
	{"Fog Harbors", "\U0001F32B", "Breakwater Court", "hardwood", 4},
	{"Cinder Foxes", "\U0001F98A", "Ashgrove Dome", "parquet", 890},
	{"Polar Current", "\U0001F9CA", "Icefloe Center", "hardwood", 22},
}

var seedPlayerNames = []string{
	"Ace Delgado", "Birdie Okafor", "Cash Mbeki", "Dart Kowalski",
	"Echo Ramirez", "Flint Nakamura", "Gale Svensson", "Hex Okonkwo",
	"Ivy Castellanos", "Jolt Petrov", "Kite Anand", "Lux Moreau",
	"Mirage Haddad", "Nova Lindqvist", "Onyx Baptiste", "Pivot Oyelaran",
	"Quake Ishikawa", "Riptide Vance", "Sable Duarte", "Torque Agyei",
	"Umbra Kessler", "Vex Oduya", "Wisp Takahashi", "Zephyr Malone",
}

var seedArchetypes = []player.Archetype{
	player.ArchetypeSlasher,
	player.ArchetypeSniper,
	player.ArchetypePlaymaker,
	player.ArchetypeEnforcer,
	player.ArchetypeWildcard,
}

// Seed bootstraps a league: teams with rosters, a double round-robin
// schedule, and a season in SETUP. Returns the new season id.
func (a *App) Seed(ctx context.Context, params SeedParams) (string, error) {
	if params.LeagueName == "" {
		params.LeagueName = "Longshot League"
	}
	if params.Teams <= 0 {
		params.Teams = 4
	}
	if params.Teams > len(seedTeams) {
		return "", fmt.Errorf("at most %d teams supported", len(seedTeams))
	}

	rng := rand.New(rand.NewSource(nameSeed(params.LeagueName)))

	leagueID := a.newID()
	if err := a.store.PutLeague(ctx, storage.LeagueRecord{
		ID:        leagueID,
		Name:      params.LeagueName,
		CreatedAt: a.now().UTC(),
	}); err != nil {
		return "", fmt.Errorf("create league: %w", err)
	}

	rules := ruleset.Default()
	starting, err := rules.MarshalSnapshot()
	if err != nil {
		return "", err
	}

	seasonID := a.newID()
	teamIDs := make([]string, 0, params.Teams)
	nameIdx := rng.Perm(len(seedPlayerNames))
	nextName := 0

	for i := 0; i < params.Teams; i++ {
		identity := seedTeams[i]
		teamID := a.newID()
		teamIDs = append(teamIDs, teamID)

		venueJSON, err := json.Marshal(team.Venue{
			Name:           identity.venue,
			Capacity:       5000 + rng.Intn(15000),
			AltitudeMeters: identity.alt,
			Surface:        identity.surface,
			Latitude:       -60 + rng.Float64()*120,
			Longitude:      -180 + rng.Float64()*360,
		})
		if err != nil {
			return "", fmt.Errorf("encode venue: %w", err)
		}
		if err := a.store.PutTeam(ctx, storage.TeamRecord{
			ID:        teamID,
			SeasonID:  seasonID,
			Name:      identity.name,
			Emoji:     identity.emoji,
			VenueJSON: venueJSON,
		}); err != nil {
			return "", fmt.Errorf("create team %s: %w", identity.name, err)
		}

		for slot := 0; slot < team.ActiveRosterSize; slot++ {
			name := seedPlayerNames[nameIdx[nextName%len(nameIdx)]]
			nextName++
			p := rollPlayer(rng, a.newID(), teamID, name)
			attrs, err := json.Marshal(p.Base)
			if err != nil {
				return "", fmt.Errorf("encode attributes: %w", err)
			}
			moves, err := json.Marshal(p.Moves)
			if err != nil {
				return "", fmt.Errorf("encode moves: %w", err)
			}
			if err := a.store.PutPlayer(ctx, storage.PlayerRecord{
				ID:             p.ID,
				TeamID:         teamID,
				SeasonID:       seasonID,
				Name:           p.Name,
				Archetype:      string(p.Archetype),
				Backstory:      p.Backstory,
				RosterOrder:    slot,
				AttributesJSON: attrs,
				MovesJSON:      moves,
			}); err != nil {
				return "", fmt.Errorf("create player %s: %w", p.Name, err)
			}
		}
	}

	schedule := season.RoundRobin(seasonID, teamIDs, a.newID)
	fixtures := make([]storage.ScheduledGameRecord, 0, len(schedule))
	lastRound := 0
	for _, g := range schedule {
		fixtures = append(fixtures, storage.ScheduledGameRecord{
			ID:         g.ID,
			SeasonID:   g.SeasonID,
			Round:      g.Round,
			HomeTeamID: g.HomeTeamID,
			AwayTeamID: g.AwayTeamID,
		})
		if g.Round > lastRound {
			lastRound = g.Round
		}
	}
	if err := a.store.PutScheduledGames(ctx, fixtures); err != nil {
		return "", fmt.Errorf("store schedule: %w", err)
	}

	if params.RegularSeasonRounds <= 0 {
		params.RegularSeasonRounds = lastRound
	}
	lifecycle, err := json.Marshal(season.LifecycleConfig{
		RegularSeasonRounds: params.RegularSeasonRounds,
		PlayoffRounds:       2,
	})
	if err != nil {
		return "", fmt.Errorf("encode lifecycle: %w", err)
	}

	if err := a.store.PutSeason(ctx, storage.SeasonRecord{
		ID:                seasonID,
		LeagueID:          leagueID,
		Number:            1,
		Name:              fmt.Sprintf("%s Season 1", params.LeagueName),
		Phase:             string(season.PhaseSetup),
		StartingRulesJSON: starting,
		CurrentRulesJSON:  starting,
		LifecycleJSON:     lifecycle,
		CreatedAt:         a.now().UTC(),
	}); err != nil {
		return "", fmt.Errorf("create season: %w", err)
	}

	log.Printf("seeded league %q: %d teams, %d fixtures over %d rounds",
		params.LeagueName, params.Teams, len(fixtures), lastRound)
	return seasonID, nil
}

// Enroll binds a governor to a team for the season and grants their starting
// token window.
func (a *App) Enroll(ctx context.Context, seasonID, governorID, teamID, displayName string) error {
	if _, err := a.store.GetTeam(ctx, teamID); err != nil {
		return fmt.Errorf("team %s: %w", teamID, err)
	}
	if err := a.store.PutEnrollment(ctx, storage.EnrollmentRecord{
		GovernorID:  governorID,
		SeasonID:    seasonID,
		TeamID:      teamID,
		DisplayName: displayName,
		Active:      true,
		CreatedAt:   a.now().UTC(),
	}); err != nil {
		return err
	}
	rec, err := a.store.GetSeason(ctx, seasonID)
	if err != nil {
		return fmt.Errorf("season %s: %w", seasonID, err)
	}
	rules, err := currentRules(rec)
	if err != nil {
		return err
	}
	return a.kernel.GrantEnrollmentTokens(ctx, seasonID, rec.CurrentRound, governorID, teamID, rules)
}

// rollPlayer generates attributes and a signature move biased by archetype.
func rollPlayer(rng *rand.Rand, id, teamID, name string) player.Player {
	roll := func(low, high int) int {
		return low + rng.Intn(high-low+1)
	}
	archetype := seedArchetypes[rng.Intn(len(seedArchetypes))]

	attrs := player.Attributes{
		Scoring:          roll(40, 85),
		Passing:          roll(40, 85),
		Defense:          roll(40, 85),
		Speed:            roll(40, 85),
		Stamina:          roll(50, 95),
		IQ:               roll(40, 90),
		Ego:              roll(10, 95),
		ChaoticAlignment: roll(1, 100),
		Fate:             roll(1, 100),
	}

	var move player.Move
	switch archetype {
	case player.ArchetypeSlasher:
		attrs.Speed = roll(70, 95)
		move = player.Move{
			Name:    "Downhill",
			Trigger: player.MoveTrigger{Action: "drive", Result: "make", Chance: 0.3},
			Effect:  player.MoveEffect{Stat: "shot_probability", Amount: 0.05, Duration: "possession", Narration: "%s gets downhill and nobody is stopping the train."},
		}
	case player.ArchetypeSniper:
		attrs.Scoring = roll(70, 95)
		move = player.Move{
			Name:    "Heat Check",
			Trigger: player.MoveTrigger{Action: "three_point", Result: "make", Chance: 0.25},
			Effect:  player.MoveEffect{Stat: "shot_probability", Amount: 0.08, Duration: "possession", Narration: "%s is heating up from deep."},
		}
	case player.ArchetypePlaymaker:
		attrs.Passing = roll(70, 95)
		move = player.Move{
			Name:    "Floor General",
			Trigger: player.MoveTrigger{Action: "any", Result: "turnover", Chance: 0.4},
			Effect:  player.MoveEffect{Stat: "scoring", Amount: 3, Duration: "possession", Narration: "%s settles the offense right back down."},
		}
	case player.ArchetypeEnforcer:
		attrs.Defense = roll(70, 95)
		move = player.Move{
			Name:    "No Easy Buckets",
			Trigger: player.MoveTrigger{Action: "at_rim", Result: "miss", Chance: 0.35},
			Effect:  player.MoveEffect{Stat: "defense", Amount: 4, Duration: "possession", Narration: "%s sends it back with interest."},
		}
	default:
		move = player.Move{
			Name:    "Coin Flip",
			Trigger: player.MoveTrigger{Action: "any", Result: "any", Chance: 0.1},
			Effect:  player.MoveEffect{Stat: "shot_probability", Amount: 0.06, Duration: "possession", Narration: "%s does something nobody scouted for."},
		}
	}
	move.Effect.Narration = fmt.Sprintf(move.Effect.Narration, name)

	return player.Player{
		ID:        id,
		TeamID:    teamID,
		Name:      name,
		Archetype: archetype,
		Base:      attrs,
		Moves:     []player.Move{move},
	}
}

func nameSeed(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64() &^ (1 << 63))
}
