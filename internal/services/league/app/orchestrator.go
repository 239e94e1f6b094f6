package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"

	"github.com/louisbranch/longshot/internal/services/league/ai"
	"github.com/louisbranch/longshot/internal/services/league/domain/effect"
	"github.com/louisbranch/longshot/internal/services/league/domain/event"
	"github.com/louisbranch/longshot/internal/services/league/domain/meta"
	"github.com/louisbranch/longshot/internal/services/league/domain/ruleset"
	"github.com/louisbranch/longshot/internal/services/league/domain/season"
	"github.com/louisbranch/longshot/internal/services/league/domain/sim"
	"github.com/louisbranch/longshot/internal/services/league/gov"
	"github.com/louisbranch/longshot/internal/services/league/storage"
)

// GameOutcome pairs a persisted game row with its full engine result.
type GameOutcome struct {
	Record storage.GameResultRecord
	Result sim.Result
}

// RoundSummary reports what one round produced.
type RoundSummary struct {
	SeasonID string
	Round    int
	Phase    season.Phase
	Games    []GameOutcome
	Tallies  []gov.TallyOutcome
	Reports  []storage.ReportRecord
	// Partial marks a round whose results are durable but whose reports or
	// finalization did not complete.
	Partial bool

	metaStore    *meta.Store
	effects      []effect.Effect
	govNarration []string
}

// RunRound executes one full round in three phases. Phase A holds a short
// write session for governance and simulation; Phase B generates narratives
// with no session held; Phase C persists reports, advances the season
// lifecycle, and publishes round completion.
func (a *App) RunRound(ctx context.Context) (*RoundSummary, error) {
	rec, err := a.store.GetActiveSeason(ctx)
	if err != nil {
		return nil, fmt.Errorf("load active season: %w", err)
	}
	s, err := seasonFromRecord(rec)
	if err != nil {
		return nil, err
	}
	rules, err := currentRules(rec)
	if err != nil {
		return nil, fmt.Errorf("season %s rules: %w", s.ID, err)
	}

	// A completed season never simulates, but governance must not starve:
	// pending proposals still tally.
	if s.Phase == season.PhaseComplete {
		return a.governanceOnly(ctx, s, rules)
	}

	if s.Phase == season.PhaseSetup {
		if err := s.Transition(season.PhaseActive); err != nil {
			return nil, err
		}
		a.publishPhaseChange(s, season.PhaseSetup)
	}

	round := s.CurrentRound + 1
	log.Printf("round %d: phase A (season %s, %s)", round, s.ID, s.Phase)

	summary := &RoundSummary{SeasonID: s.ID, Round: round, Phase: s.Phase}

	rules, err = a.phaseA(ctx, &s, rec, rules, round, summary)
	if err != nil {
		a.markRoundFailed(ctx, s.ID, round, err)
		return nil, fmt.Errorf("round %d phase A: %w", round, err)
	}

	log.Printf("round %d: phase B (%d games)", round, len(summary.Games))
	reports := a.phaseB(ctx, s, round, summary)

	log.Printf("round %d: phase C (%d reports)", round, len(reports))
	if err := a.phaseC(ctx, &s, rec, rules, round, summary, reports); err != nil {
		summary.Partial = true
		return summary, fmt.Errorf("round %d phase C: %w", round, err)
	}
	summary.Phase = s.Phase
	return summary, nil
}

// governanceOnly tallies pending proposals without simulating. Rule changes
// enacted here still persist onto the season row.
func (a *App) governanceOnly(ctx context.Context, s season.Season, rules ruleset.RuleSet) (*RoundSummary, error) {
	round := s.CurrentRound
	registry, err := a.loadRegistry(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	active := registry.ActiveAt(round)
	for _, line := range a.fireHook(active, effect.HookGovPre, s.ID, round, nil) {
		log.Printf("round %d: %s", round, line)
	}
	if err := a.kernel.RetryInterpretations(ctx, s.ID, round); err != nil {
		return nil, err
	}
	updated, tallies, err := a.kernel.TallyPending(ctx, s.ID, round, rules)
	if err != nil {
		return nil, err
	}
	for _, line := range a.fireHook(active, effect.HookGovPost, s.ID, round, map[string]any{"tallies": float64(len(tallies))}) {
		log.Printf("round %d: %s", round, line)
	}
	if len(tallies) > 0 {
		rec, err := a.store.GetSeason(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		rec, err = seasonToRecord(s, rec, updated)
		if err != nil {
			return nil, err
		}
		if err := a.store.PutSeason(ctx, rec); err != nil {
			return nil, fmt.Errorf("persist season: %w", err)
		}
	}
	return &RoundSummary{SeasonID: s.ID, Round: round, Phase: s.Phase, Tallies: tallies}, nil
}

// phaseA runs governance and simulation under one short write session and
// returns the post-tally rule set.
func (a *App) phaseA(ctx context.Context, s *season.Season, rec storage.SeasonRecord, rules ruleset.RuleSet, round int, summary *RoundSummary) (ruleset.RuleSet, error) {
	registry, err := a.loadRegistry(ctx, s.ID)
	if err != nil {
		return rules, err
	}
	if err := a.expireEffects(ctx, s.ID, round, registry); err != nil {
		return rules, err
	}
	active := registry.ActiveAt(round)

	summary.govNarration = append(summary.govNarration,
		a.fireHook(active, effect.HookGovPre, s.ID, round, nil)...)

	if err := a.kernel.RetryInterpretations(ctx, s.ID, round); err != nil {
		return rules, err
	}
	rules, tallies, err := a.kernel.TallyPending(ctx, s.ID, round, rules)
	if err != nil {
		return rules, err
	}
	summary.Tallies = tallies

	summary.govNarration = append(summary.govNarration,
		a.fireHook(active, effect.HookGovPost, s.ID, round, map[string]any{"tallies": float64(len(tallies))})...)

	if err := a.applyAcceptedTrades(ctx, s.ID, round); err != nil {
		return rules, err
	}

	metaStore := meta.NewStore(s.ID)
	teams, err := a.loadTeams(ctx, s.ID, metaStore)
	if err != nil {
		return rules, err
	}
	strategies, err := a.loadStrategies(ctx, s.ID)
	if err != nil {
		return rules, err
	}

	fixtures, err := a.store.ListScheduledGames(ctx, s.ID, round)
	if err != nil {
		return rules, fmt.Errorf("list fixtures: %w", err)
	}

	// Serial simulation in schedule order keeps event ordering deterministic.
	for _, fixture := range fixtures {
		if fixture.Played {
			continue
		}
		home, ok := teams[fixture.HomeTeamID]
		if !ok {
			return rules, fmt.Errorf("fixture %s: unknown home team %s", fixture.ID, fixture.HomeTeamID)
		}
		away, ok := teams[fixture.AwayTeamID]
		if !ok {
			return rules, fmt.Errorf("fixture %s: unknown away team %s", fixture.ID, fixture.AwayTeamID)
		}

		seed := gameSeed(s.ID, fixture.ID, round)
		result, err := sim.Simulate(sim.Input{
			GameID:     fixture.ID,
			Home:       home,
			Away:       away,
			Rules:      rules,
			Seed:       seed,
			Effects:    active,
			Strategies: strategies,
			Meta:       metaStore,
			Round:      round,
		})
		if err != nil {
			return rules, fmt.Errorf("simulate game %s: %w", fixture.ID, err)
		}

		record, err := a.persistResult(ctx, s.ID, round, fixture, result)
		if err != nil {
			return rules, err
		}
		summary.Games = append(summary.Games, GameOutcome{Record: record, Result: result})
	}

	if rules.GovernanceIntervalRounds > 0 && round%rules.GovernanceIntervalRounds == 0 {
		if err := a.kernel.RegenerateTokens(ctx, s.ID, round, rules); err != nil {
			return rules, err
		}
	}

	s.CurrentRound = round
	rec, err = seasonToRecord(*s, rec, rules)
	if err != nil {
		return rules, err
	}
	if err := a.store.PutSeason(ctx, rec); err != nil {
		return rules, fmt.Errorf("persist season: %w", err)
	}

	// Meta mutations from simulation flush in phase C, but keep the store
	// and active effects reachable for the later phases.
	summary.metaStore = metaStore
	summary.effects = active
	return rules, nil
}

// fireHook runs hook-subscribed effects outside the engine. There is no game
// state to absorb mutations into; narration lines are returned for the
// caller to surface. Hook failures degrade to a log line.
func (a *App) fireHook(active []effect.Effect, hook, seasonID string, round int, fields map[string]any) []string {
	if len(active) == 0 {
		return nil
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields["round"] = float64(round)
	hctx := &effect.Context{
		Event: fields,
		Rand:  rand.New(rand.NewSource(gameSeed(seasonID, hook, round))),
	}
	if err := effect.Fire(active, hook, hctx); err != nil {
		log.Printf("round %d: hook %s: %v", round, hook, err)
		return nil
	}
	return hctx.Narration
}

// phaseB generates every narrative artifact with no storage session held.
// Each call degrades to the deterministic mock individually.
func (a *App) phaseB(ctx context.Context, s season.Season, round int, summary *RoundSummary) []storage.ReportRecord {
	return a.generateReports(ctx, s, round, summary)
}

// phaseC persists reports, advances the lifecycle, flushes meta, and
// publishes completion.
func (a *App) phaseC(ctx context.Context, s *season.Season, rec storage.SeasonRecord, rules ruleset.RuleSet, round int, summary *RoundSummary, reports []storage.ReportRecord) error {
	for _, report := range reports {
		if err := a.store.PutReport(ctx, report); err != nil {
			return fmt.Errorf("store report %s: %w", report.Kind, err)
		}
		a.bus.Publish("report.generated", report)
	}
	summary.Reports = reports

	if a.cfg.EvaluationEnabled {
		a.runEvaluation(ctx, *s, round, summary)
	}

	if err := a.advanceLifecycle(ctx, s, rules, round); err != nil {
		return err
	}

	rec, err := a.store.GetSeason(ctx, s.ID)
	if err != nil {
		return err
	}
	rec, err = seasonToRecord(*s, rec, rules)
	if err != nil {
		return err
	}
	if err := a.store.PutSeason(ctx, rec); err != nil {
		return fmt.Errorf("persist season: %w", err)
	}

	if summary.metaStore != nil {
		if err := a.flushMeta(ctx, summary.metaStore); err != nil {
			return err
		}
	}

	for _, game := range summary.Games {
		a.bus.Publish("game.completed", game.Record)
	}
	a.bus.Publish("round.completed", RoundCompleted{
		SeasonID: s.ID,
		Round:    round,
		Games:    len(summary.Games),
		Phase:    string(s.Phase),
	})
	return nil
}

// RoundCompleted is the bus payload published at the end of phase C.
type RoundCompleted struct {
	SeasonID string `json:"season_id"`
	Round    int    `json:"round"`
	Games    int    `json:"games"`
	Phase    string `json:"phase"`
}

// loadRegistry rebuilds the effect registry from the governance log.
func (a *App) loadRegistry(ctx context.Context, seasonID string) (*effect.Registry, error) {
	events, err := a.store.ListEvents(ctx, seasonID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return effect.FromEvents(events)
}

// expireEffects appends effect.expired for every effect lapsing this round.
func (a *App) expireEffects(ctx context.Context, seasonID string, round int, registry *effect.Registry) error {
	for _, e := range registry.ExpiringAt(round) {
		payload, err := event.EncodePayload(event.EffectExpiredPayload{EffectID: e.ID, Round: round})
		if err != nil {
			return err
		}
		if _, err := a.store.AppendEvent(ctx, event.Event{
			ID:            a.newID(),
			SeasonID:      seasonID,
			Round:         round,
			Type:          event.TypeEffectExpired,
			AggregateType: event.AggregateEffect,
			AggregateID:   e.ID,
			Timestamp:     a.now(),
			PayloadJSON:   payload,
		}); err != nil {
			return fmt.Errorf("expire effect %s: %w", e.ID, err)
		}
	}
	return nil
}

// persistResult stores the game result row plus box scores and marks the
// fixture played. Presented starts true only in instant mode.
func (a *App) persistResult(ctx context.Context, seasonID string, round int, fixture storage.ScheduledGameRecord, result sim.Result) (storage.GameResultRecord, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return storage.GameResultRecord{}, fmt.Errorf("encode result %s: %w", fixture.ID, err)
	}
	record := storage.GameResultRecord{
		ID:         fixture.ID,
		SeasonID:   seasonID,
		Round:      round,
		HomeTeamID: result.HomeTeamID,
		AwayTeamID: result.AwayTeamID,
		HomeScore:  result.HomeScore,
		AwayScore:  result.AwayScore,
		Seed:       result.Seed,
		ResultJSON: resultJSON,
		Presented:  a.cfg.PresentationMode == ModeInstant,
		CreatedAt:  a.now(),
	}
	boxScores := make([]storage.BoxScoreRecord, 0, len(result.BoxScores))
	for _, line := range result.BoxScores {
		lineJSON, err := json.Marshal(line)
		if err != nil {
			return storage.GameResultRecord{}, fmt.Errorf("encode box score: %w", err)
		}
		boxScores = append(boxScores, storage.BoxScoreRecord{
			GameID:   fixture.ID,
			PlayerID: line.PlayerID,
			TeamID:   line.TeamID,
			LineJSON: lineJSON,
		})
	}
	if err := a.store.PutGameResult(ctx, record, boxScores); err != nil {
		return storage.GameResultRecord{}, fmt.Errorf("store game %s: %w", fixture.ID, err)
	}
	if err := a.store.MarkScheduledGamePlayed(ctx, fixture.ID); err != nil {
		return storage.GameResultRecord{}, fmt.Errorf("mark fixture %s played: %w", fixture.ID, err)
	}
	return record, nil
}

// markRoundFailed records a fatal phase A abort on the governance log so the
// round does not silently vanish. The season round cursor is not advanced.
func (a *App) markRoundFailed(ctx context.Context, seasonID string, round int, cause error) {
	payload, err := json.Marshal(map[string]any{"round": round, "reason": cause.Error()})
	if err != nil {
		log.Printf("round %d: encode failure marker: %v", round, err)
		return
	}
	if _, err := a.store.AppendEvent(ctx, event.Event{
		ID:          a.newID(),
		SeasonID:    seasonID,
		Round:       round,
		Type:        event.Type("round.failed"),
		AggregateID: fmt.Sprintf("round-%d", round),
		Timestamp:   a.now(),
		PayloadJSON: payload,
	}); err != nil {
		log.Printf("round %d: record failure: %v", round, err)
	}
}

// runEvaluation asks the evaluator for a balance score. Diagnostics only;
// failures are logged and ignored.
func (a *App) runEvaluation(ctx context.Context, s season.Season, round int, summary *RoundSummary) {
	prompt := fmt.Sprintf("season %s round %d: %d games, %d tallies", s.ID, round, len(summary.Games), len(summary.Tallies))
	resp, err := a.gateway.GenerateOrMock(ctx, ai.Request{Purpose: ai.PurposeEvaluator, Prompt: prompt})
	if err != nil {
		log.Printf("round %d: evaluation skipped: %v", round, err)
		return
	}
	log.Printf("round %d: evaluation %s", round, resp.Text)
}

func (a *App) publishPhaseChange(s season.Season, from season.Phase) {
	a.bus.Publish("season.phase_changed", PhaseChanged{
		SeasonID: s.ID,
		From:     string(from),
		To:       string(s.Phase),
	})
}

// PhaseChanged is the bus payload for season lifecycle transitions.
type PhaseChanged struct {
	SeasonID string `json:"season_id"`
	From     string `json:"from"`
	To       string `json:"to"`
}
