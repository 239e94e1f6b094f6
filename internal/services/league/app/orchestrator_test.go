package app

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/longshot/internal/platform/bus"
	"github.com/louisbranch/longshot/internal/services/league/ai"
	"github.com/louisbranch/longshot/internal/services/league/domain/effect"
	"github.com/louisbranch/longshot/internal/services/league/domain/event"
	"github.com/louisbranch/longshot/internal/services/league/domain/season"
	"github.com/louisbranch/longshot/internal/services/league/storage"
	"github.com/louisbranch/longshot/internal/services/league/storage/sqlite"
)

func newTestApp(t *testing.T, teams int) (*App, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	a := New(store, ai.NewGateway(nil, store), bus.New(), Config{
		PresentationMode: ModeInstant,
		PresentationPace: PaceManual,
	})
	if _, err := a.Seed(context.Background(), SeedParams{LeagueName: "Test League", Teams: teams}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return a, store
}

// enrollGovernors binds one governor per team and returns governor ids in
// team order.
func enrollGovernors(t *testing.T, a *App) []string {
	t.Helper()
	ctx := context.Background()
	rec, err := a.ActiveSeason(ctx)
	if err != nil {
		t.Fatalf("active season: %v", err)
	}
	teams, err := a.store.ListTeams(ctx, rec.ID)
	if err != nil {
		t.Fatalf("list teams: %v", err)
	}
	var governors []string
	for i, team := range teams {
		governorID := "gov-" + team.ID
		if err := a.Enroll(ctx, rec.ID, governorID, team.ID, team.Name); err != nil {
			t.Fatalf("enroll governor %d: %v", i, err)
		}
		governors = append(governors, governorID)
	}
	return governors
}

func TestSeedBuildsPlayableLeague(t *testing.T) {
	a, store := newTestApp(t, 4)
	ctx := context.Background()

	rec, err := a.ActiveSeason(ctx)
	if err != nil {
		t.Fatalf("active season: %v", err)
	}
	if rec.Phase != string(season.PhaseSetup) {
		t.Fatalf("phase = %s, want SETUP", rec.Phase)
	}

	teams, err := store.ListTeams(ctx, rec.ID)
	if err != nil {
		t.Fatalf("list teams: %v", err)
	}
	if len(teams) != 4 {
		t.Fatalf("teams = %d, want 4", len(teams))
	}
	for _, team := range teams {
		players, err := store.ListPlayers(ctx, team.ID)
		if err != nil {
			t.Fatalf("list players: %v", err)
		}
		if len(players) != 3 {
			t.Fatalf("team %s roster = %d, want 3", team.Name, len(players))
		}
	}

	// Double round-robin over 4 teams: 6 rounds of 2 games.
	for round := 1; round <= 6; round++ {
		fixtures, err := store.ListScheduledGames(ctx, rec.ID, round)
		if err != nil {
			t.Fatalf("list fixtures: %v", err)
		}
		if len(fixtures) != 2 {
			t.Fatalf("round %d fixtures = %d, want 2", round, len(fixtures))
		}
	}
}

func TestRunRoundSimulatesAndAdvances(t *testing.T) {
	a, store := newTestApp(t, 4)
	enrollGovernors(t, a)
	ctx := context.Background()

	summary, err := a.RunRound(ctx)
	if err != nil {
		t.Fatalf("run round: %v", err)
	}
	if summary.Round != 1 {
		t.Fatalf("round = %d, want 1", summary.Round)
	}
	if len(summary.Games) != 2 {
		t.Fatalf("games = %d, want 2", len(summary.Games))
	}
	if len(summary.Reports) == 0 {
		t.Fatal("expected reports")
	}
	if summary.Partial {
		t.Fatal("round marked partial")
	}

	rec, err := a.ActiveSeason(ctx)
	if err != nil {
		t.Fatalf("active season: %v", err)
	}
	if rec.CurrentRound != 1 {
		t.Fatalf("current round = %d, want 1", rec.CurrentRound)
	}
	if rec.Phase != string(season.PhaseActive) {
		t.Fatalf("phase = %s, want ACTIVE", rec.Phase)
	}

	fixtures, err := store.ListScheduledGames(ctx, rec.ID, 1)
	if err != nil {
		t.Fatalf("list fixtures: %v", err)
	}
	for _, fixture := range fixtures {
		if !fixture.Played {
			t.Fatalf("fixture %s not marked played", fixture.ID)
		}
	}

	// Instant mode persists games pre-presented.
	games, err := store.ListGameResults(ctx, rec.ID, 1)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	for _, game := range games {
		if !game.Presented {
			t.Fatalf("game %s not presented in instant mode", game.ID)
		}
	}
}

func TestRunRoundIsDeterministicPerFixture(t *testing.T) {
	a, _ := newTestApp(t, 2)
	enrollGovernors(t, a)
	ctx := context.Background()

	summary, err := a.RunRound(ctx)
	if err != nil {
		t.Fatalf("run round: %v", err)
	}
	game := summary.Games[0]
	if game.Result.Seed != gameSeed(summary.SeasonID, game.Record.ID, 1) {
		t.Fatalf("seed = %d, want derived seed %d",
			game.Result.Seed, gameSeed(summary.SeasonID, game.Record.ID, 1))
	}
	if game.Record.HomeScore != game.Result.HomeScore || game.Record.AwayScore != game.Result.AwayScore {
		t.Fatal("record scores diverge from engine result")
	}
}

func TestProposalPassesAfterFirstTallyDeferral(t *testing.T) {
	a, _ := newTestApp(t, 4)
	governors := enrollGovernors(t, a)
	ctx := context.Background()

	rec, err := a.ActiveSeason(ctx)
	if err != nil {
		t.Fatalf("active season: %v", err)
	}
	kernel := a.Kernel()

	outcome, err := kernel.Submit(ctx, rec.ID, 0, governors[0], "", "set three_point_value = 4")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.Status != "ok" {
		t.Fatalf("submit status = %s (%s)", outcome.Status, outcome.Reason)
	}
	for _, governor := range governors[1:] {
		if err := kernel.Vote(ctx, rec.ID, 0, outcome.ProposalID, governor, "yes", false); err != nil {
			t.Fatalf("vote %s: %v", governor, err)
		}
	}

	// Round 1 defers the first tally by one window.
	first, err := a.RunRound(ctx)
	if err != nil {
		t.Fatalf("round 1: %v", err)
	}
	if len(first.Tallies) != 1 || !first.Tallies[0].Deferred {
		t.Fatalf("round 1 tallies = %+v, want one deferred", first.Tallies)
	}

	second, err := a.RunRound(ctx)
	if err != nil {
		t.Fatalf("round 2: %v", err)
	}
	if len(second.Tallies) != 1 || second.Tallies[0].Deferred {
		t.Fatalf("round 2 tallies = %+v, want one counted", second.Tallies)
	}
	if !second.Tallies[0].Result.Passed {
		t.Fatalf("tally failed: %+v", second.Tallies[0].Result)
	}

	rec, err = a.ActiveSeason(ctx)
	if err != nil {
		t.Fatalf("active season: %v", err)
	}
	rules, err := currentRules(rec)
	if err != nil {
		t.Fatalf("rules: %v", err)
	}
	if rules.ThreePointValue != 4 {
		t.Fatalf("three_point_value = %d, want 4", rules.ThreePointValue)
	}
}

func TestAcceptedTradeSwapsRosters(t *testing.T) {
	a, store := newTestApp(t, 4)
	governors := enrollGovernors(t, a)
	ctx := context.Background()

	rec, err := a.ActiveSeason(ctx)
	if err != nil {
		t.Fatalf("active season: %v", err)
	}
	teams, err := store.ListTeams(ctx, rec.ID)
	if err != nil {
		t.Fatalf("list teams: %v", err)
	}
	fromRoster, err := store.ListPlayers(ctx, teams[0].ID)
	if err != nil {
		t.Fatalf("list players: %v", err)
	}
	toRoster, err := store.ListPlayers(ctx, teams[1].ID)
	if err != nil {
		t.Fatalf("list players: %v", err)
	}

	kernel := a.Kernel()
	tradeID, err := kernel.OfferTrade(ctx, rec.ID, 0, event.TradePayload{
		FromGovernorID:   governors[0],
		ToGovernorID:     governors[1],
		OfferedPlayerIDs: []string{fromRoster[0].ID},
		WantedPlayerIDs:  []string{toRoster[0].ID},
	})
	if err != nil {
		t.Fatalf("offer trade: %v", err)
	}
	if err := kernel.RespondTrade(ctx, rec.ID, 0, tradeID, governors[1], true); err != nil {
		t.Fatalf("accept trade: %v", err)
	}

	if _, err := a.RunRound(ctx); err != nil {
		t.Fatalf("run round: %v", err)
	}

	moved, err := store.ListPlayers(ctx, teams[1].ID)
	if err != nil {
		t.Fatalf("list players: %v", err)
	}
	found := false
	for _, p := range moved {
		if p.ID == fromRoster[0].ID {
			found = true
		}
		if p.ID == toRoster[0].ID {
			t.Fatalf("player %s still on team %s", p.ID, teams[1].ID)
		}
	}
	if !found {
		t.Fatalf("player %s did not move to team %s", fromRoster[0].ID, teams[1].ID)
	}

	// Reapplying the same trade next round is a no-op.
	if _, err := a.RunRound(ctx); err != nil {
		t.Fatalf("second round: %v", err)
	}
}

func TestSeasonLifecycleRunsToCompletion(t *testing.T) {
	a, _ := newTestApp(t, 2)
	enrollGovernors(t, a)
	ctx := context.Background()

	phases := make(map[season.Phase]bool)
	for i := 0; i < 6; i++ {
		summary, err := a.RunRound(ctx)
		if err != nil {
			t.Fatalf("round %d: %v", i+1, err)
		}
		phases[summary.Phase] = true
	}

	rec, err := a.ActiveSeason(ctx)
	if err != nil {
		t.Fatalf("active season: %v", err)
	}
	if rec.Phase != string(season.PhaseOffseason) {
		t.Fatalf("phase = %s, want OFFSEASON", rec.Phase)
	}
	s, err := seasonFromRecord(rec)
	if err != nil {
		t.Fatalf("decode season: %v", err)
	}
	if s.Lifecycle.ChampionTeamID == "" {
		t.Fatal("no champion recorded")
	}
	if s.Lifecycle.OffseasonClosesAt == nil {
		t.Fatal("no offseason window recorded")
	}
	for _, want := range []season.Phase{season.PhasePlayoffs, season.PhaseChampionship, season.PhaseOffseason} {
		if !phases[want] {
			t.Fatalf("season never reached %s (saw %v)", want, phases)
		}
	}

	// Fast-forward past the governance window; the next round completes and
	// archives the season.
	a.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := a.RunRound(ctx); err != nil {
		t.Fatalf("closing round: %v", err)
	}
	rec, err = a.ActiveSeason(ctx)
	if err != nil {
		t.Fatalf("active season: %v", err)
	}
	if rec.Phase != string(season.PhaseComplete) {
		t.Fatalf("phase = %s, want COMPLETE", rec.Phase)
	}

	// Completed seasons still run governance.
	summary, err := a.RunRound(ctx)
	if err != nil {
		t.Fatalf("governance-only round: %v", err)
	}
	if len(summary.Games) != 0 {
		t.Fatalf("complete season simulated %d games", len(summary.Games))
	}
}

func TestStandingsOrderByWinsThenDiff(t *testing.T) {
	a, _ := newTestApp(t, 4)
	enrollGovernors(t, a)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := a.RunRound(ctx); err != nil {
			t.Fatalf("round %d: %v", i+1, err)
		}
	}

	rec, err := a.ActiveSeason(ctx)
	if err != nil {
		t.Fatalf("active season: %v", err)
	}
	table, err := a.Standings(ctx, rec.ID)
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	if len(table) != 4 {
		t.Fatalf("standings rows = %d, want 4", len(table))
	}
	totalGames := 0
	for i, line := range table {
		totalGames += line.Wins + line.Losses
		if i > 0 && line.Wins > table[i-1].Wins {
			t.Fatalf("standings out of order at %d: %+v", i, table)
		}
	}
	// 3 rounds of 2 games, each game counted for both teams.
	if totalGames != 12 {
		t.Fatalf("total win/loss entries = %d, want 12", totalGames)
	}
}

func TestRoundCompletionPublishesOnBus(t *testing.T) {
	a, _ := newTestApp(t, 2)
	enrollGovernors(t, a)

	sub := a.Bus().Subscribe("round.completed")
	defer sub.Unsubscribe()

	if _, err := a.RunRound(context.Background()); err != nil {
		t.Fatalf("run round: %v", err)
	}

	select {
	case evt := <-sub.C:
		completed, ok := evt.Payload.(RoundCompleted)
		if !ok {
			t.Fatalf("payload type %T", evt.Payload)
		}
		if completed.Round != 1 || completed.Games != 1 {
			t.Fatalf("payload = %+v", completed)
		}
	case <-time.After(time.Second):
		t.Fatal("no round.completed event")
	}
}

func TestAskAnswersFromMock(t *testing.T) {
	a, _ := newTestApp(t, 2)
	enrollGovernors(t, a)
	ctx := context.Background()

	if _, err := a.RunRound(ctx); err != nil {
		t.Fatalf("run round: %v", err)
	}

	answer, err := a.Ask(ctx, "who is leading the league?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if answer == "" {
		t.Fatal("empty answer")
	}
}

func TestHookEffectsFlavorReports(t *testing.T) {
	a, store := newTestApp(t, 2)
	enrollGovernors(t, a)
	ctx := context.Background()
	rec, err := a.ActiveSeason(ctx)
	if err != nil {
		t.Fatalf("active season: %v", err)
	}

	spec := effect.Spec{
		Kind:       effect.KindHookCallback,
		HookPoints: []string{effect.HookGovPre, effect.HookReportCommPre, effect.HookReportSimPre},
		Actions:    []effect.Action{{Op: effect.OpNarrative, Text: "the crowd hums in the rafters"}},
		Duration:   effect.Duration{Kind: effect.DurationPermanent},
	}
	encoded, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("encode spec: %v", err)
	}
	payload, err := event.EncodePayload(event.EffectRegisteredPayload{
		EffectID:        "eff-flavor",
		ActivationRound: 1,
		Effect:          encoded,
	})
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	if _, err := store.AppendEvent(ctx, event.Event{
		ID:            "evt-flavor",
		SeasonID:      rec.ID,
		Type:          event.TypeEffectRegistered,
		AggregateType: event.AggregateEffect,
		AggregateID:   "eff-flavor",
		Timestamp:     time.Now(),
		PayloadJSON:   payload,
	}); err != nil {
		t.Fatalf("append effect event: %v", err)
	}

	summary, err := a.RunRound(ctx)
	if err != nil {
		t.Fatalf("run round: %v", err)
	}

	bodies := map[string]string{}
	for _, report := range summary.Reports {
		bodies[report.Kind] = report.Body
	}
	for _, kind := range []string{storage.ReportCommentary, storage.ReportSimulation, storage.ReportGovernance} {
		if !strings.Contains(bodies[kind], "the crowd hums in the rafters") {
			t.Errorf("%s report missing hook flavor line: %q", kind, bodies[kind])
		}
	}
}
