package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/longshot/internal/services/league/ai"
	"github.com/louisbranch/longshot/internal/services/league/gov"
	"github.com/louisbranch/longshot/internal/services/league/storage"
)

// ActiveSeason returns the season the scheduler is driving.
func (a *App) ActiveSeason(ctx context.Context) (storage.SeasonRecord, error) {
	return a.store.GetActiveSeason(ctx)
}

// GovernorTeam resolves a governor's active enrollment to their team.
func (a *App) GovernorTeam(ctx context.Context, seasonID, governorID string) (string, error) {
	enrollments, err := a.store.ListEnrollments(ctx, seasonID)
	if err != nil {
		return "", fmt.Errorf("list enrollments: %w", err)
	}
	for _, e := range enrollments {
		if e.GovernorID == governorID && e.Active {
			return e.TeamID, nil
		}
	}
	return "", fmt.Errorf("governor %s has no active enrollment: %w", governorID, storage.ErrNotFound)
}

// Amend forwards an amendment to the kernel under the season's current rule
// set, so a governed amendment_cap change binds immediately.
func (a *App) Amend(ctx context.Context, seasonID string, round int, proposalID, amenderID, rawText string) (gov.Outcome, error) {
	rec, err := a.store.GetSeason(ctx, seasonID)
	if err != nil {
		return gov.Outcome{}, fmt.Errorf("load season: %w", err)
	}
	rules, err := currentRules(rec)
	if err != nil {
		return gov.Outcome{}, fmt.Errorf("season %s rules: %w", seasonID, err)
	}
	return a.kernel.Amend(ctx, seasonID, round, proposalID, amenderID, rawText, rules)
}

// Reports returns a round's narrative artifacts.
func (a *App) Reports(ctx context.Context, seasonID string, round int) ([]storage.ReportRecord, error) {
	return a.store.ListReports(ctx, seasonID, round)
}

// GameResults returns a round's persisted games.
func (a *App) GameResults(ctx context.Context, seasonID string, round int) ([]storage.GameResultRecord, error) {
	return a.store.ListGameResults(ctx, seasonID, round)
}

// Ask answers a natural-language question about the league. The current
// season's table and results are bundled into the prompt; without an API key
// the deterministic mock answers.
func (a *App) Ask(ctx context.Context, question string) (string, error) {
	rec, err := a.store.GetActiveSeason(ctx)
	if err != nil {
		return "", fmt.Errorf("load active season: %w", err)
	}
	table, err := a.Standings(ctx, rec.ID)
	if err != nil {
		return "", err
	}
	games, err := a.store.ListGameResults(ctx, rec.ID, -1)
	if err != nil {
		return "", fmt.Errorf("list results: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "question: %s\n", question)
	fmt.Fprintf(&b, "season %s round %d phase %s\n", rec.ID, rec.CurrentRound, rec.Phase)
	b.WriteString("standings:\n")
	for i, line := range table {
		fmt.Fprintf(&b, "%d. %s %d-%d %+d\n", i+1, line.TeamID, line.Wins, line.Losses, line.PointDiff)
	}
	b.WriteString("results:\n")
	for _, g := range games {
		fmt.Fprintf(&b, "round %d: %s %d - %s %d\n", g.Round, g.HomeTeamID, g.HomeScore, g.AwayTeamID, g.AwayScore)
	}

	resp, err := a.gateway.GenerateOrMock(ctx, ai.Request{
		Purpose: ai.PurposeReportSim,
		System:  "Answer questions about league standings and results from the provided data only.",
		Prompt:  b.String(),
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
