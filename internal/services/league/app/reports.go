package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/louisbranch/longshot/internal/services/league/ai"
	"github.com/louisbranch/longshot/internal/services/league/domain/effect"
	"github.com/louisbranch/longshot/internal/services/league/domain/season"
	"github.com/louisbranch/longshot/internal/services/league/domain/sim"
	"github.com/louisbranch/longshot/internal/services/league/storage"
)

// generateReports produces every phase B narrative: per-game commentary, the
// round highlight reel, the simulation and governance recaps, and one
// private briefing per active governor. Each generation degrades to the
// deterministic mock on its own; a round never loses all reports because one
// call failed.
func (a *App) generateReports(ctx context.Context, s season.Season, round int, summary *RoundSummary) []storage.ReportRecord {
	var reports []storage.ReportRecord

	// add generates one report. Flavor lines come from hook-subscribed
	// effects and append to the body after generation.
	add := func(kind, gameID, governorID string, purpose ai.Purpose, system, prompt string, flavor []string) {
		resp, err := a.gateway.GenerateOrMock(ctx, ai.Request{
			Purpose: purpose,
			System:  system,
			Prompt:  prompt,
		})
		if err != nil {
			log.Printf("round %d: %s report dropped: %v", round, kind, err)
			return
		}
		body := resp.Text
		for _, line := range flavor {
			body += "\n" + line
		}
		reports = append(reports, storage.ReportRecord{
			ID:         a.newID(),
			SeasonID:   s.ID,
			Round:      round,
			Kind:       kind,
			GameID:     gameID,
			GovernorID: governorID,
			Body:       body,
			Mock:       resp.Mock,
			CreatedAt:  a.now(),
		})
	}

	for _, game := range summary.Games {
		flavor := a.fireHook(summary.effects, effect.HookReportCommPre, s.ID, round, map[string]any{
			"game_id":    game.Record.ID,
			"home_score": float64(game.Record.HomeScore),
			"away_score": float64(game.Record.AwayScore),
		})
		add(storage.ReportCommentary, game.Record.ID, "",
			ai.PurposeCommentary,
			"You are a basketball color commentator for a chaotic governed league.",
			gamePrompt(game.Result), flavor)
	}

	roundDigest := roundPrompt(round, summary)
	if len(summary.Games) > 0 {
		add(storage.ReportHighlights, "", "",
			ai.PurposeReportSim,
			"Pick the three most dramatic moments of the round.",
			roundDigest, nil)
		simFlavor := a.fireHook(summary.effects, effect.HookReportSimPre, s.ID, round, map[string]any{
			"games": float64(len(summary.Games)),
		})
		add(storage.ReportSimulation, "", "",
			ai.PurposeReportSim,
			"Summarize the round's results and standings movement.",
			roundDigest, simFlavor)
	}

	add(storage.ReportGovernance, "", "",
		ai.PurposeReportGov,
		"Summarize the round's governance activity for the league.",
		governancePrompt(round, summary), summary.govNarration)

	enrollments, err := a.store.ListEnrollments(ctx, s.ID)
	if err != nil {
		log.Printf("round %d: private reports skipped: %v", round, err)
		return reports
	}
	for _, e := range enrollments {
		if !e.Active {
			continue
		}
		add(storage.ReportPrivate, "", e.GovernorID,
			ai.PurposeReportPrivate,
			"Write a short private briefing for one team governor.",
			fmt.Sprintf("governor %s team %s\n%s", e.GovernorID, e.TeamID, roundDigest), nil)
	}
	return reports
}

// gamePrompt condenses one result into the commentary prompt, including any
// effect-injected narration lines.
func gamePrompt(result sim.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "final %s %d - %s %d", result.HomeTeamID, result.HomeScore, result.AwayTeamID, result.AwayScore)
	if result.ElamActivated {
		fmt.Fprintf(&b, ", elam target %d", result.ElamTarget)
	}
	fmt.Fprintf(&b, ", %d possessions, %d lead changes", result.TotalPossessions, result.LeadChanges)
	for _, entry := range result.PlayByPlay {
		if entry.Narration != "" {
			b.WriteString("\n")
			b.WriteString(entry.Narration)
		}
	}
	return b.String()
}

func roundPrompt(round int, summary *RoundSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "round %d\n", round)
	for _, game := range summary.Games {
		fmt.Fprintf(&b, "%s %d - %s %d\n",
			game.Record.HomeTeamID, game.Record.HomeScore,
			game.Record.AwayTeamID, game.Record.AwayScore)
	}
	return b.String()
}

func governancePrompt(round int, summary *RoundSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "round %d governance\n", round)
	for _, tally := range summary.Tallies {
		switch {
		case tally.Deferred:
			fmt.Fprintf(&b, "proposal %s deferred to next window\n", tally.ProposalID)
		case tally.Result.Passed:
			fmt.Fprintf(&b, "proposal %s passed %.2f/%.2f\n", tally.ProposalID, tally.Result.YesWeight, tally.Result.TotalWeight)
		default:
			fmt.Fprintf(&b, "proposal %s failed %.2f/%.2f\n", tally.ProposalID, tally.Result.YesWeight, tally.Result.TotalWeight)
		}
	}
	if len(summary.Tallies) == 0 {
		b.WriteString("no proposals tallied\n")
	}
	return b.String()
}
