package gov

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/longshot/internal/services/league/domain/event"
)

// SetStrategy records a governor's raw coaching directive and its structured
// interpretation for the team's next games. Parsing is deterministic keyword
// matching so strategy never depends on gateway availability.
func (k *Kernel) SetStrategy(ctx context.Context, seasonID string, round int, governorID, rawText string) (event.StrategyInterpretedPayload, error) {
	teamID, _, err := k.voteWeight(ctx, seasonID, governorID)
	if err != nil {
		return event.StrategyInterpretedPayload{}, err
	}

	rawText = strings.TrimSpace(rawText)
	if rawText == "" {
		return event.StrategyInterpretedPayload{}, fmt.Errorf("strategy text is required")
	}

	if err := k.append(ctx, seasonID, round, event.TypeStrategySet, event.AggregateStrategy,
		teamID, governorID, teamID,
		event.StrategySetPayload{TeamID: teamID, RawText: rawText}); err != nil {
		return event.StrategyInterpretedPayload{}, err
	}

	interpreted := parseStrategy(teamID, rawText)
	if err := k.append(ctx, seasonID, round, event.TypeStrategyInterpreted, event.AggregateStrategy,
		teamID, governorID, teamID, interpreted); err != nil {
		return event.StrategyInterpretedPayload{}, err
	}
	return interpreted, nil
}

// parseStrategy maps directive keywords onto the engine's strategy knobs.
// Unmatched text leaves the neutral defaults in place.
func parseStrategy(teamID, rawText string) event.StrategyInterpretedPayload {
	text := strings.ToLower(rawText)
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(text, w) {
				return true
			}
		}
		return false
	}

	out := event.StrategyInterpretedPayload{
		TeamID:             teamID,
		Pace:               "normal",
		DefensiveIntensity: 0.5,
		ThreePointBias:     0.5,
		RimBias:            0.5,
	}
	var notes []string

	switch {
	case has("run and gun", "push the pace", "fast break", "up-tempo", "uptempo", "fast pace"):
		out.Pace = "fast"
		notes = append(notes, "push the pace")
	case has("slow it down", "half court", "half-court", "grind", "slow pace", "control the clock"):
		out.Pace = "slow"
		notes = append(notes, "slow it down")
	}

	switch {
	case has("lockdown", "lock down", "full court press", "press", "physical defense", "clamp"):
		out.DefensiveIntensity = 0.9
		notes = append(notes, "lockdown defense")
	case has("conserve", "save energy", "sag off", "soft defense"):
		out.DefensiveIntensity = 0.25
		notes = append(notes, "conserve energy on defense")
	}

	switch {
	case has("three", "3-point", "3 point", "from deep", "beyond the arc", "bomb"):
		out.ThreePointBias = 0.85
		out.RimBias = 0.3
		notes = append(notes, "hunt threes")
	case has("paint", "inside", "rim", "post up", "post-up", "attack the basket", "drive"):
		out.RimBias = 0.85
		out.ThreePointBias = 0.3
		notes = append(notes, "attack the rim")
	}

	if len(notes) == 0 {
		out.Summary = "balanced approach"
	} else {
		out.Summary = strings.Join(notes, ", ")
	}
	return out
}
