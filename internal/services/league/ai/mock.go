package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/louisbranch/longshot/internal/services/league/domain/effect"
	"github.com/louisbranch/longshot/internal/services/league/domain/proposal"
	"github.com/louisbranch/longshot/internal/services/league/domain/ruleset"
)

// MockModel is the model identifier stamped on mock responses.
const MockModel = "mock"

// Mock is the deterministic fallback generator. Output is a pure function of
// (purpose, prompt), so tests and offline runs are reproducible.
type Mock struct{}

// NewMock builds the deterministic mock generator.
func NewMock() *Mock {
	return &Mock{}
}

// Generate produces a structured fallback for the request's purpose.
func (m *Mock) Generate(_ context.Context, req Request) (Response, error) {
	var text string
	switch req.Purpose {
	case PurposeInterpreter:
		encoded, err := json.Marshal(m.interpret(req.Prompt))
		if err != nil {
			return Response{}, fmt.Errorf("encode mock interpretation: %w", err)
		}
		text = string(encoded)
	case PurposeClassifier:
		text = fmt.Sprintf(`{"injection":%t}`, looksLikeInjection(req.Prompt))
	case PurposeEvaluator:
		text = fmt.Sprintf(`{"balance_score":%.2f}`, 0.3+0.4*hashUnit(req))
	case PurposeCommentary:
		text = pick(commentaryLines, req)
	case PurposeReportSim:
		text = "Round recap: " + pick(recapLines, req)
	case PurposeReportGov:
		text = "Governance recap: " + pick(governanceLines, req)
	case PurposeReportPrivate:
		text = "Private briefing: " + pick(briefingLines, req)
	default:
		text = pick(recapLines, req)
	}

	promptTokens := len(strings.Fields(req.Prompt))
	return Response{
		Text:         text,
		Model:        MockModel,
		InputTokens:  promptTokens,
		OutputTokens: len(strings.Fields(text)),
		Latency:      time.Millisecond,
		Mock:         true,
	}, nil
}

var paramMention = regexp.MustCompile(`([a-z][a-z0-9_]+)\s*(?:=|to)\s*(-?\d+(?:\.\d+)?)`)

// interpret maps proposal text onto a structured interpretation with a crude
// but stable heuristic: explicit "parameter = value" phrases become parameter
// changes, everything else becomes a narrative effect.
func (m *Mock) interpret(prompt string) proposal.Interpretation {
	lowered := strings.ToLower(prompt)
	interp := proposal.Interpretation{
		Summary:          summarize(prompt),
		Confidence:       0.55 + 0.4*hashUnit(Request{Purpose: PurposeInterpreter, Prompt: prompt}),
		InjectionFlagged: looksLikeInjection(prompt),
	}

	for _, match := range paramMention.FindAllStringSubmatch(lowered, -1) {
		name, raw := match[1], match[2]
		if !ruleset.IsParameter(name) {
			continue
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		interp.Effects = append(interp.Effects, effect.Spec{
			Kind:      effect.KindParameterChange,
			Parameter: name,
			Value:     value,
			Duration:  effect.Duration{Kind: effect.DurationPermanent},
		})
	}

	if len(interp.Effects) == 0 {
		interp.Effects = append(interp.Effects, effect.Spec{
			Kind:      effect.KindNarrative,
			Narrative: summarize(prompt),
			Duration:  effect.Duration{Kind: effect.DurationOneGame},
		})
	}
	return interp
}

func summarize(prompt string) string {
	trimmed := strings.Join(strings.Fields(prompt), " ")
	if len(trimmed) > 120 {
		trimmed = trimmed[:120]
	}
	return trimmed
}

func looksLikeInjection(prompt string) bool {
	lowered := strings.ToLower(prompt)
	for _, marker := range []string{
		"ignore previous", "ignore all previous", "system prompt",
		"disregard your instructions", "you are now",
	} {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}

// hashUnit maps (purpose, prompt) onto [0, 1) deterministically.
func hashUnit(req Request) float64 {
	h := fnv.New64a()
	h.Write([]byte(req.Purpose))
	h.Write([]byte{0})
	h.Write([]byte(req.Prompt))
	return float64(h.Sum64()%1000) / 1000.0
}

func pick(lines []string, req Request) string {
	h := fnv.New64a()
	h.Write([]byte(req.Purpose))
	h.Write([]byte{0})
	h.Write([]byte(req.Prompt))
	return lines[h.Sum64()%uint64(len(lines))]
}

var commentaryLines = []string{
	"A gritty, physical game decided in the closing possessions.",
	"The shooters took over early and never looked back.",
	"Both benches emptied their legs chasing the Elam target.",
	"Turnovers told the story; the winners simply valued the ball.",
	"An ugly first half gave way to a frantic, foul-soaked finish.",
}

var recapLines = []string{
	"the standings tightened and no one is safe.",
	"one blowout, one thriller, and a league on edge.",
	"stamina management decided more games than shooting did.",
	"the round rewarded teams that trusted their benches.",
}

var governanceLines = []string{
	"a quiet window with the real fights still brewing.",
	"proposals flew and the rulebook barely survived.",
	"the vote margins were razor thin across every tier.",
	"token balances are running low before the next regeneration.",
}

var briefingLines = []string{
	"your roster is healthy; spend tokens while the window is soft.",
	"watch the pending proposal closely, the tally lands next round.",
	"your rivals are hoarding boosts; an amendment may be cheaper.",
	"the schedule favors you; save your governance capital.",
}
