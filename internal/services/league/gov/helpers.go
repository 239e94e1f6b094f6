package gov

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/louisbranch/longshot/internal/services/league/ai"
	"github.com/louisbranch/longshot/internal/services/league/domain/effect"
	"github.com/louisbranch/longshot/internal/services/league/domain/event"
	"github.com/louisbranch/longshot/internal/services/league/domain/proposal"
	"github.com/louisbranch/longshot/internal/services/league/domain/token"
	"github.com/louisbranch/longshot/internal/services/league/storage"
)

// append builds and persists one governance event.
func (k *Kernel) append(ctx context.Context, seasonID string, round int, eventType event.Type, aggType event.AggregateType, aggID, governorID, teamID string, payload any) error {
	data, err := event.EncodePayload(payload)
	if err != nil {
		return err
	}
	_, err = k.store.AppendEvent(ctx, event.Event{
		ID:            k.newID(),
		SeasonID:      seasonID,
		Round:         round,
		Type:          eventType,
		AggregateType: aggType,
		AggregateID:   aggID,
		GovernorID:    governorID,
		TeamID:        teamID,
		Timestamp:     k.now(),
		PayloadJSON:   data,
	})
	if err != nil {
		return fmt.Errorf("append %s: %w", eventType, err)
	}
	return nil
}

// rejectAudit records a refused governance command. Every constraint
// rejection lands on the log so the refusal is auditable.
func (k *Kernel) rejectAudit(ctx context.Context, seasonID string, round int, rejectType event.Type, proposalID, governorID, teamID, reason string) error {
	return k.append(ctx, seasonID, round, rejectType, event.AggregateProposal, proposalID, governorID, teamID,
		event.ProposalRejectedPayload{ProposalID: proposalID, GovernorID: governorID, Reason: reason})
}

func (k *Kernel) appendSubmitted(ctx context.Context, seasonID string, round int, proposalID, governorID, teamID, rawText, sanitized string, tier int, interp *proposal.Interpretation, status proposal.Status) error {
	payload := event.ProposalSubmittedPayload{
		ProposalID:    proposalID,
		AuthorID:      governorID,
		TeamID:        teamID,
		RawText:       rawText,
		SanitizedText: sanitized,
		Tier:          tier,
		TokenCost:     ProposeCost,
		Status:        string(status),
	}
	if interp != nil {
		encoded, err := json.Marshal(interp)
		if err != nil {
			return fmt.Errorf("encode interpretation: %w", err)
		}
		payload.Interpretation = encoded
	}
	return k.append(ctx, seasonID, round, event.TypeProposalSubmitted, event.AggregateProposal, proposalID, governorID, teamID, payload)
}

func (k *Kernel) spendToken(ctx context.Context, seasonID string, round int, governorID, teamID string, tokenType token.Type, amount int, reason string) error {
	return k.append(ctx, seasonID, round, event.TypeTokenSpent, event.AggregateToken, governorID, governorID, teamID,
		event.TokenPayload{GovernorID: governorID, TokenType: string(tokenType), Amount: amount, Reason: reason})
}

// refundToken credits tokens back. Regenerations and refunds share the
// token.regenerated event type; the reason distinguishes them.
func (k *Kernel) refundToken(ctx context.Context, seasonID string, round int, governorID, teamID string, tokenType token.Type, amount int, reason string) error {
	return k.append(ctx, seasonID, round, event.TypeTokenRegenerated, event.AggregateToken, governorID, governorID, teamID,
		event.TokenPayload{GovernorID: governorID, TokenType: string(tokenType), Amount: amount, Reason: reason})
}

// ledger replays the full season log into token balances.
func (k *Kernel) ledger(ctx context.Context, seasonID string) (*token.Ledger, error) {
	events, err := k.store.ListEvents(ctx, seasonID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	ledger := token.NewLedger()
	if err := ledger.Replay(events); err != nil {
		return nil, err
	}
	return ledger, nil
}

// loadProposal replays one proposal aggregate from its event stream.
func (k *Kernel) loadProposal(ctx context.Context, seasonID, proposalID string) (*proposal.Proposal, error) {
	events, err := k.store.ListEventsByAggregate(ctx, seasonID, proposalID)
	if err != nil {
		return nil, fmt.Errorf("list proposal events: %w", err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("proposal %s: %w", proposalID, storage.ErrNotFound)
	}
	return proposal.Replay(events)
}

// loadOpenProposals replays every submitted proposal and keeps the open ones.
func (k *Kernel) loadOpenProposals(ctx context.Context, seasonID string) ([]*proposal.Proposal, error) {
	return k.loadProposalsWhere(ctx, seasonID, func(p *proposal.Proposal) bool { return p.Open() })
}

func (k *Kernel) loadProposalsByStatus(ctx context.Context, seasonID string, status proposal.Status) ([]*proposal.Proposal, error) {
	return k.loadProposalsWhere(ctx, seasonID, func(p *proposal.Proposal) bool { return p.Status == status })
}

func (k *Kernel) loadProposalsWhere(ctx context.Context, seasonID string, keep func(*proposal.Proposal) bool) ([]*proposal.Proposal, error) {
	submitted, err := k.store.ListEventsByType(ctx, seasonID, event.TypeProposalSubmitted)
	if err != nil {
		return nil, fmt.Errorf("list submitted proposals: %w", err)
	}
	var proposals []*proposal.Proposal
	for _, e := range submitted {
		p, err := k.loadProposal(ctx, seasonID, e.AggregateID)
		if err != nil {
			return nil, err
		}
		if keep(p) {
			proposals = append(proposals, p)
		}
	}
	return proposals, nil
}

// voteWeight resolves the governor's team and their fractional vote weight:
// one team, one vote, split evenly among its active governors.
func (k *Kernel) voteWeight(ctx context.Context, seasonID, governorID string) (string, float64, error) {
	enrollments, err := k.store.ListEnrollments(ctx, seasonID)
	if err != nil {
		return "", 0, fmt.Errorf("list enrollments: %w", err)
	}
	var teamID string
	for _, e := range enrollments {
		if e.GovernorID == governorID && e.Active {
			teamID = e.TeamID
			break
		}
	}
	if teamID == "" {
		return "", 0, fmt.Errorf("governor %s has no active enrollment in season %s", governorID, seasonID)
	}
	teammates := 0
	for _, e := range enrollments {
		if e.TeamID == teamID && e.Active {
			teammates++
		}
	}
	return teamID, 1.0 / float64(teammates), nil
}

// governorTeam is the best-effort team lookup for operations where the
// governor may no longer be enrolled.
func (k *Kernel) governorTeam(ctx context.Context, seasonID, governorID string) string {
	enrollments, err := k.store.ListEnrollments(ctx, seasonID)
	if err != nil {
		return ""
	}
	for _, e := range enrollments {
		if e.GovernorID == governorID {
			return e.TeamID
		}
	}
	return ""
}

// interpret runs the AI interpreter and validates its structured output.
func (k *Kernel) interpret(ctx context.Context, sanitized string) (proposal.Interpretation, error) {
	resp, err := k.gateway.Generate(ctx, ai.Request{
		Purpose: ai.PurposeInterpreter,
		Prompt:  sanitized,
	})
	if err != nil {
		return proposal.Interpretation{}, fmt.Errorf("interpret: %w", err)
	}
	var interp proposal.Interpretation
	if err := json.Unmarshal([]byte(resp.Text), &interp); err != nil {
		return proposal.Interpretation{}, fmt.Errorf("interpret: malformed output: %w", err)
	}
	for _, spec := range interp.Effects {
		if err := spec.Validate(); err != nil {
			return proposal.Interpretation{}, fmt.Errorf("interpret: %w", err)
		}
	}
	return interp, nil
}

// classify screens for prompt injection. Classification failures resolve to
// not-injected so an outage cannot block governance; the interpreter's own
// flag still applies.
func (k *Kernel) classify(ctx context.Context, sanitized string) bool {
	resp, err := k.gateway.GenerateOrMock(ctx, ai.Request{
		Purpose: ai.PurposeClassifier,
		Prompt:  sanitized,
	})
	if err != nil {
		log.Printf("classifier unavailable, passing proposal through: %v", err)
		return false
	}
	var verdict struct {
		Injection bool `json:"injection"`
	}
	if err := json.Unmarshal([]byte(resp.Text), &verdict); err != nil {
		log.Printf("classifier output malformed, passing proposal through: %v", err)
		return false
	}
	return verdict.Injection
}

func flagReasons(interp proposal.Interpretation, tier int) []string {
	var reasons []string
	if interp.InjectionFlagged {
		reasons = append(reasons, "possible prompt injection")
	}
	if interp.Confidence < proposal.MinimumConfidence {
		reasons = append(reasons, fmt.Sprintf("low interpreter confidence %.2f", interp.Confidence))
	}
	if tier >= 5 {
		reasons = append(reasons, fmt.Sprintf("high impact tier %d", tier))
	}
	for _, spec := range interp.Effects {
		if spec.Kind == effect.KindCustomMechanic {
			reasons = append(reasons, "custom mechanic requires review")
			break
		}
	}
	return reasons
}

// expirationRound derives when a registered effect lapses. Zero means never,
// left to repeal or season end.
func expirationRound(d effect.Duration, activation int) int {
	switch d.Kind {
	case effect.DurationOneGame:
		return activation + 1
	case effect.DurationNRounds:
		return activation + d.Rounds
	}
	return 0
}
