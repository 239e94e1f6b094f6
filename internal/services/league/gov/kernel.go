// Package gov is the governance kernel: proposal lifecycle, voting,
// amendments, admin review, tallying, and the token economy. Every state
// change is an appended event; the kernel never mutates rows directly and all
// reads replay the log.
package gov

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/louisbranch/longshot/internal/services/league/ai"
	"github.com/louisbranch/longshot/internal/services/league/domain/effect"
	"github.com/louisbranch/longshot/internal/services/league/domain/event"
	"github.com/louisbranch/longshot/internal/services/league/domain/proposal"
	"github.com/louisbranch/longshot/internal/services/league/domain/ruleset"
	"github.com/louisbranch/longshot/internal/services/league/domain/token"
	"github.com/louisbranch/longshot/internal/services/league/storage"
)

// MaxInterpretationRetries bounds background interpretation attempts before a
// proposal expires with refund.
const MaxInterpretationRetries = 3

// Token costs per operation.
const (
	ProposeCost = 1
	AmendCost   = 1
	BoostCost   = 1
)

// Store is the slice of persistence the kernel needs.
type Store interface {
	storage.EventStore
	ListEnrollments(ctx context.Context, seasonID string) ([]storage.EnrollmentRecord, error)
}

// Kernel drives governance for one league. Safe for sequential use by the
// orchestrator; it holds no cross-call state.
type Kernel struct {
	store   Store
	gateway *ai.Gateway
	newID   func() string
	now     func() time.Time
}

// New builds a kernel over the given store and AI gateway.
func New(store Store, gateway *ai.Gateway) *Kernel {
	return &Kernel{
		store:   store,
		gateway: gateway,
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// Outcome reports how a governance operation resolved.
type Outcome struct {
	Status     string // ok, rejected, deferred
	ProposalID string
	Reason     string
}

// Submit runs the full proposal intake: sanitize, classify, charge the
// PROPOSE token, interpret, and record. Interpretation failure defers the
// proposal to background retry with the token already charged.
func (k *Kernel) Submit(ctx context.Context, seasonID string, round int, governorID, teamID, rawText string) (Outcome, error) {
	sanitized := proposal.Sanitize(rawText)
	if sanitized == "" {
		return Outcome{Status: "rejected", Reason: "empty proposal text"}, nil
	}

	proposalID := k.newID()

	ledger, err := k.ledger(ctx, seasonID)
	if err != nil {
		return Outcome{}, err
	}
	if err := ledger.CanSpend(governorID, token.TypePropose, ProposeCost); err != nil {
		if auditErr := k.rejectAudit(ctx, seasonID, round, event.TypeProposalRejectedInsufficientTokens, proposalID, governorID, teamID, err.Error()); auditErr != nil {
			return Outcome{}, auditErr
		}
		return Outcome{Status: "rejected", Reason: err.Error()}, nil
	}

	injection := k.classify(ctx, sanitized)

	// Charge before interpretation so a crash mid-interpretation cannot
	// double-spend. Expiry refunds.
	if err := k.spendToken(ctx, seasonID, round, governorID, teamID, token.TypePropose, ProposeCost, "proposal:"+proposalID); err != nil {
		return Outcome{}, err
	}

	interp, interpErr := k.interpret(ctx, sanitized)
	if interpErr != nil {
		if err := k.appendSubmitted(ctx, seasonID, round, proposalID, governorID, teamID, rawText, sanitized, 0, nil, proposal.StatusPendingInterpretation); err != nil {
			return Outcome{}, err
		}
		if err := k.append(ctx, seasonID, round, event.TypeProposalPendingInterpretation, event.AggregateProposal, proposalID, governorID, teamID,
			event.PendingInterpretationPayload{ProposalID: proposalID}); err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: "deferred", ProposalID: proposalID, Reason: interpErr.Error()}, nil
	}

	interp.InjectionFlagged = interp.InjectionFlagged || injection
	tier := proposal.Tier(interp)
	status := proposal.StatusConfirmed
	if proposal.NeedsAdminReview(interp, tier) {
		status = proposal.StatusFlaggedForReview
	}

	if err := k.appendSubmitted(ctx, seasonID, round, proposalID, governorID, teamID, rawText, sanitized, tier, &interp, status); err != nil {
		return Outcome{}, err
	}
	if status == proposal.StatusFlaggedForReview {
		if err := k.append(ctx, seasonID, round, event.TypeProposalFlaggedForReview, event.AggregateProposal, proposalID, governorID, teamID,
			event.ProposalFlaggedPayload{ProposalID: proposalID, Reasons: flagReasons(interp, tier)}); err != nil {
			return Outcome{}, err
		}
	}
	return Outcome{Status: "ok", ProposalID: proposalID}, nil
}

// Vote records a weighted ballot. Weight is 1/N active governors on the
// voter's team; a BOOST spend doubles it for this ballot only.
func (k *Kernel) Vote(ctx context.Context, seasonID string, round int, proposalID, governorID, direction string, boost bool) error {
	if direction != "yes" && direction != "no" {
		return fmt.Errorf("vote direction must be yes or no, got %q", direction)
	}

	p, err := k.loadProposal(ctx, seasonID, proposalID)
	if err != nil {
		return err
	}
	if !p.Open() {
		return proposal.ErrNotOpen
	}
	if p.HasVoted(governorID) {
		if auditErr := k.rejectAudit(ctx, seasonID, round, event.TypeProposalRejectedDuplicateVote, proposalID, governorID, k.governorTeam(ctx, seasonID, governorID), "governor already voted"); auditErr != nil {
			return auditErr
		}
		return proposal.ErrDuplicateVote
	}

	teamID, weight, err := k.voteWeight(ctx, seasonID, governorID)
	if err != nil {
		return err
	}

	if boost {
		ledger, err := k.ledger(ctx, seasonID)
		if err != nil {
			return err
		}
		if err := ledger.CanSpend(governorID, token.TypeBoost, BoostCost); err != nil {
			if auditErr := k.rejectAudit(ctx, seasonID, round, event.TypeProposalRejectedInsufficientTokens, proposalID, governorID, teamID, err.Error()); auditErr != nil {
				return auditErr
			}
			return err
		}
		if err := k.spendToken(ctx, seasonID, round, governorID, teamID, token.TypeBoost, BoostCost, "boost:"+proposalID); err != nil {
			return err
		}
		weight *= 2
	}

	return k.append(ctx, seasonID, round, event.TypeVoteCast, event.AggregateProposal, proposalID, governorID, teamID,
		event.VoteCastPayload{
			ProposalID: proposalID,
			GovernorID: governorID,
			TeamID:     teamID,
			Direction:  direction,
			Weight:     weight,
			Boosted:    boost,
		})
}

// Amend replaces a proposal's interpretation. The author may not amend their
// own proposal, the rule set's amendment cap is enforced, and prior votes
// stop counting.
func (k *Kernel) Amend(ctx context.Context, seasonID string, round int, proposalID, amenderID, rawText string, rules ruleset.RuleSet) (Outcome, error) {
	p, err := k.loadProposal(ctx, seasonID, proposalID)
	if err != nil {
		return Outcome{}, err
	}
	teamID := k.governorTeam(ctx, seasonID, amenderID)
	if amenderID == p.AuthorID {
		if auditErr := k.rejectAudit(ctx, seasonID, round, event.TypeProposalRejectedSelfAmendment, proposalID, amenderID, teamID, "author may not amend their own proposal"); auditErr != nil {
			return Outcome{}, auditErr
		}
		return Outcome{}, proposal.ErrSelfAmendment
	}
	if !p.Open() {
		return Outcome{}, proposal.ErrNotOpen
	}
	if p.AmendmentCount >= rules.AmendmentCap {
		if auditErr := k.rejectAudit(ctx, seasonID, round, event.TypeProposalRejectedAmendmentCap, proposalID, amenderID, teamID, fmt.Sprintf("amendment cap %d reached", rules.AmendmentCap)); auditErr != nil {
			return Outcome{}, auditErr
		}
		return Outcome{}, proposal.ErrAmendmentCap
	}
	sanitized := proposal.Sanitize(rawText)
	if sanitized == "" {
		return Outcome{Status: "rejected", Reason: "empty amendment text"}, nil
	}

	ledger, err := k.ledger(ctx, seasonID)
	if err != nil {
		return Outcome{}, err
	}
	if err := ledger.CanSpend(amenderID, token.TypeAmend, AmendCost); err != nil {
		if auditErr := k.rejectAudit(ctx, seasonID, round, event.TypeProposalRejectedInsufficientTokens, proposalID, amenderID, teamID, err.Error()); auditErr != nil {
			return Outcome{}, auditErr
		}
		return Outcome{Status: "rejected", Reason: err.Error()}, nil
	}

	if err := k.spendToken(ctx, seasonID, round, amenderID, teamID, token.TypeAmend, AmendCost, "amend:"+proposalID); err != nil {
		return Outcome{}, err
	}

	interp, interpErr := k.interpret(ctx, sanitized)
	if interpErr != nil {
		// Amendments have no async retry path; refund and report.
		if err := k.refundToken(ctx, seasonID, round, amenderID, teamID, token.TypeAmend, AmendCost, "amend_failed:"+proposalID); err != nil {
			return Outcome{}, err
		}
		return Outcome{Status: "rejected", ProposalID: proposalID, Reason: interpErr.Error()}, nil
	}
	interp.InjectionFlagged = interp.InjectionFlagged || k.classify(ctx, sanitized)

	encoded, err := json.Marshal(interp)
	if err != nil {
		return Outcome{}, fmt.Errorf("encode interpretation: %w", err)
	}
	if err := k.append(ctx, seasonID, round, event.TypeProposalAmended, event.AggregateProposal, proposalID, amenderID, teamID,
		event.ProposalAmendedPayload{
			ProposalID:     proposalID,
			AmenderID:      amenderID,
			AmendmentIndex: p.AmendmentCount + 1,
			RawText:        rawText,
			Interpretation: encoded,
		}); err != nil {
		return Outcome{}, err
	}
	return Outcome{Status: "ok", ProposalID: proposalID}, nil
}

// Cancel withdraws a proposal. Author only, no refund.
func (k *Kernel) Cancel(ctx context.Context, seasonID string, round int, proposalID, governorID string) error {
	p, err := k.loadProposal(ctx, seasonID, proposalID)
	if err != nil {
		return err
	}
	if governorID != p.AuthorID {
		return fmt.Errorf("only the author may cancel proposal %s", proposalID)
	}
	if !p.Open() && p.Status != proposal.StatusPendingInterpretation {
		return proposal.ErrNotOpen
	}
	return k.append(ctx, seasonID, round, event.TypeProposalCancelled, event.AggregateProposal, proposalID, governorID, p.TeamID,
		event.ProposalCancelledPayload{ProposalID: proposalID})
}

// Veto kills a proposal before tally and refunds the author's PROPOSE token.
func (k *Kernel) Veto(ctx context.Context, seasonID string, round int, proposalID, adminID, reason string) error {
	p, err := k.loadProposal(ctx, seasonID, proposalID)
	if err != nil {
		return err
	}
	if p.Terminal() {
		return proposal.ErrNotOpen
	}
	if err := k.append(ctx, seasonID, round, event.TypeProposalVetoed, event.AggregateProposal, proposalID, adminID, p.TeamID,
		event.ProposalVetoedPayload{ProposalID: proposalID, AdminID: adminID, Reason: reason}); err != nil {
		return err
	}
	return k.refundToken(ctx, seasonID, round, p.AuthorID, p.TeamID, token.TypePropose, p.TokenCost, "veto:"+proposalID)
}

// ClearReview removes the admin flag, returning the proposal to confirmed.
func (k *Kernel) ClearReview(ctx context.Context, seasonID string, round int, proposalID, adminID string) error {
	p, err := k.loadProposal(ctx, seasonID, proposalID)
	if err != nil {
		return err
	}
	if p.Status != proposal.StatusFlaggedForReview {
		return fmt.Errorf("proposal %s is not flagged for review", proposalID)
	}
	return k.append(ctx, seasonID, round, event.TypeProposalReviewCleared, event.AggregateProposal, proposalID, adminID, p.TeamID,
		event.ProposalReviewClearedPayload{ProposalID: proposalID, AdminID: adminID})
}

// TallyOutcome reports one proposal's tally.
type TallyOutcome struct {
	ProposalID string
	Deferred   bool
	Result     proposal.TallyResult
}

// TallyPending walks every open proposal. First-time proposals get a
// first_tally_seen marker and defer one window; the rest tally against their
// tier threshold. Passed parameter changes apply to the rule set atomically,
// rolling back with refund on validation failure; other effect kinds register
// runtime effects activating next round.
func (k *Kernel) TallyPending(ctx context.Context, seasonID string, round int, rules ruleset.RuleSet) (ruleset.RuleSet, []TallyOutcome, error) {
	proposals, err := k.loadOpenProposals(ctx, seasonID)
	if err != nil {
		return rules, nil, err
	}

	var outcomes []TallyOutcome
	for _, p := range proposals {
		if p.FirstTallyRound == 0 {
			if err := k.append(ctx, seasonID, round, event.TypeProposalFirstTallySeen, event.AggregateProposal, p.ID, "", p.TeamID,
				event.FirstTallySeenPayload{ProposalID: p.ID, Round: round}); err != nil {
				return rules, outcomes, err
			}
			outcomes = append(outcomes, TallyOutcome{ProposalID: p.ID, Deferred: true})
			continue
		}
		if p.FirstTallyRound >= round {
			outcomes = append(outcomes, TallyOutcome{ProposalID: p.ID, Deferred: true})
			continue
		}

		result := p.Tally()
		tallyType := event.TypeProposalFailed
		if result.Passed {
			tallyType = event.TypeProposalPassed
		}
		if err := k.append(ctx, seasonID, round, tallyType, event.AggregateProposal, p.ID, "", p.TeamID,
			event.TallyPayload{
				ProposalID:  p.ID,
				Round:       round,
				Tier:        p.Tier,
				YesWeight:   result.YesWeight,
				NoWeight:    result.NoWeight,
				TotalWeight: result.TotalWeight,
				Threshold:   result.Threshold,
				Passed:      result.Passed,
			}); err != nil {
			return rules, outcomes, err
		}
		outcomes = append(outcomes, TallyOutcome{ProposalID: p.ID, Result: result})

		if result.Passed {
			rules, err = k.enact(ctx, seasonID, round, p, rules)
			if err != nil {
				return rules, outcomes, err
			}
		}
	}
	return rules, outcomes, nil
}

// enact applies a passed proposal's effects: parameter changes mutate the
// rule set, everything else registers a runtime effect.
func (k *Kernel) enact(ctx context.Context, seasonID string, round int, p *proposal.Proposal, rules ruleset.RuleSet) (ruleset.RuleSet, error) {
	for _, spec := range p.Interpretation.Effects {
		if spec.Kind == effect.KindParameterChange {
			oldValue, _ := rules.Get(spec.Parameter)
			updated, err := rules.Apply(map[string]any{spec.Parameter: spec.Value})
			if err != nil {
				if appendErr := k.append(ctx, seasonID, round, event.TypeRuleRolledBack, event.AggregateRuleChange, p.ID, "", p.TeamID,
					event.RuleRolledBackPayload{ProposalID: p.ID, Reason: err.Error()}); appendErr != nil {
					return rules, appendErr
				}
				if refundErr := k.refundToken(ctx, seasonID, round, p.AuthorID, p.TeamID, token.TypePropose, p.TokenCost, "rollback:"+p.ID); refundErr != nil {
					return rules, refundErr
				}
				continue
			}
			rules = updated
			if err := k.append(ctx, seasonID, round, event.TypeRuleEnacted, event.AggregateRuleChange, p.ID, "", p.TeamID,
				event.RuleEnactedPayload{
					Parameter:  spec.Parameter,
					OldValue:   oldValue,
					NewValue:   spec.Value,
					ProposalID: p.ID,
					Round:      round,
				}); err != nil {
				return rules, err
			}
			continue
		}

		encoded, err := json.Marshal(spec)
		if err != nil {
			return rules, fmt.Errorf("encode effect spec: %w", err)
		}
		activation := round + 1
		if err := k.append(ctx, seasonID, round, event.TypeEffectRegistered, event.AggregateEffect, p.ID, "", p.TeamID,
			event.EffectRegisteredPayload{
				EffectID:        k.newID(),
				ProposalID:      p.ID,
				ActivationRound: activation,
				ExpirationRound: expirationRound(spec.Duration, activation),
				Effect:          encoded,
			}); err != nil {
			return rules, err
		}
	}
	return rules, nil
}

// RegenerateTokens credits every active governor with the per-window
// allowances from the rule set.
func (k *Kernel) RegenerateTokens(ctx context.Context, seasonID string, round int, rules ruleset.RuleSet) error {
	enrollments, err := k.store.ListEnrollments(ctx, seasonID)
	if err != nil {
		return fmt.Errorf("list enrollments: %w", err)
	}
	grants := []struct {
		tokenType token.Type
		amount    int
	}{
		{token.TypePropose, rules.TokensProposePerWindow},
		{token.TypeAmend, rules.TokensAmendPerWindow},
		{token.TypeBoost, rules.TokensBoostPerWindow},
	}
	for _, e := range enrollments {
		if !e.Active {
			continue
		}
		for _, grant := range grants {
			if grant.amount <= 0 {
				continue
			}
			if err := k.refundToken(ctx, seasonID, round, e.GovernorID, e.TeamID, grant.tokenType, grant.amount, "window"); err != nil {
				return err
			}
		}
	}
	return nil
}

// GrantEnrollmentTokens credits one governor with a starting window so they
// can participate before the first regeneration boundary.
func (k *Kernel) GrantEnrollmentTokens(ctx context.Context, seasonID string, round int, governorID, teamID string, rules ruleset.RuleSet) error {
	grants := []struct {
		tokenType token.Type
		amount    int
	}{
		{token.TypePropose, rules.TokensProposePerWindow},
		{token.TypeAmend, rules.TokensAmendPerWindow},
		{token.TypeBoost, rules.TokensBoostPerWindow},
	}
	for _, grant := range grants {
		if grant.amount <= 0 {
			continue
		}
		if err := k.refundToken(ctx, seasonID, round, governorID, teamID, grant.tokenType, grant.amount, "enrollment"); err != nil {
			return err
		}
	}
	return nil
}

// RetryInterpretations re-attempts deferred proposals. Success confirms (or
// flags); exhaustion expires with refund.
func (k *Kernel) RetryInterpretations(ctx context.Context, seasonID string, round int) error {
	proposals, err := k.loadProposalsByStatus(ctx, seasonID, proposal.StatusPendingInterpretation)
	if err != nil {
		return err
	}
	for _, p := range proposals {
		interp, interpErr := k.interpret(ctx, p.SanitizedText)
		if interpErr == nil {
			tier := proposal.Tier(interp)
			encoded, err := json.Marshal(interp)
			if err != nil {
				return fmt.Errorf("encode interpretation: %w", err)
			}
			if err := k.append(ctx, seasonID, round, event.TypeProposalConfirmed, event.AggregateProposal, p.ID, "", p.TeamID,
				event.ProposalConfirmedPayload{ProposalID: p.ID, Tier: tier, Interpretation: encoded}); err != nil {
				return err
			}
			if proposal.NeedsAdminReview(interp, tier) {
				if err := k.append(ctx, seasonID, round, event.TypeProposalFlaggedForReview, event.AggregateProposal, p.ID, "", p.TeamID,
					event.ProposalFlaggedPayload{ProposalID: p.ID, Reasons: flagReasons(interp, tier)}); err != nil {
					return err
				}
			}
			continue
		}

		if p.Retries+1 >= MaxInterpretationRetries {
			if err := k.append(ctx, seasonID, round, event.TypeProposalInterpretationExpired, event.AggregateProposal, p.ID, "", p.TeamID,
				event.InterpretationExpiredPayload{ProposalID: p.ID, RefundAmount: p.TokenCost}); err != nil {
				return err
			}
			if err := k.refundToken(ctx, seasonID, round, p.AuthorID, p.TeamID, token.TypePropose, p.TokenCost, "expired:"+p.ID); err != nil {
				return err
			}
			continue
		}
		if err := k.append(ctx, seasonID, round, event.TypeProposalInterpretationRetryFailed, event.AggregateProposal, p.ID, "", p.TeamID,
			event.InterpretationRetryFailedPayload{ProposalID: p.ID, Reason: interpErr.Error()}); err != nil {
			return err
		}
	}
	return nil
}

// Balances derives the current token balances from the log.
func (k *Kernel) Balances(ctx context.Context, seasonID string) (*token.Ledger, error) {
	return k.ledger(ctx, seasonID)
}
