// Package event defines the governance event log: an append-only, per-season
// ordered record that is the source of truth for proposals, votes, token
// balances, rule changes, and registered effects.
package event

import (
	"strings"
	"time"
)

// Type identifies the type of a governance event.
type Type string

// Proposal lifecycle events.
const (
	// TypeProposalSubmitted records a submitted proposal with its interpretation.
	TypeProposalSubmitted Type = "proposal.submitted"
	// TypeProposalPendingInterpretation queues a proposal for interpretation retry.
	TypeProposalPendingInterpretation Type = "proposal.pending_interpretation"
	// TypeProposalInterpretationRetryFailed records one failed retry.
	TypeProposalInterpretationRetryFailed Type = "proposal.interpretation_retry_failed"
	// TypeProposalInterpretationExpired records retry exhaustion with refund.
	TypeProposalInterpretationExpired Type = "proposal.interpretation_expired"
	// TypeProposalConfirmed records a proposal entering the voting window.
	TypeProposalConfirmed Type = "proposal.confirmed"
	// TypeProposalFlaggedForReview marks a proposal for admin review.
	TypeProposalFlaggedForReview Type = "proposal.flagged_for_review"
	// TypeProposalReviewCleared records an admin clearing a flag.
	TypeProposalReviewCleared Type = "proposal.review_cleared"
	// TypeProposalVetoed records an admin veto.
	TypeProposalVetoed Type = "proposal.vetoed"
	// TypeProposalCancelled records an author cancellation.
	TypeProposalCancelled Type = "proposal.cancelled"
	// TypeProposalAmended records a replacement interpretation.
	TypeProposalAmended Type = "proposal.amended"
	// TypeProposalFirstTallySeen defers the first tally attempt by one window.
	TypeProposalFirstTallySeen Type = "proposal.first_tally_seen"
	// TypeProposalPassed records a successful tally.
	TypeProposalPassed Type = "proposal.passed"
	// TypeProposalFailed records a failed tally.
	TypeProposalFailed Type = "proposal.failed"
)

// Constraint rejection audit events. A refused governance command still
// appends to the log; rejections are never silent.
const (
	// TypeProposalRejectedInsufficientTokens records a spend refused by the ledger.
	TypeProposalRejectedInsufficientTokens Type = "proposal.rejected_insufficient_tokens"
	// TypeProposalRejectedDuplicateVote records a second ballot on the same proposal.
	TypeProposalRejectedDuplicateVote Type = "proposal.rejected_duplicate_vote"
	// TypeProposalRejectedAmendmentCap records an amendment past the cap.
	TypeProposalRejectedAmendmentCap Type = "proposal.rejected_amendment_cap"
	// TypeProposalRejectedSelfAmendment records an author amending their own proposal.
	TypeProposalRejectedSelfAmendment Type = "proposal.rejected_self_amendment"
)

// Voting events.
const (
	// TypeVoteCast records a weighted vote on a proposal.
	TypeVoteCast Type = "vote.cast"
)

// Rule change events.
const (
	// TypeRuleEnacted records a parameter change applied to the rule set.
	TypeRuleEnacted Type = "rule.enacted"
	// TypeRuleRolledBack records a parameter change that failed validation.
	TypeRuleRolledBack Type = "rule.rolled_back"
)

// Token economy events.
const (
	// TypeTokenSpent records a token spend.
	TypeTokenSpent Type = "token.spent"
	// TypeTokenRegenerated records a per-window token regeneration.
	TypeTokenRegenerated Type = "token.regenerated"
)

// Trade events.
const (
	// TypeTradeOffered records a trade offer between governors.
	TypeTradeOffered Type = "trade.offered"
	// TypeTradeAccepted records trade acceptance.
	TypeTradeAccepted Type = "trade.accepted"
	// TypeTradeRejected records trade rejection.
	TypeTradeRejected Type = "trade.rejected"
)

// Strategy events.
const (
	// TypeStrategySet records a raw team strategy directive.
	TypeStrategySet Type = "strategy.set"
	// TypeStrategyInterpreted records a structured strategy interpretation.
	TypeStrategyInterpreted Type = "strategy.interpreted"
)

// Effect registry events.
const (
	// TypeEffectRegistered records a runtime effect installed by a passed proposal.
	TypeEffectRegistered Type = "effect.registered"
	// TypeEffectExpired records an effect reaching its expiration round.
	TypeEffectExpired Type = "effect.expired"
)

// AggregateType identifies the aggregate an event belongs to.
type AggregateType string

const (
	// AggregateProposal groups proposal lifecycle and vote events.
	AggregateProposal AggregateType = "proposal"
	// AggregateToken groups token economy events.
	AggregateToken AggregateType = "token"
	// AggregateRuleChange groups rule enactment events.
	AggregateRuleChange AggregateType = "rule_change"
	// AggregateTrade groups trade events.
	AggregateTrade AggregateType = "trade"
	// AggregateStrategy groups strategy events.
	AggregateStrategy AggregateType = "strategy"
	// AggregateEffect groups effect registry events.
	AggregateEffect AggregateType = "effect"
	// AggregateVote groups standalone vote events.
	AggregateVote AggregateType = "vote"
)

// Event is an immutable entry in the per-season governance log.
//
// Seq is assigned by storage on append and strictly increases within a
// season. No update or delete operation exists for the log.
type Event struct {
	// ID is the opaque event identifier.
	ID string
	// Seq is the event sequence number within the season (starts at 1).
	Seq uint64
	// SeasonID is the season this event belongs to.
	SeasonID string
	// Round is the league round the event was recorded in.
	Round int
	// Type identifies the kind of event.
	Type Type
	// AggregateType is the aggregate family the event belongs to.
	AggregateType AggregateType
	// AggregateID is the aggregate the event applies to.
	AggregateID string
	// GovernorID is the acting governor, empty for system events.
	GovernorID string
	// TeamID is the acting governor's team, when relevant.
	TeamID string
	// Timestamp is when the event occurred (UTC).
	Timestamp time.Time
	// PayloadJSON holds event-specific data as JSON.
	PayloadJSON []byte
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Domain returns the namespace prefix of the event type (e.g. "proposal").
func (t Type) Domain() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}

// Aggregate returns the aggregate family a known event type belongs to.
// Unknown types map to the empty aggregate.
func (t Type) Aggregate() AggregateType {
	switch t.Domain() {
	case "proposal":
		return AggregateProposal
	case "vote":
		return AggregateProposal
	case "rule":
		return AggregateRuleChange
	case "token":
		return AggregateToken
	case "trade":
		return AggregateTrade
	case "strategy":
		return AggregateStrategy
	case "effect":
		return AggregateEffect
	}
	return ""
}
