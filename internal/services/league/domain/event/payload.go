package event

import (
	"encoding/json"
	"fmt"
)

// Payload shapes for the governance event taxonomy. Aggregate dumps
// (proposals, amendments, effects) embed their owning package's JSON encoding
// as a raw message so the log stays forward compatible: unknown fields and
// unknown event types round-trip untouched.

// ProposalSubmittedPayload captures the payload for proposal.submitted events.
type ProposalSubmittedPayload struct {
	ProposalID     string          `json:"proposal_id"`
	AuthorID       string          `json:"author_id"`
	TeamID         string          `json:"team_id"`
	RawText        string          `json:"raw_text"`
	SanitizedText  string          `json:"sanitized_text"`
	Tier           int             `json:"tier"`
	TokenCost      int             `json:"token_cost"`
	Status         string          `json:"status"`
	Interpretation json.RawMessage `json:"interpretation,omitempty"`
}

// PendingInterpretationPayload captures proposal.pending_interpretation events.
type PendingInterpretationPayload struct {
	ProposalID string `json:"proposal_id"`
	Retries    int    `json:"retries"`
}

// InterpretationRetryFailedPayload captures proposal.interpretation_retry_failed events.
type InterpretationRetryFailedPayload struct {
	ProposalID string `json:"proposal_id"`
	Reason     string `json:"reason"`
}

// InterpretationExpiredPayload captures proposal.interpretation_expired events.
type InterpretationExpiredPayload struct {
	ProposalID   string `json:"proposal_id"`
	RefundAmount int    `json:"refund_amount"`
}

// ProposalConfirmedPayload captures proposal.confirmed events. Tier and
// Interpretation are set when confirmation follows a deferred interpretation.
type ProposalConfirmedPayload struct {
	ProposalID     string          `json:"proposal_id"`
	Tier           int             `json:"tier,omitempty"`
	Interpretation json.RawMessage `json:"interpretation,omitempty"`
}

// ProposalFlaggedPayload captures proposal.flagged_for_review events.
type ProposalFlaggedPayload struct {
	ProposalID string          `json:"proposal_id"`
	Reasons    []string        `json:"reasons"`
	Proposal   json.RawMessage `json:"proposal,omitempty"`
}

// ProposalReviewClearedPayload captures proposal.review_cleared events.
type ProposalReviewClearedPayload struct {
	ProposalID string `json:"proposal_id"`
	AdminID    string `json:"admin_id"`
}

// ProposalVetoedPayload captures proposal.vetoed events.
type ProposalVetoedPayload struct {
	ProposalID string          `json:"proposal_id"`
	AdminID    string          `json:"admin_id"`
	Reason     string          `json:"reason"`
	Proposal   json.RawMessage `json:"proposal,omitempty"`
}

// ProposalCancelledPayload captures proposal.cancelled events.
type ProposalCancelledPayload struct {
	ProposalID string `json:"proposal_id"`
}

// ProposalAmendedPayload captures proposal.amended events.
type ProposalAmendedPayload struct {
	ProposalID     string          `json:"proposal_id"`
	AmenderID      string          `json:"amender_id"`
	AmendmentIndex int             `json:"amendment_index"`
	RawText        string          `json:"raw_text"`
	Interpretation json.RawMessage `json:"interpretation,omitempty"`
}

// ProposalRejectedPayload captures the proposal.rejected_* audit events.
type ProposalRejectedPayload struct {
	ProposalID string `json:"proposal_id"`
	GovernorID string `json:"governor_id"`
	Reason     string `json:"reason"`
}

// FirstTallySeenPayload captures proposal.first_tally_seen events.
type FirstTallySeenPayload struct {
	ProposalID string `json:"proposal_id"`
	Round      int    `json:"round"`
}

// TallyPayload captures proposal.passed and proposal.failed events.
type TallyPayload struct {
	ProposalID  string  `json:"proposal_id"`
	Round       int     `json:"round"`
	Tier        int     `json:"tier"`
	YesWeight   float64 `json:"yes_weight"`
	NoWeight    float64 `json:"no_weight"`
	TotalWeight float64 `json:"total_weight"`
	Threshold   float64 `json:"threshold"`
	Passed      bool    `json:"passed"`
}

// VoteCastPayload captures vote.cast events.
type VoteCastPayload struct {
	ProposalID string  `json:"proposal_id"`
	GovernorID string  `json:"governor_id"`
	TeamID     string  `json:"team_id"`
	Direction  string  `json:"direction"`
	Weight     float64 `json:"weight"`
	Boosted    bool    `json:"boosted"`
}

// RuleEnactedPayload captures rule.enacted events.
type RuleEnactedPayload struct {
	Parameter  string `json:"parameter"`
	OldValue   any    `json:"old_value"`
	NewValue   any    `json:"new_value"`
	ProposalID string `json:"proposal_id"`
	Round      int    `json:"round"`
}

// RuleRolledBackPayload captures rule.rolled_back events.
type RuleRolledBackPayload struct {
	ProposalID string `json:"proposal_id"`
	Reason     string `json:"reason"`
}

// TokenPayload captures token.spent and token.regenerated events.
type TokenPayload struct {
	GovernorID string `json:"governor_id"`
	TokenType  string `json:"token_type"`
	Amount     int    `json:"amount"`
	Reason     string `json:"reason"`
}

// TradePayload captures trade.offered/accepted/rejected events.
type TradePayload struct {
	TradeID          string   `json:"trade_id"`
	FromGovernorID   string   `json:"from_governor_id"`
	ToGovernorID     string   `json:"to_governor_id"`
	FromTeamID       string   `json:"from_team_id"`
	ToTeamID         string   `json:"to_team_id"`
	OfferedPlayerIDs []string `json:"offered_player_ids"`
	WantedPlayerIDs  []string `json:"wanted_player_ids"`
	Note             string   `json:"note,omitempty"`
}

// StrategySetPayload captures strategy.set events.
type StrategySetPayload struct {
	TeamID  string `json:"team_id"`
	RawText string `json:"raw_text"`
}

// StrategyInterpretedPayload captures strategy.interpreted events.
type StrategyInterpretedPayload struct {
	TeamID             string  `json:"team_id"`
	Pace               string  `json:"pace"`
	DefensiveIntensity float64 `json:"defensive_intensity"`
	ThreePointBias     float64 `json:"three_point_bias"`
	RimBias            float64 `json:"rim_bias"`
	Summary            string  `json:"summary,omitempty"`
}

// EffectRegisteredPayload captures effect.registered events. The effect spec
// is the effect package's JSON encoding.
type EffectRegisteredPayload struct {
	EffectID        string          `json:"effect_id"`
	ProposalID      string          `json:"proposal_id"`
	ActivationRound int             `json:"activation_round"`
	ExpirationRound int             `json:"expiration_round"`
	Effect          json.RawMessage `json:"effect"`
}

// EffectExpiredPayload captures effect.expired events.
type EffectExpiredPayload struct {
	EffectID string `json:"effect_id"`
	Round    int    `json:"round"`
}

// RawPayload preserves payloads of unknown event types.
type RawPayload struct {
	Type Type
	Data json.RawMessage
}

// EncodePayload marshals a payload value for storage on an event.
func EncodePayload(payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// DecodePayload parses an event's payload by type tag. Unknown event types
// return a RawPayload so readers can preserve them untouched.
func DecodePayload(evt Event) (any, error) {
	decode := func(target any) (any, error) {
		if len(evt.PayloadJSON) == 0 {
			return target, nil
		}
		if err := json.Unmarshal(evt.PayloadJSON, target); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", evt.Type, err)
		}
		return target, nil
	}

	switch evt.Type {
	case TypeProposalSubmitted:
		return decode(&ProposalSubmittedPayload{})
	case TypeProposalPendingInterpretation:
		return decode(&PendingInterpretationPayload{})
	case TypeProposalInterpretationRetryFailed:
		return decode(&InterpretationRetryFailedPayload{})
	case TypeProposalInterpretationExpired:
		return decode(&InterpretationExpiredPayload{})
	case TypeProposalConfirmed:
		return decode(&ProposalConfirmedPayload{})
	case TypeProposalFlaggedForReview:
		return decode(&ProposalFlaggedPayload{})
	case TypeProposalReviewCleared:
		return decode(&ProposalReviewClearedPayload{})
	case TypeProposalVetoed:
		return decode(&ProposalVetoedPayload{})
	case TypeProposalCancelled:
		return decode(&ProposalCancelledPayload{})
	case TypeProposalAmended:
		return decode(&ProposalAmendedPayload{})
	case TypeProposalRejectedInsufficientTokens, TypeProposalRejectedDuplicateVote,
		TypeProposalRejectedAmendmentCap, TypeProposalRejectedSelfAmendment:
		return decode(&ProposalRejectedPayload{})
	case TypeProposalFirstTallySeen:
		return decode(&FirstTallySeenPayload{})
	case TypeProposalPassed, TypeProposalFailed:
		return decode(&TallyPayload{})
	case TypeVoteCast:
		return decode(&VoteCastPayload{})
	case TypeRuleEnacted:
		return decode(&RuleEnactedPayload{})
	case TypeRuleRolledBack:
		return decode(&RuleRolledBackPayload{})
	case TypeTokenSpent, TypeTokenRegenerated:
		return decode(&TokenPayload{})
	case TypeTradeOffered, TypeTradeAccepted, TypeTradeRejected:
		return decode(&TradePayload{})
	case TypeStrategySet:
		return decode(&StrategySetPayload{})
	case TypeStrategyInterpreted:
		return decode(&StrategyInterpretedPayload{})
	case TypeEffectRegistered:
		return decode(&EffectRegisteredPayload{})
	case TypeEffectExpired:
		return decode(&EffectExpiredPayload{})
	}
	return &RawPayload{Type: evt.Type, Data: append([]byte(nil), evt.PayloadJSON...)}, nil
}
