// Package proposal models the governance proposal aggregate. A proposal's
// state is never stored directly; it is reconstructed by replaying its event
// stream in sequence order.
package proposal

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/louisbranch/longshot/internal/services/league/domain/effect"
	"github.com/louisbranch/longshot/internal/services/league/domain/event"
	"github.com/louisbranch/longshot/internal/services/league/domain/ruleset"
)

// Status is a proposal lifecycle state.
type Status string

const (
	StatusPendingInterpretation Status = "pending_interpretation"
	StatusConfirmed             Status = "confirmed"
	StatusFlaggedForReview      Status = "flagged_for_review"
	StatusVetoed                Status = "vetoed"
	StatusAmended               Status = "amended"
	StatusPassed                Status = "passed"
	StatusFailed                Status = "failed"
	StatusCancelled             Status = "cancelled"
	StatusExpired               Status = "expired"
)

// MaxAmendments is the default amendment cap. The live value is the rule
// set's governable amendment_cap parameter.
const MaxAmendments = 3

// MinimumConfidence below which a proposal is flagged for admin review.
const MinimumConfidence = 0.5

var (
	// ErrSelfAmendment indicates the original author tried to amend.
	ErrSelfAmendment = errors.New("author may not amend own proposal")
	// ErrAmendmentCap indicates the amendment cap was reached.
	ErrAmendmentCap = errors.New("amendment cap reached")
	// ErrNotOpen indicates an operation on a proposal outside the voting window.
	ErrNotOpen = errors.New("proposal is not open")
	// ErrDuplicateVote indicates a governor already voted on this version.
	ErrDuplicateVote = errors.New("governor already voted on this version")
)

// Interpretation is the structured output of the AI interpreter for a
// proposal's raw text.
type Interpretation struct {
	Summary          string        `json:"summary"`
	Confidence       float64       `json:"confidence"`
	InjectionFlagged bool          `json:"injection_flagged"`
	Effects          []effect.Spec `json:"effects"`
}

// Vote is a weighted ballot on a proposal. Seq is the vote.cast event's
// sequence number, used to invalidate votes cast before an amendment.
type Vote struct {
	GovernorID string
	TeamID     string
	Direction  string
	Weight     float64
	Boosted    bool
	Seq        uint64
}

// Proposal is the replayed aggregate state.
type Proposal struct {
	ID             string
	AuthorID       string
	TeamID         string
	RawText        string
	SanitizedText  string
	Interpretation Interpretation
	Tier           int
	TokenCost      int
	Status         Status

	AmendmentCount int
	// LastAmendSeq is the sequence number of the latest proposal.amended
	// event. Votes at or below it do not count.
	LastAmendSeq uint64
	// FirstTallyRound is the round the first tally attempt saw this
	// proposal, zero until a first_tally_seen event exists.
	FirstTallyRound int
	Retries         int

	votes []Vote
}

// Open reports whether the proposal accepts votes. Flagged proposals stay
// open; the admin decides before tally.
func (p *Proposal) Open() bool {
	switch p.Status {
	case StatusConfirmed, StatusAmended, StatusFlaggedForReview:
		return true
	}
	return false
}

// Terminal reports whether the proposal reached a final state.
func (p *Proposal) Terminal() bool {
	switch p.Status {
	case StatusPassed, StatusFailed, StatusVetoed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// NeedsAdminReview reports whether the proposal must be flagged on submit.
func NeedsAdminReview(interp Interpretation, tier int) bool {
	if interp.InjectionFlagged || interp.Confidence < MinimumConfidence || tier >= 5 {
		return true
	}
	for _, spec := range interp.Effects {
		if spec.Kind == effect.KindCustomMechanic {
			return true
		}
	}
	return false
}

// Tier classifies a proposal's impact from its interpretation. Parameter
// changes map through the rule set's tier table; hook callbacks, meta
// mutations, and move grants are tier 3; narrative-only is tier 2; an empty
// or injection-flagged interpretation is tier 5. Compound interpretations
// take the maximum.
func Tier(interp Interpretation) int {
	if interp.InjectionFlagged || len(interp.Effects) == 0 {
		return 5
	}
	tier := 0
	for _, spec := range interp.Effects {
		var t int
		switch spec.Kind {
		case effect.KindParameterChange:
			t = ruleset.ParameterTier(spec.Parameter)
			if t == 0 {
				t = 5
			}
		case effect.KindHookCallback, effect.KindMetaMutation, effect.KindMoveGrant:
			t = 3
		case effect.KindNarrative:
			t = 2
		case effect.KindCustomMechanic:
			t = 5
		default:
			t = 5
		}
		if t > tier {
			tier = t
		}
	}
	return tier
}

// Threshold returns the pass threshold for a tier. Comparison is strict:
// exactly the threshold fails.
func Threshold(tier int) float64 {
	switch {
	case tier <= 2:
		return 0.50
	case tier <= 4:
		return 0.60
	case tier <= 6:
		return 0.67
	}
	return 0.75
}

// Sanitize strips invisible code points and HTML-like markers from raw
// proposal text before it reaches the interpreter.
func Sanitize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	depth := 0
	for _, r := range raw {
		switch {
		case r == '<':
			depth++
		case r == '>':
			if depth > 0 {
				depth--
			}
		case depth > 0:
		case r == '\n' || r == '\t' || r == ' ':
			b.WriteRune(r)
		case unicode.IsControl(r) || unicode.Is(unicode.Cf, r):
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// ValidVotes returns the countable ballots: the latest vote per governor
// with sequence number above the last amendment.
func (p *Proposal) ValidVotes() []Vote {
	latest := make(map[string]Vote)
	var order []string
	for _, v := range p.votes {
		if v.Seq <= p.LastAmendSeq {
			continue
		}
		if _, seen := latest[v.GovernorID]; !seen {
			order = append(order, v.GovernorID)
		}
		latest[v.GovernorID] = v
	}
	votes := make([]Vote, 0, len(latest))
	for _, governorID := range order {
		votes = append(votes, latest[governorID])
	}
	return votes
}

// HasVoted reports whether a governor already has a countable ballot.
func (p *Proposal) HasVoted(governorID string) bool {
	for _, v := range p.ValidVotes() {
		if v.GovernorID == governorID {
			return true
		}
	}
	return false
}

// TallyResult is the weighted outcome of a tally.
type TallyResult struct {
	YesWeight   float64
	NoWeight    float64
	TotalWeight float64
	Threshold   float64
	Passed      bool
}

// Tally computes the weighted outcome over the countable ballots. Passing
// requires yes weight strictly above threshold of total weight; a tally with
// no votes fails.
func (p *Proposal) Tally() TallyResult {
	result := TallyResult{Threshold: Threshold(p.Tier)}
	for _, v := range p.ValidVotes() {
		switch v.Direction {
		case "yes":
			result.YesWeight += v.Weight
		case "no":
			result.NoWeight += v.Weight
		}
	}
	result.TotalWeight = result.YesWeight + result.NoWeight
	if result.TotalWeight > 0 {
		result.Passed = result.YesWeight/result.TotalWeight > result.Threshold
	}
	return result
}

// Replay reconstructs a proposal from its event stream. Events must belong
// to a single proposal aggregate and arrive in sequence order.
func Replay(events []event.Event) (*Proposal, error) {
	if len(events) == 0 {
		return nil, errors.New("no events to replay")
	}
	p := &Proposal{}
	for _, e := range events {
		if err := p.apply(e); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Proposal) apply(e event.Event) error {
	decoded, err := event.DecodePayload(e)
	if err != nil {
		return fmt.Errorf("replay proposal: %w", err)
	}

	switch payload := decoded.(type) {
	case *event.ProposalSubmittedPayload:
		p.ID = payload.ProposalID
		p.AuthorID = payload.AuthorID
		p.TeamID = payload.TeamID
		p.RawText = payload.RawText
		p.SanitizedText = payload.SanitizedText
		p.Tier = payload.Tier
		p.TokenCost = payload.TokenCost
		p.Status = Status(payload.Status)
		if len(payload.Interpretation) > 0 {
			if err := json.Unmarshal(payload.Interpretation, &p.Interpretation); err != nil {
				return fmt.Errorf("replay proposal %s: interpretation: %w", p.ID, err)
			}
		}

	case *event.PendingInterpretationPayload:
		p.Status = StatusPendingInterpretation
		p.Retries = payload.Retries

	case *event.InterpretationRetryFailedPayload:
		p.Retries++

	case *event.InterpretationExpiredPayload:
		p.Status = StatusExpired

	case *event.ProposalConfirmedPayload:
		p.Status = StatusConfirmed
		if len(payload.Interpretation) > 0 {
			var interp Interpretation
			if err := json.Unmarshal(payload.Interpretation, &interp); err != nil {
				return fmt.Errorf("replay proposal %s: confirmed interpretation: %w", p.ID, err)
			}
			p.Interpretation = interp
			p.Tier = payload.Tier
		}

	case *event.ProposalFlaggedPayload:
		p.Status = StatusFlaggedForReview

	case *event.ProposalReviewClearedPayload:
		p.Status = StatusConfirmed

	case *event.ProposalVetoedPayload:
		p.Status = StatusVetoed

	case *event.ProposalCancelledPayload:
		p.Status = StatusCancelled

	case *event.ProposalAmendedPayload:
		p.Status = StatusAmended
		p.AmendmentCount++
		p.LastAmendSeq = e.Seq
		p.RawText = payload.RawText
		p.SanitizedText = Sanitize(payload.RawText)
		if len(payload.Interpretation) > 0 {
			var interp Interpretation
			if err := json.Unmarshal(payload.Interpretation, &interp); err != nil {
				return fmt.Errorf("replay proposal %s: amendment interpretation: %w", p.ID, err)
			}
			p.Interpretation = interp
			p.Tier = Tier(interp)
		}

	case *event.FirstTallySeenPayload:
		p.FirstTallyRound = payload.Round

	case *event.TallyPayload:
		if payload.Passed {
			p.Status = StatusPassed
		} else {
			p.Status = StatusFailed
		}

	case *event.VoteCastPayload:
		p.votes = append(p.votes, Vote{
			GovernorID: payload.GovernorID,
			TeamID:     payload.TeamID,
			Direction:  payload.Direction,
			Weight:     payload.Weight,
			Boosted:    payload.Boosted,
			Seq:        e.Seq,
		})
	}
	return nil
}
