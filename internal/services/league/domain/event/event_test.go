package event

import (
	"encoding/json"
	"testing"
)

func TestType_Domain(t *testing.T) {
	tests := []struct {
		eventType Type
		want      string
	}{
		{TypeProposalSubmitted, "proposal"},
		{TypeProposalFirstTallySeen, "proposal"},
		{TypeVoteCast, "vote"},
		{TypeRuleEnacted, "rule"},
		{TypeTokenSpent, "token"},
		{TypeTradeAccepted, "trade"},
		{TypeStrategyInterpreted, "strategy"},
		{TypeEffectRegistered, "effect"},
		{"bare", "bare"},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			if got := tt.eventType.Domain(); got != tt.want {
				t.Errorf("Type(%q).Domain() = %q, want %q", tt.eventType, got, tt.want)
			}
		})
	}
}

func TestType_Aggregate(t *testing.T) {
	tests := []struct {
		eventType Type
		want      AggregateType
	}{
		{TypeProposalPassed, AggregateProposal},
		{TypeVoteCast, AggregateProposal},
		{TypeRuleRolledBack, AggregateRuleChange},
		{TypeTokenRegenerated, AggregateToken},
		{TypeTradeOffered, AggregateTrade},
		{TypeStrategySet, AggregateStrategy},
		{TypeEffectExpired, AggregateEffect},
		{"mystery.event", ""},
	}

	for _, tt := range tests {
		if got := tt.eventType.Aggregate(); got != tt.want {
			t.Errorf("Type(%q).Aggregate() = %q, want %q", tt.eventType, got, tt.want)
		}
	}
}

func TestDecodePayloadByTag(t *testing.T) {
	payload, err := EncodePayload(VoteCastPayload{
		ProposalID: "p1",
		GovernorID: "g1",
		TeamID:     "t1",
		Direction:  "yes",
		Weight:     0.5,
		Boosted:    true,
	})
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}

	decoded, err := DecodePayload(Event{Type: TypeVoteCast, PayloadJSON: payload})
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}

	vote, ok := decoded.(*VoteCastPayload)
	if !ok {
		t.Fatalf("expected *VoteCastPayload, got %T", decoded)
	}
	if vote.ProposalID != "p1" || vote.Weight != 0.5 || !vote.Boosted {
		t.Fatalf("unexpected payload %+v", vote)
	}
}

func TestDecodePayloadUnknownTypePreserved(t *testing.T) {
	raw := []byte(`{"future_field": 42}`)
	decoded, err := DecodePayload(Event{Type: "dynasty.founded", PayloadJSON: raw})
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}

	preserved, ok := decoded.(*RawPayload)
	if !ok {
		t.Fatalf("expected *RawPayload, got %T", decoded)
	}
	if preserved.Type != "dynasty.founded" {
		t.Fatalf("unexpected type %q", preserved.Type)
	}
	var fields map[string]int
	if err := json.Unmarshal(preserved.Data, &fields); err != nil {
		t.Fatalf("unmarshal preserved data: %v", err)
	}
	if fields["future_field"] != 42 {
		t.Fatalf("expected preserved field, got %v", fields)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		evtType Type
		payload any
	}{
		{"tally", TypeProposalPassed, TallyPayload{ProposalID: "p1", Tier: 3, YesWeight: 0.67, TotalWeight: 1, Threshold: 0.6, Passed: true}},
		{"token", TypeTokenSpent, TokenPayload{GovernorID: "g1", TokenType: "PROPOSE", Amount: 1, Reason: "submit"}},
		{"rule", TypeRuleEnacted, RuleEnactedPayload{Parameter: "three_point_value", OldValue: 3.0, NewValue: 5.0, ProposalID: "p1", Round: 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodePayload(tt.payload)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			decoded, err := DecodePayload(Event{Type: tt.evtType, PayloadJSON: data})
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			reencoded, err := EncodePayload(decoded)
			if err != nil {
				t.Fatalf("re-encode: %v", err)
			}
			if string(data) != string(reencoded) {
				t.Fatalf("round trip mismatch:\n%s\n%s", data, reencoded)
			}
		})
	}
}
