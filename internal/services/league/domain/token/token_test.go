package token

import (
	"errors"
	"testing"

	"github.com/louisbranch/longshot/internal/services/league/domain/event"
)

func tokenEvent(t *testing.T, id string, eventType event.Type, governorID string, tokenType Type, amount int) event.Event {
	t.Helper()
	payload, err := event.EncodePayload(event.TokenPayload{
		GovernorID: governorID,
		TokenType:  string(tokenType),
		Amount:     amount,
	})
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	return event.Event{
		ID:            id,
		SeasonID:      "s1",
		Type:          eventType,
		AggregateType: event.AggregateToken,
		AggregateID:   governorID,
		GovernorID:    governorID,
		PayloadJSON:   payload,
	}
}

func TestLedgerReplay(t *testing.T) {
	ledger := NewLedger()
	events := []event.Event{
		tokenEvent(t, "e1", event.TypeTokenRegenerated, "g1", TypePropose, 2),
		tokenEvent(t, "e2", event.TypeTokenRegenerated, "g1", TypeBoost, 1),
		tokenEvent(t, "e3", event.TypeTokenSpent, "g1", TypePropose, 1),
		{ID: "e4", Type: event.TypeProposalConfirmed},
	}
	if err := ledger.Replay(events); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got := ledger.BalanceOf("g1", TypePropose); got != 1 {
		t.Fatalf("expected PROPOSE balance 1, got %d", got)
	}
	if got := ledger.BalanceOf("g1", TypeBoost); got != 1 {
		t.Fatalf("expected BOOST balance 1, got %d", got)
	}
	if got := ledger.BalanceOf("g1", TypeAmend); got != 0 {
		t.Fatalf("expected AMEND balance 0, got %d", got)
	}
	if got := ledger.BalanceOf("ghost", TypePropose); got != 0 {
		t.Fatalf("expected unknown governor balance 0, got %d", got)
	}
}

func TestLedgerRejectsNegativePrefix(t *testing.T) {
	ledger := NewLedger()
	err := ledger.Replay([]event.Event{
		tokenEvent(t, "e1", event.TypeTokenRegenerated, "g1", TypePropose, 1),
		tokenEvent(t, "e2", event.TypeTokenSpent, "g1", TypePropose, 2),
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestCanSpend(t *testing.T) {
	ledger := NewLedger()
	if err := ledger.Apply(tokenEvent(t, "e1", event.TypeTokenRegenerated, "g1", TypeAmend, 1)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	if err := ledger.CanSpend("g1", TypeAmend, 1); err != nil {
		t.Fatalf("expected spend allowed, got %v", err)
	}
	if err := ledger.CanSpend("g1", TypeAmend, 2); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := ledger.CanSpend("g1", TypeAmend, 0); err == nil {
		t.Fatal("expected error for non-positive amount")
	}
	if err := ledger.CanSpend("g2", TypePropose, 1); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance for unseen governor, got %v", err)
	}
}

func TestApplyRejectsUnknownTokenType(t *testing.T) {
	ledger := NewLedger()
	err := ledger.Apply(tokenEvent(t, "e1", event.TypeTokenRegenerated, "g1", Type("JACKPOT"), 1))
	if err == nil {
		t.Fatal("expected error for unknown token type")
	}
}
