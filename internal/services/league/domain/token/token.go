// Package token derives governor token balances from the governance event
// log. Balances are never stored; every read replays token.spent and
// token.regenerated events.
package token

import (
	"errors"
	"fmt"

	"github.com/louisbranch/longshot/internal/services/league/domain/event"
)

// Type is a spendable governance token kind.
type Type string

const (
	// TypePropose is charged when submitting a proposal.
	TypePropose Type = "PROPOSE"
	// TypeAmend is charged when amending another governor's proposal.
	TypeAmend Type = "AMEND"
	// TypeBoost doubles one vote's weight.
	TypeBoost Type = "BOOST"
)

// Types lists every token kind in a stable order.
var Types = []Type{TypePropose, TypeAmend, TypeBoost}

// ErrInsufficientBalance indicates a spend would take a balance negative.
var ErrInsufficientBalance = errors.New("insufficient token balance")

// IsValid reports whether t is a known token type.
func (t Type) IsValid() bool {
	switch t {
	case TypePropose, TypeAmend, TypeBoost:
		return true
	}
	return false
}

// Balance is the derived (regenerated - spent) total for one governor and
// token type.
type Balance struct {
	GovernorID string
	TokenType  Type
	Amount     int
}

// Ledger accumulates balances by replaying governance events. It is a
// read-model only; the event log stays authoritative.
type Ledger struct {
	balances map[string]map[Type]int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[string]map[Type]int)}
}

// Replay folds a batch of events into the ledger. Non-token events are
// ignored so callers can feed the full season log.
func (l *Ledger) Replay(events []event.Event) error {
	for _, e := range events {
		if err := l.Apply(e); err != nil {
			return err
		}
	}
	return nil
}

// Apply folds one event into the ledger.
func (l *Ledger) Apply(e event.Event) error {
	switch e.Type {
	case event.TypeTokenSpent, event.TypeTokenRegenerated:
	default:
		return nil
	}

	payload, err := event.DecodePayload(e)
	if err != nil {
		return fmt.Errorf("token ledger: decode event %s: %w", e.ID, err)
	}
	tokenPayload, ok := payload.(*event.TokenPayload)
	if !ok {
		return fmt.Errorf("token ledger: event %s has unexpected payload %T", e.ID, payload)
	}

	tokenType := Type(tokenPayload.TokenType)
	if !tokenType.IsValid() {
		return fmt.Errorf("token ledger: event %s has unknown token type %q", e.ID, tokenPayload.TokenType)
	}

	governor := l.balances[tokenPayload.GovernorID]
	if governor == nil {
		governor = make(map[Type]int)
		l.balances[tokenPayload.GovernorID] = governor
	}

	switch e.Type {
	case event.TypeTokenSpent:
		governor[tokenType] -= tokenPayload.Amount
	case event.TypeTokenRegenerated:
		governor[tokenType] += tokenPayload.Amount
	}
	if governor[tokenType] < 0 {
		return fmt.Errorf("token ledger: %w: governor %s %s at event %s",
			ErrInsufficientBalance, tokenPayload.GovernorID, tokenType, e.ID)
	}
	return nil
}

// BalanceOf returns the derived balance for one governor and token type.
func (l *Ledger) BalanceOf(governorID string, tokenType Type) int {
	return l.balances[governorID][tokenType]
}

// CanSpend reports whether a spend of amount would keep the balance
// non-negative. Spends must be checked here before the token.spent event is
// appended.
func (l *Ledger) CanSpend(governorID string, tokenType Type, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("token spend amount must be positive, got %d", amount)
	}
	if l.BalanceOf(governorID, tokenType) < amount {
		return fmt.Errorf("%w: governor %s has %d %s, needs %d",
			ErrInsufficientBalance, governorID, l.BalanceOf(governorID, tokenType), tokenType, amount)
	}
	return nil
}

// Governors returns every governor id the ledger has seen.
func (l *Ledger) Governors() []string {
	ids := make([]string, 0, len(l.balances))
	for id := range l.balances {
		ids = append(ids, id)
	}
	return ids
}
