package gov

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/longshot/internal/services/league/domain/event"
)

// Trade state errors.
var (
	ErrInvalidTrade    = errors.New("invalid trade offer")
	ErrTradeClosed     = errors.New("trade already resolved")
	ErrNotTradePartner = errors.New("only the offered governor can respond")
)

// Trade is the replayed state of one trade aggregate.
type Trade struct {
	event.TradePayload
	Status string // offered, accepted, rejected
	Round  int
}

// OfferTrade appends a trade offer between two governors and returns the
// trade id. Offered and wanted player counts must match so roster sizes stay
// fixed.
func (k *Kernel) OfferTrade(ctx context.Context, seasonID string, round int, offer event.TradePayload) (string, error) {
	if len(offer.OfferedPlayerIDs) == 0 || len(offer.OfferedPlayerIDs) != len(offer.WantedPlayerIDs) {
		return "", fmt.Errorf("%w: must swap equal player counts", ErrInvalidTrade)
	}
	if offer.FromGovernorID == offer.ToGovernorID {
		return "", fmt.Errorf("%w: cannot trade with yourself", ErrInvalidTrade)
	}

	enrollments, err := k.store.ListEnrollments(ctx, seasonID)
	if err != nil {
		return "", fmt.Errorf("list enrollments: %w", err)
	}
	team := func(governorID string) string {
		for _, e := range enrollments {
			if e.GovernorID == governorID && e.Active {
				return e.TeamID
			}
		}
		return ""
	}
	fromTeam, toTeam := team(offer.FromGovernorID), team(offer.ToGovernorID)
	if fromTeam == "" || toTeam == "" {
		return "", fmt.Errorf("%w: both governors must be actively enrolled", ErrInvalidTrade)
	}
	if fromTeam == toTeam {
		return "", fmt.Errorf("%w: governors share a team", ErrInvalidTrade)
	}
	offer.FromTeamID, offer.ToTeamID = fromTeam, toTeam

	if offer.TradeID == "" {
		offer.TradeID = k.newID()
	}
	if err := k.append(ctx, seasonID, round, event.TypeTradeOffered, event.AggregateTrade,
		offer.TradeID, offer.FromGovernorID, fromTeam, offer); err != nil {
		return "", err
	}
	return offer.TradeID, nil
}

// RespondTrade records acceptance or rejection. Only the offered governor may
// respond, and only once. The response event carries the full offer so the
// round runner can apply it without a second lookup.
func (k *Kernel) RespondTrade(ctx context.Context, seasonID string, round int, tradeID, governorID string, accept bool) error {
	trade, err := k.loadTrade(ctx, seasonID, tradeID)
	if err != nil {
		return err
	}
	if trade.Status != "offered" {
		return fmt.Errorf("trade %s: %w", tradeID, ErrTradeClosed)
	}
	if governorID != trade.ToGovernorID {
		return fmt.Errorf("trade %s: %w", tradeID, ErrNotTradePartner)
	}
	eventType := event.TypeTradeRejected
	if accept {
		eventType = event.TypeTradeAccepted
	}
	return k.append(ctx, seasonID, round, eventType, event.AggregateTrade,
		tradeID, governorID, trade.ToTeamID, trade.TradePayload)
}

// ListTrades replays every trade aggregate in offer order.
func (k *Kernel) ListTrades(ctx context.Context, seasonID string) ([]Trade, error) {
	offers, err := k.store.ListEventsByType(ctx, seasonID, event.TypeTradeOffered)
	if err != nil {
		return nil, fmt.Errorf("list trade offers: %w", err)
	}
	trades := make([]Trade, 0, len(offers))
	for _, offer := range offers {
		trade, err := k.loadTrade(ctx, seasonID, offer.AggregateID)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *trade)
	}
	return trades, nil
}

// AcceptedTrades returns trades accepted at or before the given round.
func (k *Kernel) AcceptedTrades(ctx context.Context, seasonID string, round int) ([]Trade, error) {
	trades, err := k.ListTrades(ctx, seasonID)
	if err != nil {
		return nil, err
	}
	var accepted []Trade
	for _, t := range trades {
		if t.Status == "accepted" && t.Round <= round {
			accepted = append(accepted, t)
		}
	}
	return accepted, nil
}

func (k *Kernel) loadTrade(ctx context.Context, seasonID, tradeID string) (*Trade, error) {
	events, err := k.store.ListEventsByAggregate(ctx, seasonID, tradeID)
	if err != nil {
		return nil, fmt.Errorf("list trade events: %w", err)
	}
	var trade *Trade
	for _, evt := range events {
		payload, err := event.DecodePayload(evt)
		if err != nil {
			return nil, err
		}
		tp, ok := payload.(*event.TradePayload)
		if !ok {
			continue
		}
		switch evt.Type {
		case event.TypeTradeOffered:
			trade = &Trade{TradePayload: *tp, Status: "offered", Round: evt.Round}
		case event.TypeTradeAccepted:
			if trade != nil {
				trade.Status = "accepted"
				trade.Round = evt.Round
			}
		case event.TypeTradeRejected:
			if trade != nil {
				trade.Status = "rejected"
				trade.Round = evt.Round
			}
		}
	}
	if trade == nil {
		return nil, fmt.Errorf("trade %s: not found", tradeID)
	}
	return trade, nil
}
