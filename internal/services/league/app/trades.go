package app

import (
	"context"
	"fmt"
	"log"

	"github.com/louisbranch/longshot/internal/services/league/gov"
	"github.com/louisbranch/longshot/internal/services/league/storage"
)

// applyAcceptedTrades performs roster swaps for every trade accepted at or
// before the given round. A swap only runs while the offered players still
// sit on the offering team, which makes reapplication after a crashed round
// a no-op.
func (a *App) applyAcceptedTrades(ctx context.Context, seasonID string, round int) error {
	trades, err := a.kernel.AcceptedTrades(ctx, seasonID, round)
	if err != nil {
		return fmt.Errorf("load accepted trades: %w", err)
	}
	for _, trade := range trades {
		applied, err := a.applyTrade(ctx, trade)
		if err != nil {
			return fmt.Errorf("apply trade %s: %w", trade.TradeID, err)
		}
		if applied {
			log.Printf("trade %s: %s and %s swapped %d players",
				trade.TradeID, trade.FromTeamID, trade.ToTeamID, len(trade.OfferedPlayerIDs))
			a.bus.Publish("trade.applied", trade.TradePayload)
		}
	}
	return nil
}

func (a *App) applyTrade(ctx context.Context, trade gov.Trade) (bool, error) {
	fromRoster, err := a.store.ListPlayers(ctx, trade.FromTeamID)
	if err != nil {
		return false, err
	}
	toRoster, err := a.store.ListPlayers(ctx, trade.ToTeamID)
	if err != nil {
		return false, err
	}

	offered := pickPlayers(fromRoster, trade.OfferedPlayerIDs)
	wanted := pickPlayers(toRoster, trade.WantedPlayerIDs)
	if len(offered) != len(trade.OfferedPlayerIDs) || len(wanted) != len(trade.WantedPlayerIDs) {
		// Players already moved or traded away since acceptance.
		return false, nil
	}

	for _, p := range offered {
		p.TeamID = trade.ToTeamID
		if err := a.store.PutPlayer(ctx, p); err != nil {
			return false, fmt.Errorf("move player %s: %w", p.ID, err)
		}
	}
	for _, p := range wanted {
		p.TeamID = trade.FromTeamID
		if err := a.store.PutPlayer(ctx, p); err != nil {
			return false, fmt.Errorf("move player %s: %w", p.ID, err)
		}
	}
	return true, nil
}

func pickPlayers(roster []storage.PlayerRecord, ids []string) []storage.PlayerRecord {
	byID := make(map[string]storage.PlayerRecord, len(roster))
	for _, p := range roster {
		byID[p.ID] = p
	}
	var picked []storage.PlayerRecord
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			continue
		}
		picked = append(picked, p)
	}
	return picked
}
