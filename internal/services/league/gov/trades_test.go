package gov

import (
	"context"
	"errors"
	"testing"

	"github.com/louisbranch/longshot/internal/services/league/domain/event"
)

func TestTradeLifecycle(t *testing.T) {
	kernel, store := newTestKernel(t)
	ctx := context.Background()

	tradeID, err := kernel.OfferTrade(ctx, testSeason, 1, event.TradePayload{
		FromGovernorID:   "gov-1",
		ToGovernorID:     "gov-3",
		OfferedPlayerIDs: []string{"player-a"},
		WantedPlayerIDs:  []string{"player-b"},
	})
	if err != nil {
		t.Fatalf("offer: %v", err)
	}
	if tradeID == "" {
		t.Fatal("empty trade id")
	}

	// Teams resolve from enrollment, not the caller.
	trade, err := kernel.loadTrade(ctx, testSeason, tradeID)
	if err != nil {
		t.Fatalf("load trade: %v", err)
	}
	if trade.FromTeamID != "team-a" || trade.ToTeamID != "team-b" {
		t.Fatalf("teams = %s -> %s", trade.FromTeamID, trade.ToTeamID)
	}

	if err := kernel.RespondTrade(ctx, testSeason, 1, tradeID, "gov-2", true); !errors.Is(err, ErrNotTradePartner) {
		t.Fatalf("wrong responder err = %v, want ErrNotTradePartner", err)
	}
	if err := kernel.RespondTrade(ctx, testSeason, 2, tradeID, "gov-3", true); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := kernel.RespondTrade(ctx, testSeason, 2, tradeID, "gov-3", false); !errors.Is(err, ErrTradeClosed) {
		t.Fatalf("double respond err = %v, want ErrTradeClosed", err)
	}

	accepted, err := kernel.AcceptedTrades(ctx, testSeason, 2)
	if err != nil {
		t.Fatalf("accepted trades: %v", err)
	}
	if len(accepted) != 1 || accepted[0].TradeID != tradeID {
		t.Fatalf("accepted = %+v", accepted)
	}

	// Trades accepted later than the queried round are excluded.
	early, err := kernel.AcceptedTrades(ctx, testSeason, 1)
	if err != nil {
		t.Fatalf("accepted trades: %v", err)
	}
	if len(early) != 0 {
		t.Fatalf("round 1 accepted = %+v, want none", early)
	}

	// Record the store is consistent after replay.
	if _, err := store.ListEventsByAggregate(ctx, testSeason, tradeID); err != nil {
		t.Fatalf("list trade events: %v", err)
	}
}

func TestOfferTradeValidation(t *testing.T) {
	kernel, _ := newTestKernel(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		offer event.TradePayload
	}{
		{
			"unequal counts",
			event.TradePayload{
				FromGovernorID:   "gov-1",
				ToGovernorID:     "gov-3",
				OfferedPlayerIDs: []string{"a", "b"},
				WantedPlayerIDs:  []string{"c"},
			},
		},
		{
			"self trade",
			event.TradePayload{
				FromGovernorID:   "gov-1",
				ToGovernorID:     "gov-1",
				OfferedPlayerIDs: []string{"a"},
				WantedPlayerIDs:  []string{"b"},
			},
		},
		{
			"same team",
			event.TradePayload{
				FromGovernorID:   "gov-1",
				ToGovernorID:     "gov-2",
				OfferedPlayerIDs: []string{"a"},
				WantedPlayerIDs:  []string{"b"},
			},
		},
		{
			"unenrolled governor",
			event.TradePayload{
				FromGovernorID:   "gov-1",
				ToGovernorID:     "gov-9",
				OfferedPlayerIDs: []string{"a"},
				WantedPlayerIDs:  []string{"b"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := kernel.OfferTrade(ctx, testSeason, 1, tt.offer); !errors.Is(err, ErrInvalidTrade) {
				t.Fatalf("err = %v, want ErrInvalidTrade", err)
			}
		})
	}
}

func TestSetStrategyAppendsBothEvents(t *testing.T) {
	kernel, store := newTestKernel(t)
	ctx := context.Background()

	interpreted, err := kernel.SetStrategy(ctx, testSeason, 1, "gov-1", "Push the pace and bomb from deep")
	if err != nil {
		t.Fatalf("set strategy: %v", err)
	}
	if interpreted.TeamID != "team-a" {
		t.Fatalf("team = %s, want team-a", interpreted.TeamID)
	}
	if interpreted.Pace != "fast" {
		t.Fatalf("pace = %s, want fast", interpreted.Pace)
	}
	if interpreted.ThreePointBias <= interpreted.RimBias {
		t.Fatalf("expected three-point lean, got three=%.2f rim=%.2f",
			interpreted.ThreePointBias, interpreted.RimBias)
	}

	set := eventsOfType(t, store, event.TypeStrategySet)
	if len(set) != 1 {
		t.Fatalf("strategy.set events = %d, want 1", len(set))
	}
	parsed := eventsOfType(t, store, event.TypeStrategyInterpreted)
	if len(parsed) != 1 {
		t.Fatalf("strategy.interpreted events = %d, want 1", len(parsed))
	}

	if _, err := kernel.SetStrategy(ctx, testSeason, 1, "gov-9", "anything"); err == nil {
		t.Fatal("expected error for unenrolled governor")
	}
}

func TestParseStrategyKeywords(t *testing.T) {
	tests := []struct {
		text       string
		pace       string
		defense    float64
		threeLeans bool
		rimLeans   bool
	}{
		{"Slow it down and grind in the half court", "slow", 0.5, false, false},
		{"Full court press all game", "normal", 0.9, false, false},
		{"Attack the basket every possession", "normal", 0.5, false, true},
		{"Just play our game", "normal", 0.5, false, false},
	}
	for _, tt := range tests {
		got := parseStrategy("team-x", tt.text)
		if got.Pace != tt.pace {
			t.Errorf("%q pace = %s, want %s", tt.text, got.Pace, tt.pace)
		}
		if got.DefensiveIntensity != tt.defense {
			t.Errorf("%q defense = %.2f, want %.2f", tt.text, got.DefensiveIntensity, tt.defense)
		}
		if tt.threeLeans && got.ThreePointBias <= got.RimBias {
			t.Errorf("%q should lean three", tt.text)
		}
		if tt.rimLeans && got.RimBias <= got.ThreePointBias {
			t.Errorf("%q should lean rim", tt.text)
		}
	}
}
