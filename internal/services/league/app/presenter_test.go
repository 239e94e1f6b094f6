package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/longshot/internal/platform/bus"
	"github.com/louisbranch/longshot/internal/services/league/domain/sim"
	"github.com/louisbranch/longshot/internal/services/league/storage"
	"github.com/louisbranch/longshot/internal/services/league/storage/sqlite"
)

func putReplayGame(t *testing.T, store *sqlite.Store, seasonID, gameID string, round, plays int) {
	t.Helper()
	result := sim.Result{
		GameID:     gameID,
		HomeTeamID: "team-a",
		AwayTeamID: "team-b",
		HomeScore:  21,
		AwayScore:  19,
		BoxScores: []sim.BoxScoreLine{
			{PlayerID: "p1", TeamID: "team-a", Name: "Jo Fastbreak", Points: 12, Rebounds: 4},
			{PlayerID: "p2", TeamID: "team-a", Name: "Miko Range", Points: 9, Rebounds: 2},
			{PlayerID: "p3", TeamID: "team-b", Name: "Rex Deep", Points: 19, Rebounds: 7},
		},
	}
	for i := 0; i < plays; i++ {
		result.PlayByPlay = append(result.PlayByPlay, sim.PlayByPlayEntry{
			Quarter:    1,
			Clock:      "9:00",
			Possession: i + 1,
			TeamID:     "team-a",
			Action:     "three_point",
			Outcome:    "make",
			HomeScore:  3 * (i + 1),
		})
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("encode result: %v", err)
	}
	err = store.PutGameResult(context.Background(), storage.GameResultRecord{
		ID:         gameID,
		SeasonID:   seasonID,
		Round:      round,
		HomeTeamID: "team-a",
		AwayTeamID: "team-b",
		HomeScore:  21,
		AwayScore:  19,
		ResultJSON: resultJSON,
	}, nil)
	if err != nil {
		t.Fatalf("put game: %v", err)
	}
}

func TestPresentRoundReplaysAndMarksPresented(t *testing.T) {
	store, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	putReplayGame(t, store, "season-1", "game-1", 1, 2)

	eventBus := bus.New()
	sub := eventBus.Subscribe("presentation.possession")
	defer sub.Unsubscribe()
	finished := eventBus.Subscribe("presentation.game_finished")
	defer finished.Unsubscribe()

	p := NewPresenter(store, eventBus, Config{
		PresentationMode:     ModeReplay,
		QuarterReplaySeconds: 1,
		GameIntervalSeconds:  1,
	})
	if err := p.PresentRound(context.Background(), "season-1", 1); err != nil {
		t.Fatalf("present round: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case evt := <-sub.C:
			snapshot, ok := evt.Payload.(LiveGameState)
			if !ok {
				t.Fatalf("payload type %T", evt.Payload)
			}
			if snapshot.GameID != "game-1" {
				t.Fatalf("game id = %s", snapshot.GameID)
			}
		default:
			t.Fatalf("missing possession event %d", i+1)
		}
	}

	select {
	case evt := <-finished.C:
		payload, ok := evt.Payload.(GameFinished)
		if !ok {
			t.Fatalf("finished payload type %T", evt.Payload)
		}
		if len(payload.Leaders) != 2 {
			t.Fatalf("leaders = %+v, want one per team", payload.Leaders)
		}
		if payload.Leaders[0].PlayerID != "p1" || payload.Leaders[0].Points != 12 {
			t.Fatalf("home leader = %+v", payload.Leaders[0])
		}
		if payload.Leaders[1].PlayerID != "p3" || payload.Leaders[1].Points != 19 {
			t.Fatalf("away leader = %+v", payload.Leaders[1])
		}
	default:
		t.Fatal("no game_finished event")
	}

	game, err := store.GetGameResult(context.Background(), "game-1")
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if !game.Presented {
		t.Fatal("game not marked presented")
	}
	if p.Active() {
		t.Fatal("presenter still active")
	}
}

func TestPresentRoundInstantModeIsNoop(t *testing.T) {
	store, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	putReplayGame(t, store, "season-1", "game-1", 1, 2)

	p := NewPresenter(store, bus.New(), Config{PresentationMode: ModeInstant})
	if err := p.PresentRound(context.Background(), "season-1", 1); err != nil {
		t.Fatalf("present round: %v", err)
	}
	game, err := store.GetGameResult(context.Background(), "game-1")
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if game.Presented {
		t.Fatal("instant mode should not touch presented flags")
	}
}

func TestPresentRoundCancellationMarksRemainder(t *testing.T) {
	store, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	putReplayGame(t, store, "season-1", "game-1", 1, 50)
	putReplayGame(t, store, "season-1", "game-2", 1, 50)

	p := NewPresenter(store, bus.New(), Config{
		PresentationMode:     ModeReplay,
		QuarterReplaySeconds: 30,
		GameIntervalSeconds:  1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.PresentRound(ctx, "season-1", 1) }()

	// Let the replay start, then cut it off mid-game.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("replay did not stop on cancel")
	}

	for _, gameID := range []string{"game-1", "game-2"} {
		game, err := store.GetGameResult(context.Background(), gameID)
		if err != nil {
			t.Fatalf("get %s: %v", gameID, err)
		}
		if !game.Presented {
			t.Fatalf("%s not marked presented after cancel", gameID)
		}
	}
}

func TestRecoverStranded(t *testing.T) {
	store, err := sqlite.OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	putReplayGame(t, store, "season-1", "game-1", 3, 2)

	p := NewPresenter(store, bus.New(), Config{PresentationMode: ModeReplay})
	if err := p.RecoverStranded(context.Background(), "season-1", 3); err != nil {
		t.Fatalf("recover: %v", err)
	}
	game, err := store.GetGameResult(context.Background(), "game-1")
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if !game.Presented {
		t.Fatal("stranded game not recovered")
	}
}
