package team

import (
	"errors"
	"fmt"
	"testing"

	"github.com/louisbranch/longshot/internal/services/league/domain/player"
)

func testTeam(rosterSize int) Team {
	t := Team{
		ID:       "t1",
		SeasonID: "s1",
		Name:     "Harbor Squalls",
		Venue:    Venue{Name: "Pier Pavilion", Capacity: 4200},
	}
	for i := 0; i < rosterSize; i++ {
		t.Roster = append(t.Roster, player.Player{
			ID:   fmt.Sprintf("p%d", i+1),
			Name: fmt.Sprintf("Player %d", i+1),
			Base: player.Attributes{
				Scoring: 50, Passing: 50, Defense: 50, Speed: 50,
				Stamina: 50, IQ: 50, Ego: 50, ChaoticAlignment: 50, Fate: 50,
			},
		})
	}
	return t
}

func TestValidate(t *testing.T) {
	if err := testTeam(4).Validate(); err != nil {
		t.Fatalf("valid team rejected: %v", err)
	}

	if err := testTeam(2).Validate(); !errors.Is(err, ErrRosterTooSmall) {
		t.Fatalf("expected ErrRosterTooSmall, got %v", err)
	}

	bad := testTeam(3)
	bad.Roster[1].Base.Speed = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected attribute error to propagate")
	}
}

func TestStartersAndBench(t *testing.T) {
	team := testTeam(5)
	if got := len(team.Starters()); got != ActiveRosterSize {
		t.Fatalf("expected %d starters, got %d", ActiveRosterSize, got)
	}
	bench := team.Bench()
	if len(bench) != 2 || bench[0].ID != "p4" {
		t.Fatalf("unexpected bench %+v", bench)
	}
	if got := testTeam(3).Bench(); got != nil {
		t.Fatalf("expected nil bench, got %+v", got)
	}
}

func TestPlayerByID(t *testing.T) {
	team := testTeam(3)
	if _, ok := team.PlayerByID("p2"); !ok {
		t.Fatal("expected to find p2")
	}
	if _, ok := team.PlayerByID("ghost"); ok {
		t.Fatal("expected miss for unknown id")
	}
}
