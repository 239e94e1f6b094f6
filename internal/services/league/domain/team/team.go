// Package team defines team value types: roster ordering, display metadata,
// and the venue descriptor feeding home-court simulation modifiers.
package team

import (
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/longshot/internal/services/league/domain/player"
)

// ActiveRosterSize is the number of players on court per team.
const ActiveRosterSize = 3

var (
	// ErrEmptyID indicates a team id is required.
	ErrEmptyID = errors.New("team id is required")
	// ErrEmptyName indicates a team name is required.
	ErrEmptyName = errors.New("team name is required")
	// ErrRosterTooSmall indicates a team needs at least a full on-court unit.
	ErrRosterTooSmall = errors.New("roster needs at least 3 players")
)

// Venue describes where a team plays. Altitude and capacity feed simulation
// modifiers; coordinates are display metadata.
type Venue struct {
	Name           string  `json:"name"`
	Capacity       int     `json:"capacity"`
	AltitudeMeters float64 `json:"altitude_meters"`
	Surface        string  `json:"surface"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
}

// Team owns an ordered roster (first three active, rest bench), display
// metadata, and a venue. Teams are recreated each season with fresh ids but
// carry over by name.
type Team struct {
	ID       string
	SeasonID string
	Name     string
	Emoji    string
	Venue    Venue
	// Roster is ordered: indexes 0..2 start on court, the rest are bench.
	Roster []player.Player
}

// Validate checks structural invariants including every rostered player.
func (t Team) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}
	if len(t.Roster) < ActiveRosterSize {
		return fmt.Errorf("team %s: %w", t.Name, ErrRosterTooSmall)
	}
	for _, p := range t.Roster {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("team %s: %w", t.Name, err)
		}
	}
	return nil
}

// Starters returns the on-court unit at tip-off.
func (t Team) Starters() []player.Player {
	return t.Roster[:ActiveRosterSize]
}

// Bench returns the reserve players in order.
func (t Team) Bench() []player.Player {
	if len(t.Roster) <= ActiveRosterSize {
		return nil
	}
	return t.Roster[ActiveRosterSize:]
}

// PlayerByID finds a rostered player.
func (t Team) PlayerByID(id string) (player.Player, bool) {
	for _, p := range t.Roster {
		if p.ID == id {
			return p, true
		}
	}
	return player.Player{}, false
}
