package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/louisbranch/longshot/internal/platform/bus"
	"github.com/louisbranch/longshot/internal/services/league/domain/sim"
	"github.com/louisbranch/longshot/internal/services/league/storage"
)

// ErrPresentationActive reports that a replay is already running. Rounds
// never interleave on the spectator feed.
var ErrPresentationActive = errors.New("presentation already active")

// LiveGameState is the spectator-facing snapshot of the game being replayed.
type LiveGameState struct {
	GameID     string `json:"game_id"`
	HomeTeamID string `json:"home_team_id"`
	AwayTeamID string `json:"away_team_id"`
	HomeScore  int    `json:"home_score"`
	AwayScore  int    `json:"away_score"`
	Quarter    int    `json:"quarter"`
	Clock      string `json:"clock"`
	Possession int    `json:"possession"`
	LastPlay   string `json:"last_play"`
}

// Presenter replays persisted game results at human pace, publishing each
// possession on the bus. Results are durable before presentation starts, so
// a crashed replay loses nothing but theater.
type Presenter struct {
	store storage.Repository
	bus   *bus.Bus
	cfg   Config

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
	live   *LiveGameState
}

// NewPresenter builds a presenter over the same store and bus as the app.
func NewPresenter(store storage.Repository, eventBus *bus.Bus, cfg Config) *Presenter {
	return &Presenter{store: store, bus: eventBus, cfg: cfg}
}

// Active reports whether a replay is in progress. The scheduler skips ticks
// while this is true.
func (p *Presenter) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Live returns the current replay snapshot, if any.
func (p *Presenter) Live() (LiveGameState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.live == nil {
		return LiveGameState{}, false
	}
	return *p.live, true
}

// Stop cancels an in-progress replay between possessions.
func (p *Presenter) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// PresentRound replays every unpresented game of the round in order. Instant
// mode is a no-op since results persist pre-presented. The call blocks until
// the replay finishes or the context is cancelled; cancelled games are still
// marked presented so a restart never replays them.
func (p *Presenter) PresentRound(ctx context.Context, seasonID string, round int) error {
	if p.cfg.PresentationMode == ModeInstant {
		return nil
	}

	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		return ErrPresentationActive
	}
	ctx, cancel := context.WithCancel(ctx)
	p.active = true
	p.cancel = cancel
	p.mu.Unlock()

	defer func() {
		cancel()
		p.mu.Lock()
		p.active = false
		p.cancel = nil
		p.live = nil
		p.mu.Unlock()
	}()

	games, err := p.store.ListUnpresentedGames(ctx, seasonID, round)
	if err != nil {
		return fmt.Errorf("list unpresented games: %w", err)
	}

	for i, game := range games {
		if err := p.presentGame(ctx, game); err != nil {
			if errors.Is(err, context.Canceled) {
				// Mark the rest presented so the feed does not re-run them.
				for _, rest := range games[i:] {
					p.markPresented(ctx, rest.ID)
				}
				return err
			}
			return err
		}
		if i < len(games)-1 {
			if err := p.pause(ctx, time.Duration(p.cfg.GameIntervalSeconds)*time.Second); err != nil {
				return err
			}
		}
	}

	p.bus.Publish("presentation.round_finished", RoundCompleted{
		SeasonID: seasonID,
		Round:    round,
		Games:    len(games),
	})
	return nil
}

func (p *Presenter) presentGame(ctx context.Context, game storage.GameResultRecord) error {
	var result sim.Result
	if err := json.Unmarshal(game.ResultJSON, &result); err != nil {
		return fmt.Errorf("decode result %s: %w", game.ID, err)
	}

	p.bus.Publish("presentation.game_starting", LiveGameState{
		GameID:     game.ID,
		HomeTeamID: game.HomeTeamID,
		AwayTeamID: game.AwayTeamID,
	})

	perQuarter := possessionsPerQuarter(result.PlayByPlay)
	quarterBudget := time.Duration(p.cfg.QuarterReplaySeconds) * time.Second

	for _, entry := range result.PlayByPlay {
		snapshot := LiveGameState{
			GameID:     game.ID,
			HomeTeamID: game.HomeTeamID,
			AwayTeamID: game.AwayTeamID,
			HomeScore:  entry.HomeScore,
			AwayScore:  entry.AwayScore,
			Quarter:    entry.Quarter,
			Clock:      entry.Clock,
			Possession: entry.Possession,
			LastPlay:   playLine(entry),
		}
		p.mu.Lock()
		p.live = &snapshot
		p.mu.Unlock()
		p.bus.Publish("presentation.possession", snapshot)

		delay := quarterBudget
		if n := perQuarter[entry.Quarter]; n > 0 {
			delay = quarterBudget / time.Duration(n)
		}
		if err := p.pause(ctx, delay); err != nil {
			return err
		}
	}

	p.markPresented(ctx, game.ID)
	p.bus.Publish("presentation.game_finished", GameFinished{
		GameID:     game.ID,
		HomeTeamID: game.HomeTeamID,
		AwayTeamID: game.AwayTeamID,
		HomeScore:  game.HomeScore,
		AwayScore:  game.AwayScore,
		Leaders:    gameLeaders(result),
	})
	return nil
}

// GameFinished is the bus payload closing one replayed game.
type GameFinished struct {
	GameID     string       `json:"game_id"`
	HomeTeamID string       `json:"home_team_id"`
	AwayTeamID string       `json:"away_team_id"`
	HomeScore  int          `json:"home_score"`
	AwayScore  int          `json:"away_score"`
	Leaders    []GameLeader `json:"leaders"`
}

// GameLeader is one team's top scoring line from the box scores.
type GameLeader struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	TeamID   string `json:"team_id"`
	Points   int    `json:"points"`
	Rebounds int    `json:"rebounds"`
}

// gameLeaders picks each team's points leader, home side first.
func gameLeaders(result sim.Result) []GameLeader {
	best := make(map[string]sim.BoxScoreLine)
	for _, line := range result.BoxScores {
		top, ok := best[line.TeamID]
		if !ok || line.Points > top.Points {
			best[line.TeamID] = line
		}
	}
	var leaders []GameLeader
	for _, teamID := range []string{result.HomeTeamID, result.AwayTeamID} {
		line, ok := best[teamID]
		if !ok {
			continue
		}
		leaders = append(leaders, GameLeader{
			PlayerID: line.PlayerID,
			Name:     line.Name,
			TeamID:   line.TeamID,
			Points:   line.Points,
			Rebounds: line.Rebounds,
		})
	}
	return leaders
}

// pause sleeps cooperatively so Stop takes effect between possessions.
func (p *Presenter) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// markPresented flips the flag with a background context so cancellation does
// not strand the game unpresented.
func (p *Presenter) markPresented(ctx context.Context, gameID string) {
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	if err := p.store.MarkGamePresented(ctx, gameID); err != nil {
		log.Printf("mark game %s presented: %v", gameID, err)
	}
}

// RecoverStranded marks any unpresented games from the season's current
// round as presented. Called at startup so a crash mid-replay never blocks
// the next round.
func (p *Presenter) RecoverStranded(ctx context.Context, seasonID string, round int) error {
	games, err := p.store.ListUnpresentedGames(ctx, seasonID, round)
	if err != nil {
		return fmt.Errorf("list stranded games: %w", err)
	}
	for _, game := range games {
		if err := p.store.MarkGamePresented(ctx, game.ID); err != nil {
			return fmt.Errorf("recover game %s: %w", game.ID, err)
		}
		log.Printf("recovered stranded game %s from round %d", game.ID, round)
	}
	return nil
}

func possessionsPerQuarter(plays []sim.PlayByPlayEntry) map[int]int {
	counts := make(map[int]int)
	for _, entry := range plays {
		counts[entry.Quarter]++
	}
	return counts
}

func playLine(entry sim.PlayByPlayEntry) string {
	if entry.Narration != "" {
		return entry.Narration
	}
	if entry.PlayerName != "" {
		return fmt.Sprintf("%s %s %s", entry.PlayerName, entry.Action, entry.Outcome)
	}
	return fmt.Sprintf("%s %s", entry.Action, entry.Outcome)
}
