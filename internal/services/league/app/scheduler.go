package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// leaseKey is the bot_state singleton guard shared by every process ticking
// the same database.
const leaseKey = "scheduler"

// ErrTickSkipped reports a tick that did not run: another tick or a replay
// was in progress, or the lease is held elsewhere.
var ErrTickSkipped = errors.New("tick skipped")

// Scheduler drives rounds on a wall-clock cadence. Exactly one scheduler per
// database makes progress; the rest park on the lease.
type Scheduler struct {
	app    *App
	holder string
	ttl    time.Duration

	mu      sync.Mutex
	ticking bool
}

// NewScheduler builds a scheduler with a process-unique lease holder id.
func NewScheduler(a *App) *Scheduler {
	interval := TickInterval(a.cfg.PresentationPace)
	ttl := 2 * interval
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Scheduler{app: a, holder: uuid.NewString(), ttl: ttl}
}

// Run ticks until the context is cancelled. Manual pace never ticks; the
// loop just waits for shutdown while Step remains callable. Stranded replay
// state from a previous crash is recovered before the first tick.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.recover(ctx); err != nil {
		log.Printf("scheduler: startup recovery: %v", err)
	}

	interval := TickInterval(s.app.cfg.PresentationPace)
	if interval <= 0 {
		log.Printf("scheduler: manual pace, waiting for explicit steps")
		<-ctx.Done()
		s.release()
		return ctx.Err()
	}

	log.Printf("scheduler: ticking every %s as %s", interval, s.holder)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.release()
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Step(ctx); err != nil && !errors.Is(err, ErrTickSkipped) {
				log.Printf("scheduler: tick failed: %v", err)
			}
		}
	}
}

// Step runs one round now. Reentrancy is refused rather than queued: a tick
// that lands during a long round or replay is simply dropped, and the next
// tick picks up where the season cursor points.
func (s *Scheduler) Step(ctx context.Context) (*RoundSummary, error) {
	s.mu.Lock()
	if s.ticking {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: previous tick still running", ErrTickSkipped)
	}
	s.ticking = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.ticking = false
		s.mu.Unlock()
	}()

	if s.app.presenter.Active() {
		return nil, fmt.Errorf("%w: presentation in progress", ErrTickSkipped)
	}

	held, err := s.app.store.AcquireLease(ctx, leaseKey, s.holder, s.ttl, s.app.now())
	if err != nil {
		return nil, fmt.Errorf("acquire lease: %w", err)
	}
	if !held {
		return nil, fmt.Errorf("%w: lease held elsewhere", ErrTickSkipped)
	}

	summary, err := s.app.RunRound(ctx)
	if err != nil {
		return summary, err
	}

	if s.app.cfg.PresentationMode == ModeReplay && len(summary.Games) > 0 {
		if err := s.app.presenter.PresentRound(ctx, summary.SeasonID, summary.Round); err != nil {
			log.Printf("scheduler: presentation of round %d: %v", summary.Round, err)
		}
	}
	return summary, nil
}

// recover marks games stranded mid-replay by a crash as presented.
func (s *Scheduler) recover(ctx context.Context) error {
	rec, err := s.app.store.GetActiveSeason(ctx)
	if err != nil {
		return err
	}
	return s.app.presenter.RecoverStranded(ctx, rec.ID, rec.CurrentRound)
}

// release drops the lease on shutdown so a successor can take over without
// waiting out the TTL.
func (s *Scheduler) release() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.app.store.ReleaseLease(ctx, leaseKey, s.holder); err != nil {
		log.Printf("scheduler: release lease: %v", err)
	}
}
