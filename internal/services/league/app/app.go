// Package app drives the league: the three-phase round orchestrator, the
// real-time presenter, and the scheduler that ticks them. It is the only
// layer that touches storage, the governance kernel, the engine, the AI
// gateway, and the event bus together.
package app

import (
	"time"

	"github.com/google/uuid"

	"github.com/louisbranch/longshot/internal/platform/bus"
	"github.com/louisbranch/longshot/internal/services/league/ai"
	"github.com/louisbranch/longshot/internal/services/league/gov"
	"github.com/louisbranch/longshot/internal/services/league/storage"
)

// Presentation modes.
const (
	ModeInstant = "instant"
	ModeReplay  = "replay"
)

// Pace names map to tick intervals; manual disables the ticker.
const (
	PaceFast   = "fast"
	PaceNormal = "normal"
	PaceSlow   = "slow"
	PaceManual = "manual"
)

// TickInterval maps a pace name to the scheduler interval. Unknown paces and
// manual return zero, meaning no automatic ticks.
func TickInterval(pace string) time.Duration {
	switch pace {
	case PaceFast:
		return time.Minute
	case PaceNormal:
		return 5 * time.Minute
	case PaceSlow:
		return 15 * time.Minute
	}
	return 0
}

// Config is the runtime tuning for the orchestrator, presenter, and
// scheduler.
type Config struct {
	PresentationMode     string
	PresentationPace     string
	QuarterReplaySeconds int
	GameIntervalSeconds  int
	EvaluationEnabled    bool
}

// App wires the round pipeline together.
type App struct {
	store     storage.Repository
	gateway   *ai.Gateway
	kernel    *gov.Kernel
	bus       *bus.Bus
	presenter *Presenter
	cfg       Config

	newID func() string
	now   func() time.Time
}

// New builds the application service. The governance kernel is constructed
// over the same store and gateway.
func New(store storage.Repository, gateway *ai.Gateway, eventBus *bus.Bus, cfg Config) *App {
	if cfg.PresentationMode == "" {
		cfg.PresentationMode = ModeReplay
	}
	if cfg.QuarterReplaySeconds <= 0 {
		cfg.QuarterReplaySeconds = 300
	}
	if cfg.GameIntervalSeconds <= 0 {
		cfg.GameIntervalSeconds = 30
	}
	a := &App{
		store:   store,
		gateway: gateway,
		kernel:  gov.New(store, gateway),
		bus:     eventBus,
		cfg:     cfg,
		newID:   uuid.NewString,
		now:     time.Now,
	}
	a.presenter = NewPresenter(store, eventBus, cfg)
	return a
}

// Kernel exposes the governance kernel for command surfaces (CLI, bots).
func (a *App) Kernel() *gov.Kernel {
	return a.kernel
}

// Presenter exposes the presenter for the scheduler and HTTP handlers.
func (a *App) Presenter() *Presenter {
	return a.presenter
}

// Bus exposes the in-process event bus.
func (a *App) Bus() *bus.Bus {
	return a.bus
}
