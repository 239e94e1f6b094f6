// Package league parses league command flags and dispatches the simulator
// subcommands: serve, seed, step, and the governance verbs.
package league

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/louisbranch/longshot/internal/platform/bus"
	"github.com/louisbranch/longshot/internal/platform/config"
	"github.com/louisbranch/longshot/internal/platform/otel"
	"github.com/louisbranch/longshot/internal/services/league/ai"
	"github.com/louisbranch/longshot/internal/services/league/app"
	"github.com/louisbranch/longshot/internal/services/league/domain/event"
	"github.com/louisbranch/longshot/internal/services/league/domain/proposal"
	"github.com/louisbranch/longshot/internal/services/league/domain/token"
	"github.com/louisbranch/longshot/internal/services/league/gov"
	"github.com/louisbranch/longshot/internal/services/league/storage/sqlite"
)

// Config holds league command configuration.
type Config struct {
	DBPath               string `env:"LONGSHOT_DB_PATH" envDefault:"longshot.db"`
	AnthropicAPIKey      string `env:"LONGSHOT_ANTHROPIC_API_KEY"`
	AnthropicModel       string `env:"LONGSHOT_ANTHROPIC_MODEL" envDefault:"claude-sonnet-4-5"`
	PresentationMode     string `env:"LONGSHOT_PRESENTATION_MODE" envDefault:"replay"`
	Pace                 string `env:"LONGSHOT_PACE" envDefault:"normal"`
	QuarterReplaySeconds int    `env:"LONGSHOT_QUARTER_REPLAY_SECONDS" envDefault:"300"`
	GameIntervalSeconds  int    `env:"LONGSHOT_GAME_INTERVAL_SECONDS" envDefault:"30"`
	GovernanceAdminID    string `env:"LONGSHOT_GOVERNANCE_ADMIN_ID"`
	EvaluationEnabled    bool   `env:"LONGSHOT_EVALUATION_ENABLED" envDefault:"false"`

	Otel otel.Config

	args []string
}

// ParseConfig parses environment and flags into a Config. Positional
// arguments after the flags select the subcommand.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.PresentationMode, "mode", cfg.PresentationMode, "Presentation mode: instant or replay")
	fs.StringVar(&cfg.Pace, "pace", cfg.Pace, "Scheduler pace: fast, normal, slow, or manual")
	fs.BoolVar(&cfg.EvaluationEnabled, "evaluate", cfg.EvaluationEnabled, "Run the balance evaluator each round")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.args = fs.Args()
	return cfg, nil
}

// Run opens storage, builds the application, and dispatches the subcommand.
func Run(ctx context.Context, cfg Config) error {
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	defer store.Close()

	var client ai.Generator
	if cfg.AnthropicAPIKey != "" {
		client, err = ai.NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		if err != nil {
			return fmt.Errorf("anthropic client: %w", err)
		}
	} else {
		log.Printf("no API key configured, running on the deterministic mock")
	}
	gateway := ai.NewGateway(client, store)

	a := app.New(store, gateway, bus.New(), app.Config{
		PresentationMode:     cfg.PresentationMode,
		PresentationPace:     cfg.Pace,
		QuarterReplaySeconds: cfg.QuarterReplaySeconds,
		GameIntervalSeconds:  cfg.GameIntervalSeconds,
		EvaluationEnabled:    cfg.EvaluationEnabled,
	})

	if len(cfg.args) == 0 {
		return usageError()
	}
	command, rest := cfg.args[0], cfg.args[1:]
	switch command {
	case "serve":
		shutdown, err := otel.Setup(ctx, "longshot", cfg.Otel)
		if err != nil {
			return fmt.Errorf("otel setup: %w", err)
		}
		defer shutdown(context.Background())
		return app.NewScheduler(a).Run(ctx)
	case "seed":
		return runSeed(ctx, a, rest)
	case "step":
		return runStep(ctx, a, rest)
	case "enroll":
		return runEnroll(ctx, a, rest)
	case "propose":
		return runPropose(ctx, a, rest)
	case "vote":
		return runVote(ctx, a, rest)
	case "amend":
		return runAmend(ctx, a, rest)
	case "veto":
		return runVeto(ctx, a, cfg.GovernanceAdminID, rest)
	case "clear-review":
		return runClearReview(ctx, a, cfg.GovernanceAdminID, rest)
	case "strategy":
		return runStrategy(ctx, a, rest)
	case "trade":
		return runTrade(ctx, a, rest)
	case "standings":
		return runStandings(ctx, a)
	case "ask":
		return runAsk(ctx, a, rest)
	}
	return usageError()
}

func usageError() error {
	return errors.New("usage: longshot [flags] <serve|seed|step|enroll|propose|vote|amend|veto|clear-review|strategy|trade|standings|ask> ...")
}

func runSeed(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	name := fs.String("name", "Longshot League", "League name")
	teams := fs.Int("teams", 4, "Number of teams")
	rounds := fs.Int("rounds", 0, "Regular season rounds (0 derives from the schedule)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	seasonID, err := a.Seed(ctx, app.SeedParams{
		LeagueName:          *name,
		Teams:               *teams,
		RegularSeasonRounds: *rounds,
	})
	if err != nil {
		return err
	}
	fmt.Println(seasonID)
	return nil
}

func runStep(ctx context.Context, a *app.App, args []string) error {
	steps := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("step count must be a positive integer, got %q", args[0])
		}
		steps = n
	}
	for i := 0; i < steps; i++ {
		summary, err := a.RunRound(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("round %d: %d games, %d tallies, %d reports (%s)\n",
			summary.Round, len(summary.Games), len(summary.Tallies), len(summary.Reports), summary.Phase)
	}
	return nil
}

func runEnroll(ctx context.Context, a *app.App, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: enroll <governor-id> <team-id> [display-name]")
	}
	rec, err := a.ActiveSeason(ctx)
	if err != nil {
		return err
	}
	displayName := ""
	if len(args) > 2 {
		displayName = args[2]
	}
	return a.Enroll(ctx, rec.ID, args[0], args[1], displayName)
}

func runPropose(ctx context.Context, a *app.App, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: propose <governor-id> <text>")
	}
	rec, err := a.ActiveSeason(ctx)
	if err != nil {
		return err
	}
	teamID, err := a.GovernorTeam(ctx, rec.ID, args[0])
	if err != nil {
		return err
	}
	outcome, err := a.Kernel().Submit(ctx, rec.ID, rec.CurrentRound, args[0], teamID, args[1])
	if err != nil {
		return err
	}
	fmt.Printf("%s %s %s\n", outcome.Status, outcome.ProposalID, outcome.Reason)
	return nil
}

func runVote(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("vote", flag.ContinueOnError)
	boost := fs.Bool("boost", false, "Spend a BOOST token to double this vote")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 3 {
		return errors.New("usage: vote [-boost] <governor-id> <proposal-id> <yes|no>")
	}
	rec, err := a.ActiveSeason(ctx)
	if err != nil {
		return err
	}
	return a.Kernel().Vote(ctx, rec.ID, rec.CurrentRound, rest[1], rest[0], rest[2], *boost)
}

func runAmend(ctx context.Context, a *app.App, args []string) error {
	if len(args) < 3 {
		return errors.New("usage: amend <governor-id> <proposal-id> <text>")
	}
	rec, err := a.ActiveSeason(ctx)
	if err != nil {
		return err
	}
	outcome, err := a.Amend(ctx, rec.ID, rec.CurrentRound, args[1], args[0], strings.Join(args[2:], " "))
	if err != nil {
		return err
	}
	fmt.Printf("%s %s %s\n", outcome.Status, outcome.ProposalID, outcome.Reason)
	return nil
}

func runVeto(ctx context.Context, a *app.App, adminID string, args []string) error {
	if adminID == "" {
		return errors.New("veto requires LONGSHOT_GOVERNANCE_ADMIN_ID")
	}
	if len(args) < 1 {
		return errors.New("usage: veto <proposal-id> [reason]")
	}
	rec, err := a.ActiveSeason(ctx)
	if err != nil {
		return err
	}
	reason := strings.Join(args[1:], " ")
	return a.Kernel().Veto(ctx, rec.ID, rec.CurrentRound, args[0], adminID, reason)
}

func runClearReview(ctx context.Context, a *app.App, adminID string, args []string) error {
	if adminID == "" {
		return errors.New("clear-review requires LONGSHOT_GOVERNANCE_ADMIN_ID")
	}
	if len(args) < 1 {
		return errors.New("usage: clear-review <proposal-id>")
	}
	rec, err := a.ActiveSeason(ctx)
	if err != nil {
		return err
	}
	return a.Kernel().ClearReview(ctx, rec.ID, rec.CurrentRound, args[0], adminID)
}

func runStrategy(ctx context.Context, a *app.App, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: strategy <governor-id> <text>")
	}
	rec, err := a.ActiveSeason(ctx)
	if err != nil {
		return err
	}
	interpreted, err := a.Kernel().SetStrategy(ctx, rec.ID, rec.CurrentRound, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("%s: pace=%s defense=%.2f three=%.2f rim=%.2f (%s)\n",
		interpreted.TeamID, interpreted.Pace, interpreted.DefensiveIntensity,
		interpreted.ThreePointBias, interpreted.RimBias, interpreted.Summary)
	return nil
}

func runTrade(ctx context.Context, a *app.App, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: trade <offer|accept|reject> ...")
	}
	rec, err := a.ActiveSeason(ctx)
	if err != nil {
		return err
	}
	kernel := a.Kernel()
	switch args[0] {
	case "offer":
		if len(args) < 5 {
			return errors.New("usage: trade offer <from-governor> <to-governor> <offered-player> <wanted-player>")
		}
		tradeID, err := kernel.OfferTrade(ctx, rec.ID, rec.CurrentRound, event.TradePayload{
			FromGovernorID:   args[1],
			ToGovernorID:     args[2],
			OfferedPlayerIDs: []string{args[3]},
			WantedPlayerIDs:  []string{args[4]},
		})
		if err != nil {
			return err
		}
		fmt.Println(tradeID)
		return nil
	case "accept", "reject":
		if len(args) < 3 {
			return fmt.Errorf("usage: trade %s <governor-id> <trade-id>", args[0])
		}
		return kernel.RespondTrade(ctx, rec.ID, rec.CurrentRound, args[2], args[1], args[0] == "accept")
	}
	return errors.New("usage: trade <offer|accept|reject> ...")
}

func runStandings(ctx context.Context, a *app.App) error {
	rec, err := a.ActiveSeason(ctx)
	if err != nil {
		return err
	}
	table, err := a.Standings(ctx, rec.ID)
	if err != nil {
		return err
	}
	for i, line := range table {
		fmt.Printf("%2d. %s  %d-%d  %+d\n", i+1, line.TeamID, line.Wins, line.Losses, line.PointDiff)
	}
	return nil
}

func runAsk(ctx context.Context, a *app.App, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: ask <question>")
	}
	answer, err := a.Ask(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Println(answer)
	return nil
}

// ExitCode maps a command error onto the shared CLI exit codes.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return config.ExitOK
	case errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, proposal.ErrNotOpen),
		errors.Is(err, proposal.ErrDuplicateVote),
		errors.Is(err, proposal.ErrSelfAmendment),
		errors.Is(err, proposal.ErrAmendmentCap),
		errors.Is(err, gov.ErrInvalidTrade),
		errors.Is(err, gov.ErrTradeClosed),
		errors.Is(err, gov.ErrNotTradePartner):
		return config.ExitGovernance
	default:
		return config.ExitStorage
	}
}
