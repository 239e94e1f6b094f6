// Package storage defines the persistence boundary for the league service:
// record shapes, store interfaces, and the sentinel errors callers branch on.
// The sqlite subpackage is the embedded single-writer implementation.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/longshot/internal/services/league/domain/event"
)

// ErrNotFound indicates a requested persistence record is missing. Callers
// use this to differentiate legitimate "no such entity" states from transport
// or data corruption failures.
var ErrNotFound = errors.New("record not found")

// ErrConflict indicates an event append collided on a sequence number. Under
// the single-writer session this should be impossible; it surfaces as fatal.
var ErrConflict = errors.New("event sequence conflict")

// LeagueRecord is the top-level container row.
type LeagueRecord struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// SeasonRecord carries the season row: phase, round cursor, both rule set
// copies, and the free-form lifecycle blob.
type SeasonRecord struct {
	ID                string
	LeagueID          string
	Number            int
	Name              string
	Phase             string
	CurrentRound      int
	StartingRulesJSON []byte
	CurrentRulesJSON  []byte
	LifecycleJSON     []byte
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TeamRecord carries a team row. MetaJSON is the governance-installed
// key/value overlay flushed at round end.
type TeamRecord struct {
	ID        string
	SeasonID  string
	Name      string
	Emoji     string
	VenueJSON []byte
	MetaJSON  []byte
}

// PlayerRecord carries a player row. Attributes are the immutable base
// vector; MetaJSON is the per-season overlay.
type PlayerRecord struct {
	ID             string
	TeamID         string
	SeasonID       string
	Name           string
	Archetype      string
	Backstory      string
	RosterOrder    int
	AttributesJSON []byte
	MovesJSON      []byte
	MetaJSON       []byte
}

// EnrollmentRecord binds a governor to a team for a season.
type EnrollmentRecord struct {
	GovernorID  string
	SeasonID    string
	TeamID      string
	DisplayName string
	Active      bool
	CreatedAt   time.Time
}

// ScheduledGameRecord is one fixture row.
type ScheduledGameRecord struct {
	ID         string
	SeasonID   string
	Round      int
	HomeTeamID string
	AwayTeamID string
	Played     bool
}

// GameResultRecord is a durable simulated game. ResultJSON is the engine's
// full result encoding; Presented gates visibility during replay.
type GameResultRecord struct {
	ID         string
	SeasonID   string
	Round      int
	HomeTeamID string
	AwayTeamID string
	HomeScore  int
	AwayScore  int
	Seed       int64
	ResultJSON []byte
	Presented  bool
	CreatedAt  time.Time
}

// BoxScoreRecord is one player's stat line for one game.
type BoxScoreRecord struct {
	GameID   string
	PlayerID string
	TeamID   string
	LineJSON []byte
}

// Report kinds.
const (
	ReportCommentary = "commentary"
	ReportHighlights = "highlights"
	ReportSimulation = "simulation"
	ReportGovernance = "governance"
	ReportPrivate    = "private"
)

// ReportRecord is one generated narrative artifact.
type ReportRecord struct {
	ID         string
	SeasonID   string
	Round      int
	Kind       string
	GameID     string
	GovernorID string
	Body       string
	Mock       bool
	CreatedAt  time.Time
}

// EffectRecord mirrors a registered effect for fast active-set loads. The
// event log remains authoritative.
type EffectRecord struct {
	ID              string
	SeasonID        string
	ProposalID      string
	SpecJSON        []byte
	ActivationRound int
	ExpirationRound int
	CreatedAt       time.Time
}

// AIUsageRecord is one gateway call's accounting row, independent of the
// governance log.
type AIUsageRecord struct {
	ID           string
	Purpose      string
	Model        string
	InputTokens  int
	OutputTokens int
	CacheTokens  int
	LatencyMS    int64
	Mock         bool
	CreatedAt    time.Time
}

// SeasonArchiveRecord snapshots a completed season.
type SeasonArchiveRecord struct {
	SeasonID    string
	SummaryJSON []byte
	ArchivedAt  time.Time
}

// LeagueStore owns the league and season rows.
type LeagueStore interface {
	PutLeague(ctx context.Context, l LeagueRecord) error
	GetLeague(ctx context.Context, id string) (LeagueRecord, error)
	PutSeason(ctx context.Context, s SeasonRecord) error
	GetSeason(ctx context.Context, id string) (SeasonRecord, error)
	// GetActiveSeason returns the most recent season not in COMPLETE phase,
	// or the latest season when all are complete.
	GetActiveSeason(ctx context.Context) (SeasonRecord, error)
	ArchiveSeason(ctx context.Context, a SeasonArchiveRecord) error
}

// RosterStore owns teams, players, and governor enrollment.
type RosterStore interface {
	PutTeam(ctx context.Context, t TeamRecord) error
	GetTeam(ctx context.Context, id string) (TeamRecord, error)
	ListTeams(ctx context.Context, seasonID string) ([]TeamRecord, error)
	UpdateTeamMeta(ctx context.Context, id string, metaJSON []byte) error

	PutPlayer(ctx context.Context, p PlayerRecord) error
	ListPlayers(ctx context.Context, teamID string) ([]PlayerRecord, error)
	UpdatePlayerMeta(ctx context.Context, id string, metaJSON []byte) error

	PutEnrollment(ctx context.Context, e EnrollmentRecord) error
	ListEnrollments(ctx context.Context, seasonID string) ([]EnrollmentRecord, error)
}

// ScheduleStore owns fixtures.
type ScheduleStore interface {
	PutScheduledGames(ctx context.Context, games []ScheduledGameRecord) error
	ListScheduledGames(ctx context.Context, seasonID string, round int) ([]ScheduledGameRecord, error)
	MarkScheduledGamePlayed(ctx context.Context, id string) error
}

// EventStore is the append-only governance log boundary. AppendEvent assigns
// the next per-season sequence number atomically with insertion.
type EventStore interface {
	AppendEvent(ctx context.Context, evt event.Event) (event.Event, error)
	ListEvents(ctx context.Context, seasonID string, afterSeq uint64, limit int) ([]event.Event, error)
	ListEventsByType(ctx context.Context, seasonID string, eventType event.Type) ([]event.Event, error)
	ListEventsByAggregate(ctx context.Context, seasonID, aggregateID string) ([]event.Event, error)
	LatestSeq(ctx context.Context, seasonID string) (uint64, error)
}

// GameStore owns durable game results and box scores.
type GameStore interface {
	PutGameResult(ctx context.Context, g GameResultRecord, boxScores []BoxScoreRecord) error
	GetGameResult(ctx context.Context, id string) (GameResultRecord, error)
	// ListGameResults returns one round's games; a negative round returns
	// the whole season in round order.
	ListGameResults(ctx context.Context, seasonID string, round int) ([]GameResultRecord, error)
	ListUnpresentedGames(ctx context.Context, seasonID string, round int) ([]GameResultRecord, error)
	MarkGamePresented(ctx context.Context, id string) error
	ListBoxScores(ctx context.Context, gameID string) ([]BoxScoreRecord, error)
}

// ReportStore owns generated narrative artifacts.
type ReportStore interface {
	PutReport(ctx context.Context, r ReportRecord) error
	ListReports(ctx context.Context, seasonID string, round int) ([]ReportRecord, error)
}

// EffectStore mirrors the effect registry for fast loads.
type EffectStore interface {
	PutEffect(ctx context.Context, e EffectRecord) error
	ListEffects(ctx context.Context, seasonID string) ([]EffectRecord, error)
}

// UsageStore owns the AI usage log.
type UsageStore interface {
	PutAIUsage(ctx context.Context, u AIUsageRecord) error
	ListAIUsage(ctx context.Context, limit int) ([]AIUsageRecord, error)
}

// LeaseStore owns the bot_state singleton guard. A lease key may be held by
// one holder at a time until its expiry.
type LeaseStore interface {
	// AcquireLease takes or renews the lease when it is free, expired, or
	// already held by holder. Reports whether the lease is now held.
	AcquireLease(ctx context.Context, key, holder string, ttl time.Duration, now time.Time) (bool, error)
	ReleaseLease(ctx context.Context, key, holder string) error
}

// Repository is the full persistence facade the application layer consumes.
type Repository interface {
	LeagueStore
	RosterStore
	ScheduleStore
	EventStore
	GameStore
	ReportStore
	EffectStore
	UsageStore
	LeaseStore
}
