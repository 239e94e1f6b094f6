package effect

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/louisbranch/longshot/internal/services/league/domain/meta"
)

// Context is the unified evaluation context an effect fires against. Field
// paths resolve through a single generic resolver, so new fields become
// queryable without evaluator changes:
//
//	event.*         fields on the current hook event
//	game.*          game-level state
//	player.*        the current player (ball handler)
//	player:{id}.*   any player by id
//	team:{id}.*     any team by id
//	meta.{kind}.{key}  meta bucket of the current scope entity
type Context struct {
	// Event holds the mutable payload of the hook event being fired.
	Event map[string]any
	// Game holds game-level state fields.
	Game map[string]any
	// Player holds the current player's state, when a possession is in flight.
	Player map[string]any
	// PlayerID is the current player's id, used to resolve meta paths.
	PlayerID string
	// Players indexes every participating player's state by id.
	Players map[string]map[string]any
	// Teams indexes team state by id.
	Teams map[string]map[string]any
	// TeamID is the offense team id, used to resolve meta paths.
	TeamID string
	// Meta is the season's key/value overlay. Nil outside rounds.
	Meta *meta.Store
	// Rand is the game RNG. Conditions and expressions draw from it so
	// effect randomness stays inside the seed's reach.
	Rand *rand.Rand

	// Narration accumulates commentary lines appended by narrative actions.
	Narration []string
	// Scores accumulates points credited by score actions. The engine
	// applies them after the hook fires.
	Scores []ScoreCredit
	// Emitted accumulates sub-events raised by emit and emit_n actions.
	Emitted []SubEvent
	// BlockDefault suppresses lower-priority effects for this hook event.
	BlockDefault bool
	// BlockEvent cancels propagation of the hook event entirely.
	BlockEvent bool
}

// SubEvent is raised by emit and emit_n actions for the engine to process.
type SubEvent struct {
	Name    string
	Payload map[string]any
}

// Resolve returns the value at a namespaced field path.
func (c *Context) Resolve(path string) (any, error) {
	head, rest, _ := strings.Cut(path, ".")

	switch {
	case head == "event":
		return lookup(c.Event, rest, path)
	case head == "game":
		return lookup(c.Game, rest, path)
	case head == "player":
		return lookup(c.Player, rest, path)
	case strings.HasPrefix(head, "player:"):
		id := strings.TrimPrefix(head, "player:")
		return lookup(c.Players[id], rest, path)
	case strings.HasPrefix(head, "team:"):
		id := strings.TrimPrefix(head, "team:")
		return lookup(c.Teams[id], rest, path)
	case head == "meta":
		return c.resolveMeta(rest, path)
	}
	return nil, fmt.Errorf("unknown path namespace %q in %q", head, path)
}

// ResolveNumber resolves a path and coerces the value to float64.
func (c *Context) ResolveNumber(path string) (float64, error) {
	value, err := c.Resolve(path)
	if err != nil {
		return 0, err
	}
	number, ok := toNumber(value)
	if !ok {
		return 0, fmt.Errorf("path %q is not numeric (%T)", path, value)
	}
	return number, nil
}

func (c *Context) resolveMeta(rest, full string) (any, error) {
	if c.Meta == nil {
		return nil, nil
	}
	kind, key, ok := strings.Cut(rest, ".")
	if !ok {
		return nil, fmt.Errorf("meta path %q needs kind and key", full)
	}
	switch meta.EntityKind(kind) {
	case meta.KindTeam:
		value, _ := c.Meta.Get(meta.KindTeam, c.TeamID, key)
		return value, nil
	case meta.KindPlayer:
		value, _ := c.Meta.Get(meta.KindPlayer, c.PlayerID, key)
		return value, nil
	}
	return nil, fmt.Errorf("meta path %q has unknown kind %q", full, kind)
}

// SetPath writes a value at a namespaced field path. Only event, game,
// player, player:{id}, team:{id}, and meta paths are writable.
func (c *Context) SetPath(path string, value any) error {
	head, rest, _ := strings.Cut(path, ".")

	switch {
	case head == "event":
		return store(&c.Event, rest, value, path)
	case head == "game":
		return store(&c.Game, rest, value, path)
	case head == "player":
		return store(&c.Player, rest, value, path)
	case strings.HasPrefix(head, "player:"):
		id := strings.TrimPrefix(head, "player:")
		bucket := c.Players[id]
		if bucket == nil {
			return fmt.Errorf("unknown player %q in %q", id, path)
		}
		bucket[rest] = value
		return nil
	case strings.HasPrefix(head, "team:"):
		id := strings.TrimPrefix(head, "team:")
		bucket := c.Teams[id]
		if bucket == nil {
			return fmt.Errorf("unknown team %q in %q", id, path)
		}
		bucket[rest] = value
		return nil
	case head == "meta":
		return c.setMeta(rest, value, path)
	}
	return fmt.Errorf("path %q is not writable", path)
}

func (c *Context) setMeta(rest string, value any, full string) error {
	if c.Meta == nil {
		return fmt.Errorf("meta store unavailable for %q", full)
	}
	kind, key, ok := strings.Cut(rest, ".")
	if !ok {
		return fmt.Errorf("meta path %q needs kind and key", full)
	}
	switch meta.EntityKind(kind) {
	case meta.KindTeam:
		c.Meta.Set(meta.KindTeam, c.TeamID, key, value)
	case meta.KindPlayer:
		c.Meta.Set(meta.KindPlayer, c.PlayerID, key, value)
	default:
		return fmt.Errorf("meta path %q has unknown kind %q", full, kind)
	}
	return nil
}

func lookup(bucket map[string]any, key, full string) (any, error) {
	if bucket == nil {
		return nil, fmt.Errorf("path %q has no backing state", full)
	}
	value, ok := bucket[key]
	if !ok {
		return nil, nil
	}
	return value, nil
}

func store(bucket *map[string]any, key string, value any, full string) error {
	if key == "" {
		return fmt.Errorf("path %q needs a field name", full)
	}
	if *bucket == nil {
		*bucket = make(map[string]any)
	}
	(*bucket)[key] = value
	return nil
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case nil:
		return 0, true
	}
	return 0, false
}
