// Package meta provides the scoped key/value overlay attached to teams and
// players. Effects read and write it during a round; it is the only channel
// by which effects observe state across possessions.
//
// Buckets are keyed (entity kind, entity id) within a season. The store is
// loaded from durable JSON columns at round start, mutated in memory, and
// flushed once at round end.
package meta

import (
	"encoding/json"
	"fmt"
	"sort"
)

// EntityKind scopes a bucket to its owning entity type.
type EntityKind string

const (
	// KindTeam scopes a bucket to a team.
	KindTeam EntityKind = "team"
	// KindPlayer scopes a bucket to a player.
	KindPlayer EntityKind = "player"
)

// Key identifies a bucket.
type Key struct {
	Kind EntityKind
	ID   string
}

// Store is the per-round in-memory snapshot of every bucket.
type Store struct {
	seasonID string
	buckets  map[Key]map[string]any
	dirty    map[Key]bool
}

// NewStore returns an empty store for a season.
func NewStore(seasonID string) *Store {
	return &Store{
		seasonID: seasonID,
		buckets:  make(map[Key]map[string]any),
		dirty:    make(map[Key]bool),
	}
}

// SeasonID reports the season the store is scoped to.
func (s *Store) SeasonID() string {
	return s.seasonID
}

// Load replaces a bucket from its durable JSON encoding. Empty or nil data
// loads an empty bucket.
func (s *Store) Load(kind EntityKind, entityID string, data []byte) error {
	bucket := make(map[string]any)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &bucket); err != nil {
			return fmt.Errorf("load meta %s/%s: %w", kind, entityID, err)
		}
	}
	s.buckets[Key{Kind: kind, ID: entityID}] = bucket
	return nil
}

// Get returns a value from a bucket.
func (s *Store) Get(kind EntityKind, entityID, key string) (any, bool) {
	bucket, ok := s.buckets[Key{Kind: kind, ID: entityID}]
	if !ok {
		return nil, false
	}
	value, ok := bucket[key]
	return value, ok
}

// GetNumber returns a numeric value from a bucket, defaulting to zero.
func (s *Store) GetNumber(kind EntityKind, entityID, key string) float64 {
	value, ok := s.Get(kind, entityID, key)
	if !ok {
		return 0
	}
	switch v := value.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// Set writes a value into a bucket, creating the bucket when absent, and
// marks it dirty for the round-end flush.
func (s *Store) Set(kind EntityKind, entityID, key string, value any) {
	bucketKey := Key{Kind: kind, ID: entityID}
	bucket, ok := s.buckets[bucketKey]
	if !ok {
		bucket = make(map[string]any)
		s.buckets[bucketKey] = bucket
	}
	bucket[key] = value
	s.dirty[bucketKey] = true
}

// Add increments a numeric value in a bucket.
func (s *Store) Add(kind EntityKind, entityID, key string, delta float64) {
	current := s.GetNumber(kind, entityID, key)
	s.Set(kind, entityID, key, current+delta)
}

// Dirty returns the keys of buckets mutated since load, in stable order.
func (s *Store) Dirty() []Key {
	keys := make([]Key, 0, len(s.dirty))
	for key := range s.dirty {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].ID < keys[j].ID
	})
	return keys
}

// Marshal encodes a bucket for durable storage.
func (s *Store) Marshal(kind EntityKind, entityID string) ([]byte, error) {
	bucket, ok := s.buckets[Key{Kind: kind, ID: entityID}]
	if !ok {
		bucket = map[string]any{}
	}
	data, err := json.Marshal(bucket)
	if err != nil {
		return nil, fmt.Errorf("marshal meta %s/%s: %w", kind, entityID, err)
	}
	return data, nil
}
