// Package session provides redis-backed autosave snapshots for live editor
// sessions. Sessions themselves live in process memory; the snapshot is
// what survives a server restart.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no snapshot exists for a session.
var ErrNotFound = errors.New("session: no autosave snapshot")

// Snapshot is the autosaved state of one editor session.
type Snapshot struct {
	Title   string    `json:"title"`
	Markup  string    `json:"markup"`
	SavedAt time.Time `json:"saved_at"`
}

// Store writes session snapshots to redis with a TTL so abandoned sessions
// age out on their own.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewStore connects to redis and verifies the connection.
func NewStore(redisURL string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Store{client: client, prefix: "autosave:", ttl: ttl}, nil
}

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID
}

// Save writes the snapshot for a session, refreshing its TTL.
func (s *Store) Save(ctx context.Context, sessionID string, snap Snapshot) error {
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now()
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load reads a session's snapshot. ErrNotFound when none exists or it has
// expired.
func (s *Store) Load(ctx context.Context, sessionID string) (Snapshot, error) {
	payload, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// Delete drops a session's snapshot. Deleting a missing snapshot is not an
// error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// Ping checks if redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
