package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrSnapshotNotFound is returned when no snapshot is cached for a session.
var ErrSnapshotNotFound = errors.New("session snapshot not found")

// SnapshotService keeps the latest snapshot of every session in Redis so an
// examinee can see the outcome of a session after the socket closed.
type SnapshotService struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSnapshotService creates a new SnapshotService.
func NewSnapshotService(rdb *redis.Client, ttl time.Duration) *SnapshotService {
	return &SnapshotService{rdb: rdb, ttl: ttl}
}

// Save stores snapshot and points the examinee's active session at it.
func (s *SnapshotService) Save(ctx context.Context, snapshot model.SessionSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	sessionID := snapshot.Session.SessionID.String()
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.SessionSnapshotKey(sessionID), data, s.ttl)
	if snapshot.Session.Examinee != "" {
		pipe.Set(ctx, config.CacheKey.ExamineeActiveSessionKey(snapshot.Session.Examinee), sessionID, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// Get returns the latest snapshot of sessionID.
func (s *SnapshotService) Get(ctx context.Context, sessionID string) (*model.SessionSnapshot, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.SessionSnapshotKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}

	var snap model.SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// GetActive returns the latest snapshot of the session username sat last.
func (s *SnapshotService) GetActive(ctx context.Context, username string) (*model.SessionSnapshot, error) {
	sessionID, err := s.rdb.Get(ctx, config.CacheKey.ExamineeActiveSessionKey(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("get active session: %w", err)
	}
	return s.Get(ctx, sessionID)
}

// GetMany returns the cached snapshots of sessionIDs keyed by session id.
// Sessions without a snapshot are left out.
func (s *SnapshotService) GetMany(ctx context.Context, sessionIDs []string) (map[string]model.SessionSnapshot, error) {
	out := make(map[string]model.SessionSnapshot, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return out, nil
	}

	keys := make([]string, len(sessionIDs))
	for i, id := range sessionIDs {
		keys[i] = config.CacheKey.SessionSnapshotKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("get snapshots: %w", err)
	}

	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var snap model.SessionSnapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			continue
		}
		out[sessionIDs[i]] = snap
	}
	return out, nil
}
