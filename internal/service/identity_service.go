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

// IdentityService caches examinee profiles refreshed by submissions so a
// reconnecting page sees the unlocked level without a new login.
type IdentityService struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewIdentityService creates a new IdentityService.
func NewIdentityService(rdb *redis.Client, ttl time.Duration) *IdentityService {
	return &IdentityService{rdb: rdb, ttl: ttl}
}

// UpdateProfile stores the latest profile of an examinee.
func (s *IdentityService) UpdateProfile(ctx context.Context, profile model.ExamineeProfile) error {
	if profile.Username == "" {
		return errors.New("profile has no username")
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.ExamineeProfileKey(profile.Username), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store profile: %w", err)
	}
	return nil
}

// GetProfile returns the cached profile of username, or nil if none is cached.
func (s *IdentityService) GetProfile(ctx context.Context, username string) (*model.ExamineeProfile, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.ExamineeProfileKey(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	var profile model.ExamineeProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &profile, nil
}
