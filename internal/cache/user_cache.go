package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"clipstream/internal/model"
)

// UserCache keeps sanitized user projections in redis. Entries are dropped
// whenever the user's session state changes so a stale projection never
// outlives a credential mutation.
type UserCache struct {
	client     *redisv9.Client
	profileTTL time.Duration
}

func NewUserCache(client *redisv9.Client, profileTTL time.Duration) *UserCache {
	if profileTTL <= 0 {
		profileTTL = 5 * time.Minute
	}
	return &UserCache{
		client:     client,
		profileTTL: profileTTL,
	}
}

func (c *UserCache) Get(ctx context.Context, userID uint) (*model.PublicUser, bool, error) {
	raw, err := c.client.Get(ctx, c.profileKey(userID)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get user profile failed: %w", err)
	}

	var user model.PublicUser
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached user profile failed: %w", err)
	}
	return &user, true, nil
}

func (c *UserCache) Set(ctx context.Context, user *model.PublicUser) error {
	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user profile cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.profileKey(user.ID), payload, c.profileTTL).Err(); err != nil {
		return fmt.Errorf("redis set user profile failed: %w", err)
	}
	return nil
}

func (c *UserCache) Delete(ctx context.Context, userID uint) error {
	if err := c.client.Del(ctx, c.profileKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete user profile failed: %w", err)
	}
	return nil
}

func (c *UserCache) profileKey(userID uint) string {
	return fmt.Sprintf("user:profile:%d", userID)
}
