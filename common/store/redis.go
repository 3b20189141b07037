package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/guarzo/gymapi/common"
	"github.com/guarzo/gymapi/common/model"
)

const defaultRedisPrefix = "gym"

var _ common.SessionStore = (*Redis)(nil)

// Redis keeps the session under <prefix>:auth_token and <prefix>:user.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &Redis{redis: client, prefix: prefix}
}

func (r *Redis) tokenKey() string { return r.prefix + ":auth_token" }
func (r *Redis) userKey() string  { return r.prefix + ":user" }

func (r *Redis) Get(ctx context.Context) (*oauth2.Token, error) {
	var record tokenRecord
	if err := r.read(ctx, r.tokenKey(), &record); err != nil {
		return nil, err
	}
	return record.oauth2Token(), nil
}

func (r *Redis) Save(ctx context.Context, token *oauth2.Token) error {
	return r.write(ctx, r.tokenKey(), newTokenRecord(token))
}

func (r *Redis) Remove(ctx context.Context) error {
	if err := r.redis.Del(ctx, r.tokenKey()).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func (r *Redis) GetUser(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := r.read(ctx, r.userKey(), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Redis) SaveUser(ctx context.Context, user *model.User) error {
	return r.write(ctx, r.userKey(), user)
}

func (r *Redis) RemoveUser(ctx context.Context) error {
	if err := r.redis.Del(ctx, r.userKey()).Err(); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

func (r *Redis) read(ctx context.Context, key string, out interface{}) error {
	data, err := r.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return common.ErrNoCredentials
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (r *Redis) write(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := r.redis.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}
