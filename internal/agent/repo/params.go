package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oceanchat-core/server/internal/agent/model"
	errx "github.com/oceanchat-core/server/internal/core/error"
	logx "github.com/oceanchat-core/server/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// RedisParameterStoreRepository persists the cross-turn ParameterStore per
// conversation, alongside the message history and with the same TTL policy.
type RedisParameterStoreRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisParameterStoreRepository(rdb redis.Cmdable, ttl time.Duration) *RedisParameterStoreRepository {
	return &RedisParameterStoreRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisParameterStoreRepository) paramsKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:params", conversationID)
}

// Load returns the persisted store, or an empty one when nothing is stored.
func (r *RedisParameterStoreRepository) Load(ctx context.Context, conversationID string) (*model.ParameterStore, error) {
	key := r.paramsKey(conversationID)

	raw, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return model.NewParameterStore(), nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load parameter store from redis")
		return nil, errx.WrapRedis(err)
	}

	store := model.NewParameterStore()
	if err := json.Unmarshal([]byte(raw), store); err != nil {
		logx.Error().Err(err).Str("conversationID", conversationID).Msg("failed to unmarshal parameter store")
		return nil, fmt.Errorf("unmarshal parameter store: %w", err)
	}
	if store.Values == nil {
		store.Values = map[string]string{}
	}
	return store, nil
}

// Save overwrites the persisted store and touches the TTL.
func (r *RedisParameterStoreRepository) Save(ctx context.Context, conversationID string, store *model.ParameterStore) error {
	if store == nil {
		store = model.NewParameterStore()
	}
	b, err := json.Marshal(store)
	if err != nil {
		logx.Error().Err(err).Str("conversationID", conversationID).Msg("failed to marshal parameter store")
		return fmt.Errorf("marshal parameter store: %w", err)
	}
	key := r.paramsKey(conversationID)

	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save parameter store to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

// Clear removes the persisted store for the conversation.
func (r *RedisParameterStoreRepository) Clear(ctx context.Context, conversationID string) error {
	key := r.paramsKey(conversationID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete parameter store from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var _ model.ParameterStoreRepository = (*RedisParameterStoreRepository)(nil)
