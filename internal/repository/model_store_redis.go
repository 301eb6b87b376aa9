package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinSight/internal/domain/models"

	"github.com/redis/go-redis/v9"
)

// RedisModelStore keeps artifact pairs in Redis so several API replicas share
// one trained model per symbol.
type RedisModelStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisModelStore creates a store. A zero ttl keeps artifacts until deleted.
func NewRedisModelStore(client *redis.Client, prefix string, ttl time.Duration) *RedisModelStore {
	return &RedisModelStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisModelStore) keys(key string) (string, string) {
	return s.prefix + "model:" + key, s.prefix + "scaler:" + key
}

func (s *RedisModelStore) Save(ctx context.Context, key string, a *models.ModelArtifact) error {
	modelKey, scalerKey := s.keys(key)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, modelKey, a.Model, s.ttl)
		p.Set(ctx, scalerKey, a.Scaler, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", key, err)
	}
	return nil
}

func (s *RedisModelStore) Load(ctx context.Context, key string) (*models.ModelArtifact, error) {
	modelKey, scalerKey := s.keys(key)
	model, err := s.client.Get(ctx, modelKey).Bytes()
	if err != nil {
		return nil, redisNotFound(err)
	}
	scaler, err := s.client.Get(ctx, scalerKey).Bytes()
	if err != nil {
		return nil, redisNotFound(err)
	}
	return &models.ModelArtifact{Model: model, Scaler: scaler}, nil
}

func (s *RedisModelStore) Delete(ctx context.Context, key string) error {
	modelKey, scalerKey := s.keys(key)
	return s.client.Del(ctx, modelKey, scalerKey).Err()
}

func redisNotFound(err error) error {
	if errors.Is(err, redis.Nil) {
		return models.ErrArtifactNotFound
	}
	return err
}
