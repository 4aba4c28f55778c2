package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/gema-autograder/internal/models"
)

const historyWatchRetries = 5

type redisHistoryRepository struct {
	client *redis.Client
	key    string
}

// NewRedisHistoryRepository keeps the whole history as one JSON value under key.
func NewRedisHistoryRepository(client *redis.Client, key string) HistoryRepository {
	if key == "" {
		key = "grading_history"
	}
	return &redisHistoryRepository{client: client, key: key}
}

func (r *redisHistoryRepository) Load(ctx context.Context) ([]models.HistoryItem, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return decodeHistory(data)
}

// Append rewrites the value inside a WATCH transaction so concurrent writers
// never drop each other's entries.
func (r *redisHistoryRepository) Append(ctx context.Context, item models.HistoryItem) error {
	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, r.key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		items, err := decodeHistory(data)
		if err != nil && !errors.Is(err, ErrHistoryCorrupt) {
			return err
		}

		payload, err := json.Marshal(prependHistory(items, item))
		if err != nil {
			return fmt.Errorf("encode history: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key, payload, 0)
			return nil
		})
		return err
	}

	for i := 0; i < historyWatchRetries; i++ {
		err := r.client.Watch(ctx, txn, r.key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("append history: %w", redis.TxFailedErr)
}
