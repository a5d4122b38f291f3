package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Tutortoise/pneumonia-service/models"

	"github.com/redis/go-redis/v9"
)

const (
	recordKeyPrefix = "prediction:"
	recentKey       = "predictions:recent"
)

// RedisStore keeps records as JSON values with a TTL plus a capped list of
// the most recent ids.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(ctx context.Context, opts *redis.Options, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Record(ctx context.Context, rec models.PredictionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, recordKeyPrefix+rec.ID, payload, s.ttl)
	pipe.LPush(ctx, recentKey, rec.ID)
	pipe.LTrim(ctx, recentKey, 0, MaxLimit-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record prediction %s: %w", rec.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (models.PredictionRecord, error) {
	raw, err := s.client.Get(ctx, recordKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.PredictionRecord{}, ErrNotFound
	}
	if err != nil {
		return models.PredictionRecord{}, err
	}

	var rec models.PredictionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return models.PredictionRecord{}, err
	}
	return rec, nil
}

// Recent skips ids whose records have already expired.
func (s *RedisStore) Recent(ctx context.Context, limit int) ([]models.PredictionRecord, error) {
	ids, err := s.client.LRange(ctx, recentKey, 0, int64(ClampLimit(limit)-1)).Result()
	if err != nil {
		return nil, err
	}

	recs := []models.PredictionRecord{}
	if len(ids) == 0 {
		return recs, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKeyPrefix + id
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var rec models.PredictionRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
