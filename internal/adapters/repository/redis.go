package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/appraisal/internal/domain/model"
)

const (
	redisReportPrefix  = "appraisal:report:"
	redisInProgressKey = "appraisal:reports:inprogress"
	redisCreatedKey    = "appraisal:reports:created"
)

// RedisStore keeps each report as a JSON string. Two sorted sets index the
// in-progress reports by update time and all reports by creation time.
// Writes run under WATCH so a concurrent change aborts the transaction.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Create implements Store.Create.
func (s *RedisStore) Create(ctx context.Context, r *model.Report) error {
	raw, err := encodeReport(r)
	if err != nil {
		return err
	}
	key := reportKey(r.ID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			pipe.ZAdd(ctx, redisCreatedKey, redis.Z{Score: unixScore(r.CreatedAt), Member: r.ID})
			indexProgress(ctx, pipe, r)
			return nil
		})
		return err
	}, key)
	return mapTxErr(err, "create", r.ID)
}

// Get implements Store.Get.
func (s *RedisStore) Get(ctx context.Context, id string) (*model.Report, error) {
	return getReport(ctx, s.client, id)
}

// Save implements Store.Save.
func (s *RedisStore) Save(ctx context.Context, r *model.Report) error {
	next := r.Clone()
	next.Version++
	raw, err := encodeReport(next)
	if err != nil {
		return err
	}
	key := reportKey(r.ID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := getReport(ctx, tx, r.ID)
		if err != nil {
			return err
		}
		if cur.Version != r.Version {
			return ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			indexProgress(ctx, pipe, next)
			return nil
		})
		return err
	}, key)
	if err := mapTxErr(err, "save", r.ID); err != nil {
		return err
	}
	r.Version = next.Version
	return nil
}

// MarkFailed implements Store.MarkFailed.
func (s *RedisStore) MarkFailed(ctx context.Context, id, reason string) error {
	key := reportKey(id)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := getReport(ctx, tx, id)
		if err != nil {
			return err
		}
		cur.Status = model.StatusFailed
		cur.LastError = reason
		cur.UpdatedAt = time.Now().UTC()
		cur.Version++
		raw, err := encodeReport(cur)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			pipe.ZRem(ctx, redisInProgressKey, id)
			return nil
		})
		return err
	}, key)
	return mapTxErr(err, "mark failed", id)
}

// CountInProgress implements Store.CountInProgress.
func (s *RedisStore) CountInProgress(ctx context.Context, since time.Time) (int, error) {
	n, err := s.client.ZCount(ctx, redisInProgressKey, strconv.FormatFloat(unixScore(since), 'f', -1, 64), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("count in progress: %w", err)
	}
	return int(n), nil
}

// DeleteExpired implements Store.DeleteExpired.
func (s *RedisStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, redisCreatedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatFloat(unixScore(before), 'f', -1, 64),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = reportKey(id)
		members[i] = id
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, redisCreatedKey, members...)
		pipe.ZRem(ctx, redisInProgressKey, members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	return len(ids), nil
}

// Count implements Store.Count.
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := s.client.ZCard(ctx, redisCreatedKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count reports: %w", err)
	}
	return int(n), nil
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getReport(ctx context.Context, c getter, id string) (*model.Report, error) {
	raw, err := c.Get(ctx, reportKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", id, err)
	}
	var r model.Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return &r, nil
}

func indexProgress(ctx context.Context, pipe redis.Pipeliner, r *model.Report) {
	if r.InProgress() {
		pipe.ZAdd(ctx, redisInProgressKey, redis.Z{Score: unixScore(r.UpdatedAt), Member: r.ID})
		return
	}
	pipe.ZRem(ctx, redisInProgressKey, r.ID)
}

func encodeReport(r *model.Report) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnrecoverable, r.ID, err)
	}
	return raw, nil
}

func mapTxErr(err error, op, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return ErrConflict
	case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound), errors.Is(err, ErrExists), errors.Is(err, ErrUnrecoverable):
		return err
	default:
		return fmt.Errorf("%s report %s: %w", op, id, err)
	}
}

func reportKey(id string) string {
	return redisReportPrefix + id
}

func unixScore(t time.Time) float64 {
	return float64(t.UnixMilli())
}
