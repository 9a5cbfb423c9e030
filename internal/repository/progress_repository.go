package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/lesson-scheduler/internal/models"
	appErrors "github.com/noah-isme/lesson-scheduler/pkg/errors"
)

const progressKeyPrefix = "scheduler:run:progress:"

// ProgressRepository keeps the live progress snapshot of running solves in
// Redis. A nil client turns every call into a miss or a no-op.
type ProgressRepository struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewProgressRepository constructs the repository.
func NewProgressRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ProgressRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ProgressRepository{client: client, ttl: ttl, logger: logger}
}

func progressKey(runID string) string {
	return progressKeyPrefix + runID
}

// Get returns the latest snapshot or ErrCacheMiss.
func (r *ProgressRepository) Get(ctx context.Context, runID string) (*models.RunProgress, error) {
	if r.client == nil {
		return nil, appErrors.ErrCacheMiss
	}
	key := progressKey(runID)
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, appErrors.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var progress models.RunProgress
	if err := json.Unmarshal(raw, &progress); err != nil {
		return nil, fmt.Errorf("unmarshal progress for %s: %w", key, err)
	}
	return &progress, nil
}

// Set stores a snapshot, refreshing its TTL.
func (r *ProgressRepository) Set(ctx context.Context, progress *models.RunProgress) error {
	if r.client == nil || progress == nil {
		return nil
	}
	key := progressKey(progress.RunID)
	payload, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal progress for %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete drops a snapshot once the run record holds the final state.
func (r *ProgressRepository) Delete(ctx context.Context, runID string) error {
	if r.client == nil {
		return nil
	}
	key := progressKey(runID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying Redis connection if present.
func (r *ProgressRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
