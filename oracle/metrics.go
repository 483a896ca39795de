package oracle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const metricsKey = "copyvault:oracle:metrics"

// OracleMetrics is the snapshot the status API serves.
type OracleMetrics struct {
	LastCycle       CycleStats `json:"last_cycle"`
	TotalCycles     int64      `json:"total_cycles"`
	TotalChanged    int64      `json:"total_changed"`
	TotalResolved   int64      `json:"total_resolved"`
	TotalWriteFails int64      `json:"total_write_fails"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// MetricsStore persists cycle metrics in Redis.
type MetricsStore struct {
	redis *redis.Client
}

// NewMetricsStore creates a new metrics store
func NewMetricsStore(redisClient *redis.Client) *MetricsStore {
	return &MetricsStore{redis: redisClient}
}

// SaveCycle folds one finished cycle into the stored snapshot.
func (m *MetricsStore) SaveCycle(ctx context.Context, stats CycleStats) error {
	var metrics OracleMetrics
	existing, err := m.redis.Get(ctx, metricsKey).Result()
	if err == nil {
		json.Unmarshal([]byte(existing), &metrics)
	}

	metrics.LastCycle = stats
	metrics.TotalCycles++
	metrics.TotalChanged += int64(stats.Changed)
	metrics.TotalResolved += int64(stats.DisputesResolved)
	if stats.WriteFailed {
		metrics.TotalWriteFails++
	}
	metrics.UpdatedAt = time.Now()

	data, err := json.Marshal(metrics)
	if err != nil {
		return err
	}

	return m.redis.Set(ctx, metricsKey, data, 24*time.Hour).Err()
}

// GetMetrics retrieves the current snapshot from Redis.
func (m *MetricsStore) GetMetrics(ctx context.Context) (*OracleMetrics, error) {
	data, err := m.redis.Get(ctx, metricsKey).Result()
	if err != nil {
		if err == redis.Nil {
			return &OracleMetrics{}, nil
		}
		return nil, err
	}

	var metrics OracleMetrics
	if err := json.Unmarshal([]byte(data), &metrics); err != nil {
		return nil, err
	}

	return &metrics, nil
}
