package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/laadstock/internal/jobs"
)

// StockWarmer rebuilds the cached combined stock view.
type StockWarmer interface {
	Warm(ctx context.Context) (int, error)
}

// CacheWarmJob repopulates the combined stock cache after a version bump so
// the first reader does not pay for the rebuild.
type CacheWarmJob struct {
	Stock   StockWarmer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCacheWarmJob wires dependencies for the warm handler.
func NewCacheWarmJob(warmer StockWarmer, logger *slog.Logger, metrics *jobmetrics.Metrics) *CacheWarmJob {
	return &CacheWarmJob{Stock: warmer, Logger: logger, Metrics: metrics}
}

// Handle executes the warm.
func (j *CacheWarmJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Stock == nil {
		return errors.New("stock cache warm: handler not configured")
	}
	var payload CacheWarmPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	metrics := j.Metrics
	if metrics == nil {
		metrics = defaultJobMetrics
	}
	tracker := metrics.Track(TaskStockCacheWarm)
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("job", TaskStockCacheWarm), slog.Int64("version", payload.Version))

	units, err := j.Stock.Warm(ctx)
	if err != nil {
		logger.Error("warm stock cache", slog.Any("error", err))
		return tracker.End(err)
	}
	metrics.SetWarmedUnits(units)
	logger.Debug("stock cache warmed", slog.Int("units", units))
	return tracker.End(nil)
}
