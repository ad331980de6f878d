package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockAudit checks lot and combined-unit invariants.
	TaskStockAudit = "stock:audit"
	// TaskStockCacheWarm rebuilds the cached combined stock view.
	TaskStockCacheWarm = "stock:cache_warm"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// StockAuditPayload configures a stock audit run.
type StockAuditPayload struct {
	Trigger string `json:"trigger,omitempty"`
}

// CacheWarmPayload names the cache version that triggered the warm.
type CacheWarmPayload struct {
	Version int64 `json:"version"`
}

// NewStockAuditTask constructs an audit task.
func NewStockAuditTask(trigger string) (*asynq.Task, error) {
	data, err := json.Marshal(StockAuditPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockAudit, data), nil
}

// NewCacheWarmTask constructs a warm task for version.
func NewCacheWarmTask(version int64) (*asynq.Task, error) {
	data, err := json.Marshal(CacheWarmPayload{Version: version})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockCacheWarm, data), nil
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

// cacheWarmTaskID deduplicates warms of the same version across instances.
func cacheWarmTaskID(version int64) string {
	return fmt.Sprintf("%s:v%d", TaskStockCacheWarm, version)
}
