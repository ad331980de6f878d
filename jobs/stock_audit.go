package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/laadstock/internal/jobs"
	"github.com/odyssey-erp/laadstock/internal/stock"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// StockAuditor runs the read-only stock audit.
type StockAuditor interface {
	Audit(ctx context.Context) (stock.AuditReport, error)
}

// StockAuditJob reports lot and combined-unit invariant violations. It never
// repairs data.
type StockAuditJob struct {
	Stock   StockAuditor
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewStockAuditJob wires dependencies for the audit handler.
func NewStockAuditJob(auditor StockAuditor, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockAuditJob {
	return &StockAuditJob{Stock: auditor, Logger: logger, Metrics: metrics}
}

// Handle executes the audit.
func (j *StockAuditJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Stock == nil {
		return errors.New("stock audit: handler not configured")
	}
	var payload StockAuditPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Trigger == "" {
		payload.Trigger = "cron"
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskStockAudit)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("trigger", payload.Trigger))
	logger.Info("starting stock audit")

	report, err := j.Stock.Audit(ctx)
	if err != nil {
		resultErr = err
		logger.Error("stock audit failed", slog.Any("error", err))
		return resultErr
	}

	byKind := make(map[string]int)
	for _, v := range report.Violations {
		byKind[v.Kind]++
		logger.Warn("stock invariant violated",
			slog.String("kind", v.Kind),
			slog.Int64("lot_id", v.LotID),
			slog.Int64("delivery_id", v.DeliveryID),
			slog.String("detail", v.Detail),
		)
	}
	for kind, n := range byKind {
		j.metrics().AddViolations(kind, n)
	}

	logger.Info("completed stock audit",
		slog.Int("lots", report.CheckedLots),
		slog.Int("units", report.CheckedUnits),
		slog.Int("violations", len(report.Violations)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *StockAuditJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStockAudit))
	}
	return slog.Default().With(slog.String("job", TaskStockAudit))
}

func (j *StockAuditJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
