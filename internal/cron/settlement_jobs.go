package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/ramp-settlement/internal/settlements"
	"github.com/angelmondragon/ramp-settlement/pkg/logger"
)

const (
	PayoutJobName        = "payouts"
	StaleTransferJobName = "stale-transfers"
	OrderExpiryJobName   = "order-expiry"

	defaultBatchSize = 100
)

type payoutProcessor interface {
	ProcessDuePayouts(ctx context.Context, limit int) (settlements.BatchResult, error)
}

type staleReconciler interface {
	ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (settlements.BatchResult, error)
}

type orderExpirer interface {
	ExpireStale(ctx context.Context, olderThan time.Duration, limit int) (settlements.BatchResult, error)
}

type itemRecorder interface {
	AddItems(job string, n int)
}

// SettlementJobParams are shared by the settlement batch jobs.
type SettlementJobParams struct {
	Logger    *logger.Logger
	Metrics   itemRecorder
	BatchSize int
}

// batchJob runs one settlement batch operation per cycle.
type batchJob struct {
	name    string
	logg    *logger.Logger
	metrics itemRecorder
	limit   int
	run     func(ctx context.Context, limit int) (settlements.BatchResult, error)
}

func newBatchJob(name string, params SettlementJobParams, run func(ctx context.Context, limit int) (settlements.BatchResult, error)) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	limit := params.BatchSize
	if limit <= 0 {
		limit = defaultBatchSize
	}
	return &batchJob{name: name, logg: params.Logger, metrics: params.Metrics, limit: limit, run: run}, nil
}

func (j *batchJob) Name() string { return j.name }

func (j *batchJob) Run(ctx context.Context) error {
	result, err := j.run(ctx, j.limit)
	if j.metrics != nil {
		j.metrics.AddItems(j.name, result.Processed)
	}
	if result.Scanned > 0 || err != nil {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"scanned":   result.Scanned,
			"processed": result.Processed,
			"skipped":   result.Skipped,
		}), "settlement batch finished")
	}
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	return nil
}

// NewPayoutJob completes off-ramp payouts whose delay has elapsed.
func NewPayoutJob(svc payoutProcessor, params SettlementJobParams) (Job, error) {
	if svc == nil {
		return nil, fmt.Errorf("payout processor required")
	}
	return newBatchJob(PayoutJobName, params, svc.ProcessDuePayouts)
}

// NewStaleTransferJob resolves transfers left in flight for longer than age.
func NewStaleTransferJob(svc staleReconciler, age time.Duration, params SettlementJobParams) (Job, error) {
	if svc == nil {
		return nil, fmt.Errorf("stale reconciler required")
	}
	if age <= 0 {
		return nil, fmt.Errorf("stale transfer age must be positive")
	}
	return newBatchJob(StaleTransferJobName, params, func(ctx context.Context, limit int) (settlements.BatchResult, error) {
		return svc.ReconcileStale(ctx, age, limit)
	})
}

// NewOrderExpiryJob cancels initial-state records older than ttl.
func NewOrderExpiryJob(svc orderExpirer, ttl time.Duration, params SettlementJobParams) (Job, error) {
	if svc == nil {
		return nil, fmt.Errorf("order expirer required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("order ttl must be positive")
	}
	return newBatchJob(OrderExpiryJobName, params, func(ctx context.Context, limit int) (settlements.BatchResult, error) {
		return svc.ExpireStale(ctx, ttl, limit)
	})
}
