package order

import (
	"context"
	"time"

	"github.com/Merlin1A/cafe-backend/internal/config"
	"github.com/Merlin1A/cafe-backend/internal/logger"
	"github.com/Merlin1A/cafe-backend/internal/models"
)

// InflightCounter reports how many items belong to orders currently
// being worked (confirmed or preparing).
type InflightCounter interface {
	CountInflightItems(ctx context.Context) (int, error)
}

// Estimator computes advisory ready-time estimates from item prep times
// and live queue depth. The estimate never gates order acceptance.
type Estimator struct {
	counter InflightCounter
	cfg     config.OrdersConfig
	logger  *logger.Logger
	now     func() time.Time
}

// NewEstimator creates a ready-time estimator.
func NewEstimator(counter InflightCounter, cfg config.OrdersConfig, log *logger.Logger) *Estimator {
	return &Estimator{
		counter: counter,
		cfg:     cfg,
		logger:  log,
		now:     time.Now,
	}
}

// EstimateReadyTime returns the projected ready timestamp for a cart.
// A failed queue-depth read degrades to a no-queue estimate rather than
// failing order creation.
func (e *Estimator) EstimateReadyTime(ctx context.Context, items []models.ValidatedOrderItem, requestID string) time.Time {
	inflight, err := e.counter.CountInflightItems(ctx)
	if err != nil {
		e.logger.Warn("queue_depth_unavailable", "Falling back to zero queue delay", requestID, map[string]interface{}{
			"error": err.Error(),
		})
		inflight = 0
	}

	minutes := readyMinutes(
		e.cfg.BasePrepMinutes,
		maxPrepMinutes(items),
		inflight,
		e.cfg.QueueBatchSize,
		e.cfg.QueueBatchDelayMinutes,
		e.cfg.ReadyTimeRoundMinutes,
	)
	return e.now().Add(time.Duration(minutes) * time.Minute)
}

// readyMinutes is the pure estimate: base prep plus the slowest item
// plus one batch delay per full batch of in-flight items, rounded up to
// the display granularity.
func readyMinutes(base, slowest, inflight, batchSize, batchDelay, roundTo int) int {
	queueDelay := 0
	if batchSize > 0 {
		queueDelay = (inflight / batchSize) * batchDelay
	}
	total := base + slowest + queueDelay
	if roundTo > 1 {
		total = ((total + roundTo - 1) / roundTo) * roundTo
	}
	return total
}

func maxPrepMinutes(items []models.ValidatedOrderItem) int {
	slowest := 0
	for _, item := range items {
		if item.PrepMinutes > slowest {
			slowest = item.PrepMinutes
		}
	}
	return slowest
}
