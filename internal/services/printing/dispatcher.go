package printing

import (
	"context"
	"fmt"
	"time"

	"github.com/Merlin1A/cafe-backend/internal/config"
	"github.com/Merlin1A/cafe-backend/internal/domain"
	"github.com/Merlin1A/cafe-backend/internal/logger"
	"github.com/Merlin1A/cafe-backend/internal/models"
)

// Store is the persistence surface the dispatcher drives.
type Store interface {
	InsertJob(ctx context.Context, orderID int64, station models.Station, receipt models.ReceiptData) error
	PullPending(ctx context.Context, station models.Station, limit int) ([]models.PrintJob, error)
	MarkPrinted(ctx context.Context, jobID int64) error
	MarkFailed(ctx context.Context, jobID int64, reason string) error
	ResetRetryable(ctx context.Context, maxAttempts int) (int64, error)
	ResetJob(ctx context.Context, jobID int64) error
	DeletePrintedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	JobsForOrder(ctx context.Context, orderID int64) ([]models.PrintJob, error)
}

// AlertPublisher publishes operational alerts for failures humans must see.
type AlertPublisher interface {
	PublishOpsAlert(ctx context.Context, routingKey string, msg interface{}) error
}

// Dispatcher creates station tickets for confirmed orders and mediates
// the pull-and-acknowledge protocol with the external print agent.
type Dispatcher struct {
	store  Store
	alerts AlertPublisher
	cfg    config.PrintingConfig
	logger *logger.Logger
	now    func() time.Time
}

// NewDispatcher creates a print job dispatcher.
func NewDispatcher(store Store, alerts AlertPublisher, cfg config.PrintingConfig, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		store:  store,
		alerts: alerts,
		cfg:    cfg,
		logger: log,
		now:    time.Now,
	}
}

// CreateJobs builds and persists one print job per station the order's
// items route to. Print failures never fail order confirmation: errors
// are logged and alerted, and the order proceeds.
func (d *Dispatcher) CreateJobs(ctx context.Context, order *models.Order, items []models.ValidatedOrderItem, customerName string, requestID string) {
	receipts := BuildReceipts(order, items, customerName)

	for _, receipt := range receipts {
		if err := d.store.InsertJob(ctx, order.ID, receipt.Station, receipt); err != nil {
			d.logger.Error("print_job_create_failed", "Failed to create print job", requestID, err, map[string]interface{}{
				"order_id": order.ID,
				"station":  string(receipt.Station),
			})
			d.publishDispatchAlert(ctx, order, receipt.Station, err, requestID)
			continue
		}
		d.logger.Info("print_job_created", "Print job queued for station", requestID, map[string]interface{}{
			"order_id": order.ID,
			"station":  string(receipt.Station),
		})
	}
}

func (d *Dispatcher) publishDispatchAlert(ctx context.Context, order *models.Order, station models.Station, cause error, requestID string) {
	if d.alerts == nil {
		return
	}
	alert := map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.Number,
		"station":      string(station),
		"error":        cause.Error(),
		"occurred_at":  d.now().UTC().Format(time.RFC3339),
	}
	if err := d.alerts.PublishOpsAlert(ctx, "print.dispatch_failed", alert); err != nil {
		d.logger.Error("alert_publish_failed", "Failed to publish print dispatch alert", requestID, err, nil)
	}
}

// PullJobs atomically claims up to limit pending jobs and returns them
// marked sent. An empty station claims across all stations so a single
// agent can serve both printers with one poll. A job is handed to at
// most one agent poll.
func (d *Dispatcher) PullJobs(ctx context.Context, station models.Station, limit int) ([]models.PrintJob, error) {
	if station != "" && station != models.StationKitchen && station != models.StationBeverage {
		return nil, domain.Validationf("station", "unknown station %q", station)
	}
	if limit <= 0 {
		limit = 10
	}
	return d.store.PullPending(ctx, station, limit)
}

// AcknowledgeJob records the agent's outcome for a previously pulled job.
// A failure report must carry a reason.
func (d *Dispatcher) AcknowledgeJob(ctx context.Context, jobID int64, ack models.PrintJobAck) error {
	switch ack.Status {
	case models.PrintJobPrinted:
		return d.store.MarkPrinted(ctx, jobID)
	case models.PrintJobFailed:
		if ack.Error == "" {
			return domain.Validation("error", "a failure acknowledgement requires an error description")
		}
		return d.store.MarkFailed(ctx, jobID, ack.Error)
	default:
		return domain.Validationf("status", "acknowledgement status must be %q or %q", models.PrintJobPrinted, models.PrintJobFailed)
	}
}

// RetryFailedJobs requeues every failed job still under the attempt
// limit and returns how many were requeued. Exhausted jobs stay failed
// until an operator intervenes.
func (d *Dispatcher) RetryFailedJobs(ctx context.Context, requestID string) (int64, error) {
	count, err := d.store.ResetRetryable(ctx, d.cfg.MaxAttempts)
	if err != nil {
		return 0, fmt.Errorf("requeueing failed print jobs: %w", err)
	}
	if count > 0 {
		d.logger.Info("print_jobs_requeued", "Requeued failed print jobs", requestID, map[string]interface{}{
			"count": count,
		})
	}
	return count, nil
}

// RetryJob requeues a single job regardless of how many attempts it has
// consumed. This is the operator escape hatch for exhausted jobs.
func (d *Dispatcher) RetryJob(ctx context.Context, jobID int64) error {
	return d.store.ResetJob(ctx, jobID)
}

// CleanupPrinted deletes printed jobs older than the retention window.
func (d *Dispatcher) CleanupPrinted(ctx context.Context, requestID string) (int64, error) {
	cutoff := d.now().AddDate(0, 0, -d.cfg.RetentionDays)
	count, err := d.store.DeletePrintedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning up printed jobs: %w", err)
	}
	if count > 0 {
		d.logger.Info("print_jobs_cleaned", "Deleted old printed jobs", requestID, map[string]interface{}{
			"count": count,
		})
	}
	return count, nil
}

// JobsForOrder returns all jobs belonging to an order, newest first.
func (d *Dispatcher) JobsForOrder(ctx context.Context, orderID int64) ([]models.PrintJob, error) {
	return d.store.JobsForOrder(ctx, orderID)
}

// RunSweeper periodically requeues retryable failures and prunes old
// printed jobs until ctx is cancelled.
func (d *Dispatcher) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			requestID := logger.GenerateRequestID()
			if _, err := d.RetryFailedJobs(ctx, requestID); err != nil {
				d.logger.Error("print_sweep_failed", "Print job retry sweep failed", requestID, err, nil)
			}
			if _, err := d.CleanupPrinted(ctx, requestID); err != nil {
				d.logger.Error("print_sweep_failed", "Print job cleanup sweep failed", requestID, err, nil)
			}
		}
	}
}
