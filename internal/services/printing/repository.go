package printing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Merlin1A/cafe-backend/internal/database"
	"github.com/Merlin1A/cafe-backend/internal/domain"
	"github.com/Merlin1A/cafe-backend/internal/models"
)

// Repository persists print jobs in Postgres.
type Repository struct {
	db *database.DB
}

// NewRepository creates a print job repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) InsertJob(ctx context.Context, orderID int64, station models.Station, receipt models.ReceiptData) error {
	payload, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("encoding receipt: %w", err)
	}

	var (
		id        int64
		createdAt time.Time
	)
	err = r.db.QueryRow(ctx, database.InsertPrintJobSQL, orderID, string(station), payload).Scan(&id, &createdAt)
	if err != nil {
		return fmt.Errorf("inserting print job: %w", err)
	}
	return nil
}

func (r *Repository) PullPending(ctx context.Context, station models.Station, limit int) ([]models.PrintJob, error) {
	rows, err := r.db.Query(ctx, database.PullPendingPrintJobsSQL, string(station), limit)
	if err != nil {
		return nil, fmt.Errorf("pulling pending print jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]models.PrintJob, 0, limit)
	for rows.Next() {
		var (
			job     models.PrintJob
			st      string
			receipt []byte
		)
		if err := rows.Scan(&job.ID, &job.OrderID, &st, &job.Attempts, &receipt, &job.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning print job: %w", err)
		}
		job.Station = models.Station(st)
		job.Status = models.PrintJobSent
		if err := json.Unmarshal(receipt, &job.Receipt); err != nil {
			return nil, fmt.Errorf("decoding receipt for job %d: %w", job.ID, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *Repository) MarkPrinted(ctx context.Context, jobID int64) error {
	tag, err := r.db.Pool.Exec(ctx, database.MarkPrintJobPrintedSQL, jobID)
	if err != nil {
		return fmt.Errorf("marking print job printed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Conflict("print job is not awaiting acknowledgement")
	}
	return nil
}

func (r *Repository) MarkFailed(ctx context.Context, jobID int64, reason string) error {
	tag, err := r.db.Pool.Exec(ctx, database.MarkPrintJobFailedSQL, jobID, reason)
	if err != nil {
		return fmt.Errorf("marking print job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Conflict("print job is not awaiting acknowledgement")
	}
	return nil
}

func (r *Repository) ResetRetryable(ctx context.Context, maxAttempts int) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, database.ResetRetryablePrintJobsSQL, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("resetting retryable print jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) ResetJob(ctx context.Context, jobID int64) error {
	tag, err := r.db.Pool.Exec(ctx, database.ResetPrintJobSQL, jobID)
	if err != nil {
		return fmt.Errorf("resetting print job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("failed print job")
	}
	return nil
}

func (r *Repository) DeletePrintedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, database.DeletePrintedJobsBeforeSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting printed jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) JobsForOrder(ctx context.Context, orderID int64) ([]models.PrintJob, error) {
	rows, err := r.db.Query(ctx, database.GetPrintJobsForOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting print jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.PrintJob
	for rows.Next() {
		var (
			job     models.PrintJob
			st      string
			status  string
			receipt []byte
		)
		if err := rows.Scan(&job.ID, &job.OrderID, &st, &status, &job.Attempts, &job.LastError, &receipt, &job.SentAt, &job.PrintedAt, &job.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning print job: %w", err)
		}
		job.Station = models.Station(st)
		job.Status = models.PrintJobStatus(status)
		if err := json.Unmarshal(receipt, &job.Receipt); err != nil {
			return nil, fmt.Errorf("decoding receipt for job %d: %w", job.ID, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
