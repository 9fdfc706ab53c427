package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"github.com/Merlin1A/cafe-backend/internal/database"
	"github.com/Merlin1A/cafe-backend/internal/domain"
	"github.com/Merlin1A/cafe-backend/internal/models"
)

const orderNumberPrefix = "CAF"

// Repository persists orders in Postgres.
type Repository struct {
	db *database.DB
}

// NewRepository creates an order repository.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// CreateOrder writes the order, its items and their modifier snapshots
// in one transaction. The order number is assigned inside the same
// transaction from a per-day sequence, so a crash between steps can
// never leave an order without items or a duplicate number.
func (r *Repository) CreateOrder(ctx context.Context, ord *models.Order, items []models.ValidatedOrderItem) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		day := time.Now().UTC().Format("20060102")
		var seq int
		if err := tx.QueryRow(ctx, database.NextOrderSequenceSQL, orderNumberPrefix+"-"+day+"-%").Scan(&seq); err != nil {
			return fmt.Errorf("assigning order number: %w", err)
		}
		ord.Number = fmt.Sprintf("%s-%s-%04d", orderNumberPrefix, day, seq)

		err := tx.QueryRow(ctx, database.InsertOrderSQL,
			ord.UserID, ord.Number, string(ord.Status), string(ord.PaymentStatus),
			ord.Subtotal, ord.TaxAmount, ord.TotalAmount,
			ord.EstimatedReadyAt, ord.SpecialInstructions,
		).Scan(&ord.ID, &ord.CreatedAt, &ord.UpdatedAt)
		if err != nil {
			return fmt.Errorf("inserting order: %w", err)
		}

		for _, item := range items {
			var instructions *string
			if item.SpecialInstructions != "" {
				instructions = &item.SpecialInstructions
			}
			var itemID int64
			err := tx.QueryRow(ctx, database.InsertOrderItemSQL,
				ord.ID, item.MenuItemID, item.Name, item.Quantity,
				item.UnitPrice, item.LineTotal, string(item.Station), instructions,
			).Scan(&itemID)
			if err != nil {
				return fmt.Errorf("inserting order item: %w", err)
			}
			for _, mod := range item.Modifiers {
				if _, err := tx.Exec(ctx, database.InsertOrderItemModifierSQL,
					itemID, mod.ModifierID, mod.Name, mod.PriceAdjustment); err != nil {
					return fmt.Errorf("inserting order item modifier: %w", err)
				}
			}
		}

		if _, err := tx.Exec(ctx, database.InsertOrderStatusLogSQL, ord.ID, string(models.OrderPending), "system", nil); err != nil {
			return fmt.Errorf("recording status: %w", err)
		}
		return nil
	})
}

// MarkOrderConfirmed promotes a pending order to confirmed and paid,
// recording the intent reference. A non-pending order is a conflict.
func (r *Repository) MarkOrderConfirmed(ctx context.Context, orderID int64, intentID string) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, database.MarkOrderConfirmedSQL, orderID, intentID)
		if err != nil {
			return fmt.Errorf("confirming order: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.Conflict("order %d is no longer pending", orderID)
		}
		if _, err := tx.Exec(ctx, database.InsertOrderStatusLogSQL, orderID, string(models.OrderConfirmed), "system", nil); err != nil {
			return fmt.Errorf("recording status: %w", err)
		}
		return nil
	})
}

// DeleteProvisionalOrder removes an order that never reached payment
// success. Only pending orders are deletable.
func (r *Repository) DeleteProvisionalOrder(ctx context.Context, orderID int64) error {
	return r.db.Exec(ctx, database.DeleteProvisionalOrderSQL, orderID)
}

// TransitionStatus is a compare-and-set on the order's status: the write
// applies only if the row still holds the status the caller validated
// against. A lost race is a conflict, not a silent overwrite.
func (r *Repository) TransitionStatus(ctx context.Context, orderID int64, from, to models.OrderStatus, paymentStatus *models.PaymentStatus, actualReadyAt *time.Time, changedBy string) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var ps *string
		if paymentStatus != nil {
			v := string(*paymentStatus)
			ps = &v
		}
		tag, err := tx.Exec(ctx, database.TransitionOrderStatusSQL, orderID, string(from), string(to), ps, actualReadyAt)
		if err != nil {
			return fmt.Errorf("transitioning order: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.Conflict("order %d changed concurrently, expected status %s", orderID, from)
		}
		if _, err := tx.Exec(ctx, database.InsertOrderStatusLogSQL, orderID, string(to), changedBy, nil); err != nil {
			return fmt.Errorf("recording status: %w", err)
		}
		return nil
	})
}

// MarkOrderRefunded records a refund: payment status refunded, order
// cancelled.
func (r *Repository) MarkOrderRefunded(ctx context.Context, orderID int64, changedBy string) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, database.MarkOrderRefundedSQL, orderID); err != nil {
			return fmt.Errorf("marking order refunded: %w", err)
		}
		notes := "refunded"
		if _, err := tx.Exec(ctx, database.InsertOrderStatusLogSQL, orderID, string(models.OrderCancelled), changedBy, &notes); err != nil {
			return fmt.Errorf("recording status: %w", err)
		}
		return nil
	})
}

// GetOrder loads an order with its items and modifier snapshots.
func (r *Repository) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	ord, err := r.scanOrder(r.db.QueryRow(ctx, database.GetOrderSQL, orderID))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, ord); err != nil {
		return nil, err
	}
	return ord, nil
}

// GetOrderByNumber loads an order by its display number.
func (r *Repository) GetOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	ord, err := r.scanOrder(r.db.QueryRow(ctx, database.GetOrderByNumberSQL, number))
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, ord); err != nil {
		return nil, err
	}
	return ord, nil
}

func (r *Repository) GetUserOrders(ctx context.Context, userID int64, limit, offset int) ([]models.Order, error) {
	return r.queryOrders(ctx, database.GetUserOrdersSQL, userID, limit, offset)
}

func (r *Repository) GetActiveOrders(ctx context.Context, limit int) ([]models.Order, error) {
	return r.queryOrders(ctx, database.GetActiveOrdersSQL, limit)
}

func (r *Repository) ListOrders(ctx context.Context, status *models.OrderStatus, limit, offset int) ([]models.Order, int, error) {
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}

	// The page and the count have no ordering dependency; issue them
	// concurrently.
	var (
		orders []models.Order
		total  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orders, err = r.queryOrders(gctx, database.ListOrdersSQL, filter, limit, offset)
		return err
	})
	g.Go(func() error {
		if err := r.db.QueryRow(gctx, database.CountOrdersSQL, filter).Scan(&total); err != nil {
			return fmt.Errorf("counting orders: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// StatusHistory returns the order's transition log oldest-first.
func (r *Repository) StatusHistory(ctx context.Context, orderID int64) ([]models.OrderStatusChange, error) {
	rows, err := r.db.Query(ctx, database.GetOrderStatusHistorySQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting status history: %w", err)
	}
	defer rows.Close()

	var history []models.OrderStatusChange
	for rows.Next() {
		var (
			change models.OrderStatusChange
			status string
		)
		if err := rows.Scan(&status, &change.ChangedBy, &change.Notes, &change.ChangedAt); err != nil {
			return nil, fmt.Errorf("scanning status change: %w", err)
		}
		change.Status = models.OrderStatus(status)
		history = append(history, change)
	}
	return history, rows.Err()
}

// CountInflightItems returns the number of items across confirmed and
// preparing orders. The count is live and may race with concurrent
// creation; only a reasonable estimate is required.
func (r *Repository) CountInflightItems(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, database.CountInflightItemsSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting in-flight items: %w", err)
	}
	return count, nil
}

// GetUser loads a user record.
func (r *Repository) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	err := r.db.QueryRow(ctx, database.GetUserSQL, userID).Scan(
		&user.ID, &user.Email, &user.FirstName, &user.LastName,
		&user.Role, &user.StripeCustomerID, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("user")
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &user, nil
}

// SetUserCustomerID stores the processor-side customer reference.
func (r *Repository) SetUserCustomerID(ctx context.Context, userID int64, customerID string) error {
	return r.db.Exec(ctx, database.SetUserStripeCustomerSQL, userID, customerID)
}

func (r *Repository) scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		ord           models.Order
		status        string
		paymentStatus string
	)
	err := row.Scan(
		&ord.ID, &ord.UserID, &ord.Number, &status, &paymentStatus,
		&ord.Subtotal, &ord.TaxAmount, &ord.TotalAmount,
		&ord.PaymentIntentID, &ord.EstimatedReadyAt, &ord.ActualReadyAt,
		&ord.SpecialInstructions, &ord.CreatedAt, &ord.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("order")
		}
		return nil, fmt.Errorf("scanning order: %w", err)
	}
	ord.Status = models.OrderStatus(status)
	ord.PaymentStatus = models.PaymentStatus(paymentStatus)
	return &ord, nil
}

func (r *Repository) queryOrders(ctx context.Context, sql string, args ...interface{}) ([]models.Order, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		ord, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *ord)
	}
	return orders, rows.Err()
}

func (r *Repository) loadItems(ctx context.Context, ord *models.Order) error {
	rows, err := r.db.Query(ctx, database.GetOrderItemsSQL, ord.ID)
	if err != nil {
		return fmt.Errorf("getting order items: %w", err)
	}
	defer rows.Close()

	itemsByID := make(map[int64]*models.OrderItem)
	var itemIDs []int64
	for rows.Next() {
		var (
			item    models.OrderItem
			station string
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &item.MenuItemID, &item.Name,
			&item.Quantity, &item.UnitPrice, &item.LineTotal, &station, &item.SpecialInstructions); err != nil {
			return fmt.Errorf("scanning order item: %w", err)
		}
		item.Station = models.Station(station)
		itemsByID[item.ID] = &item
		itemIDs = append(itemIDs, item.ID)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	modRows, err := r.db.Query(ctx, database.GetOrderItemModifiersSQL, ord.ID)
	if err != nil {
		return fmt.Errorf("getting order item modifiers: %w", err)
	}
	defer modRows.Close()

	for modRows.Next() {
		var mod models.OrderItemModifier
		if err := modRows.Scan(&mod.ID, &mod.OrderItemID, &mod.ModifierID, &mod.Name, &mod.PriceAdjustment); err != nil {
			return fmt.Errorf("scanning order item modifier: %w", err)
		}
		if item, ok := itemsByID[mod.OrderItemID]; ok {
			item.Modifiers = append(item.Modifiers, mod)
		}
	}
	if err := modRows.Err(); err != nil {
		return err
	}

	ord.Items = make([]models.OrderItem, 0, len(itemIDs))
	for _, id := range itemIDs {
		ord.Items = append(ord.Items, *itemsByID[id])
	}
	return nil
}
