package database

// Catalog queries
const (
	GetMenuItemSQL = `
		SELECT id, category_id, name, description, price, is_available, prep_minutes, station, created_at, updated_at
		FROM menu_items WHERE id = $1`

	GetModifierGroupsForItemSQL = `
		SELECT id, menu_item_id, name, is_required, min_selections, max_selections, sort_order
		FROM modifier_groups
		WHERE menu_item_id = $1
		ORDER BY sort_order ASC, id ASC`

	GetModifiersForItemSQL = `
		SELECT m.id, m.group_id, m.name, m.price_adjustment, m.is_available, m.is_default
		FROM modifiers m
		JOIN modifier_groups g ON g.id = m.group_id
		WHERE g.menu_item_id = $1
		ORDER BY m.group_id ASC, m.id ASC`

	GetModifierSQL = `
		SELECT id, group_id, name, price_adjustment, is_available, is_default
		FROM modifiers WHERE id = $1`

	GetModifierGroupSQL = `
		SELECT id, menu_item_id, name, is_required, min_selections, max_selections, sort_order
		FROM modifier_groups WHERE id = $1`

	GetActiveCategoriesSQL = `
		SELECT id, name, sort_order, is_active, created_at, updated_at
		FROM categories
		WHERE is_active = TRUE
		ORDER BY sort_order ASC, id ASC`

	GetAvailableItemsSQL = `
		SELECT id, category_id, name, description, price, is_available, prep_minutes, station, created_at, updated_at
		FROM menu_items
		WHERE is_available = TRUE
		ORDER BY category_id ASC, name ASC`
)

// User queries
const (
	GetUserSQL = `
		SELECT id, email, first_name, last_name, role, stripe_customer_id, created_at, updated_at
		FROM users WHERE id = $1`

	SetUserStripeCustomerSQL = `
		UPDATE users SET stripe_customer_id = $2, updated_at = NOW()
		WHERE id = $1`
)

// Order queries
const (
	NextOrderSequenceSQL = `
		SELECT COALESCE(MAX(CAST(SUBSTRING(number FROM 'CAF-[0-9]{8}-([0-9]+)') AS INTEGER)), 0) + 1
		FROM orders
		WHERE number LIKE $1`

	InsertOrderSQL = `
		INSERT INTO orders (user_id, number, status, payment_status, subtotal, tax_amount, total_amount,
			estimated_ready_at, special_instructions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`

	InsertOrderItemSQL = `
		INSERT INTO order_items (order_id, menu_item_id, name, quantity, unit_price, line_total, station, special_instructions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	InsertOrderItemModifierSQL = `
		INSERT INTO order_item_modifiers (order_item_id, modifier_id, name, price_adjustment)
		VALUES ($1, $2, $3, $4)`

	InsertOrderStatusLogSQL = `
		INSERT INTO order_status_log (order_id, status, changed_by, notes)
		VALUES ($1, $2, $3, $4)`

	MarkOrderConfirmedSQL = `
		UPDATE orders
		SET status = 'confirmed', payment_status = 'paid', payment_intent_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	DeleteProvisionalOrderSQL = `
		DELETE FROM orders WHERE id = $1 AND status = 'pending'`

	GetOrderSQL = `
		SELECT id, user_id, number, status, payment_status, subtotal, tax_amount, total_amount,
			payment_intent_id, estimated_ready_at, actual_ready_at, special_instructions, created_at, updated_at
		FROM orders WHERE id = $1`

	GetOrderByNumberSQL = `
		SELECT id, user_id, number, status, payment_status, subtotal, tax_amount, total_amount,
			payment_intent_id, estimated_ready_at, actual_ready_at, special_instructions, created_at, updated_at
		FROM orders WHERE number = $1`

	GetOrderItemsSQL = `
		SELECT id, order_id, menu_item_id, name, quantity, unit_price, line_total, station, special_instructions
		FROM order_items
		WHERE order_id = $1
		ORDER BY id ASC`

	GetOrderItemModifiersSQL = `
		SELECT oim.id, oim.order_item_id, oim.modifier_id, oim.name, oim.price_adjustment
		FROM order_item_modifiers oim
		JOIN order_items oi ON oi.id = oim.order_item_id
		WHERE oi.order_id = $1
		ORDER BY oim.id ASC`

	GetUserOrdersSQL = `
		SELECT id, user_id, number, status, payment_status, subtotal, tax_amount, total_amount,
			payment_intent_id, estimated_ready_at, actual_ready_at, special_instructions, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	GetActiveOrdersSQL = `
		SELECT id, user_id, number, status, payment_status, subtotal, tax_amount, total_amount,
			payment_intent_id, estimated_ready_at, actual_ready_at, special_instructions, created_at, updated_at
		FROM orders
		WHERE status IN ('confirmed', 'preparing')
		ORDER BY created_at ASC
		LIMIT $1`

	ListOrdersSQL = `
		SELECT id, user_id, number, status, payment_status, subtotal, tax_amount, total_amount,
			payment_intent_id, estimated_ready_at, actual_ready_at, special_instructions, created_at, updated_at
		FROM orders
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	CountOrdersSQL = `
		SELECT COUNT(*) FROM orders WHERE ($1::text IS NULL OR status = $1)`

	TransitionOrderStatusSQL = `
		UPDATE orders
		SET status = $3,
			payment_status = COALESCE($4, payment_status),
			actual_ready_at = COALESCE($5, actual_ready_at),
			updated_at = NOW()
		WHERE id = $1 AND status = $2`

	MarkOrderRefundedSQL = `
		UPDATE orders
		SET payment_status = 'refunded', status = 'cancelled', updated_at = NOW()
		WHERE id = $1`

	CountInflightItemsSQL = `
		SELECT COALESCE(SUM(oi.quantity), 0)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.status IN ('confirmed', 'preparing')`

	GetOrderStatusHistorySQL = `
		SELECT status, changed_by, notes, changed_at
		FROM order_status_log
		WHERE order_id = $1
		ORDER BY changed_at ASC`
)

// Payment webhook queries
const (
	MarkOrderPaidSQL = `
		UPDATE orders
		SET payment_status = 'paid', payment_intent_id = $2, updated_at = NOW()
		WHERE id = $1`

	MarkOrderPaymentFailedSQL = `
		UPDATE orders
		SET payment_status = 'failed', updated_at = NOW()
		WHERE id = $1`

	MarkOrderRefundedByIntentSQL = `
		UPDATE orders
		SET payment_status = 'refunded', updated_at = NOW()
		WHERE payment_intent_id = $1
		RETURNING id`
)

// Print job queries
const (
	InsertPrintJobSQL = `
		INSERT INTO print_jobs (order_id, station, status, receipt_data)
		VALUES ($1, $2, 'pending', $3)
		RETURNING id, created_at`

	PullPendingPrintJobsSQL = `
		UPDATE print_jobs
		SET status = 'sent', sent_at = NOW()
		WHERE id IN (
			SELECT id FROM print_jobs
			WHERE status = 'pending' AND ($1 = '' OR station = $1)
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, order_id, station, attempts, receipt_data, created_at`

	MarkPrintJobPrintedSQL = `
		UPDATE print_jobs
		SET status = 'printed', printed_at = NOW()
		WHERE id = $1 AND status = 'sent'`

	MarkPrintJobFailedSQL = `
		UPDATE print_jobs
		SET status = 'failed', attempts = attempts + 1, last_error = $2
		WHERE id = $1 AND status = 'sent'`

	ResetRetryablePrintJobsSQL = `
		UPDATE print_jobs
		SET status = 'pending', last_error = NULL
		WHERE status = 'failed' AND attempts < $1`

	ResetPrintJobSQL = `
		UPDATE print_jobs
		SET status = 'pending', last_error = NULL
		WHERE id = $1 AND status = 'failed'`

	DeletePrintedJobsBeforeSQL = `
		DELETE FROM print_jobs
		WHERE status = 'printed' AND printed_at < $1`

	GetPrintJobsForOrderSQL = `
		SELECT id, order_id, station, status, attempts, last_error, receipt_data, sent_at, printed_at, created_at
		FROM print_jobs
		WHERE order_id = $1
		ORDER BY station ASC`
)
