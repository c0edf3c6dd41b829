package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gitshopapp/storefront/internal/models"
)

var (
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrVersionConflict         = errors.New("order version conflict")
)

const orderColumns = `id, user_id, customer_name, customer_email, shipping_address, cart_products,
	total_cents, delivery_type, delivery_cost_cents, paid, status, payment_method,
	payment_proof_url, payment_reference, payment_date, rejection_reason,
	stripe_checkout_session_id, stripe_payment_intent_id, gateway_completed_at,
	version, created_at, updated_at`

type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

type ListOrdersParams struct {
	Status models.OrderStatus
	Limit  int
	Offset int
}

func (s *OrderStore) Create(ctx context.Context, order *Order) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}

	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to encode shipping address: %w", err)
	}
	items := order.CartProducts
	if items == nil {
		items = []LineItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode cart products: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO orders (
			id, user_id, customer_name, customer_email, shipping_address, cart_products,
			total_cents, delivery_type, delivery_cost_cents, paid, status, payment_method,
			payment_proof_url, payment_reference, payment_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING version, created_at, updated_at`,
		order.ID,
		order.UserID,
		order.CustomerName,
		order.CustomerEmail,
		addressJSON,
		itemsJSON,
		order.TotalCents,
		order.DeliveryType,
		order.DeliveryCostCents,
		order.Paid,
		string(order.Status),
		string(order.PaymentMethod),
		optionalText(order.PaymentProofURL),
		optionalText(order.PaymentReference),
		optionalTime(order.PaymentDate),
	)
	return row.Scan(&order.Version, &order.CreatedAt, &order.UpdatedAt)
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	return scanOrder(row)
}

// List returns one page of orders, newest first, and the total number of
// orders matching the filter.
func (s *OrderStore) List(ctx context.Context, params ListOrdersParams) ([]*Order, int, error) {
	status := string(params.Status)

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM orders WHERE ($1::text = '' OR status = $1::text)`,
		status,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1::text = '' OR status = $1::text)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`,
		status, params.Limit, params.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*Order, 0, params.Limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read orders: %w", err)
	}
	return orders, total, nil
}

func (s *OrderStore) Delete(ctx context.Context, orderID uuid.UUID) error {
	cmdTag, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (s *OrderStore) SetCheckoutSession(ctx context.Context, orderID uuid.UUID, sessionID string) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET stripe_checkout_session_id = $2, version = version + 1, updated_at = now()
		WHERE id = $1`,
		orderID, sessionID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// RecordCheckoutCompleted stores the gateway's completion signal. It never
// touches paid or status; confirmation stays an explicit admin transition.
func (s *OrderStore) RecordCheckoutCompleted(ctx context.Context, sessionID, paymentIntentID string) (*Order, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE orders
		SET stripe_payment_intent_id = COALESCE(NULLIF($2, ''), stripe_payment_intent_id),
			gateway_completed_at = COALESCE(gateway_completed_at, now()),
			version = version + 1,
			updated_at = now()
		WHERE stripe_checkout_session_id = $1
		RETURNING `+orderColumns,
		sessionID, paymentIntentID,
	)
	return scanOrder(row)
}

// ConfirmPayment marks a pending order paid and decrements stock for every line
// item in one transaction. Stock is adjusted relative to the stored value and
// floored at zero, so concurrent confirmations of different orders sharing a
// product never lose updates. The row lock on the order plus the status guard
// make a second confirmation of the same order fail with
// ErrInvalidStatusTransition instead of decrementing twice.
func (s *OrderStore) ConfirmPayment(ctx context.Context, orderID uuid.UUID, expectedVersion int) (*Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck
	}()

	var (
		status    string
		version   int
		itemsJSON []byte
	)
	err = tx.QueryRow(ctx,
		`SELECT status, version, cart_products FROM orders WHERE id = $1 FOR UPDATE`,
		orderID,
	).Scan(&status, &version, &itemsJSON)
	if err != nil {
		return nil, err
	}
	if models.OrderStatus(status) != models.StatusPending {
		return nil, fmt.Errorf("%w: cannot confirm payment from %s", ErrInvalidStatusTransition, status)
	}
	if expectedVersion > 0 && version != expectedVersion {
		return nil, fmt.Errorf("%w: expected %d, found %d", ErrVersionConflict, expectedVersion, version)
	}

	var items []LineItem
	if err := json.Unmarshal(itemsJSON, &items); err != nil {
		return nil, fmt.Errorf("failed to decode cart products: %w", err)
	}

	if adjustments := stockAdjustments(items); len(adjustments) > 0 {
		batch := &pgx.Batch{}
		for _, adj := range adjustments {
			batch.Queue(
				`UPDATE products SET stock = GREATEST(stock - $2, 0), updated_at = now() WHERE id = $1`,
				adj.productID, adj.quantity,
			)
		}
		results := tx.SendBatch(ctx, batch)
		for range adjustments {
			if _, err := results.Exec(); err != nil {
				_ = results.Close() //nolint:errcheck
				return nil, fmt.Errorf("failed to decrement stock: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return nil, fmt.Errorf("failed to decrement stock: %w", err)
		}
	}

	order, err := scanOrder(tx.QueryRow(ctx, `
		UPDATE orders
		SET paid = TRUE, status = 'processing', version = version + 1, updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+orderColumns,
		orderID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to mark order processing: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit payment confirmation: %w", err)
	}
	return order, nil
}

func (s *OrderStore) RejectPayment(ctx context.Context, orderID uuid.UUID, reason string, expectedVersion int) (*Order, error) {
	return s.transition(ctx, orderID, expectedVersion, models.StatusPending,
		`status = 'cancelled', rejection_reason = $4`, reason)
}

func (s *OrderStore) MarkDelivered(ctx context.Context, orderID uuid.UUID, expectedVersion int) (*Order, error) {
	return s.transition(ctx, orderID, expectedVersion, models.StatusProcessing,
		`status = 'delivered'`)
}

func (s *OrderStore) ResubmitPaymentProof(ctx context.Context, orderID uuid.UUID, proofURL string) (*Order, error) {
	return s.transition(ctx, orderID, 0, models.StatusCancelled,
		`status = 'pending', payment_proof_url = $4, rejection_reason = NULL`, proofURL)
}

// transition applies a status change guarded by the source state and, when
// expectedVersion is positive, by the row version. Extra arguments bind from $4.
func (s *OrderStore) transition(ctx context.Context, orderID uuid.UUID, expectedVersion int, from models.OrderStatus, set string, extra ...any) (*Order, error) {
	query := `
		UPDATE orders
		SET ` + set + `, version = version + 1, updated_at = now()
		WHERE id = $1 AND status = $2 AND ($3::int = 0 OR version = $3::int)
		RETURNING ` + orderColumns

	args := append([]any{orderID, string(from), expectedVersion}, extra...)
	order, err := scanOrder(s.pool.QueryRow(ctx, query, args...))
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return nil, s.explainMiss(ctx, orderID, from, expectedVersion)
}

func (s *OrderStore) explainMiss(ctx context.Context, orderID uuid.UUID, from models.OrderStatus, expectedVersion int) error {
	var (
		status  string
		version int
	)
	err := s.pool.QueryRow(ctx, `SELECT status, version FROM orders WHERE id = $1`, orderID).Scan(&status, &version)
	if err != nil {
		return err
	}
	if models.OrderStatus(status) != from {
		return fmt.Errorf("%w: expected %s, found %s", ErrInvalidStatusTransition, from, status)
	}
	if expectedVersion > 0 && version != expectedVersion {
		return fmt.Errorf("%w: expected %d, found %d", ErrVersionConflict, expectedVersion, version)
	}
	return fmt.Errorf("%w: concurrent update", ErrVersionConflict)
}

type stockAdjustment struct {
	productID uuid.UUID
	quantity  int
}

// stockAdjustments merges line items per product and orders them by id so
// concurrent confirmations lock product rows in the same order.
func stockAdjustments(items []LineItem) []stockAdjustment {
	totals := make(map[uuid.UUID]int, len(items))
	for _, item := range items {
		if item.Quantity <= 0 || item.ProductID == uuid.Nil {
			continue
		}
		totals[item.ProductID] += item.Quantity
	}

	adjustments := make([]stockAdjustment, 0, len(totals))
	for productID, quantity := range totals {
		adjustments = append(adjustments, stockAdjustment{productID: productID, quantity: quantity})
	}
	sort.Slice(adjustments, func(i, j int) bool {
		return adjustments[i].productID.String() < adjustments[j].productID.String()
	})
	return adjustments
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		order              Order
		addressJSON        []byte
		itemsJSON          []byte
		status             string
		paymentMethod      string
		paymentProofURL    pgtype.Text
		paymentReference   pgtype.Text
		paymentDate        pgtype.Timestamptz
		rejectionReason    pgtype.Text
		checkoutSessionID  pgtype.Text
		paymentIntentID    pgtype.Text
		gatewayCompletedAt pgtype.Timestamptz
	)

	err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.CustomerName,
		&order.CustomerEmail,
		&addressJSON,
		&itemsJSON,
		&order.TotalCents,
		&order.DeliveryType,
		&order.DeliveryCostCents,
		&order.Paid,
		&status,
		&paymentMethod,
		&paymentProofURL,
		&paymentReference,
		&paymentDate,
		&rejectionReason,
		&checkoutSessionID,
		&paymentIntentID,
		&gatewayCompletedAt,
		&order.Version,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(addressJSON) > 0 {
		if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
			return nil, fmt.Errorf("failed to decode shipping address: %w", err)
		}
	}
	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &order.CartProducts); err != nil {
			return nil, fmt.Errorf("failed to decode cart products: %w", err)
		}
	}

	order.Status = models.OrderStatus(status)
	order.PaymentMethod = models.PaymentMethod(paymentMethod)
	if paymentProofURL.Valid {
		order.PaymentProofURL = paymentProofURL.String
	}
	if paymentReference.Valid {
		order.PaymentReference = paymentReference.String
	}
	if paymentDate.Valid {
		t := paymentDate.Time
		order.PaymentDate = &t
	}
	if rejectionReason.Valid {
		reason := rejectionReason.String
		order.RejectionReason = &reason
	}
	if checkoutSessionID.Valid {
		order.StripeCheckoutSessionID = checkoutSessionID.String
	}
	if paymentIntentID.Valid {
		order.StripePaymentIntentID = paymentIntentID.String
	}
	if gatewayCompletedAt.Valid {
		t := gatewayCompletedAt.Time
		order.GatewayCompletedAt = &t
	}

	return &order, nil
}

func optionalText(value string) pgtype.Text {
	return pgtype.Text{String: value, Valid: value != ""}
}

func optionalTime(value *time.Time) pgtype.Timestamptz {
	if value == nil || value.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *value, Valid: true}
}
