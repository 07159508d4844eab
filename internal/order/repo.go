package order

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateProviderRef: an order for this provider reference already
	// exists (confirmation event delivered more than once).
	ErrDuplicateProviderRef = errors.New("order already exists for provider reference")
	// ErrCancelled: the order's delivery status is terminal.
	ErrCancelled = errors.New("order is cancelled")
)

// PageSize is the fixed page size for every order listing.
const PageSize = 10

type Filter struct {
	Page           int
	Search         string
	Status         string
	DeliveryStatus string
}

type Repository interface {
	// Create persists the order, its frozen items and the cart clear for the
	// owning user as one transaction, and withdraws any fulfillment failure
	// recorded for the same provider reference: an order and a failure must
	// never coexist. Returns ErrDuplicateProviderRef when an order with the
	// same provider reference already committed.
	Create(ctx context.Context, o *Order, items []Item) error
	GetByID(ctx context.Context, id string) (*Order, []Item, error)
	GetByProviderRef(ctx context.Context, ref string) (*Order, error)
	ListByUser(ctx context.Context, userID string, page int) ([]Order, error)
	List(ctx context.Context, f Filter) ([]Order, int, error)
	// UpdateDeliveryStatus moves the order between admin-settable delivery
	// statuses. Cancelled orders reject every further transition.
	UpdateDeliveryStatus(ctx context.Context, id, status string) error
	// MarkRefunded flips the order to refunded/Cancelled and restores stock
	// for every frozen item in one transaction, conditional on the order not
	// being refunded yet. Returns false when another call already applied the
	// refund, in which case nothing is restored.
	MarkRefunded(ctx context.Context, id, refundRef string, items []Item) (bool, error)
	// RecordFailure stores the failure unless one already exists for the
	// provider reference or an order with that reference has committed.
	RecordFailure(ctx context.Context, f *FulfillmentFailure) error
	FailureExists(ctx context.Context, providerRef string) (bool, error)
	ListFailures(ctx context.Context, page int) ([]FulfillmentFailure, error)
}

type PGRepo struct{ db *pgxpool.Pool }

func NewPGRepo(db *pgxpool.Pool) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) Create(ctx context.Context, o *Order, items []Item) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO orders (id, user_id, amount, currency, provider_ref, status, delivery_status, refunded, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,FALSE,NOW(),NOW())
	`, o.ID, o.UserID, o.Amount, o.Currency, o.ProviderRef, o.Status, o.DeliveryStatus); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateProviderRef
		}
		return err
	}

	// A concurrent duplicate delivery may have lost the stock race and
	// recorded a failure for this reference; the committed order wins.
	if _, err := tx.Exec(ctx, `
		DELETE FROM fulfillment_failures WHERE provider_ref = $1
	`, o.ProviderRef); err != nil {
		return err
	}

	for _, it := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, title, image, price, quantity)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, it.ID, o.ID, it.ProductID, it.Title, it.Image, it.Price, it.Quantity); err != nil {
			return err
		}
	}

	// Paying for the cart consumes it, in the same unit of work.
	if _, err := tx.Exec(ctx, `
		DELETE FROM cart_items ci
		USING carts c
		WHERE ci.cart_id = c.id AND c.user_id = $1
	`, o.UserID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const orderCols = `id, user_id, amount, currency, provider_ref, status, delivery_status, refunded, refund_ref, created_at, updated_at`

func scanOrder(row pgx.Row, o *Order) error {
	return row.Scan(&o.ID, &o.UserID, &o.Amount, &o.Currency, &o.ProviderRef,
		&o.Status, &o.DeliveryStatus, &o.Refunded, &o.RefundRef, &o.CreatedAt, &o.UpdatedAt)
}

func (r *PGRepo) GetByID(ctx context.Context, id string) (*Order, []Item, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var o Order
	if err := scanOrder(r.db.QueryRow(ctx, `
		SELECT `+orderCols+` FROM orders WHERE id=$1
	`, id), &o); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, title, image, price, quantity
		FROM order_items WHERE order_id=$1
	`, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Title, &it.Image, &it.Price, &it.Quantity); err != nil {
			return nil, nil, err
		}
		items = append(items, it)
	}
	return &o, items, rows.Err()
}

func (r *PGRepo) GetByProviderRef(ctx context.Context, ref string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var o Order
	if err := scanOrder(r.db.QueryRow(ctx, `
		SELECT `+orderCols+` FROM orders WHERE provider_ref=$1
	`, ref), &o); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string, page int) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if page < 1 {
		page = 1
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+orderCols+` FROM orders
		WHERE user_id=$1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, PageSize, (page-1)*PageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (r *PGRepo) List(ctx context.Context, f Filter) ([]Order, int, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if f.Page < 1 {
		f.Page = 1
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+orderCols+`, COUNT(*) OVER() AS total
		FROM orders
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR delivery_status = $2)
		  AND ($3 = '' OR id::text ILIKE '%'||$3||'%' OR user_id ILIKE '%'||$3||'%' OR provider_ref ILIKE '%'||$3||'%')
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`, f.Status, f.DeliveryStatus, f.Search, PageSize, (f.Page-1)*PageSize)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Order
	total := 0
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Amount, &o.Currency, &o.ProviderRef,
			&o.Status, &o.DeliveryStatus, &o.Refunded, &o.RefundRef, &o.CreatedAt, &o.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		out = append(out, o)
	}
	return out, total, rows.Err()
}

func (r *PGRepo) UpdateDeliveryStatus(ctx context.Context, id, status string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tag, err := r.db.Exec(ctx, `
		UPDATE orders
		SET delivery_status = $2, updated_at = NOW()
		WHERE id = $1 AND delivery_status <> $3
	`, id, status, DeliveryCancelled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Tell "missing" from "cancelled".
		var one int
		err := r.db.QueryRow(ctx, `SELECT 1 FROM orders WHERE id=$1`, id).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrCancelled
	}
	return nil
}

func (r *PGRepo) MarkRefunded(ctx context.Context, id, refundRef string, items []Item) (bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// The refunded flag is the idempotency guard: only the transaction that
	// flips it restores stock, so one provider refund restores at most once.
	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $2, refunded = TRUE, delivery_status = $3, refund_ref = $4, updated_at = NOW()
		WHERE id = $1 AND refunded = FALSE
	`, id, StatusRefunded, DeliveryCancelled, refundRef)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	for _, it := range items {
		if _, err := tx.Exec(ctx, `
			UPDATE products
			SET stock = stock + $2, updated_at = NOW()
			WHERE id = $1 AND stock IS NOT NULL
		`, it.ProductID, it.Quantity); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *PGRepo) RecordFailure(ctx context.Context, f *FulfillmentFailure) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := r.db.Exec(ctx, `
		INSERT INTO fulfillment_failures (id, provider_ref, user_id, amount, currency, reason, created_at)
		SELECT $1,$2,$3,$4,$5,$6,NOW()
		WHERE NOT EXISTS (SELECT 1 FROM orders WHERE provider_ref = $2)
		ON CONFLICT (provider_ref) DO NOTHING
	`, f.ID, f.ProviderRef, f.UserID, f.Amount, f.Currency, f.Reason)
	return err
}

func (r *PGRepo) FailureExists(ctx context.Context, providerRef string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var one int
	err := r.db.QueryRow(ctx, `
		SELECT 1 FROM fulfillment_failures WHERE provider_ref=$1
	`, providerRef).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *PGRepo) ListFailures(ctx context.Context, page int) ([]FulfillmentFailure, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if page < 1 {
		page = 1
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, provider_ref, user_id, amount, currency, reason, created_at
		FROM fulfillment_failures
		ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`, PageSize, (page-1)*PageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FulfillmentFailure
	for rows.Next() {
		var f FulfillmentFailure
		if err := rows.Scan(&f.ID, &f.ProviderRef, &f.UserID, &f.Amount, &f.Currency, &f.Reason, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func collectOrders(rows pgx.Rows) ([]Order, error) {
	var out []Order
	for rows.Next() {
		var o Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
