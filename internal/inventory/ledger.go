// Package inventory holds the stock ledger. Reserve is the only way stock
// leaves the system and it must stay correct under concurrent confirmations
// for the same product, so both implementations decrement conditionally in a
// single atomic step instead of reading and writing back.
package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound          = errors.New("inventory: product not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

type Ledger interface {
	// Reserve atomically decrements stock by qty, failing with
	// ErrInsufficientStock when fewer than qty units remain. Products with
	// unlimited (NULL) stock always succeed.
	Reserve(ctx context.Context, productID string, qty int) error
	// Restore returns qty units. It has no failure mode besides invalid
	// input; duplicate restores are the caller's job to prevent.
	Restore(ctx context.Context, productID string, qty int) error
}

type PGLedger struct{ db *pgxpool.Pool }

func NewPGLedger(db *pgxpool.Pool) *PGLedger { return &PGLedger{db: db} }

func (l *PGLedger) Reserve(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// NULL stock stays NULL (unlimited); the guard only rejects a real
	// deficit. The WHERE clause carries the atomicity: no read-then-write.
	tag, err := l.db.Exec(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND (stock IS NULL OR stock >= $2)
	`, productID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var one int
		err := l.db.QueryRow(ctx, `SELECT 1 FROM products WHERE id=$1`, productID).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrInsufficientStock
	}
	return nil
}

func (l *PGLedger) Restore(ctx context.Context, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Restoring an unlimited product is a no-op.
	_, err := l.db.Exec(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1 AND stock IS NOT NULL
	`, productID, qty)
	return err
}
