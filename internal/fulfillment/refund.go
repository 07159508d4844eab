package fulfillment

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MikeMC777/checkout-ecom/internal/metrics"
	"github.com/MikeMC777/checkout-ecom/internal/order"
	"github.com/MikeMC777/checkout-ecom/internal/payment"
)

var (
	ErrAlreadyRefunded = errors.New("order already refunded")
	ErrNotPayable      = errors.New("order is not in a refundable state")
)

type Refunder struct {
	orders   order.Repository
	payments *payment.Client
	log      *zap.Logger
	m        *metrics.Metrics
}

func NewRefunder(orders order.Repository, payments *payment.Client, log *zap.Logger, m *metrics.Metrics) *Refunder {
	return &Refunder{orders: orders, payments: payments, log: log, m: m}
}

// Refund reverses a paid order: provider refund first (fail closed — a
// provider error leaves local state untouched), then one local transaction
// that flips the order and restores stock. The provider call is
// idempotency-keyed by order id and the local step is conditional on
// refunded=false, so the whole operation can be retried after a partial
// failure without double-refunding or double-restoring.
//
// Requesters who are neither the owner nor an admin get order.ErrNotFound,
// not a permission error, so order ids cannot be enumerated. The optional
// reason is forwarded to the provider.
func (r *Refunder) Refund(ctx context.Context, orderID, requesterID string, admin bool, reason string) (*order.Order, error) {
	o, items, err := r.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !admin && o.UserID != requesterID {
		return nil, order.ErrNotFound
	}
	if o.Refunded {
		return nil, ErrAlreadyRefunded
	}
	if o.Status != order.StatusPaid {
		return nil, ErrNotPayable
	}

	rf, err := r.payments.CreateRefund(ctx, o.ProviderRef, "refund-"+o.ID, reason)
	if err != nil {
		return nil, err
	}

	applied, err := r.orders.MarkRefunded(ctx, o.ID, rf.ID, items)
	if err != nil {
		// Provider money already moved; the caller retries and the
		// idempotency key returns the same refund id.
		return nil, err
	}
	if applied {
		r.m.Refunds.Inc()
		r.log.Info("order refunded",
			zap.String("order_id", o.ID),
			zap.String("refund_ref", rf.ID),
			zap.Int64("amount", o.Amount),
			zap.String("reason", reason))
	}

	refreshed, _, err := r.orders.GetByID(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	return refreshed, nil
}
