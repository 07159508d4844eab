// Package fulfillment owns the two money-moving transitions: turning a
// confirmed payment into a paid order, and reversing a paid order into a
// refund. Nothing else creates orders or touches their refund state.
package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MikeMC777/checkout-ecom/internal/checkout"
	"github.com/MikeMC777/checkout-ecom/internal/inventory"
	"github.com/MikeMC777/checkout-ecom/internal/metrics"
	"github.com/MikeMC777/checkout-ecom/internal/order"
)

// ErrBadEvent: the event is malformed (missing reference, user or snapshot).
// Retrying a malformed event can never succeed, so the transport should not
// ask the provider to retry it.
var ErrBadEvent = errors.New("malformed confirmation event")

type Outcome int

const (
	// OutcomeCreated: the order committed; acknowledge.
	OutcomeCreated Outcome = iota
	// OutcomeDuplicate: this reference was already processed (order created
	// or failure recorded); acknowledge without side effects.
	OutcomeDuplicate
	// OutcomeFailureRecorded: payment captured but stock ran out; a
	// FulfillmentFailure row awaits a compensating refund. Acknowledge —
	// retrying cannot conjure stock.
	OutcomeFailureRecorded
)

type Processor struct {
	orders order.Repository
	ledger inventory.Ledger
	log    *zap.Logger
	m      *metrics.Metrics
}

func NewProcessor(orders order.Repository, ledger inventory.Ledger, log *zap.Logger, m *metrics.Metrics) *Processor {
	return &Processor{orders: orders, ledger: ledger, log: log, m: m}
}

// Confirm is the sole writer of paid orders. Any returned error is transient:
// no order was committed and the provider should redeliver; the idempotency
// check makes the redelivery safe.
func (p *Processor) Confirm(ctx context.Context, ev Event) (Outcome, *order.Order, error) {
	if ev.ProviderRef == "" || ev.Metadata.UserID == "" || ev.Metadata.CartSnapshot == "" {
		return 0, nil, ErrBadEvent
	}
	snapshot, err := checkout.DecodeSnapshot(ev.Metadata.CartSnapshot)
	if err != nil || len(snapshot) == 0 {
		return 0, nil, ErrBadEvent
	}

	// Idempotency first, before any mutation.
	if _, err := p.orders.GetByProviderRef(ctx, ev.ProviderRef); err == nil {
		p.m.DuplicateConfirmations.Inc()
		p.log.Info("duplicate confirmation ignored", zap.String("provider_ref", ev.ProviderRef))
		return OutcomeDuplicate, nil, nil
	} else if !errors.Is(err, order.ErrNotFound) {
		return 0, nil, err
	}
	seen, err := p.orders.FailureExists(ctx, ev.ProviderRef)
	if err != nil {
		return 0, nil, err
	}
	if seen {
		p.m.DuplicateConfirmations.Inc()
		return OutcomeDuplicate, nil, nil
	}

	// Reserve every line; on the first failure give back what was taken so
	// a partial confirmation never leaks stock.
	reserved := snapshot[:0:0]
	for _, it := range snapshot {
		if err := p.ledger.Reserve(ctx, it.ProductID, it.Quantity); err != nil {
			p.release(ctx, reserved)
			if errors.Is(err, inventory.ErrInsufficientStock) || errors.Is(err, inventory.ErrNotFound) {
				return p.recordFailure(ctx, ev, fmt.Sprintf("reserve %s x%d: %v", it.ProductID, it.Quantity, err))
			}
			return 0, nil, err
		}
		reserved = append(reserved, it)
	}

	o := &order.Order{
		ID:             uuid.NewString(),
		UserID:         ev.Metadata.UserID,
		Amount:         ev.AmountCaptured,
		Currency:       ev.Currency,
		ProviderRef:    ev.ProviderRef,
		Status:         order.StatusPaid,
		DeliveryStatus: order.DeliveryProcessing,
	}
	items := make([]order.Item, 0, len(snapshot))
	for _, it := range snapshot {
		items = append(items, order.Item{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			ProductID: it.ProductID,
			Title:     it.Title,
			Image:     it.Image,
			Price:     it.Price,
			Quantity:  it.Quantity,
		})
	}

	if subtotal := checkout.Subtotal(snapshot); ev.AmountCaptured > subtotal {
		p.log.Warn("captured amount exceeds frozen cart subtotal",
			zap.String("provider_ref", ev.ProviderRef),
			zap.Int64("captured", ev.AmountCaptured),
			zap.Int64("subtotal", subtotal))
	}

	if err := p.orders.Create(ctx, o, items); err != nil {
		// Either way our reservations must be returned: on a duplicate the
		// winning delivery already took the stock, on a transient error the
		// provider will redeliver and reserve again.
		p.release(ctx, reserved)
		if errors.Is(err, order.ErrDuplicateProviderRef) {
			p.m.DuplicateConfirmations.Inc()
			return OutcomeDuplicate, nil, nil
		}
		return 0, nil, err
	}

	p.m.OrdersCreated.Inc()
	p.log.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.String("provider_ref", o.ProviderRef),
		zap.Int64("amount", o.Amount))
	return OutcomeCreated, o, nil
}

func (p *Processor) recordFailure(ctx context.Context, ev Event, reason string) (Outcome, *order.Order, error) {
	f := &order.FulfillmentFailure{
		ID:          uuid.NewString(),
		ProviderRef: ev.ProviderRef,
		UserID:      ev.Metadata.UserID,
		Amount:      ev.AmountCaptured,
		Currency:    ev.Currency,
		Reason:      reason,
	}
	if err := p.orders.RecordFailure(ctx, f); err != nil {
		return 0, nil, err
	}
	// A concurrent delivery of the same event may have taken the last stock
	// and committed between our idempotency check and the failed reserve. The
	// committed order is authoritative: this delivery is a duplicate, not a
	// failure, and RecordFailure declined to store one.
	if _, err := p.orders.GetByProviderRef(ctx, ev.ProviderRef); err == nil {
		p.m.DuplicateConfirmations.Inc()
		p.log.Info("confirmation lost a stock race to its own duplicate",
			zap.String("provider_ref", ev.ProviderRef))
		return OutcomeDuplicate, nil, nil
	} else if !errors.Is(err, order.ErrNotFound) {
		return 0, nil, err
	}
	p.m.FulfillmentFailures.Inc()
	p.log.Error("fulfillment failure: payment captured but stock unavailable, refund required",
		zap.String("provider_ref", ev.ProviderRef),
		zap.String("user_id", ev.Metadata.UserID),
		zap.Int64("amount", ev.AmountCaptured),
		zap.String("reason", reason))
	return OutcomeFailureRecorded, nil, nil
}

func (p *Processor) release(ctx context.Context, reserved []checkout.SnapshotItem) {
	for _, it := range reserved {
		if err := p.ledger.Restore(ctx, it.ProductID, it.Quantity); err != nil {
			p.log.Error("restore after failed confirmation",
				zap.String("product_id", it.ProductID),
				zap.Int("quantity", it.Quantity),
				zap.Error(err))
		}
	}
}
