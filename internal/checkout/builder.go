// Package checkout turns a cart into a provider checkout session. Building a
// session reserves nothing and creates no order: it is a quote plus a
// redirect. Holding stock through an open-ended hosted payment flow would
// starve other buyers, so stock is taken only when the payment confirms.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/MikeMC777/checkout-ecom/internal/cart"
	"github.com/MikeMC777/checkout-ecom/internal/catalog"
	"github.com/MikeMC777/checkout-ecom/internal/payment"
)

var (
	ErrEmptyCart = errors.New("cart is empty, nothing to checkout")
	// ErrInvalidCart: a product in the cart no longer exists.
	ErrInvalidCart = errors.New("cart references an unknown product")
	// ErrCouponInvalid: the provider looked the coupon up and said no. A
	// provider outage is payment.ErrUnavailable instead; an unverifiable
	// coupon is never applied.
	ErrCouponInvalid = errors.New("coupon is not valid")
)

// MetadataUserID and MetadataCart are the session metadata keys the
// confirmation event echoes back.
const (
	MetadataUserID = "userId"
	MetadataCart   = "cartSnapshot"
)

type Builder struct {
	catalog  catalog.Repository
	payments *payment.Client

	Currency   string
	SuccessURL string
	CancelURL  string
}

func NewBuilder(cat catalog.Repository, pc *payment.Client, currency, successURL, cancelURL string) *Builder {
	return &Builder{
		catalog:    cat,
		payments:   pc,
		Currency:   currency,
		SuccessURL: successURL,
		CancelURL:  cancelURL,
	}
}

// ValidateCoupon is a read-through to the provider's coupon registry.
func (b *Builder) ValidateCoupon(ctx context.Context, code string) (*payment.Coupon, error) {
	cp, err := b.payments.GetCoupon(ctx, code)
	if err != nil {
		if errors.Is(err, payment.ErrCouponNotFound) {
			return nil, ErrCouponInvalid
		}
		return nil, err
	}
	if !cp.Valid {
		return nil, ErrCouponInvalid
	}
	return cp, nil
}

// BuildSession freezes current product title and price for every cart line,
// attaches the serialized snapshot and user id as metadata, and returns the
// provider's hosted-payment redirect URL. Client-supplied prices are never
// trusted; only the catalog's.
func (b *Builder) BuildSession(ctx context.Context, userID string, items []cart.Item, couponCode string) (string, error) {
	if len(items) == 0 {
		return "", ErrEmptyCart
	}

	if couponCode != "" {
		if _, err := b.ValidateCoupon(ctx, couponCode); err != nil {
			return "", err
		}
	}

	snapshot := make([]SnapshotItem, 0, len(items))
	lines := make([]payment.LineItem, 0, len(items))
	for _, it := range items {
		p, err := b.catalog.GetByID(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return "", fmt.Errorf("%w: %s", ErrInvalidCart, it.ProductID)
			}
			return "", err
		}
		snapshot = append(snapshot, SnapshotItem{
			ProductID: p.ID,
			Title:     p.Title,
			Image:     p.Image,
			Price:     p.Price,
			Quantity:  it.Quantity,
		})
		lines = append(lines, payment.LineItem{
			Name:     p.Title,
			Amount:   p.Price,
			Currency: b.Currency,
			Quantity: it.Quantity,
		})
	}

	encoded, err := EncodeSnapshot(snapshot)
	if err != nil {
		return "", err
	}

	s, err := b.payments.CreateCheckoutSession(ctx, payment.SessionParams{
		LineItems:  lines,
		CouponID:   couponCode,
		SuccessURL: b.SuccessURL,
		CancelURL:  b.CancelURL,
		Metadata: map[string]string{
			MetadataUserID: userID,
			MetadataCart:   encoded,
		},
	})
	if err != nil {
		return "", err
	}
	return s.URL, nil
}
