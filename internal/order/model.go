package order

import "time"

// Order statuses. An order only ever exists because a payment was confirmed,
// so there is no pending state.
const (
	StatusPaid     = "paid"
	StatusRefunded = "refunded"
)

// Delivery statuses. Admins move orders between Processing, Shipped and
// Delivered (corrections allowed); Cancelled is terminal and only a refund
// sets it.
const (
	DeliveryProcessing = "Processing"
	DeliveryShipped    = "Shipped"
	DeliveryDelivered  = "Delivered"
	DeliveryCancelled  = "Cancelled"
)

// AdminDeliveryStatuses are the values an administrator may set directly.
var AdminDeliveryStatuses = []string{DeliveryProcessing, DeliveryShipped, DeliveryDelivered}

type Order struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	// Amount captured by the provider, minor currency units.
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	// ProviderRef is the provider charge/session reference, unique per
	// order; it is the idempotency key for confirmation events.
	ProviderRef    string    `json:"provider_ref"`
	Status         string    `json:"status"`
	DeliveryStatus string    `json:"delivery_status"`
	Refunded       bool      `json:"refunded"`
	RefundRef      *string   `json:"refund_ref,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Item is a frozen copy of product data at purchase time. Never re-read from
// the live catalog.
type Item struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	Image     string `json:"image,omitempty"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
}

// FulfillmentFailure records a confirmed payment whose inventory could not be
// reserved. It requires a compensating refund and must never be silent.
type FulfillmentFailure struct {
	ID          string    `json:"id"`
	ProviderRef string    `json:"provider_ref"`
	UserID      string    `json:"user_id"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}
