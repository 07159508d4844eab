// Package payment is the client for the external payment provider. Every
// call crosses the network exactly once per attempt and is bounded by the
// client timeout; ErrUnavailable means "unknown outcome", never "failed".
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrUnavailable: the provider could not be reached or answered 5xx.
	// The caller must not infer success or failure from it.
	ErrUnavailable = errors.New("payment provider unavailable")
	// ErrCouponNotFound: the provider knows no coupon with that code.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrRefundRejected: the provider definitively refused the refund.
	ErrRefundRejected = errors.New("refund rejected by provider")
)

type Client struct {
	HTTP    *http.Client
	BaseURL string
	APIKey  string
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		HTTP:    &http.Client{Timeout: timeout},
		BaseURL: baseURL,
		APIKey:  apiKey,
	}
}

type LineItem struct {
	Name     string `json:"name"`
	Amount   int64  `json:"amount"` // unit price, minor units
	Currency string `json:"currency"`
	Quantity int    `json:"quantity"`
}

type SessionParams struct {
	LineItems  []LineItem        `json:"line_items"`
	CouponID   string            `json:"coupon,omitempty"`
	SuccessURL string            `json:"success_url"`
	CancelURL  string            `json:"cancel_url"`
	// Metadata is echoed back verbatim on the confirmation event; it is the
	// only channel correlating a payment to a user and their cart.
	Metadata map[string]string `json:"metadata"`
}

type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type Coupon struct {
	ID         string  `json:"id"`
	PercentOff float64 `json:"percent_off,omitempty"`
	AmountOff  int64   `json:"amount_off,omitempty"`
	Currency   string  `json:"currency,omitempty"`
	Valid      bool    `json:"valid"`
}

type Refund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (c *Client) CreateCheckoutSession(ctx context.Context, p SessionParams) (*Session, error) {
	var s Session
	if err := c.post(ctx, "/v1/checkout/sessions", "", p, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetCoupon is a pure read-through to the provider's coupon registry.
func (c *Client) GetCoupon(ctx context.Context, code string) (*Coupon, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.BaseURL+"/v1/coupons/"+url.PathEscape(code), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
		var cp Coupon
		if err := json.NewDecoder(res.Body).Decode(&cp); err != nil {
			return nil, err
		}
		return &cp, nil
	case res.StatusCode == http.StatusNotFound:
		return nil, ErrCouponNotFound
	case res.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %s", ErrUnavailable, res.Status)
	default:
		return nil, fmt.Errorf("coupon lookup failed: %s", res.Status)
	}
}

// CreateRefund asks the provider to refund the charge. idemKey makes retries
// safe: the provider returns the same refund for the same key. An empty
// reason is omitted from the request.
func (c *Client) CreateRefund(ctx context.Context, chargeRef, idemKey, reason string) (*Refund, error) {
	body := map[string]string{"charge": chargeRef}
	if reason != "" {
		body["reason"] = reason
	}
	var rf Refund
	if err := c.post(ctx, "/v1/refunds", idemKey, body, &rf); err != nil {
		var re *rejectedError
		if errors.As(err, &re) {
			return nil, fmt.Errorf("%w: status %s", ErrRefundRejected, re.status)
		}
		return nil, err
	}
	return &rf, nil
}

// rejectedError marks a definitive provider 4xx, as opposed to an unknown
// outcome.
type rejectedError struct{ status string }

func (e *rejectedError) Error() string { return "provider rejected request: " + e.status }

func (c *Client) post(ctx context.Context, path, idemKey string, in, out any) error {
	buf, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	res, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK, res.StatusCode == http.StatusCreated:
		return json.NewDecoder(res.Body).Decode(out)
	case res.StatusCode >= 500:
		return fmt.Errorf("%w: status %s", ErrUnavailable, res.Status)
	default:
		return &rejectedError{status: res.Status}
	}
}
