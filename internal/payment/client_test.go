package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetCoupon_StatusMapping(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/coupons/TEN", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk_test" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		_ = json.NewEncoder(w).Encode(Coupon{ID: "TEN", PercentOff: 10, Valid: true})
	})
	mux.HandleFunc("/v1/coupons/BROKEN", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test", 2*time.Second)
	ctx := context.Background()

	cp, err := c.GetCoupon(ctx, "TEN")
	if err != nil || !cp.Valid || cp.PercentOff != 10 {
		t.Fatalf("cp=%+v err=%v", cp, err)
	}
	if _, err := c.GetCoupon(ctx, "MISSING"); !errors.Is(err, ErrCouponNotFound) {
		t.Fatalf("404: err=%v, want ErrCouponNotFound", err)
	}
	if _, err := c.GetCoupon(ctx, "BROKEN"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("500: err=%v, want ErrUnavailable", err)
	}
}

func TestCreateRefund_RejectedVsUnavailable(t *testing.T) {
	t.Parallel()

	status := http.StatusPaymentRequired
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"charge_already_refunded"}`, status)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "sk_test", 2*time.Second)
	ctx := context.Background()

	// 4xx is a definitive rejection.
	if _, err := c.CreateRefund(ctx, "ch_1", "key-1", ""); !errors.Is(err, ErrRefundRejected) {
		t.Fatalf("4xx: err=%v, want ErrRefundRejected", err)
	}
	// 5xx is an unknown outcome, never a rejection.
	status = http.StatusBadGateway
	if _, err := c.CreateRefund(ctx, "ch_1", "key-1", ""); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("5xx: err=%v, want ErrUnavailable", err)
	}
}

func TestClient_UnreachableProvider(t *testing.T) {
	t.Parallel()

	c := NewClient("http://127.0.0.1:1", "sk_test", 500*time.Millisecond)
	if _, err := c.CreateCheckoutSession(context.Background(), SessionParams{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err=%v, want ErrUnavailable", err)
	}
}
