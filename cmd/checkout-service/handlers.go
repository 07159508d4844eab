package main

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MikeMC777/checkout-ecom/internal/cart"
	"github.com/MikeMC777/checkout-ecom/internal/catalog"
	"github.com/MikeMC777/checkout-ecom/internal/checkout"
	"github.com/MikeMC777/checkout-ecom/internal/fulfillment"
	"github.com/MikeMC777/checkout-ecom/internal/httpx"
	"github.com/MikeMC777/checkout-ecom/internal/money"
	"github.com/MikeMC777/checkout-ecom/internal/order"
	"github.com/MikeMC777/checkout-ecom/internal/payment"
)

// HTTPError standard JSON error body.
// swagger:model
type HTTPError struct {
	Error string `json:"error"`
}

func abortErr(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errStatus(err), HTTPError{Error: err.Error()})
}

// errStatus maps the package sentinels onto the HTTP taxonomy. Provider
// errors stay distinguishable from local ones: 502 means "the provider said
// no or could not be reached", never "your request was wrong".
func errStatus(err error) int {
	switch {
	case errors.Is(err, cart.ErrNotFound),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errInsufficientStock),
		errors.Is(err, fulfillment.ErrAlreadyRefunded),
		errors.Is(err, fulfillment.ErrNotPayable),
		errors.Is(err, order.ErrCancelled):
		return http.StatusConflict
	case errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrInvalidCart),
		errors.Is(err, checkout.ErrCouponInvalid):
		return http.StatusBadRequest
	case errors.Is(err, payment.ErrUnavailable),
		errors.Is(err, payment.ErrRefundRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var errInsufficientStock = errors.New("insufficient stock")

//
// ---------- CART ----------
//

// AddCartItemRequest payload to add a product to the cart.
// swagger:model AddCartItemRequest
type AddCartItemRequest struct {
	ProductID string `json:"product_id" binding:"required,uuid" example:"4e7d4e5c-5cb9-4a3f-9f21-7e1a4f9f2b2a"`
	Quantity  int    `json:"quantity" binding:"required,min=1" example:"2"`
}

// UpdateCartItemRequest payload to change a line's quantity.
// swagger:model UpdateCartItemRequest
type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1" example:"3"`
}

type cartItemView struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	Image     string `json:"image,omitempty"`
	Price     string `json:"price"`
	Quantity  int    `json:"quantity"`
	LineTotal string `json:"line_total"`
}

type cartView struct {
	Items []cartItemView `json:"items"`
	Total string         `json:"total"`
}

func buildCartView(c *gin.Context, carts cart.Repository, cat catalog.Repository, userID string) (*cartView, int64, error) {
	items, err := carts.Get(c.Request.Context(), userID)
	if err != nil {
		return nil, 0, err
	}
	view := cartView{Items: []cartItemView{}}
	var total int64
	for _, it := range items {
		p, err := cat.GetByID(c.Request.Context(), it.ProductID)
		if err != nil {
			// A product removed from the catalog after being carted is
			// skipped here; checkout rejects it explicitly.
			if errors.Is(err, catalog.ErrNotFound) {
				continue
			}
			return nil, 0, err
		}
		line := p.Price * int64(it.Quantity)
		total += line
		view.Items = append(view.Items, cartItemView{
			ID:        it.ID,
			ProductID: p.ID,
			Title:     p.Title,
			Image:     p.Image,
			Price:     money.Format(p.Price),
			Quantity:  it.Quantity,
			LineTotal: money.Format(line),
		})
	}
	view.Total = money.Format(total)
	return &view, total, nil
}

func getCartHandler(carts cart.Repository, cat catalog.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, _, err := buildCartView(c, carts, cat, httpx.UserID(c))
		if err != nil {
			abortErr(c, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func addCartItemHandler(carts cart.Repository, cat catalog.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AddCartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, HTTPError{Error: err.Error()})
			return
		}
		userID := httpx.UserID(c)

		p, err := cat.GetByID(c.Request.Context(), req.ProductID)
		if err != nil {
			abortErr(c, err)
			return
		}
		// Best-effort ceiling against the line this add would produce; the
		// ledger re-checks for real at confirmation time.
		existing := 0
		if items, err := carts.Get(c.Request.Context(), userID); err == nil {
			for _, it := range items {
				if it.ProductID == req.ProductID {
					existing = it.Quantity
				}
			}
		}
		if !p.InStock(existing + req.Quantity) {
			abortErr(c, errInsufficientStock)
			return
		}

		it, err := carts.AddItem(c.Request.Context(), userID, req.ProductID, req.Quantity)
		if err != nil {
			abortErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, it)
	}
}

func updateCartItemHandler(carts cart.Repository, cat catalog.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateCartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, HTTPError{Error: err.Error()})
			return
		}
		userID := httpx.UserID(c)

		it, err := carts.GetItem(c.Request.Context(), userID, c.Param("id"))
		if err != nil {
			abortErr(c, err)
			return
		}
		p, err := cat.GetByID(c.Request.Context(), it.ProductID)
		if err != nil {
			abortErr(c, err)
			return
		}
		if !p.InStock(req.Quantity) {
			abortErr(c, errInsufficientStock)
			return
		}

		if err := carts.UpdateQuantity(c.Request.Context(), userID, it.ID, req.Quantity); err != nil {
			abortErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func removeCartItemHandler(carts cart.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := carts.RemoveItem(c.Request.Context(), httpx.UserID(c), c.Param("id")); err != nil {
			abortErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func clearCartHandler(carts cart.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := carts.Clear(c.Request.Context(), httpx.UserID(c)); err != nil {
			abortErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

//
// ---------- CHECKOUT & COUPONS ----------
//

// CheckoutRequest payload to start a hosted checkout for the current cart.
// swagger:model CheckoutRequest
type CheckoutRequest struct {
	CouponCode string `json:"coupon_code,omitempty" example:"WELCOME10"`
}

func createCheckoutHandler(carts cart.Repository, builder *checkout.Builder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CheckoutRequest
		if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
			c.JSON(http.StatusBadRequest, HTTPError{Error: err.Error()})
			return
		}
		userID := httpx.UserID(c)

		items, err := carts.Get(c.Request.Context(), userID)
		if err != nil {
			abortErr(c, err)
			return
		}
		url, err := builder.BuildSession(c.Request.Context(), userID, items, req.CouponCode)
		if err != nil {
			abortErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"redirect_url": url})
	}
}

// ValidateCouponRequest payload.
// swagger:model ValidateCouponRequest
type ValidateCouponRequest struct {
	Code string `json:"code" binding:"required" example:"WELCOME10"`
}

func validateCouponHandler(carts cart.Repository, cat catalog.Repository, builder *checkout.Builder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ValidateCouponRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, HTTPError{Error: err.Error()})
			return
		}

		cp, err := builder.ValidateCoupon(c.Request.Context(), req.Code)
		if err != nil {
			if errors.Is(err, checkout.ErrCouponInvalid) {
				c.JSON(http.StatusOK, gin.H{"valid": false, "message": "coupon is not valid"})
				return
			}
			// Unverifiable is not invalid: surface the provider problem.
			abortErr(c, err)
			return
		}

		resp := gin.H{
			"valid":       true,
			"percent_off": cp.PercentOff,
			"amount_off":  cp.AmountOff,
			"currency":    cp.Currency,
		}
		// Preview against the current cart when there is one.
		if _, subtotal, err := buildCartView(c, carts, cat, httpx.UserID(c)); err == nil && subtotal > 0 {
			resp["cart_total"] = money.Format(subtotal)
			resp["discounted_total"] = money.Format(money.ApplyCoupon(subtotal, cp.PercentOff, cp.AmountOff))
		}
		c.JSON(http.StatusOK, resp)
	}
}

//
// ---------- PAYMENT CONFIRMATION (webhook) ----------
//

func webhookHandler(secret string, proc *fulfillment.Processor, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.JSON(http.StatusUnauthorized, HTTPError{Error: "bad webhook secret"})
			return
		}

		var ev fulfillment.Event
		if err := c.ShouldBindJSON(&ev); err != nil {
			c.JSON(http.StatusBadRequest, HTTPError{Error: err.Error()})
			return
		}

		outcome, o, err := proc.Confirm(c.Request.Context(), ev)
		if err != nil {
			if errors.Is(err, fulfillment.ErrBadEvent) {
				c.JSON(http.StatusBadRequest, HTTPError{Error: err.Error()})
				return
			}
			// Transient: answer non-2xx so the provider redelivers.
			log.Error("confirmation failed, requesting redelivery",
				zap.String("provider_ref", ev.ProviderRef), zap.Error(err))
			c.JSON(http.StatusInternalServerError, HTTPError{Error: "confirmation not committed"})
			return
		}

		switch outcome {
		case fulfillment.OutcomeCreated:
			c.JSON(http.StatusOK, gin.H{"status": "created", "order_id": o.ID})
		case fulfillment.OutcomeDuplicate:
			c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		case fulfillment.OutcomeFailureRecorded:
			c.JSON(http.StatusOK, gin.H{"status": "fulfillment_failed"})
		}
	}
}

//
// ---------- ORDERS ----------
//

func listMyOrdersHandler(orders order.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		out, err := orders.ListByUser(c.Request.Context(), httpx.UserID(c), page)
		if err != nil {
			abortErr(c, err)
			return
		}
		if out == nil {
			out = []order.Order{}
		}
		c.JSON(http.StatusOK, gin.H{"items": out, "page": page, "page_size": order.PageSize})
	}
}

func getOrderHandler(orders order.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, items, err := orders.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortErr(c, err)
			return
		}
		// Ownership is protected from enumeration: not yours reads as 404.
		if o.UserID != httpx.UserID(c) && !httpx.IsAdmin(c) {
			abortErr(c, order.ErrNotFound)
			return
		}
		if items == nil {
			items = []order.Item{}
		}
		c.JSON(http.StatusOK, gin.H{"order": o, "items": items, "amount": money.Format(o.Amount)})
	}
}

func refundOrderHandler(ref *fulfillment.Refunder) gin.HandlerFunc {
	return func(c *gin.Context) {
		// The reason body is optional.
		var req order.RefundRequest
		if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
			c.JSON(http.StatusBadRequest, HTTPError{Error: err.Error()})
			return
		}
		o, err := ref.Refund(c.Request.Context(), c.Param("id"), httpx.UserID(c), httpx.IsAdmin(c), req.Reason)
		if err != nil {
			abortErr(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

//
// ---------- ADMIN ----------
//

func adminListOrdersHandler(orders order.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		f := order.Filter{
			Page:           page,
			Search:         c.Query("search"),
			Status:         c.Query("status"),
			DeliveryStatus: c.Query("delivery_status"),
		}
		out, total, err := orders.List(c.Request.Context(), f)
		if err != nil {
			abortErr(c, err)
			return
		}
		if out == nil {
			out = []order.Order{}
		}
		c.JSON(http.StatusOK, gin.H{
			"items": out, "total": total, "page": f.Page, "page_size": order.PageSize,
		})
	}
}

func adminUpdateDeliveryHandler(orders order.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req order.UpdateDeliveryStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, HTTPError{Error: err.Error()})
			return
		}
		if err := orders.UpdateDeliveryStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
			abortErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "delivery_status": req.Status})
	}
}

func adminListFailuresHandler(orders order.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		out, err := orders.ListFailures(c.Request.Context(), page)
		if err != nil {
			abortErr(c, err)
			return
		}
		if out == nil {
			out = []order.FulfillmentFailure{}
		}
		c.JSON(http.StatusOK, gin.H{"items": out, "page": page, "page_size": order.PageSize})
	}
}
