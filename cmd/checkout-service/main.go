package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/MikeMC777/checkout-ecom/internal/cart"
	"github.com/MikeMC777/checkout-ecom/internal/catalog"
	"github.com/MikeMC777/checkout-ecom/internal/checkout"
	"github.com/MikeMC777/checkout-ecom/internal/config"
	"github.com/MikeMC777/checkout-ecom/internal/db"
	"github.com/MikeMC777/checkout-ecom/internal/fulfillment"
	"github.com/MikeMC777/checkout-ecom/internal/httpx"
	"github.com/MikeMC777/checkout-ecom/internal/inventory"
	"github.com/MikeMC777/checkout-ecom/internal/logging"
	"github.com/MikeMC777/checkout-ecom/internal/metrics"
	"github.com/MikeMC777/checkout-ecom/internal/order"
	"github.com/MikeMC777/checkout-ecom/internal/payment"
)

func main() {
	cfg := config.Load()
	log := logging.New("checkout-service")
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	pool, err := db.Connect(ctx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatal("migrations", zap.Error(err))
	}
	log.Info("migrations applied")

	// Singletons built once, injected everywhere.
	catalogRepo := catalog.NewPGRepo(pool)
	cartRepo := cart.NewPGRepo(pool)
	orderRepo := order.NewPGRepo(pool)
	ledger := inventory.NewPGLedger(pool)
	payments := payment.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.ProviderTimeout)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	builder := checkout.NewBuilder(catalogRepo, payments, "usd", cfg.CheckoutSuccess, cfg.CheckoutCancel)
	processor := fulfillment.NewProcessor(orderRepo, ledger, log, m)
	refunder := fulfillment.NewRefunder(orderRepo, payments, log, m)

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := v.RegisterValidation("deliverystatus", order.DeliveryStatusValidation); err != nil {
			log.Fatal("register validation", zap.Error(err))
		}
	}

	r := newRouter(log, cfg, cartRepo, catalogRepo, orderRepo, builder, processor, refunder, reg)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		log.Info("checkout-service listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}

func newRouter(
	log *zap.Logger,
	cfg config.Config,
	carts cart.Repository,
	cat catalog.Repository,
	orders order.Repository,
	builder *checkout.Builder,
	processor *fulfillment.Processor,
	refunder *fulfillment.Refunder,
	reg *prometheus.Registry,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger(log))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.POST("/webhooks/payment", webhookHandler(cfg.WebhookSecret, processor, log))

	auth := r.Group("/", httpx.Auth())
	{
		auth.GET("/cart", getCartHandler(carts, cat))
		auth.POST("/cart/items", addCartItemHandler(carts, cat))
		auth.PUT("/cart/items/:id", updateCartItemHandler(carts, cat))
		auth.DELETE("/cart/items/:id", removeCartItemHandler(carts))
		auth.DELETE("/cart", clearCartHandler(carts))

		auth.POST("/checkout", createCheckoutHandler(carts, builder))
		auth.POST("/coupons/validate", validateCouponHandler(carts, cat, builder))

		auth.GET("/orders", listMyOrdersHandler(orders))
		auth.GET("/orders/:id", getOrderHandler(orders))
		auth.POST("/orders/:id/refund", refundOrderHandler(refunder))

		admin := auth.Group("/admin", httpx.RequireAdmin())
		{
			admin.GET("/orders", adminListOrdersHandler(orders))
			admin.PUT("/orders/:id/delivery-status", adminUpdateDeliveryHandler(orders))
			admin.GET("/fulfillment-failures", adminListFailuresHandler(orders))
		}
	}

	return r
}
