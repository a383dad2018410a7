package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/bookshop/pkg/config"
	"github.com/example/bookshop/pkg/models"
	"github.com/example/bookshop/pkg/order"
	"github.com/example/bookshop/pkg/repository"
	"github.com/example/bookshop/pkg/revenue"
	"github.com/example/bookshop/pkg/voucher"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

const (
	userIDHeader    = "X-User-ID"
	requestIDHeader = "X-Request-ID"
	idempotencyKey  = "Idempotency-Key"

	userIDKey    = "user_id"
	requestIDKey = "request_id"
)

type OrderService interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Placement, error)
	Advance(ctx context.Context, id uint64, status models.OrderStatus) (*models.Order, error)
	Cancel(ctx context.Context, id uint64) (*models.Order, error)
	ConfirmPayment(ctx context.Context, id uint64, success bool) (*models.Order, error)
	GetOrder(ctx context.Context, id, userID uint64) (*models.Order, error)
	ListOrders(ctx context.Context, userID uint64, page, pageSize int) (*order.Page, error)
	GetOrderByToken(ctx context.Context, token string) (*models.Order, error)
	QuoteVoucher(ctx context.Context, code string, subtotal int64, userID *uint64) (voucher.Result, error)
}

type RevenueService interface {
	Summary(ctx context.Context, period string, anchor time.Time) (*revenue.Summary, error)
	Location() *time.Location
}

type AuditReader interface {
	GetAuditLogs(ctx context.Context, orderID uint64, limit int64) ([]*repository.AuditLog, error)
}

type Gateway struct {
	config  *config.HTTPConfig
	orders  OrderService
	reports RevenueService
	audit   AuditReader
	logger  *zap.Logger
	router  *gin.Engine
	server  *http.Server
}

func NewGateway(cfg *config.HTTPConfig, orders OrderService, reports RevenueService, audit AuditReader, logger *zap.Logger) *Gateway {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(loggerMiddleware(logger))

	g := &Gateway{
		config:  cfg,
		orders:  orders,
		reports: reports,
		audit:   audit,
		logger:  logger,
		router:  router,
	}
	g.SetupRoutes()
	return g
}

func (g *Gateway) SetupRoutes() {
	// Health check
	g.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := g.router.Group("/api/v1")
	v1.Use(identityMiddleware())
	{
		orders := v1.Group("/orders")
		{
			orders.POST("", g.placeOrder)
			orders.GET("", requireUser(), g.listOrders)
			orders.GET("/:id", requireUser(), g.getOrder)
			orders.GET("/:id/history", requireUser(), g.getOrderHistory)
			orders.PUT("/:id/status", g.advanceStatus)
			orders.POST("/:id/cancel", g.cancelOrder)
			orders.POST("/:id/payment", g.confirmPayment)
		}

		v1.GET("/guest/orders/:token", g.getOrderByToken)
		v1.POST("/vouchers/quote", g.quoteVoucher)
		v1.GET("/reports/revenue", g.getRevenueSummary)
	}

	// Swagger
	g.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) Start() error {
	g.server = &http.Server{
		Addr:              g.config.Addr(),
		Handler:           g.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.logger.Info("HTTP gateway starting", zap.String("address", g.server.Addr))
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// identityMiddleware reads the caller identity set by the upstream identity
// provider. A missing header means a guest.
func identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(userIDHeader)
		if raw == "" {
			c.Next()
			return
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			badRequest(c, "invalid "+userIDHeader+" header")
			return
		}
		c.Set(userIDKey, id)
		c.Next()
	}
}

func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(userIDKey); !ok {
			fail(c, http.StatusUnauthorized, "unauthenticated", "user identification missing")
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *uint64 {
	v, ok := c.Get(userIDKey)
	if !ok {
		return nil
	}
	id := v.(uint64)
	return &id
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		// Guest tokens are credentials; log the route template instead.
		if strings.HasPrefix(c.FullPath(), "/api/v1/guest/") {
			path = c.FullPath()
		}

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if uid := currentUser(c); uid != nil {
			fields = append(fields, zap.Uint64("user_id", *uid))
		}
		logger.Info("HTTP request", fields...)
	}
}
