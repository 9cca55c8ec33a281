package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/krumbkraft/orderflow/internal/addresses"
	"github.com/krumbkraft/orderflow/internal/checkout"
	apperrors "github.com/krumbkraft/orderflow/internal/errors"
	"github.com/krumbkraft/orderflow/internal/idempotency"
	"github.com/krumbkraft/orderflow/internal/messages"
	"github.com/krumbkraft/orderflow/internal/notify"
	"github.com/krumbkraft/orderflow/internal/orders"
	"github.com/krumbkraft/orderflow/internal/validation"
)

type CheckoutService interface {
	PlaceOrder(ctx context.Context, req checkout.Request) (*checkout.Result, error)
	UpdateStatus(ctx context.Context, orderID, status, notes string) (*checkout.StatusResult, error)
}

type IdempotencyStore interface {
	Begin(ctx context.Context, key, requestHash string) (*idempotency.Record, bool, error)
	MarkDone(ctx context.Context, key, orderID, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

type AddressStore interface {
	Add(ctx context.Context, addr addresses.Address) (*addresses.Address, error)
	Get(ctx context.Context, id string) (*addresses.Address, error)
	ListByUser(ctx context.Context, userID string) ([]addresses.Address, error)
	Delete(ctx context.Context, id string) error
}

type WebhookDispatcher interface {
	Dispatch(ctx context.Context, p notify.Payload) (*notify.Result, error)
}

type WhatsAppSender interface {
	SendText(ctx context.Context, to, text string) (map[string]any, error)
	SendTemplate(ctx context.Context, to, name, languageCode string) (map[string]any, error)
	SendOrderConfirmation(ctx context.Context, o orders.Order, biz messages.Business) (map[string]any, error)
	SendBusinessNotification(ctx context.Context, o orders.Order, biz messages.Business) (map[string]any, error)
}

// HandlerConfig groups dependencies for the HTTP handlers. Idempotency,
// Addresses, Webhook and WhatsApp may be nil; their routes then answer 503.
type HandlerConfig struct {
	Checkout    CheckoutService
	Idempotency IdempotencyStore
	Addresses   AddressStore
	Webhook     WebhookDispatcher
	WhatsApp    WhatsAppSender
	Business    messages.Business
	Logger      *zap.Logger
	Now         func() time.Time
}

type handler struct {
	cfg    HandlerConfig
	logger *zap.Logger
	v      *validatorv10.Validate
}

// NewRouter builds a gin engine with recovery, request logging and all routes.
func NewRouter(cfg HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(loggerOrNop(cfg.Logger)))
	RegisterRoutes(r, cfg)
	return r
}

// RegisterRoutes registers the order, notification and address routes.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	h := &handler{cfg: cfg, logger: loggerOrNop(cfg.Logger), v: validation.New()}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/orders", h.placeOrder)
	r.PATCH("/orders/:orderId/status", h.updateStatus)

	r.POST("/webhook", h.triggerWebhook)
	r.POST("/whatsapp", h.sendWhatsApp)

	r.POST("/addresses", h.addAddress)
	r.GET("/addresses/:id", h.getAddress)
	r.DELETE("/addresses/:id", h.deleteAddress)
	r.GET("/users/:userId/addresses", h.listAddresses)
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// requestLogger tags each request with X-Request-Id and logs its outcome.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-Id", reqID)
		c.Next()

		logger.Info("request",
			zap.String("requestId", reqID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// writeError maps typed errors onto HTTP responses.
func (h *handler) writeError(c *gin.Context, err error) {
	if _, ok := apperrors.IsValidationError(err); ok {
		validation.WriteValidationError(c, err)
		return
	}
	if nf, ok := apperrors.IsNotFoundError(err); ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "msg": nf.Message})
		return
	}
	if _, ok := apperrors.IsPersistenceError(err); ok {
		h.logger.Error("persistence failure", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "persistence_failed", "msg": "order could not be saved, please try again"})
		return
	}
	h.logger.Error("internal error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": what + "_not_configured"})
}
