// Package checkout turns a validated cart into a persisted order and fires
// best-effort notifications.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/krumbkraft/orderflow/internal/addresses"
	apperrors "github.com/krumbkraft/orderflow/internal/errors"
	"github.com/krumbkraft/orderflow/internal/messages"
	"github.com/krumbkraft/orderflow/internal/notify"
	"github.com/krumbkraft/orderflow/internal/orders"
	"github.com/krumbkraft/orderflow/internal/validation"
)

// Metric names emitted by checkout.
const (
	MetricOrdersPlaced       = "OrdersPlaced"
	MetricNumberingFallback  = "NumberingFallback"
	MetricDuplicateOrderID   = "DuplicateOrderID"
	MetricNotificationFailed = "NotificationFailed"
	MetricPersistenceFailed  = "PersistenceFailed"
)

const (
	defaultMaxNumberAttempts = 3
	dateLayout               = "2006-01-02"
)

type Request = validation.CheckoutRequest

type OrderStore interface {
	SaveOrder(ctx context.Context, order orders.Order) error
	UpdateStatus(ctx context.Context, orderID, status, notes string) error
	GetStatus(ctx context.Context, orderID string) (*orders.StatusRecord, error)
}

type AddressLookup interface {
	Get(ctx context.Context, id string) (*addresses.Address, error)
}

type Recorder interface {
	Count(ctx context.Context, name string, value float64, dimensions map[string]string) error
}

// Deps are the collaborators of a Service. Addresses, Notifier and Recorder
// may be nil.
type Deps struct {
	Numberer  orders.Numberer
	Store     OrderStore
	Addresses AddressLookup
	Notifier  Notifier
	Recorder  Recorder
	Logger    *zap.Logger
}

type Options struct {
	Business          messages.Business
	Location          *time.Location // delivery dates are calendar days here
	MaxNumberAttempts int
}

// Result is returned to the client once the order is persisted.
type Result struct {
	OrderID              string `json:"order_id"`
	UUID                 string `json:"uuid"`
	TotalAmount          int64  `json:"total_amount"`
	DeliveryDate         string `json:"delivery_date"`
	BusinessWhatsAppLink string `json:"business_whatsapp_link"`
	CustomerWhatsAppLink string `json:"customer_whatsapp_link"`
	NotificationSent     bool   `json:"notification_sent"`
	NumberingFallback    bool   `json:"numbering_fallback,omitempty"`
	ClearCart            bool   `json:"clear_cart"`
}

type StatusResult struct {
	OrderID          string `json:"order_id"`
	Status           string `json:"status"`
	NotificationSent bool   `json:"notification_sent"`
}

type Service struct {
	deps     Deps
	opts     Options
	validate *validatorv10.Validate
	logger   *zap.Logger
	now      func() time.Time
	newUUID  func() string
}

func NewService(deps Deps, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxNumberAttempts < 1 {
		opts.MaxNumberAttempts = defaultMaxNumberAttempts
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		deps:     deps,
		opts:     opts,
		validate: validation.New(),
		logger:   logger,
		now:      time.Now,
		newUUID:  uuid.NewString,
	}
}

// PlaceOrder validates req, assigns an order number, writes both order
// records and then notifies. Nothing is written if validation fails;
// nothing is sent if persistence fails.
func (s *Service) PlaceOrder(ctx context.Context, req Request) (*Result, error) {
	now := s.now()

	if err := validation.Validate(s.validate, req); err != nil {
		return nil, err
	}
	if err := s.checkDeliveryDate(req.DeliveryDate, now); err != nil {
		return nil, err
	}
	addr, err := s.resolveAddress(ctx, req)
	if err != nil {
		return nil, err
	}

	order := buildOrder(req, addr, s.newUUID(), now)

	fallback, err := s.persist(ctx, &order)
	if err != nil {
		s.count(ctx, MetricPersistenceFailed)
		return nil, err
	}
	s.count(ctx, MetricOrdersPlaced)

	sent := s.notify(ctx, notify.BuildOrderPlacedPayload(order, s.opts.Business, now))

	s.logger.Info("order placed",
		zap.String("orderId", order.OrderID),
		zap.String("uuid", order.UUID),
		zap.Int64("totalAmount", order.TotalAmount),
		zap.Bool("notificationSent", sent),
	)

	return &Result{
		OrderID:              order.OrderID,
		UUID:                 order.UUID,
		TotalAmount:          order.TotalAmount,
		DeliveryDate:         order.DeliveryDate,
		BusinessWhatsAppLink: messages.BuildWhatsAppLink(s.businessWhatsApp(), messages.RenderBusinessMessage(order, s.opts.Business)),
		CustomerWhatsAppLink: messages.BuildWhatsAppLink(order.Customer.Phone, messages.RenderCustomerMessage(order, s.opts.Business)),
		NotificationSent:     sent,
		NumberingFallback:    fallback,
		ClearCart:            true,
	}, nil
}

// checkDeliveryDate requires a date on or after tomorrow in the configured zone.
func (s *Service) checkDeliveryDate(date string, now time.Time) error {
	d, err := time.ParseInLocation(dateLayout, date, s.opts.Location)
	if err != nil {
		return apperrors.NewValidationError("invalid request", apperrors.ValidationDetail{
			Field: "delivery_date", Message: "must be a date in " + dateLayout + " format",
		})
	}
	local := now.In(s.opts.Location)
	tomorrow := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, s.opts.Location)
	if d.Before(tomorrow) {
		return apperrors.NewValidationError("invalid request", apperrors.ValidationDetail{
			Field: "delivery_date", Message: "must be on or after " + tomorrow.Format(dateLayout),
		})
	}
	return nil
}

func (s *Service) resolveAddress(ctx context.Context, req Request) (orders.Address, error) {
	if req.Address != nil {
		return req.Address.ToOrderAddress(), nil
	}

	notFound := apperrors.NewValidationError("invalid request", apperrors.ValidationDetail{
		Field: "address_id", Message: "no saved address with this id",
	})
	if s.deps.Addresses == nil {
		return orders.Address{}, notFound
	}
	saved, err := s.deps.Addresses.Get(ctx, req.AddressID)
	if err != nil {
		return orders.Address{}, apperrors.NewInternalError("load saved address", err)
	}
	if saved == nil || req.UserID == "" || saved.UserID != req.UserID {
		return orders.Address{}, notFound
	}
	return saved.Address, nil
}

func buildOrder(req Request, addr orders.Address, id string, now time.Time) orders.Order {
	items := validation.ToOrderItems(req.Items)
	return orders.Order{
		UUID:            id,
		Customer:        orders.Customer{Name: req.CustomerName, Phone: req.CustomerPhone},
		Items:           items,
		TotalAmount:     orders.Total(items),
		DeliveryDate:    req.DeliveryDate,
		DeliveryAddress: addr,
		PaymentMethod:   req.PaymentMethod,
		CreatedAt:       now,
	}
}

// persist numbers and saves order, renumbering when the id is already taken.
func (s *Service) persist(ctx context.Context, order *orders.Order) (bool, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxNumberAttempts; attempt++ {
		id, fallback := s.deps.Numberer.NextOrderNumber(ctx)
		if fallback {
			s.count(ctx, MetricNumberingFallback)
			s.logger.Warn("order number fell back to random suffix", zap.String("orderId", id))
		}
		order.OrderID = id

		err := s.deps.Store.SaveOrder(ctx, *order)
		if err == nil {
			return fallback, nil
		}
		lastErr = err
		if !errors.Is(err, orders.ErrDuplicateOrderID) {
			s.logger.Error("order persistence failed", zap.String("orderId", id), zap.Error(err))
			return false, apperrors.NewPersistenceError("failed to save order", err)
		}
		s.count(ctx, MetricDuplicateOrderID)
		s.logger.Warn("order id taken, renumbering",
			zap.String("orderId", id),
			zap.Int("attempt", attempt),
		)
	}
	return false, apperrors.NewPersistenceError(
		fmt.Sprintf("no free order id after %d attempts", s.opts.MaxNumberAttempts), lastErr)
}

// notify never fails the caller; it reports whether the payload went out.
func (s *Service) notify(ctx context.Context, p notify.Payload) bool {
	if s.deps.Notifier == nil {
		return false
	}
	err := s.deps.Notifier.Notify(ctx, p)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrNotifierDisabled):
		s.logger.Debug("notification skipped, no channel configured", zap.String("orderId", p.Order.OrderID))
	default:
		s.count(ctx, MetricNotificationFailed)
		s.logger.Warn("notification failed, order kept",
			zap.String("orderId", p.Order.OrderID),
			zap.String("eventType", p.EventType),
			zap.Error(err),
		)
	}
	return false
}

// UpdateStatus records a lifecycle transition and notifies the customer when
// the order is out for delivery or delivered.
func (s *Service) UpdateStatus(ctx context.Context, orderID, status, notes string) (*StatusResult, error) {
	if !orders.ValidStatus(status) {
		return nil, apperrors.NewValidationError("invalid request", apperrors.ValidationDetail{
			Field: "status", Message: "must be one of: placed out_for_delivery delivered",
		})
	}

	if err := s.deps.Store.UpdateStatus(ctx, orderID, status, notes); err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			return nil, apperrors.NewNotFoundError("order " + orderID + " not found")
		}
		return nil, apperrors.NewPersistenceError("failed to update order status", err)
	}

	res := &StatusResult{OrderID: orderID, Status: status}
	if status != orders.StatusOutForDelivery && status != orders.StatusDelivered {
		return res, nil
	}

	rec, err := s.deps.Store.GetStatus(ctx, orderID)
	if err != nil || rec == nil {
		s.logger.Warn("status notification skipped, order not readable", zap.String("orderId", orderID), zap.Error(err))
		return res, nil
	}
	res.NotificationSent = s.notify(ctx, notify.BuildStatusPayload(orderID, status, rec.CustomerName, rec.CustomerPhone, s.opts.Business, s.now()))
	return res, nil
}

func (s *Service) businessWhatsApp() string {
	if s.opts.Business.WhatsAppPhone != "" {
		return s.opts.Business.WhatsAppPhone
	}
	return s.opts.Business.Phone
}

func (s *Service) count(ctx context.Context, name string) {
	if s.deps.Recorder == nil {
		return
	}
	if err := s.deps.Recorder.Count(ctx, name, 1, nil); err != nil {
		s.logger.Debug("record metric failed", zap.String("metric", name), zap.Error(err))
	}
}
