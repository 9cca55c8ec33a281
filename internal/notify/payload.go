package notify

import (
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/krumbkraft/orderflow/internal/messages"
	"github.com/krumbkraft/orderflow/internal/orders"
)

// Webhook event types.
const (
	EventOrderPlaced         = "order_placed"
	EventOrderConfirmed      = "order_confirmed"
	EventOrderOutForDelivery = "order_out_for_delivery"
	EventOrderDelivered      = "order_delivered"
	EventOrderCancelled      = "order_cancelled"
)

// ValidEventType reports whether e is a known webhook event.
func ValidEventType(e string) bool {
	switch e {
	case EventOrderPlaced, EventOrderConfirmed, EventOrderOutForDelivery, EventOrderDelivered, EventOrderCancelled:
		return true
	}
	return false
}

// OrderView is the slice of an order the automation workflow receives.
type OrderView struct {
	OrderID         string         `json:"order_id"`
	UUID            string         `json:"uuid"`
	CustomerName    string         `json:"customer_name"`
	CustomerPhone   string         `json:"customer_phone"`
	Items           []orders.Item  `json:"items"`
	TotalAmount     int64          `json:"total_amount"`
	DeliveryDate    string         `json:"delivery_date"`
	DeliveryAddress orders.Address `json:"delivery_address"`
	Status          string         `json:"order_status"`
	CreatedAt       time.Time      `json:"created_at"`
}

type Flags struct {
	SendCustomerConfirmation bool `json:"send_customer_confirmation"`
	SendBusinessNotification bool `json:"send_business_notification"`
	SendWhatsApp             bool `json:"send_whatsapp"`
}

// Payload is one webhook notification. It is never persisted, but it
// travels through the notification queue as JSON.
type Payload struct {
	EventType       string            `json:"event_type"`
	Order           OrderView         `json:"order"`
	Business        messages.Business `json:"business"`
	Notifications   Flags             `json:"notifications"`
	CustomerMessage string            `json:"customer_confirmation_message,omitempty"`
	BusinessMessage string            `json:"business_notification_message,omitempty"`
	Source          string            `json:"source,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// Query flattens the payload into webhook query parameters. Items and
// address are JSON encoded; messages are sent as plain text.
func (p Payload) Query() url.Values {
	q := url.Values{}
	q.Set("event_type", p.EventType)
	q.Set("order_id", p.Order.OrderID)
	q.Set("customer_name", p.Order.CustomerName)
	q.Set("customer_phone", messages.NormalizePhone(p.Order.CustomerPhone))
	q.Set("total_amount", strconv.FormatInt(p.Order.TotalAmount, 10))
	q.Set("delivery_date", p.Order.DeliveryDate)
	q.Set("order_status", p.Order.Status)
	q.Set("uuid", p.Order.UUID)
	q.Set("timestamp", p.Timestamp.UTC().Format(time.RFC3339))
	q.Set("source", p.Source)

	items := p.Order.Items
	if items == nil {
		items = []orders.Item{}
	}
	if raw, err := json.Marshal(items); err == nil {
		q.Set("items", string(raw))
	}
	if raw, err := json.Marshal(p.Order.DeliveryAddress); err == nil {
		q.Set("delivery_address", string(raw))
	}

	if p.CustomerMessage != "" {
		q.Set("customer_confirmation_message", p.CustomerMessage)
	}
	if p.BusinessMessage != "" {
		q.Set("business_notification_message", p.BusinessMessage)
	}
	return q
}

// BuildOrderPlacedPayload prepares the order_placed event with both
// rendered messages.
func BuildOrderPlacedPayload(o orders.Order, biz messages.Business, now time.Time) Payload {
	return Payload{
		EventType: EventOrderPlaced,
		Order: OrderView{
			OrderID:         o.OrderID,
			UUID:            o.UUID,
			CustomerName:    o.Customer.Name,
			CustomerPhone:   messages.NormalizePhone(o.Customer.Phone),
			Items:           o.Items,
			TotalAmount:     o.TotalAmount,
			DeliveryDate:    o.DeliveryDate,
			DeliveryAddress: o.DeliveryAddress,
			Status:          orders.StatusPlaced,
			CreatedAt:       o.CreatedAt,
		},
		Business: biz,
		Notifications: Flags{
			SendCustomerConfirmation: true,
			SendBusinessNotification: true,
			SendWhatsApp:             true,
		},
		CustomerMessage: messages.RenderCustomerMessage(o, biz),
		BusinessMessage: messages.RenderBusinessMessage(o, biz),
		Timestamp:       now,
	}
}

// BuildStatusPayload prepares an order_{status} event. It carries no items
// and no rendered messages.
func BuildStatusPayload(orderID, status, customerName, customerPhone string, biz messages.Business, now time.Time) Payload {
	return Payload{
		EventType: "order_" + status,
		Order: OrderView{
			OrderID:       orderID,
			CustomerName:  customerName,
			CustomerPhone: messages.NormalizePhone(customerPhone),
			Items:         []orders.Item{},
			Status:        status,
			CreatedAt:     now,
		},
		Business: biz,
		Notifications: Flags{
			SendCustomerConfirmation: true,
			SendWhatsApp:             true,
		},
		Timestamp: now,
	}
}
