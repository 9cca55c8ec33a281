package validation

import "github.com/krumbkraft/orderflow/internal/orders"

// SelectedOption is a product variant chosen in the cart.
type SelectedOption struct {
	Name            string `json:"name" validate:"required"`
	PriceAdjustment int64  `json:"price_adjustment"`
}

// Item represents a single cart line. Price is the unit price with any
// option adjustment already applied.
type Item struct {
	ProductName    string          `json:"product_name" validate:"required"`
	Quantity       int             `json:"quantity" validate:"required,min=1"`
	Price          int64           `json:"price" validate:"min=0"`
	SelectedOption *SelectedOption `json:"selected_option,omitempty"`
}

// ToOrderItem converts the cart line into a priced order item.
func (it Item) ToOrderItem() orders.Item {
	var opt *orders.SelectedOption
	if it.SelectedOption != nil {
		opt = &orders.SelectedOption{Name: it.SelectedOption.Name, PriceAdjustment: it.SelectedOption.PriceAdjustment}
	}
	return orders.NewItem(it.ProductName, it.Quantity, it.Price, opt)
}

func ToOrderItems(items []Item) []orders.Item {
	out := make([]orders.Item, 0, len(items))
	for _, it := range items {
		out = append(out, it.ToOrderItem())
	}
	return out
}

// Address is an inline delivery address.
type Address struct {
	FullAddress string `json:"full_address" validate:"required"`
	Area        string `json:"area"`
	City        string `json:"city"`
	Pincode     string `json:"pincode" validate:"omitempty,numeric,len=6"`
	Landmark    string `json:"landmark,omitempty"`
}

func (a Address) ToOrderAddress() orders.Address {
	return orders.Address{
		FullAddress: a.FullAddress,
		Area:        a.Area,
		City:        a.City,
		Pincode:     a.Pincode,
		Landmark:    a.Landmark,
	}
}

// CheckoutRequest is the payload for POST /orders. Exactly one of Address
// and AddressID identifies where to deliver.
type CheckoutRequest struct {
	UserID        string   `json:"user_id,omitempty"`
	CustomerName  string   `json:"customer_name" validate:"required"`
	CustomerPhone string   `json:"customer_phone" validate:"required,min=10"`
	Items         []Item   `json:"items" validate:"required,min=1,dive"`
	DeliveryDate  string   `json:"delivery_date" validate:"required,datetime=2006-01-02"`
	Address       *Address `json:"address,omitempty"`
	AddressID     string   `json:"address_id,omitempty"`
	PaymentMethod string   `json:"payment_method,omitempty" validate:"omitempty,oneof=whatsapp_order online cash_on_delivery"`
	TotalAmount   *int64   `json:"total_amount,omitempty"` // optional client total, checked against the items
}

// StatusUpdateRequest is the payload for PATCH /orders/:orderId/status.
type StatusUpdateRequest struct {
	Status string `json:"status" validate:"required,oneof=placed out_for_delivery delivered"`
	Notes  string `json:"notes,omitempty" validate:"max=500"`
}

// AddressRequest is the payload for POST /addresses.
type AddressRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Address
}

// OrderData describes an already placed order, as sent by the app to the
// webhook and WhatsApp endpoints.
type OrderData struct {
	OrderID         string   `json:"order_id" validate:"required"`
	UUID            string   `json:"uuid,omitempty"`
	CustomerName    string   `json:"customer_name"`
	CustomerPhone   string   `json:"customer_phone"`
	Items           []Item   `json:"items,omitempty" validate:"dive"`
	DeliveryDate    string   `json:"delivery_date,omitempty"`
	DeliveryAddress *Address `json:"delivery_address,omitempty"`
}

// ToOrder rebuilds the order aggregate; totals are recomputed from the items.
func (d OrderData) ToOrder() orders.Order {
	items := ToOrderItems(d.Items)
	o := orders.Order{
		OrderID:      d.OrderID,
		UUID:         d.UUID,
		Customer:     orders.Customer{Name: d.CustomerName, Phone: d.CustomerPhone},
		Items:        items,
		TotalAmount:  orders.Total(items),
		DeliveryDate: d.DeliveryDate,
	}
	if d.DeliveryAddress != nil {
		o.DeliveryAddress = d.DeliveryAddress.ToOrderAddress()
	}
	return o
}

// Webhook actions
const (
	ActionOrderPlaced       = "order_placed"
	ActionOrderStatusUpdate = "order_status_update"
)

// WebhookRequest is the payload for POST /webhook.
type WebhookRequest struct {
	Action string `json:"action" validate:"required,oneof=order_placed order_status_update"`
	OrderData
	NewStatus string `json:"new_status,omitempty"`
}

// WhatsApp message types
const (
	MessageOrderConfirmation    = "order_confirmation"
	MessageBusinessNotification = "business_notification"
	MessageText                 = "text_message"
	MessageTemplate             = "template_message"
)

// WhatsAppRequest is the payload for POST /whatsapp.
type WhatsAppRequest struct {
	Type          string     `json:"type" validate:"required,oneof=order_confirmation business_notification text_message template_message"`
	To            string     `json:"to,omitempty"`
	Text          string     `json:"text,omitempty"`
	TemplateName  string     `json:"template_name,omitempty"`
	LanguageCode  string     `json:"language_code,omitempty"`
	BusinessPhone string     `json:"business_phone,omitempty"`
	Order         *OrderData `json:"order,omitempty"`
}
