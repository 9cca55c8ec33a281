package orders

import "time"

// Order statuses, shared by the status record and the finance record.
const (
	StatusPlaced         = "placed"
	StatusOutForDelivery = "out_for_delivery"
	StatusDelivered      = "delivered"
)

// Payment statuses
const (
	PaymentPending = "pending"
	PaymentPaid    = "paid"
	PaymentFailed  = "failed"
)

// Payment methods
const (
	PaymentMethodWhatsApp = "whatsapp_order"
	PaymentMethodOnline   = "online"
	PaymentMethodCOD      = "cash_on_delivery"
)

// ValidStatus reports whether s is a known order status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPlaced, StatusOutForDelivery, StatusDelivered:
		return true
	}
	return false
}

// ValidPaymentStatus reports whether s is a known payment status.
func ValidPaymentStatus(s string) bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed:
		return true
	}
	return false
}

type SelectedOption struct {
	Name            string `json:"name" dynamodbav:"name"`
	PriceAdjustment int64  `json:"price_adjustment" dynamodbav:"price_adjustment"`
}

// Item is one cart line. UnitPrice already includes any option adjustment.
type Item struct {
	ProductName    string          `json:"product_name" dynamodbav:"product_name"`
	Quantity       int             `json:"quantity" dynamodbav:"quantity"`
	UnitPrice      int64           `json:"unit_price" dynamodbav:"unit_price"`
	TotalPrice     int64           `json:"total_price" dynamodbav:"total_price"`
	SelectedOption *SelectedOption `json:"selected_option,omitempty" dynamodbav:"selected_option,omitempty"`
}

// NewItem builds a line item with TotalPrice = unitPrice * quantity.
func NewItem(productName string, quantity int, unitPrice int64, option *SelectedOption) Item {
	return Item{
		ProductName:    productName,
		Quantity:       quantity,
		UnitPrice:      unitPrice,
		TotalPrice:     unitPrice * int64(quantity),
		SelectedOption: option,
	}
}

// Total sums TotalPrice over items.
func Total(items []Item) int64 {
	var sum int64
	for _, it := range items {
		sum += it.TotalPrice
	}
	return sum
}

type Address struct {
	FullAddress string `json:"full_address" dynamodbav:"full_address"`
	Area        string `json:"area" dynamodbav:"area"`
	City        string `json:"city" dynamodbav:"city"`
	Pincode     string `json:"pincode" dynamodbav:"pincode"`
	Landmark    string `json:"landmark,omitempty" dynamodbav:"landmark,omitempty"`
}

type Customer struct {
	Name  string `json:"name"`
	Phone string `json:"phone"` // raw, as captured at login
}

// Order is the aggregate written as a StatusRecord and a FinanceRecord.
type Order struct {
	OrderID         string
	UUID            string
	Customer        Customer
	Items           []Item
	TotalAmount     int64
	DeliveryDate    string // YYYY-MM-DD
	DeliveryAddress Address
	PaymentMethod   string
	CreatedAt       time.Time
}

type HistoryEntry struct {
	Status    string `json:"status" dynamodbav:"status"`
	Timestamp string `json:"timestamp" dynamodbav:"timestamp"` // RFC3339
	Notes     string `json:"notes,omitempty" dynamodbav:"notes,omitempty"`
}

// StatusRecord is the item stored in the OrderStatus table.
type StatusRecord struct {
	OrderID         string         `dynamodbav:"order_id"` // PK
	UUID            string         `dynamodbav:"uuid"`
	CustomerName    string         `dynamodbav:"customer_name"`
	CustomerPhone   string         `dynamodbav:"customer_phone"`
	Status          string         `dynamodbav:"status"`
	DeliveryDate    string         `dynamodbav:"delivery_date"`
	DeliveryAddress string         `dynamodbav:"delivery_address"`
	TotalAmount     int64          `dynamodbav:"total_amount"`
	OrderTimestamp  time.Time      `dynamodbav:"order_timestamp"`
	UpdatedAt       time.Time      `dynamodbav:"updated_at"`
	StatusHistory   []HistoryEntry `dynamodbav:"status_history"`
}

// FinanceRecord is the item stored in the FinanceRecords table.
type FinanceRecord struct {
	OrderID         string    `dynamodbav:"order_id"` // PK
	UUID            string    `dynamodbav:"uuid"`
	CustomerName    string    `dynamodbav:"customer_name"`
	CustomerPhone   string    `dynamodbav:"customer_phone"`
	Items           []Item    `dynamodbav:"items"`
	TotalAmount     int64     `dynamodbav:"total_amount"`
	DeliveryAddress Address   `dynamodbav:"delivery_address"`
	DeliveryDate    string    `dynamodbav:"delivery_date"`
	OrderTimestamp  time.Time `dynamodbav:"order_timestamp"`
	UpdatedAt       time.Time `dynamodbav:"updated_at"`
	PaymentStatus   string    `dynamodbav:"payment_status"`
	OrderStatus     string    `dynamodbav:"order_status"`
	PaymentMethod   string    `dynamodbav:"payment_method"`
}

const placedNote = "Order placed via WhatsApp"

// StatusRecord derives the OrderStatus document, seeded with one placed history entry.
func (o Order) StatusRecord() StatusRecord {
	return StatusRecord{
		OrderID:         o.OrderID,
		UUID:            o.UUID,
		CustomerName:    o.Customer.Name,
		CustomerPhone:   o.Customer.Phone,
		Status:          StatusPlaced,
		DeliveryDate:    o.DeliveryDate,
		DeliveryAddress: o.DeliveryAddress.FullAddress,
		TotalAmount:     o.TotalAmount,
		OrderTimestamp:  o.CreatedAt,
		UpdatedAt:       o.CreatedAt,
		StatusHistory: []HistoryEntry{{
			Status:    StatusPlaced,
			Timestamp: o.CreatedAt.UTC().Format(time.RFC3339),
			Notes:     placedNote,
		}},
	}
}

// FinanceRecord derives the FinanceRecords document.
func (o Order) FinanceRecord() FinanceRecord {
	method := o.PaymentMethod
	if method == "" {
		method = PaymentMethodWhatsApp
	}
	return FinanceRecord{
		OrderID:         o.OrderID,
		UUID:            o.UUID,
		CustomerName:    o.Customer.Name,
		CustomerPhone:   o.Customer.Phone,
		Items:           o.Items,
		TotalAmount:     o.TotalAmount,
		DeliveryAddress: o.DeliveryAddress,
		DeliveryDate:    o.DeliveryDate,
		OrderTimestamp:  o.CreatedAt,
		UpdatedAt:       o.CreatedAt,
		PaymentStatus:   PaymentPending,
		OrderStatus:     StatusPlaced,
		PaymentMethod:   method,
	}
}
