package orders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewItem_TotalPrice(t *testing.T) {
	it := NewItem("Sourdough Bread", 2, 150, &SelectedOption{Name: "Large", PriceAdjustment: 50})
	assert.Equal(t, int64(300), it.TotalPrice)
	assert.Equal(t, "Large", it.SelectedOption.Name)
}

func TestTotal_SumsLineTotals(t *testing.T) {
	items := []Item{
		NewItem("Sourdough Bread", 2, 150, &SelectedOption{Name: "Large", PriceAdjustment: 50}),
		NewItem("Chocolate Cookies", 1, 80, nil),
	}
	assert.Equal(t, int64(380), Total(items))
	assert.Equal(t, int64(0), Total(nil))
}

func TestOrder_Records(t *testing.T) {
	created := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	o := Order{
		OrderID:         "KrumbAA07",
		UUID:            "3f2b",
		Customer:        Customer{Name: "Asha", Phone: "+91 98765 43210"},
		Items:           []Item{NewItem("Cookies", 1, 80, nil)},
		TotalAmount:     80,
		DeliveryDate:    "2026-10-16",
		DeliveryAddress: Address{FullAddress: "12 Baker St", City: "Mumbai"},
		CreatedAt:       created,
	}

	sr := o.StatusRecord()
	assert.Equal(t, StatusPlaced, sr.Status)
	assert.Equal(t, "12 Baker St", sr.DeliveryAddress)
	assert.Equal(t, "+91 98765 43210", sr.CustomerPhone)
	assert.Len(t, sr.StatusHistory, 1)
	assert.Equal(t, "2026-10-15T09:30:00Z", sr.StatusHistory[0].Timestamp)

	fr := o.FinanceRecord()
	assert.Equal(t, sr.UUID, fr.UUID)
	assert.Equal(t, PaymentPending, fr.PaymentStatus)
	assert.Equal(t, StatusPlaced, fr.OrderStatus)
	assert.Equal(t, PaymentMethodWhatsApp, fr.PaymentMethod)
	assert.Equal(t, int64(80), fr.TotalAmount)
}

func TestValidStatus(t *testing.T) {
	assert.True(t, ValidStatus("out_for_delivery"))
	assert.False(t, ValidStatus("cancelled"))
	assert.True(t, ValidPaymentStatus("paid"))
	assert.False(t, ValidPaymentStatus("refunded"))
}
