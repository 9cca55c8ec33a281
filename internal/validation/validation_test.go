package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/krumbkraft/orderflow/internal/errors"
)

func validCheckout() CheckoutRequest {
	total := int64(380)
	return CheckoutRequest{
		CustomerName:  "Test Customer",
		CustomerPhone: "+919876543210",
		Items: []Item{
			{ProductName: "Sourdough Bread", Quantity: 2, Price: 150, SelectedOption: &SelectedOption{Name: "Large", PriceAdjustment: 50}},
			{ProductName: "Chocolate Cookies", Quantity: 1, Price: 80},
		},
		DeliveryDate: "2026-10-16",
		Address:      &Address{FullAddress: "123 Test Street", Pincode: "400001"},
		TotalAmount:  &total,
	}
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	ve, ok := apperrors.IsValidationError(err)
	require.True(t, ok, "expected ValidationError, got %v", err)
	out := map[string]string{}
	for _, d := range ve.Details {
		out[d.Field] = d.Message
	}
	return out
}

func TestCheckoutRequest_Valid(t *testing.T) {
	v := New()
	if err := Validate(v, validCheckout()); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
}

func TestCheckoutRequest_AddressIDIsEnough(t *testing.T) {
	req := validCheckout()
	req.Address = nil
	req.AddressID = "addr-1"
	req.UserID = "+919876543210"
	assert.NoError(t, Validate(New(), req))
}

func TestCheckoutRequest_AddressIDNeedsUserID(t *testing.T) {
	req := validCheckout()
	req.Address = nil
	req.AddressID = "addr-1"

	fields := fieldsOf(t, Validate(New(), req))
	assert.Equal(t, "is required", fields["user_id"])
}

func TestCheckoutRequest_InvalidAmountMismatch(t *testing.T) {
	req := validCheckout()
	wrong := int64(379)
	req.TotalAmount = &wrong

	fields := fieldsOf(t, Validate(New(), req))
	assert.Equal(t, "does not match the items total 380", fields["total_amount"])
}

func TestCheckoutRequest_MissingFields(t *testing.T) {
	fields := fieldsOf(t, Validate(New(), CheckoutRequest{}))

	assert.Equal(t, "is required", fields["customer_name"])
	assert.Equal(t, "is required", fields["customer_phone"])
	assert.Equal(t, "is required", fields["items"])
	assert.Equal(t, "is required", fields["delivery_date"])
	assert.Equal(t, "address or address_id is required", fields["address"])
}

func TestCheckoutRequest_ItemRules(t *testing.T) {
	req := validCheckout()
	req.TotalAmount = nil
	req.Items[0].Quantity = 0
	req.Items[1].Price = -5

	fields := fieldsOf(t, Validate(New(), req))
	assert.Contains(t, fields, "items[0].quantity")
	assert.Equal(t, "must be at least 0", fields["items[1].price"])
}

func TestCheckoutRequest_BadDateAndPaymentMethod(t *testing.T) {
	req := validCheckout()
	req.DeliveryDate = "16/10/2026"
	req.PaymentMethod = "bitcoin"

	fields := fieldsOf(t, Validate(New(), req))
	assert.Equal(t, "must be a date in 2006-01-02 format", fields["delivery_date"])
	assert.Contains(t, fields["payment_method"], "whatsapp_order")
}

func TestStatusUpdateRequest(t *testing.T) {
	v := New()
	assert.NoError(t, Validate(v, StatusUpdateRequest{Status: "delivered"}))

	fields := fieldsOf(t, Validate(v, StatusUpdateRequest{Status: "lost"}))
	assert.Contains(t, fields, "status")
}

func TestBindAndValidate_WritesFieldErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPatch, "/orders/x/status", strings.NewReader(`{"status":"lost"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	var req StatusUpdateRequest
	err := BindAndValidate(c, &req, New())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_failed")
	assert.Contains(t, w.Body.String(), `"status"`)
}

func TestBindJSON_Malformed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"items":`))
	c.Request.Header.Set("Content-Type", "application/json")

	var req CheckoutRequest
	require.Error(t, BindJSON(c, &req))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request_body")
}
