// Package messages renders order texts for customers and the business, and
// builds wa.me deep links used as the manual fallback channel.
package messages

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/krumbkraft/orderflow/internal/orders"
)

const (
	defaultBusinessName = "KrumbKraft"
	defaultCurrency     = "₹"
	defaultCustomerName = "Customer"

	whatsAppBaseURL = "https://wa.me/"
)

// Business carries the branding and contact numbers used in messages.
type Business struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	WhatsAppPhone string `json:"whatsapp_phone,omitempty"`
	Currency      string `json:"-"`
}

func (b Business) name() string {
	if b.Name == "" {
		return defaultBusinessName
	}
	return b.Name
}

func (b Business) currency() string {
	if b.Currency == "" {
		return defaultCurrency
	}
	return b.Currency
}

// NormalizePhone strips non-digits and a leading 91 or 1 country code when
// what remains is a 10 digit number.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "91"):
		return digits[2:]
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		return digits[1:]
	}
	return digits
}

// FormatItemLine renders "{qty}x {name}[ ({option})] - {currency}{lineTotal}".
func FormatItemLine(it orders.Item, currency string) string {
	option := ""
	if it.SelectedOption != nil && it.SelectedOption.Name != "" {
		option = " (" + it.SelectedOption.Name + ")"
	}
	return fmt.Sprintf("%dx %s%s - %s%d", it.Quantity, it.ProductName, option, currency, it.TotalPrice)
}

func formatItems(items []orders.Item, currency string) string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		lines = append(lines, FormatItemLine(it, currency))
	}
	return strings.Join(lines, "\n")
}

// FormatAddress renders the full address with an optional landmark line.
func FormatAddress(a orders.Address) string {
	if a.Landmark == "" {
		return a.FullAddress
	}
	return a.FullAddress + "\nLandmark: " + a.Landmark
}

func customerName(o orders.Order) string {
	if o.Customer.Name == "" {
		return defaultCustomerName
	}
	return o.Customer.Name
}

// RenderCustomerMessage renders the confirmation sent to the customer.
func RenderCustomerMessage(o orders.Order, biz Business) string {
	cur := biz.currency()
	var b strings.Builder

	fmt.Fprintf(&b, "🥖 *%s Order Confirmation*\n\n", biz.name())
	fmt.Fprintf(&b, "Hi %s! 👋\n\n", customerName(o))
	b.WriteString("Your order has been successfully placed!\n\n")
	fmt.Fprintf(&b, "*Order ID:* %s\n", o.OrderID)
	fmt.Fprintf(&b, "*Delivery Date:* %s\n\n", o.DeliveryDate)
	fmt.Fprintf(&b, "*Your Order:*\n%s\n\n", formatItems(o.Items, cur))
	fmt.Fprintf(&b, "*Total Amount:* %s%d\n\n", cur, o.TotalAmount)
	fmt.Fprintf(&b, "*Delivery Address:*\n%s\n\n", FormatAddress(o.DeliveryAddress))
	b.WriteString("*Order Status:* Confirmed ✅\n")
	fmt.Fprintf(&b, "*Expected Delivery:* %s\n\n", o.DeliveryDate)
	fmt.Fprintf(&b, "Thank you for choosing %s! 🍞\n", biz.name())
	b.WriteString("We'll keep you updated on your order status.\n\n")
	b.WriteString("For any queries, feel free to contact us.\n\n")
	fmt.Fprintf(&b, "*Track your order:* Use Order ID %s", o.OrderID)

	return b.String()
}

// RenderBusinessMessage renders the new-order notice sent to the bakery.
func RenderBusinessMessage(o orders.Order, biz Business) string {
	cur := biz.currency()
	var b strings.Builder

	fmt.Fprintf(&b, "🥖 *%s New Order*\n\n", biz.name())
	fmt.Fprintf(&b, "*Order ID:* %s\n", o.OrderID)
	fmt.Fprintf(&b, "*Customer:* %s\n", customerName(o))
	fmt.Fprintf(&b, "*Phone:* %s\n\n", NormalizePhone(o.Customer.Phone))
	fmt.Fprintf(&b, "*Delivery Details:*\n*Date:* %s\n\n", o.DeliveryDate)
	fmt.Fprintf(&b, "*Address:*\n%s\n\n", FormatAddress(o.DeliveryAddress))
	fmt.Fprintf(&b, "*Items:*\n%s\n\n", formatItems(o.Items, cur))
	fmt.Fprintf(&b, "*Total Amount:* %s%d\n\n", cur, o.TotalAmount)
	fmt.Fprintf(&b, "You can track this order using Order ID: %s\n\n", o.OrderID)
	b.WriteString("Please confirm this order. Thank you!")

	return b.String()
}

// BuildWhatsAppLink returns https://wa.me/{digits}?text={message}. Spaces are
// encoded as %20, not '+', since wa.me does not decode '+'.
func BuildWhatsAppLink(phone, message string) string {
	link := whatsAppBaseURL + NormalizePhone(phone)
	if message == "" {
		return link
	}
	return link + "?text=" + strings.ReplaceAll(url.QueryEscape(message), "+", "%20")
}
