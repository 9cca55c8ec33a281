// Package whatsapp sends messages through the WhatsApp Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/krumbkraft/orderflow/internal/messages"
	"github.com/krumbkraft/orderflow/internal/orders"
)

const (
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v22.0"
	DefaultLanguage   = "en_US"

	defaultTimeout = 15 * time.Second
	countryCode    = "91"
)

// ErrNotConfigured is returned when no phone number id or token is set.
var ErrNotConfigured = errors.New("whatsapp api not configured")

// APIError carries a non-2xx Cloud API response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api error: %d - %s", e.StatusCode, e.Body)
}

type Config struct {
	BaseURL       string
	APIVersion    string
	PhoneNumberID string
	AccessToken   string
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	cfg    Config
	http   HTTPDoer
	logger *zap.Logger
}

func NewClient(cfg Config, httpClient HTTPDoer, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}
}

func (c *Client) Enabled() bool {
	return c.cfg.PhoneNumberID != "" && c.cfg.AccessToken != ""
}

type textBody struct {
	Body string `json:"body"`
}

type language struct {
	Code string `json:"code"`
}

type template struct {
	Name     string   `json:"name"`
	Language language `json:"language"`
}

type message struct {
	MessagingProduct string    `json:"messaging_product"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Text             *textBody `json:"text,omitempty"`
	Template         *template `json:"template,omitempty"`
}

// FormatRecipient strips non-digits and prefixes the 91 country code unless
// the number already carries it (12 digits starting with 91). A 10-digit
// mobile such as 9123456789 still gets the prefix.
func FormatRecipient(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 12 && strings.HasPrefix(digits, countryCode) {
		return digits
	}
	return countryCode + digits
}

func (c *Client) SendText(ctx context.Context, to, text string) (map[string]any, error) {
	return c.send(ctx, message{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &textBody{Body: text},
	})
}

func (c *Client) SendTemplate(ctx context.Context, to, name, languageCode string) (map[string]any, error) {
	if languageCode == "" {
		languageCode = DefaultLanguage
	}
	return c.send(ctx, message{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template:         &template{Name: name, Language: language{Code: languageCode}},
	})
}

// SendOrderConfirmation sends the customer confirmation to the customer's phone.
func (c *Client) SendOrderConfirmation(ctx context.Context, o orders.Order, biz messages.Business) (map[string]any, error) {
	return c.SendText(ctx, FormatRecipient(o.Customer.Phone), messages.RenderCustomerMessage(o, biz))
}

// SendBusinessNotification sends the new-order notice to the business number.
func (c *Client) SendBusinessNotification(ctx context.Context, o orders.Order, biz messages.Business) (map[string]any, error) {
	phone := biz.WhatsAppPhone
	if phone == "" {
		phone = biz.Phone
	}
	return c.SendText(ctx, FormatRecipient(phone), messages.RenderBusinessMessage(o, biz))
}

func (c *Client) endpoint() string {
	return fmt.Sprintf("%s/%s/%s/messages", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.APIVersion, c.cfg.PhoneNumberID)
}

func (c *Client) send(ctx context.Context, msg message) (map[string]any, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal whatsapp message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read whatsapp response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("whatsapp api rejected message",
			zap.String("type", msg.Type),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode whatsapp response: %w", err)
	}
	c.logger.Info("whatsapp message sent", zap.String("type", msg.Type))
	return out, nil
}
