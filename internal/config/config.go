package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// gatewayTimeout is API Gateway's integration limit for the api Lambda.
const gatewayTimeout = 29 * time.Second

const (
	NotifyInline = "inline"
	NotifyQueue  = "queue"

	NumberingScan    = "scan"
	NumberingCounter = "counter"

	PersistTransaction = "transaction"
	PersistConcurrent  = "concurrent"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Webhook  WebhookConfig
	Business BusinessConfig
	Tables   TablesConfig
	Checkout CheckoutConfig
	Queue    QueueConfig
	WhatsApp WhatsAppConfig
	Metrics  MetricsConfig
}

type ServerConfig struct {
	Port     int
	RunLocal bool
}

type LogConfig struct {
	Level string
}

type WebhookConfig struct {
	PrimaryURL    string
	SecondaryURL  string
	APIKey        string
	Timeout       time.Duration
	RetryAttempts int
}

type BusinessConfig struct {
	Name          string
	Phone         string
	WhatsAppPhone string
	Currency      string
}

type TablesConfig struct {
	OrderStatus      string
	Finance          string
	Addresses        string
	AddressUserIndex string
	Counters         string
	Idempotency      string
}

type CheckoutConfig struct {
	Timezone          string
	MaxNumberAttempts int
	NotifyMode        string
	NumberingStrategy string
	PersistenceMode   string
	IdempotencyTTL    time.Duration
	// InlineNotifyBudget caps the whole inline webhook dispatch, retries included.
	InlineNotifyBudget time.Duration
}

type QueueConfig struct {
	NotificationURL string
}

type WhatsAppConfig struct {
	PhoneNumberID string
	AccessToken   string
	APIVersion    string
	BaseURL       string
}

type MetricsConfig struct {
	Namespace string
}

// Load reads configuration from the environment. When path is not empty the
// YAML file is read first and environment variables override its keys.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", 8080)
	v.SetDefault("RUN_LOCAL", false)
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("N8N_WEBHOOK_URL", "")
	v.SetDefault("N8N_TEST_WEBHOOK_URL", "")
	v.SetDefault("N8N_API_KEY", "")
	v.SetDefault("WEBHOOK_TIMEOUT_MS", 10000)
	v.SetDefault("WEBHOOK_RETRY_ATTEMPTS", 3)

	v.SetDefault("BUSINESS_NAME", "KrumbKraft")
	v.SetDefault("BUSINESS_PHONE", "")
	v.SetDefault("BUSINESS_WHATSAPP", "9876543210")
	v.SetDefault("CURRENCY_SYMBOL", "₹")

	v.SetDefault("ORDER_STATUS_TABLE", "OrderStatus")
	v.SetDefault("FINANCE_TABLE", "FinanceRecords")
	v.SetDefault("ADDRESS_TABLE", "Address")
	v.SetDefault("ADDRESS_USER_INDEX", "user_id-index")
	v.SetDefault("COUNTER_TABLE", "OrderCounters")
	v.SetDefault("IDEMPOTENCY_TABLE", "CheckoutIdempotency")

	v.SetDefault("CHECKOUT_TIMEZONE", "Asia/Kolkata")
	v.SetDefault("CHECKOUT_MAX_NUMBER_ATTEMPTS", 3)
	v.SetDefault("NOTIFY_MODE", NotifyInline)
	v.SetDefault("NUMBERING_STRATEGY", NumberingScan)
	v.SetDefault("PERSISTENCE_MODE", PersistTransaction)
	v.SetDefault("IDEMPOTENCY_TTL", "48h")
	v.SetDefault("INLINE_NOTIFY_BUDGET", "8s")

	v.SetDefault("NOTIFICATION_QUEUE_URL", "")

	v.SetDefault("WHATSAPP_PHONE_NUMBER_ID", "")
	v.SetDefault("WHATSAPP_ACCESS_TOKEN", "")
	v.SetDefault("WHATSAPP_API_VERSION", "v22.0")
	v.SetDefault("WHATSAPP_API_BASE_URL", "https://graph.facebook.com")

	v.SetDefault("METRICS_NAMESPACE", "KrumbKraft/Orders")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config failed: %w", err)
		}
	}

	idempotencyTTL, err := time.ParseDuration(v.GetString("IDEMPOTENCY_TTL"))
	if err != nil {
		return nil, fmt.Errorf("parsing IDEMPOTENCY_TTL: %w", err)
	}

	inlineBudget, err := time.ParseDuration(v.GetString("INLINE_NOTIFY_BUDGET"))
	if err != nil {
		return nil, fmt.Errorf("parsing INLINE_NOTIFY_BUDGET: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetInt("PORT"),
			RunLocal: v.GetBool("RUN_LOCAL"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		Webhook: WebhookConfig{
			PrimaryURL:    v.GetString("N8N_WEBHOOK_URL"),
			SecondaryURL:  v.GetString("N8N_TEST_WEBHOOK_URL"),
			APIKey:        v.GetString("N8N_API_KEY"),
			Timeout:       time.Duration(v.GetInt("WEBHOOK_TIMEOUT_MS")) * time.Millisecond,
			RetryAttempts: v.GetInt("WEBHOOK_RETRY_ATTEMPTS"),
		},
		Business: BusinessConfig{
			Name:          v.GetString("BUSINESS_NAME"),
			Phone:         v.GetString("BUSINESS_PHONE"),
			WhatsAppPhone: v.GetString("BUSINESS_WHATSAPP"),
			Currency:      v.GetString("CURRENCY_SYMBOL"),
		},
		Tables: TablesConfig{
			OrderStatus:      v.GetString("ORDER_STATUS_TABLE"),
			Finance:          v.GetString("FINANCE_TABLE"),
			Addresses:        v.GetString("ADDRESS_TABLE"),
			AddressUserIndex: v.GetString("ADDRESS_USER_INDEX"),
			Counters:         v.GetString("COUNTER_TABLE"),
			Idempotency:      v.GetString("IDEMPOTENCY_TABLE"),
		},
		Checkout: CheckoutConfig{
			Timezone:           v.GetString("CHECKOUT_TIMEZONE"),
			MaxNumberAttempts:  v.GetInt("CHECKOUT_MAX_NUMBER_ATTEMPTS"),
			NotifyMode:         v.GetString("NOTIFY_MODE"),
			NumberingStrategy:  v.GetString("NUMBERING_STRATEGY"),
			PersistenceMode:    v.GetString("PERSISTENCE_MODE"),
			IdempotencyTTL:     idempotencyTTL,
			InlineNotifyBudget: inlineBudget,
		},
		Queue: QueueConfig{
			NotificationURL: v.GetString("NOTIFICATION_QUEUE_URL"),
		},
		WhatsApp: WhatsAppConfig{
			PhoneNumberID: v.GetString("WHATSAPP_PHONE_NUMBER_ID"),
			AccessToken:   v.GetString("WHATSAPP_ACCESS_TOKEN"),
			APIVersion:    v.GetString("WHATSAPP_API_VERSION"),
			BaseURL:       v.GetString("WHATSAPP_API_BASE_URL"),
		},
		Metrics: MetricsConfig{
			Namespace: v.GetString("METRICS_NAMESPACE"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated options and numeric bounds.
func (c *Config) Validate() error {
	switch c.Checkout.NotifyMode {
	case NotifyInline, NotifyQueue:
	default:
		return fmt.Errorf("NOTIFY_MODE must be %q or %q, got %q", NotifyInline, NotifyQueue, c.Checkout.NotifyMode)
	}
	if c.Checkout.NotifyMode == NotifyQueue && c.Queue.NotificationURL == "" {
		return fmt.Errorf("NOTIFICATION_QUEUE_URL is required when NOTIFY_MODE=%s", NotifyQueue)
	}
	switch c.Checkout.NumberingStrategy {
	case NumberingScan, NumberingCounter:
	default:
		return fmt.Errorf("NUMBERING_STRATEGY must be %q or %q, got %q", NumberingScan, NumberingCounter, c.Checkout.NumberingStrategy)
	}
	switch c.Checkout.PersistenceMode {
	case PersistTransaction, PersistConcurrent:
	default:
		return fmt.Errorf("PERSISTENCE_MODE must be %q or %q, got %q", PersistTransaction, PersistConcurrent, c.Checkout.PersistenceMode)
	}
	if c.Webhook.RetryAttempts < 1 {
		return fmt.Errorf("WEBHOOK_RETRY_ATTEMPTS must be at least 1")
	}
	if c.Webhook.Timeout <= 0 {
		return fmt.Errorf("WEBHOOK_TIMEOUT_MS must be positive")
	}
	if c.Checkout.InlineNotifyBudget <= 0 || c.Checkout.InlineNotifyBudget >= gatewayTimeout {
		return fmt.Errorf("INLINE_NOTIFY_BUDGET must be between 0 and %s", gatewayTimeout)
	}
	if c.Checkout.MaxNumberAttempts < 1 {
		return fmt.Errorf("CHECKOUT_MAX_NUMBER_ATTEMPTS must be at least 1")
	}
	if _, err := time.LoadLocation(c.Checkout.Timezone); err != nil {
		return fmt.Errorf("CHECKOUT_TIMEZONE: %w", err)
	}
	return nil
}
