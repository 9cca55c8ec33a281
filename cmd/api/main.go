package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/krumbkraft/orderflow/internal/addresses"
	"github.com/krumbkraft/orderflow/internal/aws"
	"github.com/krumbkraft/orderflow/internal/checkout"
	"github.com/krumbkraft/orderflow/internal/config"
	"github.com/krumbkraft/orderflow/internal/handlers"
	"github.com/krumbkraft/orderflow/internal/idempotency"
	"github.com/krumbkraft/orderflow/internal/logger"
	"github.com/krumbkraft/orderflow/internal/messages"
	"github.com/krumbkraft/orderflow/internal/notify"
	"github.com/krumbkraft/orderflow/internal/orders"
	"github.com/krumbkraft/orderflow/internal/whatsapp"
)

func setupRouter(cfg *config.Config, clients *aws.AWSClients, zl *zap.Logger) (*gin.Engine, error) {
	metrics := aws.NewMetricsRecorder(clients.CloudWatch, cfg.Metrics.Namespace)

	biz := messages.Business{
		Name:          cfg.Business.Name,
		Phone:         cfg.Business.Phone,
		WhatsAppPhone: cfg.Business.WhatsAppPhone,
		Currency:      cfg.Business.Currency,
	}

	loc, err := time.LoadLocation(cfg.Checkout.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", cfg.Checkout.Timezone, err)
	}

	var numberer orders.Numberer
	switch cfg.Checkout.NumberingStrategy {
	case config.NumberingCounter:
		numberer = orders.NewCounterNumberer(clients.DynamoDB, cfg.Tables.Counters, zl)
	default:
		numberer = orders.NewScanNumberer(clients.DynamoDB, cfg.Tables.OrderStatus, zl)
	}

	orderStore := orders.NewStore(clients.DynamoDB, cfg.Tables.OrderStatus, cfg.Tables.Finance, cfg.Checkout.PersistenceMode)
	addressStore := addresses.NewStore(clients.DynamoDB, cfg.Tables.Addresses, cfg.Tables.AddressUserIndex)
	idemStore := idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.Checkout.IdempotencyTTL)

	dispatcher := notify.NewDispatcher(notify.Config{
		PrimaryURL:    cfg.Webhook.PrimaryURL,
		SecondaryURL:  cfg.Webhook.SecondaryURL,
		Timeout:       cfg.Webhook.Timeout,
		RetryAttempts: cfg.Webhook.RetryAttempts,
		APIKey:        cfg.Webhook.APIKey,
	}, zl, notify.WithRecorder(metrics))

	var notifier checkout.Notifier
	switch cfg.Checkout.NotifyMode {
	case config.NotifyQueue:
		notifier = checkout.NewQueueNotifier(aws.NewPublisher(clients.SQS, cfg.Queue.NotificationURL))
	default:
		notifier = checkout.NewInlineNotifier(dispatcher, cfg.Checkout.InlineNotifyBudget)
	}

	svc := checkout.NewService(checkout.Deps{
		Numberer:  numberer,
		Store:     orderStore,
		Addresses: addressStore,
		Notifier:  notifier,
		Recorder:  metrics,
		Logger:    zl,
	}, checkout.Options{
		Business:          biz,
		Location:          loc,
		MaxNumberAttempts: cfg.Checkout.MaxNumberAttempts,
	})

	wa := whatsapp.NewClient(whatsapp.Config{
		BaseURL:       cfg.WhatsApp.BaseURL,
		APIVersion:    cfg.WhatsApp.APIVersion,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		AccessToken:   cfg.WhatsApp.AccessToken,
	}, &http.Client{Timeout: cfg.Webhook.Timeout}, zl)

	zl.Info("router configured",
		zap.String("numbering", cfg.Checkout.NumberingStrategy),
		zap.String("persistence", cfg.Checkout.PersistenceMode),
		zap.String("notify", cfg.Checkout.NotifyMode),
		zap.Bool("webhookEnabled", dispatcher.Enabled()),
		zap.Bool("whatsappEnabled", wa.Enabled()),
	)

	return handlers.NewRouter(handlers.HandlerConfig{
		Checkout:    svc,
		Idempotency: idemStore,
		Addresses:   addressStore,
		Webhook:     dispatcher,
		WhatsApp:    wa,
		Business:    biz,
		Logger:      zl,
	}), nil
}

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		zl.Fatal("failed to init aws clients", zap.Error(err))
	}

	r, err := setupRouter(cfg, clients, zl)
	if err != nil {
		zl.Fatal("failed to set up router", zap.Error(err))
	}

	if cfg.Server.RunLocal {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		zl.Info("running local server", zap.String("addr", addr))
		if err := r.Run(addr); err != nil {
			zl.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
